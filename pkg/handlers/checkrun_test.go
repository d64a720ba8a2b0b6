/*
Copyright 2025 The GitHub Webhook Server Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package handlers

import (
	"context"
	"testing"

	"github.com/myk-org/github-webhook-server-sub001/pkg/checks"
	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
)

func TestHandleCheckRun(t *testing.T) {
	var testcases = []struct {
		name  string
		event *github.CheckRunEvent

		expectEvaluation bool
	}{
		{
			name: "completed run triggers re-evaluation",
			event: &github.CheckRunEvent{
				Action:   github.CheckRunActionCompleted,
				CheckRun: github.CheckRun{Name: checks.Tox, Conclusion: checks.ConclusionSuccess},
			},
			expectEvaluation: true,
		},
		{
			name: "created run does not",
			event: &github.CheckRunEvent{
				Action:   github.CheckRunActionCreated,
				CheckRun: github.CheckRun{Name: checks.Tox},
			},
		},
		{
			name: "eligibility run never re-triggers itself",
			event: &github.CheckRunEvent{
				Action:   github.CheckRunActionCompleted,
				CheckRun: github.CheckRun{Name: checks.CanBeMerged, Conclusion: checks.ConclusionFailure},
			},
		},
		{
			name: "completion without a conclusion is ignored",
			event: &github.CheckRunEvent{
				Action:   github.CheckRunActionCompleted,
				CheckRun: github.CheckRun{Name: checks.Tox},
			},
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, "")
			if err := h.HandleCheckRun(context.Background(), tc.event); err != nil {
				t.Fatalf("Didn't expect error: %v", err)
			}
			evaluated := h.checks.has("in_progress:" + checks.CanBeMerged)
			if evaluated != tc.expectEvaluation {
				t.Errorf("Expected evaluation %t, got %t (transitions %v)", tc.expectEvaluation, evaluated, h.checks.transitions)
			}
		})
	}
}
