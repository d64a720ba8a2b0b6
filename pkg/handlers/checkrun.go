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

	"github.com/myk-org/github-webhook-server-sub001/pkg/checks"
	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
)

// HandleCheckRun re-evaluates merge eligibility when any check run on the
// PR's head completes. The eligibility run itself is skipped, otherwise its
// own completion would trigger the next evaluation forever.
func (h *Handler) HandleCheckRun(ctx context.Context, event *github.CheckRunEvent) error {
	return h.step(StepCheckRun, func() error {
		if event.Action != github.CheckRunActionCompleted {
			h.Logger.Debugf("Ignoring check_run action %q.", event.Action)
			return nil
		}
		if event.CheckRun.Name == checks.CanBeMerged {
			return nil
		}
		if event.CheckRun.Conclusion == "" {
			h.Logger.Debugf("Check run %s completed without a conclusion, ignoring.", event.CheckRun.Name)
			return nil
		}
		return h.CheckCanBeMerged(ctx)
	})
}
