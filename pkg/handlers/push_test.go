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
	"sort"
	"testing"

	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
)

const releaseYAML = `container:
  username: bot
  password: hunter2
  repository: quay.io/org/demo
  release: true
pypi:
  token: pypi-token
`

func TestHandlePush(t *testing.T) {
	var testcases = []struct {
		name      string
		localYAML string
		event     *github.PushEvent

		expected []string
	}{
		{
			name:      "tag push releases pypi and image",
			localYAML: releaseYAML,
			event:     &github.PushEvent{Ref: "refs/tags/v1.2.3"},
			expected:  []string{"build-container:push:v1.2.3", "pypi:v1.2.3"},
		},
		{
			name:      "pypi only",
			localYAML: "pypi:\n  token: pypi-token\n",
			event:     &github.PushEvent{Ref: "refs/tags/v1.2.3"},
			expected:  []string{"pypi:v1.2.3"},
		},
		{
			name:      "image only",
			localYAML: "container:\n  username: bot\n  password: hunter2\n  repository: quay.io/org/demo\n  release: true\n",
			event:     &github.PushEvent{Ref: "refs/tags/v1.2.3"},
			expected:  []string{"build-container:push:v1.2.3"},
		},
		{
			name:      "container without release stays quiet",
			localYAML: "container:\n  username: bot\n  password: hunter2\n  repository: quay.io/org/demo\n",
			event:     &github.PushEvent{Ref: "refs/tags/v1.2.3"},
		},
		{
			name:      "branch push",
			localYAML: releaseYAML,
			event:     &github.PushEvent{Ref: "refs/heads/main"},
		},
		{
			name:      "tag deletion",
			localYAML: releaseYAML,
			event:     &github.PushEvent{Ref: "refs/tags/v1.2.3", Deleted: true},
		},
		{
			name:  "no release targets configured",
			event: &github.PushEvent{Ref: "refs/tags/v1.2.3"},
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, tc.localYAML)
			if err := h.HandlePush(context.Background(), tc.event); err != nil {
				t.Fatalf("Didn't expect error: %v", err)
			}
			got := append([]string(nil), h.runners.calls...)
			sort.Strings(got)
			if len(got) != len(tc.expected) {
				t.Fatalf("Expected calls %v, got %v", tc.expected, got)
			}
			for i := range got {
				if got[i] != tc.expected[i] {
					t.Errorf("Expected calls %v, got %v", tc.expected, got)
					break
				}
			}
		})
	}
}
