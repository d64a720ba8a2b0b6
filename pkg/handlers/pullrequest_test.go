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
	"fmt"
	"strings"
	"testing"

	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
	"github.com/myk-org/github-webhook-server-sub001/pkg/labels"
)

func TestHandlePullRequestOpenedPipeline(t *testing.T) {
	h := newTestHandler(t, "tox:\n  main: all\nconventional-title: feat,fix\nset-auto-merge-prs:\n- main\n")
	event := &github.PullRequestEvent{Action: github.PullRequestActionOpened, PullRequest: *h.PR}
	if err := h.HandlePullRequest(context.Background(), event); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}

	if h.owners.assignCalls != 1 {
		t.Errorf("Expected reviewers assigned once, got %d", h.owners.assignCalls)
	}
	if len(h.github.assigned) == 0 || h.github.assigned[0][0] != "author" {
		t.Errorf("Expected the author assigned, got %v", h.github.assigned)
	}
	if h.labels.sizeCalls != 1 {
		t.Errorf("Expected one size evaluation, got %d", h.labels.sizeCalls)
	}
	if !contains(h.labels.added, labels.BranchPrefix+"main") {
		t.Errorf("Expected the branch label, added: %v", h.labels.added)
	}
	for _, name := range []string{"can-be-merged", "tox", "conventional-title", "verified"} {
		if !h.checks.has("queued:" + name) {
			t.Errorf("Expected %s queued, transitions: %v", name, h.checks.transitions)
		}
	}
	if !contains(h.labels.removed, labels.Verified) {
		t.Errorf("Expected the verified label reset, removed: %v", h.labels.removed)
	}
	welcomed := false
	for _, comment := range h.github.comments {
		if strings.Contains(comment, welcomeMarker) {
			welcomed = true
		}
	}
	if !welcomed {
		t.Errorf("Expected a welcome comment, got %v", h.github.comments)
	}
	if len(h.github.issuesCreated) != 1 {
		t.Errorf("Expected a tracking issue, got %v", h.github.issuesCreated)
	}
	if len(h.github.autoMerged) != 1 || h.github.autoMerged[0] != "PR_node7" {
		t.Errorf("Expected auto-merge enabled for the base branch, got %v", h.github.autoMerged)
	}
	for _, runner := range []string{"tox", "conventional-title"} {
		if !contains(h.runners.calls, runner) {
			t.Errorf("Expected the %s runner, calls: %v", runner, h.runners.calls)
		}
	}
	if !h.checks.has("failure:" + labels.CanBeMerged) {
		t.Errorf("Expected a failing merge verdict while checks are missing: %v", h.checks.transitions)
	}
}

func TestHandlePullRequestSynchronize(t *testing.T) {
	h := newTestHandler(t, "")
	event := &github.PullRequestEvent{Action: github.PullRequestActionSynchronize, PullRequest: *h.PR}
	if err := h.HandlePullRequest(context.Background(), event); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	for _, prefix := range labels.ReviewPrefixes {
		if !contains(h.labels.removedPrefixes, prefix) {
			t.Errorf("Expected %s cleared, got %v", prefix, h.labels.removedPrefixes)
		}
	}
	if len(h.github.issuesCreated) != 0 {
		t.Errorf("Synchronize must not open a tracking issue: %v", h.github.issuesCreated)
	}
	welcomed := false
	for _, comment := range h.github.comments {
		if strings.Contains(comment, welcomeMarker) {
			welcomed = true
		}
	}
	if welcomed {
		t.Error("Synchronize must not post a welcome comment")
	}
	if len(h.github.autoMerged) != 0 {
		t.Errorf("Synchronize must not enable auto-merge: %v", h.github.autoMerged)
	}
}

func TestSyncMergeState(t *testing.T) {
	var testcases = []struct {
		name      string
		mergeable *bool
		behindBy  int
		added     []string
		removed   []string
	}{
		{
			name:      "conflicting",
			mergeable: boolPtr(false),
			added:     []string{labels.HasConflicts},
		},
		{
			name:      "clean but behind",
			mergeable: boolPtr(true),
			behindBy:  3,
			added:     []string{labels.NeedsRebase},
			removed:   []string{labels.HasConflicts},
		},
		{
			name:      "clean and current",
			mergeable: boolPtr(true),
			removed:   []string{labels.HasConflicts, labels.NeedsRebase},
		},
		{
			name:    "unknown tri-state treated as mergeable",
			removed: []string{labels.HasConflicts, labels.NeedsRebase},
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, "")
			h.github.comparison = &github.CommitsComparison{BehindBy: tc.behindBy}
			view := testPR()
			view.Mergeable = tc.mergeable
			if err := h.syncMergeState(context.Background(), view, h.labels); err != nil {
				t.Fatalf("Didn't expect error: %v", err)
			}
			for _, name := range tc.added {
				if !contains(h.labels.added, name) {
					t.Errorf("Expected %s added, got %v", name, h.labels.added)
				}
			}
			for _, name := range tc.removed {
				if !contains(h.labels.removed, name) {
					t.Errorf("Expected %s removed, got %v", name, h.labels.removed)
				}
			}
			if len(h.labels.added) != len(tc.added) || len(h.labels.removed) != len(tc.removed) {
				t.Errorf("Extra label writes: added %v removed %v", h.labels.added, h.labels.removed)
			}
		})
	}
}

func TestAssignAuthorFallsBackToRootApprover(t *testing.T) {
	h := newTestHandler(t, "")
	h.github.assignErr = github.MissingUsers{Users: []string{"author"}}
	if err := h.assignAuthor(context.Background()); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if len(h.github.assigned) != 2 || h.github.assigned[1][0] != "alice" {
		t.Errorf("Expected the root approver fallback, got %v", h.github.assigned)
	}
}

func TestAssignAuthorNoRootApprovers(t *testing.T) {
	h := newTestHandler(t, "")
	h.github.assignErr = github.MissingUsers{Users: []string{"author"}}
	h.owners.roots = []string{}
	if err := h.assignAuthor(context.Background()); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if len(h.github.assigned) != 1 {
		t.Errorf("Expected no fallback attempt, got %v", h.github.assigned)
	}
}

func TestAssignAuthorOtherErrorPropagates(t *testing.T) {
	h := newTestHandler(t, "")
	h.github.assignErr = fmt.Errorf("api down")
	if err := h.assignAuthor(context.Background()); err == nil {
		t.Error("Expected the error to surface")
	}
}

func TestMaybeEnableAutoMerge(t *testing.T) {
	var testcases = []struct {
		name      string
		localYAML string
		expected  bool
	}{
		{
			name:      "configured base branch",
			localYAML: "set-auto-merge-prs:\n- main\n",
			expected:  true,
		},
		{
			name:      "auto-merge author",
			localYAML: "auto-verified-and-merged-users:\n- AUTHOR\n",
			expected:  true,
		},
		{
			name: "neither",
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, tc.localYAML)
			if err := h.maybeEnableAutoMerge(context.Background()); err != nil {
				t.Fatalf("Didn't expect error: %v", err)
			}
			if tc.expected != (len(h.github.autoMerged) == 1) {
				t.Errorf("Expected enable=%t, got %v", tc.expected, h.github.autoMerged)
			}
		})
	}
}

func TestResetVerified(t *testing.T) {
	h := newTestHandler(t, "")
	if err := h.resetVerified(context.Background()); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if !contains(h.labels.removed, labels.Verified) || !h.checks.has("queued:verified") {
		t.Errorf("Expected the label stripped and the check queued: %v %v", h.labels.removed, h.checks.transitions)
	}

	h = newTestHandler(t, "auto-verified-and-merged-users:\n- author\n")
	if err := h.resetVerified(context.Background()); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if !contains(h.labels.added, labels.Verified) || !h.checks.has("success:verified") {
		t.Errorf("Expected a trusted author verified automatically: %v %v", h.labels.added, h.checks.transitions)
	}

	h = newTestHandler(t, "verified-job: false\n")
	if err := h.resetVerified(context.Background()); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if len(h.labels.added)+len(h.labels.removed)+len(h.checks.transitions) != 0 {
		t.Error("Disabled verified workflow must do nothing")
	}
}

func TestAutoVerifiedCherryPickedPRs(t *testing.T) {
	var testcases = []struct {
		name      string
		author    string
		localYAML string
		label     string
		headRef   string
		expected  bool
	}{
		{
			name:      "bot cherry-pick by label",
			author:    "hook-bot",
			localYAML: "auto-verify-cherry-picked-prs: true\n",
			label:     labels.CherryPicked,
			expected:  true,
		},
		{
			name:      "bot cherry-pick by branch prefix",
			author:    "hook-bot",
			localYAML: "auto-verify-cherry-picked-prs: true\n",
			headRef:   "cherry-picked-v1.18-abc",
			expected:  true,
		},
		{
			name:   "bot cherry-pick with the policy off",
			author: "hook-bot",
			label:  labels.CherryPicked,
		},
		{
			name:      "human cherry-pick",
			author:    "author",
			localYAML: "auto-verify-cherry-picked-prs: true\n",
			label:     labels.CherryPicked,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, tc.localYAML)
			h.PR.User.Login = tc.author
			if tc.label != "" {
				addLabels(h.PR, tc.label)
			}
			if tc.headRef != "" {
				h.PR.Head.Ref = tc.headRef
			}
			if got := h.autoVerified(); got != tc.expected {
				t.Errorf("Expected %t, got %t", tc.expected, got)
			}
		})
	}
}

func TestHandleEditedTitle(t *testing.T) {
	titleChange := &struct {
		Title *struct {
			From string `json:"from"`
		} `json:"title,omitempty"`
	}{Title: &struct {
		From string `json:"from"`
	}{From: "old title"}}

	t.Run("wip prefix adds the label", func(t *testing.T) {
		h := newTestHandler(t, "")
		h.PR.Title = "WIP: Add feature"
		event := &github.PullRequestEvent{Action: github.PullRequestActionEdited, Changes: titleChange}
		if err := h.HandlePullRequest(context.Background(), event); err != nil {
			t.Fatalf("Didn't expect error: %v", err)
		}
		if !contains(h.labels.added, labels.WIP) {
			t.Errorf("Expected the wip label, added: %v", h.labels.added)
		}
	})
	t.Run("plain title removes the label and reruns the check", func(t *testing.T) {
		h := newTestHandler(t, "conventional-title: feat,fix\n")
		event := &github.PullRequestEvent{Action: github.PullRequestActionEdited, Changes: titleChange}
		if err := h.HandlePullRequest(context.Background(), event); err != nil {
			t.Fatalf("Didn't expect error: %v", err)
		}
		if !contains(h.labels.removed, labels.WIP) {
			t.Errorf("Expected the wip label removed, removed: %v", h.labels.removed)
		}
		if !contains(h.runners.calls, "conventional-title") {
			t.Errorf("Expected the title check rerun, calls: %v", h.runners.calls)
		}
	})
	t.Run("body-only edit does nothing", func(t *testing.T) {
		h := newTestHandler(t, "")
		event := &github.PullRequestEvent{Action: github.PullRequestActionEdited}
		if err := h.HandlePullRequest(context.Background(), event); err != nil {
			t.Fatalf("Didn't expect error: %v", err)
		}
		if len(h.labels.added)+len(h.labels.removed) != 0 {
			t.Error("A body edit must not touch labels")
		}
	})
}

func TestHandleMerged(t *testing.T) {
	oldDelay := mergeStateSweepDelay
	mergeStateSweepDelay = 0
	defer func() { mergeStateSweepDelay = oldDelay }()

	h := newTestHandler(t, "container:\n  repository: quay.io/org/demo\n  tag: latest\n")
	h.PR.Merged = true
	addLabels(h.PR, labels.CherryPickPrefix+"v1.18", labels.CherryPickPrefix+"v1.19")
	addLabels(h.PR, "tracking") // unrelated label must not trigger anything

	other := testPR()
	other.Number = 8
	other.Mergeable = boolPtr(false)
	h.github.prs[8] = other
	h.github.openPRs = []github.PullRequest{*h.PR, *other}

	// Body of the tracking issue the snapshot knows for PR 7.
	h.Snapshot.OpenIssues = []github.SnapshotIssue{{Number: 900, Body: trackingIssueBody(7)}}

	event := &github.PullRequestEvent{
		Action:      github.PullRequestActionClosed,
		PullRequest: *h.PR,
		Sender:      github.User{Login: "merger"},
	}
	if err := h.HandlePullRequest(context.Background(), event); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}

	for _, call := range []string{
		"cherry-pick:v1.18:merger",
		"cherry-pick:v1.19:merger",
		"delete-tag:pr-7",
		"build-container:push:merged",
	} {
		if !contains(h.runners.calls, call) {
			t.Errorf("Expected %s, calls: %v", call, h.runners.calls)
		}
	}
	if len(h.github.issuesClosed) != 1 || h.github.issuesClosed[0] != 900 {
		t.Errorf("Expected the tracking issue closed, got %v", h.github.issuesClosed)
	}
	// The sweep saw PR 8 conflicting.
	if !contains(h.labels.added, labels.HasConflicts) {
		t.Errorf("Expected the sweep to flag PR 8, added: %v", h.labels.added)
	}
}

func TestHandleClosedUnmerged(t *testing.T) {
	h := newTestHandler(t, "container:\n  repository: quay.io/org/demo\n")
	event := &github.PullRequestEvent{Action: github.PullRequestActionClosed, PullRequest: *h.PR}
	if err := h.HandlePullRequest(context.Background(), event); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if !contains(h.runners.calls, "delete-tag:pr-7") {
		t.Errorf("Expected the PR tag cleaned up, calls: %v", h.runners.calls)
	}
	for _, call := range h.runners.calls {
		if strings.HasPrefix(call, "cherry-pick:") || strings.HasPrefix(call, "build-container:") {
			t.Errorf("An abandoned PR must not release anything: %v", h.runners.calls)
		}
	}
}

func TestHandleLabelChange(t *testing.T) {
	var testcases = []struct {
		name  string
		label string

		evaluated     bool
		verifiedCheck string
	}{
		{
			name:  "can-be-merged write is ignored",
			label: labels.CanBeMerged,
		},
		{
			name:          "verified added",
			label:         labels.Verified,
			evaluated:     true,
			verifiedCheck: "success:verified",
		},
		{
			name:      "hold",
			label:     labels.Hold,
			evaluated: true,
		},
		{
			name:      "wip",
			label:     labels.WIP,
			evaluated: true,
		},
		{
			name:      "approved-by an approver",
			label:     labels.ApprovedByPrefix + "alice",
			evaluated: true,
		},
		{
			name:  "approved-by a bystander",
			label: labels.ApprovedByPrefix + "stranger",
		},
		{
			name:  "commented-by never gates",
			label: labels.CommentedByPrefix + "alice",
		},
		{
			name:  "unrelated label",
			label: "documentation",
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, "")
			addLabels(h.PR, labels.ApprovedByPrefix+"alice")
			h.github.checkRuns = &github.CheckRunList{CheckRuns: []github.CheckRun{
				{ID: 1, Name: "verified", Status: "completed", Conclusion: "success"},
			}}
			event := &github.PullRequestEvent{
				Action: github.PullRequestActionLabeled,
				Label:  github.Label{Name: tc.label},
			}
			if err := h.HandlePullRequest(context.Background(), event); err != nil {
				t.Fatalf("Didn't expect error: %v", err)
			}
			if tc.evaluated != h.checks.has("in_progress:"+labels.CanBeMerged) {
				t.Errorf("Expected evaluation=%t, transitions: %v", tc.evaluated, h.checks.transitions)
			}
			if tc.verifiedCheck != "" && !h.checks.has(tc.verifiedCheck) {
				t.Errorf("Expected %s, transitions: %v", tc.verifiedCheck, h.checks.transitions)
			}
		})
	}
}

func TestHandleLabelChangeUnlabeledVerified(t *testing.T) {
	h := newTestHandler(t, "")
	addLabels(h.PR, labels.ApprovedByPrefix+"alice")
	event := &github.PullRequestEvent{
		Action: github.PullRequestActionUnlabeled,
		Label:  github.Label{Name: labels.Verified},
	}
	if err := h.HandlePullRequest(context.Background(), event); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if !h.checks.has("queued:verified") {
		t.Errorf("Removing the label must queue the check again: %v", h.checks.transitions)
	}
}
