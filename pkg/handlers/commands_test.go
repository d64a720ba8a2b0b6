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
	"reflect"
	"strings"
	"testing"

	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
	"github.com/myk-org/github-webhook-server-sub001/pkg/labels"
)

func TestParseCommands(t *testing.T) {
	var testcases = []struct {
		name     string
		body     string
		expected []Command
	}{
		{
			name:     "single command",
			body:     "/retest",
			expected: []Command{{Name: "retest"}},
		},
		{
			name:     "command with args",
			body:     "/cherry-pick v1.18 v1.19",
			expected: []Command{{Name: "cherry-pick", Args: []string{"v1.18", "v1.19"}}},
		},
		{
			name: "one command per line",
			body: "/wip\nsome prose in between\n/hold cancel",
			expected: []Command{
				{Name: "wip"},
				{Name: "hold", Args: []string{"cancel"}},
			},
		},
		{
			name:     "leading whitespace",
			body:     "   /retest all",
			expected: []Command{{Name: "retest", Args: []string{"all"}}},
		},
		{
			name:     "case folded name",
			body:     "/ReTest",
			expected: []Command{{Name: "retest"}},
		},
		{
			name: "not at line start",
			body: "please run /retest",
		},
		{
			name: "bare slash",
			body: "/",
		},
		{
			name: "plain prose",
			body: "looks good to me",
		},
	}
	for _, tc := range testcases {
		if got := ParseCommands(tc.body); !reflect.DeepEqual(got, tc.expected) {
			t.Errorf("%s: expected %+v, got %+v", tc.name, tc.expected, got)
		}
	}
}

func TestIsCancel(t *testing.T) {
	var testcases = []struct {
		command  Command
		expected bool
	}{
		{Command{Name: "hold", Args: []string{"cancel"}}, true},
		{Command{Name: "hold", Args: []string{"CANCEL"}}, true},
		{Command{Name: "hold"}, false},
		{Command{Name: "cherry-pick", Args: []string{"cancel", "v1.18"}}, false},
	}
	for _, tc := range testcases {
		if got := tc.command.IsCancel(); got != tc.expected {
			t.Errorf("%+v: expected %t, got %t", tc.command, tc.expected, got)
		}
	}
}

func commentEvent(sender, body string) *github.IssueCommentEvent {
	return &github.IssueCommentEvent{
		Action: github.IssueCommentActionCreated,
		Issue:  github.Issue{Number: 7, PullRequest: &struct{}{}},
		Comment: github.IssueComment{
			ID:   42,
			User: github.User{Login: sender},
			Body: body,
		},
	}
}

func TestHandleIssueCommentSkips(t *testing.T) {
	var testcases = []struct {
		name  string
		event *github.IssueCommentEvent
	}{
		{
			name: "edited action",
			event: &github.IssueCommentEvent{
				Action:  github.IssueCommentActionEdited,
				Issue:   github.Issue{Number: 7, PullRequest: &struct{}{}},
				Comment: github.IssueComment{User: github.User{Login: "alice"}, Body: "/hold"},
			},
		},
		{
			name: "plain issue",
			event: &github.IssueCommentEvent{
				Action:  github.IssueCommentActionCreated,
				Issue:   github.Issue{Number: 7},
				Comment: github.IssueComment{User: github.User{Login: "alice"}, Body: "/hold"},
			},
		},
		{
			name:  "own comment",
			event: commentEvent("hook-bot", "/hold"),
		},
		{
			name:  "unknown command",
			event: commentEvent("alice", "/make-coffee"),
		},
		{
			name:  "no command at all",
			event: commentEvent("alice", "nice work"),
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, "")
			if err := h.HandleIssueComment(context.Background(), tc.event); err != nil {
				t.Fatalf("Didn't expect error: %v", err)
			}
			if len(h.github.reactions) != 0 || len(h.labels.added) != 0 {
				t.Errorf("Nothing should have run: reactions %v, labels %v", h.github.reactions, h.labels.added)
			}
		})
	}
}

func TestHandleIssueCommentReactsAndRuns(t *testing.T) {
	h := newTestHandler(t, "")
	if err := h.HandleIssueComment(context.Background(), commentEvent("alice", "/hold")); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if len(h.github.reactions) != 1 || h.github.reactions[0] != 42 {
		t.Errorf("Expected a reaction on comment 42, got %v", h.github.reactions)
	}
	if !contains(h.labels.added, labels.Hold) {
		t.Errorf("Expected the hold label, added: %v", h.labels.added)
	}
}

func TestFilterDraftCommands(t *testing.T) {
	var testcases = []struct {
		name      string
		localYAML string
		draft     bool

		runnable []string
		blocked  bool
	}{
		{
			name:     "not a draft",
			runnable: []string{"retest", "hold"},
		},
		{
			name:    "draft with policy unset blocks everything",
			draft:   true,
			blocked: true,
		},
		{
			name:      "draft with empty list allows everything",
			localYAML: "allow-commands-on-draft-prs: []\n",
			draft:     true,
			runnable:  []string{"retest", "hold"},
		},
		{
			name:      "draft with explicit list",
			localYAML: "allow-commands-on-draft-prs:\n- hold\n",
			draft:     true,
			runnable:  []string{"hold"},
			blocked:   true,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, tc.localYAML)
			h.PR.Draft = tc.draft
			commands := []Command{{Name: "retest"}, {Name: "hold"}}
			got, err := h.filterDraftCommands(commands)
			if err != nil {
				t.Fatalf("Didn't expect error: %v", err)
			}
			var names []string
			for _, command := range got {
				names = append(names, command.Name)
			}
			if !reflect.DeepEqual(names, tc.runnable) {
				t.Errorf("Expected runnable %v, got %v", tc.runnable, names)
			}
			if tc.blocked != (len(h.github.comments) == 1) {
				t.Errorf("Expected blocked-notice=%t, comments: %v", tc.blocked, h.github.comments)
			}
		})
	}
}

func TestAuthorizeCommandsCherryPickExempt(t *testing.T) {
	h := newTestHandler(t, "")
	h.owners.commandersValid = false
	commands := []Command{
		{Name: CommandRetest, Args: []string{"all"}},
		{Name: CommandCherryPick, Args: []string{"v1.18"}},
	}
	got, err := h.authorizeCommands(commands, "stranger")
	if err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if len(got) != 1 || got[0].Name != CommandCherryPick {
		t.Errorf("Only cherry-pick should survive, got %+v", got)
	}
}

func TestAuthorizeCommandsValidUser(t *testing.T) {
	h := newTestHandler(t, "")
	commands := []Command{{Name: CommandRetest}, {Name: CommandHold}}
	got, err := h.authorizeCommands(commands, "alice")
	if err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected both commands, got %+v", got)
	}
}

func TestCommandWIP(t *testing.T) {
	var testcases = []struct {
		name    string
		title   string
		command Command

		labelAdded   bool
		labelRemoved bool
		newTitle     string
	}{
		{
			name:       "set",
			title:      "Add feature",
			command:    Command{Name: CommandWIP},
			labelAdded: true,
			newTitle:   "WIP: Add feature",
		},
		{
			name:       "set with prefix already there",
			title:      "WIP: Add feature",
			command:    Command{Name: CommandWIP},
			labelAdded: true,
		},
		{
			name:         "cancel",
			title:        "WIP: Add feature",
			command:      Command{Name: CommandWIP, Args: []string{"cancel"}},
			labelRemoved: true,
			newTitle:     "Add feature",
		},
		{
			name:         "cancel without prefix",
			title:        "Add feature",
			command:      Command{Name: CommandWIP, Args: []string{"cancel"}},
			labelRemoved: true,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, "")
			h.PR.Title = tc.title
			if err := h.commandWIP(context.Background(), tc.command); err != nil {
				t.Fatalf("Didn't expect error: %v", err)
			}
			if tc.labelAdded != contains(h.labels.added, labels.WIP) {
				t.Errorf("Label added: expected %t, added %v", tc.labelAdded, h.labels.added)
			}
			if tc.labelRemoved != contains(h.labels.removed, labels.WIP) {
				t.Errorf("Label removed: expected %t, removed %v", tc.labelRemoved, h.labels.removed)
			}
			if tc.newTitle == "" {
				if len(h.github.titles) != 0 {
					t.Errorf("Did not expect a title update, got %v", h.github.titles)
				}
				return
			}
			if len(h.github.titles) != 1 || h.github.titles[0] != tc.newTitle {
				t.Errorf("Expected title %q, got %v", tc.newTitle, h.github.titles)
			}
			if h.PR.Title != tc.newTitle {
				t.Errorf("In-memory PR title not synced: %q", h.PR.Title)
			}
		})
	}
}

func TestCommandHold(t *testing.T) {
	h := newTestHandler(t, "")
	if err := h.commandHold(context.Background(), Command{Name: CommandHold}, "stranger"); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if len(h.labels.added) != 0 {
		t.Errorf("A non-approver must not hold, added: %v", h.labels.added)
	}
	if len(h.github.comments) != 1 || !strings.Contains(h.github.comments[0], "not an approver") {
		t.Errorf("Expected a denial comment, got %v", h.github.comments)
	}

	if err := h.commandHold(context.Background(), Command{Name: CommandHold}, "alice"); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if !contains(h.labels.added, labels.Hold) {
		t.Errorf("Expected the hold label, added: %v", h.labels.added)
	}

	if err := h.commandHold(context.Background(), Command{Name: CommandHold, Args: []string{"cancel"}}, "alice"); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if !contains(h.labels.removed, labels.Hold) {
		t.Errorf("Expected the hold label removed, removed: %v", h.labels.removed)
	}
}

func TestCommandVerified(t *testing.T) {
	h := newTestHandler(t, "verified-job: false\n")
	if err := h.commandVerified(context.Background(), Command{Name: CommandVerified}); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if len(h.labels.added) != 0 || len(h.checks.transitions) != 0 {
		t.Error("Disabled verified workflow must ignore the command")
	}

	h = newTestHandler(t, "")
	if err := h.commandVerified(context.Background(), Command{Name: CommandVerified}); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if !contains(h.labels.added, labels.Verified) || !h.checks.has("success:verified") {
		t.Errorf("Expected label plus green check: %v %v", h.labels.added, h.checks.transitions)
	}

	if err := h.commandVerified(context.Background(), Command{Name: CommandVerified, Args: []string{"cancel"}}); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if !contains(h.labels.removed, labels.Verified) || !h.checks.has("queued:verified") {
		t.Errorf("Expected label removed plus queued check: %v %v", h.labels.removed, h.checks.transitions)
	}
}

func TestCommandAutoMerge(t *testing.T) {
	h := newTestHandler(t, "")
	if err := h.commandAutoMerge(context.Background(), Command{Name: CommandAutoMerge}, "stranger"); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if len(h.github.autoMerged) != 0 {
		t.Errorf("A bystander must not enable auto-merge: %v", h.github.autoMerged)
	}
	if len(h.github.comments) != 1 {
		t.Errorf("Expected a denial comment, got %v", h.github.comments)
	}

	if err := h.commandAutoMerge(context.Background(), Command{Name: CommandAutoMerge}, "alice"); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if len(h.github.autoMerged) != 1 || h.github.autoMerged[0] != "PR_node7" {
		t.Errorf("Expected auto-merge on the PR node, got %v", h.github.autoMerged)
	}
	if !contains(h.labels.added, labels.AutoMerge) {
		t.Errorf("Expected the automerge label, added: %v", h.labels.added)
	}

	if err := h.commandAutoMerge(context.Background(), Command{Name: CommandAutoMerge, Args: []string{"cancel"}}, "alice"); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if !contains(h.labels.removed, labels.AutoMerge) {
		t.Errorf("Expected the automerge label removed, removed: %v", h.labels.removed)
	}
}

func TestCommandCherryPick(t *testing.T) {
	t.Run("usage", func(t *testing.T) {
		h := newTestHandler(t, "")
		if err := h.commandCherryPick(context.Background(), Command{Name: CommandCherryPick}, "alice"); err != nil {
			t.Fatalf("Didn't expect error: %v", err)
		}
		if len(h.github.comments) != 1 || !strings.Contains(h.github.comments[0], "Usage:") {
			t.Errorf("Expected usage help, got %v", h.github.comments)
		}
	})
	t.Run("unknown branch", func(t *testing.T) {
		h := newTestHandler(t, "")
		if err := h.commandCherryPick(context.Background(), Command{Name: CommandCherryPick, Args: []string{"v9.99"}}, "alice"); err != nil {
			t.Fatalf("Didn't expect error: %v", err)
		}
		if len(h.github.comments) != 1 || !strings.Contains(h.github.comments[0], "does not exist") {
			t.Errorf("Expected a missing-branch comment, got %v", h.github.comments)
		}
	})
	t.Run("open PR defers via label", func(t *testing.T) {
		h := newTestHandler(t, "")
		h.github.branches = map[string]bool{"v1.18": true}
		if err := h.commandCherryPick(context.Background(), Command{Name: CommandCherryPick, Args: []string{"v1.18"}}, "alice"); err != nil {
			t.Fatalf("Didn't expect error: %v", err)
		}
		if !contains(h.labels.added, labels.CherryPickPrefix+"v1.18") {
			t.Errorf("Expected the deferred label, added: %v", h.labels.added)
		}
		if len(h.runners.calls) != 0 {
			t.Errorf("Nothing should run before the merge: %v", h.runners.calls)
		}
		if len(h.github.comments) != 1 || !strings.Contains(h.github.comments[0], "when this PR is merged") {
			t.Errorf("Expected the deferral notice, got %v", h.github.comments)
		}
	})
	t.Run("merged PR picks right away", func(t *testing.T) {
		h := newTestHandler(t, "")
		h.github.branches = map[string]bool{"v1.18": true}
		h.PR.Merged = true
		if err := h.commandCherryPick(context.Background(), Command{Name: CommandCherryPick, Args: []string{"v1.18"}}, "carol"); err != nil {
			t.Fatalf("Didn't expect error: %v", err)
		}
		if !contains(h.runners.calls, "cherry-pick:v1.18:carol") {
			t.Errorf("Expected an immediate cherry-pick, calls: %v", h.runners.calls)
		}
	})
}

func TestCommandRetest(t *testing.T) {
	const localYAML = "tox:\n  main: all\npre-commit: true\n"

	t.Run("usage lists configured checks", func(t *testing.T) {
		h := newTestHandler(t, localYAML)
		if err := h.commandRetest(context.Background(), Command{Name: CommandRetest}); err != nil {
			t.Fatalf("Didn't expect error: %v", err)
		}
		if len(h.github.comments) != 1 || !strings.Contains(h.github.comments[0], "tox, pre-commit") {
			t.Errorf("Expected usage naming the checks, got %v", h.github.comments)
		}
	})
	t.Run("all", func(t *testing.T) {
		h := newTestHandler(t, localYAML)
		if err := h.commandRetest(context.Background(), Command{Name: CommandRetest, Args: []string{"all"}}); err != nil {
			t.Fatalf("Didn't expect error: %v", err)
		}
		for _, name := range []string{"tox", "pre-commit"} {
			if !h.checks.has("queued:" + name) {
				t.Errorf("Expected %s queued, transitions: %v", name, h.checks.transitions)
			}
			if !contains(h.runners.calls, name) {
				t.Errorf("Expected %s to run, calls: %v", name, h.runners.calls)
			}
		}
	})
	t.Run("single check", func(t *testing.T) {
		h := newTestHandler(t, localYAML)
		if err := h.commandRetest(context.Background(), Command{Name: CommandRetest, Args: []string{"tox"}}); err != nil {
			t.Fatalf("Didn't expect error: %v", err)
		}
		if !reflect.DeepEqual(h.runners.calls, []string{"tox"}) {
			t.Errorf("Expected only tox, calls: %v", h.runners.calls)
		}
	})
	t.Run("unknown check", func(t *testing.T) {
		h := newTestHandler(t, localYAML)
		if err := h.commandRetest(context.Background(), Command{Name: CommandRetest, Args: []string{"spellcheck"}}); err != nil {
			t.Fatalf("Didn't expect error: %v", err)
		}
		if len(h.github.comments) != 1 || !strings.Contains(h.github.comments[0], "No configured check named spellcheck") {
			t.Errorf("Expected an unknown-check comment, got %v", h.github.comments)
		}
		if len(h.runners.calls) != 0 {
			t.Errorf("Nothing should have run: %v", h.runners.calls)
		}
	})
}

func TestCommandAssignReviewer(t *testing.T) {
	h := newTestHandler(t, "")
	if err := h.commandAssignReviewer(context.Background(), Command{Name: CommandAssignReviewer, Args: []string{"@stranger"}}); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if len(h.github.reviewRequests) != 0 {
		t.Errorf("A non-contributor must not be requested: %v", h.github.reviewRequests)
	}
	if len(h.github.comments) != 1 || !strings.Contains(h.github.comments[0], "not a contributor") {
		t.Errorf("Expected a refusal comment, got %v", h.github.comments)
	}

	if err := h.commandAssignReviewer(context.Background(), Command{Name: CommandAssignReviewer, Args: []string{"@bob"}}); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if len(h.github.reviewRequests) != 1 || !reflect.DeepEqual(h.github.reviewRequests[0], []string{"bob"}) {
		t.Errorf("Expected a review request for bob, got %v", h.github.reviewRequests)
	}
}

func TestCommandAddAllowedUser(t *testing.T) {
	h := newTestHandler(t, "")
	if err := h.commandAddAllowedUser(context.Background(), Command{Name: CommandAddAllowedUser, Args: []string{"@newbie"}}, "stranger"); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if len(h.github.comments) != 1 || !strings.Contains(h.github.comments[0], "may not grant") {
		t.Errorf("Expected a denial, got %v", h.github.comments)
	}

	if err := h.commandAddAllowedUser(context.Background(), Command{Name: CommandAddAllowedUser, Args: []string{"@newbie"}}, "alice"); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if len(h.github.comments) != 2 || !strings.Contains(h.github.comments[1], "newbie is now allowed") {
		t.Errorf("Expected the grant comment, got %v", h.github.comments)
	}
}

func TestProjectionCommands(t *testing.T) {
	h := newTestHandler(t, "")
	if err := h.runCommand(context.Background(), Command{Name: CommandLGTM}, "bob"); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if err := h.runCommand(context.Background(), Command{Name: CommandApprove, Args: []string{"cancel"}}, "alice"); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	expected := []reviewedByCall{
		{labels.StateLGTM, labels.ActionAdd, "bob"},
		{labels.StateApprove, labels.ActionDelete, "alice"},
	}
	if !reflect.DeepEqual(h.labels.reviewedBy, expected) {
		t.Errorf("Expected %+v, got %+v", expected, h.labels.reviewedBy)
	}
}
