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
)

// trackingIssueBody renders the body of a tracking issue. The "Number:"
// line is the lookup key, so its format never changes.
func trackingIssueBody(number int) string {
	return fmt.Sprintf("[Auto generated]\nNumber: [#%d]", number)
}

// findTrackingIssue matches an open issue to this PR by the number line in
// its generated body.
func (h *Handler) findTrackingIssue() (int, bool) {
	key := fmt.Sprintf("Number: [#%d]", h.PR.Number)
	for _, issue := range h.Snapshot.OpenIssues {
		if strings.Contains(issue.Body, key) {
			return issue.Number, true
		}
	}
	return 0, false
}

// ensureTrackingIssue opens the companion issue for a new PR when the
// repository asks for one. PRs from auto-merged bot users never get one.
func (h *Handler) ensureTrackingIssue(ctx context.Context) error {
	if !h.Resolver.CreateIssueForNewPR() {
		return nil
	}
	author := h.PR.User.Login
	for _, user := range h.Resolver.AutoVerifiedAndMergedUsers() {
		if strings.EqualFold(user, author) {
			return nil
		}
	}
	if number, found := h.findTrackingIssue(); found {
		h.Logger.Debugf("Tracking issue %d already exists.", number)
		return nil
	}
	title := fmt.Sprintf("%s - %d", h.PR.Title, h.PR.Number)
	body := trackingIssueBody(h.PR.Number)
	_, err := h.GitHub.CreateIssue(h.Org, h.Repo, title, body, []string{author})
	if err == nil {
		return nil
	}
	// Assigning fails for authors without repository access; the issue
	// itself still has to exist.
	h.Logger.WithError(err).Debugf("Retrying tracking issue without assignee %s.", author)
	_, err = h.GitHub.CreateIssue(h.Org, h.Repo, title, body, nil)
	return err
}

// closeTrackingIssue closes the companion issue when the PR is done, leaving
// a comment naming the reason.
func (h *Handler) closeTrackingIssue(ctx context.Context) error {
	number, found := h.findTrackingIssue()
	if !found {
		return nil
	}
	comment := fmt.Sprintf("Closing; the tracked PR #%d was closed.", h.PR.Number)
	if err := h.GitHub.CreateComment(h.Org, h.Repo, number, comment); err != nil {
		h.Logger.WithError(err).Warnf("Could not comment on tracking issue %d.", number)
	}
	return h.GitHub.CloseIssue(h.Org, h.Repo, number)
}
