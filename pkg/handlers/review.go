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
	"strings"

	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
	"github.com/myk-org/github-webhook-server-sub001/pkg/labels"
)

// HandleReview projects a review onto the per-user review-state labels. The
// labeled deliveries those writes fire carry the merge re-evaluation, so
// this handler never computes eligibility itself.
func (h *Handler) HandleReview(ctx context.Context, event *github.ReviewEvent) error {
	return h.step(StepReviewHandler, func() error {
		reviewer := event.Review.User.Login
		switch event.Action {
		case github.ReviewActionSubmitted:
			if err := h.projectReview(ctx, event.Review, reviewer); err != nil {
				return err
			}
		case github.ReviewActionDismissed:
			for _, state := range []labels.ReviewState{labels.StateApproved, labels.StateApprove} {
				if err := h.Labels.ManageReviewedBy(ctx, state, labels.ActionDelete, reviewer); err != nil {
					return err
				}
			}
		default:
			h.Logger.Debugf("Ignoring pull_request_review action %q.", event.Action)
			return nil
		}
		if h.NotifyOracle != nil {
			h.NotifyOracle("pull_request_review", h.PR.HTMLURL)
		}
		return nil
	})
}

// projectReview maps one submitted review to label writes. An approving
// review counts twice: as the reviewer's lgtm and, when the reviewer is an
// approver, as an approval. Webhook payloads carry the state lowercase, the
// REST API uppercase, so the comparison folds case.
func (h *Handler) projectReview(ctx context.Context, review github.Review, reviewer string) error {
	switch strings.ToLower(string(review.State)) {
	case "approved":
		if err := h.Labels.ManageReviewedBy(ctx, labels.StateApproved, labels.ActionAdd, reviewer); err != nil {
			return err
		}
		return h.Labels.ManageReviewedBy(ctx, labels.StateApprove, labels.ActionAdd, reviewer)
	case "changes_requested":
		return h.Labels.ManageReviewedBy(ctx, labels.StateChangesRequested, labels.ActionAdd, reviewer)
	case "commented":
		if err := h.Labels.ManageReviewedBy(ctx, labels.StateCommented, labels.ActionAdd, reviewer); err != nil {
			return err
		}
		return h.approveFromBody(ctx, review, reviewer)
	default:
		h.Logger.Debugf("Ignoring review state %q.", review.State)
		return nil
	}
}

// approveFromBody honors an /approve written into a comment review body.
// Review bodies never produce issue_comment deliveries, so the command table
// cannot catch it.
func (h *Handler) approveFromBody(ctx context.Context, review github.Review, reviewer string) error {
	for _, line := range strings.Split(review.Body, "\n") {
		if strings.TrimSpace(line) == "/approve" {
			return h.Labels.ManageReviewedBy(ctx, labels.StateApprove, labels.ActionAdd, reviewer)
		}
	}
	return nil
}
