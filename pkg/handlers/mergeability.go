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

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/myk-org/github-webhook-server-sub001/pkg/checks"
	"github.com/myk-org/github-webhook-server-sub001/pkg/labels"
)

// CheckCanBeMerged computes the merge verdict for the delivery's PR and
// publishes it twice: as the can-be-merged label and as the can-be-merged
// check run, whose output lists every blocking reason.
func (h *Handler) CheckCanBeMerged(ctx context.Context) error {
	if h.PR.Merged {
		h.Logger.Debug("PR already merged, skipping merge evaluation.")
		return nil
	}
	if err := h.Checks.SetInProgress(ctx, checks.CanBeMerged); err != nil {
		h.Logger.WithError(err).Warnf("Could not set %s in progress.", checks.CanBeMerged)
	}
	failures, err := h.mergeFailures(ctx)
	if err != nil {
		if setErr := h.Checks.SetFailure(ctx, checks.CanBeMerged, "Merge eligibility could not be determined, re-run with /check-can-merge."); setErr != nil {
			h.Logger.WithError(setErr).Warnf("Could not conclude %s.", checks.CanBeMerged)
		}
		return err
	}
	if len(failures) == 0 {
		if err := h.Labels.Add(ctx, labels.CanBeMerged); err != nil {
			return err
		}
		return h.Checks.SetSuccess(ctx, checks.CanBeMerged, "")
	}
	if err := h.Labels.Remove(ctx, labels.CanBeMerged); err != nil {
		return err
	}
	return h.Checks.SetFailure(ctx, checks.CanBeMerged, strings.Join(failures, "\n"))
}

// mergeFailures accumulates every reason the PR cannot merge, in a fixed
// order: mergeability, running checks, blocking labels, failed or absent
// checks, required labels, review state, approvals.
func (h *Handler) mergeFailures(ctx context.Context) ([]string, error) {
	fresh, err := h.GitHub.GetPullRequest(h.Org, h.Repo, h.PR.Number)
	if err != nil {
		return nil, fmt.Errorf("could not re-read PR: %w", err)
	}
	required, err := h.requiredChecks()
	if err != nil {
		return nil, err
	}
	runs, err := h.GitHub.ListCheckRuns(h.Org, h.Repo, h.PR.Head.SHA)
	if err != nil {
		return nil, fmt.Errorf("could not list check runs: %w", err)
	}
	combined, err := h.GitHub.GetCombinedStatus(h.Org, h.Repo, h.PR.Head.SHA)
	if err != nil {
		return nil, fmt.Errorf("could not read commit statuses: %w", err)
	}
	state := required.Evaluate(runs.CheckRuns, combined.Statuses)

	var failures []string
	if fresh.Mergeable != nil && !*fresh.Mergeable {
		failures = append(failures, "PR is not mergeable")
	}
	if len(state.InProgress) > 0 {
		failures = append(failures, "Some required check runs in progress: "+strings.Join(state.InProgress, ", "))
	}
	if h.PR.HasLabel(labels.Hold) {
		failures = append(failures, "Hold label exists.")
	}
	if h.PR.HasLabel(labels.WIP) {
		failures = append(failures, "WIP label exists.")
	}
	if len(state.Failed) > 0 {
		failures = append(failures, "Some check runs failed: "+strings.Join(state.Failed, ", "))
	}
	if len(state.Missing) > 0 {
		failures = append(failures, "Some check runs not started: "+strings.Join(state.Missing, ", "))
	}
	if missing := h.missingRequiredLabels(); len(missing) > 0 {
		failures = append(failures, "Missing required labels: "+strings.Join(missing, ", "))
	}
	if h.changesRequestedByApprover() {
		failures = append(failures, "PR has changed requests from approvers")
	}
	failures = append(failures, h.approvalFailures()...)
	return failures, nil
}

// missingRequiredLabels returns the configured can-be-merged-required-labels
// the PR does not carry.
func (h *Handler) missingRequiredLabels() []string {
	var missing []string
	for _, name := range h.Resolver.CanBeMergedRequiredLabels() {
		if !h.PR.HasLabel(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// changesRequestedByApprover reports whether any user with approval power
// currently holds a changes-requested-by label on the PR.
func (h *Handler) changesRequestedByApprover() bool {
	requested := labels.UsersWithPrefix(labels.ChangesRequestedByPrefix, labelNames(h.PR))
	if len(requested) == 0 {
		return false
	}
	approvers := loweredSet(h.Owners.AllPullRequestApprovers()).Union(loweredSet(h.Owners.RootApprovers()))
	for _, user := range requested {
		if approvers.Has(user) {
			return true
		}
	}
	return false
}

// approvalFailures computes the approved-by and lgtm-by requirements.
//
// An approval from any root approver satisfies every OWNERS directory at
// once. Otherwise each directory whose approver set intersects the
// approving users is considered covered and stops asking for approvers.
// The lgtm threshold counts distinct eligible users; a pool smaller than
// the threshold is satisfied once every pool member weighed in.
func (h *Handler) approvalFailures() []string {
	names := labelNames(h.PR)
	approvedUsers := sets.New(labels.UsersWithPrefix(labels.ApprovedByPrefix, names)...)
	lgtmUsers := labels.UsersWithPrefix(labels.LGTMByPrefix, names)
	rootApprovers := loweredSet(h.Owners.RootApprovers())

	missing := loweredSet(h.Owners.AllPullRequestApprovers())
	if rootApprovers.Intersection(approvedUsers).Len() > 0 {
		missing = sets.New[string]()
	} else {
		for _, entry := range h.Owners.DataForChangedFiles() {
			dirApprovers := loweredSet(entry.Approvers)
			if dirApprovers.Intersection(approvedUsers).Len() > 0 {
				missing = missing.Difference(dirApprovers)
			}
		}
	}

	pool := loweredSet(h.Owners.AllPullRequestReviewers()).
		Union(rootApprovers).
		Union(loweredSet(h.Owners.RootReviewers()))
	pool.Delete(strings.ToLower(h.PR.User.Login))
	count := 0
	for _, user := range lgtmUsers {
		if pool.Has(user) {
			count++
		}
	}
	minimum := h.Resolver.MinimumLGTM()

	var failures []string
	if missing.Len() > 0 {
		failures = append(failures, "Missing approved from approvers: "+strings.Join(sets.List(missing), ", "))
	}
	if count < minimum && count < pool.Len() {
		failures = append(failures, fmt.Sprintf(
			"Missing lgtm from reviewers. Minimum %d required, (%d given). Reviewers: %s",
			minimum, count, strings.Join(sets.List(pool), ", "),
		))
	}
	return failures
}

func loweredSet(users []string) sets.Set[string] {
	set := sets.New[string]()
	for _, user := range users {
		set.Insert(strings.ToLower(user))
	}
	return set
}
