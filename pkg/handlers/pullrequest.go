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
	"errors"
	"fmt"
	"strings"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/myk-org/github-webhook-server-sub001/pkg/checks"
	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
	"github.com/myk-org/github-webhook-server-sub001/pkg/labels"
	"github.com/myk-org/github-webhook-server-sub001/pkg/runners"
)

// mergeStateSweepDelay gives GitHub time to recompute mergeability of the
// remaining open PRs after a merge before we read it back.
var mergeStateSweepDelay = 30 * time.Second

// wipTitlePrefix is what the /wip command prepends to the PR title.
const wipTitlePrefix = "WIP: "

// HandlePullRequest runs the state machine for one pull_request delivery.
func (h *Handler) HandlePullRequest(ctx context.Context, event *github.PullRequestEvent) error {
	return h.step(StepPRHandler, func() error {
		switch event.Action {
		case github.PullRequestActionOpened, github.PullRequestActionReadyForReview:
			return h.runPipeline(ctx, pipelineOptions{
				welcome:       true,
				trackingIssue: true,
				autoMerge:     true,
				trigger:       string(event.Action),
			})
		case github.PullRequestActionReopened:
			return h.runPipeline(ctx, pipelineOptions{
				trackingIssue: true,
				autoMerge:     true,
				trigger:       string(event.Action),
			})
		case github.PullRequestActionSynchronize:
			return h.runPipeline(ctx, pipelineOptions{
				clearReviewLabels: true,
				trigger:           string(event.Action),
			})
		case github.PullRequestActionEdited:
			return h.handleEdited(ctx, event)
		case github.PullRequestActionClosed:
			if event.PullRequest.Merged {
				return h.handleMerged(ctx, event)
			}
			return h.handleClosed(ctx)
		case github.PullRequestActionLabeled, github.PullRequestActionUnlabeled:
			return h.handleLabelChange(ctx, event)
		default:
			h.Logger.Debugf("No handler for pull_request action %q.", event.Action)
			return nil
		}
	})
}

// pipelineOptions tunes the new-PR pipeline for the action that triggered
// it: synchronize reruns it without the one-time artifacts, reopened skips
// the welcome comment.
type pipelineOptions struct {
	welcome           bool
	trackingIssue     bool
	autoMerge         bool
	clearReviewLabels bool
	trigger           string
}

// runPipeline is the setup+CI fan-out every fresh head goes through, ending
// with a merge-eligibility verdict. The CI stage starts strictly after every
// setup task finished.
func (h *Handler) runPipeline(ctx context.Context, opts pipelineOptions) error {
	setup := []task{
		{"assign_reviewers", func(context.Context) error { return h.Owners.AssignReviewers() }},
		{"assign_author", h.assignAuthor},
		{"size_label", func(ctx context.Context) error {
			return h.Labels.EnsureSize(ctx, h.Resolver.PRSizeThresholds())
		}},
		{"branch_label", func(ctx context.Context) error {
			return h.Labels.Add(ctx, labels.BranchPrefix+h.PR.Base.Ref)
		}},
		{"queue_checks", h.queueOwnedChecks},
		{"verified_reset", h.resetVerified},
		{"merge_state_labels", h.refreshMergeState},
	}
	if opts.clearReviewLabels {
		setup = append(setup, task{"clear_review_labels", func(ctx context.Context) error {
			return h.Labels.RemoveWithPrefix(ctx, labels.ReviewPrefixes...)
		}})
	}
	if opts.welcome {
		setup = append(setup, task{"welcome_comment", h.ensureWelcomeComment})
	}
	if opts.trackingIssue {
		setup = append(setup, task{"tracking_issue", h.ensureTrackingIssue})
	}
	if opts.autoMerge {
		setup = append(setup, task{"auto_merge", h.maybeEnableAutoMerge})
	}
	if err := h.runStage(ctx, StepSetup, setup); err != nil {
		return err
	}

	var ci []task
	if envs := h.Resolver.Tox(); len(envs) > 0 {
		ci = append(ci, task{"tox", func(ctx context.Context) error {
			return h.Runners.Tox(ctx, envs, h.Resolver.ToxPythonVersion())
		}})
	}
	if h.Resolver.PreCommit() {
		ci = append(ci, task{"pre_commit", func(ctx context.Context) error {
			return h.Runners.PreCommit(ctx)
		}})
	}
	if h.Resolver.PythonModuleInstall() {
		ci = append(ci, task{"python_module_install", func(ctx context.Context) error {
			return h.Runners.PythonModuleInstall(ctx)
		}})
	}
	if cfg := h.Resolver.Container(); cfg != nil {
		ci = append(ci, task{"container_build", func(ctx context.Context) error {
			return h.Runners.BuildContainer(ctx, cfg, runners.BuildOptions{})
		}})
	}
	if allowed := h.Resolver.ConventionalTitle(); allowed != "" {
		ci = append(ci, task{"conventional_title", func(ctx context.Context) error {
			return h.Runners.ConventionalTitle(ctx, allowed)
		}})
	}
	for _, check := range h.Resolver.CustomCheckRuns() {
		ci = append(ci, task{"custom_" + check.Name, func(ctx context.Context) error {
			return h.Runners.CustomCheck(ctx, check)
		}})
	}
	if err := h.runStage(ctx, StepCICD, ci); err != nil {
		return err
	}

	if opts.trigger != "" && h.NotifyOracle != nil {
		h.NotifyOracle(opts.trigger, h.PR.HTMLURL)
	}
	return h.CheckCanBeMerged(ctx)
}

// queueOwnedChecks resets the checks this service owns to queued on the new
// head. Branch-protection contexts owned by external CI are left alone, and
// verified is excluded here because the reset logic decides its state.
func (h *Handler) queueOwnedChecks(ctx context.Context) error {
	features := h.features()
	names := []string{checks.CanBeMerged}
	if features.Tox {
		names = append(names, checks.Tox)
	}
	if features.PreCommit {
		names = append(names, checks.PreCommit)
	}
	if features.BuildContainer {
		names = append(names, checks.BuildContainer)
	}
	if features.PythonModuleInstall {
		names = append(names, checks.PythonModuleInstall)
	}
	if features.ConventionalTitle {
		names = append(names, checks.ConventionalTitle)
	}
	for _, check := range h.Resolver.CustomCheckRuns() {
		names = append(names, check.Name)
	}
	var errs []error
	for _, name := range names {
		if err := h.Checks.SetQueued(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("queue %s: %w", name, err))
		}
	}
	return utilerrors.NewAggregate(errs)
}

// resetVerified applies the verified policy to the current head: trusted
// authors keep the label and a green check, everyone else loses the label
// and the check returns to queued until a human runs /verified.
func (h *Handler) resetVerified(ctx context.Context) error {
	if !h.Resolver.VerifiedJob() {
		return nil
	}
	if h.autoVerified() {
		if err := h.Labels.Add(ctx, labels.Verified); err != nil {
			return err
		}
		return h.Checks.SetSuccess(ctx, checks.Verified, "")
	}
	if err := h.Labels.Remove(ctx, labels.Verified); err != nil {
		return err
	}
	return h.Checks.SetQueued(ctx, checks.Verified)
}

func (h *Handler) autoVerified() bool {
	author := h.PR.User.Login
	for _, user := range h.Resolver.AutoVerifiedAndMergedUsers() {
		if strings.EqualFold(user, author) {
			return true
		}
	}
	if h.Resolver.AutoVerifyCherryPickedPRs() &&
		strings.EqualFold(author, h.BotName) &&
		(h.PR.HasLabel(labels.CherryPicked) || strings.HasPrefix(h.PR.Head.Ref, "cherry-picked-")) {
		return true
	}
	return false
}

// assignAuthor adds the PR author as assignee. Bot authors and users without
// repository access cannot be assigned; the first root approver stands in.
func (h *Handler) assignAuthor(ctx context.Context) error {
	err := h.GitHub.AssignIssue(h.Org, h.Repo, h.PR.Number, []string{h.PR.User.Login})
	if err == nil {
		return nil
	}
	var missing github.MissingUsers
	if !errors.As(err, &missing) {
		return err
	}
	roots := h.Owners.RootApprovers()
	if len(roots) == 0 {
		h.Logger.Debugf("Author %s cannot be assigned and no root approver exists.", h.PR.User.Login)
		return nil
	}
	return h.GitHub.AssignIssue(h.Org, h.Repo, h.PR.Number, []string{roots[0]})
}

// maybeEnableAutoMerge turns on GitHub auto-merge for PRs targeting a
// configured base branch or authored by an auto-merge user.
func (h *Handler) maybeEnableAutoMerge(ctx context.Context) error {
	enable := false
	for _, branch := range h.Resolver.SetAutoMergePRs() {
		if branch == h.PR.Base.Ref {
			enable = true
			break
		}
	}
	if !enable {
		for _, user := range h.Resolver.AutoVerifiedAndMergedUsers() {
			if strings.EqualFold(user, h.PR.User.Login) {
				enable = true
				break
			}
		}
	}
	if !enable {
		return nil
	}
	return h.GitHub.EnablePullRequestAutoMerge(h.PR.NodeID)
}

// refreshMergeState reads the PR back for its mergeable tri-state and
// applies the conflict labels to the delivery's own PR.
func (h *Handler) refreshMergeState(ctx context.Context) error {
	fresh, err := h.GitHub.GetPullRequest(h.Org, h.Repo, h.PR.Number)
	if err != nil {
		return err
	}
	return h.syncMergeState(ctx, fresh, h.Labels)
}

// syncMergeState reconciles has-conflicts and needs-rebase on one PR. A
// conflicting PR keeps only has-conflicts; needs-rebase is not evaluated
// until the conflict is gone. An unknown tri-state is treated as mergeable
// so a slow GitHub computation never flags a clean PR.
func (h *Handler) syncMergeState(ctx context.Context, view *github.PullRequest, engine LabelsEngine) error {
	if view.Mergeable != nil && !*view.Mergeable {
		return engine.Add(ctx, labels.HasConflicts)
	}
	if err := engine.Remove(ctx, labels.HasConflicts); err != nil {
		return err
	}
	comparison, err := h.GitHub.CompareCommits(h.Org, h.Repo, view.Base.Ref, view.Head.SHA)
	if err != nil {
		return err
	}
	if comparison.BehindBy > 0 {
		return engine.Add(ctx, labels.NeedsRebase)
	}
	return engine.Remove(ctx, labels.NeedsRebase)
}

// handleEdited reacts to title edits: the conventional-title check depends
// on the title and the wip label follows a "WIP:" prefix.
func (h *Handler) handleEdited(ctx context.Context, event *github.PullRequestEvent) error {
	if event.Changes == nil || event.Changes.Title == nil {
		h.Logger.Debug("Edit did not touch the title, nothing to do.")
		return nil
	}
	tasks := []task{{"wip_title_sync", h.syncWIPFromTitle}}
	if allowed := h.Resolver.ConventionalTitle(); allowed != "" {
		tasks = append(tasks, task{"conventional_title", func(ctx context.Context) error {
			return h.Runners.ConventionalTitle(ctx, allowed)
		}})
	}
	return h.runStage(ctx, "title_edited", tasks)
}

func (h *Handler) syncWIPFromTitle(ctx context.Context) error {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(h.PR.Title)), "wip:") {
		return h.Labels.Add(ctx, labels.WIP)
	}
	return h.Labels.Remove(ctx, labels.WIP)
}

// handleMerged runs the post-merge actions: tracking-issue close, per-PR
// image cleanup, release build, requested cherry-picks, then the delayed
// merge-state sweep over the remaining open PRs.
func (h *Handler) handleMerged(ctx context.Context, event *github.PullRequestEvent) error {
	requestor := event.Sender.Login
	if requestor == "" {
		requestor = h.PR.User.Login
	}
	tasks := []task{{"close_tracking_issue", h.closeTrackingIssue}}
	if cfg := h.Resolver.Container(); cfg != nil {
		tasks = append(tasks,
			task{"delete_pr_tag", func(ctx context.Context) error {
				return h.Runners.DeleteContainerTag(ctx, cfg, fmt.Sprintf("pr-%d", h.PR.Number))
			}},
			task{"release_container", func(ctx context.Context) error {
				return h.Runners.BuildContainer(ctx, cfg, runners.BuildOptions{Push: true, Merged: true})
			}},
		)
	}
	for _, name := range labelNames(h.PR) {
		branch, found := strings.CutPrefix(name, labels.CherryPickPrefix)
		if !found || branch == "" {
			continue
		}
		tasks = append(tasks, task{"cherry_pick_" + branch, func(ctx context.Context) error {
			return h.Runners.CherryPick(ctx, branch, requestor)
		}})
	}
	if err := h.runStage(ctx, "pr_merged_actions", tasks); err != nil {
		return err
	}
	return h.sweepMergeState(ctx)
}

// handleClosed cleans up after an abandoned PR.
func (h *Handler) handleClosed(ctx context.Context) error {
	tasks := []task{{"close_tracking_issue", h.closeTrackingIssue}}
	if cfg := h.Resolver.Container(); cfg != nil {
		tasks = append(tasks, task{"delete_pr_tag", func(ctx context.Context) error {
			return h.Runners.DeleteContainerTag(ctx, cfg, fmt.Sprintf("pr-%d", h.PR.Number))
		}})
	}
	return h.runStage(ctx, "pr_closed_cleanup", tasks)
}

// sweepMergeState re-reads every other open PR after a merge changed the
// base branch and reconciles their conflict labels.
func (h *Handler) sweepMergeState(ctx context.Context) error {
	if err := sleepContext(ctx, mergeStateSweepDelay); err != nil {
		return err
	}
	open, err := h.GitHub.ListOpenPullRequests(h.Org, h.Repo)
	if err != nil {
		return err
	}
	var errs []error
	for _, pr := range open {
		if pr.Number == h.PR.Number {
			continue
		}
		fresh, err := h.GitHub.GetPullRequest(h.Org, h.Repo, pr.Number)
		if err != nil {
			errs = append(errs, fmt.Errorf("pr %d: %w", pr.Number, err))
			continue
		}
		if err := h.syncMergeState(ctx, fresh, h.EngineFor(fresh)); err != nil {
			errs = append(errs, fmt.Errorf("pr %d: %w", fresh.Number, err))
		}
	}
	return utilerrors.NewAggregate(errs)
}

// handleLabelChange re-evaluates merge eligibility when a gating label
// moved. Changes to can-be-merged itself are the engine's own writes.
func (h *Handler) handleLabelChange(ctx context.Context, event *github.PullRequestEvent) error {
	name := strings.ToLower(event.Label.Name)
	added := event.Action == github.PullRequestActionLabeled
	switch name {
	case labels.CanBeMerged:
		return nil
	case labels.Verified:
		if h.Resolver.VerifiedJob() {
			var err error
			if added {
				err = h.Checks.SetSuccess(ctx, checks.Verified, "")
			} else {
				err = h.Checks.SetQueued(ctx, checks.Verified)
			}
			if err != nil {
				return err
			}
		}
		return h.CheckCanBeMerged(ctx)
	case labels.WIP, labels.Hold, labels.AutoMerge:
		return h.CheckCanBeMerged(ctx)
	}
	if prefix, user, ok := labels.UserFromReviewLabel(name); ok && prefix != labels.CommentedByPrefix {
		if h.userReviewCounts(user) {
			return h.CheckCanBeMerged(ctx)
		}
	}
	h.Logger.Debugf("Label %q change needs no processing.", event.Label.Name)
	return nil
}

// userReviewCounts reports whether a review-state label for this user can
// influence the merge verdict.
func (h *Handler) userReviewCounts(user string) bool {
	user = strings.ToLower(user)
	for _, group := range [][]string{
		h.Owners.AllPullRequestApprovers(),
		h.Owners.AllPullRequestReviewers(),
		h.Owners.RootApprovers(),
	} {
		for _, member := range group {
			if strings.ToLower(member) == user {
				return true
			}
		}
	}
	return false
}
