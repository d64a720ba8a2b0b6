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

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/myk-org/github-webhook-server-sub001/pkg/checks"
	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
	"github.com/myk-org/github-webhook-server-sub001/pkg/labels"
	"github.com/myk-org/github-webhook-server-sub001/pkg/runners"
)

// Names of the supported slash commands.
const (
	CommandRetest            = "retest"
	CommandReprocess         = "reprocess"
	CommandCherryPick        = "cherry-pick"
	CommandAssignReviewers   = "assign-reviewers"
	CommandAssignReviewer    = "assign-reviewer"
	CommandCheckCanMerge     = "check-can-merge"
	CommandBuildAndPush      = "build-and-push-container"
	CommandAddAllowedUser    = "add-allowed-user"
	CommandRegenerateWelcome = "regenerate-welcome"
	CommandWIP               = "wip"
	CommandHold              = "hold"
	CommandVerified          = "verified"
	CommandAutoMerge         = "automerge"
	CommandLGTM              = "lgtm"
	CommandApprove           = "approve"
)

var knownCommands = map[string]bool{
	CommandRetest:            true,
	CommandReprocess:         true,
	CommandCherryPick:        true,
	CommandAssignReviewers:   true,
	CommandAssignReviewer:    true,
	CommandCheckCanMerge:     true,
	CommandBuildAndPush:      true,
	CommandAddAllowedUser:    true,
	CommandRegenerateWelcome: true,
	CommandWIP:               true,
	CommandHold:              true,
	CommandVerified:          true,
	CommandAutoMerge:         true,
	CommandLGTM:              true,
	CommandApprove:           true,
}

// Command is one parsed slash command.
type Command struct {
	Name string
	Args []string
}

// IsCancel reports whether the command carries the sole "cancel" argument
// that turns a label command into its removal.
func (c Command) IsCancel() bool {
	return len(c.Args) == 1 && strings.EqualFold(c.Args[0], "cancel")
}

// ParseCommands extracts the slash commands from a comment body: one per
// line, the line must start with "/".
func ParseCommands(body string) []Command {
	var commands []Command
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "/") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "/"))
		if len(fields) == 0 {
			continue
		}
		commands = append(commands, Command{Name: strings.ToLower(fields[0]), Args: fields[1:]})
	}
	return commands
}

// HandleIssueComment parses and executes the slash commands in a new PR
// comment. Commands run concurrently; every recognized one gets a thumbs-up
// reaction before it starts.
func (h *Handler) HandleIssueComment(ctx context.Context, event *github.IssueCommentEvent) error {
	return h.step(StepCommentHandler, func() error {
		if event.Action != github.IssueCommentActionCreated {
			h.Logger.Debugf("Ignoring issue_comment action %q.", event.Action)
			return nil
		}
		if !event.Issue.IsPullRequest() {
			h.Logger.Debug("Comment is on a plain issue, ignoring.")
			return nil
		}
		sender := event.Comment.User.Login
		if strings.EqualFold(sender, h.BotName) {
			return nil
		}
		commands := h.recognizedCommands(event.Comment.Body)
		if len(commands) == 0 {
			return nil
		}
		commands, err := h.filterDraftCommands(commands)
		if err != nil {
			return err
		}
		commands, err = h.authorizeCommands(commands, sender)
		if err != nil || len(commands) == 0 {
			return err
		}

		tasks := make([]task, 0, len(commands))
		for _, command := range commands {
			tasks = append(tasks, task{"command_" + command.Name, func(ctx context.Context) error {
				if err := h.GitHub.CreateCommentReaction(h.Org, h.Repo, event.Comment.ID, github.ReactionThumbsUp); err != nil {
					h.Logger.WithError(err).Warn("Could not add command reaction.")
				}
				return h.runCommand(ctx, command, sender)
			}})
		}
		return h.runStage(ctx, StepCommands, tasks)
	})
}

func (h *Handler) recognizedCommands(body string) []Command {
	var recognized []Command
	for _, command := range ParseCommands(body) {
		if !knownCommands[command.Name] {
			h.Logger.Debugf("Ignoring unknown command /%s.", command.Name)
			continue
		}
		recognized = append(recognized, command)
	}
	return recognized
}

// filterDraftCommands drops the commands the draft policy blocks. With the
// key unset every command is blocked on drafts; an explicit empty list
// allows all of them. Blocked commands are reported in one comment.
func (h *Handler) filterDraftCommands(commands []Command) ([]Command, error) {
	if !h.PR.Draft {
		return commands, nil
	}
	allowedList, configured := h.Resolver.AllowCommandsOnDraftPRs()
	allowed := func(name string) bool {
		if !configured {
			return false
		}
		if len(allowedList) == 0 {
			return true
		}
		for _, entry := range allowedList {
			if strings.EqualFold(entry, name) {
				return true
			}
		}
		return false
	}
	var runnable []Command
	var blocked []string
	for _, command := range commands {
		if allowed(command.Name) {
			runnable = append(runnable, command)
		} else {
			blocked = append(blocked, "/"+command.Name)
		}
	}
	if len(blocked) > 0 {
		comment := fmt.Sprintf("The following commands cannot run on a draft PR: %s. Mark the PR ready for review first.", strings.Join(blocked, ", "))
		if err := h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, comment); err != nil {
			return nil, err
		}
	}
	return runnable, nil
}

// authorizeCommands applies the commander predicate once per comment.
// Cherry-pick is exempt so contributors can request backports; everything
// else is dropped on denial, which the predicate reports to the PR itself.
func (h *Handler) authorizeCommands(commands []Command, sender string) ([]Command, error) {
	needsAuth := false
	for _, command := range commands {
		if command.Name != CommandCherryPick {
			needsAuth = true
			break
		}
	}
	if !needsAuth {
		return commands, nil
	}
	valid, err := h.Owners.IsUserValidToRunCommands(sender)
	if err != nil {
		return nil, err
	}
	if valid {
		return commands, nil
	}
	var exempt []Command
	for _, command := range commands {
		if command.Name == CommandCherryPick {
			exempt = append(exempt, command)
		}
	}
	return exempt, nil
}

func (h *Handler) runCommand(ctx context.Context, command Command, sender string) error {
	switch command.Name {
	case CommandRetest:
		return h.commandRetest(ctx, command)
	case CommandReprocess:
		return h.commandReprocess(ctx)
	case CommandCherryPick:
		return h.commandCherryPick(ctx, command, sender)
	case CommandAssignReviewers:
		return h.Owners.AssignReviewers()
	case CommandAssignReviewer:
		return h.commandAssignReviewer(ctx, command)
	case CommandCheckCanMerge:
		return h.CheckCanBeMerged(ctx)
	case CommandBuildAndPush:
		return h.commandBuildAndPush(ctx, command)
	case CommandAddAllowedUser:
		return h.commandAddAllowedUser(ctx, command, sender)
	case CommandRegenerateWelcome:
		return h.regenerateWelcome(ctx)
	case CommandWIP:
		return h.commandWIP(ctx, command)
	case CommandHold:
		return h.commandHold(ctx, command, sender)
	case CommandVerified:
		return h.commandVerified(ctx, command)
	case CommandAutoMerge:
		return h.commandAutoMerge(ctx, command, sender)
	case CommandLGTM:
		return h.projectionCommand(ctx, labels.StateLGTM, command, sender)
	case CommandApprove:
		return h.projectionCommand(ctx, labels.StateApprove, command, sender)
	default:
		h.Logger.Debugf("No handler for command /%s.", command.Name)
		return nil
	}
}

// retestTarget is one check /retest can re-run.
type retestTarget struct {
	name string
	fn   func(ctx context.Context) error
}

// retestTargets lists the configured checks in table order.
func (h *Handler) retestTargets() []retestTarget {
	var targets []retestTarget
	if envs := h.Resolver.Tox(); len(envs) > 0 {
		targets = append(targets, retestTarget{checks.Tox, func(ctx context.Context) error {
			return h.Runners.Tox(ctx, envs, h.Resolver.ToxPythonVersion())
		}})
	}
	if h.Resolver.PreCommit() {
		targets = append(targets, retestTarget{checks.PreCommit, h.Runners.PreCommit})
	}
	if cfg := h.Resolver.Container(); cfg != nil {
		targets = append(targets, retestTarget{checks.BuildContainer, func(ctx context.Context) error {
			return h.Runners.BuildContainer(ctx, cfg, runners.BuildOptions{})
		}})
	}
	if h.Resolver.PythonModuleInstall() {
		targets = append(targets, retestTarget{checks.PythonModuleInstall, h.Runners.PythonModuleInstall})
	}
	if allowed := h.Resolver.ConventionalTitle(); allowed != "" {
		targets = append(targets, retestTarget{checks.ConventionalTitle, func(ctx context.Context) error {
			return h.Runners.ConventionalTitle(ctx, allowed)
		}})
	}
	for _, check := range h.Resolver.CustomCheckRuns() {
		targets = append(targets, retestTarget{check.Name, func(ctx context.Context) error {
			return h.Runners.CustomCheck(ctx, check)
		}})
	}
	return targets
}

func (h *Handler) commandRetest(ctx context.Context, command Command) error {
	targets := h.retestTargets()
	names := make([]string, 0, len(targets))
	byName := make(map[string]retestTarget, len(targets))
	for _, target := range targets {
		names = append(names, target.name)
		byName[strings.ToLower(target.name)] = target
	}
	if len(command.Args) == 0 {
		usage := fmt.Sprintf("Usage: `/retest <check> ...` or `/retest all`. Configured checks: %s.", strings.Join(names, ", "))
		return h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, usage)
	}

	var selected []retestTarget
	var unknown []string
	if len(command.Args) == 1 && strings.EqualFold(command.Args[0], "all") {
		selected = targets
	} else {
		for _, arg := range command.Args {
			target, ok := byName[strings.ToLower(arg)]
			if !ok {
				unknown = append(unknown, arg)
				continue
			}
			selected = append(selected, target)
		}
	}
	if len(unknown) > 0 {
		comment := fmt.Sprintf("No configured check named %s. Configured checks: %s.", strings.Join(unknown, ", "), strings.Join(names, ", "))
		if err := h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, comment); err != nil {
			return err
		}
	}

	tasks := make([]task, 0, len(selected))
	for _, target := range selected {
		tasks = append(tasks, task{"retest_" + target.name, func(ctx context.Context) error {
			if err := h.Checks.SetQueued(ctx, target.name); err != nil {
				return err
			}
			return target.fn(ctx)
		}})
	}
	return utilerrors.NewAggregate(runTasks(ctx, h.Logger, tasks))
}

func (h *Handler) commandReprocess(ctx context.Context) error {
	if h.PR.Merged {
		return h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, "PR is already merged, nothing to reprocess.")
	}
	return h.runPipeline(ctx, pipelineOptions{
		welcome:       true,
		trackingIssue: true,
		autoMerge:     true,
	})
}

func (h *Handler) commandCherryPick(ctx context.Context, command Command, requestor string) error {
	if len(command.Args) == 0 {
		return h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, "Usage: `/cherry-pick <target-branch> ...`")
	}
	var deferred []string
	var errs []error
	for _, branch := range command.Args {
		exists, err := h.GitHub.GetBranch(h.Org, h.Repo, branch)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", branch, err))
			continue
		}
		if !exists {
			comment := fmt.Sprintf("Cherry-pick target branch `%s` does not exist.", branch)
			if err := h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, comment); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if h.PR.Merged {
			if err := h.Runners.CherryPick(ctx, branch, requestor); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", branch, err))
			}
			continue
		}
		if err := h.Labels.Add(ctx, labels.CherryPickPrefix+branch); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", branch, err))
			continue
		}
		deferred = append(deferred, fmt.Sprintf("`%s`", branch))
	}
	if len(deferred) > 0 {
		comment := fmt.Sprintf("Cherry-pick to %s will run when this PR is merged.", strings.Join(deferred, ", "))
		if err := h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, comment); err != nil {
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}

func (h *Handler) commandAssignReviewer(ctx context.Context, command Command) error {
	if len(command.Args) == 0 {
		return h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, "Usage: `/assign-reviewer @<user>`")
	}
	reviewer := strings.TrimPrefix(command.Args[0], "@")
	if !h.Owners.IsContributor(reviewer) {
		comment := fmt.Sprintf("User %s is not a contributor of this repository and cannot be assigned for review.", reviewer)
		return h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, comment)
	}
	if err := h.GitHub.RequestReview(h.Org, h.Repo, h.PR.Number, []string{reviewer}); err != nil {
		comment := fmt.Sprintf("failed to assign reviewers %s: [%T]", reviewer, err)
		return h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, comment)
	}
	return nil
}

func (h *Handler) commandBuildAndPush(ctx context.Context, command Command) error {
	cfg := h.Resolver.Container()
	if cfg == nil {
		return h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, "No container configuration exists for this repository.")
	}
	return h.Runners.BuildContainer(ctx, cfg, runners.BuildOptions{Push: true, ExtraArgs: command.Args})
}

// commandAddAllowedUser acknowledges a grant. The grant itself lives in the
// comment history: the authorization predicate scans for it, so nothing is
// persisted server-side.
func (h *Handler) commandAddAllowedUser(ctx context.Context, command Command, sender string) error {
	if len(command.Args) == 0 {
		return h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, "Usage: `/add-allowed-user @<user>`")
	}
	if !h.Owners.IsMaintainer(sender) && !h.Owners.IsApprover(sender) {
		comment := fmt.Sprintf("User %s may not grant command access; only maintainers and approvers can.", sender)
		return h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, comment)
	}
	user := strings.TrimPrefix(command.Args[0], "@")
	comment := fmt.Sprintf("User %s is now allowed to run commands on this PR.", user)
	return h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, comment)
}

func (h *Handler) commandWIP(ctx context.Context, command Command) error {
	title := h.PR.Title
	hasPrefix := strings.HasPrefix(strings.ToLower(title), strings.ToLower(wipTitlePrefix))
	if command.IsCancel() {
		if err := h.Labels.Remove(ctx, labels.WIP); err != nil {
			return err
		}
		if !hasPrefix {
			return nil
		}
		trimmed := strings.TrimSpace(title[len(wipTitlePrefix):])
		if err := h.GitHub.UpdatePullRequestTitle(h.Org, h.Repo, h.PR.Number, trimmed); err != nil {
			return err
		}
		h.PR.Title = trimmed
		return nil
	}
	if err := h.Labels.Add(ctx, labels.WIP); err != nil {
		return err
	}
	if hasPrefix {
		return nil
	}
	updated := wipTitlePrefix + title
	if err := h.GitHub.UpdatePullRequestTitle(h.Org, h.Repo, h.PR.Number, updated); err != nil {
		return err
	}
	h.PR.Title = updated
	return nil
}

func (h *Handler) commandHold(ctx context.Context, command Command, sender string) error {
	if !h.Owners.IsApprover(sender) {
		comment := fmt.Sprintf("User %s is not an approver and cannot hold this PR.", sender)
		return h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, comment)
	}
	if command.IsCancel() {
		return h.Labels.Remove(ctx, labels.Hold)
	}
	return h.Labels.Add(ctx, labels.Hold)
}

func (h *Handler) commandVerified(ctx context.Context, command Command) error {
	if !h.Resolver.VerifiedJob() {
		h.Logger.Debug("Verified workflow is disabled, ignoring /verified.")
		return nil
	}
	if command.IsCancel() {
		if err := h.Labels.Remove(ctx, labels.Verified); err != nil {
			return err
		}
		return h.Checks.SetQueued(ctx, checks.Verified)
	}
	if err := h.Labels.Add(ctx, labels.Verified); err != nil {
		return err
	}
	return h.Checks.SetSuccess(ctx, checks.Verified, "")
}

func (h *Handler) commandAutoMerge(ctx context.Context, command Command, sender string) error {
	if !h.Owners.IsMaintainer(sender) && !h.Owners.IsApprover(sender) {
		comment := fmt.Sprintf("User %s may not control auto-merge; only maintainers and approvers can.", sender)
		return h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, comment)
	}
	if command.IsCancel() {
		return h.Labels.Remove(ctx, labels.AutoMerge)
	}
	if err := h.GitHub.EnablePullRequestAutoMerge(h.PR.NodeID); err != nil {
		return err
	}
	return h.Labels.Add(ctx, labels.AutoMerge)
}

// projectionCommand maps /lgtm and /approve onto the review-state label
// projection; the engine itself enforces author and approver restrictions.
func (h *Handler) projectionCommand(ctx context.Context, state labels.ReviewState, command Command, sender string) error {
	action := labels.ActionAdd
	if command.IsCancel() {
		action = labels.ActionDelete
	}
	return h.Labels.ManageReviewedBy(ctx, state, action, sender)
}
