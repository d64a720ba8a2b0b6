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

// Package handlers holds the event workflows: the pull-request state
// machine, the slash-command table, review projection, check-run and tag
// handling. One Handler is assembled per delivery from the dispatcher and
// is discarded with it.
package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/myk-org/github-webhook-server-sub001/pkg/checks"
	"github.com/myk-org/github-webhook-server-sub001/pkg/config"
	"github.com/myk-org/github-webhook-server-sub001/pkg/delivery"
	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
	"github.com/myk-org/github-webhook-server-sub001/pkg/labels"
	"github.com/myk-org/github-webhook-server-sub001/pkg/repoowners"
	"github.com/myk-org/github-webhook-server-sub001/pkg/runners"
)

// Workflow step names recorded on the delivery context.
const (
	StepPRHandler      = "pr_handler"
	StepSetup          = "pr_workflow_setup"
	StepCICD           = "pr_cicd_execution"
	StepCommentHandler = "issue_comment_handler"
	StepReviewHandler  = "review_handler"
	StepCheckRun       = "check_run_handler"
	StepPushHandler    = "push_handler"
	StepTagRelease     = "tag_release"
	StepCommands       = "command_execution"
)

type githubClient interface {
	CreateComment(org, repo string, number int, comment string) error
	EditComment(org, repo string, id int, comment string) error
	ListIssueComments(org, repo string, number int) ([]github.IssueComment, error)
	CreateCommentReaction(org, repo string, id int, reaction string) error
	CreateIssue(org, repo, title, body string, assignees []string) (int, error)
	CloseIssue(org, repo string, number int) error
	AssignIssue(org, repo string, number int, logins []string) error
	RequestReview(org, repo string, number int, logins []string) error
	GetPullRequest(org, repo string, number int) (*github.PullRequest, error)
	ListOpenPullRequests(org, repo string) ([]github.PullRequest, error)
	UpdatePullRequestTitle(org, repo string, number int, title string) error
	GetBranch(org, repo, branch string) (bool, error)
	GetBranchProtection(org, repo, branch string) (*github.BranchProtection, error)
	GetCombinedStatus(org, repo, ref string) (*github.CombinedStatus, error)
	ListCheckRuns(org, repo, ref string) (*github.CheckRunList, error)
	CompareCommits(org, repo, base, head string) (*github.CommitsComparison, error)
	EnablePullRequestAutoMerge(pullRequestID string) error
}

// LabelsEngine is the slice of the labels engine the workflows drive. The
// dispatcher hands in one engine bound to the delivery's PR plus a factory
// for the merge-state sweep over other open PRs.
type LabelsEngine interface {
	Add(ctx context.Context, name string) error
	AddColored(ctx context.Context, name, color string) error
	Remove(ctx context.Context, name string) error
	RemoveWithPrefix(ctx context.Context, prefixes ...string) error
	EnsureSize(ctx context.Context, overrides map[string]config.SizeThreshold) error
	ManageReviewedBy(ctx context.Context, state labels.ReviewState, action labels.ReviewAction, user string) error
}

type checkSetter interface {
	SetQueued(ctx context.Context, name string) error
	SetInProgress(ctx context.Context, name string) error
	SetSuccess(ctx context.Context, name, output string) error
	SetFailure(ctx context.Context, name, output string) error
}

type ownersClient interface {
	IsApprover(user string) bool
	IsMaintainer(user string) bool
	IsContributor(user string) bool
	IsUserValidToRunCommands(user string) (bool, error)
	AssignReviewers() error
	AllPullRequestApprovers() []string
	AllPullRequestReviewers() []string
	RootApprovers() []string
	RootReviewers() []string
	DataForChangedFiles() map[string]repoowners.Entry
}

type runnerSet interface {
	Tox(ctx context.Context, envsByBranch map[string]string, pythonVersion string) error
	PreCommit(ctx context.Context) error
	PythonModuleInstall(ctx context.Context) error
	CustomCheck(ctx context.Context, check config.CustomCheckRun) error
	ConventionalTitle(ctx context.Context, allowedNames string) error
	BuildContainer(ctx context.Context, cfg *config.Container, opts runners.BuildOptions) error
	CherryPick(ctx context.Context, targetBranch, requestor string) error
	DeleteContainerTag(ctx context.Context, cfg *config.Container, tag string) error
	PublishPyPI(ctx context.Context, cfg *config.PyPI, tagName string) error
}

// Handler executes the workflows of one delivery. Fields are filled by the
// dispatcher; PR, Owners, Labels and Checks are nil for push events, which
// never touch them.
type Handler struct {
	Logger   *logrus.Entry
	Delivery *delivery.Context
	GitHub   githubClient
	Checks   checkSetter
	Labels   LabelsEngine
	Owners   ownersClient
	Runners  runnerSet
	Resolver *config.Resolver
	Snapshot *github.RepositorySnapshot

	Org         string
	Repo        string
	RepoPrivate bool
	BotName     string
	PR          *github.PullRequest

	// EngineFor builds a labels engine for a PR other than the delivery's
	// own, used by the post-merge merge-state sweep.
	EngineFor func(pr *github.PullRequest) LabelsEngine

	// NotifyOracle forwards the PR to the external test-generation service
	// when its trigger list matches. May be nil.
	NotifyOracle func(trigger, prURL string)

	requiredOnce sync.Once
	required     *checks.RequiredSet
	requiredErr  error
}

// requiredChecks resolves the per-delivery required-check set once. Branch
// protection is only readable on public repositories; private ones fall back
// to default-status-checks.
func (h *Handler) requiredChecks() (*checks.RequiredSet, error) {
	h.requiredOnce.Do(func() {
		var contexts []string
		if !h.RepoPrivate {
			protection, err := h.GitHub.GetBranchProtection(h.Org, h.Repo, h.PR.Base.Ref)
			if err != nil {
				h.requiredErr = fmt.Errorf("could not read branch protection: %w", err)
				return
			}
			if protection != nil && protection.RequiredStatusChecks != nil {
				contexts = protection.RequiredStatusChecks.Contexts
			}
		}
		var protected *config.ProtectedBranch
		if branch, ok := h.Resolver.ProtectedBranches()[h.PR.Base.Ref]; ok {
			protected = &branch
		}
		h.required = checks.NewRequiredSet(contexts, h.Resolver.DefaultStatusChecks(), h.features(), protected, h.Resolver.CustomCheckRuns())
	})
	return h.required, h.requiredErr
}

func (h *Handler) features() checks.Features {
	return checks.Features{
		Tox:                 len(h.Resolver.Tox()) > 0,
		PreCommit:           h.Resolver.PreCommit(),
		Verified:            h.Resolver.VerifiedJob(),
		BuildContainer:      h.Resolver.Container() != nil,
		PythonModuleInstall: h.Resolver.PythonModuleInstall(),
		ConventionalTitle:   h.Resolver.ConventionalTitle() != "",
	}
}

// task is one unit of a fan-out stage.
type task struct {
	name string
	fn   func(ctx context.Context) error
}

// runTasks executes the tasks concurrently and waits for all of them; a
// failing task never cancels its siblings. Each failure is logged where it
// happened and returned wrapped with the task name.
func runTasks(ctx context.Context, logger *logrus.Entry, tasks []task) []error {
	var (
		wg   sync.WaitGroup
		lock sync.Mutex
		errs []error
	)
	for _, t := range tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			if err := t.fn(ctx); err != nil {
				logger.WithError(err).Errorf("Task %s failed.", t.name)
				lock.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
				lock.Unlock()
			}
		}(t)
	}
	wg.Wait()
	return errs
}

// runStage records the fan-out as one workflow step. Only cancellation and
// critical failures propagate; everything else is already logged and kept in
// the step record so the rest of the delivery continues.
func (h *Handler) runStage(ctx context.Context, step string, tasks []task) error {
	h.Delivery.StartStep(step)
	errs := runTasks(ctx, h.Logger, tasks)
	if len(errs) == 0 {
		h.Delivery.CompleteStep(step, map[string]interface{}{"tasks": len(tasks)})
		return nil
	}
	aggregate := utilerrors.NewAggregate(errs)
	h.Delivery.FailStep(step, aggregate)
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, err := range errs {
		if github.IsCritical(err) {
			return aggregate
		}
	}
	return nil
}

// step wraps a top-level handler in one named workflow step.
func (h *Handler) step(name string, fn func() error) error {
	h.Delivery.StartStep(name)
	if err := fn(); err != nil {
		h.Delivery.FailStep(name, err)
		return err
	}
	h.Delivery.CompleteStep(name, nil)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func labelNames(pr *github.PullRequest) []string {
	names := make([]string, 0, len(pr.Labels))
	for _, label := range pr.Labels {
		names = append(names, label.Name)
	}
	return names
}
