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

// Package runners executes the tool-backed checks and release jobs of one
// delivery. Every runner follows the same pipeline: report the check as
// in progress, prepare its own clone, shell out through pkg/command with the
// redaction list, and conclude the check from the subprocess exit.
package runners

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/myk-org/github-webhook-server-sub001/pkg/checks"
	"github.com/myk-org/github-webhook-server-sub001/pkg/command"
	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
	"github.com/myk-org/github-webhook-server-sub001/pkg/secretutil"
	"github.com/myk-org/github-webhook-server-sub001/pkg/workspace"
)

// GitHubClient is the slice of the REST client the runners talk to.
type GitHubClient interface {
	CreateComment(org, repo string, number int, comment string) error
	CreateIssue(org, repo, title, body string, assignees []string) (int, error)
	ListPackageVersions(owner string, ownerIsOrg bool, packageName string) ([]github.PackageVersion, error)
	DeletePackageVersion(owner string, ownerIsOrg bool, packageName string, versionID int64) error
}

// CheckSetter transitions the commit's check runs.
type CheckSetter interface {
	SetQueued(ctx context.Context, name string) error
	SetInProgress(ctx context.Context, name string) error
	SetSuccess(ctx context.Context, name, output string) error
	SetFailure(ctx context.Context, name, output string) error
}

// Notifier sends operational notifications. A nil Notifier disables them.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Deps carries what every runner needs. PullRequest is nil for tag pushes.
type Deps struct {
	Logger   *logrus.Entry
	GitHub   GitHubClient
	Checks   CheckSetter
	Command  workspace.CommandRunner
	Censorer secretutil.Censorer
	Notifier Notifier

	Org     string
	Repo    string
	Token   string
	BotName string

	// BaseDir is the per-delivery workspace root; each runner clones into
	// its own UUID-suffixed directory below it.
	BaseDir string

	PullRequest *github.PullRequest
}

// Runners executes the configured checks and release jobs of one delivery.
type Runners struct {
	Deps
}

// New returns the delivery's runner set.
func New(deps Deps) *Runners {
	return &Runners{Deps: deps}
}

// cloneOptions is the default workspace setup: the PR head merged with its
// base, committed under the bot identity.
func (r *Runners) cloneOptions() workspace.Options {
	return workspace.Options{
		CloneURL:    workspace.CloneURL(r.Org, r.Repo, r.Token),
		Token:       r.Token,
		UserName:    r.BotName,
		UserEmail:   fmt.Sprintf("%s@users.noreply.github.com", r.BotName),
		PullRequest: r.PullRequest,
	}
}

// newWorkspace allocates a fresh UUID-suffixed clone directory so parallel
// runners in one delivery never collide.
func (r *Runners) newWorkspace(name string) *workspace.Workspace {
	dir := filepath.Join(r.BaseDir, fmt.Sprintf("%s-%s", name, uuid.NewString()))
	return workspace.New(dir, r.Command, r.Logger)
}

// runCheck is the shared pipeline. It returns whether the check concluded
// successfully; the returned error carries cancellation or check-transition
// failures, never the tool's own failure. Cancellation concludes nothing.
func (r *Runners) runCheck(ctx context.Context, name string, opts workspace.Options, fn func(ctx context.Context, ws *workspace.Workspace) (stdout, stderr string, ok bool)) (bool, error) {
	if err := r.Checks.SetInProgress(ctx, name); err != nil {
		r.Logger.WithError(err).Warnf("Could not set check %s in progress.", name)
	}
	ws := r.newWorkspace(name)
	defer ws.Release()

	ok, stdout, stderr := ws.Prepare(ctx, opts)
	if !ok {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return false, r.Checks.SetFailure(ctx, name, checks.BuildOutput(r.Censorer, stdout, stderr))
	}
	out, errOut, ok := fn(ctx, ws)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !ok {
		return false, r.Checks.SetFailure(ctx, name, checks.BuildOutput(r.Censorer, out, errOut))
	}
	return true, r.Checks.SetSuccess(ctx, name, checks.BuildOutput(r.Censorer, out, errOut))
}

// runAll executes commands in order inside the workspace, accumulating
// output and stopping at the first failure.
func runAll(ctx context.Context, ws *workspace.Workspace, cmds ...command.Command) (string, string, bool) {
	var stdout, stderr strings.Builder
	for _, cmd := range cmds {
		res := ws.Run(ctx, cmd)
		stdout.WriteString(res.Stdout)
		stderr.WriteString(res.Stderr)
		if !res.Success() {
			if res.Err != nil {
				stderr.WriteString(res.Err.Error() + "\n")
			}
			return stdout.String(), stderr.String(), false
		}
	}
	return stdout.String(), stderr.String(), true
}

// errTail keeps error strings readable when subprocess output runs long.
func errTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 300 {
		return s
	}
	return "..." + s[len(s)-300:]
}

func shortUUID() string {
	return strings.Split(uuid.NewString(), "-")[0]
}
