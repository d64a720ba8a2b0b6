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

// Package workspace manages the scoped clone directory a runner works in.
// Every runner inside a delivery gets its own directory; Release removes it
// no matter how preparation or the runner ended.
package workspace

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/myk-org/github-webhook-server-sub001/pkg/command"
	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
)

// Options selects what ends up checked out after Prepare.
type Options struct {
	// CloneURL is the authenticated URL; Token is its embedded credential,
	// listed for redaction.
	CloneURL string
	Token    string

	// UserName and UserEmail configure the committer identity for merge and
	// cherry-pick commits.
	UserName  string
	UserEmail string

	// PullRequest, IsMerged, Checkout and TagName drive the checkout matrix:
	// an explicit Checkout wins (plus a base merge when a PR is given), then
	// a merged PR checks out its base ref, then TagName, then the PR head
	// merged with its base.
	PullRequest *github.PullRequest
	IsMerged    bool
	Checkout    string
	TagName     string
}

// CloneURL builds the authenticated https clone URL for org/repo.
func CloneURL(org, repo, token string) string {
	return fmt.Sprintf("https://%s@github.com/%s/%s", token, org, repo)
}

// CommandRunner executes one subprocess. *command.Runner implements it.
type CommandRunner interface {
	Run(ctx context.Context, cmd command.Command) command.Result
}

// Workspace is one clone directory.
type Workspace struct {
	// Dir is the absolute path of the clone.
	Dir string

	runner CommandRunner
	logger *logrus.Entry
}

// New returns a workspace rooted at dir. The directory is created by Prepare.
func New(dir string, runner CommandRunner, logger *logrus.Entry) *Workspace {
	return &Workspace{Dir: dir, runner: runner, logger: logger.WithField("workspace", dir)}
}

// Prepare clones the repository and checks out the state the options ask
// for. It short-circuits on the first failing step and reports the captured
// output either way; on failure the caller is expected to surface the output
// on its check run. Release must be called regardless of the outcome.
func (w *Workspace) Prepare(ctx context.Context, opts Options) (bool, string, string) {
	var stdout, stderr strings.Builder
	run := func(args ...string) bool {
		cmd := command.Command{
			Name:   "git",
			Args:   args,
			Dir:    w.Dir,
			Redact: []string{opts.Token},
		}
		// The clone runs before the directory exists.
		if len(args) > 0 && args[0] == "clone" {
			cmd.Dir = ""
		}
		res := w.runner.Run(ctx, cmd)
		stdout.WriteString(res.Stdout)
		stderr.WriteString(res.Stderr)
		if !res.Success() {
			w.logger.WithField("args", redactedArgs(args, opts.Token)).Info("git step failed.")
			return false
		}
		return true
	}

	steps := [][]string{
		{"clone", opts.CloneURL, w.Dir},
		{"config", "user.name", opts.UserName},
		{"config", "user.email", opts.UserEmail},
		{"config", "remote.origin.fetch", "+refs/pull/*/head:refs/remotes/origin/pr/*"},
		{"remote", "update"},
	}
	switch {
	case opts.Checkout != "":
		steps = append(steps, []string{"checkout", opts.Checkout})
		if opts.PullRequest != nil {
			steps = append(steps, mergeBase(opts.PullRequest))
		}
	case opts.IsMerged && opts.PullRequest != nil:
		steps = append(steps, []string{"checkout", opts.PullRequest.Base.Ref})
	case opts.TagName != "":
		steps = append(steps, []string{"checkout", opts.TagName})
	case opts.PullRequest != nil:
		steps = append(steps,
			[]string{"checkout", fmt.Sprintf("origin/pr/%d", opts.PullRequest.Number)},
			mergeBase(opts.PullRequest),
		)
	}

	for _, args := range steps {
		if !run(args...) {
			return false, stdout.String(), stderr.String()
		}
	}
	return true, stdout.String(), stderr.String()
}

func mergeBase(pr *github.PullRequest) []string {
	ref := fmt.Sprintf("origin/%s", pr.Base.Ref)
	return []string{"merge", ref, "-m", fmt.Sprintf("merge %s", ref)}
}

// Run executes a command inside the workspace.
func (w *Workspace) Run(ctx context.Context, cmd command.Command) command.Result {
	cmd.Dir = w.Dir
	return w.runner.Run(ctx, cmd)
}

// Git runs a git command inside the workspace with the token redacted.
func (w *Workspace) Git(ctx context.Context, token string, args ...string) command.Result {
	return w.Run(ctx, command.Command{Name: "git", Args: args, Redact: []string{token}})
}

// Release removes the clone directory. Errors are logged and swallowed: the
// directory lives under the per-delivery path, which the dispatcher removes
// as a last resort.
func (w *Workspace) Release() {
	if err := os.RemoveAll(w.Dir); err != nil {
		w.logger.WithError(err).Warn("Could not remove workspace directory.")
	}
}

func redactedArgs(args []string, token string) string {
	joined := strings.Join(args, " ")
	if token != "" {
		joined = strings.ReplaceAll(joined, token, "*****")
	}
	return joined
}
