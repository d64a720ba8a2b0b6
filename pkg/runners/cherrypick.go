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

package runners

import (
	"context"
	"fmt"

	"github.com/myk-org/github-webhook-server-sub001/pkg/command"
	"github.com/myk-org/github-webhook-server-sub001/pkg/labels"
)

// CherryPick replays the PR's merge commit onto the target branch and opens
// a follow-up PR through hub. Failures post a manual-instructions comment on
// the source PR instead of failing the delivery.
func (r *Runners) CherryPick(ctx context.Context, targetBranch, requestor string) error {
	pr := r.PullRequest
	if pr.MergeSHA == nil {
		return r.manualCherryPick(ctx, targetBranch, "", "the PR has no merge commit")
	}
	sha := *pr.MergeSHA
	newBranch := fmt.Sprintf("cherry-picked-%s-%s", pr.Head.Ref, shortUUID())

	opts := r.cloneOptions()
	// Check out the target branch directly; the PR merge matrix does not
	// apply to a cherry-pick.
	opts.PullRequest = nil
	opts.Checkout = targetBranch

	ws := r.newWorkspace("cherry-pick")
	defer ws.Release()
	ok, _, stderr := ws.Prepare(ctx, opts)
	if !ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		return r.manualCherryPick(ctx, targetBranch, sha, errTail(stderr))
	}

	title := fmt.Sprintf("[%s] %s", targetBranch, pr.Title)
	body := fmt.Sprintf("Automated cherry-pick of #%d to %s.\n\nRequested-by: @%s", pr.Number, targetBranch, requestor)
	steps := []command.Command{
		{Name: "git", Args: []string{"checkout", "-b", newBranch}, Redact: []string{r.Token}},
		{Name: "git", Args: []string{"cherry-pick", sha}, Redact: []string{r.Token}},
		{Name: "git", Args: []string{"push", "origin", newBranch}, Redact: []string{r.Token}},
		{
			Name: "hub",
			Args: []string{"pull-request", "-b", targetBranch, "-h", newBranch, "-l", labels.CherryPicked, "-m", title, "-m", body},
			Env:  []string{"GITHUB_TOKEN=" + r.Token},
			// hub echoes the token on some failure paths.
			Redact: []string{r.Token},
		},
	}
	if _, errOut, ok := runAll(ctx, ws, steps...); !ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		return r.manualCherryPick(ctx, targetBranch, sha, errTail(errOut))
	}
	return nil
}

// manualCherryPick posts the reproduction recipe for a failed cherry-pick on
// the source PR.
func (r *Runners) manualCherryPick(ctx context.Context, targetBranch, sha, reason string) error {
	if sha == "" {
		sha = "<merge-commit-sha>"
	}
	newBranch := fmt.Sprintf("cherry-picked-%s-manual", r.PullRequest.Head.Ref)
	comment := fmt.Sprintf("**Manual cherry-pick is needed**\n"+
		"Cherry pick failed for %s to `%s`: %s\n"+
		"To reproduce and fix, run:\n"+
		"```\n"+
		"git fetch origin\n"+
		"git checkout -b %s origin/%s\n"+
		"git cherry-pick %s\n"+
		"git push origin %s\n"+
		"```",
		sha, targetBranch, reason, newBranch, targetBranch, sha, newBranch)
	if err := r.GitHub.CreateComment(r.Org, r.Repo, r.PullRequest.Number, comment); err != nil {
		return fmt.Errorf("could not post manual cherry-pick instructions: %w", err)
	}
	return nil
}
