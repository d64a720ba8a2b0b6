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
	"strings"

	"github.com/myk-org/github-webhook-server-sub001/pkg/checks"
	"github.com/myk-org/github-webhook-server-sub001/pkg/command"
	"github.com/myk-org/github-webhook-server-sub001/pkg/config"
)

// issueTitleLimit caps sanitized issue titles; longer text gets an ellipsis.
const issueTitleLimit = 247

// PublishPyPI builds the sdist at the tag, verifies it and uploads it. Any
// failure opens an issue titled with the sanitized error instead of failing
// the delivery; only the issue creation itself can error.
func (r *Runners) PublishPyPI(ctx context.Context, cfg *config.PyPI, tagName string) error {
	opts := r.cloneOptions()
	opts.PullRequest = nil
	opts.TagName = tagName

	ws := r.newWorkspace("pypi")
	defer ws.Release()
	ok, stdout, stderr := ws.Prepare(ctx, opts)
	if !ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		return r.pypiFailureIssue(tagName, stdout, stderr)
	}

	// twine expands the dist glob itself; no shell is involved.
	steps := []command.Command{
		{Name: "uv", Args: []string{"build", "--sdist"}},
		{Name: "uvx", Args: []string{"twine", "check", "dist/*"}},
		{
			Name:   "uvx",
			Args:   []string{"twine", "upload", "--non-interactive", "--username", "__token__", "--password", cfg.Token, "dist/*"},
			Redact: []string{cfg.Token},
		},
	}
	out, errOut, ok := runAll(ctx, ws, steps...)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ok {
		return r.pypiFailureIssue(tagName, out, errOut)
	}

	if r.Notifier != nil {
		if err := r.Notifier.Send(ctx, fmt.Sprintf("%s/%s: %s published to PyPI", r.Org, r.Repo, tagName)); err != nil {
			r.Logger.WithError(err).Warn("Could not send PyPI publication notification.")
		}
	}
	return nil
}

func (r *Runners) pypiFailureIssue(tagName, stdout, stderr string) error {
	detail := checks.BuildOutput(r.Censorer, stdout, stderr)
	title := SanitizeIssueTitle(fmt.Sprintf(
		"Publish to PyPI failed for %s: %s",
		tagName, checks.BuildOutput(r.Censorer, "", stderr),
	))
	body := fmt.Sprintf("Publishing %s to PyPI failed.\n\n```\n%s\n```", tagName, detail)
	if _, err := r.GitHub.CreateIssue(r.Org, r.Repo, title, body, nil); err != nil {
		return fmt.Errorf("could not open PyPI failure issue: %w", err)
	}
	return nil
}

// SanitizeIssueTitle flattens an error into an issue-safe single line:
// newlines become spaces, backticks are dropped, and the result is capped.
func SanitizeIssueTitle(s string) string {
	s = strings.ReplaceAll(s, "`", "")
	s = strings.Join(strings.Fields(s), " ")
	if runes := []rune(s); len(runes) > issueTitleLimit {
		s = string(runes[:issueTitleLimit]) + "…"
	}
	return s
}
