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

// Package checks reports progress through commit check runs. Check runs are
// created through the GitHub App installation, never a user token: token
// owned runs cannot carry the app identity and GitHub refuses to group them
// under the app in the PR checks tab.
package checks

import (
	"context"
	"fmt"

	gogithub "github.com/google/go-github/v75/github"
	"github.com/sirupsen/logrus"

	"github.com/myk-org/github-webhook-server-sub001/pkg/githubapp"
)

// Names of the built-in check runs.
const (
	Tox                 = "tox"
	PreCommit           = "pre-commit"
	Verified            = "verified"
	BuildContainer      = "build-container"
	PythonModuleInstall = "python-module-install"
	ConventionalTitle   = "conventional-title"
	CanBeMerged         = "can-be-merged"
)

// Check-run status and conclusion values accepted by the API.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"

	ConclusionSuccess = "success"
	ConclusionFailure = "failure"
)

type checkRunAPI interface {
	CreateCheckRun(ctx context.Context, owner, repo string, opts gogithub.CreateCheckRunOptions) (*gogithub.CheckRun, *gogithub.Response, error)
}

// Client transitions named check runs on one commit. Every transition is a
// fresh create: GitHub keys runs by (name, head_sha) and surfaces the latest.
type Client struct {
	logger  *logrus.Entry
	api     checkRunAPI
	org     string
	repo    string
	headSHA string
}

// NewFromApp resolves the app installation for org/repo and returns a Client
// bound to the commit under test.
func NewFromApp(ctx context.Context, logger *logrus.Entry, app *githubapp.Client, org, repo, headSHA string) (*Client, error) {
	installation, err := app.InstallationClient(ctx, org, repo)
	if err != nil {
		return nil, err
	}
	return New(logger, installation.Checks, org, repo, headSHA), nil
}

// New returns a Client using the given check-run API.
func New(logger *logrus.Entry, api checkRunAPI, org, repo, headSHA string) *Client {
	return &Client{
		logger:  logger,
		api:     api,
		org:     org,
		repo:    repo,
		headSHA: headSHA,
	}
}

// HeadSHA returns the commit the client reports on.
func (c *Client) HeadSHA() string {
	return c.headSHA
}

// SetQueued marks the named check as queued.
func (c *Client) SetQueued(ctx context.Context, name string) error {
	return c.create(ctx, gogithub.CreateCheckRunOptions{
		Name:    name,
		HeadSHA: c.headSHA,
		Status:  gogithub.Ptr(StatusQueued),
	})
}

// SetInProgress marks the named check as running.
func (c *Client) SetInProgress(ctx context.Context, name string) error {
	return c.create(ctx, gogithub.CreateCheckRunOptions{
		Name:    name,
		HeadSHA: c.headSHA,
		Status:  gogithub.Ptr(StatusInProgress),
	})
}

// SetSuccess concludes the named check successfully, with optional detail
// text already rendered by BuildOutput.
func (c *Client) SetSuccess(ctx context.Context, name, output string) error {
	opts := gogithub.CreateCheckRunOptions{
		Name:       name,
		HeadSHA:    c.headSHA,
		Conclusion: gogithub.Ptr(ConclusionSuccess),
	}
	if output != "" {
		opts.Output = checkOutput(name, "Success", output)
	}
	return c.create(ctx, opts)
}

// SetFailure concludes the named check as failed with the given detail text.
func (c *Client) SetFailure(ctx context.Context, name, output string) error {
	return c.create(ctx, gogithub.CreateCheckRunOptions{
		Name:       name,
		HeadSHA:    c.headSHA,
		Conclusion: gogithub.Ptr(ConclusionFailure),
		Output:     checkOutput(name, "Failure", output),
	})
}

func checkOutput(title, summary, text string) *gogithub.CheckRunOutput {
	out := &gogithub.CheckRunOutput{
		Title:   gogithub.Ptr(title),
		Summary: gogithub.Ptr(summary),
	}
	if text != "" {
		out.Text = gogithub.Ptr(text)
	}
	return out
}

// create issues the transition. When the API call itself fails the check
// would otherwise stay frozen in its previous state, so a bare failure
// conclusion is reported in its place and the original error returned.
func (c *Client) create(ctx context.Context, opts gogithub.CreateCheckRunOptions) error {
	_, _, err := c.api.CreateCheckRun(ctx, c.org, c.repo, opts)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	c.logger.WithError(err).Errorf("Could not set check run %s on %s, reporting failure instead.", opts.Name, c.headSHA)

	fallback := gogithub.CreateCheckRunOptions{
		Name:       opts.Name,
		HeadSHA:    opts.HeadSHA,
		Conclusion: gogithub.Ptr(ConclusionFailure),
		Output:     checkOutput(opts.Name, "Failure", fmt.Sprintf("could not report check state: %v", err)),
	}
	if _, _, fallbackErr := c.api.CreateCheckRun(ctx, c.org, c.repo, fallback); fallbackErr != nil {
		c.logger.WithError(fallbackErr).Errorf("Fallback failure report for check run %s did not go through either.", opts.Name)
	}
	return fmt.Errorf("setting check run %s: %w", opts.Name, err)
}
