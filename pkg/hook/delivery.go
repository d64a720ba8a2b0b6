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

package hook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/myk-org/github-webhook-server-sub001/pkg/checks"
	"github.com/myk-org/github-webhook-server-sub001/pkg/config"
	"github.com/myk-org/github-webhook-server-sub001/pkg/delivery"
	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
	"github.com/myk-org/github-webhook-server-sub001/pkg/handlers"
	"github.com/myk-org/github-webhook-server-sub001/pkg/labels"
	"github.com/myk-org/github-webhook-server-sub001/pkg/notify"
	"github.com/myk-org/github-webhook-server-sub001/pkg/repoowners"
	"github.com/myk-org/github-webhook-server-sub001/pkg/runners"
	"github.com/myk-org/github-webhook-server-sub001/pkg/testoracle"
)

// assembleOptions selects how much of the delivery world to build. pr is the
// payload's own PR view when the event carries one; prNumber makes assemble
// fetch it instead. With neither, the delivery gets runners only.
type assembleOptions struct {
	pr       *github.PullRequest
	prNumber int
	private  bool
}

// assembly is one delivery's wired-up world and its teardown.
type assembly struct {
	handler *handlers.Handler
	client  *github.Client
	logger  *logrus.Entry
	baseDir string
}

// finish removes the delivery's clone workspace and records the closing
// rate-limit reading.
func (a *assembly) finish(dc *delivery.Context) {
	if a.baseDir != "" {
		if err := os.RemoveAll(a.baseDir); err != nil {
			a.logger.WithError(err).Warn("Could not remove delivery workspace.")
		}
	}
	if limits, err := a.client.GetRateLimit(); err == nil {
		dc.SetFinalRateLimit(limits.Resources.Core.Remaining)
	} else {
		a.logger.WithError(err).Debug("Could not read final rate limit.")
	}
}

// assemble builds the full per-delivery dependency graph: token choice,
// GitHub client, three-tier config resolver, repository snapshot, OWNERS
// data, label engine, check-run client and the runner set.
func (s *Server) assemble(ctx context.Context, logger *logrus.Entry, dc *delivery.Context, repoCfg *config.Repository, opts assembleOptions) (*assembly, error) {
	org, repo := repoCfg.Org(), repoCfg.Repo()
	getToken, remaining, err := s.TokenPool.Pick(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not pick an API token: %w", err)
	}
	dc.SetInitialRateLimit(remaining)
	gc := github.NewClient(ctx, logger, getToken, s.APIBase, dc)
	botName, err := gc.BotName()
	if err != nil {
		return nil, fmt.Errorf("could not resolve the bot identity: %w", err)
	}
	dc.SetAPIUser(botName)

	pr := opts.pr
	if pr == nil && opts.prNumber > 0 {
		pr, err = gc.GetPullRequest(org, repo, opts.prNumber)
		if err != nil {
			return nil, fmt.Errorf("could not fetch PR %d: %w", opts.prNumber, err)
		}
		dc.SetPullRequest(pr.Number, pr.Title, pr.User.Login)
	}

	// The override file is read at the PR base ref so config changes ride
	// the same review flow as code; pushes read the default branch.
	ref := ""
	if pr != nil {
		ref = pr.Base.Ref
	}
	local, err := gc.GetFile(org, repo, config.LocalFileName, ref)
	if err != nil {
		var notFound *github.FileNotFound
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("could not read %s: %w", config.LocalFileName, err)
		}
		local = nil
	}
	resolver := config.NewResolver(logger, local, repoCfg, s.Config)

	h := &handlers.Handler{
		Logger:      logger,
		Delivery:    dc,
		GitHub:      gc,
		Resolver:    resolver,
		Org:         org,
		Repo:        repo,
		RepoPrivate: opts.private,
		BotName:     botName,
		PR:          pr,
	}
	a := &assembly{handler: h, client: gc, logger: logger}

	var checkClient *checks.Client
	if pr != nil {
		snapshot, err := gc.FetchRepositorySnapshot(org, repo, snapshotCaps(resolver.RepositoryDataCaps()))
		if err != nil {
			return nil, fmt.Errorf("could not fetch repository snapshot: %w", err)
		}
		h.Snapshot = snapshot

		owners, err := repoowners.Load(logger, gc, org, repo, pr, snapshot, resolver.MaxOwnersFiles())
		if err != nil {
			return nil, fmt.Errorf("could not load OWNERS data: %w", err)
		}
		h.Owners = owners

		enabledLabels, enabledSet := resolver.EnabledLabels()
		engineFor := func(target *github.PullRequest) handlers.LabelsEngine {
			return labels.NewEngine(logger, gc, org, repo, target, enabledLabels, enabledSet, owners.IsApprover)
		}
		h.Labels = engineFor(pr)
		h.EngineFor = engineFor

		checkClient, err = checks.NewFromApp(ctx, logger, s.AppClient, org, repo, pr.Head.SHA)
		if err != nil {
			return nil, fmt.Errorf("could not build the check-run client: %w", err)
		}
		h.Checks = checkClient

		if oracle := resolver.TestOracle(); oracle != nil && s.Oracle != nil && s.Tracker != nil {
			h.NotifyOracle = func(trigger, prURL string) {
				if !testoracle.ShouldTrigger(oracle, trigger) {
					return
				}
				s.Tracker.Go(func() {
					s.Oracle.Notify(s.baseContext(), oracle, prURL)
				})
			}
		}
	}

	var notifier runners.Notifier
	if url := resolver.SlackWebhookURL(); url != "" {
		notifier = notify.NewSlack(logger, url)
	}

	a.baseDir = filepath.Join(s.DataDir, "clones", dc.HookID())
	deps := runners.Deps{
		Logger:      logger,
		GitHub:      gc,
		Command:     s.CommandRunner,
		Censorer:    s.Censorer,
		Notifier:    notifier,
		Org:         org,
		Repo:        repo,
		Token:       string(getToken()),
		BotName:     botName,
		BaseDir:     a.baseDir,
		PullRequest: pr,
	}
	if checkClient != nil {
		deps.Checks = checkClient
	}
	h.Runners = runners.New(deps)
	return a, nil
}

func snapshotCaps(caps *config.DataCaps) github.SnapshotCaps {
	if caps == nil {
		return github.SnapshotCaps{}
	}
	return github.SnapshotCaps{
		Collaborators: caps.Collaborators,
		Contributors:  caps.Contributors,
		Issues:        caps.Issues,
		PullRequests:  caps.PullRequests,
	}
}
