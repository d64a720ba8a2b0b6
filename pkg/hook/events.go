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
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/myk-org/github-webhook-server-sub001/pkg/checks"
	"github.com/myk-org/github-webhook-server-sub001/pkg/config"
	"github.com/myk-org/github-webhook-server-sub001/pkg/delivery"
	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
)

// process decodes the payload into its typed event and runs the matching
// workflow. A nil return means the delivery was handled or deliberately
// ignored; ignoring is never an error.
func (s *Server) process(logger *logrus.Entry, dc *delivery.Context, eventType string, payload []byte) error {
	ctx := s.baseContext()
	switch eventType {
	case "pull_request":
		var event github.PullRequestEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("could not parse pull_request event: %w", err)
		}
		event.GUID = dc.HookID()
		dc.SetAction(string(event.Action))
		dc.SetSender(event.Sender.Login)
		dc.SetRepository(event.Repo.Name, event.Repo.FullName)
		return s.processPullRequest(ctx, logger, dc, &event)
	case "issue_comment":
		var event github.IssueCommentEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("could not parse issue_comment event: %w", err)
		}
		event.GUID = dc.HookID()
		dc.SetAction(string(event.Action))
		dc.SetSender(event.Sender.Login)
		dc.SetRepository(event.Repo.Name, event.Repo.FullName)
		return s.processIssueComment(ctx, logger, dc, &event)
	case "pull_request_review":
		var event github.ReviewEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("could not parse pull_request_review event: %w", err)
		}
		event.GUID = dc.HookID()
		dc.SetAction(string(event.Action))
		dc.SetSender(event.Sender.Login)
		dc.SetRepository(event.Repo.Name, event.Repo.FullName)
		return s.processReview(ctx, logger, dc, &event)
	case "check_run":
		var event github.CheckRunEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("could not parse check_run event: %w", err)
		}
		event.GUID = dc.HookID()
		dc.SetAction(string(event.Action))
		dc.SetSender(event.Sender.Login)
		dc.SetRepository(event.Repo.Name, event.Repo.FullName)
		return s.processCheckRun(ctx, logger, dc, &event)
	case "push":
		var event github.PushEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("could not parse push event: %w", err)
		}
		event.GUID = dc.HookID()
		dc.SetSender(event.Sender.Login)
		dc.SetRepository(event.Repo.Name, event.Repo.FullName)
		return s.processPush(ctx, logger, dc, &event)
	default:
		logger.Debugf("Ignoring unsupported event type %q.", eventType)
		return nil
	}
}

// repoConfig returns the repository's config block, or nil for repositories
// this server does not manage.
func (s *Server) repoConfig(logger *logrus.Entry, fullName string) *config.Repository {
	repoCfg := s.Config.RepositoryBySlug(fullName)
	if repoCfg == nil {
		logger.Infof("Repository %s is not configured, ignoring delivery.", fullName)
	}
	return repoCfg
}

func (s *Server) processPullRequest(ctx context.Context, logger *logrus.Entry, dc *delivery.Context, event *github.PullRequestEvent) error {
	repoCfg := s.repoConfig(logger, event.Repo.FullName)
	if repoCfg == nil {
		return nil
	}
	pr := &event.PullRequest
	dc.SetPullRequest(pr.Number, pr.Title, pr.User.Login)
	if pr.Draft {
		logger.Infof("PR %d is a draft, skipping.", pr.Number)
		return nil
	}
	a, err := s.assemble(ctx, logger, dc, repoCfg, assembleOptions{pr: pr, private: event.Repo.Private})
	if err != nil {
		return err
	}
	defer a.finish(dc)
	return a.handler.HandlePullRequest(ctx, event)
}

func (s *Server) processIssueComment(ctx context.Context, logger *logrus.Entry, dc *delivery.Context, event *github.IssueCommentEvent) error {
	if event.Action != github.IssueCommentActionCreated {
		logger.Debugf("Ignoring issue_comment action %q.", event.Action)
		return nil
	}
	if !event.Issue.IsPullRequest() {
		logger.Debug("Comment is on a plain issue, ignoring.")
		return nil
	}
	repoCfg := s.repoConfig(logger, event.Repo.FullName)
	if repoCfg == nil {
		return nil
	}
	a, err := s.assemble(ctx, logger, dc, repoCfg, assembleOptions{prNumber: event.Issue.Number, private: event.Repo.Private})
	if err != nil {
		return err
	}
	defer a.finish(dc)
	return a.handler.HandleIssueComment(ctx, event)
}

func (s *Server) processReview(ctx context.Context, logger *logrus.Entry, dc *delivery.Context, event *github.ReviewEvent) error {
	repoCfg := s.repoConfig(logger, event.Repo.FullName)
	if repoCfg == nil {
		return nil
	}
	pr := &event.PullRequest
	dc.SetPullRequest(pr.Number, pr.Title, pr.User.Login)
	if pr.Draft {
		logger.Infof("PR %d is a draft, skipping.", pr.Number)
		return nil
	}
	a, err := s.assemble(ctx, logger, dc, repoCfg, assembleOptions{pr: pr, private: event.Repo.Private})
	if err != nil {
		return err
	}
	defer a.finish(dc)
	return a.handler.HandleReview(ctx, event)
}

func (s *Server) processCheckRun(ctx context.Context, logger *logrus.Entry, dc *delivery.Context, event *github.CheckRunEvent) error {
	// Cheap skips first: our own eligibility run completing would otherwise
	// trigger a full assembly on every verdict.
	if event.Action != github.CheckRunActionCompleted {
		logger.Debugf("Ignoring check_run action %q.", event.Action)
		return nil
	}
	if event.CheckRun.Name == checks.CanBeMerged {
		logger.Debug("Eligibility run completed, no re-evaluation.")
		return nil
	}
	if len(event.CheckRun.PullRequests) == 0 {
		logger.Debugf("Check run %s is not attached to a PR, ignoring.", event.CheckRun.Name)
		return nil
	}
	repoCfg := s.repoConfig(logger, event.Repo.FullName)
	if repoCfg == nil {
		return nil
	}
	a, err := s.assemble(ctx, logger, dc, repoCfg, assembleOptions{prNumber: event.CheckRun.PullRequests[0].Number, private: event.Repo.Private})
	if err != nil {
		return err
	}
	defer a.finish(dc)
	if a.handler.PR.Draft {
		logger.Infof("PR %d is a draft, skipping.", a.handler.PR.Number)
		return nil
	}
	return a.handler.HandleCheckRun(ctx, event)
}

func (s *Server) processPush(ctx context.Context, logger *logrus.Entry, dc *delivery.Context, event *github.PushEvent) error {
	if !event.IsTag() || event.Deleted {
		logger.Debug("Push is not a new tag, ignoring.")
		return nil
	}
	repoCfg := s.repoConfig(logger, event.Repo.FullName)
	if repoCfg == nil {
		return nil
	}
	a, err := s.assemble(ctx, logger, dc, repoCfg, assembleOptions{private: event.Repo.Private})
	if err != nil {
		return err
	}
	defer a.finish(dc)
	return a.handler.HandlePush(ctx, event)
}
