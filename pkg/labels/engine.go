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

package labels

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/myk-org/github-webhook-server-sub001/pkg/config"
	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
)

const (
	// consistencyTimeout bounds how long a mutation waits for GitHub to
	// reflect the new label state.
	consistencyTimeout = 30 * time.Second
	initialBackoff     = 500 * time.Millisecond
	maxBackoff         = 5 * time.Second
)

type githubClient interface {
	GetRepoLabel(org, repo, name string) (*github.Label, error)
	CreateRepoLabel(org, repo, name, color string) (*github.Label, error)
	UpdateRepoLabelColor(org, repo, name, color string) (*github.Label, error)
	AddLabelsToLabelable(labelableID string, labelIDs []string) ([]github.Label, error)
	RemoveLabelsFromLabelable(labelableID string, labelIDs []string) ([]github.Label, error)
	GetPullRequestLabels(org, repo string, number int) (string, []github.Label, error)
}

// Engine mutates one PR's labels, keeping the shared PR view in sync from
// mutation responses. Mutations within a delivery are serialized on a mutex;
// the fan-out stages call into the engine concurrently.
type Engine struct {
	gc     githubClient
	logger *logrus.Entry
	org    string
	repo   string
	pr     *github.PullRequest

	// enabled restricts which static labels are applied when the
	// enabled-labels key is set; nil means everything is enabled.
	enabled map[string]bool

	// isApprover answers whether a user may hold the approved-by state.
	isApprover func(user string) bool

	lock  chan struct{}
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine returns an engine bound to the delivery's PR view. enabledLabels
// comes straight from the resolver: nil slice with ok=false means no
// restriction. isApprover gates the approve projection and may be nil when no
// OWNERS data exists for the delivery.
func NewEngine(logger *logrus.Entry, gc githubClient, org, repo string, pr *github.PullRequest, enabledLabels []string, enabledSet bool, isApprover func(string) bool) *Engine {
	var enabled map[string]bool
	if enabledSet {
		enabled = make(map[string]bool, len(enabledLabels))
		for _, name := range enabledLabels {
			enabled[strings.ToLower(name)] = true
		}
	}
	e := &Engine{
		gc:         gc,
		logger:     logger,
		org:        org,
		repo:       repo,
		pr:         pr,
		enabled:    enabled,
		isApprover: isApprover,
		lock:       make(chan struct{}, 1),
		sleep:      sleepContext,
	}
	return e
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

func (e *Engine) acquire(ctx context.Context) error {
	select {
	case e.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() {
	<-e.lock
}

// Add applies a managed label to the PR, resolving its color from the
// taxonomy.
func (e *Engine) Add(ctx context.Context, name string) error {
	return e.AddColored(ctx, name, ColorFor(name))
}

// AddColored applies a label with an explicit color (custom size scales).
// The repo-level label is created on first use and recolored when it drifted.
// Names keep their case; all comparisons are case-insensitive.
func (e *Engine) AddColored(ctx context.Context, name, color string) error {
	if len(name) > MaxLength {
		return fmt.Errorf("label %q exceeds %d characters", name, MaxLength)
	}
	if e.enabled != nil && isStatic(strings.ToLower(name)) && !e.enabled[strings.ToLower(name)] {
		e.logger.Debugf("Label %q is not in enabled-labels, skipping.", name)
		return nil
	}
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()
	if e.pr.HasLabel(name) {
		return nil
	}

	labelID, err := e.ensureRepoLabel(name, color)
	if err != nil {
		return err
	}
	updated, err := e.gc.AddLabelsToLabelable(e.pr.NodeID, []string{labelID})
	if err != nil {
		return err
	}
	e.pr.Labels = updated
	return e.waitForConsistency(ctx, name, true)
}

// Remove detaches a label from the PR; absent labels are a no-op.
func (e *Engine) Remove(ctx context.Context, name string) error {
	if err := e.acquire(ctx); err != nil {
		return err
	}
	defer e.release()
	if !e.pr.HasLabel(name) {
		return nil
	}

	var labelID string
	for _, label := range e.pr.Labels {
		if strings.EqualFold(label.Name, name) {
			labelID = label.NodeID
			break
		}
	}
	if labelID == "" {
		// The cached view knows the label but not its node id; refresh once.
		nodeID, current, err := e.gc.GetPullRequestLabels(e.org, e.repo, e.pr.Number)
		if err != nil {
			return err
		}
		e.pr.NodeID = nodeID
		e.pr.Labels = current
		for _, label := range current {
			if strings.EqualFold(label.Name, name) {
				labelID = label.NodeID
				break
			}
		}
		if labelID == "" {
			return nil
		}
	}
	updated, err := e.gc.RemoveLabelsFromLabelable(e.pr.NodeID, []string{labelID})
	if err != nil {
		return err
	}
	e.pr.Labels = updated
	return e.waitForConsistency(ctx, name, false)
}

// RemoveWithPrefix removes every label carrying the given prefix; the
// synchronize action uses it to clear review state.
func (e *Engine) RemoveWithPrefix(ctx context.Context, prefixes ...string) error {
	var names []string
	for _, label := range e.pr.Labels {
		lower := strings.ToLower(label.Name)
		for _, prefix := range prefixes {
			if strings.HasPrefix(lower, prefix) {
				names = append(names, label.Name)
				break
			}
		}
	}
	for _, name := range names {
		if err := e.Remove(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// EnsureSize computes the PR's size label and swaps out a stale one.
func (e *Engine) EnsureSize(ctx context.Context, overrides map[string]config.SizeThreshold) error {
	name, color := SizeLabel(e.pr.ChangeSize(), overrides, e.logger)
	var stale []string
	for _, label := range e.pr.Labels {
		lower := strings.ToLower(label.Name)
		if strings.HasPrefix(lower, SizePrefix) && !strings.EqualFold(label.Name, name) {
			stale = append(stale, label.Name)
		}
	}
	for _, old := range stale {
		if err := e.Remove(ctx, old); err != nil {
			return err
		}
	}
	return e.AddColored(ctx, name, color)
}

// ensureRepoLabel finds or creates the repository-level label and returns its
// node id. An existing label with a drifted color is updated in place.
func (e *Engine) ensureRepoLabel(name, color string) (string, error) {
	label, err := e.gc.GetRepoLabel(e.org, e.repo, name)
	if err != nil {
		return "", err
	}
	if label == nil {
		created, err := e.gc.CreateRepoLabel(e.org, e.repo, name, color)
		if err != nil {
			return "", err
		}
		return created.NodeID, nil
	}
	if !strings.EqualFold(label.Color, color) {
		updated, err := e.gc.UpdateRepoLabelColor(e.org, e.repo, name, color)
		if err != nil {
			// A stale color does not block the workflow.
			e.logger.WithError(err).Warnf("Could not update color of label %q.", name)
			return label.NodeID, nil
		}
		return updated.NodeID, nil
	}
	return label.NodeID, nil
}

// waitForConsistency polls until the PR view reflects the mutation. GitHub's
// API acknowledges label mutations before search-consistent reads observe
// them, so subsequent logic re-checks through the fetched view.
func (e *Engine) waitForConsistency(ctx context.Context, name string, present bool) error {
	deadline := time.Now().Add(consistencyTimeout)
	backoff := initialBackoff
	for {
		if e.pr.HasLabel(name) == present {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("label %q did not become present=%t within %s", name, present, consistencyTimeout)
		}
		if err := e.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		nodeID, current, err := e.gc.GetPullRequestLabels(e.org, e.repo, e.pr.Number)
		if err != nil {
			return err
		}
		e.pr.NodeID = nodeID
		e.pr.Labels = current
	}
}

func isStatic(name string) bool {
	_, ok := staticColors[name]
	return ok
}

// ReviewAction selects whether a projection adds or deletes the target label.
type ReviewAction string

const (
	ActionAdd    ReviewAction = "add"
	ActionDelete ReviewAction = "delete"
)

// ReviewState names the review outcomes the projection understands. Approved
// covers both GitHub's approved review and the /lgtm command; Approve is the
// explicit /approve path.
type ReviewState string

const (
	StateApprove          ReviewState = "approve"
	StateApproved         ReviewState = "approved"
	StateLGTM             ReviewState = "lgtm"
	StateChangesRequested ReviewState = "changes_requested"
	StateCommented        ReviewState = "commented"
)

// ManageReviewedBy projects a review state onto the per-user label families.
// Adding one side of the lgtm/changes-requested pair removes the other, so a
// user never holds both.
func (e *Engine) ManageReviewedBy(ctx context.Context, state ReviewState, action ReviewAction, user string) error {
	user = strings.ToLower(user)
	var prefix, paired string
	switch state {
	case StateApprove:
		if e.isApprover == nil || !e.isApprover(user) {
			e.logger.Debugf("User %s is not an approver, ignoring approve.", user)
			return nil
		}
		prefix, paired = ApprovedByPrefix, ChangesRequestedByPrefix
	case StateApproved, StateLGTM:
		if strings.EqualFold(user, e.pr.User.Login) {
			e.logger.Debugf("User %s authored the PR, ignoring lgtm.", user)
			return nil
		}
		prefix, paired = LGTMByPrefix, ChangesRequestedByPrefix
	case StateChangesRequested:
		prefix, paired = ChangesRequestedByPrefix, LGTMByPrefix
	case StateCommented:
		prefix = CommentedByPrefix
	default:
		e.logger.Debugf("Ignoring unsupported review state %q.", state)
		return nil
	}

	if action == ActionDelete {
		return e.Remove(ctx, prefix+user)
	}
	if err := e.Add(ctx, prefix+user); err != nil {
		return err
	}
	if paired != "" {
		return e.Remove(ctx, paired+user)
	}
	return nil
}
