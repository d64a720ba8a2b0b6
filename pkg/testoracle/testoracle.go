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

// Package testoracle notifies the optional external PR-review service.
// Calls are best effort and fire-and-forget; the tracker keeps them alive
// until shutdown so a drained process never abandons an in-flight request.
package testoracle

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/myk-org/github-webhook-server-sub001/pkg/config"
	"github.com/myk-org/github-webhook-server-sub001/pkg/logrusutil"
)

// Tracker holds the process-wide set of fire-and-forget calls.
type Tracker struct {
	wg sync.WaitGroup
}

// Go runs fn in the background and tracks it until it returns.
func (t *Tracker) Go(fn func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
}

// Drain blocks until every tracked call has returned.
func (t *Tracker) Drain() {
	t.wg.Wait()
}

// Client posts review requests to the oracle endpoint.
type Client struct {
	logger *logrus.Entry
	http   *retryablehttp.Client
}

// New returns a Client with a 10s per-request timeout.
func New(logger *logrus.Entry) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = logrusutil.RetryableLogger{Entry: logger}
	return &Client{logger: logger, http: rc}
}

// request is the oracle's expected payload.
type request struct {
	PullRequestURL string   `json:"pr_url"`
	AIProvider     string   `json:"ai-provider,omitempty"`
	AIModel        string   `json:"ai-model,omitempty"`
	TestPatterns   []string `json:"test-patterns,omitempty"`
}

// Notify posts the PR to the configured oracle. Errors are logged, never
// propagated: review hints must not affect the delivery outcome.
func (c *Client) Notify(ctx context.Context, oracle *config.TestOracle, prURL string) {
	payload, err := json.Marshal(request{
		PullRequestURL: prURL,
		AIProvider:     oracle.AIProvider,
		AIModel:        oracle.AIModel,
		TestPatterns:   oracle.TestPatterns,
	})
	if err != nil {
		c.logger.WithError(err).Warn("Could not encode test oracle request.")
		return
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, oracle.ServerURL, payload)
	if err != nil {
		c.logger.WithError(err).Warn("Could not build test oracle request.")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).Warn("Test oracle call failed.")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		c.logger.Warnf("Test oracle returned %s.", resp.Status)
		return
	}
	c.logger.WithField("pr", prURL).Debug("Notified test oracle.")
}

// ShouldTrigger reports whether the oracle wants to hear about the given
// event. An empty trigger list means every supported event.
func ShouldTrigger(oracle *config.TestOracle, event string) bool {
	if oracle == nil || oracle.ServerURL == "" {
		return false
	}
	if len(oracle.Triggers) == 0 {
		return true
	}
	for _, trigger := range oracle.Triggers {
		if trigger == event {
			return true
		}
	}
	return false
}
