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

package github

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// unauthenticatedLimit is the hourly core quota GitHub grants requests that
// carry no usable credentials. A token reporting it is rejected or expired.
const unauthenticatedLimit = 60

// TokenPool selects which of the configured personal access tokens a delivery
// should spend. Every pick re-reads the quota of each token so that deliveries
// spread across the pool instead of exhausting one token at a time.
type TokenPool struct {
	logger  *logrus.Entry
	base    string
	getters []func() []byte
}

// NewTokenPool returns a pool over the given token generators. base is the
// GitHub API base URL the probe clients should talk to.
func NewTokenPool(logger *logrus.Entry, base string, getters ...func() []byte) *TokenPool {
	return &TokenPool{logger: logger, base: base, getters: getters}
}

// Size returns how many tokens the pool manages.
func (p *TokenPool) Size() int {
	return len(p.getters)
}

// Pick returns the token generator with the most remaining core quota along
// with that remaining count. Tokens whose reported limit equals the
// unauthenticated quota are treated as invalid and skipped. An error is
// returned only when no token in the pool is usable.
func (p *TokenPool) Pick(ctx context.Context) (func() []byte, int, error) {
	var (
		best          func() []byte
		bestRemaining = -1
	)
	for i, getToken := range p.getters {
		probe := NewClient(ctx, p.logger.WithField("token-index", i), getToken, p.base, nil)
		limits, err := probe.GetRateLimit()
		if err != nil {
			p.logger.WithError(err).WithField("token-index", i).Warn("Failed to read token rate limit, skipping token.")
			continue
		}
		core := limits.Resources.Core
		if core.Limit == unauthenticatedLimit {
			p.logger.WithField("token-index", i).Warn("Token reports the unauthenticated rate limit, skipping token.")
			continue
		}
		if core.Remaining > bestRemaining {
			best = getToken
			bestRemaining = core.Remaining
		}
	}
	if best == nil {
		return nil, 0, fmt.Errorf("no usable token among %d configured", len(p.getters))
	}
	return best, bestRemaining, nil
}
