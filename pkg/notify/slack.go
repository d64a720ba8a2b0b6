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

// Package notify posts operational notifications to a Slack incoming
// webhook.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
)

// Slack posts messages to one incoming-webhook URL.
type Slack struct {
	logger *logrus.Entry
	url    string
	client *http.Client
}

// NewSlack returns a notifier for the webhook URL; an empty URL returns nil,
// and callers must not wrap a nil *Slack in a non-nil interface.
func NewSlack(logger *logrus.Entry, url string) *Slack {
	if url == "" {
		return nil
	}
	return &Slack{
		logger: logger,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts one message.
func (s *Slack) Send(ctx context.Context, text string) error {
	msg := &slack.WebhookMessage{Text: text}
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.url, s.client, msg); err != nil {
		return fmt.Errorf("could not post to slack: %w", err)
	}
	s.logger.Debug("Posted Slack notification.")
	return nil
}
