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

// Package githubapp builds installation-scoped GitHub clients from GitHub App
// credentials. App authentication is required for the check-run API: check
// runs created with a personal access token cannot be updated by the app UI
// and do not show up under the app's identity.
package githubapp

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"github.com/sirupsen/logrus"
)

// Client hands out installation-scoped REST clients for repositories the app
// is installed on. Installation lookups are cached for the process lifetime;
// the underlying transports refresh their installation tokens on their own.
type Client struct {
	logger        *logrus.Entry
	appsTransport *ghinstallation.AppsTransport

	lock          sync.Mutex
	installations map[string]*github.Client
}

// New returns a Client for the given app ID and PEM-encoded private key.
func New(logger *logrus.Entry, appID int64, privateKey []byte) (*Client, error) {
	appsTransport, err := ghinstallation.NewAppsTransport(http.DefaultTransport, appID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("could not create apps transport: %w", err)
	}
	return &Client{
		logger:        logger,
		appsTransport: appsTransport,
		installations: map[string]*github.Client{},
	}, nil
}

// InstallationClient returns a REST client authenticated as the app's
// installation on org/repo, resolving the installation ID on first use.
func (c *Client) InstallationClient(ctx context.Context, org, repo string) (*github.Client, error) {
	key := org + "/" + repo
	c.lock.Lock()
	defer c.lock.Unlock()
	if client, ok := c.installations[key]; ok {
		return client, nil
	}

	appClient := github.NewClient(&http.Client{Transport: c.appsTransport})
	installation, _, err := appClient.Apps.FindRepositoryInstallation(ctx, org, repo)
	if err != nil {
		return nil, fmt.Errorf("could not find app installation for %s: %w", key, err)
	}
	c.logger.WithFields(logrus.Fields{
		"org":          org,
		"repo":         repo,
		"installation": installation.GetID(),
	}).Debug("Resolved GitHub App installation.")

	transport := ghinstallation.NewFromAppsTransport(c.appsTransport, installation.GetID())
	client := github.NewClient(&http.Client{Transport: transport})
	c.installations[key] = client
	return client, nil
}
