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

package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/myk-org/github-webhook-server-sub001/pkg/command"
	"github.com/myk-org/github-webhook-server-sub001/pkg/config"
	"github.com/myk-org/github-webhook-server-sub001/pkg/delivery"
	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
	"github.com/myk-org/github-webhook-server-sub001/pkg/githubapp"
	"github.com/myk-org/github-webhook-server-sub001/pkg/hook"
	"github.com/myk-org/github-webhook-server-sub001/pkg/interrupts"
	"github.com/myk-org/github-webhook-server-sub001/pkg/logrusutil"
	"github.com/myk-org/github-webhook-server-sub001/pkg/secret"
	"github.com/myk-org/github-webhook-server-sub001/pkg/secretutil"
	"github.com/myk-org/github-webhook-server-sub001/pkg/testoracle"
)

type options struct {
	configPath        string
	webhookSecretFile string
	appPrivateKeyFile string
	tokenFiles        []string
	githubEndpoint    string
	gracePeriod       time.Duration
}

func gatherOptions() options {
	o := options{}
	flag.StringVar(&o.configPath, "config-path", "/home/webhook-server/config.yaml", "Path to the server configuration file.")
	flag.StringVar(&o.webhookSecretFile, "webhook-secret-file", "", "Path to a file containing the webhook HMAC secret. Takes precedence over webhook-secret in the configuration and is reloaded on change.")
	flag.StringVar(&o.appPrivateKeyFile, "github-app-private-key-file", "", "Path to the GitHub App private key. Takes precedence over github-app-private-key-path in the configuration.")
	flag.StringSliceVar(&o.tokenFiles, "github-token-file", nil, "Path to a file containing one GitHub API token. May be repeated; file tokens join the pool alongside tokens from the configuration and are reloaded on change.")
	flag.StringVar(&o.githubEndpoint, "github-endpoint", github.DefaultAPIBase, "GitHub's API endpoint.")
	flag.DurationVar(&o.gracePeriod, "grace-period", 180*time.Second, "On shutdown, finish in-flight deliveries for at most this long before exiting.")
	flag.Parse()
	return o
}

func main() {
	o := gatherOptions()

	cfg, err := config.Load(o.configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Could not load the configuration.")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithError(err).Fatalf("Could not parse log level %q.", cfg.LogLevel)
	}
	logrus.SetLevel(level)

	censorer := secretutil.NewCensorer()
	censorer.Refresh(cfg.Secrets()...)
	logrusutil.Init(&logrusutil.DefaultFieldsFormatter{
		PrintLineNumber:  true,
		DefaultFields:    logrus.Fields{"component": "webhook-server"},
		WrappedFormatter: logrusutil.NewCensoringFormatter(&logrus.JSONFormatter{}, censorer),
	})
	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			logrus.WithError(err).Fatalf("Could not open log file %s.", cfg.LogFile)
		}
		logrus.SetOutput(io.MultiWriter(os.Stderr, file))
	}
	logger := logrus.NewEntry(logrus.StandardLogger())

	var secretFiles []string
	if o.webhookSecretFile != "" {
		secretFiles = append(secretFiles, o.webhookSecretFile)
	}
	if o.appPrivateKeyFile != "" {
		secretFiles = append(secretFiles, o.appPrivateKeyFile)
	}
	secretFiles = append(secretFiles, o.tokenFiles...)
	if len(secretFiles) > 0 {
		if err := secret.AddWithCensorer(censorer, secretFiles...); err != nil {
			logrus.WithError(err).Fatal("Could not load secret files.")
		}
	}

	webhookSecret := func() []byte {
		if o.webhookSecretFile != "" {
			return secret.GetSecret(o.webhookSecretFile)
		}
		if cfg.WebhookSecret == "" {
			return nil
		}
		return []byte(cfg.WebhookSecret)
	}
	if webhookSecret() == nil {
		logger.Warn("No webhook secret configured, payload signatures will not be validated.")
	}

	var tokenGetters []func() []byte
	for _, token := range cfg.GitHubTokens {
		tokenGetters = append(tokenGetters, func() []byte { return []byte(token) })
	}
	for _, path := range o.tokenFiles {
		tokenGetters = append(tokenGetters, secret.GetTokenGenerator(path))
	}
	if len(tokenGetters) == 0 {
		logrus.Fatal("No GitHub tokens available, set github-tokens in the configuration or pass --github-token-file.")
	}
	tokenPool := github.NewTokenPool(logger, o.githubEndpoint, tokenGetters...)

	appKeyPath := o.appPrivateKeyFile
	if appKeyPath == "" {
		appKeyPath = cfg.GitHubAppPrivateKeyPath
	}
	if cfg.GitHubAppID == 0 || appKeyPath == "" {
		logrus.Fatal("A GitHub App ID and private key are required, set github-app-id and github-app-private-key-path in the configuration.")
	}
	appKey := secret.GetSecret(appKeyPath)
	if len(appKey) == 0 {
		appKey, err = os.ReadFile(appKeyPath)
		if err != nil {
			logrus.WithError(err).Fatalf("Could not read the GitHub App private key from %s.", appKeyPath)
		}
	}
	appClient, err := githubapp.New(logger, cfg.GitHubAppID, appKey)
	if err != nil {
		logrus.WithError(err).Fatal("Could not construct the GitHub App client.")
	}

	ipGate, err := hook.NewIPGate(interrupts.Context(), logger, hook.IPGateOptions{
		GitHub:     cfg.VerifyGitHubIPs,
		Cloudflare: cfg.VerifyCloudflareIPs,
		APIBase:    o.githubEndpoint,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Could not fetch the allowed webhook source ranges.")
	}

	server := &hook.Server{
		Logger:        logger,
		Config:        cfg,
		WebhookSecret: webhookSecret,
		TokenPool:     tokenPool,
		AppClient:     appClient,
		Audit:         delivery.NewAuditWriter(filepath.Join(cfg.DataDir, "logs"), censorer),
		Censorer:      censorer,
		CommandRunner: command.NewRunner(logger, censorer),
		Oracle:        testoracle.New(logger),
		Tracker:       &testoracle.Tracker{},
		IPGate:        ipGate,
		Metrics:       hook.NewMetrics(),
		APIBase:       o.githubEndpoint,
		DataDir:       cfg.DataDir,
		BaseCtx:       interrupts.Context(),
	}

	mux := http.NewServeMux()
	mux.Handle("/webhook_server", server)
	mux.HandleFunc("/webhook_server/healthcheck", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status": "ok"}`)
	})
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.IPBind, cfg.Port), Handler: mux}
	logger.Infof("Serving webhooks on %s.", httpServer.Addr)

	interrupts.OnInterrupt(server.GracefulShutdown)
	interrupts.ListenAndServe(httpServer, o.gracePeriod)
	interrupts.WaitForGracefulShutdown()
}
