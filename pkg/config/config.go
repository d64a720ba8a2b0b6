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

// Package config loads and validates the central config.yaml and implements
// the three-tier setting resolution used while processing a delivery: the
// repository's own `.github-webhook-server.yaml` at the PR base ref wins
// over the repository block in config.yaml, which wins over the config root.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"sigs.k8s.io/yaml"
)

// LocalFileName is the per-repository override file read from the repository
// root at the base ref of the pull request being processed.
const LocalFileName = ".github-webhook-server.yaml"

// PyPI configures publishing to PyPI on new version tags.
type PyPI struct {
	Token string `json:"token,omitempty"`
}

// Container configures image build/push for a repository.
type Container struct {
	Username   string   `json:"username,omitempty"`
	Password   string   `json:"password,omitempty"`
	Repository string   `json:"repository,omitempty"`
	Dockerfile string   `json:"dockerfile,omitempty"`
	Tag        string   `json:"tag,omitempty"`
	BuildArgs  []string `json:"build-args,omitempty"`
	Args       []string `json:"args,omitempty"`
	Release    bool     `json:"release,omitempty"`
}

// SizeThreshold is one custom PR-size bucket: the label applies to PRs whose
// change count is below Threshold.
type SizeThreshold struct {
	Threshold int    `json:"threshold"`
	Color     string `json:"color,omitempty"`
}

// ProtectedBranch tunes the required-check set for PRs targeting one branch.
type ProtectedBranch struct {
	IncludeRuns []string `json:"include-runs,omitempty"`
	ExcludeRuns []string `json:"exclude-runs,omitempty"`
}

// BranchProtection mirrors the repository branch-protection settings managed
// by the out-of-band bootstrap tooling. The server recognizes the key but
// does not act on it at delivery time.
type BranchProtection struct {
	Strict                 bool `json:"strict,omitempty"`
	RequiredApprovingCount int  `json:"required-approving-review-count,omitempty"`
	EnforceAdmins          bool `json:"enforce-admins,omitempty"`
}

// CustomCheckRun is a user-configured check command. Commands are validated
// by ValidateCustomCommand before they ever reach a shellless exec. Mandatory
// checks join the required-check set consulted by can-be-merged.
type CustomCheckRun struct {
	Name           string `json:"name"`
	Command        string `json:"command"`
	TimeoutSeconds int    `json:"timeout-seconds,omitempty"`
	Mandatory      bool   `json:"mandatory,omitempty"`
}

// TestOracle configures the optional external review service notified about
// PR activity.
type TestOracle struct {
	ServerURL    string   `json:"server-url,omitempty"`
	AIProvider   string   `json:"ai-provider,omitempty"`
	AIModel      string   `json:"ai-model,omitempty"`
	Triggers     []string `json:"triggers,omitempty"`
	TestPatterns []string `json:"test-patterns,omitempty"`
}

// DataCaps bounds the collection sizes of the repository snapshot query.
type DataCaps struct {
	Collaborators int `json:"collaborators,omitempty"`
	Contributors  int `json:"contributors,omitempty"`
	Issues        int `json:"issues,omitempty"`
	PullRequests  int `json:"pull-requests,omitempty"`
}

// RepoSettings holds every key that participates in three-tier resolution.
// The typed form is used for startup validation only; per-delivery reads go
// through the Resolver so that explicit nulls keep their meaning.
type RepoSettings struct {
	Tox                        map[string]string          `json:"tox,omitempty"`
	ToxPythonVersion           string                     `json:"tox-python-version,omitempty"`
	PreCommit                  *bool                      `json:"pre-commit,omitempty"`
	PythonModuleInstall        *bool                      `json:"python-module-install,omitempty"`
	PyPI                       *PyPI                      `json:"pypi,omitempty"`
	Container                  *Container                 `json:"container,omitempty"`
	ConventionalTitle          string                     `json:"conventional-title,omitempty"`
	MinimumLGTM                int                        `json:"minimum-lgtm,omitempty"`
	VerifiedJob                *bool                      `json:"verified-job,omitempty"`
	AutoVerifiedAndMergedUsers []string                   `json:"auto-verified-and-merged-users,omitempty"`
	AutoVerifyCherryPickedPRs  *bool                      `json:"auto-verify-cherry-picked-prs,omitempty"`
	CanBeMergedRequiredLabels  []string                   `json:"can-be-merged-required-labels,omitempty"`
	SetAutoMergePRs            []string                   `json:"set-auto-merge-prs,omitempty"`
	CreateIssueForNewPR        *bool                      `json:"create-issue-for-new-pr,omitempty"`
	AllowCommandsOnDraftPRs    []string                   `json:"allow-commands-on-draft-prs,omitempty"`
	MaxOwnersFiles             int                        `json:"max-owners-files,omitempty"`
	PRSizeThresholds           map[string]SizeThreshold   `json:"pr-size-thresholds,omitempty"`
	SlackWebhookURL            string                     `json:"slack-webhook-url,omitempty"`
	BranchProtection           *BranchProtection          `json:"branch_protection,omitempty"`
	ProtectedBranches          map[string]ProtectedBranch `json:"protected-branches,omitempty"`
	DefaultStatusChecks        []string                   `json:"default-status-checks,omitempty"`
	CustomCheckRuns            []CustomCheckRun           `json:"custom-check-runs,omitempty"`
	TestOracle                 *TestOracle                `json:"test-oracle,omitempty"`
	EnabledLabels              []string                   `json:"enabled-labels,omitempty"`
	MaskSensitiveData          *bool                      `json:"mask-sensitive-data,omitempty"`
	RepositoryDataCaps         *DataCaps                  `json:"repository-data-caps,omitempty"`
}

// Repository is one entry under the required `repositories` map. The map key
// is a short alias; Name carries the org/name slug.
type Repository struct {
	RepoSettings
	Name string `json:"name"`

	raw map[string]json.RawMessage
}

// Org returns the owner part of the repository slug.
func (r *Repository) Org() string {
	org, _, _ := strings.Cut(r.Name, "/")
	return org
}

// Repo returns the name part of the repository slug.
func (r *Repository) Repo() string {
	_, repo, _ := strings.Cut(r.Name, "/")
	return repo
}

// Config is the root of config.yaml. Its embedded RepoSettings is the lowest
// tier of per-repository resolution.
type Config struct {
	RepoSettings
	GitHubAppID             int64                  `json:"github-app-id,omitempty"`
	GitHubAppPrivateKeyPath string                 `json:"github-app-private-key-path,omitempty"`
	GitHubTokens            []string               `json:"github-tokens,omitempty"`
	WebhookIP               string                 `json:"webhook-ip,omitempty"`
	WebhookSecret           string                 `json:"webhook-secret,omitempty"`
	IPBind                  string                 `json:"ip-bind,omitempty"`
	Port                    int                    `json:"port,omitempty"`
	MaxWorkers              int                    `json:"max-workers,omitempty"`
	VerifyGitHubIPs         bool                   `json:"verify-github-ips,omitempty"`
	VerifyCloudflareIPs     bool                   `json:"verify-cloudflare-ips,omitempty"`
	LogLevel                string                 `json:"log-level,omitempty"`
	LogFile                 string                 `json:"log-file,omitempty"`
	DataDir                 string                 `json:"data-dir,omitempty"`
	Repositories            map[string]*Repository `json:"repositories"`

	raw map[string]json.RawMessage
}

// Load reads, parses and validates the config file at path, applying
// defaults for unset server settings.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}
	return parse(b)
}

func parse(b []byte) (*Config, error) {
	j, err := yaml.YAMLToJSON(b)
	if err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}
	var c Config
	if err := json.Unmarshal(j, &c); err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	// Keep the raw key/value views so the resolver can tell an explicit
	// null apart from an absent key.
	if err := json.Unmarshal(j, &c.raw); err != nil {
		return nil, fmt.Errorf("could not index config: %w", err)
	}
	if reposRaw, ok := c.raw["repositories"]; ok && !isNull(reposRaw) {
		var repoMaps map[string]map[string]json.RawMessage
		if err := json.Unmarshal(reposRaw, &repoMaps); err != nil {
			return nil, fmt.Errorf("could not index repositories: %w", err)
		}
		for alias, m := range repoMaps {
			if repo := c.Repositories[alias]; repo != nil {
				repo.raw = m
			}
		}
	}

	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.IPBind == "" {
		c.IPBind = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 5000
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = 10
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataDir == "" {
		c.DataDir = "/data"
	}
}

func (c *Config) validate() error {
	// The repositories key is required and its spelling is enforced: a
	// typoed key would otherwise silently configure nothing.
	if _, ok := c.raw["repositories"]; !ok {
		return fmt.Errorf("config must define the 'repositories' key")
	}
	if len(c.Repositories) == 0 {
		return fmt.Errorf("config defines no repositories")
	}
	for alias, repo := range c.Repositories {
		if repo == nil {
			return fmt.Errorf("repository %q: empty block", alias)
		}
		if strings.Count(repo.Name, "/") != 1 || strings.HasPrefix(repo.Name, "/") || strings.HasSuffix(repo.Name, "/") {
			return fmt.Errorf("repository %q: name %q is not an org/name slug", alias, repo.Name)
		}
		for _, check := range repo.CustomCheckRuns {
			if err := ValidateCustomCommand(check.Command); err != nil {
				return fmt.Errorf("repository %q: custom check %q: %w", alias, check.Name, err)
			}
		}
	}
	for _, check := range c.CustomCheckRuns {
		if err := ValidateCustomCommand(check.Command); err != nil {
			return fmt.Errorf("custom check %q: %w", check.Name, err)
		}
	}
	if len(c.GitHubTokens) == 0 {
		return fmt.Errorf("config must provide at least one entry in 'github-tokens'")
	}
	if c.GitHubAppID == 0 || c.GitHubAppPrivateKeyPath == "" {
		return fmt.Errorf("config must provide 'github-app-id' and 'github-app-private-key-path'")
	}
	return nil
}

// RepositoryBySlug returns the repository block whose name matches the given
// org/name slug, or nil when the repository is not configured.
func (c *Config) RepositoryBySlug(fullName string) *Repository {
	for _, repo := range c.Repositories {
		if strings.EqualFold(repo.Name, fullName) {
			return repo
		}
	}
	return nil
}

// Secrets returns every secret literal found in the config so that they can
// be registered with the process censorer up front.
func (c *Config) Secrets() []string {
	var secrets []string
	add := func(s string) {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	add(c.WebhookSecret)
	for _, token := range c.GitHubTokens {
		add(token)
	}
	collect := func(s *RepoSettings) {
		if s.PyPI != nil {
			add(s.PyPI.Token)
		}
		if s.Container != nil {
			add(s.Container.Password)
		}
		add(s.SlackWebhookURL)
	}
	collect(&c.RepoSettings)
	for _, repo := range c.Repositories {
		collect(&repo.RepoSettings)
	}
	return secrets
}

// customCommandPrefix is the only launcher allowed for user-configured check
// commands.
const customCommandPrefix = "uv tool run --from "

// shellMetaCharacters would change the meaning of a command line under a
// shell. Commands run without one, but user-supplied strings are rejected
// outright rather than trusted to stay out of shells downstream.
const shellMetaCharacters = ";&|<>$`\\\"'*?~#!(){}[]\n"

// ValidateCustomCommand enforces the custom-check command contract.
func ValidateCustomCommand(command string) error {
	if !strings.HasPrefix(command, customCommandPrefix) {
		return fmt.Errorf("command must start with %q", customCommandPrefix)
	}
	if i := strings.IndexAny(command, shellMetaCharacters); i >= 0 {
		return fmt.Errorf("command contains forbidden character %q", command[i])
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
