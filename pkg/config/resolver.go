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

package config

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
	"sigs.k8s.io/yaml"
)

// Resolver answers per-repository setting lookups for one delivery. Tiers are
// consulted in order: the repository's local override file, the repository
// block in config.yaml, the config.yaml root. The first tier that mentions a
// key decides it; an explicit null means "use the built-in default" and stops
// the search rather than falling through.
type Resolver struct {
	log   *logrus.Entry
	tiers []map[string]json.RawMessage
}

// NewResolver builds a resolver for one delivery. localConfig holds the raw
// bytes of the repository's override file at the PR base ref and may be nil;
// a malformed override is logged and skipped so that the central config still
// applies. repo may be nil for repositories without their own block.
func NewResolver(log *logrus.Entry, localConfig []byte, repo *Repository, root *Config) *Resolver {
	r := &Resolver{log: log}
	if len(localConfig) > 0 {
		local, err := parseTier(localConfig)
		if err != nil {
			log.WithError(err).Warnf("Ignoring malformed %s.", LocalFileName)
		} else {
			r.tiers = append(r.tiers, local)
		}
	}
	if repo != nil && repo.raw != nil {
		r.tiers = append(r.tiers, repo.raw)
	}
	if root != nil && root.raw != nil {
		r.tiers = append(r.tiers, root.raw)
	}
	return r
}

func parseTier(b []byte) (map[string]json.RawMessage, error) {
	j, err := yaml.YAMLToJSON(b)
	if err != nil {
		return nil, err
	}
	var tier map[string]json.RawMessage
	if err := json.Unmarshal(j, &tier); err != nil {
		return nil, err
	}
	return tier, nil
}

// lookup returns the first tier's raw value for key. ok is false both when no
// tier mentions the key and when the deciding tier holds an explicit null.
func (r *Resolver) lookup(key string) (json.RawMessage, bool) {
	for _, tier := range r.tiers {
		raw, present := tier[key]
		if !present {
			continue
		}
		if isNull(raw) {
			return nil, false
		}
		return raw, true
	}
	return nil, false
}

// unmarshal decodes the resolved value for key into out, reporting whether a
// usable value was found. Type mismatches are logged and treated as unset.
func (r *Resolver) unmarshal(key string, out interface{}) bool {
	raw, ok := r.lookup(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		r.log.WithError(err).Warnf("Ignoring malformed config value for %q.", key)
		return false
	}
	return true
}

func (r *Resolver) getBool(key string, def bool) bool {
	var v bool
	if !r.unmarshal(key, &v) {
		return def
	}
	return v
}

func (r *Resolver) getInt(key string, def int) int {
	var v int
	if !r.unmarshal(key, &v) {
		return def
	}
	return v
}

func (r *Resolver) getString(key string, def string) string {
	var v string
	if !r.unmarshal(key, &v) {
		return def
	}
	return v
}

// Tox returns the branch→envlist map, empty when the tox runner is disabled.
func (r *Resolver) Tox() map[string]string {
	var v map[string]string
	if !r.unmarshal("tox", &v) {
		return nil
	}
	return v
}

// ToxPythonVersion returns the python version the tox runner should pin.
func (r *Resolver) ToxPythonVersion() string {
	return r.getString("tox-python-version", "")
}

// PreCommit reports whether the pre-commit runner is enabled.
func (r *Resolver) PreCommit() bool {
	return r.getBool("pre-commit", false)
}

// PythonModuleInstall reports whether the pip-install smoke check is enabled.
func (r *Resolver) PythonModuleInstall() bool {
	return r.getBool("python-module-install", false)
}

// PyPI returns the PyPI publishing settings, nil when unset.
func (r *Resolver) PyPI() *PyPI {
	var v PyPI
	if !r.unmarshal("pypi", &v) {
		return nil
	}
	return &v
}

// Container returns the container build settings, nil when unset.
func (r *Resolver) Container() *Container {
	var v Container
	if !r.unmarshal("container", &v) {
		return nil
	}
	return &v
}

// ConventionalTitle returns the comma-separated list of allowed title types,
// empty when the conventional-title check is disabled.
func (r *Resolver) ConventionalTitle() string {
	return r.getString("conventional-title", "")
}

// MinimumLGTM returns the configured lgtm threshold; zero disables it.
func (r *Resolver) MinimumLGTM() int {
	return r.getInt("minimum-lgtm", 0)
}

// VerifiedJob reports whether the verified label/check workflow is enabled.
func (r *Resolver) VerifiedJob() bool {
	return r.getBool("verified-job", true)
}

// AutoVerifiedAndMergedUsers returns logins whose PRs are verified
// automatically.
func (r *Resolver) AutoVerifiedAndMergedUsers() []string {
	var v []string
	r.unmarshal("auto-verified-and-merged-users", &v)
	return v
}

// AutoVerifyCherryPickedPRs reports whether bot-created cherry-pick PRs are
// verified automatically.
func (r *Resolver) AutoVerifyCherryPickedPRs() bool {
	return r.getBool("auto-verify-cherry-picked-prs", false)
}

// CanBeMergedRequiredLabels returns extra labels the merge predicate
// requires.
func (r *Resolver) CanBeMergedRequiredLabels() []string {
	var v []string
	r.unmarshal("can-be-merged-required-labels", &v)
	return v
}

// SetAutoMergePRs returns the base branches whose PRs get GitHub auto-merge
// enabled on open.
func (r *Resolver) SetAutoMergePRs() []string {
	var v []string
	r.unmarshal("set-auto-merge-prs", &v)
	return v
}

// CreateIssueForNewPR reports whether a tracking issue is opened per PR.
func (r *Resolver) CreateIssueForNewPR() bool {
	return r.getBool("create-issue-for-new-pr", true)
}

// AllowCommandsOnDraftPRs returns the commands allowed on draft PRs. ok is
// false when the key is unset, which blocks all commands on drafts; an
// explicit empty list allows all of them.
func (r *Resolver) AllowCommandsOnDraftPRs() ([]string, bool) {
	var v []string
	if !r.unmarshal("allow-commands-on-draft-prs", &v) {
		return nil, false
	}
	return v, true
}

// MaxOwnersFiles caps how many OWNERS files one delivery will process.
func (r *Resolver) MaxOwnersFiles() int {
	return r.getInt("max-owners-files", 1000)
}

// PRSizeThresholds returns the custom size scale, nil to use the default.
func (r *Resolver) PRSizeThresholds() map[string]SizeThreshold {
	var v map[string]SizeThreshold
	if !r.unmarshal("pr-size-thresholds", &v) {
		return nil
	}
	return v
}

// SlackWebhookURL returns the notification webhook, empty when disabled.
func (r *Resolver) SlackWebhookURL() string {
	return r.getString("slack-webhook-url", "")
}

// ProtectedBranches returns per-branch required-check adjustments.
func (r *Resolver) ProtectedBranches() map[string]ProtectedBranch {
	var v map[string]ProtectedBranch
	r.unmarshal("protected-branches", &v)
	return v
}

// DefaultStatusChecks returns check names required on every PR.
func (r *Resolver) DefaultStatusChecks() []string {
	var v []string
	r.unmarshal("default-status-checks", &v)
	return v
}

// CustomCheckRuns returns the user-configured check commands. Entries whose
// command fails validation are dropped with a warning: the local override
// tier is user-controlled and must not smuggle arbitrary commands in.
func (r *Resolver) CustomCheckRuns() []CustomCheckRun {
	var v []CustomCheckRun
	if !r.unmarshal("custom-check-runs", &v) {
		return nil
	}
	valid := v[:0]
	for _, check := range v {
		if err := ValidateCustomCommand(check.Command); err != nil {
			r.log.WithError(err).Warnf("Dropping invalid custom check %q.", check.Name)
			continue
		}
		valid = append(valid, check)
	}
	return valid
}

// TestOracle returns the external-review service settings, nil when unset.
func (r *Resolver) TestOracle() *TestOracle {
	var v TestOracle
	if !r.unmarshal("test-oracle", &v) {
		return nil
	}
	return &v
}

// EnabledLabels returns the subset of managed labels to apply. ok is false
// when the key is unset, meaning all managed labels are enabled.
func (r *Resolver) EnabledLabels() ([]string, bool) {
	var v []string
	if !r.unmarshal("enabled-labels", &v) {
		return nil, false
	}
	return v, true
}

// MaskSensitiveData reports whether subprocess output is censored before it
// reaches check-run text and comments.
func (r *Resolver) MaskSensitiveData() bool {
	return r.getBool("mask-sensitive-data", true)
}

// RepositoryDataCaps returns the snapshot collection caps, nil for defaults.
func (r *Resolver) RepositoryDataCaps() *DataCaps {
	var v DataCaps
	if !r.unmarshal("repository-data-caps", &v) {
		return nil
	}
	return &v
}
