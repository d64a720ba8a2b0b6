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

package checks

import (
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/myk-org/github-webhook-server-sub001/pkg/config"
	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
)

// Features flags which built-in checks the repository has configured.
type Features struct {
	Tox                 bool
	PreCommit           bool
	Verified            bool
	BuildContainer      bool
	PythonModuleInstall bool
	ConventionalTitle   bool
}

// RequiredSet is the set of check names that must all pass before a PR can
// merge. It is computed once per delivery and never mutated afterwards.
type RequiredSet struct {
	names sets.Set[string]
}

// NewRequiredSet assembles the union of branch-protection contexts (callers
// pass none for private repositories), the configured built-in checks, the
// mandatory custom checks and the per-branch include/exclude adjustments.
// With no protection contexts available, default-status-checks stand in for
// them. can-be-merged is required unconditionally and survives excludes.
func NewRequiredSet(branchContexts, defaultChecks []string, features Features, protected *config.ProtectedBranch, custom []config.CustomCheckRun) *RequiredSet {
	names := sets.New[string]()
	if len(branchContexts) > 0 {
		names.Insert(branchContexts...)
	} else {
		names.Insert(defaultChecks...)
	}
	if features.Tox {
		names.Insert(Tox)
	}
	if features.PreCommit {
		names.Insert(PreCommit)
	}
	if features.Verified {
		names.Insert(Verified)
	}
	if features.BuildContainer {
		names.Insert(BuildContainer)
	}
	if features.PythonModuleInstall {
		names.Insert(PythonModuleInstall)
	}
	if features.ConventionalTitle {
		names.Insert(ConventionalTitle)
	}
	for _, check := range custom {
		if check.Mandatory {
			names.Insert(check.Name)
		}
	}
	if protected != nil {
		names.Insert(protected.IncludeRuns...)
		names.Delete(protected.ExcludeRuns...)
	}
	names.Insert(CanBeMerged)
	return &RequiredSet{names: names}
}

// Names returns the required check names, sorted.
func (r *RequiredSet) Names() []string {
	return sets.List(r.names)
}

// Has reports whether name is required.
func (r *RequiredSet) Has(name string) bool {
	return r.names.Has(name)
}

// CommitState buckets the required checks by their state on the commit.
// Names absent from all three slices either passed or are still queued.
type CommitState struct {
	InProgress []string
	Failed     []string
	Missing    []string
}

// Passing reports whether nothing blocks on the check front.
func (s CommitState) Passing() bool {
	return len(s.InProgress) == 0 && len(s.Failed) == 0 && len(s.Missing) == 0
}

// Evaluate classifies every required check except can-be-merged itself
// against the commit's check runs and legacy statuses. A success in either
// source passes and a failure in either fails; running states exist only in
// check runs. Queued runs and pending statuses are transitional and count
// toward no bucket. Missing means no record in either source. Where a
// context appears repeatedly, only the highest-id entry in each source
// counts.
func (r *RequiredSet) Evaluate(runs []github.CheckRun, statuses []github.Status) CommitState {
	latestRun := map[string]github.CheckRun{}
	for _, run := range runs {
		if prev, ok := latestRun[run.Name]; !ok || run.ID > prev.ID {
			latestRun[run.Name] = run
		}
	}
	latestStatus := map[string]github.Status{}
	for _, status := range statuses {
		if prev, ok := latestStatus[status.Context]; !ok || status.ID > prev.ID {
			latestStatus[status.Context] = status
		}
	}

	var state CommitState
	for _, name := range r.Names() {
		if name == CanBeMerged {
			continue
		}
		run, hasRun := latestRun[name]
		status, hasStatus := latestStatus[name]

		if hasRun && run.Status == StatusCompleted && run.Conclusion == ConclusionSuccess {
			continue
		}
		if hasStatus && status.State == github.StatusSuccess {
			continue
		}
		switch {
		case hasRun && run.Status == StatusInProgress:
			state.InProgress = append(state.InProgress, name)
		case hasRun && run.Status == StatusCompleted,
			hasStatus && (status.State == github.StatusFailure || status.State == github.StatusError):
			state.Failed = append(state.Failed, name)
		case !hasRun && !hasStatus:
			state.Missing = append(state.Missing, name)
		}
	}
	return state
}
