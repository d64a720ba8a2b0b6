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
	"reflect"
	"testing"

	"github.com/myk-org/github-webhook-server-sub001/pkg/config"
	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
)

func TestNewRequiredSet(t *testing.T) {
	var testcases = []struct {
		name           string
		branchContexts []string
		defaultChecks  []string
		features       Features
		protected      *config.ProtectedBranch
		custom         []config.CustomCheckRun

		expected []string
	}{
		{
			name:           "branch contexts beat defaults",
			branchContexts: []string{"ci/build", "ci/lint"},
			defaultChecks:  []string{"stale-default"},
			expected:       []string{CanBeMerged, "ci/build", "ci/lint"},
		},
		{
			name:          "defaults stand in without contexts",
			defaultChecks: []string{"ci/build"},
			expected:      []string{CanBeMerged, "ci/build"},
		},
		{
			name:     "configured features",
			features: Features{Tox: true, Verified: true, ConventionalTitle: true},
			expected: []string{CanBeMerged, ConventionalTitle, Tox, Verified},
		},
		{
			name:     "all features",
			features: Features{Tox: true, PreCommit: true, Verified: true, BuildContainer: true, PythonModuleInstall: true, ConventionalTitle: true},
			expected: []string{BuildContainer, CanBeMerged, ConventionalTitle, PreCommit, PythonModuleInstall, Tox, Verified},
		},
		{
			name: "only mandatory custom checks",
			custom: []config.CustomCheckRun{
				{Name: "forbidden-words", Command: "uv tool run check-words", Mandatory: true},
				{Name: "advisory-lint", Command: "uv tool run lint"},
			},
			expected: []string{CanBeMerged, "forbidden-words"},
		},
		{
			name:      "per branch include and exclude",
			features:  Features{Tox: true, PreCommit: true},
			protected: &config.ProtectedBranch{IncludeRuns: []string{"extra-run"}, ExcludeRuns: []string{PreCommit}},
			expected:  []string{CanBeMerged, "extra-run", Tox},
		},
		{
			name:      "can-be-merged survives excludes",
			protected: &config.ProtectedBranch{ExcludeRuns: []string{CanBeMerged}},
			expected:  []string{CanBeMerged},
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			set := NewRequiredSet(tc.branchContexts, tc.defaultChecks, tc.features, tc.protected, tc.custom)
			if got := set.Names(); !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
			if !set.Has(CanBeMerged) {
				t.Error("can-be-merged must always be required")
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	required := func(names ...string) *RequiredSet {
		return NewRequiredSet(names, nil, Features{}, nil, nil)
	}
	completed := func(id int64, name, conclusion string) github.CheckRun {
		return github.CheckRun{ID: id, Name: name, Status: StatusCompleted, Conclusion: conclusion}
	}
	var testcases = []struct {
		name     string
		set      *RequiredSet
		runs     []github.CheckRun
		statuses []github.Status

		expected CommitState
	}{
		{
			name:     "successful run passes",
			set:      required(Tox),
			runs:     []github.CheckRun{completed(1, Tox, ConclusionSuccess)},
			expected: CommitState{},
		},
		{
			name:     "failed run",
			set:      required(Tox),
			runs:     []github.CheckRun{completed(1, Tox, ConclusionFailure)},
			expected: CommitState{Failed: []string{Tox}},
		},
		{
			name:     "run still in progress",
			set:      required(Tox),
			runs:     []github.CheckRun{{ID: 1, Name: Tox, Status: StatusInProgress}},
			expected: CommitState{InProgress: []string{Tox}},
		},
		{
			name:     "queued run counts toward no bucket",
			set:      required(Tox),
			runs:     []github.CheckRun{{ID: 1, Name: Tox, Status: StatusQueued}},
			expected: CommitState{},
		},
		{
			name:     "no record in either source",
			set:      required(Tox),
			expected: CommitState{Missing: []string{Tox}},
		},
		{
			name:     "successful legacy status passes",
			set:      required("ci/jenkins"),
			statuses: []github.Status{{ID: 1, State: github.StatusSuccess, Context: "ci/jenkins"}},
			expected: CommitState{},
		},
		{
			name:     "failed legacy status",
			set:      required("ci/jenkins"),
			statuses: []github.Status{{ID: 1, State: github.StatusFailure, Context: "ci/jenkins"}},
			expected: CommitState{Failed: []string{"ci/jenkins"}},
		},
		{
			name:     "errored legacy status",
			set:      required("ci/jenkins"),
			statuses: []github.Status{{ID: 1, State: github.StatusError, Context: "ci/jenkins"}},
			expected: CommitState{Failed: []string{"ci/jenkins"}},
		},
		{
			name:     "pending status counts toward no bucket",
			set:      required("ci/jenkins"),
			statuses: []github.Status{{ID: 1, State: github.StatusPending, Context: "ci/jenkins"}},
			expected: CommitState{},
		},
		{
			name: "highest id wins per source",
			set:  required(Tox),
			runs: []github.CheckRun{
				completed(1, Tox, ConclusionFailure),
				completed(2, Tox, ConclusionSuccess),
			},
			expected: CommitState{},
		},
		{
			name: "stale success loses to later failure",
			set:  required(Tox),
			runs: []github.CheckRun{
				completed(2, Tox, ConclusionFailure),
				completed(1, Tox, ConclusionSuccess),
			},
			expected: CommitState{Failed: []string{Tox}},
		},
		{
			name:     "status success overrides run failure",
			set:      required(Tox),
			runs:     []github.CheckRun{completed(1, Tox, ConclusionFailure)},
			statuses: []github.Status{{ID: 1, State: github.StatusSuccess, Context: Tox}},
			expected: CommitState{},
		},
		{
			name: "mixed commit",
			set:  required(Tox, PreCommit, Verified, "ci/jenkins"),
			runs: []github.CheckRun{
				completed(1, Tox, ConclusionSuccess),
				{ID: 2, Name: PreCommit, Status: StatusInProgress},
				completed(3, Verified, ConclusionFailure),
			},
			expected: CommitState{
				InProgress: []string{PreCommit},
				Failed:     []string{Verified},
				Missing:    []string{"ci/jenkins"},
			},
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.set.Evaluate(tc.runs, tc.statuses)
			if !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("Expected %+v, got %+v", tc.expected, got)
			}
			if got.Passing() != (len(tc.expected.InProgress)+len(tc.expected.Failed)+len(tc.expected.Missing) == 0) {
				t.Errorf("Passing() disagrees with buckets: %+v", got)
			}
		})
	}
}
