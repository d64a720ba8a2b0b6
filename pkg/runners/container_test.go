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

package runners

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/myk-org/github-webhook-server-sub001/pkg/command"
	"github.com/myk-org/github-webhook-server-sub001/pkg/config"
	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
)

func containerConfig() *config.Container {
	return &config.Container{
		Username:   "bot",
		Password:   "hunter2",
		Repository: "quay.io/org/demo",
	}
}

func TestContainerTag(t *testing.T) {
	var testcases = []struct {
		name     string
		pr       *github.PullRequest
		cfg      *config.Container
		merged   bool
		explicit string

		expected string
	}{
		{
			name:     "pull request build",
			pr:       testPR(),
			cfg:      containerConfig(),
			expected: "pr-7",
		},
		{
			name:     "merged build uses the configured tag",
			pr:       testPR(),
			cfg:      &config.Container{Repository: "quay.io/org/demo", Tag: "main-latest"},
			merged:   true,
			expected: "main-latest",
		},
		{
			name:     "merged build without a configured tag",
			pr:       testPR(),
			cfg:      containerConfig(),
			merged:   true,
			expected: "latest",
		},
		{
			name:     "tag push wins over everything",
			pr:       testPR(),
			cfg:      &config.Container{Repository: "quay.io/org/demo", Tag: "main-latest"},
			explicit: "v1.2.3",
			expected: "v1.2.3",
		},
		{
			name:     "no pull request",
			cfg:      containerConfig(),
			expected: "latest",
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			tr := newTestRunners(tc.pr)
			if got := tr.containerTag(tc.cfg, tc.merged, tc.explicit); got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestRegistryHost(t *testing.T) {
	var testcases = []struct {
		repository string
		expected   string
	}{
		{"quay.io/org/demo", "quay.io"},
		{"ghcr.io/org/demo", "ghcr.io"},
		{"localhost:5000/demo", "localhost:5000"},
		{"org/demo", "docker.io"},
		{"demo", "docker.io"},
	}
	for _, tc := range testcases {
		if got := registryHost(tc.repository); got != tc.expected {
			t.Errorf("registryHost(%q): expected %q, got %q", tc.repository, tc.expected, got)
		}
	}
}

func TestBuildContainerForPullRequest(t *testing.T) {
	tr := newTestRunners(testPR())
	cfg := containerConfig()
	cfg.BuildArgs = []string{"BASE=fedora"}
	cfg.Args = []string{"--squash"}
	if err := tr.BuildContainer(context.Background(), cfg, BuildOptions{ExtraArgs: []string{"--no-cache"}}); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	expected := append(append([]string{}, prepLines...),
		"podman build --network=host -f Dockerfile -t quay.io/org/demo:pr-7 --build-arg BASE=fedora --squash --no-cache .",
	)
	assertLinePrefixes(t, tr.exec.lines(), expected)
	if got := tr.checks.states(); !reflect.DeepEqual(got, []string{"in_progress:build-container", "success:build-container"}) {
		t.Errorf("Expected the build check to conclude, got %v", got)
	}
	if len(tr.github.comments) != 0 || len(tr.notifier.sent) != 0 {
		t.Error("Didn't expect an announcement without a push")
	}
}

func TestBuildContainerPush(t *testing.T) {
	tr := newTestRunners(testPR())
	if err := tr.BuildContainer(context.Background(), containerConfig(), BuildOptions{Push: true}); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	expected := append(append([]string{}, prepLines...),
		"podman login --username bot --password hunter2 quay.io",
		"podman build --network=host -f Dockerfile -t quay.io/org/demo:pr-7 .",
		"podman push quay.io/org/demo:pr-7",
	)
	assertLinePrefixes(t, tr.exec.lines(), expected)
	login := tr.exec.cmds[len(prepLines)]
	if !reflect.DeepEqual(login.Redact, []string{"hunter2"}) {
		t.Errorf("Expected the registry password redacted, got %v", login.Redact)
	}
	if len(tr.github.comments) != 1 || !strings.Contains(tr.github.comments[0], "quay.io/org/demo:pr-7 published") {
		t.Errorf("Expected a publication comment, got %v", tr.github.comments)
	}
	if len(tr.notifier.sent) != 1 || !strings.Contains(tr.notifier.sent[0], "org/demo:") {
		t.Errorf("Expected a notification, got %v", tr.notifier.sent)
	}
}

func TestBuildContainerRelease(t *testing.T) {
	tr := newTestRunners(nil)
	if err := tr.BuildContainer(context.Background(), containerConfig(), BuildOptions{Push: true, TagName: "v1.2.3"}); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	expected := []string{
		"git clone https://tok@github.com/org/demo /tmp/delivery/container-",
		"git config user.name hook-bot",
		"git config user.email hook-bot@users.noreply.github.com",
		"git config remote.origin.fetch +refs/pull/*/head:refs/remotes/origin/pr/*",
		"git remote update",
		"git checkout v1.2.3",
		"podman login --username bot --password hunter2 quay.io",
		"podman build --network=host -f Dockerfile -t quay.io/org/demo:v1.2.3 .",
		"podman push quay.io/org/demo:v1.2.3",
	}
	assertLinePrefixes(t, tr.exec.lines(), expected)
	if len(tr.checks.transitions) != 0 {
		t.Errorf("Didn't expect check transitions on a release build, got %v", tr.checks.transitions)
	}
	if len(tr.github.comments) != 0 {
		t.Errorf("Didn't expect a PR comment on a release build, got %v", tr.github.comments)
	}
	if len(tr.notifier.sent) != 1 {
		t.Errorf("Expected a notification, got %v", tr.notifier.sent)
	}
}

func TestBuildContainerReleaseFailure(t *testing.T) {
	tr := newTestRunners(nil)
	tr.exec.results["podman build"] = command.Result{ExitCode: 1, Stderr: "no space left on device\n"}
	err := tr.BuildContainer(context.Background(), containerConfig(), BuildOptions{TagName: "v1.2.3"})
	if err == nil || !strings.Contains(err.Error(), "no space left on device") {
		t.Fatalf("Expected the build failure surfaced, got %v", err)
	}
}

func TestBuildContainerBootIDRetry(t *testing.T) {
	tr := newTestRunners(testPR())
	tr.exec.results["podman build"] = command.Result{ExitCode: 125, Stderr: bootIDMessage + "\n"}
	if err := tr.BuildContainer(context.Background(), containerConfig(), BuildOptions{}); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	var builds int
	for _, line := range tr.exec.lines() {
		if strings.HasPrefix(line, "podman build") {
			builds++
		}
	}
	if builds != 2 {
		t.Errorf("Expected one retry after the boot ID mismatch, got %d builds", builds)
	}
	if got := tr.checks.states(); !reflect.DeepEqual(got, []string{"in_progress:build-container", "failure:build-container"}) {
		t.Errorf("Expected a failure conclusion, got %v", got)
	}
}

func TestDeleteContainerTagGHCR(t *testing.T) {
	tr := newTestRunners(testPR())
	version := github.PackageVersion{ID: 41}
	version.Metadata.Container.Tags = []string{"latest", "pr-7"}
	other := github.PackageVersion{ID: 40}
	other.Metadata.Container.Tags = []string{"v1.0.0"}
	tr.github.orgVersions = []github.PackageVersion{other, version}

	cfg := &config.Container{Repository: "ghcr.io/org/demo"}
	if err := tr.DeleteContainerTag(context.Background(), cfg, "pr-7"); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if !reflect.DeepEqual(tr.github.deleted, []int64{41}) {
		t.Errorf("Expected version 41 deleted, got %v", tr.github.deleted)
	}
	if !tr.github.deletedAsOrg {
		t.Error("Expected the organization API path")
	}
	if len(tr.exec.cmds) != 0 {
		t.Errorf("Didn't expect subprocesses for GHCR, got %v", tr.exec.lines())
	}
}

func TestDeleteContainerTagGHCRUserFallback(t *testing.T) {
	tr := newTestRunners(testPR())
	tr.github.orgErr = errors.New("HTTP 404: Not Found")
	version := github.PackageVersion{ID: 17}
	version.Metadata.Container.Tags = []string{"pr-7"}
	tr.github.userVersions = []github.PackageVersion{version}

	cfg := &config.Container{Repository: "ghcr.io/someone/demo"}
	if err := tr.DeleteContainerTag(context.Background(), cfg, "pr-7"); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if !reflect.DeepEqual(tr.github.deleted, []int64{17}) {
		t.Errorf("Expected version 17 deleted, got %v", tr.github.deleted)
	}
	if tr.github.deletedAsOrg {
		t.Error("Expected the user API path")
	}
}

func TestDeleteContainerTagGHCRNoMatch(t *testing.T) {
	tr := newTestRunners(testPR())
	cfg := &config.Container{Repository: "ghcr.io/org/demo"}
	if err := tr.DeleteContainerTag(context.Background(), cfg, "pr-7"); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	if len(tr.github.deleted) != 0 {
		t.Errorf("Didn't expect deletions, got %v", tr.github.deleted)
	}
}

func TestDeleteContainerTagRegistry(t *testing.T) {
	tr := newTestRunners(testPR())
	tr.exec.results["regctl tag ls"] = command.Result{Stdout: "latest\npr-7\n"}
	if err := tr.DeleteContainerTag(context.Background(), containerConfig(), "pr-7"); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	expected := []string{
		"regctl registry login quay.io --user bot --pass hunter2",
		"regctl tag ls quay.io/org/demo",
		"regctl tag rm quay.io/org/demo:pr-7",
		"regctl registry logout quay.io",
	}
	assertLinePrefixes(t, tr.exec.lines(), expected)
}

func TestDeleteContainerTagRegistryMissingTag(t *testing.T) {
	tr := newTestRunners(testPR())
	tr.exec.results["regctl tag ls"] = command.Result{Stdout: "latest\n"}
	if err := tr.DeleteContainerTag(context.Background(), containerConfig(), "pr-7"); err != nil {
		t.Fatalf("Didn't expect error: %v", err)
	}
	expected := []string{
		"regctl registry login quay.io --user bot --pass hunter2",
		"regctl tag ls quay.io/org/demo",
		"regctl registry logout quay.io",
	}
	assertLinePrefixes(t, tr.exec.lines(), expected)
}
