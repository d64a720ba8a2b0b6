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

package workspace

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/myk-org/github-webhook-server-sub001/pkg/command"
	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
)

type fakeRunner struct {
	calls  []command.Command
	failOn string
}

func (f *fakeRunner) Run(ctx context.Context, cmd command.Command) command.Result {
	f.calls = append(f.calls, cmd)
	line := strings.Join(cmd.Args, " ")
	if f.failOn != "" && strings.HasPrefix(line, f.failOn) {
		return command.Result{ExitCode: 1, Stderr: "boom\n"}
	}
	return command.Result{Stdout: line + "\n"}
}

func (f *fakeRunner) argLines() []string {
	var lines []string
	for _, cmd := range f.calls {
		lines = append(lines, strings.Join(cmd.Args, " "))
	}
	return lines
}

func newTestWorkspace(fr *fakeRunner) *Workspace {
	return New("/tmp/ws/clone", fr, logrus.NewEntry(logrus.StandardLogger()))
}

func testPR() *github.PullRequest {
	return &github.PullRequest{Number: 7, Base: github.PullRequestBranch{Ref: "main"}}
}

func TestPrepareCheckoutMatrix(t *testing.T) {
	base := []string{
		"clone https://tok@github.com/org/demo /tmp/ws/clone",
		"config user.name hook-bot",
		"config user.email hook-bot@example.com",
		"config remote.origin.fetch +refs/pull/*/head:refs/remotes/origin/pr/*",
		"remote update",
	}
	var testcases = []struct {
		name string
		opts Options

		expected []string
	}{
		{
			name: "pull request head merged with its base",
			opts: Options{PullRequest: testPR()},
			expected: append(append([]string{}, base...),
				"checkout origin/pr/7",
				"merge origin/main -m merge origin/main",
			),
		},
		{
			name: "merged pull request checks out the base",
			opts: Options{PullRequest: testPR(), IsMerged: true},
			expected: append(append([]string{}, base...),
				"checkout main",
			),
		},
		{
			name: "explicit checkout wins and still merges the base",
			opts: Options{PullRequest: testPR(), Checkout: "v1.18"},
			expected: append(append([]string{}, base...),
				"checkout v1.18",
				"merge origin/main -m merge origin/main",
			),
		},
		{
			name: "explicit checkout without a pull request",
			opts: Options{Checkout: "v1.18"},
			expected: append(append([]string{}, base...),
				"checkout v1.18",
			),
		},
		{
			name: "tag checkout",
			opts: Options{TagName: "v1.2.3"},
			expected: append(append([]string{}, base...),
				"checkout v1.2.3",
			),
		},
		{
			name:     "bare clone",
			opts:     Options{},
			expected: base,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			fr := &fakeRunner{}
			w := newTestWorkspace(fr)
			tc.opts.CloneURL = CloneURL("org", "demo", "tok")
			tc.opts.Token = "tok"
			tc.opts.UserName = "hook-bot"
			tc.opts.UserEmail = "hook-bot@example.com"
			ok, _, _ := w.Prepare(context.Background(), tc.opts)
			if !ok {
				t.Fatal("Expected preparation to succeed")
			}
			if got := fr.argLines(); !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("Expected git steps:\n%s\ngot:\n%s", strings.Join(tc.expected, "\n"), strings.Join(got, "\n"))
			}
		})
	}
}

func TestPrepareStopsOnFirstFailure(t *testing.T) {
	fr := &fakeRunner{failOn: "remote update"}
	w := newTestWorkspace(fr)
	ok, _, stderr := w.Prepare(context.Background(), Options{PullRequest: testPR(), Token: "tok"})
	if ok {
		t.Fatal("Expected preparation to fail")
	}
	if len(fr.calls) != 5 {
		t.Errorf("Expected preparation to stop at the failing step, got %v", fr.argLines())
	}
	if !strings.Contains(stderr, "boom") {
		t.Errorf("Expected the captured stderr, got %q", stderr)
	}
}

func TestPrepareCommandSetup(t *testing.T) {
	fr := &fakeRunner{}
	w := newTestWorkspace(fr)
	ok, _, _ := w.Prepare(context.Background(), Options{
		CloneURL: CloneURL("org", "demo", "tok"),
		Token:    "tok",
	})
	if !ok {
		t.Fatal("Expected preparation to succeed")
	}
	clone := fr.calls[0]
	if clone.Dir != "" {
		t.Errorf("Expected the clone to run outside the not-yet-existing directory, got %q", clone.Dir)
	}
	if !reflect.DeepEqual(clone.Redact, []string{"tok"}) {
		t.Errorf("Expected the token redacted, got %v", clone.Redact)
	}
	for _, cmd := range fr.calls[1:] {
		if cmd.Dir != w.Dir {
			t.Errorf("Expected %v to run inside the clone, got %q", cmd.Args, cmd.Dir)
		}
		if cmd.Name != "git" {
			t.Errorf("Expected a git command, got %q", cmd.Name)
		}
	}
}

func TestRunForcesWorkspaceDir(t *testing.T) {
	fr := &fakeRunner{}
	w := newTestWorkspace(fr)
	w.Run(context.Background(), command.Command{Name: "tox", Dir: "/elsewhere"})
	if fr.calls[0].Dir != w.Dir {
		t.Errorf("Expected the workspace directory, got %q", fr.calls[0].Dir)
	}
}

func TestGit(t *testing.T) {
	fr := &fakeRunner{}
	w := newTestWorkspace(fr)
	w.Git(context.Background(), "tok", "push", "origin", "v1.18")
	cmd := fr.calls[0]
	if cmd.Name != "git" || !reflect.DeepEqual(cmd.Args, []string{"push", "origin", "v1.18"}) {
		t.Errorf("Unexpected command %+v", cmd)
	}
	if !reflect.DeepEqual(cmd.Redact, []string{"tok"}) {
		t.Errorf("Expected the token redacted, got %v", cmd.Redact)
	}
	if cmd.Dir != w.Dir {
		t.Errorf("Expected the workspace directory, got %q", cmd.Dir)
	}
}

func TestRelease(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "clone")
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatalf("Could not set up directory: %v", err)
	}
	w := New(dir, &fakeRunner{}, logrus.NewEntry(logrus.StandardLogger()))
	w.Release()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("Expected the directory removed, got %v", err)
	}
}

func TestCloneURL(t *testing.T) {
	if got := CloneURL("org", "demo", "tok"); got != "https://tok@github.com/org/demo" {
		t.Errorf("Unexpected clone URL %q", got)
	}
}
