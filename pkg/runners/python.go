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
	"strings"
	"time"

	"github.com/myk-org/github-webhook-server-sub001/pkg/checks"
	"github.com/myk-org/github-webhook-server-sub001/pkg/command"
	"github.com/myk-org/github-webhook-server-sub001/pkg/config"
	"github.com/myk-org/github-webhook-server-sub001/pkg/workspace"
)

// Tox runs the environments configured for the PR's base branch. The map
// key "all" matches any branch; the envlist value "all" runs every tox env.
func (r *Runners) Tox(ctx context.Context, envsByBranch map[string]string, pythonVersion string) error {
	envlist, ok := envsByBranch[r.PullRequest.Base.Ref]
	if !ok {
		envlist, ok = envsByBranch["all"]
	}
	if !ok {
		r.Logger.Debugf("Tox is not configured for branch %s.", r.PullRequest.Base.Ref)
		return nil
	}

	var args []string
	if pythonVersion != "" {
		args = append(args, "--python", pythonVersion)
	}
	args = append(args, "tox")
	if envlist != "" && !strings.EqualFold(envlist, "all") {
		args = append(args, "-e", envlist)
	}
	_, err := r.runCheck(ctx, checks.Tox, r.cloneOptions(), func(ctx context.Context, ws *workspace.Workspace) (string, string, bool) {
		res := ws.Run(ctx, command.Command{Name: "uvx", Args: args})
		return res.Stdout, res.Stderr, res.Success()
	})
	return err
}

// PreCommit runs the repository's hooks through prek.
func (r *Runners) PreCommit(ctx context.Context) error {
	_, err := r.runCheck(ctx, checks.PreCommit, r.cloneOptions(), func(ctx context.Context, ws *workspace.Workspace) (string, string, bool) {
		res := ws.Run(ctx, command.Command{Name: "prek", Args: []string{"run", "--all-files"}})
		return res.Stdout, res.Stderr, res.Success()
	})
	return err
}

// PythonModuleInstall verifies the project installs as a python module.
func (r *Runners) PythonModuleInstall(ctx context.Context) error {
	_, err := r.runCheck(ctx, checks.PythonModuleInstall, r.cloneOptions(), func(ctx context.Context, ws *workspace.Workspace) (string, string, bool) {
		res := ws.Run(ctx, command.Command{Name: "uv", Args: []string{"pip", "install", "--system", "."}})
		return res.Stdout, res.Stderr, res.Success()
	})
	return err
}

// CustomCheck runs one user-configured check command in the PR workspace.
// The command string was validated at config load, so a plain field split is
// safe.
func (r *Runners) CustomCheck(ctx context.Context, check config.CustomCheckRun) error {
	fields := strings.Fields(check.Command)
	if len(fields) == 0 {
		return nil
	}
	_, err := r.runCheck(ctx, check.Name, r.cloneOptions(), func(ctx context.Context, ws *workspace.Workspace) (string, string, bool) {
		res := ws.Run(ctx, command.Command{
			Name:    fields[0],
			Args:    fields[1:],
			Timeout: time.Duration(check.TimeoutSeconds) * time.Second,
		})
		return res.Stdout, res.Stderr, res.Success()
	})
	return err
}
