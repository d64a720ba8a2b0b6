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
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/myk-org/github-webhook-server-sub001/pkg/checks"
	"github.com/myk-org/github-webhook-server-sub001/pkg/command"
	"github.com/myk-org/github-webhook-server-sub001/pkg/config"
	"github.com/myk-org/github-webhook-server-sub001/pkg/workspace"
)

// bootIDMessage is the podman failure a stale storage dir causes after a
// host reboot.
const bootIDMessage = "current system boot ID differs from cached boot ID"

// podmanStateDirs hold podman's cached per-boot state.
var podmanStateDirs = []string{
	"/tmp/storage-run-1000/containers",
	"/tmp/storage-run-1000/libpod/tmp",
}

// BuildOptions drives one container build.
type BuildOptions struct {
	// Push publishes the image after a successful build.
	Push bool

	// Merged builds from the base branch instead of the PR head.
	Merged bool

	// TagName builds from a tag checkout and tags the image with it.
	TagName string

	// ExtraArgs are user-supplied build arguments from the
	// /build-and-push-container command.
	ExtraArgs []string
}

// BuildContainer builds the repository container and optionally pushes it.
// With a PR present, progress is reported through the build-container check;
// release builds run without one. A successful push is announced on the PR
// and through the notifier.
func (r *Runners) BuildContainer(ctx context.Context, cfg *config.Container, opts BuildOptions) error {
	tag := r.containerTag(cfg, opts.Merged, opts.TagName)
	image := fmt.Sprintf("%s:%s", cfg.Repository, tag)

	wsOpts := r.cloneOptions()
	wsOpts.IsMerged = opts.Merged
	if opts.TagName != "" {
		wsOpts.PullRequest = nil
		wsOpts.TagName = opts.TagName
	}

	build := func(ctx context.Context, ws *workspace.Workspace) (string, string, bool) {
		var stdout, stderr strings.Builder
		step := func(cmd command.Command) bool {
			res := r.runPodman(ctx, ws, cmd)
			stdout.WriteString(res.Stdout)
			stderr.WriteString(res.Stderr)
			if res.Err != nil {
				stderr.WriteString(res.Err.Error() + "\n")
			}
			return res.Success()
		}

		if opts.Push {
			login := command.Command{
				Name:   "podman",
				Args:   []string{"login", "--username", cfg.Username, "--password", cfg.Password, registryHost(cfg.Repository)},
				Redact: []string{cfg.Password},
			}
			if !step(login) {
				return stdout.String(), stderr.String(), false
			}
		}

		args := []string{"build", "--network=host", "-f", dockerfile(cfg), "-t", image}
		for _, buildArg := range cfg.BuildArgs {
			args = append(args, "--build-arg", buildArg)
		}
		args = append(args, cfg.Args...)
		args = append(args, opts.ExtraArgs...)
		args = append(args, ".")
		if !step(command.Command{Name: "podman", Args: args, Redact: []string{cfg.Password}}) {
			return stdout.String(), stderr.String(), false
		}

		if opts.Push {
			if !step(command.Command{Name: "podman", Args: []string{"push", image}, Redact: []string{cfg.Password}}) {
				return stdout.String(), stderr.String(), false
			}
		}
		return stdout.String(), stderr.String(), true
	}

	if r.PullRequest != nil {
		ok, err := r.runCheck(ctx, checks.BuildContainer, wsOpts, build)
		if err != nil || !ok {
			return err
		}
	} else {
		ws := r.newWorkspace("container")
		defer ws.Release()
		ok, _, stderr := ws.Prepare(ctx, wsOpts)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("could not prepare container workspace: %s", errTail(stderr))
		}
		if _, errOut, ok := build(ctx, ws); !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("container build for %s failed: %s", image, errTail(errOut))
		}
	}

	if opts.Push {
		r.announceContainer(ctx, image)
	}
	return nil
}

// containerTag picks the image tag: an explicit tag for tag pushes, the
// configured release tag on merges, the per-PR tag otherwise.
func (r *Runners) containerTag(cfg *config.Container, merged bool, explicit string) string {
	switch {
	case explicit != "":
		return explicit
	case merged || r.PullRequest == nil:
		if cfg.Tag != "" {
			return cfg.Tag
		}
		return "latest"
	default:
		return fmt.Sprintf("pr-%d", r.PullRequest.Number)
	}
}

func (r *Runners) announceContainer(ctx context.Context, image string) {
	text := fmt.Sprintf("New container for %s published", image)
	if r.PullRequest != nil {
		if err := r.GitHub.CreateComment(r.Org, r.Repo, r.PullRequest.Number, text); err != nil {
			r.Logger.WithError(err).Warn("Could not post container publication comment.")
		}
	}
	if r.Notifier != nil {
		if err := r.Notifier.Send(ctx, fmt.Sprintf("%s/%s: %s", r.Org, r.Repo, text)); err != nil {
			r.Logger.WithError(err).Warn("Could not send container publication notification.")
		}
	}
}

// runPodman retries exactly once after clearing podman's cached storage
// state when the boot-id mismatch shows up.
func (r *Runners) runPodman(ctx context.Context, ws *workspace.Workspace, cmd command.Command) command.Result {
	res := ws.Run(ctx, cmd)
	if res.Success() || !strings.Contains(res.Stderr, bootIDMessage) {
		return res
	}
	r.Logger.Info("Podman boot ID mismatch, clearing cached storage state and retrying.")
	for _, dir := range podmanStateDirs {
		if err := os.RemoveAll(dir); err != nil {
			r.Logger.WithError(err).Warnf("Could not remove %s.", dir)
		}
	}
	return ws.Run(ctx, cmd)
}

// DeleteContainerTag removes the PR's image tag once the PR closes without
// merging. GHCR goes through the Packages API; other registries through
// regctl.
func (r *Runners) DeleteContainerTag(ctx context.Context, cfg *config.Container, tag string) error {
	if strings.HasPrefix(cfg.Repository, "ghcr.io/") {
		return r.deleteGHCRTag(cfg.Repository, tag)
	}
	return r.deleteRegistryTag(ctx, cfg, tag)
}

func (r *Runners) deleteGHCRTag(repository, tag string) error {
	parts := strings.SplitN(repository, "/", 3)
	if len(parts) != 3 {
		return fmt.Errorf("cannot parse GHCR repository %q", repository)
	}
	owner, pkg := parts[1], parts[2]

	// The owner can be an organization or a user account; the API paths
	// differ and nothing in config says which one applies.
	ownerIsOrg := true
	versions, err := r.GitHub.ListPackageVersions(owner, ownerIsOrg, pkg)
	if err != nil {
		ownerIsOrg = false
		var userErr error
		if versions, userErr = r.GitHub.ListPackageVersions(owner, ownerIsOrg, pkg); userErr != nil {
			return fmt.Errorf("could not list package versions for %s: %w", repository, err)
		}
	}
	for _, version := range versions {
		if slices.Contains(version.Metadata.Container.Tags, tag) {
			return r.GitHub.DeletePackageVersion(owner, ownerIsOrg, pkg, version.ID)
		}
	}
	r.Logger.Debugf("No version of %s is tagged %s.", repository, tag)
	return nil
}

func (r *Runners) deleteRegistryTag(ctx context.Context, cfg *config.Container, tag string) error {
	registry := registryHost(cfg.Repository)
	image := fmt.Sprintf("%s:%s", cfg.Repository, tag)

	login := command.Command{
		Name:   "regctl",
		Args:   []string{"registry", "login", registry, "--user", cfg.Username, "--pass", cfg.Password},
		Redact: []string{cfg.Password},
	}
	if res := r.Command.Run(ctx, login); !res.Success() {
		return fmt.Errorf("could not log in to %s: %s", registry, errTail(res.Stderr))
	}
	defer func() {
		if res := r.Command.Run(ctx, command.Command{Name: "regctl", Args: []string{"registry", "logout", registry}}); !res.Success() {
			r.Logger.Warnf("Could not log out of %s.", registry)
		}
	}()

	ls := r.Command.Run(ctx, command.Command{Name: "regctl", Args: []string{"tag", "ls", cfg.Repository}})
	if !ls.Success() {
		return fmt.Errorf("could not list tags of %s: %s", cfg.Repository, errTail(ls.Stderr))
	}
	if !slices.Contains(strings.Fields(ls.Stdout), tag) {
		r.Logger.Debugf("Tag %s is not present on %s.", tag, cfg.Repository)
		return nil
	}
	if res := r.Command.Run(ctx, command.Command{Name: "regctl", Args: []string{"tag", "rm", image}}); !res.Success() {
		return fmt.Errorf("could not delete %s: %s", image, errTail(res.Stderr))
	}
	return nil
}

func dockerfile(cfg *config.Container) string {
	if cfg.Dockerfile != "" {
		return cfg.Dockerfile
	}
	return "Dockerfile"
}

// registryHost extracts the registry from a repository reference; references
// without a host part live on docker.io.
func registryHost(repository string) string {
	if host, _, ok := strings.Cut(repository, "/"); ok && strings.ContainsAny(host, ".:") {
		return host
	}
	return "docker.io"
}
