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

package handlers

import (
	"context"

	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
	"github.com/myk-org/github-webhook-server-sub001/pkg/runners"
)

// HandlePush releases a pushed tag: PyPI upload and a release image build,
// whichever the repository configures. Branch pushes and tag deletions do
// nothing.
func (h *Handler) HandlePush(ctx context.Context, event *github.PushEvent) error {
	return h.step(StepPushHandler, func() error {
		if !event.IsTag() || event.Deleted {
			h.Logger.Debug("Push is not a new tag, nothing to release.")
			return nil
		}
		tag := event.TagName()
		var tasks []task
		if cfg := h.Resolver.PyPI(); cfg != nil {
			tasks = append(tasks, task{"pypi_publish", func(ctx context.Context) error {
				return h.Runners.PublishPyPI(ctx, cfg, tag)
			}})
		}
		if cfg := h.Resolver.Container(); cfg != nil && cfg.Release {
			tasks = append(tasks, task{"release_image", func(ctx context.Context) error {
				return h.Runners.BuildContainer(ctx, cfg, runners.BuildOptions{Push: true, TagName: tag})
			}})
		}
		if len(tasks) == 0 {
			h.Logger.Debugf("Tag %s has no release targets configured.", tag)
			return nil
		}
		return h.runStage(ctx, StepTagRelease, tasks)
	})
}
