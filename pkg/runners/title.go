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
	"regexp"
	"strings"

	"github.com/myk-org/github-webhook-server-sub001/pkg/checks"
)

// ConventionalTitle verifies the PR title starts with one of the allowed
// names, an optional scope, and a colon, e.g. "feat(api): add endpoint".
// No workspace is needed; the check concludes straight from the title.
func (r *Runners) ConventionalTitle(ctx context.Context, allowedNames string) error {
	if err := r.Checks.SetInProgress(ctx, checks.ConventionalTitle); err != nil {
		r.Logger.WithError(err).Warnf("Could not set check %s in progress.", checks.ConventionalTitle)
	}

	var names, quoted []string
	for _, name := range strings.Split(allowedNames, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		names = append(names, name)
		quoted = append(quoted, regexp.QuoteMeta(name))
	}
	if len(names) == 0 {
		return r.Checks.SetFailure(ctx, checks.ConventionalTitle, "conventional-title is configured with no allowed names")
	}

	re := regexp.MustCompile(fmt.Sprintf(`^(%s)(.*):`, strings.Join(quoted, "|")))
	if re.MatchString(r.PullRequest.Title) {
		return r.Checks.SetSuccess(ctx, checks.ConventionalTitle, "")
	}
	return r.Checks.SetFailure(ctx, checks.ConventionalTitle, fmt.Sprintf(
		"PR title %q does not follow the conventional format.\nAllowed names: %s",
		r.PullRequest.Title, strings.Join(names, ", "),
	))
}
