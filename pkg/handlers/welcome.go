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
	"bytes"
	"context"
	"strings"
	"text/template"
)

// welcomeMarker identifies the welcome comment among the PR's comments so
// reprocessing never posts a second one and /regenerate-welcome can find it.
const welcomeMarker = "<!-- github-webhook-server: welcome -->"

var welcomeTemplate = template.Must(template.New("welcome").Parse(welcomeMarker + `
Welcome! @{{.Author}}

Thanks for contributing to {{.Org}}/{{.Repo}}. I manage this PR's labels,
check runs and merge eligibility. Comment one command per line:

| Command | Description |
| ------- | ----------- |
{{- range .Commands}}
| ` + "`{{.Usage}}`" + ` | {{.Description}} |
{{- end}}
`))

type welcomeCommand struct {
	Usage       string
	Description string
}

// welcomeCommands is the command table shown in the welcome comment, in the
// order the table lists them.
var welcomeCommands = []welcomeCommand{
	{"/retest <check> ...", "Re-run the named checks; `/retest all` re-runs every configured one"},
	{"/reprocess", "Run the full new-PR workflow again"},
	{"/cherry-pick <branch> ...", "Cherry-pick this PR to the target branches once it merges, or right away when already merged"},
	{"/assign-reviewers", "Assign the reviewers the OWNERS files name for the changed paths"},
	{"/assign-reviewer @<user>", "Request a review from one contributor"},
	{"/check-can-merge", "Re-evaluate merge eligibility now"},
	{"/build-and-push-container", "Build the container image and push it under this PR's tag"},
	{"/add-allowed-user @<user>", "Let a user run commands on this PR; maintainers and approvers only"},
	{"/regenerate-welcome", "Refresh this comment"},
	{"/wip", "Mark the PR work-in-progress; `/wip cancel` reverts it"},
	{"/hold", "Block merging; approvers only, `/hold cancel` releases it"},
	{"/verified", "Mark the current head verified; `/verified cancel` reverts it"},
	{"/automerge", "Enable GitHub auto-merge; maintainers and approvers only"},
	{"/lgtm", "Add your lgtm; `/lgtm cancel` withdraws it"},
	{"/approve", "Approve the PR; approvers only, `/approve cancel` withdraws it"},
}

func (h *Handler) welcomeBody() (string, error) {
	var buf bytes.Buffer
	err := welcomeTemplate.Execute(&buf, struct {
		Author   string
		Org      string
		Repo     string
		Commands []welcomeCommand
	}{
		Author:   h.PR.User.Login,
		Org:      h.Org,
		Repo:     h.Repo,
		Commands: welcomeCommands,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ensureWelcomeComment posts the welcome comment once per PR; a marker in
// the body makes the check survive reprocessing.
func (h *Handler) ensureWelcomeComment(ctx context.Context) error {
	comments, err := h.GitHub.ListIssueComments(h.Org, h.Repo, h.PR.Number)
	if err != nil {
		return err
	}
	for _, comment := range comments {
		if strings.Contains(comment.Body, welcomeMarker) {
			return nil
		}
	}
	body, err := h.welcomeBody()
	if err != nil {
		return err
	}
	return h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, body)
}

// regenerateWelcome rewrites the existing welcome comment in place, or posts
// a fresh one when none survived.
func (h *Handler) regenerateWelcome(ctx context.Context) error {
	body, err := h.welcomeBody()
	if err != nil {
		return err
	}
	comments, err := h.GitHub.ListIssueComments(h.Org, h.Repo, h.PR.Number)
	if err != nil {
		return err
	}
	for _, comment := range comments {
		if strings.Contains(comment.Body, welcomeMarker) {
			return h.GitHub.EditComment(h.Org, h.Repo, comment.ID, body)
		}
	}
	return h.GitHub.CreateComment(h.Org, h.Repo, h.PR.Number, body)
}
