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

// Package labels defines the label taxonomy the workflows manage and the
// engine that applies it to pull requests.
package labels

import "strings"

// Static workflow labels.
const (
	Verified       = "verified"
	LGTM           = "lgtm"
	Approve        = "approve"
	AutoMerge      = "automerge"
	Hold           = "hold"
	WIP            = "wip"
	CanBeMerged    = "can-be-merged"
	HasConflicts   = "has-conflicts"
	NeedsRebase    = "needs-rebase"
	AutoCherryPick = "auto-cherry-pick"
	CherryPicked   = "cherry-picked"
)

// Dynamic per-user and per-branch label prefixes.
const (
	ApprovedByPrefix         = "approved-by-"
	LGTMByPrefix             = "lgtm-by-"
	ChangesRequestedByPrefix = "changes-requested-by-"
	CommentedByPrefix        = "commented-by-"
	BranchPrefix             = "branch-"
	CherryPickPrefix         = "cherry-pick/"
	SizePrefix               = "size/"
)

// MaxLength is GitHub's effective limit for the label names we generate;
// longer names are rejected before any API call.
const MaxLength = 49

// staticColors maps static labels (and the default size scale) to their
// fixed colors.
var staticColors = map[string]string{
	Verified:       "0e8a16",
	LGTM:           "0e8a16",
	Approve:        "0e8a16",
	AutoMerge:      "bfd4f2",
	Hold:           "b60205",
	WIP:            "b60205",
	CanBeMerged:    "0e8a16",
	HasConflicts:   "b60205",
	NeedsRebase:    "e99695",
	AutoCherryPick: "bfd4f2",
	CherryPicked:   "1d76db",

	SizePrefix + "xs":  "ededed",
	SizePrefix + "s":   "0e8a16",
	SizePrefix + "m":   "f09c74",
	SizePrefix + "l":   "f5621c",
	SizePrefix + "xl":  "d93f0b",
	SizePrefix + "xxl": "b60205",
}

// prefixColors gives every dynamic label family one color.
var prefixColors = []struct {
	prefix string
	color  string
}{
	{ApprovedByPrefix, "0e8a16"},
	{LGTMByPrefix, "dced6f"},
	{ChangesRequestedByPrefix, "d93f0b"},
	{CommentedByPrefix, "bfd4f2"},
	{BranchPrefix, "1d76db"},
	{CherryPickPrefix, "f09c74"},
}

// defaultColor is used for labels outside the taxonomy.
const defaultColor = "ededed"

// ColorFor returns the color for a managed label name. Comparison is
// case-insensitive like everything else about label names.
func ColorFor(name string) string {
	name = strings.ToLower(name)
	if color, ok := staticColors[name]; ok {
		return color
	}
	for _, p := range prefixColors {
		if strings.HasPrefix(name, p.prefix) {
			return p.color
		}
	}
	return defaultColor
}

// ReviewPrefixes are the per-user label families that encode review state and
// are cleared when a new commit arrives.
var ReviewPrefixes = []string{
	ApprovedByPrefix,
	LGTMByPrefix,
	ChangesRequestedByPrefix,
	CommentedByPrefix,
}

// UserFromReviewLabel splits a review-state label into its prefix and user,
// with ok=false for labels outside the review families.
func UserFromReviewLabel(name string) (prefix, user string, ok bool) {
	name = strings.ToLower(name)
	for _, p := range ReviewPrefixes {
		if rest, found := strings.CutPrefix(name, p); found && rest != "" {
			return p, rest, true
		}
	}
	return "", "", false
}

// UsersWithPrefix returns the users encoded in labels carrying the given
// prefix, deduplicated.
func UsersWithPrefix(prefix string, labelNames []string) []string {
	seen := map[string]bool{}
	var users []string
	for _, name := range labelNames {
		rest, found := strings.CutPrefix(strings.ToLower(name), prefix)
		if !found || rest == "" || seen[rest] {
			continue
		}
		seen[rest] = true
		users = append(users, rest)
	}
	return users
}
