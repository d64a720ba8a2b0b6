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

// Package repoowners resolves OWNERS files into the approver/reviewer sets a
// delivery consults. The index is built once per delivery from the PR's base
// ref and never refreshed: OWNERS changes land through merges, and the next
// delivery sees them.
package repoowners

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/yaml"

	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
)

const ownersFileName = "OWNERS"

// RootDir keys the repository-root OWNERS entry in the index.
const RootDir = "."

// Entry is the parsed content of one OWNERS file. RootApprovers defaults to
// true: a directory must opt out explicitly to drop the root approvers from
// its PRs.
type Entry struct {
	Approvers     []string `json:"approvers,omitempty"`
	Reviewers     []string `json:"reviewers,omitempty"`
	AllowedUsers  []string `json:"allowed-users,omitempty"`
	RootApprovers *bool    `json:"root-approvers,omitempty"`
}

// RequiresRootApprovers reports whether the entry keeps the repository root
// approvers in play.
func (e Entry) RequiresRootApprovers() bool {
	return e.RootApprovers == nil || *e.RootApprovers
}

type githubClient interface {
	ListPullRequestChangedFiles(org, repo string, number int) ([]string, error)
	GetTree(org, repo, sha string, recursive bool) (*github.Tree, error)
	GetFile(org, repo, filepath, commit string) ([]byte, error)
	ListIssueComments(org, repo string, number int) ([]github.IssueComment, error)
	CreateComment(org, repo string, number int, comment string) error
	RequestReview(org, repo string, number int, logins []string) error
}

// Owners is the per-delivery OWNERS index plus the authorization material
// derived from the repository snapshot.
type Owners struct {
	logger *logrus.Entry
	gc     githubClient
	org    string
	repo   string
	pr     *github.PullRequest

	entries      map[string]Entry
	changedFiles []string

	// Truncated records that the OWNERS walk hit the configured cap and the
	// index may be incomplete.
	Truncated bool

	validCommanders sets.Set[string]
	maintainers     sets.Set[string]
	contributors    sets.Set[string]
}

// Load builds the index for the PR: changed files via GraphQL, a recursive
// tree walk of the base ref collecting OWNERS blobs up to maxFiles, parallel
// content fetches, and the snapshot-derived commander sets.
func Load(logger *logrus.Entry, gc githubClient, org, repo string, pr *github.PullRequest, snapshot *github.RepositorySnapshot, maxFiles int) (*Owners, error) {
	o := &Owners{
		logger:  logger,
		gc:      gc,
		org:     org,
		repo:    repo,
		pr:      pr,
		entries: map[string]Entry{},
	}
	o.projectSnapshot(snapshot)

	changed, err := gc.ListPullRequestChangedFiles(org, repo, pr.Number)
	if err != nil {
		return nil, fmt.Errorf("could not list changed files: %w", err)
	}
	o.changedFiles = changed

	tree, err := gc.GetTree(org, repo, pr.Base.Ref, true)
	if err != nil {
		return nil, fmt.Errorf("could not read base tree: %w", err)
	}
	var ownersPaths []string
	for _, entry := range tree.Entries {
		if entry.Type == "blob" && path.Base(entry.Path) == ownersFileName {
			ownersPaths = append(ownersPaths, entry.Path)
		}
	}
	if tree.Truncated {
		logger.Warn("Base tree listing was truncated by GitHub; OWNERS index may be incomplete.")
		o.Truncated = true
	}
	if maxFiles > 0 && len(ownersPaths) > maxFiles {
		logger.Warnf("Repository has %d OWNERS files, processing only the first %d.", len(ownersPaths), maxFiles)
		ownersPaths = ownersPaths[:maxFiles]
		o.Truncated = true
	}

	var (
		wg   sync.WaitGroup
		lock sync.Mutex
	)
	for _, ownersPath := range ownersPaths {
		wg.Add(1)
		go func(ownersPath string) {
			defer wg.Done()
			content, err := gc.GetFile(org, repo, ownersPath, pr.Base.Ref)
			if err != nil {
				logger.WithError(err).Warnf("Could not fetch %s, skipping.", ownersPath)
				return
			}
			entry, err := parseOwners(content)
			if err != nil {
				logger.WithError(err).Warnf("Could not parse %s, skipping.", ownersPath)
				return
			}
			dir := path.Dir(ownersPath)
			lock.Lock()
			o.entries[dir] = entry
			lock.Unlock()
		}(ownersPath)
	}
	wg.Wait()
	return o, nil
}

func (o *Owners) projectSnapshot(snapshot *github.RepositorySnapshot) {
	o.validCommanders = sets.New[string]()
	o.maintainers = sets.New[string]()
	o.contributors = sets.New[string]()
	if snapshot == nil {
		return
	}
	for _, collaborator := range snapshot.Collaborators {
		o.validCommanders.Insert(strings.ToLower(collaborator.Login))
		switch collaborator.Permission {
		case "ADMIN", "MAINTAIN":
			o.maintainers.Insert(strings.ToLower(collaborator.Login))
		}
	}
	for _, contributor := range snapshot.Contributors {
		o.contributors.Insert(strings.ToLower(contributor))
		o.validCommanders.Insert(strings.ToLower(contributor))
	}
}

// parseOwners validates the OWNERS shape: approvers and reviewers must be
// arrays of strings when present.
func parseOwners(content []byte) (Entry, error) {
	var entry Entry
	if err := yaml.UnmarshalStrict(content, &entry); err != nil {
		// Retry without strictness so unknown keys alone don't disqualify
		// the file.
		if err := yaml.Unmarshal(content, &entry); err != nil {
			return Entry{}, err
		}
	}
	return entry, nil
}

// ChangedFiles returns the PR's changed paths.
func (o *Owners) ChangedFiles() []string {
	return o.changedFiles
}

// DataForChangedFiles selects the OWNERS entries governing the PR. A non-root
// entry matches when its directory equals or is an ancestor of a changed
// file's directory. The root entry is included unless every matched directory
// opts out of root approvers and every changed directory is covered by some
// matched entry; one directory requiring root keeps root in for the whole PR.
func (o *Owners) DataForChangedFiles() map[string]Entry {
	changedDirs := sets.New[string]()
	for _, file := range o.changedFiles {
		changedDirs.Insert(path.Dir(file))
	}

	result := map[string]Entry{}
	covered := sets.New[string]()
	allOptOut := true
	for dir, entry := range o.entries {
		if dir == RootDir {
			continue
		}
		matched := false
		for changedDir := range changedDirs {
			if changedDir == dir || strings.HasPrefix(changedDir+"/", dir+"/") {
				matched = true
				covered.Insert(changedDir)
			}
		}
		if matched {
			result[dir] = entry
			if entry.RequiresRootApprovers() {
				allOptOut = false
			}
		}
	}

	includeRoot := true
	if len(result) > 0 && allOptOut && covered.Len() == changedDirs.Len() {
		includeRoot = false
	}
	if includeRoot {
		if root, ok := o.entries[RootDir]; ok {
			result[RootDir] = root
		}
	}
	return result
}

// RootApprovers returns the repository root approvers.
func (o *Owners) RootApprovers() []string {
	return lowered(o.entries[RootDir].Approvers)
}

// RootReviewers returns the repository root reviewers.
func (o *Owners) RootReviewers() []string {
	return lowered(o.entries[RootDir].Reviewers)
}

// AllRepoApprovers returns every approver from every OWNERS file.
func (o *Owners) AllRepoApprovers() []string {
	all := sets.New[string]()
	for _, entry := range o.entries {
		all.Insert(lowered(entry.Approvers)...)
	}
	return sets.List(all)
}

// AllRepoReviewers returns every reviewer from every OWNERS file.
func (o *Owners) AllRepoReviewers() []string {
	all := sets.New[string]()
	for _, entry := range o.entries {
		all.Insert(lowered(entry.Reviewers)...)
	}
	return sets.List(all)
}

// AllPullRequestApprovers returns the approvers governing this PR's changes,
// sorted and deduplicated.
func (o *Owners) AllPullRequestApprovers() []string {
	all := sets.New[string]()
	for _, entry := range o.DataForChangedFiles() {
		all.Insert(lowered(entry.Approvers)...)
	}
	return sets.List(all)
}

// AllPullRequestReviewers returns the reviewers governing this PR's changes.
func (o *Owners) AllPullRequestReviewers() []string {
	all := sets.New[string]()
	for _, entry := range o.DataForChangedFiles() {
		all.Insert(lowered(entry.Reviewers)...)
	}
	return sets.List(all)
}

// IsApprover reports whether the user may approve this PR: a PR approver or
// a root approver.
func (o *Owners) IsApprover(user string) bool {
	user = strings.ToLower(user)
	for _, approver := range o.AllPullRequestApprovers() {
		if approver == user {
			return true
		}
	}
	for _, approver := range o.RootApprovers() {
		if approver == user {
			return true
		}
	}
	return false
}

// IsMaintainer reports whether the user holds admin or maintain permission.
func (o *Owners) IsMaintainer(user string) bool {
	return o.maintainers.Has(strings.ToLower(user))
}

// IsContributor reports whether the user is a repository contributor.
func (o *Owners) IsContributor(user string) bool {
	return o.contributors.Has(strings.ToLower(user))
}

// addAllowedUserCommand is scanned for in issue comments: a privileged user
// can allow-list another user inline instead of editing OWNERS.
const addAllowedUserCommand = "/add-allowed-user"

// IsUserValidToRunCommands implements the command authorization predicate.
// Denials post one advisory comment naming the maintainers.
func (o *Owners) IsUserValidToRunCommands(user string) (bool, error) {
	lower := strings.ToLower(user)
	allowed := o.validCommanders.Clone()
	allowed.Insert(lowered(o.entries[RootDir].AllowedUsers)...)
	allowed.Insert(o.AllRepoApprovers()...)
	allowed = allowed.Union(o.maintainers)
	if allowed.Has(lower) {
		return true, nil
	}

	// A maintainer, approver or allowed user may have granted access in a
	// comment.
	granters := o.maintainers.Clone()
	granters.Insert(o.AllRepoApprovers()...)
	granters.Insert(lowered(o.entries[RootDir].AllowedUsers)...)
	comments, err := o.gc.ListIssueComments(o.org, o.repo, o.pr.Number)
	if err != nil {
		return false, fmt.Errorf("could not scan comments for %s grants: %w", addAllowedUserCommand, err)
	}
	grant := fmt.Sprintf("%s @%s", addAllowedUserCommand, lower)
	for _, comment := range comments {
		if !granters.Has(strings.ToLower(comment.User.Login)) {
			continue
		}
		if strings.Contains(strings.ToLower(comment.Body), grant) {
			return true, nil
		}
	}

	maintainers := sets.List(o.maintainers)
	for i, m := range maintainers {
		maintainers[i] = "@" + m
	}
	denial := fmt.Sprintf(
		"User %s is not allowed to run commands on this pull request.\n\nMaintainers %s can allow it with `%s @%s`.",
		user, strings.Join(maintainers, ", "), addAllowedUserCommand, lower,
	)
	if err := o.gc.CreateComment(o.org, o.repo, o.pr.Number, denial); err != nil {
		return false, fmt.Errorf("could not post authorization denial: %w", err)
	}
	return false, nil
}

// AssignReviewers requests reviews from every PR reviewer except the author
// in one batched call. Failures surface as a single sanitized comment.
func (o *Owners) AssignReviewers() error {
	var reviewers []string
	for _, reviewer := range o.AllPullRequestReviewers() {
		if strings.EqualFold(reviewer, o.pr.User.Login) {
			continue
		}
		reviewers = append(reviewers, reviewer)
	}
	if len(reviewers) == 0 {
		return nil
	}
	sort.Strings(reviewers)
	if err := o.gc.RequestReview(o.org, o.repo, o.pr.Number, reviewers); err != nil {
		comment := fmt.Sprintf("failed to assign reviewers %s: [%T]", strings.Join(reviewers, ", "), err)
		if commentErr := o.gc.CreateComment(o.org, o.repo, o.pr.Number, comment); commentErr != nil {
			return fmt.Errorf("could not report reviewer assignment failure: %w", commentErr)
		}
	}
	return nil
}

func lowered(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
