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

package github

import (
	"fmt"
	"strings"
	"time"
)

const (
	// EventGUID is sent by GitHub in a header of every webhook request.
	EventGUID = "event-GUID"
	// EventTypeField is for logging the webhook event type.
	EventTypeField = "event-type"
)

// User is a GitHub user account.
type User struct {
	Login   string `json:"login"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	ID      int    `json:"id"`
	HTMLURL string `json:"html_url,omitempty"`
	Type    string `json:"type,omitempty"`
}

// Repo contains general repository information: it belongs inside webhook
// payloads, not API responses.
type Repo struct {
	Owner         User   `json:"owner"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	NodeID        string `json:"node_id"`
	ID            int    `json:"id"`
	HTMLURL       string `json:"html_url"`
	Private       bool   `json:"private"`
	Fork          bool   `json:"fork"`
	DefaultBranch string `json:"default_branch"`
}

// Label describes a GitHub label.
type Label struct {
	ID          int64  `json:"id,omitempty"`
	NodeID      string `json:"node_id,omitempty"`
	URL         string `json:"url,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

// PullRequestBranch contains information about a particular branch in a PR.
type PullRequestBranch struct {
	Ref  string `json:"ref"`
	SHA  string `json:"sha"`
	Repo Repo   `json:"repo"`
	User User   `json:"user"`
}

// PullRequest contains the fields of a pull request consumed by the
// workflows. The view is constructed from the webhook payload whenever the
// event carries one, so keep it compatible with both the REST resource and
// the payload's pull_request object.
type PullRequest struct {
	ID                 int               `json:"id"`
	NodeID             string            `json:"node_id"`
	Number             int               `json:"number"`
	HTMLURL            string            `json:"html_url"`
	User               User              `json:"user"`
	Base               PullRequestBranch `json:"base"`
	Head               PullRequestBranch `json:"head"`
	Title              string            `json:"title"`
	Body               string            `json:"body,omitempty"`
	State              string            `json:"state"`
	Draft              bool              `json:"draft"`
	Merged             bool              `json:"merged"`
	CreatedAt          time.Time         `json:"created_at,omitempty"`
	Labels             []Label           `json:"labels,omitempty"`
	RequestedReviewers []User            `json:"requested_reviewers,omitempty"`
	Assignees          []User            `json:"assignees,omitempty"`
	Additions          int               `json:"additions"`
	Deletions          int               `json:"deletions"`
	// Mergeable is a tri-state: GitHub computes it lazily so nil means
	// "not yet known", not "unmergeable".
	Mergeable *bool `json:"mergeable,omitempty"`
	// MergeSHA is the merge commit once Merged is true.
	MergeSHA *string `json:"merge_commit_sha,omitempty"`
}

// HasLabel checks if a label is applied to the PR. Label names compare
// case-insensitively everywhere in this codebase.
func (pr *PullRequest) HasLabel(name string) bool {
	for _, l := range pr.Labels {
		if strings.EqualFold(l.Name, name) {
			return true
		}
	}
	return false
}

// ChangeSize is the sum of changed lines GitHub reports for the PR.
func (pr *PullRequest) ChangeSize() int {
	return pr.Additions + pr.Deletions
}

// PullRequestEventAction enumerates the triggers of the pull_request event.
type PullRequestEventAction string

const (
	PullRequestActionOpened         PullRequestEventAction = "opened"
	PullRequestActionEdited         PullRequestEventAction = "edited"
	PullRequestActionClosed         PullRequestEventAction = "closed"
	PullRequestActionReopened       PullRequestEventAction = "reopened"
	PullRequestActionSynchronize    PullRequestEventAction = "synchronize"
	PullRequestActionReadyForReview PullRequestEventAction = "ready_for_review"
	PullRequestActionLabeled        PullRequestEventAction = "labeled"
	PullRequestActionUnlabeled      PullRequestEventAction = "unlabeled"
)

// PullRequestEvent is what GitHub sends us when a PR is changed.
type PullRequestEvent struct {
	Action      PullRequestEventAction `json:"action"`
	Number      int                    `json:"number"`
	PullRequest PullRequest            `json:"pull_request"`
	Repo        Repo                   `json:"repository"`
	// Label is the label of the PR on (un)label events.
	Label  Label `json:"label"`
	Sender User  `json:"sender"`
	// Changes holds the previous values on "edited" actions.
	Changes *struct {
		Title *struct {
			From string `json:"from"`
		} `json:"title,omitempty"`
	} `json:"changes,omitempty"`

	// GUID is the unique GitHub delivery id, copied in from the
	// X-GitHub-Delivery header by the dispatcher.
	GUID string `json:"-"`
}

// Issue represents general info about an issue.
type Issue struct {
	ID        int       `json:"id"`
	NodeID    string    `json:"node_id"`
	User      User      `json:"user"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	HTMLURL   string    `json:"html_url"`
	Labels    []Label   `json:"labels"`
	Assignees []User    `json:"assignees"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at,omitempty"`

	// PullRequest is non-nil iff this issue is a PR.
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

// IsPullRequest reports whether the issue backs a pull request; issue_comment
// events fire for both plain issues and PRs.
func (i Issue) IsPullRequest() bool {
	return i.PullRequest != nil
}

// HasLabel checks if an issue has a given label.
func (i Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if strings.EqualFold(l.Name, name) {
			return true
		}
	}
	return false
}

// IssueComment represents a comment on a GitHub issue or PR.
type IssueComment struct {
	ID        int       `json:"id,omitempty"`
	NodeID    string    `json:"node_id,omitempty"`
	Body      string    `json:"body"`
	User      User      `json:"user,omitempty"`
	HTMLURL   string    `json:"html_url,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// IssueCommentEventAction enumerates the triggers of the issue_comment event.
type IssueCommentEventAction string

const (
	IssueCommentActionCreated IssueCommentEventAction = "created"
	IssueCommentActionEdited  IssueCommentEventAction = "edited"
	IssueCommentActionDeleted IssueCommentEventAction = "deleted"
)

// IssueCommentEvent is what GitHub sends us when an issue comment is changed.
type IssueCommentEvent struct {
	Action  IssueCommentEventAction `json:"action"`
	Issue   Issue                   `json:"issue"`
	Comment IssueComment            `json:"comment"`
	Repo    Repo                    `json:"repository"`
	Sender  User                    `json:"sender"`

	GUID string `json:"-"`
}

// ReviewState is the state a review can be in.
type ReviewState string

const (
	ReviewStateApproved         ReviewState = "APPROVED"
	ReviewStateChangesRequested ReviewState = "CHANGES_REQUESTED"
	ReviewStateCommented        ReviewState = "COMMENTED"
	ReviewStateDismissed        ReviewState = "DISMISSED"
	ReviewStatePending          ReviewState = "PENDING"
)

// Review describes a pull-request review.
type Review struct {
	ID          int         `json:"id"`
	NodeID      string      `json:"node_id"`
	User        User        `json:"user"`
	Body        string      `json:"body"`
	State       ReviewState `json:"state"`
	HTMLURL     string      `json:"html_url"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// ReviewEventAction enumerates the triggers of the pull_request_review event.
type ReviewEventAction string

const (
	ReviewActionSubmitted ReviewEventAction = "submitted"
	ReviewActionEdited    ReviewEventAction = "edited"
	ReviewActionDismissed ReviewEventAction = "dismissed"
)

// ReviewEvent is what GitHub sends us when a PR review is changed.
type ReviewEvent struct {
	Action      ReviewEventAction `json:"action"`
	PullRequest PullRequest       `json:"pull_request"`
	Repo        Repo              `json:"repository"`
	Review      Review            `json:"review"`
	Sender      User              `json:"sender"`

	GUID string `json:"-"`
}

// CheckRun is a single check inside a check suite. In webhook payloads
// PullRequests carries minimal refs (number, head sha) of the PRs the run
// belongs to.
type CheckRun struct {
	ID           int64         `json:"id"`
	NodeID       string        `json:"node_id,omitempty"`
	HeadSHA      string        `json:"head_sha,omitempty"`
	Name         string        `json:"name,omitempty"`
	Status       string        `json:"status,omitempty"`
	Conclusion   string        `json:"conclusion,omitempty"`
	URL          string        `json:"url,omitempty"`
	HTMLURL      string        `json:"html_url,omitempty"`
	StartedAt    string        `json:"started_at,omitempty"`
	PullRequests []PullRequest `json:"pull_requests,omitempty"`
}

// CheckRunList is the format GitHub returns checks in for a ref.
type CheckRunList struct {
	Total     int        `json:"total_count,omitempty"`
	CheckRuns []CheckRun `json:"check_runs,omitempty"`
}

// CheckRunEventAction enumerates the triggers of the check_run event.
type CheckRunEventAction string

const (
	CheckRunActionCreated         CheckRunEventAction = "created"
	CheckRunActionCompleted       CheckRunEventAction = "completed"
	CheckRunActionRerequested     CheckRunEventAction = "rerequested"
	CheckRunActionRequestedAction CheckRunEventAction = "requested_action"
)

// CheckRunEvent is what GitHub sends us when a check run is changed.
type CheckRunEvent struct {
	Action   CheckRunEventAction `json:"action"`
	CheckRun CheckRun            `json:"check_run"`
	Repo     Repo                `json:"repository"`
	Sender   User                `json:"sender"`

	GUID string `json:"-"`
}

// PushEvent is what GitHub sends us when a commit or tag is pushed.
type PushEvent struct {
	Ref     string `json:"ref"`
	Before  string `json:"before"`
	After   string `json:"after"`
	Created bool   `json:"created"`
	Deleted bool   `json:"deleted"`
	Compare string `json:"compare"`
	Repo    Repo   `json:"repository"`
	Sender  User   `json:"sender"`
	Pusher  struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"pusher"`

	GUID string `json:"-"`
}

// Branch returns the name of the branch to which the user pushed.
func (pe PushEvent) Branch() string {
	ref := strings.TrimPrefix(pe.Ref, "refs/heads/") // if Ref is a branch
	ref = strings.TrimPrefix(ref, "refs/tags/")      // if Ref is a tag
	return ref
}

// IsTag reports whether the push was a tag push.
func (pe PushEvent) IsTag() bool {
	return strings.HasPrefix(pe.Ref, "refs/tags/")
}

// TagName returns the tag for tag pushes and "" otherwise.
func (pe PushEvent) TagName() string {
	if !pe.IsTag() {
		return ""
	}
	return strings.TrimPrefix(pe.Ref, "refs/tags/")
}

// Status is the restful/v3 commit status resource. Contexts set through the
// legacy status API still gate merges, so mergeability reads both this and
// check runs.
type Status struct {
	ID          int64  `json:"id"`
	State       string `json:"state"`
	TargetURL   string `json:"target_url,omitempty"`
	Description string `json:"description,omitempty"`
	Context     string `json:"context,omitempty"`
}

const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusError   = "error"
	StatusFailure = "failure"
)

// CombinedStatus is the latest statuses for a ref.
type CombinedStatus struct {
	SHA      string   `json:"sha"`
	State    string   `json:"state"`
	Statuses []Status `json:"statuses"`
}

// Tree is a GitHub tree.
type Tree struct {
	SHA       string      `json:"sha,omitempty"`
	Entries   []TreeEntry `json:"tree,omitempty"`
	Truncated bool        `json:"truncated"`
}

// TreeEntry is a blob, subtree or commit inside a tree.
type TreeEntry struct {
	SHA  string `json:"sha,omitempty"`
	Path string `json:"path,omitempty"`
	Mode string `json:"mode,omitempty"`
	Type string `json:"type,omitempty"`
	Size int    `json:"size,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Content is some base64 encoded github file content.
type Content struct {
	Content  string `json:"content"`
	SHA      string `json:"sha"`
	Encoding string `json:"encoding"`
}

// Reaction holds the type of emotional reaction.
type Reaction struct {
	Content string `json:"content"`
}

// ReactionThumbsUp is posted on every recognized slash command.
const ReactionThumbsUp = "+1"

// Rate holds the quota for one rate-limit resource.
type Rate struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
	Reset     int `json:"reset"`
}

// RateLimits is GitHub's rate-limit overview for a token.
type RateLimits struct {
	Resources struct {
		Core    Rate `json:"core"`
		Search  Rate `json:"search"`
		GraphQL Rate `json:"graphql"`
	} `json:"resources"`
}

// PackageVersion is one version of a GHCR container package; Tags carries
// the image tags pointing at the version.
type PackageVersion struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Metadata struct {
		PackageType string `json:"package_type"`
		Container   struct {
			Tags []string `json:"tags"`
		} `json:"container"`
	} `json:"metadata"`
}

// BranchProtection holds the piece of the protection resource we consume.
type BranchProtection struct {
	RequiredStatusChecks *RequiredStatusChecks `json:"required_status_checks,omitempty"`
}

// RequiredStatusChecks holds the contexts that must pass before merging.
type RequiredStatusChecks struct {
	Strict   bool     `json:"strict"`
	Contexts []string `json:"contexts"`
}

// CommitsComparison is the GitHub API response to comparing two refs.
type CommitsComparison struct {
	Status       string `json:"status"` // ahead, behind, identical, diverged
	AheadBy      int    `json:"ahead_by"`
	BehindBy     int    `json:"behind_by"`
	TotalCommits int    `json:"total_commits"`
}

// ClientError represents https://developer.github.com/v3/#client-errors
type ClientError struct {
	Message string `json:"message"`
	Errors  []struct {
		Resource string `json:"resource"`
		Field    string `json:"field"`
		Code     string `json:"code"`
		Message  string `json:"message,omitempty"`
	} `json:"errors,omitempty"`
}

func (e ClientError) Error() string {
	return e.Message
}

// FileNotFound happens when github cannot find the file requested by GetFile().
type FileNotFound struct {
	org, repo, path, commit string
}

func (e *FileNotFound) Error() string {
	return fmt.Sprintf("%s/%s/%s @ %s not found", e.org, e.repo, e.path, e.commit)
}
