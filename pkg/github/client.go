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
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shurcooL/githubv4"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Logger is the subset of logrus the client needs; every method call is
// logged at debug level with its arguments.
type Logger interface {
	Debugf(s string, v ...interface{})
}

// UsageObserver receives a callback for every request issued against the
// API so the delivery can account for consumed quota. Implementations must
// be safe for concurrent use: sub-tasks of one delivery share the client.
type UsageObserver interface {
	// RecordAPICall is called once per REST request, including retries.
	RecordAPICall()
	// RecordGraphQLCost is called with the server-reported cost of each
	// GraphQL query. GraphQL spends from its own rate-limit pool, so this
	// is tracked apart from REST calls.
	RecordGraphQLCost(cost int)
}

// DefaultAPIBase is the public GitHub REST endpoint.
const DefaultAPIBase = "https://api.github.com"

// Client interacts with the github api. A Client is scoped to a single
// delivery: the token is chosen once from the pool, the context carries the
// inbound request's cancellation and the observer feeds the delivery's
// audit accounting.
type Client struct {
	// When set, every API call is logged through it at debug.
	logger Logger

	gqlc     *githubv4.Client
	client   *http.Client
	getToken func() []byte
	base     string
	ctx      context.Context
	observer UsageObserver

	// guards botName.
	mut     sync.Mutex
	botName string
}

const (
	maxRetries    = 8
	max404Retries = 2
	maxSleepTime  = 2 * time.Minute
	initialDelay  = 2 * time.Second
)

// NewClient creates a new fully operational GitHub client scoped to one
// delivery. getToken is called per request so token-file rotation is picked
// up; observer may be nil when no accounting is wanted.
func NewClient(ctx context.Context, logger *logrus.Entry, getToken func() []byte, base string, observer UsageObserver) *Client {
	httpClient := &http.Client{Timeout: 2 * time.Minute}
	gqlHTTPClient := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(nil, &tokenSource{getToken: getToken}))
	return &Client{
		logger:   logger.WithField("client", "github"),
		gqlc:     githubv4.NewClient(gqlHTTPClient),
		client:   httpClient,
		getToken: getToken,
		base:     strings.TrimSuffix(base, "/"),
		ctx:      ctx,
		observer: observer,
	}
}

// tokenSource adapts a token getter to oauth2 for the GraphQL transport.
type tokenSource struct {
	getToken func() []byte
}

func (t *tokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: string(t.getToken())}, nil
}

func (c *Client) log(methodName string, args ...interface{}) {
	if c.logger == nil {
		return
	}
	var as []string
	for _, arg := range args {
		as = append(as, fmt.Sprintf("%v", arg))
	}
	c.logger.Debugf("%s(%s)", methodName, strings.Join(as, ", "))
}

var timeSleep = time.Sleep

type request struct {
	method      string
	path        string
	accept      string
	requestBody interface{}
	exitCodes   []int
}

type requestError struct {
	ClientError
	ErrorString string
}

func (r requestError) Error() string {
	return r.ErrorString
}

// IsCritical classifies an error per the delivery abort policy: failures
// that smell like revoked credentials, missing permissions or exhausted
// quota abort the whole delivery, anything else is logged and the affected
// sub-task becomes a no-op.
func IsCritical(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, marker := range []string{"auth", "permission", "forbidden", "rate limit", "401", "403"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// request performs one API call with retries and unmarshals the body into
// ret when ret is non-nil. Status codes outside r.exitCodes become errors
// carrying the decoded GitHub error body.
func (c *Client) request(r *request, ret interface{}) (int, error) {
	resp, err := c.requestRetry(r.method, r.path, r.accept, r.requestBody)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	var okCode bool
	for _, code := range r.exitCodes {
		if code == resp.StatusCode {
			okCode = true
			break
		}
	}
	if !okCode {
		clientError := ClientError{}
		if err := json.Unmarshal(b, &clientError); err != nil {
			return resp.StatusCode, err
		}
		return resp.StatusCode, requestError{
			ClientError: clientError,
			ErrorString: fmt.Sprintf("unexpected status %d (want one of %v), body: %s", resp.StatusCode, r.exitCodes, string(b)),
		}
	}
	if ret != nil {
		if err := json.Unmarshal(b, ret); err != nil {
			return 0, err
		}
	}
	return resp.StatusCode, nil
}

// requestRetry drives one call through the retry policy: transport errors
// and 5xx back off exponentially, quota exhaustion sleeps until the reset
// time, and fresh 404s get a short grace period.
func (c *Client) requestRetry(method, path, accept string, body interface{}) (*http.Response, error) {
	var resp *http.Response
	var err error
	backoff := initialDelay
	for retries := 0; retries < maxRetries; retries++ {
		if err := c.ctx.Err(); err != nil {
			return nil, err
		}
		resp, err = c.doRequest(method, path, accept, body)
		if err == nil {
			if resp.StatusCode == 404 && retries < max404Retries {
				// A webhook often lands before the object it describes is
				// readable, so the first GET after a "PR opened" event can
				// 404. Give propagation a short grace period, but only a
				// short one: a genuinely wrong path would burn quota on
				// every retry.
				resp.Body.Close()
				timeSleep(backoff)
				backoff *= 2
			} else if resp.StatusCode == 403 {
				if resp.Header.Get("X-RateLimit-Remaining") == "0" {
					// Quota is gone. X-RateLimit-Reset says when it comes
					// back; wait that out unless it is unreasonably far away.
					var t int
					if t, err = strconv.Atoi(resp.Header.Get("X-RateLimit-Reset")); err == nil {
						// One second of slop so the window has really reset
						// by the time the next request lands.
						sleepTime := time.Until(time.Unix(int64(t), 0)) + time.Second
						if sleepTime > 0 && sleepTime < maxSleepTime {
							timeSleep(sleepTime)
						} else {
							break
						}
					}
				} else if oauthScopes := resp.Header.Get("X-Accepted-OAuth-Scopes"); len(oauthScopes) > 0 {
					err = fmt.Errorf("token lacks a required oauth scope, the endpoint accepts: %s", oauthScopes)
					break
				}
				resp.Body.Close()
			} else if resp.StatusCode < 500 {
				// Anything else below 500 is an answer, not a failure.
				break
			} else {
				// Server errors get the backoff treatment.
				resp.Body.Close()
				timeSleep(backoff)
				backoff *= 2
			}
		} else {
			timeSleep(backoff)
			backoff *= 2
		}
	}
	return resp, err
}

func (c *Client) doRequest(method, path, accept string, body interface{}) (*http.Response, error) {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		buf = bytes.NewBuffer(b)
	}
	req, err := http.NewRequestWithContext(c.ctx, method, path, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+string(c.getToken()))
	if accept == "" {
		req.Header.Add("Accept", "application/vnd.github.v3+json")
	} else {
		req.Header.Add("Accept", accept)
	}
	// GitHub sometimes drops idle connections mid-flight; a fresh
	// connection per request avoids those flakes.
	req.Close = true
	// The rate-limit endpoint never decrements quota, so don't charge the
	// delivery for polling it.
	if c.observer != nil && !strings.HasSuffix(req.URL.Path, "/rate_limit") {
		c.observer.RecordAPICall()
	}
	return c.client.Do(req)
}

// readPaginatedResults iterates over all objects in the paginated result
// indicated by the given path. newObj returns a new slice of the expected
// type and accumulate accepts the populated slice for each page.
func (c *Client) readPaginatedResults(path, accept string, newObj func() interface{}, accumulate func(interface{})) error {
	pagedURL := fmt.Sprintf("%s%s?per_page=100", c.base, path)
	for pagedURL != "" {
		resp, err := c.requestRetry(http.MethodGet, pagedURL, accept, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("return code not 2XX: %s", resp.Status)
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		obj := newObj()
		if err := json.Unmarshal(b, obj); err != nil {
			return err
		}

		accumulate(obj)

		pagedURL = parseLinks(resp.Header.Get("Link"))["next"]
	}
	return nil
}

// BotName returns the login of the authenticated user and caches it; this
// is the api_user recorded in every audit entry.
func (c *Client) BotName() (string, error) {
	c.mut.Lock()
	defer c.mut.Unlock()
	if c.botName == "" {
		var u User
		_, err := c.request(&request{
			method:    http.MethodGet,
			path:      fmt.Sprintf("%s/user", c.base),
			exitCodes: []int{200},
		}, &u)
		if err != nil {
			return "", fmt.Errorf("fetching bot name from GitHub: %w", err)
		}
		c.botName = u.Login
	}
	return c.botName, nil
}

// CreateComment posts a comment on the issue or PR.
func (c *Client) CreateComment(org, repo string, number int, comment string) error {
	c.log("CreateComment", org, repo, number, comment)
	ic := IssueComment{
		Body: comment,
	}
	_, err := c.request(&request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", c.base, org, repo, number),
		requestBody: &ic,
		exitCodes:   []int{201},
	}, nil)
	return err
}

// EditComment changes the body of comment id in org/repo.
func (c *Client) EditComment(org, repo string, id int, comment string) error {
	c.log("EditComment", org, repo, id, comment)
	ic := IssueComment{
		Body: comment,
	}
	_, err := c.request(&request{
		method:      http.MethodPatch,
		path:        fmt.Sprintf("%s/repos/%s/%s/issues/comments/%d", c.base, org, repo, id),
		requestBody: &ic,
		exitCodes:   []int{200},
	}, nil)
	return err
}

// ListIssueComments returns every comment on the issue, paging through the
// full set.
func (c *Client) ListIssueComments(org, repo string, number int) ([]IssueComment, error) {
	c.log("ListIssueComments", org, repo, number)
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", org, repo, number)
	var comments []IssueComment
	err := c.readPaginatedResults(
		path,
		"",
		func() interface{} {
			return &[]IssueComment{}
		},
		func(obj interface{}) {
			comments = append(comments, *(obj.(*[]IssueComment))...)
		},
	)
	if err != nil {
		return nil, err
	}
	return comments, nil
}

// CreateCommentReaction responds emotionally to a comment.
func (c *Client) CreateCommentReaction(org, repo string, id int, reaction string) error {
	c.log("CreateCommentReaction", org, repo, id, reaction)
	r := Reaction{Content: reaction}
	_, err := c.request(&request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("%s/repos/%s/%s/issues/comments/%d/reactions", c.base, org, repo, id),
		exitCodes:   []int{200, 201},
		requestBody: &r,
	}, nil)
	return err
}

// CreateIssue creates a new issue and returns its number if the creation is
// successful.
func (c *Client) CreateIssue(org, repo, title, body string, assignees []string) (int, error) {
	c.log("CreateIssue", org, repo, title)
	data := struct {
		Title     string   `json:"title"`
		Body      string   `json:"body"`
		Assignees []string `json:"assignees,omitempty"`
	}{
		Title:     title,
		Body:      body,
		Assignees: assignees,
	}
	var resp struct {
		Num int `json:"number"`
	}
	_, err := c.request(&request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("%s/repos/%s/%s/issues", c.base, org, repo),
		requestBody: &data,
		exitCodes:   []int{201},
	}, &resp)
	return resp.Num, err
}

// CloseIssue closes the existing, open issue provided.
func (c *Client) CloseIssue(org, repo string, number int) error {
	c.log("CloseIssue", org, repo, number)
	_, err := c.request(&request{
		method:      http.MethodPatch,
		path:        fmt.Sprintf("%s/repos/%s/%s/issues/%d", c.base, org, repo, number),
		requestBody: map[string]string{"state": "closed"},
		exitCodes:   []int{200},
	}, nil)
	return err
}

// GetPullRequest fetches one pull request by number.
func (c *Client) GetPullRequest(org, repo string, number int) (*PullRequest, error) {
	c.log("GetPullRequest", org, repo, number)
	var pr PullRequest
	_, err := c.request(&request{
		method:    http.MethodGet,
		path:      fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.base, org, repo, number),
		exitCodes: []int{200},
	}, &pr)
	return &pr, err
}

// ListOpenPullRequests lists the repo's open PRs; the post-merge conflict
// sweep walks these.
func (c *Client) ListOpenPullRequests(org, repo string) ([]PullRequest, error) {
	c.log("ListOpenPullRequests", org, repo)
	path := fmt.Sprintf("/repos/%s/%s/pulls", org, repo)
	var prs []PullRequest
	err := c.readPaginatedResults(
		path,
		"",
		func() interface{} {
			return &[]PullRequest{}
		},
		func(obj interface{}) {
			prs = append(prs, *(obj.(*[]PullRequest))...)
		},
	)
	if err != nil {
		return nil, err
	}
	return prs, nil
}

// UpdatePullRequestTitle retitles a PR; the wip command toggles the "WIP:"
// prefix through this.
func (c *Client) UpdatePullRequestTitle(org, repo string, number int, title string) error {
	c.log("UpdatePullRequestTitle", org, repo, number, title)
	_, err := c.request(&request{
		method:      http.MethodPatch,
		path:        fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.base, org, repo, number),
		requestBody: map[string]string{"title": title},
		exitCodes:   []int{200},
	}, nil)
	return err
}

// MissingUsers is an error specifying the users that could not be unassigned.
type MissingUsers struct {
	Users  []string
	action string
}

func (m MissingUsers) Error() string {
	return fmt.Sprintf("could not %s the following user(s): %s.", m.action, strings.Join(m.Users, ", "))
}

// AssignIssue adds logins to org/repo#number, returning an error if any
// login is missing after making the call.
func (c *Client) AssignIssue(org, repo string, number int, logins []string) error {
	c.log("AssignIssue", org, repo, number, logins)
	assigned := make(map[string]bool)
	var i Issue
	_, err := c.request(&request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("%s/repos/%s/%s/issues/%d/assignees", c.base, org, repo, number),
		requestBody: map[string][]string{"assignees": logins},
		exitCodes:   []int{201},
	}, &i)
	if err != nil {
		return err
	}
	for _, assignee := range i.Assignees {
		assigned[strings.ToLower(assignee.Login)] = true
	}
	missing := MissingUsers{action: "assign"}
	for _, login := range logins {
		if !assigned[strings.ToLower(login)] {
			missing.Users = append(missing.Users, login)
		}
	}
	if len(missing.Users) > 0 {
		return missing
	}
	return nil
}

// RequestReview tries to add the users listed in 'logins' as requested
// reviewers of the specified PR. A MissingUsers error lists every login
// GitHub would not accept (typically non-collaborators).
func (c *Client) RequestReview(org, repo string, number int, logins []string) error {
	c.log("RequestReview", org, repo, number, logins)
	body := map[string][]string{"reviewers": logins}
	var pr PullRequest
	code, err := c.request(&request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("%s/repos/%s/%s/pulls/%d/requested_reviewers", c.base, org, repo, number),
		accept:      "application/vnd.github.symmetra-preview+json",
		requestBody: &body,
		exitCodes:   []int{http.StatusCreated, http.StatusUnprocessableEntity},
	}, &pr)
	if err != nil {
		return err
	}
	if code == http.StatusUnprocessableEntity {
		return MissingUsers{action: "request a PR review from", Users: logins}
	}
	requested := make(map[string]bool)
	for _, reviewer := range pr.RequestedReviewers {
		requested[strings.ToLower(reviewer.Login)] = true
	}
	missing := MissingUsers{action: "request a PR review from"}
	for _, login := range logins {
		if !requested[strings.ToLower(login)] {
			missing.Users = append(missing.Users, login)
		}
	}
	if len(missing.Users) > 0 {
		return missing
	}
	return nil
}

// GetBranchProtection reads the protection resource for a branch. A nil
// result with nil error means the branch is simply not protected.
func (c *Client) GetBranchProtection(org, repo, branch string) (*BranchProtection, error) {
	c.log("GetBranchProtection", org, repo, branch)
	var bp BranchProtection
	code, err := c.request(&request{
		method: http.MethodGet,
		path:   fmt.Sprintf("%s/repos/%s/%s/branches/%s/protection", c.base, org, repo, branch),
		// GitHub returns 404 for unprotected branches.
		exitCodes: []int{200, 404},
	}, &bp)
	if err != nil {
		return nil, err
	}
	if code == 404 {
		return nil, nil
	}
	return &bp, nil
}

// GetBranch reports whether the named branch exists. Branch names may
// contain slashes, so the path segment is escaped.
func (c *Client) GetBranch(org, repo, branch string) (bool, error) {
	c.log("GetBranch", org, repo, branch)
	code, err := c.request(&request{
		method:    http.MethodGet,
		path:      fmt.Sprintf("%s/repos/%s/%s/branches/%s", c.base, org, repo, url.PathEscape(branch)),
		exitCodes: []int{200, 404},
	}, nil)
	if err != nil {
		return false, err
	}
	return code == 200, nil
}

// GetCombinedStatus returns the merged commit statuses for ref.
func (c *Client) GetCombinedStatus(org, repo, ref string) (*CombinedStatus, error) {
	c.log("GetCombinedStatus", org, repo, ref)
	var combined CombinedStatus
	err := c.readPaginatedResults(
		fmt.Sprintf("/repos/%s/%s/commits/%s/status", org, repo, ref),
		"",
		func() interface{} {
			return &CombinedStatus{}
		},
		func(obj interface{}) {
			cs := *(obj.(*CombinedStatus))
			combined.SHA = cs.SHA
			combined.State = cs.State
			combined.Statuses = append(combined.Statuses, cs.Statuses...)
		},
	)
	return &combined, err
}

// ListCheckRuns lists the check runs for a given ref.
func (c *Client) ListCheckRuns(org, repo, ref string) (*CheckRunList, error) {
	c.log("ListCheckRuns", org, repo, ref)
	var checks CheckRunList
	err := c.readPaginatedResults(
		fmt.Sprintf("/repos/%s/%s/commits/%s/check-runs", org, repo, ref),
		"",
		func() interface{} {
			return &CheckRunList{}
		},
		func(obj interface{}) {
			cr := *(obj.(*CheckRunList))
			checks.Total = cr.Total
			checks.CheckRuns = append(checks.CheckRuns, cr.CheckRuns...)
		},
	)
	if err != nil {
		return nil, err
	}
	return &checks, nil
}

// CompareCommits compares base and head; the "behind" status drives the
// needs-rebase label.
func (c *Client) CompareCommits(org, repo, base, head string) (*CommitsComparison, error) {
	c.log("CompareCommits", org, repo, base, head)
	var comparison CommitsComparison
	_, err := c.request(&request{
		method:    http.MethodGet,
		path:      fmt.Sprintf("%s/repos/%s/%s/compare/%s...%s", c.base, org, repo, base, head),
		exitCodes: []int{200},
	}, &comparison)
	return &comparison, err
}

// GetFile uses GitHub repo contents API to retrieve the content of a file
// with commit SHA. If commit is empty string, it returns the content on the
// default branch.
func (c *Client) GetFile(org, repo, filepath, commit string) ([]byte, error) {
	c.log("GetFile", org, repo, filepath, commit)

	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.base, org, repo, filepath)
	if commit != "" {
		u = fmt.Sprintf("%s?ref=%s", u, url.QueryEscape(commit))
	}

	var res Content
	code, err := c.request(&request{
		method:    http.MethodGet,
		path:      u,
		exitCodes: []int{200, 404},
	}, &res)
	if err != nil {
		return nil, err
	}
	if code == 404 {
		return nil, &FileNotFound{
			org:    org,
			repo:   repo,
			path:   filepath,
			commit: commit,
		}
	}
	decoded, err := base64.StdEncoding.DecodeString(res.Content)
	if err != nil {
		return nil, fmt.Errorf("error decoding %s : %w", res.Content, err)
	}
	return decoded, nil
}

// GetTree returns the git tree at sha; recursive walks the whole repo in a
// single call, which is how OWNERS files are discovered.
func (c *Client) GetTree(org, repo, sha string, recursive bool) (*Tree, error) {
	c.log("GetTree", org, repo, sha, recursive)
	path := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s", c.base, org, repo, url.PathEscape(sha))
	if recursive {
		path += "?recursive=1"
	}
	var tree Tree
	_, err := c.request(&request{
		method:    http.MethodGet,
		path:      path,
		exitCodes: []int{200},
	}, &tree)
	return &tree, err
}

// GetUserPermission returns the permission level of a collaborator:
// admin, maintain, write, triage, read or none.
func (c *Client) GetUserPermission(org, repo, user string) (string, error) {
	c.log("GetUserPermission", org, repo, user)
	var perm struct {
		Permission string `json:"permission"`
	}
	_, err := c.request(&request{
		method:    http.MethodGet,
		path:      fmt.Sprintf("%s/repos/%s/%s/collaborators/%s/permission", c.base, org, repo, user),
		exitCodes: []int{200},
	}, &perm)
	return perm.Permission, err
}

// GetRateLimit reads the token quota; the endpoint itself is free.
func (c *Client) GetRateLimit() (*RateLimits, error) {
	c.log("GetRateLimit")
	var rl RateLimits
	_, err := c.request(&request{
		method:    http.MethodGet,
		path:      fmt.Sprintf("%s/rate_limit", c.base),
		exitCodes: []int{200},
	}, &rl)
	return &rl, err
}

// GetRepoLabel fetches a repository-level label by name. A nil result with
// nil error means the label does not exist yet.
func (c *Client) GetRepoLabel(org, repo, name string) (*Label, error) {
	c.log("GetRepoLabel", org, repo, name)
	var label Label
	code, err := c.request(&request{
		method:    http.MethodGet,
		path:      fmt.Sprintf("%s/repos/%s/%s/labels/%s", c.base, org, repo, url.PathEscape(name)),
		exitCodes: []int{200, 404},
	}, &label)
	if err != nil {
		return nil, err
	}
	if code == 404 {
		return nil, nil
	}
	return &label, nil
}

// CreateRepoLabel creates a repository-level label with a color.
func (c *Client) CreateRepoLabel(org, repo, name, color string) (*Label, error) {
	c.log("CreateRepoLabel", org, repo, name, color)
	var label Label
	_, err := c.request(&request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("%s/repos/%s/%s/labels", c.base, org, repo),
		requestBody: map[string]string{"name": name, "color": color},
		exitCodes:   []int{201},
	}, &label)
	if err != nil {
		return nil, err
	}
	return &label, nil
}

// UpdateRepoLabelColor recolors an existing repository-level label; dynamic
// label prefixes carry a color per prefix, so recoloring keeps drifted
// labels consistent.
func (c *Client) UpdateRepoLabelColor(org, repo, name, color string) (*Label, error) {
	c.log("UpdateRepoLabelColor", org, repo, name, color)
	var label Label
	_, err := c.request(&request{
		method:      http.MethodPatch,
		path:        fmt.Sprintf("%s/repos/%s/%s/labels/%s", c.base, org, repo, url.PathEscape(name)),
		requestBody: map[string]string{"color": color},
		exitCodes:   []int{200},
	}, &label)
	if err != nil {
		return nil, err
	}
	return &label, nil
}

// ListPackageVersions lists the container-package versions owned by an org
// or user. GHCR scopes package routes by owner type.
func (c *Client) ListPackageVersions(owner string, ownerIsOrg bool, packageName string) ([]PackageVersion, error) {
	c.log("ListPackageVersions", owner, ownerIsOrg, packageName)
	scope := "users"
	if ownerIsOrg {
		scope = "orgs"
	}
	path := fmt.Sprintf("/%s/%s/packages/container/%s/versions", scope, owner, url.PathEscape(packageName))
	var versions []PackageVersion
	err := c.readPaginatedResults(
		path,
		"",
		func() interface{} {
			return &[]PackageVersion{}
		},
		func(obj interface{}) {
			versions = append(versions, *(obj.(*[]PackageVersion))...)
		},
	)
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// DeletePackageVersion deletes one version of a GHCR container package.
func (c *Client) DeletePackageVersion(owner string, ownerIsOrg bool, packageName string, versionID int64) error {
	c.log("DeletePackageVersion", owner, ownerIsOrg, packageName, versionID)
	scope := "users"
	if ownerIsOrg {
		scope = "orgs"
	}
	_, err := c.request(&request{
		method:    http.MethodDelete,
		path:      fmt.Sprintf("%s/%s/%s/packages/container/%s/versions/%d", c.base, scope, owner, url.PathEscape(packageName), versionID),
		exitCodes: []int{204},
	}, nil)
	return err
}
