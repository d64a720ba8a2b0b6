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

	"github.com/shurcooL/githubv4"
)

// SnapshotCaps bounds each collection of the repository snapshot. GitHub
// rejects first: arguments above 100, so caps are clamped there.
type SnapshotCaps struct {
	Collaborators int
	Contributors  int
	Issues        int
	PullRequests  int
}

// DefaultSnapshotCap is applied per collection when no override is set.
const DefaultSnapshotCap = 100

func (c SnapshotCaps) normalized() SnapshotCaps {
	clamp := func(n int) int {
		if n <= 0 {
			return DefaultSnapshotCap
		}
		if n > 100 {
			return 100
		}
		return n
	}
	return SnapshotCaps{
		Collaborators: clamp(c.Collaborators),
		Contributors:  clamp(c.Contributors),
		Issues:        clamp(c.Issues),
		PullRequests:  clamp(c.PullRequests),
	}
}

// Collaborator is a repository collaborator and its permission grade.
type Collaborator struct {
	Login      string
	Permission string // ADMIN, MAINTAIN, WRITE, TRIAGE, READ
}

// SnapshotIssue is an open issue inside the repository snapshot.
type SnapshotIssue struct {
	Number int
	Title  string
	Body   string
	Labels []string
}

// SnapshotPullRequest is an open PR inside the repository snapshot.
type SnapshotPullRequest struct {
	Number int
	Title  string
	Author string
}

// RepositorySnapshot is the single per-delivery GraphQL-fetched bundle of
// repository data. It is immutable for the lifetime of the delivery and
// satisfies most reads that would otherwise each cost an API call.
type RepositorySnapshot struct {
	NodeID           string
	DatabaseID       int
	Collaborators    []Collaborator
	Contributors     []string
	OpenIssues       []SnapshotIssue
	OpenPullRequests []SnapshotPullRequest
}

// CollaboratorsWithPermission returns the logins holding any of the given
// permission grades.
func (s *RepositorySnapshot) CollaboratorsWithPermission(grades ...string) []string {
	want := make(map[string]bool, len(grades))
	for _, g := range grades {
		want[g] = true
	}
	var logins []string
	for _, c := range s.Collaborators {
		if want[c.Permission] {
			logins = append(logins, c.Login)
		}
	}
	return logins
}

type repositorySnapshotQuery struct {
	RateLimit struct {
		Cost      githubv4.Int
		Remaining githubv4.Int
	}
	Repository struct {
		ID            githubv4.String `graphql:"id"`
		DatabaseID    githubv4.Int    `graphql:"databaseId"`
		Collaborators struct {
			Edges []struct {
				Permission githubv4.String
				Node       struct {
					Login githubv4.String
				}
			}
		} `graphql:"collaborators(first: $collaboratorsCap)"`
		MentionableUsers struct {
			Nodes []struct {
				Login githubv4.String
			}
		} `graphql:"mentionableUsers(first: $contributorsCap)"`
		Issues struct {
			Nodes []struct {
				Number githubv4.Int
				Title  githubv4.String
				Body   githubv4.String
				Labels struct {
					Nodes []struct {
						Name githubv4.String
					}
				} `graphql:"labels(first: 20)"`
			}
		} `graphql:"issues(first: $issuesCap, states: OPEN)"`
		PullRequests struct {
			Nodes []struct {
				Number githubv4.Int
				Title  githubv4.String
				Author struct {
					Login githubv4.String
				}
			}
		} `graphql:"pullRequests(first: $pullRequestsCap, states: OPEN)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// FetchRepositorySnapshot issues the one comprehensive repository query of
// the delivery.
func (c *Client) FetchRepositorySnapshot(org, repo string, caps SnapshotCaps) (*RepositorySnapshot, error) {
	c.log("FetchRepositorySnapshot", org, repo)
	caps = caps.normalized()
	vars := map[string]interface{}{
		"owner":            githubv4.String(org),
		"name":             githubv4.String(repo),
		"collaboratorsCap": githubv4.Int(caps.Collaborators),
		"contributorsCap":  githubv4.Int(caps.Contributors),
		"issuesCap":        githubv4.Int(caps.Issues),
		"pullRequestsCap":  githubv4.Int(caps.PullRequests),
	}
	var q repositorySnapshotQuery
	if err := c.gqlc.Query(c.ctx, &q, vars); err != nil {
		return nil, fmt.Errorf("fetching repository snapshot for %s/%s: %w", org, repo, err)
	}
	c.recordGraphQLCost(int(q.RateLimit.Cost))

	snapshot := &RepositorySnapshot{
		NodeID:     string(q.Repository.ID),
		DatabaseID: int(q.Repository.DatabaseID),
	}
	for _, edge := range q.Repository.Collaborators.Edges {
		snapshot.Collaborators = append(snapshot.Collaborators, Collaborator{
			Login:      string(edge.Node.Login),
			Permission: string(edge.Permission),
		})
	}
	for _, node := range q.Repository.MentionableUsers.Nodes {
		snapshot.Contributors = append(snapshot.Contributors, string(node.Login))
	}
	for _, node := range q.Repository.Issues.Nodes {
		issue := SnapshotIssue{
			Number: int(node.Number),
			Title:  string(node.Title),
			Body:   string(node.Body),
		}
		for _, label := range node.Labels.Nodes {
			issue.Labels = append(issue.Labels, string(label.Name))
		}
		snapshot.OpenIssues = append(snapshot.OpenIssues, issue)
	}
	for _, node := range q.Repository.PullRequests.Nodes {
		snapshot.OpenPullRequests = append(snapshot.OpenPullRequests, SnapshotPullRequest{
			Number: int(node.Number),
			Title:  string(node.Title),
			Author: string(node.Author.Login),
		})
	}
	return snapshot, nil
}

type changedFilesQuery struct {
	RateLimit struct {
		Cost      githubv4.Int
		Remaining githubv4.Int
	}
	Repository struct {
		PullRequest struct {
			Files struct {
				PageInfo struct {
					HasNextPage githubv4.Boolean
					EndCursor   githubv4.String
				}
				Nodes []struct {
					Path githubv4.String
				}
			} `graphql:"files(first: 100, after: $filesCursor)"`
		} `graphql:"pullRequest(number: $number)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// ListPullRequestChangedFiles returns the paths touched by the PR.
func (c *Client) ListPullRequestChangedFiles(org, repo string, number int) ([]string, error) {
	c.log("ListPullRequestChangedFiles", org, repo, number)
	vars := map[string]interface{}{
		"owner":       githubv4.String(org),
		"name":        githubv4.String(repo),
		"number":      githubv4.Int(number),
		"filesCursor": (*githubv4.String)(nil),
	}
	var paths []string
	for {
		var q changedFilesQuery
		if err := c.gqlc.Query(c.ctx, &q, vars); err != nil {
			return nil, fmt.Errorf("listing changed files for %s/%s#%d: %w", org, repo, number, err)
		}
		c.recordGraphQLCost(int(q.RateLimit.Cost))
		for _, node := range q.Repository.PullRequest.Files.Nodes {
			paths = append(paths, string(node.Path))
		}
		if !q.Repository.PullRequest.Files.PageInfo.HasNextPage {
			break
		}
		vars["filesCursor"] = githubv4.NewString(q.Repository.PullRequest.Files.PageInfo.EndCursor)
	}
	return paths, nil
}

type pullRequestQuery struct {
	RateLimit struct {
		Cost      githubv4.Int
		Remaining githubv4.Int
	}
	Repository struct {
		PullRequest struct {
			ID     githubv4.String `graphql:"id"`
			Number githubv4.Int
			Title  githubv4.String
			Author struct {
				Login githubv4.String
			}
			IsDraft     githubv4.Boolean `graphql:"isDraft"`
			Merged      githubv4.Boolean
			BaseRefName githubv4.String `graphql:"baseRefName"`
			HeadRefName githubv4.String `graphql:"headRefName"`
			HeadRefOID  githubv4.String `graphql:"headRefOid"`
			Additions   githubv4.Int
			Deletions   githubv4.Int
			Mergeable   githubv4.MergeableState
			MergeCommit *struct {
				OID githubv4.String `graphql:"oid"`
			} `graphql:"mergeCommit"`
			HeadRepositoryOwner struct {
				Login githubv4.String
			} `graphql:"headRepositoryOwner"`
			Labels struct {
				Nodes []struct {
					ID    githubv4.String `graphql:"id"`
					Name  githubv4.String
					Color githubv4.String
				}
			} `graphql:"labels(first: 100)"`
		} `graphql:"pullRequest(number: $number)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// FetchPullRequest reconstructs the PR view for events whose payload does
// not embed a pull_request object.
func (c *Client) FetchPullRequest(org, repo string, number int) (*PullRequest, error) {
	c.log("FetchPullRequest", org, repo, number)
	vars := map[string]interface{}{
		"owner":  githubv4.String(org),
		"name":   githubv4.String(repo),
		"number": githubv4.Int(number),
	}
	var q pullRequestQuery
	if err := c.gqlc.Query(c.ctx, &q, vars); err != nil {
		return nil, fmt.Errorf("fetching PR %s/%s#%d: %w", org, repo, number, err)
	}
	c.recordGraphQLCost(int(q.RateLimit.Cost))

	node := q.Repository.PullRequest
	pr := &PullRequest{
		NodeID:    string(node.ID),
		Number:    int(node.Number),
		Title:     string(node.Title),
		User:      User{Login: string(node.Author.Login)},
		Draft:     bool(node.IsDraft),
		Merged:    bool(node.Merged),
		Additions: int(node.Additions),
		Deletions: int(node.Deletions),
	}
	pr.Base.Ref = string(node.BaseRefName)
	pr.Head.Ref = string(node.HeadRefName)
	pr.Head.SHA = string(node.HeadRefOID)
	pr.Head.User = User{Login: string(node.HeadRepositoryOwner.Login)}
	switch node.Mergeable {
	case githubv4.MergeableStateMergeable:
		v := true
		pr.Mergeable = &v
	case githubv4.MergeableStateConflicting:
		v := false
		pr.Mergeable = &v
	}
	if node.MergeCommit != nil {
		sha := string(node.MergeCommit.OID)
		pr.MergeSHA = &sha
	}
	for _, label := range node.Labels.Nodes {
		pr.Labels = append(pr.Labels, Label{
			NodeID: string(label.ID),
			Name:   string(label.Name),
			Color:  string(label.Color),
		})
	}
	return pr, nil
}

// GetPullRequestLabels re-reads the PR's node id and current labels; the
// labels engine polls this while waiting for mutation consistency.
func (c *Client) GetPullRequestLabels(org, repo string, number int) (string, []Label, error) {
	c.log("GetPullRequestLabels", org, repo, number)
	pr, err := c.FetchPullRequest(org, repo, number)
	if err != nil {
		return "", nil, err
	}
	return pr.NodeID, pr.Labels, nil
}

type addLabelsMutation struct {
	AddLabelsToLabelable struct {
		Labelable struct {
			Labels struct {
				Nodes []struct {
					ID    githubv4.String `graphql:"id"`
					Name  githubv4.String
					Color githubv4.String
				}
			} `graphql:"labels(first: 100)"`
		}
	} `graphql:"addLabelsToLabelable(input: $input)"`
}

// AddLabelsToLabelable attaches repo-level labels to the PR node and
// returns the full label set from the mutation response, so callers can
// update their cached view without a re-fetch.
func (c *Client) AddLabelsToLabelable(labelableID string, labelIDs []string) ([]Label, error) {
	c.log("AddLabelsToLabelable", labelableID, labelIDs)
	ids := make([]githubv4.ID, 0, len(labelIDs))
	for _, id := range labelIDs {
		ids = append(ids, githubv4.ID(id))
	}
	input := githubv4.AddLabelsToLabelableInput{
		LabelableID: githubv4.ID(labelableID),
		LabelIDs:    ids,
	}
	var m addLabelsMutation
	if err := c.gqlc.Mutate(c.ctx, &m, input, nil); err != nil {
		return nil, fmt.Errorf("adding labels to %s: %w", labelableID, err)
	}
	// mutations cannot select rateLimit; they cost one point each
	c.recordGraphQLCost(1)
	return labelNodesToLabels(m.AddLabelsToLabelable.Labelable.Labels.Nodes), nil
}

type removeLabelsMutation struct {
	RemoveLabelsFromLabelable struct {
		Labelable struct {
			Labels struct {
				Nodes []struct {
					ID    githubv4.String `graphql:"id"`
					Name  githubv4.String
					Color githubv4.String
				}
			} `graphql:"labels(first: 100)"`
		}
	} `graphql:"removeLabelsFromLabelable(input: $input)"`
}

// RemoveLabelsFromLabelable detaches labels from the PR node, returning the
// remaining label set from the mutation response.
func (c *Client) RemoveLabelsFromLabelable(labelableID string, labelIDs []string) ([]Label, error) {
	c.log("RemoveLabelsFromLabelable", labelableID, labelIDs)
	ids := make([]githubv4.ID, 0, len(labelIDs))
	for _, id := range labelIDs {
		ids = append(ids, githubv4.ID(id))
	}
	input := githubv4.RemoveLabelsFromLabelableInput{
		LabelableID: githubv4.ID(labelableID),
		LabelIDs:    ids,
	}
	var m removeLabelsMutation
	if err := c.gqlc.Mutate(c.ctx, &m, input, nil); err != nil {
		return nil, fmt.Errorf("removing labels from %s: %w", labelableID, err)
	}
	c.recordGraphQLCost(1)
	return labelNodesToLabels(m.RemoveLabelsFromLabelable.Labelable.Labels.Nodes), nil
}

type enableAutoMergeMutation struct {
	EnablePullRequestAutoMerge struct {
		PullRequest struct {
			Number githubv4.Int
		}
	} `graphql:"enablePullRequestAutoMerge(input: $input)"`
}

// EnablePullRequestAutoMerge turns on GitHub's auto-merge for the PR node.
// GitHub rejects the mutation when the repository has auto-merge disabled;
// callers treat that as a plain error.
func (c *Client) EnablePullRequestAutoMerge(pullRequestID string) error {
	c.log("EnablePullRequestAutoMerge", pullRequestID)
	input := githubv4.EnablePullRequestAutoMergeInput{
		PullRequestID: githubv4.ID(pullRequestID),
	}
	var m enableAutoMergeMutation
	if err := c.gqlc.Mutate(c.ctx, &m, input, nil); err != nil {
		return fmt.Errorf("enabling auto-merge on %s: %w", pullRequestID, err)
	}
	c.recordGraphQLCost(1)
	return nil
}

func labelNodesToLabels(nodes []struct {
	ID    githubv4.String `graphql:"id"`
	Name  githubv4.String
	Color githubv4.String
}) []Label {
	labels := make([]Label, 0, len(nodes))
	for _, node := range nodes {
		labels = append(labels, Label{
			NodeID: string(node.ID),
			Name:   string(node.Name),
			Color:  string(node.Color),
		})
	}
	return labels
}

func (c *Client) recordGraphQLCost(cost int) {
	if c.observer == nil {
		return
	}
	if cost < 1 {
		cost = 1
	}
	c.observer.RecordGraphQLCost(cost)
}
