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

// Package delivery tracks the lifecycle of one inbound webhook delivery: the
// ordered workflow steps it went through, the GitHub quota it spent and the
// final outcome. One Context is created per HTTP request, threaded through
// the whole handler tree and serialized to the audit log exactly once.
package delivery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const (
	// StatusStarted marks a workflow step that began but has not finished.
	StatusStarted = "started"
	// StatusCompleted marks a workflow step that finished successfully.
	StatusCompleted = "completed"
	// StatusFailed marks a workflow step that finished with an error.
	StatusFailed = "failed"
)

// ErrorRecord is the serialized form of an error inside an audit record.
type ErrorRecord struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Traceback string `json:"traceback,omitempty"`
}

// Step is one entry in the ordered workflow-step map. Data carries free-form
// key/value pairs the step chose to record; they are flattened into the
// step's JSON object next to the fixed fields.
type Step struct {
	Timestamp  time.Time
	Status     string
	DurationMS *int64
	Error      *ErrorRecord
	Data       map[string]interface{}
}

// MarshalJSON flattens Data into the step object alongside the fixed fields.
func (s *Step) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{}
	for k, v := range s.Data {
		out[k] = v
	}
	out["timestamp"] = s.Timestamp.UTC().Format(time.RFC3339)
	out["status"] = s.Status
	if s.DurationMS != nil {
		out["duration_ms"] = *s.DurationMS
	}
	if s.Error != nil {
		out["error"] = s.Error
	}
	return json.Marshal(out)
}

// Steps is an insertion-ordered map of workflow steps. encoding/json does not
// keep map order, so serialization walks the recorded order explicitly.
type Steps struct {
	order  []string
	byName map[string]*Step
}

// Get returns the named step, or nil if it was never recorded.
func (s *Steps) Get(name string) *Step {
	if s.byName == nil {
		return nil
	}
	return s.byName[name]
}

// Names returns the step names in the order they were started.
func (s *Steps) Names() []string {
	return append([]string(nil), s.order...)
}

func (s *Steps) upsert(name string) *Step {
	if s.byName == nil {
		s.byName = map[string]*Step{}
	}
	step, ok := s.byName[name]
	if !ok {
		step = &Step{}
		s.byName[name] = step
		s.order = append(s.order, name)
	}
	return step
}

// MarshalJSON writes the steps as one JSON object in insertion order.
func (s *Steps) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(s.byName[name])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// PRRef identifies the pull request a delivery operated on.
type PRRef struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

// Timing is the wall-clock span of a delivery.
type Timing struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMS  int64     `json:"duration_ms"`
}

// Record is the JSONL audit entry emitted when a delivery finishes.
type Record struct {
	HookID             string       `json:"hook_id"`
	EventType          string       `json:"event_type"`
	Action             string       `json:"action"`
	Sender             string       `json:"sender"`
	Repository         string       `json:"repository"`
	RepositoryFullName string       `json:"repository_full_name"`
	PR                 *PRRef       `json:"pr"`
	APIUser            string       `json:"api_user"`
	Timing             Timing       `json:"timing"`
	WorkflowSteps      *Steps       `json:"workflow_steps"`
	TokenSpend         int          `json:"token_spend"`
	GraphQLSpend       int          `json:"graphql_spend"`
	InitialRateLimit   int          `json:"initial_rate_limit"`
	FinalRateLimit     int          `json:"final_rate_limit"`
	Success            bool         `json:"success"`
	Error              *ErrorRecord `json:"error"`
	Summary            string       `json:"summary"`
}

// Context is the per-delivery accounting object. All mutators take the lock:
// the handler tree records steps and API spend from concurrent sub-tasks.
type Context struct {
	lock sync.Mutex

	hookID             string
	eventType          string
	action             string
	sender             string
	repository         string
	repositoryFullName string
	pr                 *PRRef
	apiUser            string

	startedAt   time.Time
	completedAt time.Time

	steps Steps

	tokenSpend       int
	graphqlSpend     int
	initialRateLimit int
	finalRateLimit   int

	success bool
	err     *ErrorRecord
	summary string
}

// NewContext starts tracking a delivery identified by the X-GitHub-Delivery
// GUID and event type.
func NewContext(hookID, eventType string) *Context {
	return &Context{
		hookID:    hookID,
		eventType: eventType,
		startedAt: time.Now().UTC(),
	}
}

// HookID returns the delivery GUID.
func (c *Context) HookID() string {
	return c.hookID
}

// EventType returns the X-GitHub-Event value of the delivery.
func (c *Context) EventType() string {
	return c.eventType
}

// SetAction records the event action field.
func (c *Context) SetAction(action string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.action = action
}

// SetSender records the sender login.
func (c *Context) SetSender(sender string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.sender = sender
}

// SetRepository records the repository the delivery belongs to from its
// org/name slug.
func (c *Context) SetRepository(name, fullName string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.repository = name
	c.repositoryFullName = fullName
}

// SetPullRequest records which PR the delivery operated on.
func (c *Context) SetPullRequest(number int, title, author string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.pr = &PRRef{Number: number, Title: title, Author: author}
}

// SetAPIUser records the login the spent token authenticates as.
func (c *Context) SetAPIUser(login string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.apiUser = login
}

// SetInitialRateLimit records the remaining core quota at delivery start.
func (c *Context) SetInitialRateLimit(remaining int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.initialRateLimit = remaining
}

// SetFinalRateLimit records the remaining core quota at delivery end.
func (c *Context) SetFinalRateLimit(remaining int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.finalRateLimit = remaining
}

// StartStep records the beginning of a named workflow step. Starting an
// already-known step resets its clock.
func (c *Context) StartStep(name string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	step := c.steps.upsert(name)
	step.Timestamp = time.Now().UTC()
	step.Status = StatusStarted
	step.DurationMS = nil
	step.Error = nil
}

// CompleteStep marks the named step completed and attaches the given
// free-form data. A step never started is created on the spot.
func (c *Context) CompleteStep(name string, data map[string]interface{}) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.finishStep(name, StatusCompleted, data, nil)
}

// FailStep marks the named step failed with the given error.
func (c *Context) FailStep(name string, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.finishStep(name, StatusFailed, nil, newErrorRecord(err))
}

func (c *Context) finishStep(name, status string, data map[string]interface{}, errRecord *ErrorRecord) {
	step := c.steps.upsert(name)
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now().UTC()
	}
	duration := time.Since(step.Timestamp).Milliseconds()
	step.Status = status
	step.DurationMS = &duration
	step.Error = errRecord
	if data != nil {
		if step.Data == nil {
			step.Data = map[string]interface{}{}
		}
		for k, v := range data {
			step.Data[k] = v
		}
	}
}

// RecordAPICall counts one REST request against the delivery's token spend.
// It implements the GitHub client's usage observer.
func (c *Context) RecordAPICall() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.tokenSpend++
}

// RecordGraphQLCost counts the reported point cost of a GraphQL call. The
// GraphQL quota is a separate pool from the REST one, so it is tracked apart
// from token spend.
func (c *Context) RecordGraphQLCost(cost int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.graphqlSpend += cost
}

// TokenSpend returns the REST quota consumed so far.
func (c *Context) TokenSpend() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.tokenSpend
}

// Finish closes the delivery with its overall outcome. It is called exactly
// once, right before the audit record is written.
func (c *Context) Finish(success bool, err error, summary string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.completedAt = time.Now().UTC()
	c.success = success
	c.err = newErrorRecord(err)
	c.summary = summary
}

// Record builds the audit entry for the delivery in its current state.
func (c *Context) Record() *Record {
	c.lock.Lock()
	defer c.lock.Unlock()
	completed := c.completedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}
	return &Record{
		HookID:             c.hookID,
		EventType:          c.eventType,
		Action:             c.action,
		Sender:             c.sender,
		Repository:         c.repository,
		RepositoryFullName: c.repositoryFullName,
		PR:                 c.pr,
		APIUser:            c.apiUser,
		Timing: Timing{
			StartedAt:   c.startedAt,
			CompletedAt: completed,
			DurationMS:  completed.Sub(c.startedAt).Milliseconds(),
		},
		WorkflowSteps:    &c.steps,
		TokenSpend:       c.tokenSpend,
		GraphQLSpend:     c.graphqlSpend,
		InitialRateLimit: c.initialRateLimit,
		FinalRateLimit:   c.finalRateLimit,
		Success:          c.success,
		Error:            c.err,
		Summary:          c.summary,
	}
}

func newErrorRecord(err error) *ErrorRecord {
	if err == nil {
		return nil
	}
	return &ErrorRecord{
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
}
