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

// Package hook receives GitHub webhook deliveries, admits and validates
// them, and runs the matching workflow synchronously so that the HTTP
// response and the audit record carry the real outcome.
package hook

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/myk-org/github-webhook-server-sub001/pkg/config"
	"github.com/myk-org/github-webhook-server-sub001/pkg/delivery"
	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
	"github.com/myk-org/github-webhook-server-sub001/pkg/githubapp"
	"github.com/myk-org/github-webhook-server-sub001/pkg/secretutil"
	"github.com/myk-org/github-webhook-server-sub001/pkg/testoracle"
	"github.com/myk-org/github-webhook-server-sub001/pkg/workspace"
)

// defaultMaxWorkers bounds concurrent deliveries when max-workers is unset.
const defaultMaxWorkers = 10

// Server implements http.Handler for the webhook endpoint. One delivery is
// processed per request, end to end, before the response is written.
type Server struct {
	Logger        *logrus.Entry
	Config        *config.Config
	WebhookSecret func() []byte
	TokenPool     *github.TokenPool
	AppClient     *githubapp.Client
	Audit         *delivery.AuditWriter
	Censorer      *secretutil.ReloadingCensorer
	CommandRunner workspace.CommandRunner
	Oracle        *testoracle.Client
	Tracker       *testoracle.Tracker
	IPGate        *IPGate
	Metrics       *Metrics
	APIBase       string
	DataDir       string

	// BaseCtx outlives individual requests: processing continues when the
	// sender gives up on the connection, and shutdown cancels it. A nil
	// BaseCtx falls back to context.Background.
	BaseCtx context.Context

	semOnce sync.Once
	sem     chan struct{}
	// Tracks running deliveries for graceful shutdown.
	wg sync.WaitGroup
}

// response is the JSON body of every post-validation reply.
type response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ServeHTTP admits, validates and processes one webhook delivery.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.IPGate.Allows(r.RemoteAddr, r.Header.Get("X-Forwarded-For")) {
		s.countAdmission("source_ip")
		http.Error(w, "403 Forbidden: source address not in an allowed range", http.StatusForbidden)
		return
	}
	wr, ok := github.ValidateWebhook(w, r, s.WebhookSecret)
	if !ok {
		return
	}
	eventType := wr.EventType
	if counter, err := s.Metrics.WebhookCounter.GetMetricWithLabelValues(eventType); err != nil {
		s.Logger.WithError(err).Warn("Failed to get metric for eventType " + eventType)
	} else {
		counter.Inc()
	}
	logger := s.Logger.WithFields(logrus.Fields{
		"event-type": eventType,
		"hook_id":    wr.GUID,
	})

	if eventType == "ping" {
		s.respond(w, http.StatusOK, "ok", "pong")
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	s.acquire()
	defer s.release()

	start := time.Now()
	dc := delivery.NewContext(wr.GUID, eventType)
	err := s.process(logger, dc, eventType, wr.Payload)

	summary := "webhook processed successfully"
	if err != nil {
		summary = s.censor(err.Error())
	}
	dc.Finish(err == nil, err, summary)
	if auditErr := s.Audit.Write(dc.Record()); auditErr != nil {
		logger.WithError(auditErr).Error("Could not write audit record.")
	}
	if histogram, histErr := s.Metrics.DurationHistogram.GetMetricWithLabelValues(eventType); histErr == nil {
		histogram.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		logger.WithError(err).Error("Delivery failed.")
		if counter, cErr := s.Metrics.FailureCounter.GetMetricWithLabelValues(eventType); cErr == nil {
			counter.Inc()
		}
		s.respond(w, http.StatusInternalServerError, "error", summary)
		return
	}
	s.respond(w, http.StatusOK, "ok", summary)
}

func (s *Server) respond(w http.ResponseWriter, code int, status, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(response{Status: status, Message: message}); err != nil {
		s.Logger.WithError(err).Debug("Could not write response body.")
	}
}

func (s *Server) censor(message string) string {
	if s.Censorer == nil {
		return message
	}
	return s.Censorer.CensorString(message)
}

func (s *Server) countAdmission(reason string) {
	if counter, err := s.Metrics.AdmissionCounter.GetMetricWithLabelValues(reason); err == nil {
		counter.Inc()
	}
}

func (s *Server) acquire() {
	s.semOnce.Do(func() {
		workers := defaultMaxWorkers
		if s.Config != nil && s.Config.MaxWorkers > 0 {
			workers = s.Config.MaxWorkers
		}
		s.sem = make(chan struct{}, workers)
	})
	s.sem <- struct{}{}
}

func (s *Server) release() {
	<-s.sem
}

func (s *Server) baseContext() context.Context {
	if s.BaseCtx != nil {
		return s.BaseCtx
	}
	return context.Background()
}

// GracefulShutdown waits for in-flight deliveries and background oracle
// notifications to finish.
func (s *Server) GracefulShutdown() {
	s.wg.Wait()
	if s.Tracker != nil {
		s.Tracker.Drain()
	}
}
