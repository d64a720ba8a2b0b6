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

package hook

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Define all metrics for webhook deliveries here.
	webhookCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_server_webhooks_total",
		Help: "A counter of the validated webhooks received, by event type.",
	}, []string{"event_type"})
	failureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_server_delivery_failures_total",
		Help: "A counter of the deliveries that finished with an error, by event type.",
	}, []string{"event_type"})
	admissionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_server_admission_denials_total",
		Help: "A counter of the requests rejected before payload validation, by reason.",
	}, []string{"reason"})
	durationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_server_delivery_duration_seconds",
		Help:    "Time to fully process one webhook delivery, by event type.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(webhookCounter)
	prometheus.MustRegister(failureCounter)
	prometheus.MustRegister(admissionCounter)
	prometheus.MustRegister(durationHistogram)
}

// Metrics bundles the delivery metrics the server records.
type Metrics struct {
	WebhookCounter    *prometheus.CounterVec
	FailureCounter    *prometheus.CounterVec
	AdmissionCounter  *prometheus.CounterVec
	DurationHistogram *prometheus.HistogramVec
}

// NewMetrics returns the process-wide delivery metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		WebhookCounter:    webhookCounter,
		FailureCounter:    failureCounter,
		AdmissionCounter:  admissionCounter,
		DurationHistogram: durationHistogram,
	}
}
