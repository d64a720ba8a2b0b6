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
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

// WebhookRequest is one admitted delivery as it came off the wire.
type WebhookRequest struct {
	EventType string
	GUID      string
	Payload   []byte
}

// reject writes the admission failure to the client and logs it. The
// response line carries the reason so hook misconfigurations are visible
// in GitHub's delivery log.
func reject(w http.ResponseWriter, code int, reason string) {
	msg := fmt.Sprintf("%d %s: %s", code, http.StatusText(code), reason)
	logrus.Debug(msg)
	http.Error(w, msg, code)
}

// ValidateWebhook admits or rejects one incoming delivery: POST only, the
// GitHub event and delivery headers present, JSON content type, and, when
// tokenGenerator yields a secret, a matching X-Hub-Signature-256 over the
// raw body. Rejections are written to w; the second return is false and
// the caller must not touch the response again. Load-balancer GET probes
// get a bare 200. A nil tokenGenerator or empty secret skips signature
// validation.
func ValidateWebhook(w http.ResponseWriter, r *http.Request, tokenGenerator func() []byte) (WebhookRequest, bool) {
	defer r.Body.Close()

	none := WebhookRequest{}
	if r.Method == http.MethodGet {
		return none, false
	}
	if r.Method != http.MethodPost {
		reject(w, http.StatusMethodNotAllowed, "only POST deliveries are accepted")
		return none, false
	}

	wr := WebhookRequest{
		EventType: r.Header.Get("X-GitHub-Event"),
		GUID:      r.Header.Get("X-GitHub-Delivery"),
	}
	if wr.EventType == "" {
		reject(w, http.StatusBadRequest, "missing the X-GitHub-Event header")
		return none, false
	}
	if wr.GUID == "" {
		reject(w, http.StatusBadRequest, "missing the X-GitHub-Delivery header")
		return none, false
	}
	if ct := r.Header.Get("content-type"); ct != "application/json" {
		reject(w, http.StatusBadRequest, "deliveries must use content-type: application/json, reconfigure this hook on GitHub")
		return none, false
	}

	var err error
	wr.Payload, err = io.ReadAll(r.Body)
	if err != nil {
		reject(w, http.StatusInternalServerError, "could not read the request body")
		return none, false
	}

	var secret []byte
	if tokenGenerator != nil {
		secret = tokenGenerator()
	}
	if len(secret) == 0 {
		// No secret configured, accept the payload as-is.
		return wr, true
	}
	sig := r.Header.Get("X-Hub-Signature-256")
	if sig == "" {
		reject(w, http.StatusForbidden, "missing the X-Hub-Signature-256 header")
		return none, false
	}
	if !ValidatePayload(wr.Payload, sig, secret) {
		reject(w, http.StatusForbidden, "the X-Hub-Signature-256 header does not match the payload")
		return none, false
	}
	return wr, true
}
