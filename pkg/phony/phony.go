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

// Package phony sends fake webhook deliveries for manual testing of a
// running server.
package phony

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/myk-org/github-webhook-server-sub001/pkg/github"
)

// SendHook posts payload to address as a webhook delivery of the given
// event type, signed with key the way GitHub signs deliveries. deliveryID
// becomes the X-GitHub-Delivery GUID, so the caller can find the delivery
// in the server's audit log. The server's response body is returned either
// way so rejections stay diagnosable.
func SendHook(address, eventType, deliveryID string, payload, key []byte) (string, error) {
	req, err := http.NewRequest(http.MethodPost, address, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", deliveryID)
	req.Header.Set("X-Hub-Signature-256", github.PayloadSignature(payload, key))

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	answer := string(bytes.TrimSpace(body))
	if resp.StatusCode != http.StatusOK {
		return answer, fmt.Errorf("server rejected the delivery with status %d: %s", resp.StatusCode, answer)
	}
	return answer, nil
}
