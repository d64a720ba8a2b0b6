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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// PayloadSignature computes the X-Hub-Signature-256 value GitHub would send
// for payload: the hex HMAC-SHA256 digest under key, prefixed with "sha256=".
func PayloadSignature(payload []byte, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ValidatePayload reports whether sig is the correct HMAC-SHA256 signature
// for payload under key. Only the sha256 scheme is accepted; the legacy
// sha1 header never validates.
func ValidatePayload(payload []byte, sig string, key []byte) bool {
	if !strings.HasPrefix(sig, "sha256=") {
		return false
	}
	want := PayloadSignature(payload, key)
	return hmac.Equal([]byte(sig), []byte(want))
}
