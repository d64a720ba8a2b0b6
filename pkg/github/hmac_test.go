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
	"testing"
)

// echo -n 'BODY' | openssl dgst -sha256 -hmac KEY
func TestValidatePayload(t *testing.T) {
	var testcases = []struct {
		name    string
		payload string
		sig     string
		key     string
		valid   bool
	}{
		{
			"empty payload with a correct signature passes",
			"{}",
			"sha256=19092633e5aa9a849dfcc9d2df4e76db2df1fcba7f38915f2c7833bd8a510f2f",
			"abc",
			true,
		},
		{
			"signature without the sha256= prefix is rejected",
			"{}",
			"19092633e5aa9a849dfcc9d2df4e76db2df1fcba7f38915f2c7833bd8a510f2f",
			"abc",
			false,
		},
		{
			"sha1 prefixed signature is rejected",
			"{}",
			"sha1=19092633e5aa9a849dfcc9d2df4e76db2df1fcba7f38915f2c7833bd8a510f2f",
			"abc",
			false,
		},
		{
			"empty signature is rejected",
			"{}",
			"",
			"abc",
			false,
		},
		{
			"non-hex signature is rejected",
			"{}",
			"sha256=this is not hex",
			"abc",
			false,
		},
		{
			"signature for a different key is rejected",
			"{}",
			"sha256=32df24e34f0e9ecb137fa4320ab0d50bcc30843d88000f1360748b6144b4e8e5",
			"abc",
			false,
		},
		{
			"signature for a different payload is rejected",
			"{}",
			"sha256=db1c3d2b7a04e29531f588c63aad1b4dab35e1b18f43cce5067e2c0059b447fe",
			"abc",
			false,
		},
		{
			"non-trivial payload with a correct signature passes",
			`{"action": "opened"}`,
			"sha256=db1c3d2b7a04e29531f588c63aad1b4dab35e1b18f43cce5067e2c0059b447fe",
			"abc",
			true,
		},
	}
	for _, tc := range testcases {
		res := ValidatePayload([]byte(tc.payload), tc.sig, []byte(tc.key))
		if res != tc.valid {
			t.Errorf("%s: expected valid=%t, got %t", tc.name, tc.valid, res)
		}
	}
}

func TestPayloadSignatureRoundTrip(t *testing.T) {
	payloads := []string{"{}", `{"action": "opened"}`, ""}
	for _, payload := range payloads {
		sig := PayloadSignature([]byte(payload), []byte("topsecret"))
		if !ValidatePayload([]byte(payload), sig, []byte("topsecret")) {
			t.Errorf("Signature %q generated for payload %q did not validate", sig, payload)
		}
		if ValidatePayload([]byte(payload), sig, []byte("wrongkey")) {
			t.Errorf("Signature %q for payload %q validated with the wrong key", sig, payload)
		}
	}
}
