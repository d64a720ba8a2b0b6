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

// Package secretutil implements utilities to operate on secret data.
package secretutil

import (
	"encoding/base64"
	"strings"
	"sync"

	"go4.org/bytereplacer"
)

// Censorer knows how to replace sensitive data from input.
type Censorer interface {
	// Censor will remove sensitive data previously registered with the Censorer
	// from the input. This is thread-safe, will mutate the input and will never
	// change the overall size of the input.
	Censor(input *[]byte)
}

func NewCensorer() *ReloadingCensorer {
	return &ReloadingCensorer{
		RWMutex:  &sync.RWMutex{},
		Replacer: bytereplacer.New(),
	}
}

// ReloadingCensorer censors the set of secrets most recently passed to
// Refresh. Webhook secrets, API tokens and registry passwords rotate at
// runtime, so every consumer holds the censorer and the secret agent
// refreshes it.
type ReloadingCensorer struct {
	*sync.RWMutex
	*bytereplacer.Replacer
}

var _ Censorer = &ReloadingCensorer{}

// Censor will remove sensitive data previously registered with the Censorer
// from the input. Replacements are the same size as what they replace, so
// the replacer never allocates and the input size never changes.
func (c *ReloadingCensorer) Censor(input *[]byte) {
	c.RLock()
	c.Replacer.Replace(*input)
	c.RUnlock()
}

// CensorString is a convenience wrapper for censoring string data that will
// end up in PR comments, issue titles and check-run output.
func (c *ReloadingCensorer) CensorString(input string) string {
	raw := []byte(input)
	c.Censor(&raw)
	return string(raw)
}

// RefreshBytes refreshes the set of secrets that we censor.
func (c *ReloadingCensorer) RefreshBytes(secrets ...[]byte) {
	var asStrings []string
	for _, secret := range secrets {
		asStrings = append(asStrings, string(secret))
	}
	c.Refresh(asStrings...)
}

// AdaptCensorer returns a func that censors a copy of the input, for
// callers that must not mutate the data they hold.
func AdaptCensorer(censorer Censorer) func(input []byte) []byte {
	return func(input []byte) []byte {
		output := make([]byte, len(input))
		copy(output, input)
		censorer.Censor(&output)
		return output
	}
}

// Refresh refreshes the set of secrets that we censor. Both the plaintext
// representation of each secret and its base64 encoding are censored, as
// tokens commonly appear re-encoded in captured subprocess output.
func (c *ReloadingCensorer) Refresh(secrets ...string) {
	var replacements []string
	addReplacement := func(s string) {
		replacements = append(replacements, s, strings.Repeat(`*`, len(s)))
	}
	for _, secret := range secrets {
		if trimmed := strings.TrimSpace(secret); trimmed != secret {
			secret = trimmed
		}
		if secret == "" {
			continue
		}
		addReplacement(secret)
		encoded := base64.StdEncoding.EncodeToString([]byte(secret))
		addReplacement(encoded)
	}
	c.Lock()
	c.Replacer = bytereplacer.New(replacements...)
	c.Unlock()
}
