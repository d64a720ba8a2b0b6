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

package checks

import (
	"regexp"
	"strings"

	"github.com/myk-org/github-webhook-server-sub001/pkg/secretutil"
)

// maxOutputLength is GitHub's limit on the check-run output text field.
const maxOutputLength = 65534

// truncationMarker replaces the cut middle of an over-long output.
const truncationMarker = "…[TRUNCATED]…"

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes terminal color and cursor control sequences.
func StripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// BuildOutput renders subprocess output as check-run detail text: ANSI
// stripped, censored, truncated to the API limit keeping head and tail.
// Stderr goes first so the usual failure cause survives truncation.
func BuildOutput(censorer secretutil.Censorer, stdout, stderr string) string {
	stdout = censorString(censorer, StripANSI(stdout))
	stderr = censorString(censorer, StripANSI(stderr))

	var b strings.Builder
	if stderr != "" {
		b.WriteString(stderr)
		if !strings.HasSuffix(stderr, "\n") {
			b.WriteString("\n")
		}
	}
	budget := maxOutputLength - b.Len()
	if budget <= 0 {
		return headTail(b.String(), maxOutputLength)
	}
	if len(stdout) > budget {
		stdout = headTail(stdout, budget)
	}
	b.WriteString(stdout)
	return b.String()
}

func censorString(censorer secretutil.Censorer, s string) string {
	if censorer == nil || s == "" {
		return s
	}
	b := []byte(s)
	censorer.Censor(&b)
	return string(b)
}

// headTail keeps the first and last parts of s within budget bytes, joined
// by the truncation marker. Slice edges are cleaned so a cut never leaves a
// broken UTF-8 sequence for the API to reject.
func headTail(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	marker := "\n" + truncationMarker + "\n"
	keep := budget - len(marker)
	if keep <= 0 {
		return strings.ToValidUTF8(s[:budget], "")
	}
	head := keep / 2
	tail := keep - head
	return strings.ToValidUTF8(s[:head], "") + marker + strings.ToValidUTF8(s[len(s)-tail:], "")
}
