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
	"reflect"
	"testing"
)

func TestParseLinks(t *testing.T) {
	var testcases = []struct {
		name   string
		header string
		links  map[string]string
	}{
		{
			name:   "empty header",
			header: "",
			links:  map[string]string{},
		},
		{
			name:   "single next link",
			header: `<https://api.github.com/repositories/1/issues?page=2>; rel="next"`,
			links:  map[string]string{"next": "https://api.github.com/repositories/1/issues?page=2"},
		},
		{
			name:   "next and last",
			header: `<https://api.github.com/repositories/1/issues?page=2>; rel="next", <https://api.github.com/repositories/1/issues?page=7>; rel="last"`,
			links: map[string]string{
				"next": "https://api.github.com/repositories/1/issues?page=2",
				"last": "https://api.github.com/repositories/1/issues?page=7",
			},
		},
		{
			name:   "uppercase rel parameter",
			header: `<https://example.com/page/3>; REL="next"`,
			links:  map[string]string{"next": "https://example.com/page/3"},
		},
		{
			name:   "url without rel is dropped",
			header: `<https://example.com/page/3>`,
			links:  map[string]string{},
		},
		{
			name:   "rel without url is dropped",
			header: `rel="next"`,
			links:  map[string]string{},
		},
	}
	for _, tc := range testcases {
		got := parseLinks(tc.header)
		if !reflect.DeepEqual(got, tc.links) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.links, got)
		}
	}
}
