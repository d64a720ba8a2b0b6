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

package labels

import (
	"reflect"
	"testing"
)

func TestColorFor(t *testing.T) {
	var testcases = []struct {
		name  string
		color string
	}{
		{Verified, "0e8a16"},
		{"VERIFIED", "0e8a16"},
		{Hold, "b60205"},
		{SizePrefix + "xl", "d93f0b"},
		{LGTMByPrefix + "alice", "dced6f"},
		{ApprovedByPrefix + "bob", "0e8a16"},
		{BranchPrefix + "main", "1d76db"},
		{CherryPickPrefix + "release-1.2", "f09c74"},
		{"something-else", defaultColor},
	}
	for _, tc := range testcases {
		if got := ColorFor(tc.name); got != tc.color {
			t.Errorf("ColorFor(%q): expected %q, got %q", tc.name, tc.color, got)
		}
	}
}

func TestUserFromReviewLabel(t *testing.T) {
	var testcases = []struct {
		label  string
		prefix string
		user   string
		ok     bool
	}{
		{LGTMByPrefix + "alice", LGTMByPrefix, "alice", true},
		{"LGTM-BY-Alice", LGTMByPrefix, "alice", true},
		{ApprovedByPrefix + "bob", ApprovedByPrefix, "bob", true},
		{ChangesRequestedByPrefix + "carol", ChangesRequestedByPrefix, "carol", true},
		{CommentedByPrefix + "dave", CommentedByPrefix, "dave", true},
		{LGTMByPrefix, "", "", false},
		{Verified, "", "", false},
		{SizePrefix + "xl", "", "", false},
	}
	for _, tc := range testcases {
		prefix, user, ok := UserFromReviewLabel(tc.label)
		if prefix != tc.prefix || user != tc.user || ok != tc.ok {
			t.Errorf("UserFromReviewLabel(%q): expected (%q, %q, %t), got (%q, %q, %t)",
				tc.label, tc.prefix, tc.user, tc.ok, prefix, user, ok)
		}
	}
}

func TestUsersWithPrefix(t *testing.T) {
	labels := []string{
		LGTMByPrefix + "alice",
		"LGTM-BY-ALICE",
		LGTMByPrefix + "bob",
		ApprovedByPrefix + "carol",
		Verified,
	}
	users := UsersWithPrefix(LGTMByPrefix, labels)
	if !reflect.DeepEqual(users, []string{"alice", "bob"}) {
		t.Errorf("Expected [alice bob], got %v", users)
	}
	if users := UsersWithPrefix(ApprovedByPrefix, labels); !reflect.DeepEqual(users, []string{"carol"}) {
		t.Errorf("Expected [carol], got %v", users)
	}
	if users := UsersWithPrefix(ChangesRequestedByPrefix, labels); users != nil {
		t.Errorf("Expected no users, got %v", users)
	}
}
