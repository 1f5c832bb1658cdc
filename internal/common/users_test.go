/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package common

import (
	"context"
	"errors"
	"strings"
	"testing"

	"trading-hall-sync-go/internal/models"
)

type staticProfiles struct {
	profiles []models.UserProfile
	err      error
}

func (s staticProfiles) ListProfiles(ctx context.Context) ([]models.UserProfile, error) {
	return append([]models.UserProfile(nil), s.profiles...), s.err
}

func testProfiles() staticProfiles {
	return staticProfiles{profiles: []models.UserProfile{
		{Username: "carol", InviteCode: "CCC333", InviterCode: "BBB222"},
		{Username: "alice", InviteCode: "AAA111"},
		{Username: "bob", InviteCode: "BBB222", InviterCode: "AAA111"},
	}}
}

func usernames(profiles []models.UserProfile) string {
	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, p.Username)
	}
	return strings.Join(names, ",")
}

func TestSelectProfiles(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		selector string
		want     string
	}{
		{"", "alice,bob,carol"},
		{"  ", "alice,bob,carol"},
		{"bob", "bob"},
		{"carol, alice", "alice,carol"},
		{"bbb222", "bob"},
		{"bob,BBB222", "bob"},
	}
	for _, tt := range tests {
		got, err := SelectProfiles(ctx, testProfiles(), tt.selector)
		if err != nil {
			t.Errorf("SelectProfiles(%q) failed: %v", tt.selector, err)
			continue
		}
		if usernames(got) != tt.want {
			t.Errorf("SelectProfiles(%q) = %s, want %s", tt.selector, usernames(got), tt.want)
		}
	}
}

func TestSelectProfiles_UnknownUser(t *testing.T) {
	_, err := SelectProfiles(context.Background(), testProfiles(), "alice,dave,erin")
	if err == nil {
		t.Fatal("Expected error for unknown users")
	}
	if !strings.Contains(err.Error(), "dave, erin") {
		t.Errorf("Expected missing users in error, got %v", err)
	}
}

func TestSelectProfiles_ListError(t *testing.T) {
	boom := errors.New("store closed")
	_, err := SelectProfiles(context.Background(), staticProfiles{err: boom}, "")
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped list error, got %v", err)
	}
}
