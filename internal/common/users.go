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
	"fmt"
	"sort"
	"strings"

	"trading-hall-sync-go/internal/models"

	"go.uber.org/zap"
)

// ProfileLister is the part of the trading service the report commands read users from
type ProfileLister interface {
	ListProfiles(ctx context.Context) ([]models.UserProfile, error)
}

// SelectProfiles resolves a comma-separated list of usernames or invite codes
// to profiles sorted by username. An empty selector selects everyone.
func SelectProfiles(ctx context.Context, users ProfileLister, selector string) ([]models.UserProfile, error) {
	all, err := users.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })

	wanted := splitSelector(selector)
	if len(wanted) == 0 {
		zap.L().Debug("Selected all users", zap.Int("count", len(all)))
		return all, nil
	}

	seen := make(map[string]bool, len(wanted))
	var selected []models.UserProfile
	for _, p := range all {
		matched := false
		for _, w := range wanted {
			if p.Username == w || strings.EqualFold(p.InviteCode, w) {
				seen[w] = true
				matched = true
			}
		}
		if matched {
			selected = append(selected, p)
		}
	}

	var missing []string
	for _, w := range wanted {
		if !seen[w] {
			missing = append(missing, w)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown user(s): %s", strings.Join(missing, ", "))
	}

	zap.L().Debug("Selected users",
		zap.Strings("selector", wanted),
		zap.Int("count", len(selected)))
	return selected, nil
}

func splitSelector(selector string) []string {
	var out []string
	for _, part := range strings.Split(selector, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
