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

package referral

import (
	"context"
	"fmt"
	"sort"

	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/store"

	"go.uber.org/zap"
)

// MergeProfile folds a profile received from the remote into the local graph.
// Invite codes are never reassigned and an inviter is only filled in when the
// local profile has none. Reports whether anything changed.
func (s *Service) MergeProfile(ctx context.Context, remote models.UserProfile) (bool, error) {
	if remote.Username == "" {
		return false, ErrEmptyUsername
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.profiles(ctx)
	if err != nil {
		return false, err
	}
	codes, err := s.codeMap(ctx)
	if err != nil {
		return false, err
	}

	local, exists := profiles[remote.Username]
	merged := local
	changed := false

	if !exists {
		merged = remote
		changed = true
	} else if remote.UpdatedAt.After(local.UpdatedAt) {
		merged.UpdatedAt = remote.UpdatedAt
		changed = true
	}

	if merged.InviteCode == "" && remote.InviteCode != "" {
		merged.InviteCode = remote.InviteCode
		changed = true
	}
	if exists && local.InviteCode != "" {
		merged.InviteCode = local.InviteCode
	}

	newInviter := ""
	if local.InviterCode == "" && remote.InviterCode != "" && remote.InviterCode != merged.InviteCode &&
		!createsCycle(profiles, codes, remote.Username, codes[remote.InviterCode]) {
		merged.InviterCode = remote.InviterCode
		newInviter = remote.InviterCode
		changed = true
	} else {
		merged.InviterCode = local.InviterCode
	}

	if !changed {
		return false, nil
	}

	if merged.InviteCode != "" {
		if owner, taken := codes[merged.InviteCode]; !taken || owner == merged.Username {
			err = store.UpdateJSON(ctx, s.kv, KeyInviteCodeToUser, func(m *map[string]string) error {
				if *m == nil {
					*m = map[string]string{}
				}
				(*m)[merged.InviteCode] = merged.Username
				return nil
			})
			if err != nil {
				return false, fmt.Errorf("failed to register invite code: %w", err)
			}
		} else {
			zap.L().Warn("Remote invite code already owned locally",
				zap.String("username", merged.Username),
				zap.String("invite_code", merged.InviteCode),
				zap.String("local_owner", owner))
		}
	}

	err = store.UpdateJSON(ctx, s.kv, KeyUserProfiles, func(m *map[string]models.UserProfile) error {
		if *m == nil {
			*m = map[string]models.UserProfile{}
		}
		(*m)[merged.Username] = merged
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to save profile: %w", err)
	}

	if newInviter != "" {
		err = store.UpdateJSON(ctx, s.kv, KeyInvitationRelations, func(m *map[string][]string) error {
			if *m == nil {
				*m = map[string][]string{}
			}
			(*m)[newInviter] = appendUnique((*m)[newInviter], merged.Username)
			return nil
		})
		if err != nil {
			return false, fmt.Errorf("failed to save invitation relation: %w", err)
		}
	}

	return true, nil
}

func sortProfiles(profiles []models.UserProfile) {
	sort.Slice(profiles, func(i, j int) bool {
		if !profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) {
			return profiles[i].CreatedAt.Before(profiles[j].CreatedAt)
		}
		return profiles[i].Username < profiles[j].Username
	})
}
