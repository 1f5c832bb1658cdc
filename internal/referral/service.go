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
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/store"

	"go.uber.org/zap"
)

const (
	KeyUserProfiles        = "USER_PROFILES"
	KeyInviteCodeToUser    = "INVITE_CODE_TO_USER"
	KeyInvitationRelations = "INVITATION_RELATIONS"

	// MaxCodeAttempts bounds invite code generation before a collision is accepted
	MaxCodeAttempts = 10

	// ChainDepth is the number of ancestor levels that earn commission
	ChainDepth = 3
)

var (
	ErrEmptyUsername     = errors.New("username cannot be empty")
	ErrProfileNotFound   = errors.New("user profile not found")
	ErrInviterAlreadySet = errors.New("inviter already set")
	ErrReferralCycle     = errors.New("inviter would create a referral cycle")
)

// AncestorChain holds the invite codes of up to three ancestors, nearest first.
// Missing hops are empty strings.
type AncestorChain [ChainDepth]string

// Service stores user profiles, invite codes and invitation relations
type Service struct {
	kv      store.KeyValueStore
	mu      sync.Mutex
	newCode func(username string) string
	now     func() time.Time
}

func NewService(kv store.KeyValueStore) *Service {
	return &Service{
		kv:      kv,
		newCode: randomInviteCode,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// randomInviteCode returns "<username>-NNN" with NNN in 100..999
func randomInviteCode(username string) string {
	return fmt.Sprintf("%s-%d", username, 100+rand.IntN(900))
}

func (s *Service) profiles(ctx context.Context) (map[string]models.UserProfile, error) {
	profiles := map[string]models.UserProfile{}
	if _, err := store.GetJSON(ctx, s.kv, KeyUserProfiles, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (s *Service) codeMap(ctx context.Context) (map[string]string, error) {
	codes := map[string]string{}
	if _, err := store.GetJSON(ctx, s.kv, KeyInviteCodeToUser, &codes); err != nil {
		return nil, err
	}
	return codes, nil
}

func (s *Service) relations(ctx context.Context) (map[string][]string, error) {
	relations := map[string][]string{}
	if _, err := store.GetJSON(ctx, s.kv, KeyInvitationRelations, &relations); err != nil {
		return nil, err
	}
	return relations, nil
}

// EnsureProfile returns the profile of username, creating it with a fresh invite code when absent
func (s *Service) EnsureProfile(ctx context.Context, username string) (*models.UserProfile, error) {
	if username == "" {
		return nil, ErrEmptyUsername
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	profiles, err := s.profiles(ctx)
	if err != nil {
		return nil, err
	}
	if p, ok := profiles[username]; ok && p.InviteCode != "" {
		return &p, nil
	}

	codes, err := s.codeMap(ctx)
	if err != nil {
		return nil, err
	}

	code := s.newCode(username)
	for attempt := 1; attempt < MaxCodeAttempts; attempt++ {
		if _, taken := codes[code]; !taken {
			break
		}
		code = s.newCode(username)
	}
	if owner, taken := codes[code]; taken && owner != username {
		zap.L().Warn("Invite code collision accepted after max attempts",
			zap.String("username", username),
			zap.String("invite_code", code),
			zap.String("existing_owner", owner),
			zap.Int("attempts", MaxCodeAttempts))
	}

	now := s.now()
	profile := profiles[username]
	profile.Username = username
	profile.InviteCode = code
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	// The code map is written first so a profile never points at an unresolvable code.
	err = store.UpdateJSON(ctx, s.kv, KeyInviteCodeToUser, func(m *map[string]string) error {
		if *m == nil {
			*m = map[string]string{}
		}
		(*m)[code] = username
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register invite code: %w", err)
	}

	err = store.UpdateJSON(ctx, s.kv, KeyUserProfiles, func(m *map[string]models.UserProfile) error {
		if *m == nil {
			*m = map[string]models.UserProfile{}
		}
		(*m)[username] = profile
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}

	zap.L().Info("User profile created",
		zap.String("username", username),
		zap.String("invite_code", code))

	return &profile, nil
}

func (s *Service) GetProfile(ctx context.Context, username string) (*models.UserProfile, error) {
	profiles, err := s.profiles(ctx)
	if err != nil {
		return nil, err
	}
	p, ok := profiles[username]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, username)
	}
	return &p, nil
}

// ListProfiles returns all profiles ordered by creation time
func (s *Service) ListProfiles(ctx context.Context) ([]models.UserProfile, error) {
	profiles, err := s.profiles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserProfile, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p)
	}
	sortProfiles(out)
	return out, nil
}

// ResolveInviteCode returns the username owning code, or "" when unknown
func (s *Service) ResolveInviteCode(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", nil
	}
	codes, err := s.codeMap(ctx)
	if err != nil {
		return "", err
	}
	return codes[code], nil
}

// SetInviter links username to the owner of inviterCode and returns the inviter's username.
// An unknown code (or the user's own code) links nothing and returns "".
func (s *Service) SetInviter(ctx context.Context, username, inviterCode string) (string, error) {
	if username == "" {
		return "", ErrEmptyUsername
	}
	if inviterCode == "" {
		return "", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	codes, err := s.codeMap(ctx)
	if err != nil {
		return "", err
	}
	inviter, ok := codes[inviterCode]
	if !ok || inviter == username {
		zap.L().Info("Invite code did not resolve to another user",
			zap.String("username", username),
			zap.String("invite_code", inviterCode))
		return "", nil
	}

	profiles, err := s.profiles(ctx)
	if err != nil {
		return "", err
	}
	profile := profiles[username]
	if profile.InviterCode == inviterCode {
		return inviter, nil
	}
	if profile.InviterCode != "" {
		return "", fmt.Errorf("%w: %s already invited by %s", ErrInviterAlreadySet, username, profile.InviterCode)
	}

	if createsCycle(profiles, codes, username, inviter) {
		return "", fmt.Errorf("%w: %s -> %s", ErrReferralCycle, username, inviter)
	}

	now := s.now()
	profile.Username = username
	profile.InviterCode = inviterCode
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	err = store.UpdateJSON(ctx, s.kv, KeyUserProfiles, func(m *map[string]models.UserProfile) error {
		if *m == nil {
			*m = map[string]models.UserProfile{}
		}
		(*m)[username] = profile
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to save profile: %w", err)
	}

	err = store.UpdateJSON(ctx, s.kv, KeyInvitationRelations, func(m *map[string][]string) error {
		if *m == nil {
			*m = map[string][]string{}
		}
		(*m)[inviterCode] = appendUnique((*m)[inviterCode], username)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to save invitation relation: %w", err)
	}

	zap.L().Info("Inviter recorded",
		zap.String("username", username),
		zap.String("inviter", inviter),
		zap.String("invite_code", inviterCode))

	return inviter, nil
}

// GetAncestorChain walks inviter codes up to three hops from username
func (s *Service) GetAncestorChain(ctx context.Context, username string) (AncestorChain, error) {
	var chain AncestorChain

	profiles, err := s.profiles(ctx)
	if err != nil {
		return chain, err
	}
	codes, err := s.codeMap(ctx)
	if err != nil {
		return chain, err
	}

	current := username
	for level := 0; level < ChainDepth; level++ {
		p, ok := profiles[current]
		if !ok || p.InviterCode == "" {
			break
		}
		chain[level] = p.InviterCode
		current, ok = codes[p.InviterCode]
		if !ok {
			break
		}
	}
	return chain, nil
}

// Children returns the usernames directly invited with code, in join order
func (s *Service) Children(ctx context.Context, code string) ([]string, error) {
	relations, err := s.relations(ctx)
	if err != nil {
		return nil, err
	}
	return relations[code], nil
}

// Downline returns the members of the first three levels below username
func (s *Service) Downline(ctx context.Context, username string) ([ChainDepth][]string, error) {
	var levels [ChainDepth][]string

	profiles, err := s.profiles(ctx)
	if err != nil {
		return levels, err
	}
	relations, err := s.relations(ctx)
	if err != nil {
		return levels, err
	}

	parents := []string{username}
	for level := 0; level < ChainDepth; level++ {
		var next []string
		for _, parent := range parents {
			code := profiles[parent].InviteCode
			if code == "" {
				continue
			}
			next = append(next, relations[code]...)
		}
		levels[level] = next
		parents = next
	}
	return levels, nil
}

// createsCycle walks the inviter's upline; meeting username there means a loop
func createsCycle(profiles map[string]models.UserProfile, codes map[string]string, username, inviter string) bool {
	current := inviter
	for seen := 0; current != "" && seen <= len(profiles); seen++ {
		if current == username {
			return true
		}
		current = codes[profiles[current].InviterCode]
	}
	return false
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
