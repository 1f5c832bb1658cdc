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

package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/referral"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RegisterUser ensures username has a profile and, when inviterCode resolves, links the inviter.
// An unknown invite code still registers the user, just without an inviter.
func (s *TradingService) RegisterUser(ctx context.Context, username, inviterCode string) (*models.UserProfile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.svc.Referral.EnsureProfile(ctx, username); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	if code := strings.TrimSpace(inviterCode); code != "" {
		inviter, err := s.svc.Referral.SetInviter(ctx, username, code)
		if err != nil {
			return nil, err
		}
		if inviter == "" {
			zap.L().Warn("Registration invite code ignored",
				zap.String("username", username),
				zap.String("invite_code", code))
		}
	}

	profile, err := s.svc.Referral.GetProfile(ctx, username)
	if err != nil {
		return nil, err
	}

	s.enqueue(ctx, models.SyncPayload{
		Type:     models.SyncTypeUser,
		Username: username,
		Action:   "register",
		User:     profile,
	})
	return profile, nil
}

func (s *TradingService) GetProfile(ctx context.Context, username string) (*models.UserProfile, error) {
	profile, err := s.svc.Referral.GetProfile(ctx, username)
	if errors.Is(err, referral.ErrProfileNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, username)
	}
	return profile, err
}

func (s *TradingService) ListProfiles(ctx context.Context) ([]models.UserProfile, error) {
	return s.svc.Referral.ListProfiles(ctx)
}

// ComputeTeamHierarchy lists the three downline levels of username with the commission each level earned them
func (s *TradingService) ComputeTeamHierarchy(ctx context.Context, username string) (*models.TeamHierarchy, error) {
	profile, err := s.GetProfile(ctx, username)
	if err != nil {
		return nil, err
	}

	downline, err := s.svc.Referral.Downline(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to walk downline: %w", err)
	}
	totals, err := s.svc.Commissions.TotalsByLevel(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to total commissions: %w", err)
	}

	perLevel := [referral.ChainDepth]decimal.Decimal{totals.Level1, totals.Level2, totals.Level3}
	team := &models.TeamHierarchy{
		Username:   username,
		InviteCode: profile.InviteCode,
		Total:      totals.Total,
	}
	for i := 0; i < referral.ChainDepth; i++ {
		members := downline[i]
		if members == nil {
			members = []string{}
		}
		team.Levels[i] = models.TeamLevel{
			Level:      i + 1,
			Members:    members,
			Commission: perLevel[i],
		}
	}
	return team, nil
}

// CommissionTotals returns the per-level commission summary of username
func (s *TradingService) CommissionTotals(ctx context.Context, username string) (models.CommissionTotals, error) {
	return s.svc.Commissions.TotalsByLevel(ctx, username)
}
