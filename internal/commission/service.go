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

package commission

import (
	"context"
	"fmt"
	"time"

	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/referral"
	"trading-hall-sync-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	KeyTeamCommissions = "TEAM_COMMISSIONS"

	// AmountPlaces is the number of decimal places kept for USDT amounts
	AmountPlaces = 6

	recentLimit = 3
)

// LevelRates are the shares of the order amount paid to ancestors 1..3
var LevelRates = [referral.ChainDepth]decimal.Decimal{
	decimal.RequireFromString("0.30"),
	decimal.RequireFromString("0.15"),
	decimal.RequireFromString("0.05"),
}

// Service distributes and aggregates referral commissions
type Service struct {
	kv       store.KeyValueStore
	referral *referral.Service
	now      func() time.Time
}

func NewService(kv store.KeyValueStore, referralService *referral.Service) *Service {
	return &Service{
		kv:       kv,
		referral: referralService,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Distribute grants commission on orderId to up to three ancestors of fromUsername.
// Grants that already exist are skipped; only newly created grants are returned.
func (s *Service) Distribute(ctx context.Context, orderId, fromUsername string, amountUSDT decimal.Decimal) ([]models.CommissionGrant, error) {
	if orderId == "" || fromUsername == "" {
		return nil, fmt.Errorf("order id and username are required")
	}
	if !amountUSDT.IsPositive() {
		return nil, fmt.Errorf("commission base must be positive, got %s", amountUSDT)
	}

	chain, err := s.referral.GetAncestorChain(ctx, fromUsername)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ancestors: %w", err)
	}

	now := s.now()
	var candidates []models.CommissionGrant
	for i, code := range chain {
		if code == "" {
			break
		}
		toUsername, err := s.referral.ResolveInviteCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve invite code %s: %w", code, err)
		}
		if toUsername == "" {
			zap.L().Warn("Ancestor invite code does not resolve, skipping level",
				zap.String("order_id", orderId),
				zap.String("invite_code", code),
				zap.Int("level", i+1))
			continue
		}
		key := models.GrantKey{OrderId: orderId, ToUsername: toUsername, Level: i + 1}
		candidates = append(candidates, models.CommissionGrant{
			Id:           key.String(),
			ToUsername:   toUsername,
			Level:        key.Level,
			AmountUSDT:   amountUSDT.Mul(LevelRates[i]).Round(AmountPlaces),
			FromUsername: fromUsername,
			OrderId:      orderId,
			CreatedAt:    now,
		})
	}

	var created []models.CommissionGrant
	err = store.UpdateJSON(ctx, s.kv, KeyTeamCommissions, func(grants *[]models.CommissionGrant) error {
		created = created[:0]
		existing := make(map[models.GrantKey]struct{}, len(*grants))
		for _, g := range *grants {
			existing[g.Key()] = struct{}{}
		}
		var fresh []models.CommissionGrant
		for _, g := range candidates {
			if _, ok := existing[g.Key()]; ok {
				continue
			}
			fresh = append(fresh, g)
		}
		created = append(created, fresh...)
		// newest first
		*grants = append(fresh, *grants...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record commissions: %w", err)
	}

	for _, g := range created {
		zap.L().Info("Commission granted",
			zap.String("grant_id", g.Id),
			zap.String("order_id", orderId),
			zap.String("from_username", fromUsername),
			zap.String("to_username", g.ToUsername),
			zap.Int("level", g.Level),
			zap.String("amount", g.AmountUSDT.String()))
	}
	if len(created) == 0 {
		zap.L().Info("No new commissions for order",
			zap.String("order_id", orderId),
			zap.Int("candidates", len(candidates)))
	}

	return created, nil
}

// List returns every grant, newest first
func (s *Service) List(ctx context.Context) ([]models.CommissionGrant, error) {
	var grants []models.CommissionGrant
	if _, err := store.GetJSON(ctx, s.kv, KeyTeamCommissions, &grants); err != nil {
		return nil, err
	}
	return grants, nil
}

// ListForUser returns the grants paid to username, newest first
func (s *Service) ListForUser(ctx context.Context, username string) ([]models.CommissionGrant, error) {
	grants, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var mine []models.CommissionGrant
	for _, g := range grants {
		if g.ToUsername == username {
			mine = append(mine, g)
		}
	}
	return mine, nil
}

// TotalsByLevel sums the grants paid to username per level
func (s *Service) TotalsByLevel(ctx context.Context, username string) (models.CommissionTotals, error) {
	totals := models.CommissionTotals{
		Total:  decimal.Zero,
		Level1: decimal.Zero,
		Level2: decimal.Zero,
		Level3: decimal.Zero,
	}

	mine, err := s.ListForUser(ctx, username)
	if err != nil {
		return totals, err
	}

	for _, g := range mine {
		totals.Total = totals.Total.Add(g.AmountUSDT)
		switch g.Level {
		case 1:
			totals.Level1 = totals.Level1.Add(g.AmountUSDT)
		case 2:
			totals.Level2 = totals.Level2.Add(g.AmountUSDT)
		case 3:
			totals.Level3 = totals.Level3.Add(g.AmountUSDT)
		}
	}
	totals.Total = totals.Total.Round(AmountPlaces)
	totals.Level1 = totals.Level1.Round(AmountPlaces)
	totals.Level2 = totals.Level2.Round(AmountPlaces)
	totals.Level3 = totals.Level3.Round(AmountPlaces)

	if len(mine) > recentLimit {
		mine = mine[:recentLimit]
	}
	totals.Recent = mine
	return totals, nil
}
