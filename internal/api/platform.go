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
	"fmt"

	"trading-hall-sync-go/internal/models"

	"github.com/shopspring/decimal"
)

func (s *TradingService) GetPlatformConfig(ctx context.Context) (*models.PlatformConfig, error) {
	return s.svc.Platform.Get(ctx)
}

// SetMinOrderAmount stores the floored minimum; values below 1 are rejected
func (s *TradingService) SetMinOrderAmount(ctx context.Context, amount decimal.Decimal, admin string) (decimal.Decimal, error) {
	if err := s.requireAdmin(admin); err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.svc.Platform.SetMinOrderAmount(ctx, amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return stored, nil
}

func (s *TradingService) SetDisplayRate(ctx context.Context, quote string, value decimal.Decimal, admin string) (*models.Rate, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rate, err := s.svc.Platform.SetRate(ctx, quote, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	s.enqueue(ctx, models.SyncPayload{
		Type:     models.SyncTypeRate,
		Username: admin,
		Action:   "set",
		Rate:     rate,
	})
	return rate, nil
}

func (s *TradingService) SetPlatformDeposit(ctx context.Context, pd models.PlatformDeposit, admin string) (*models.PlatformDeposit, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.svc.Platform.SetPlatformDeposit(ctx, pd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	s.enqueue(ctx, models.SyncPayload{
		Type:            models.SyncTypePlatformDeposit,
		Username:        admin,
		Action:          "set",
		PlatformDeposit: stored,
	})
	return stored, nil
}
