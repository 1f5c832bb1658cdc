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
	"sort"

	"trading-hall-sync-go/internal/models"

	"github.com/shopspring/decimal"
)

func (s *TradingService) GetSnapshot(ctx context.Context, username string) (*models.AssetSnapshot, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	return s.svc.Assets.GetSnapshot(ctx, username)
}

// ListSnapshots derives the snapshot of every user holding a profile or a balance
func (s *TradingService) ListSnapshots(ctx context.Context) ([]models.AssetSnapshot, error) {
	names := map[string]struct{}{}

	profiles, err := s.svc.Referral.ListProfiles(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		names[p.Username] = struct{}{}
	}
	balances, err := s.svc.Assets.ListBalances(ctx)
	if err != nil {
		return nil, err
	}
	for name := range balances {
		names[name] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	snapshots := make([]models.AssetSnapshot, 0, len(sorted))
	for _, name := range sorted {
		snap, err := s.svc.Assets.GetSnapshot(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to build snapshot for %s: %w", name, err)
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, nil
}

func (s *TradingService) GetBalance(ctx context.Context, username string) (decimal.Decimal, error) {
	return s.svc.Assets.GetBalance(ctx, username)
}

func (s *TradingService) SubmitWalletAddress(ctx context.Context, username, address string) (models.WalletAddressInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.svc.Assets.SubmitWalletAddress(ctx, username, address)
}

// ApproveWalletAddress unlocks withdrawals for username
func (s *TradingService) ApproveWalletAddress(ctx context.Context, username, reviewer string) (models.WalletAddressInfo, error) {
	if err := s.requireAdmin(reviewer); err != nil {
		return models.WalletAddressInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.svc.Assets.ApproveWalletAddress(ctx, username)
}
