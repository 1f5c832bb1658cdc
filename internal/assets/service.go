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

package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	KeyBalancePrefix = "USER_BALANCE_"
	KeyWalletPrefix  = "WALLET_ADDRESS_INFO_"

	// AmountPlaces is the number of decimal places kept for balances
	AmountPlaces = 6
)

var (
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrInvalidAddress = errors.New("wallet address is required")
	ErrWalletNotFound = errors.New("no wallet address submitted")
)

// OrderSource lists orders for earnings aggregation
type OrderSource interface {
	ListOrders(ctx context.Context) ([]models.Order, error)
}

// CommissionSource lists the commission grants paid to a user
type CommissionSource interface {
	ListForUser(ctx context.Context, username string) ([]models.CommissionGrant, error)
}

// Service keeps per-user topped-up balances and derives asset snapshots
type Service struct {
	kv          store.KeyValueStore
	orders      OrderSource
	commissions CommissionSource
	now         func() time.Time
}

func NewService(kv store.KeyValueStore, orders OrderSource, commissions CommissionSource) *Service {
	return &Service{
		kv:          kv,
		orders:      orders,
		commissions: commissions,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func balanceKey(username string) string {
	return KeyBalancePrefix + username
}

func walletKey(username string) string {
	return KeyWalletPrefix + username
}

func (s *Service) GetBalance(ctx context.Context, username string) (decimal.Decimal, error) {
	balance := decimal.Zero
	if _, err := store.GetJSON(ctx, s.kv, balanceKey(username), &balance); err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance for %s: %w", username, err)
	}
	return balance, nil
}

// SetBalance stores amount, clamped to zero and rounded to six places
func (s *Service) SetBalance(ctx context.Context, username string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		zap.L().Warn("Negative balance clamped to zero",
			zap.String("username", username),
			zap.String("requested", amount.String()))
		amount = decimal.Zero
	}
	amount = amount.Round(AmountPlaces)
	if err := store.SetJSON(ctx, s.kv, balanceKey(username), amount); err != nil {
		return decimal.Zero, fmt.Errorf("failed to set balance for %s: %w", username, err)
	}
	return amount, nil
}

func (s *Service) IncreaseBalance(ctx context.Context, username string, delta decimal.Decimal) (decimal.Decimal, error) {
	if !delta.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: got %s", ErrInvalidAmount, delta)
	}

	var next decimal.Decimal
	err := store.UpdateJSON(ctx, s.kv, balanceKey(username), func(balance *decimal.Decimal) error {
		next = balance.Add(delta).Round(AmountPlaces)
		*balance = next
		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to increase balance for %s: %w", username, err)
	}

	zap.L().Info("Balance increased",
		zap.String("username", username),
		zap.String("delta", delta.String()),
		zap.String("new_balance", next.String()))
	return next, nil
}

// DecreaseBalance never drives the balance below zero. A deduction larger than
// the balance is truncated and logged as an anomaly, because callers are expected
// to have checked funds first.
func (s *Service) DecreaseBalance(ctx context.Context, username string, delta decimal.Decimal) (decimal.Decimal, error) {
	if !delta.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: got %s", ErrInvalidAmount, delta)
	}

	var before, next decimal.Decimal
	err := store.UpdateJSON(ctx, s.kv, balanceKey(username), func(balance *decimal.Decimal) error {
		before = *balance
		next = balance.Sub(delta)
		if next.IsNegative() {
			next = decimal.Zero
		}
		next = next.Round(AmountPlaces)
		*balance = next
		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to decrease balance for %s: %w", username, err)
	}

	if delta.GreaterThan(before) {
		zap.L().Warn("Balance underflow clamped to zero",
			zap.String("username", username),
			zap.String("balance_before", before.String()),
			zap.String("requested", delta.String()),
			zap.String("deducted", before.String()))
	} else {
		zap.L().Info("Balance decreased",
			zap.String("username", username),
			zap.String("delta", delta.String()),
			zap.String("new_balance", next.String()))
	}
	return next, nil
}

// ListBalances returns every stored topped-up balance keyed by username
func (s *Service) ListBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	keys, err := s.kv.Keys(ctx, KeyBalancePrefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(keys))
	for _, key := range keys {
		username := strings.TrimPrefix(key, KeyBalancePrefix)
		balance, err := s.GetBalance(ctx, username)
		if err != nil {
			return nil, err
		}
		out[username] = balance
	}
	return out, nil
}

func (s *Service) GetWalletAddressInfo(ctx context.Context, username string) (models.WalletAddressInfo, error) {
	info := models.WalletAddressInfo{Network: models.DefaultDepositNetwork, Status: models.WalletStatusNotSubmitted}
	if _, err := store.GetJSON(ctx, s.kv, walletKey(username), &info); err != nil {
		return info, err
	}
	return info, nil
}

// SubmitWalletAddress records a payout address awaiting admin review
func (s *Service) SubmitWalletAddress(ctx context.Context, username, address string) (models.WalletAddressInfo, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.WalletAddressInfo{}, ErrInvalidAddress
	}
	info := models.WalletAddressInfo{
		Address:   address,
		Network:   models.DefaultDepositNetwork,
		Status:    models.WalletStatusPendingReview,
		UpdatedAt: s.now(),
	}
	if err := store.SetJSON(ctx, s.kv, walletKey(username), info); err != nil {
		return info, err
	}
	zap.L().Info("Wallet address submitted", zap.String("username", username))
	return info, nil
}

// ApproveWalletAddress marks the submitted address as approved for withdrawals
func (s *Service) ApproveWalletAddress(ctx context.Context, username string) (models.WalletAddressInfo, error) {
	var info models.WalletAddressInfo
	err := store.UpdateJSON(ctx, s.kv, walletKey(username), func(w *models.WalletAddressInfo) error {
		if w.Address == "" {
			return fmt.Errorf("%w: %s", ErrWalletNotFound, username)
		}
		w.Status = models.WalletStatusApproved
		w.UpdatedAt = s.now()
		info = *w
		return nil
	})
	if err != nil {
		return info, err
	}
	zap.L().Info("Wallet address approved", zap.String("username", username))
	return info, nil
}

// GetSnapshot derives the asset view of username from orders, commissions and balance
func (s *Service) GetSnapshot(ctx context.Context, username string) (*models.AssetSnapshot, error) {
	orders, err := s.orders.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	earned := decimal.Zero
	for _, o := range orders {
		if o.Status == models.OrderStatusCompleted && o.CreatorUsername == username {
			earned = earned.Add(o.AmountUSDT)
		}
	}

	grants, err := s.commissions.ListForUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list commissions: %w", err)
	}
	commission := decimal.Zero
	for _, g := range grants {
		commission = commission.Add(g.AmountUSDT)
	}

	available, err := s.GetBalance(ctx, username)
	if err != nil {
		return nil, err
	}

	wallet, err := s.GetWalletAddressInfo(ctx, username)
	if err != nil {
		return nil, err
	}

	withdrawable := decimal.Zero
	if wallet.Status == models.WalletStatusApproved {
		withdrawable = earned.Add(commission).Add(available)
	}

	return &models.AssetSnapshot{
		Username:             username,
		BalanceUSDT:          earned.Round(AmountPlaces),
		CommissionTotalUSDT:  commission.Round(AmountPlaces),
		WithdrawableUSDT:     withdrawable.Round(AmountPlaces),
		AvailableBalanceUSDT: available,
		WalletStatus:         wallet.Status,
	}, nil
}
