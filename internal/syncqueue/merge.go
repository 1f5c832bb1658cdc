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

package syncqueue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"trading-hall-sync-go/internal/deposits"
	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/orders"
	"trading-hall-sync-go/internal/payments"
	"trading-hall-sync-go/internal/platform"
	"trading-hall-sync-go/internal/referral"

	"go.uber.org/zap"
)

// Merger folds a remote snapshot into local state, last write wins per record
type Merger struct {
	orders   *orders.Repository
	deposits *deposits.Repository
	referral *referral.Service
	payments *payments.Service
	platform *platform.Service
}

func NewMerger(
	orderRepo *orders.Repository,
	depositRepo *deposits.Repository,
	referralService *referral.Service,
	paymentService *payments.Service,
	platformService *platform.Service,
) *Merger {
	return &Merger{
		orders:   orderRepo,
		deposits: depositRepo,
		referral: referralService,
		payments: paymentService,
		platform: platformService,
	}
}

// mergeLatest returns local with every remote record that is absent locally or
// strictly newer than its local copy. Equal timestamps keep the local record.
func mergeLatest[T any](local, remote []T, key func(T) string, updatedAt func(T) time.Time) ([]T, int) {
	index := make(map[string]int, len(local))
	for i, rec := range local {
		index[key(rec)] = i
	}

	taken := 0
	for _, rec := range remote {
		k := key(rec)
		if k == "" {
			continue
		}
		if i, ok := index[k]; ok {
			if updatedAt(rec).After(updatedAt(local[i])) {
				local[i] = rec
				taken++
			}
			continue
		}
		index[k] = len(local)
		local = append(local, rec)
		taken++
	}
	return local, taken
}

// MergeRemoteData applies snapshot to the local store
func (m *Merger) MergeRemoteData(ctx context.Context, snapshot *models.RemoteSnapshot) (models.MergeResult, error) {
	var result models.MergeResult
	if snapshot == nil {
		return result, nil
	}

	if len(snapshot.Orders) > 0 {
		err := m.orders.Replace(ctx, func(current []models.Order) []models.Order {
			merged, n := mergeLatest(current, snapshot.Orders,
				func(o models.Order) string { return o.Id },
				func(o models.Order) time.Time { return o.UpdatedAt })
			sort.SliceStable(merged, func(i, j int) bool {
				return merged[i].CreatedAt.After(merged[j].CreatedAt)
			})
			result.Orders = n
			return merged
		})
		if err != nil {
			return result, fmt.Errorf("failed to merge orders: %w", err)
		}
	}

	if len(snapshot.Deposits) > 0 {
		err := m.deposits.Replace(ctx, func(current []models.DepositRequest) []models.DepositRequest {
			merged, n := mergeLatest(current, snapshot.Deposits,
				func(d models.DepositRequest) string { return d.Id },
				func(d models.DepositRequest) time.Time { return d.UpdatedAt })
			sort.SliceStable(merged, func(i, j int) bool {
				return merged[i].CreatedAt.After(merged[j].CreatedAt)
			})
			result.Deposits = n
			return merged
		})
		if err != nil {
			return result, fmt.Errorf("failed to merge deposits: %w", err)
		}
	}

	for _, profile := range snapshot.Users {
		changed, err := m.referral.MergeProfile(ctx, profile)
		if err != nil {
			zap.L().Warn("Skipping remote profile",
				zap.String("username", profile.Username),
				zap.Error(err))
			continue
		}
		if changed {
			result.Users++
		}
	}

	if len(snapshot.PaymentMethods) > 0 {
		err := m.payments.Replace(ctx, func(current []models.PaymentMethod) []models.PaymentMethod {
			merged, n := mergeLatest(current, snapshot.PaymentMethods,
				func(pm models.PaymentMethod) string { return pm.Id },
				func(pm models.PaymentMethod) time.Time { return pm.UpdatedAt })
			result.PaymentMethods = n
			return merged
		})
		if err != nil {
			return result, fmt.Errorf("failed to merge payment methods: %w", err)
		}
	}

	if len(snapshot.Rates) > 0 || snapshot.PlatformDeposit != nil {
		_, err := m.platform.Update(ctx, func(cfg *models.PlatformConfig) error {
			rates := make([]models.Rate, 0, len(snapshot.Rates))
			for _, r := range snapshot.Rates {
				r.Base = strings.ToUpper(r.Base)
				r.Quote = strings.ToUpper(r.Quote)
				if r.Base == "" {
					r.Base = models.RateBaseUSDT
				}
				rates = append(rates, r)
			}
			cfg.DisplayRates, result.Rates = mergeLatest(cfg.DisplayRates, rates,
				func(r models.Rate) string { return r.Key() },
				func(r models.Rate) time.Time { return r.UpdatedAt })

			if pd := snapshot.PlatformDeposit; pd != nil && pd.Address != "" {
				if cfg.PlatformDeposit == nil || pd.UpdatedAt.After(cfg.PlatformDeposit.UpdatedAt) {
					copied := *pd
					cfg.PlatformDeposit = &copied
					result.PlatformDeposit = 1
				}
			}
			return nil
		})
		if err != nil {
			return result, fmt.Errorf("failed to merge platform config: %w", err)
		}
	}

	zap.L().Info("Remote data merged",
		zap.Int("orders", result.Orders),
		zap.Int("deposits", result.Deposits),
		zap.Int("users", result.Users),
		zap.Int("payment_methods", result.PaymentMethods),
		zap.Int("rates", result.Rates),
		zap.Int("platform_deposit", result.PlatformDeposit))

	return result, nil
}
