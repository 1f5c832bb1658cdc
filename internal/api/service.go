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
	"sync"
	"time"

	"trading-hall-sync-go/internal/assets"
	"trading-hall-sync-go/internal/commission"
	"trading-hall-sync-go/internal/deposits"
	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/orders"
	"trading-hall-sync-go/internal/payments"
	"trading-hall-sync-go/internal/platform"
	"trading-hall-sync-go/internal/referral"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrInsufficientBalance   = fmt.Errorf("%w: insufficient balance", ErrValidation)
	ErrBelowMinimum          = fmt.Errorf("%w: amount below minimum order", ErrValidation)
	ErrPaymentMethodRequired = fmt.Errorf("%w: payment method required", ErrValidation)

	ErrConflict          = errors.New("conflict")
	ErrAlreadyReviewed   = fmt.Errorf("%w: already reviewed", ErrConflict)
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrConflict)

	ErrNotAdmin = errors.New("admin privileges required")
	ErrNotFound = errors.New("not found")
)

var (
	DefaultServiceFeeRate = decimal.RequireFromString("0.02")
	DefaultGrabFeeRate    = decimal.RequireFromString("0.03")
)

// SyncEnqueuer accepts records for delivery to the remote
type SyncEnqueuer interface {
	Enqueue(ctx context.Context, payload models.SyncPayload) (*models.QueueItem, error)
}

// Services bundles the stores the trading workflows operate on
type Services struct {
	Orders      *orders.Repository
	Deposits    *deposits.Repository
	Referral    *referral.Service
	Commissions *commission.Service
	Assets      *assets.Service
	Payments    *payments.Service
	Platform    *platform.Service
	Sync        SyncEnqueuer
}

// TradingService runs the order, deposit and account workflows. Mutations are
// serialized; every operation re-reads the store before changing it.
type TradingService struct {
	mu             sync.Mutex
	svc            Services
	admins         map[string]struct{}
	serviceFeeRate decimal.Decimal
	grabFeeRate    decimal.Decimal
	now            func() time.Time
	newId          func() string
}

func NewTradingService(svc Services, settings models.PlatformSettings, adminUsernames []string) *TradingService {
	admins := make(map[string]struct{}, len(adminUsernames))
	for _, name := range adminUsernames {
		if name = strings.TrimSpace(name); name != "" {
			admins[name] = struct{}{}
		}
	}

	serviceFee := settings.ServiceFeeRate
	if serviceFee.IsZero() {
		serviceFee = DefaultServiceFeeRate
	}
	grabFee := settings.GrabFeeRate
	if grabFee.IsZero() {
		grabFee = DefaultGrabFeeRate
	}

	return &TradingService{
		svc:            svc,
		admins:         admins,
		serviceFeeRate: serviceFee,
		grabFeeRate:    grabFee,
		now:            func() time.Time { return time.Now().UTC() },
		newId:          func() string { return uuid.New().String() },
	}
}

// IsAdmin reports whether username may run admin workflows
func (s *TradingService) IsAdmin(username string) bool {
	_, ok := s.admins[username]
	return ok
}

func (s *TradingService) requireAdmin(username string) error {
	if !s.IsAdmin(username) {
		return fmt.Errorf("%w: %s", ErrNotAdmin, username)
	}
	return nil
}

// enqueue hands payload to the sync queue. Local state is already committed, so
// failures are logged and never returned.
func (s *TradingService) enqueue(ctx context.Context, payload models.SyncPayload) {
	if s.svc.Sync == nil {
		return
	}
	if _, err := s.svc.Sync.Enqueue(ctx, payload); err != nil {
		zap.L().Error("Failed to enqueue sync payload",
			zap.String("type", string(payload.Type)),
			zap.String("record_key", payload.Key()),
			zap.Error(err))
	}
}

func (s *TradingService) HealthCheck(ctx context.Context) error {
	if _, err := s.svc.Platform.Get(ctx); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}
