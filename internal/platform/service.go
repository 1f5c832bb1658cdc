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

package platform

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

const KeyPlatformConfig = "PLATFORM_CONFIG"

var (
	ErrInvalidMinimum = errors.New("minimum order amount must be at least 1")
	ErrInvalidRate    = errors.New("rate must be positive")
	ErrInvalidDeposit = errors.New("platform deposit address is required")
)

// DefaultRates are the display rates used until an admin sets them
func DefaultRates() []models.Rate {
	return []models.Rate{
		{Base: models.RateBaseUSDT, Quote: "USD", Value: decimal.NewFromInt(1)},
		{Base: models.RateBaseUSDT, Quote: "CNY", Value: decimal.NewFromInt(11)},
		{Base: models.RateBaseUSDT, Quote: "KRW", Value: decimal.NewFromInt(2250)},
		{Base: models.RateBaseUSDT, Quote: "JPY", Value: decimal.NewFromInt(237)},
	}
}

// DefaultConfig builds the configuration used when nothing has been persisted
func DefaultConfig(minOrderAmount decimal.Decimal) models.PlatformConfig {
	return models.PlatformConfig{
		MinOrderAmount: minOrderAmount,
		DisplayRates:   DefaultRates(),
	}
}

// Service stores the admin-controlled platform configuration
type Service struct {
	kv       store.KeyValueStore
	defaults models.PlatformConfig
	now      func() time.Time
}

func NewService(kv store.KeyValueStore, defaults models.PlatformConfig) *Service {
	if defaults.MinOrderAmount.LessThan(decimal.NewFromInt(1)) {
		defaults.MinOrderAmount = decimal.NewFromInt(200)
	}
	if len(defaults.DisplayRates) == 0 {
		defaults.DisplayRates = DefaultRates()
	}
	return &Service{
		kv:       kv,
		defaults: defaults,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the stored configuration with defaults filled in
func (s *Service) Get(ctx context.Context) (*models.PlatformConfig, error) {
	var cfg models.PlatformConfig
	if _, err := store.GetJSON(ctx, s.kv, KeyPlatformConfig, &cfg); err != nil {
		return nil, err
	}
	s.applyDefaults(&cfg)
	return &cfg, nil
}

func (s *Service) applyDefaults(cfg *models.PlatformConfig) {
	if cfg.MinOrderAmount.LessThan(decimal.NewFromInt(1)) {
		cfg.MinOrderAmount = s.defaults.MinOrderAmount
	}
	for _, def := range s.defaults.DisplayRates {
		if _, ok := cfg.RateFor(def.Quote); !ok {
			cfg.DisplayRates = append(cfg.DisplayRates, def)
		}
	}
	if cfg.PlatformDeposit == nil && s.defaults.PlatformDeposit != nil {
		pd := *s.defaults.PlatformDeposit
		cfg.PlatformDeposit = &pd
	}
}

// Update applies fn to the stored configuration (defaults filled in) atomically
func (s *Service) Update(ctx context.Context, fn func(cfg *models.PlatformConfig) error) (*models.PlatformConfig, error) {
	var updated models.PlatformConfig
	err := store.UpdateJSON(ctx, s.kv, KeyPlatformConfig, func(cfg *models.PlatformConfig) error {
		s.applyDefaults(cfg)
		if err := fn(cfg); err != nil {
			return err
		}
		cfg.UpdatedAt = s.now()
		updated = *cfg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// MinOrderAmount returns the current minimum order size in USDT
func (s *Service) MinOrderAmount(ctx context.Context) (decimal.Decimal, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return cfg.MinOrderAmount, nil
}

// SetMinOrderAmount floors amount and stores it; amounts below 1 are rejected
func (s *Service) SetMinOrderAmount(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	floored := amount.Floor()
	if floored.LessThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%w: got %s", ErrInvalidMinimum, amount)
	}

	_, err := s.Update(ctx, func(cfg *models.PlatformConfig) error {
		cfg.MinOrderAmount = floored
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	zap.L().Info("Minimum order amount updated", zap.String("amount", floored.String()))
	return floored, nil
}

// SetRate stores the display rate for quote against USDT
func (s *Service) SetRate(ctx context.Context, quote string, value decimal.Decimal) (*models.Rate, error) {
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if quote == "" {
		return nil, fmt.Errorf("%w: quote currency is required", ErrInvalidRate)
	}
	if !value.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidRate, value)
	}

	rate := models.Rate{Base: models.RateBaseUSDT, Quote: quote, Value: value, UpdatedAt: s.now()}
	_, err := s.Update(ctx, func(cfg *models.PlatformConfig) error {
		cfg.DisplayRates = upsertRate(cfg.DisplayRates, rate)
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Display rate updated",
		zap.String("quote", quote),
		zap.String("value", value.String()))
	return &rate, nil
}

// SetPlatformDeposit stores the address users transfer top-ups to
func (s *Service) SetPlatformDeposit(ctx context.Context, pd models.PlatformDeposit) (*models.PlatformDeposit, error) {
	pd.Address = strings.TrimSpace(pd.Address)
	if pd.Address == "" {
		return nil, ErrInvalidDeposit
	}
	if pd.Network == "" {
		pd.Network = models.DefaultDepositNetwork
	}
	pd.UpdatedAt = s.now()

	_, err := s.Update(ctx, func(cfg *models.PlatformConfig) error {
		stored := pd
		cfg.PlatformDeposit = &stored
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Platform deposit address updated",
		zap.String("address", pd.Address),
		zap.String("network", pd.Network))
	return &pd, nil
}

func upsertRate(rates []models.Rate, rate models.Rate) []models.Rate {
	for i := range rates {
		if rates[i].Key() == rate.Key() {
			rates[i] = rate
			return rates
		}
	}
	return append(rates, rate)
}
