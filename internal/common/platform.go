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

package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/platform"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type RateConfig struct {
	Quote string `yaml:"quote"`
	Value string `yaml:"value"`
}

type DepositConfig struct {
	Address string `yaml:"address"`
	Network string `yaml:"network"`
	Note    string `yaml:"note"`
}

// PlatformFile is the on-disk shape of the platform defaults file
type PlatformFile struct {
	MinOrderAmount  string         `yaml:"min_order_amount"`
	DisplayRates    []RateConfig   `yaml:"display_rates"`
	PlatformDeposit *DepositConfig `yaml:"platform_deposit"`
}

// LoadPlatformDefaults builds the platform configuration used before an admin has
// saved one. A missing file is not an error; the built-in defaults apply.
func LoadPlatformDefaults(settings models.PlatformSettings) (models.PlatformConfig, error) {
	defaults := platform.DefaultConfig(settings.MinOrderAmount)
	if settings.File == "" {
		return defaults, nil
	}

	path := settings.File
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return defaults, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, path)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Debug("No platform defaults file, using built-in defaults", zap.String("path", path))
		return defaults, nil
	}
	if err != nil {
		return defaults, fmt.Errorf("unable to read %s: %w", settings.File, err)
	}

	return ParsePlatformDefaults(data, defaults)
}

// ParsePlatformDefaults overlays YAML data onto base
func ParsePlatformDefaults(data []byte, base models.PlatformConfig) (models.PlatformConfig, error) {
	var file PlatformFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return base, fmt.Errorf("unable to parse platform defaults: %w", err)
	}

	cfg := base
	if file.MinOrderAmount != "" {
		amount, err := decimal.NewFromString(file.MinOrderAmount)
		if err != nil {
			return base, fmt.Errorf("invalid min_order_amount %q: %w", file.MinOrderAmount, err)
		}
		if amount.LessThan(decimal.NewFromInt(1)) {
			return base, fmt.Errorf("min_order_amount must be at least 1, got %s", amount)
		}
		cfg.MinOrderAmount = amount
	}

	if len(file.DisplayRates) > 0 {
		rates := make([]models.Rate, 0, len(file.DisplayRates))
		for i, r := range file.DisplayRates {
			if r.Quote == "" {
				return base, fmt.Errorf("rate at index %d missing quote", i)
			}
			value, err := decimal.NewFromString(r.Value)
			if err != nil || !value.IsPositive() {
				return base, fmt.Errorf("rate at index %d has invalid value %q", i, r.Value)
			}
			rates = append(rates, models.Rate{
				Base:  models.RateBaseUSDT,
				Quote: strings.ToUpper(r.Quote),
				Value: value,
			})
		}
		cfg.DisplayRates = rates
	}

	if file.PlatformDeposit != nil {
		if file.PlatformDeposit.Address == "" {
			return base, fmt.Errorf("platform_deposit missing address")
		}
		network := file.PlatformDeposit.Network
		if network == "" {
			network = models.DefaultDepositNetwork
		}
		cfg.PlatformDeposit = &models.PlatformDeposit{
			Address: file.PlatformDeposit.Address,
			Network: network,
			Note:    file.PlatformDeposit.Note,
		}
	}

	return cfg, nil
}
