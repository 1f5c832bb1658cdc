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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RateBaseUSDT          = "USDT"
	PlatformDepositId     = "platform"
	DefaultDepositNetwork = "TRC20"
)

// Rate is a display exchange rate from Base to Quote
type Rate struct {
	Base      string          `json:"base" validate:"required"`
	Quote     string          `json:"quote" validate:"required"`
	Value     decimal.Decimal `json:"value" validate:"gt=0"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Key identifies a rate across devices
func (r Rate) Key() string {
	return r.Base + "_" + r.Quote
}

// PlatformDeposit is the address users transfer top-ups to
type PlatformDeposit struct {
	Address   string    `json:"address" validate:"required"`
	Network   string    `json:"network,omitempty"`
	QrImage   string    `json:"qrImage,omitempty"`
	Note      string    `json:"note,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PlatformConfig is the admin-controlled platform configuration
type PlatformConfig struct {
	MinOrderAmount  decimal.Decimal  `json:"minOrderAmount"`
	DisplayRates    []Rate           `json:"displayRates"`
	PlatformDeposit *PlatformDeposit `json:"platformDeposit,omitempty"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// RateFor returns the display rate for a quote currency, if configured
func (c *PlatformConfig) RateFor(quote string) (Rate, bool) {
	for _, r := range c.DisplayRates {
		if r.Quote == quote {
			return r, true
		}
	}
	return Rate{}, false
}
