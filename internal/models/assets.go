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

type WalletStatus string

const (
	WalletStatusNotSubmitted  WalletStatus = "not_submitted"
	WalletStatusPendingReview WalletStatus = "pending_review"
	WalletStatusApproved      WalletStatus = "approved"
)

// WalletAddressInfo is the withdrawal address a user registered for payouts
type WalletAddressInfo struct {
	Address   string       `json:"address"`
	Network   string       `json:"network"`
	Status    WalletStatus `json:"status"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// AssetSnapshot is derived on demand and never persisted
type AssetSnapshot struct {
	Username             string          `json:"username"`
	BalanceUSDT          decimal.Decimal `json:"balanceUSDT"`
	CommissionTotalUSDT  decimal.Decimal `json:"commissionTotalUSDT"`
	WithdrawableUSDT     decimal.Decimal `json:"withdrawableUSDT"`
	AvailableBalanceUSDT decimal.Decimal `json:"availableBalanceUSDT"`
	WalletStatus         WalletStatus    `json:"walletStatus"`
}
