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

type OrderStatus string

const (
	OrderStatusPendingReview  OrderStatus = "pending_admin_review"
	OrderStatusApprovedPayout OrderStatus = "approved_payout"
	OrderStatusRejectedPayout OrderStatus = "rejected_payout"
	OrderStatusCompleted      OrderStatus = "completed"
)

// Order is a USDT sell order placed by a user and reviewed by an admin
type Order struct {
	Id               string          `json:"id" validate:"required"`
	AmountUSDT       decimal.Decimal `json:"amountUSDT" validate:"gt=0"`
	UnitPrice        decimal.Decimal `json:"unitPrice" validate:"gt=0"`
	TotalUSD         decimal.Decimal `json:"totalUSD"`
	NetReceiveUSD    decimal.Decimal `json:"netReceiveUSD"`
	ServiceFeeRate   decimal.Decimal `json:"serviceFeeRate"`
	GrabbingFeeRate  decimal.Decimal `json:"grabbingFeeRate"`
	Status           OrderStatus     `json:"status" validate:"required,oneof=pending_admin_review approved_payout rejected_payout completed"`
	ReceiptAddress   string          `json:"receiptAddress,omitempty"`
	PaymentMethod    string          `json:"paymentMethod" validate:"required"`
	PaymentMethodId  string          `json:"paymentMethodId,omitempty"`
	CreatorUsername  string          `json:"creatorUsername" validate:"required"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	ReviewerUsername string          `json:"reviewerUsername,omitempty"`
	ReviewedAt       *time.Time      `json:"reviewedAt,omitempty"`
	ReviewNote       string          `json:"reviewNote,omitempty"`
	PayoutTxHash     string          `json:"payoutTxHash,omitempty"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
}

// CreateOrderRequest carries the user-supplied fields of a new order
type CreateOrderRequest struct {
	Username        string
	AmountUSDT      decimal.Decimal
	UnitPrice       decimal.Decimal
	PaymentMethod   string
	PaymentMethodId string
	ReceiptAddress  string
}

// OrderPatch carries the admin-supplied fields applied on a transition
type OrderPatch struct {
	ReviewNote   string
	PayoutTxHash string
}

// OrderTransitionResult reports what a transition changed
type OrderTransitionResult struct {
	Order       *Order
	Refunded    decimal.Decimal
	Commissions []CommissionGrant
}
