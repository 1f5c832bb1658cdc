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

type DepositStatus string

const (
	DepositStatusPending  DepositStatus = "pending"
	DepositStatusApproved DepositStatus = "approved"
	DepositStatusRejected DepositStatus = "rejected"
)

// DepositRequest is a user's request to top up their balance
type DepositRequest struct {
	Id                  string          `json:"id" validate:"required"`
	Username            string          `json:"username" validate:"required"`
	AmountRequestedUSDT decimal.Decimal `json:"amountRequestedUSDT" validate:"gt=0"`
	AmountApprovedUSDT  decimal.Decimal `json:"amountApprovedUSDT"`
	ProofImage          string          `json:"proofImage,omitempty"`
	TxHash              string          `json:"txHash,omitempty"`
	NoteUser            string          `json:"noteUser,omitempty"`
	NoteAdmin           string          `json:"noteAdmin,omitempty"`
	Status              DepositStatus   `json:"status" validate:"required,oneof=pending approved rejected"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
	ReviewerUsername    string          `json:"reviewerUsername,omitempty"`
	ReviewedAt          *time.Time      `json:"reviewedAt,omitempty"`
}

// DepositResult represents the result of reviewing a deposit
type DepositResult struct {
	Success    bool            `json:"success"`
	Deposit    *DepositRequest `json:"deposit,omitempty"`
	Credited   decimal.Decimal `json:"credited"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Error      string          `json:"error,omitempty"`
}
