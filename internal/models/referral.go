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
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// UserProfile links a username to its invite code and the code of its inviter
type UserProfile struct {
	Username    string    `json:"username" validate:"required"`
	InviteCode  string    `json:"inviteCode" validate:"required"`
	InviterCode string    `json:"inviterCode,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// GrantKey identifies a commission grant. Two grants with equal keys are the same grant.
type GrantKey struct {
	OrderId    string
	ToUsername string
	Level      int
}

func (k GrantKey) String() string {
	return fmt.Sprintf("%s_%s_%d", k.OrderId, k.ToUsername, k.Level)
}

// CommissionGrant is a referral payout tied to an order, ancestor level and beneficiary
type CommissionGrant struct {
	Id           string          `json:"id"`
	ToUsername   string          `json:"toUsername"`
	Level        int             `json:"level"`
	AmountUSDT   decimal.Decimal `json:"amountUSDT"`
	FromUsername string          `json:"fromUsername"`
	OrderId      string          `json:"orderId"`
	CreatedAt    time.Time       `json:"createdAt"`
}

func (g CommissionGrant) Key() GrantKey {
	return GrantKey{OrderId: g.OrderId, ToUsername: g.ToUsername, Level: g.Level}
}

// CommissionTotals summarises the commissions owed to one user
type CommissionTotals struct {
	Total  decimal.Decimal   `json:"total"`
	Level1 decimal.Decimal   `json:"level1"`
	Level2 decimal.Decimal   `json:"level2"`
	Level3 decimal.Decimal   `json:"level3"`
	Recent []CommissionGrant `json:"recent"`
}

// TeamLevel describes one level of a user's downline
type TeamLevel struct {
	Level      int             `json:"level"`
	Members    []string        `json:"members"`
	Commission decimal.Decimal `json:"commission"`
}

// TeamHierarchy is the three-level downline of a user with commission per level
type TeamHierarchy struct {
	Username   string          `json:"username"`
	InviteCode string          `json:"inviteCode"`
	Levels     [3]TeamLevel    `json:"levels"`
	Total      decimal.Decimal `json:"total"`
}
