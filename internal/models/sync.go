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
)

type SyncType string

const (
	SyncTypeOrder           SyncType = "order"
	SyncTypeDeposit         SyncType = "deposit"
	SyncTypeUser            SyncType = "user"
	SyncTypePaymentMethod   SyncType = "payment-method"
	SyncTypeRate            SyncType = "rate"
	SyncTypePlatformDeposit SyncType = "platform-deposit"
)

// SyncTypes lists every record type accepted by the sync endpoints
var SyncTypes = []SyncType{
	SyncTypeOrder,
	SyncTypeDeposit,
	SyncTypeUser,
	SyncTypePaymentMethod,
	SyncTypeRate,
	SyncTypePlatformDeposit,
}

func ParseSyncType(s string) (SyncType, error) {
	for _, t := range SyncTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown sync type %q", s)
}

// SyncPayload is the outbound record. Type selects which one of the variant
// pointers is set; the others stay nil.
type SyncPayload struct {
	Type            SyncType         `json:"type" validate:"required"`
	Username        string           `json:"username,omitempty"`
	Action          string           `json:"action,omitempty"`
	Order           *Order           `json:"order,omitempty"`
	Deposit         *DepositRequest  `json:"deposit,omitempty"`
	User            *UserProfile     `json:"user,omitempty"`
	PaymentMethod   *PaymentMethod   `json:"paymentMethod,omitempty"`
	Rate            *Rate            `json:"rate,omitempty"`
	PlatformDeposit *PlatformDeposit `json:"platformDeposit,omitempty"`
}

// WirePayload is the body POSTed to the remote: the payload plus the send timestamp
type WirePayload struct {
	SyncPayload
	Ts int64 `json:"ts"`
}

// Key returns the identity of the carried record on the remote side
func (p SyncPayload) Key() string {
	switch p.Type {
	case SyncTypeOrder:
		if p.Order != nil {
			return p.Order.Id
		}
	case SyncTypeDeposit:
		if p.Deposit != nil {
			return p.Deposit.Id
		}
	case SyncTypeUser:
		if p.User != nil {
			return p.User.Username
		}
	case SyncTypePaymentMethod:
		if p.PaymentMethod != nil {
			return p.PaymentMethod.Id
		}
	case SyncTypeRate:
		if p.Rate != nil {
			return p.Rate.Key()
		}
	case SyncTypePlatformDeposit:
		if p.PlatformDeposit != nil {
			return PlatformDepositId
		}
	}
	return ""
}

// UpdatedAt returns the last-modified time of the carried record
func (p SyncPayload) UpdatedAt() time.Time {
	switch {
	case p.Order != nil:
		return p.Order.UpdatedAt
	case p.Deposit != nil:
		return p.Deposit.UpdatedAt
	case p.User != nil:
		return p.User.UpdatedAt
	case p.PaymentMethod != nil:
		return p.PaymentMethod.UpdatedAt
	case p.Rate != nil:
		return p.Rate.UpdatedAt
	case p.PlatformDeposit != nil:
		return p.PlatformDeposit.UpdatedAt
	}
	return time.Time{}
}

// variantCount reports how many variant pointers are set
func (p SyncPayload) variantCount() int {
	n := 0
	for _, set := range []bool{
		p.Order != nil,
		p.Deposit != nil,
		p.User != nil,
		p.PaymentMethod != nil,
		p.Rate != nil,
		p.PlatformDeposit != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// QueueItem is a persisted entry of the outbound sync queue
type QueueItem struct {
	Id          string      `json:"id"`
	Type        SyncType    `json:"type"`
	Data        SyncPayload `json:"data"`
	Retry       int         `json:"retry"`
	CreatedAt   time.Time   `json:"createdAt"`
	LastTriedAt time.Time   `json:"lastTriedAt"`
}

// SentEntry records a delivered queue item
type SentEntry struct {
	Id     string    `json:"id"`
	Type   SyncType  `json:"type"`
	SentAt time.Time `json:"sentAt"`
}

// DeadLetter is a queue item that exhausted its retries
type DeadLetter struct {
	Item      QueueItem `json:"item"`
	LastError string    `json:"lastError"`
	DeadAt    time.Time `json:"deadAt"`
}

// QueueStats summarises the sync queue state
type QueueStats struct {
	Pending     int `json:"pending"`
	Sent        int `json:"sent"`
	DeadLetters int `json:"deadLetters"`
}

// RemoteSnapshot is the canonical state returned by the remote list endpoint
type RemoteSnapshot struct {
	Orders          []Order          `json:"orders"`
	Deposits        []DepositRequest `json:"deposits"`
	Users           []UserProfile    `json:"users"`
	Rates           []Rate           `json:"rates"`
	PaymentMethods  []PaymentMethod  `json:"paymentMethods"`
	PlatformDeposit *PlatformDeposit `json:"platformDeposit"`
}

// MergeResult counts the records taken from the remote side during a merge
type MergeResult struct {
	Orders          int `json:"orders"`
	Deposits        int `json:"deposits"`
	Users           int `json:"users"`
	Rates           int `json:"rates"`
	PaymentMethods  int `json:"paymentMethods"`
	PlatformDeposit int `json:"platformDeposit"`
}
