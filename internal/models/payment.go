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

import "time"

// PaymentMethod is a payout destination owned by a user
type PaymentMethod struct {
	Id         string `json:"id" validate:"required"`
	Username   string `json:"username" validate:"required"`
	Kind       string `json:"kind" validate:"required"`
	Label      string `json:"label,omitempty"`
	Account    string `json:"account" validate:"required"`
	HolderName string `json:"holderName,omitempty"`
	IsDefault  bool   `json:"isDefault"`
	// Deleted marks a removed method. The record is kept so the removal wins LWW merges.
	Deleted   bool      `json:"deleted,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
