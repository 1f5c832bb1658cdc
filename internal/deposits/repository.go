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

package deposits

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/store"
)

const KeyDepositRequests = "DEPOSIT_REQUESTS"

var (
	ErrDepositNotFound  = errors.New("deposit request not found")
	ErrDuplicateDeposit = errors.New("duplicate deposit id")
)

// Repository persists deposit requests as a single list
type Repository struct {
	kv store.KeyValueStore
}

func NewRepository(kv store.KeyValueStore) *Repository {
	return &Repository{kv: kv}
}

// List returns all deposit requests, newest first
func (r *Repository) List(ctx context.Context) ([]models.DepositRequest, error) {
	var list []models.DepositRequest
	if _, err := store.GetJSON(ctx, r.kv, KeyDepositRequests, &list); err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (r *Repository) ListForUser(ctx context.Context, username string) ([]models.DepositRequest, error) {
	list, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var mine []models.DepositRequest
	for _, d := range list {
		if d.Username == username {
			mine = append(mine, d)
		}
	}
	return mine, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.DepositRequest, error) {
	list, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Id == id {
			return &list[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDepositNotFound, id)
}

func (r *Repository) Insert(ctx context.Context, deposit models.DepositRequest) error {
	return store.UpdateJSON(ctx, r.kv, KeyDepositRequests, func(list *[]models.DepositRequest) error {
		for _, d := range *list {
			if d.Id == deposit.Id {
				return fmt.Errorf("%w: %s", ErrDuplicateDeposit, deposit.Id)
			}
		}
		*list = append([]models.DepositRequest{deposit}, *list...)
		return nil
	})
}

// Update applies fn to the freshly loaded request and stores the result atomically
func (r *Repository) Update(ctx context.Context, id string, fn func(d *models.DepositRequest) error) (*models.DepositRequest, error) {
	var updated models.DepositRequest
	err := store.UpdateJSON(ctx, r.kv, KeyDepositRequests, func(list *[]models.DepositRequest) error {
		for i := range *list {
			if (*list)[i].Id != id {
				continue
			}
			d := (*list)[i]
			if err := fn(&d); err != nil {
				return err
			}
			(*list)[i] = d
			updated = d
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDepositNotFound, id)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Replace swaps the whole list for the result of fn, atomically
func (r *Repository) Replace(ctx context.Context, fn func(current []models.DepositRequest) []models.DepositRequest) error {
	return store.UpdateJSON(ctx, r.kv, KeyDepositRequests, func(list *[]models.DepositRequest) error {
		*list = fn(*list)
		return nil
	})
}
