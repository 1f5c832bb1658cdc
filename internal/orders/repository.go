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

package orders

import (
	"context"
	"errors"
	"fmt"

	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/store"
)

const KeyLocalOrders = "LOCAL_ORDERS"

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("duplicate order id")
)

// Repository persists orders as a single list, newest first
type Repository struct {
	kv store.KeyValueStore
}

func NewRepository(kv store.KeyValueStore) *Repository {
	return &Repository{kv: kv}
}

func (r *Repository) List(ctx context.Context) ([]models.Order, error) {
	var list []models.Order
	if _, err := store.GetJSON(ctx, r.kv, KeyLocalOrders, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ListOrders satisfies consumers that only need read access
func (r *Repository) ListOrders(ctx context.Context) ([]models.Order, error) {
	return r.List(ctx)
}

func (r *Repository) ListForUser(ctx context.Context, username string) ([]models.Order, error) {
	list, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var mine []models.Order
	for _, o := range list {
		if o.CreatorUsername == username {
			mine = append(mine, o)
		}
	}
	return mine, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Order, error) {
	list, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Id == id {
			return &list[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
}

func (r *Repository) Insert(ctx context.Context, order models.Order) error {
	return store.UpdateJSON(ctx, r.kv, KeyLocalOrders, func(list *[]models.Order) error {
		for _, o := range *list {
			if o.Id == order.Id {
				return fmt.Errorf("%w: %s", ErrDuplicateOrder, order.Id)
			}
		}
		*list = append([]models.Order{order}, *list...)
		return nil
	})
}

// Update applies fn to the freshly loaded order and stores the result atomically
func (r *Repository) Update(ctx context.Context, id string, fn func(o *models.Order) error) (*models.Order, error) {
	var updated models.Order
	err := store.UpdateJSON(ctx, r.kv, KeyLocalOrders, func(list *[]models.Order) error {
		for i := range *list {
			if (*list)[i].Id != id {
				continue
			}
			o := (*list)[i]
			if err := fn(&o); err != nil {
				return err
			}
			(*list)[i] = o
			updated = o
			return nil
		}
		return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Replace swaps the whole list for the result of fn, atomically
func (r *Repository) Replace(ctx context.Context, fn func(current []models.Order) []models.Order) error {
	return store.UpdateJSON(ctx, r.kv, KeyLocalOrders, func(list *[]models.Order) error {
		*list = fn(*list)
		return nil
	})
}
