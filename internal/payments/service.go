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

package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/store"

	"github.com/google/uuid"
)

const KeyPaymentMethods = "PAYMENT_METHODS"

var ErrPaymentMethodNotFound = errors.New("payment method not found")

// Service stores users' payment methods, keeping at most one default per user
type Service struct {
	kv  store.KeyValueStore
	now func() time.Time
}

func NewService(kv store.KeyValueStore) *Service {
	return &Service{
		kv:  kv,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// List returns every live method; removed methods are left out
func (s *Service) List(ctx context.Context) ([]models.PaymentMethod, error) {
	var stored []models.PaymentMethod
	if _, err := store.GetJSON(ctx, s.kv, KeyPaymentMethods, &stored); err != nil {
		return nil, err
	}
	list := stored[:0]
	for _, pm := range stored {
		if !pm.Deleted {
			list = append(list, pm)
		}
	}
	return list, nil
}

func (s *Service) ListForUser(ctx context.Context, username string) ([]models.PaymentMethod, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var mine []models.PaymentMethod
	for _, pm := range list {
		if pm.Username == username {
			mine = append(mine, pm)
		}
	}
	return mine, nil
}

func (s *Service) Get(ctx context.Context, username, id string) (*models.PaymentMethod, error) {
	list, err := s.ListForUser(ctx, username)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Id == id {
			return &list[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPaymentMethodNotFound, id)
}

// Default returns the user's default method, or nil when none is set
func (s *Service) Default(ctx context.Context, username string) (*models.PaymentMethod, error) {
	list, err := s.ListForUser(ctx, username)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].IsDefault {
			return &list[i], nil
		}
	}
	return nil, nil
}

// Add stores a new method. The user's first method becomes the default.
func (s *Service) Add(ctx context.Context, pm models.PaymentMethod) (*models.PaymentMethod, error) {
	now := s.now()
	if pm.Id == "" {
		pm.Id = uuid.New().String()
	}
	pm.CreatedAt = now
	pm.UpdatedAt = now
	if err := models.Validate(pm); err != nil {
		return nil, err
	}

	err := store.UpdateJSON(ctx, s.kv, KeyPaymentMethods, func(list *[]models.PaymentMethod) error {
		hasOwn := false
		for _, existing := range *list {
			if existing.Id == pm.Id {
				return fmt.Errorf("duplicate payment method id: %s", pm.Id)
			}
			if existing.Username == pm.Username && !existing.Deleted {
				hasOwn = true
			}
		}
		if !hasOwn {
			pm.IsDefault = true
		}
		*list = NormalizeDefaults(append(*list, pm))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &pm, nil
}

// Update replaces the editable fields of an existing method
func (s *Service) Update(ctx context.Context, pm models.PaymentMethod) (*models.PaymentMethod, error) {
	var updated models.PaymentMethod
	err := store.UpdateJSON(ctx, s.kv, KeyPaymentMethods, func(list *[]models.PaymentMethod) error {
		for i := range *list {
			existing := (*list)[i]
			if existing.Id != pm.Id || existing.Username != pm.Username || existing.Deleted {
				continue
			}
			existing.Kind = pm.Kind
			existing.Label = pm.Label
			existing.Account = pm.Account
			existing.HolderName = pm.HolderName
			existing.IsDefault = pm.IsDefault
			existing.UpdatedAt = s.now()
			if err := models.Validate(existing); err != nil {
				return err
			}
			(*list)[i] = existing
			updated = existing
			*list = NormalizeDefaults(*list)
			return nil
		}
		return fmt.Errorf("%w: %s", ErrPaymentMethodNotFound, pm.Id)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Remove tombstones a method; when it was the default the newest remaining one takes over.
// The returned record is the tombstone, which must be synced like any other change.
func (s *Service) Remove(ctx context.Context, username, id string) (*models.PaymentMethod, error) {
	var removed *models.PaymentMethod
	err := store.UpdateJSON(ctx, s.kv, KeyPaymentMethods, func(list *[]models.PaymentMethod) error {
		now := s.now()
		wasDefault := false
		for i := range *list {
			pm := &(*list)[i]
			if pm.Id != id || pm.Username != username || pm.Deleted {
				continue
			}
			wasDefault = pm.IsDefault
			pm.Deleted = true
			pm.IsDefault = false
			pm.UpdatedAt = now
			tombstone := *pm
			removed = &tombstone
			break
		}
		if removed == nil {
			return fmt.Errorf("%w: %s", ErrPaymentMethodNotFound, id)
		}
		if wasDefault {
			promoteNewest(*list, username, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// SetDefault marks id as the user's only default method
func (s *Service) SetDefault(ctx context.Context, username, id string) (*models.PaymentMethod, error) {
	var updated models.PaymentMethod
	err := store.UpdateJSON(ctx, s.kv, KeyPaymentMethods, func(list *[]models.PaymentMethod) error {
		found := false
		now := s.now()
		for i := range *list {
			pm := &(*list)[i]
			if pm.Username != username || pm.Deleted {
				continue
			}
			if pm.Id == id {
				pm.IsDefault = true
				pm.UpdatedAt = now
				updated = *pm
				found = true
			} else if pm.IsDefault {
				pm.IsDefault = false
				pm.UpdatedAt = now
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrPaymentMethodNotFound, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Replace swaps the whole list for the result of fn, atomically
func (s *Service) Replace(ctx context.Context, fn func(current []models.PaymentMethod) []models.PaymentMethod) error {
	return store.UpdateJSON(ctx, s.kv, KeyPaymentMethods, func(list *[]models.PaymentMethod) error {
		*list = NormalizeDefaults(fn(*list))
		return nil
	})
}

// NormalizeDefaults leaves at most one default per user: the most recently
// updated one, ties going to the greater id. The others are demoted, and a
// removed method is never a default.
func NormalizeDefaults(list []models.PaymentMethod) []models.PaymentMethod {
	winner := map[string]int{}
	for i := range list {
		if list[i].Deleted {
			list[i].IsDefault = false
		}
	}
	for i, pm := range list {
		if !pm.IsDefault {
			continue
		}
		j, ok := winner[pm.Username]
		if !ok || newer(pm, list[j]) {
			winner[pm.Username] = i
		}
	}
	for i := range list {
		if list[i].IsDefault && winner[list[i].Username] != i {
			list[i].IsDefault = false
		}
	}
	return list
}

func newer(a, b models.PaymentMethod) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.Id > b.Id
}

func promoteNewest(list []models.PaymentMethod, username string, now time.Time) {
	idx := -1
	for i := range list {
		if list[i].Username != username || list[i].Deleted {
			continue
		}
		if idx < 0 || newer(list[i], list[idx]) {
			idx = i
		}
	}
	if idx >= 0 {
		list[idx].IsDefault = true
		list[idx].UpdatedAt = now
	}
}
