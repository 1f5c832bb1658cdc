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

package badgerkv

import (
	"context"
	"errors"
	"fmt"

	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/store"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.KeyValueStore.
var _ store.KeyValueStore = (*Service)(nil)

const maxConflictRetries = 5

// Service is a disk-backed key/value store on BadgerDB
type Service struct {
	db *badger.DB
}

func NewService(cfg models.BadgerConfig) (*Service, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger directory cannot be empty")
	}

	opts := badger.DefaultOptions(cfg.Dir).WithSyncWrites(cfg.SyncWrites)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil // disable internal logging

	zap.L().Info("Opening badger store",
		zap.String("dir", cfg.Dir),
		zap.Bool("in_memory", cfg.InMemory))
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &Service{db: db}, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close badger store", zap.Error(err))
	}
}

func (s *Service) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, store.ErrEmptyKey
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func (s *Service) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return store.ErrEmptyKey
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *Service) Remove(_ context.Context, key string) error {
	if key == "" {
		return store.ErrEmptyKey
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

func (s *Service) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

// Update runs fn inside a badger transaction, retrying when another writer
// committed the same key first.
func (s *Service) Update(_ context.Context, key string, fn store.UpdateFunc) error {
	if key == "" {
		return store.ErrEmptyKey
	}

	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			var current []byte
			exists := true
			item, err := txn.Get([]byte(key))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				exists = false
			case err != nil:
				return err
			default:
				if current, err = item.ValueCopy(nil); err != nil {
					return err
				}
			}

			next, err := fn(current, exists)
			if err != nil {
				return err
			}
			if next == nil {
				if !exists {
					return nil
				}
				return txn.Delete([]byte(key))
			}
			return txn.Set([]byte(key), next)
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		zap.L().Warn("Badger transaction conflict, retrying update",
			zap.String("key", key),
			zap.Int("attempt", attempt))
	}
	return fmt.Errorf("update of %s failed - %w", key, store.ErrConcurrentModification)
}
