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

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound               = errors.New("key not found")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrEmptyKey               = errors.New("key cannot be empty")
)

// UpdateFunc receives the current value (nil when absent) and returns the value to store.
// Returning a nil slice removes the key. It must not call back into the store.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// KeyValueStore defines the contract that every local backend (SQLite, Badger, ...) must satisfy.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Update performs an atomic read-modify-write of a single key.
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// --- Lifecycle ---
	Close()
}

// GetJSON decodes the value stored at key into out. It reports false when the key is absent.
func GetJSON(ctx context.Context, kv KeyValueStore, key string, out interface{}) (bool, error) {
	raw, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("unable to decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key
func SetJSON(ctx context.Context, kv KeyValueStore, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("unable to encode %s: %w", key, err)
	}
	return kv.Set(ctx, key, raw)
}

// UpdateJSON atomically decodes the value at key into a T (zero value when absent),
// lets fn mutate it and stores the result.
func UpdateJSON[T any](ctx context.Context, kv KeyValueStore, key string, fn func(v *T) error) error {
	return kv.Update(ctx, key, func(current []byte, exists bool) ([]byte, error) {
		var v T
		if exists {
			if err := json.Unmarshal(current, &v); err != nil {
				return nil, fmt.Errorf("unable to decode %s: %w", key, err)
			}
		}
		if err := fn(&v); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("unable to encode %s: %w", key, err)
		}
		return raw, nil
	})
}
