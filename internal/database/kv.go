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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"trading-hall-sync-go/internal/store"

	"go.uber.org/zap"
)

func (s *Service) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, store.ErrEmptyKey
	}

	var value []byte
	var version int64
	err := s.db.QueryRowContext(ctx, queryGetValue, key).Scan(&value, &version)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func (s *Service) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return store.ErrEmptyKey
	}

	if _, err := s.db.ExecContext(ctx, queryUpsertValue, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *Service) Remove(ctx context.Context, key string) error {
	if key == "" {
		return store.ErrEmptyKey
	}

	if _, err := s.db.ExecContext(ctx, queryDeleteValue, key); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys starting with prefix, in key order
func (s *Service) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, queryListKeys, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Update retries the read-modify-write when a concurrent writer bumped the version first
func (s *Service) Update(ctx context.Context, key string, fn store.UpdateFunc) error {
	if key == "" {
		return store.ErrEmptyKey
	}

	var err error
	for attempt := 1; attempt <= s.updateRetries; attempt++ {
		err = s.updateOnce(ctx, key, fn)
		if !errors.Is(err, store.ErrConcurrentModification) {
			return err
		}
		zap.L().Warn("Concurrent modification, retrying update",
			zap.String("key", key),
			zap.Int("attempt", attempt))
	}
	return err
}

func (s *Service) updateOnce(ctx context.Context, key string, fn store.UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current []byte
	var version int64
	exists := true
	err = tx.QueryRowContext(ctx, queryGetValue, key).Scan(&current, &version)
	if err == sql.ErrNoRows {
		exists = false
	} else if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}

	next, err := fn(current, exists)
	if err != nil {
		return err
	}

	var result sql.Result
	now := time.Now().UTC()
	switch {
	case next == nil && !exists:
		return nil
	case next == nil:
		result, err = tx.ExecContext(ctx, queryDeleteValueVersion, key, version)
	case exists:
		result, err = tx.ExecContext(ctx, queryUpdateValue, next, now, key, version)
	default:
		result, err = tx.ExecContext(ctx, queryInsertValue, key, next, now)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("update of %s failed - %w", key, store.ErrConcurrentModification)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
