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

package remotestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"trading-hall-sync-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

var t0 = time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

func record(typ models.SyncType, key, body string, updated time.Time) models.SyncedRecord {
	return models.SyncedRecord{
		Type:      typ,
		Key:       key,
		Body:      []byte(body),
		UpdatedAt: updated,
		SyncedAt:  updated.Add(time.Second),
	}
}

func setupGormTest(t *testing.T) (Repository, func()) {
	repo, err := NewGormRepository(sqlite.Open(":memory:"))
	require.NoError(t, err)
	return repo, func() { _ = repo.Close() }
}

// exerciseRepository runs the shared contract against any backend
func exerciseRepository(t *testing.T, repo Repository) {
	ctx := context.Background()

	written, err := repo.Upsert(ctx, record(models.SyncTypeOrder, "o-1", `{"status":"pending_admin_review"}`, t0))
	require.NoError(t, err)
	assert.True(t, written)

	written, err = repo.Upsert(ctx, record(models.SyncTypeOrder, "o-1", `{"status":"approved_payout"}`, t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, written, "newer record should replace the stored one")

	written, err = repo.Upsert(ctx, record(models.SyncTypeOrder, "o-1", `{"status":"rejected_payout"}`, t0))
	require.NoError(t, err)
	assert.False(t, written, "older record should be ignored")

	written, err = repo.Upsert(ctx, record(models.SyncTypeOrder, "o-1", `{"status":"completed"}`, t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.False(t, written, "equal timestamp keeps the stored record")

	got, err := repo.Get(ctx, models.SyncTypeOrder, "o-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"approved_payout"}`, string(got.Body))
	assert.True(t, got.UpdatedAt.Equal(t0.Add(time.Minute)))

	_, err = repo.Get(ctx, models.SyncTypeOrder, "missing")
	assert.True(t, errors.Is(err, ErrRecordNotFound))

	for i := 0; i < 5; i++ {
		_, err := repo.Upsert(ctx, record(models.SyncTypeUser, fmt.Sprintf("user%d", i), `{}`, t0.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	users, err := repo.List(ctx, models.SyncTypeUser, 3)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "user4", users[0].Key)
	assert.Equal(t, "user2", users[2].Key)

	orders, err := repo.List(ctx, models.SyncTypeOrder, 0)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestGormRepository_LastWriteWins(t *testing.T) {
	repo, cleanup := setupGormTest(t)
	defer cleanup()
	exerciseRepository(t, repo)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), models.ServerConfig{Repository: "cassandra"})
	assert.Error(t, err)

	_, err = Open(context.Background(), models.ServerConfig{Repository: BackendMongo})
	assert.Error(t, err, "mongo without a uri should fail fast")
}

func TestMongoRepository_LastWriteWins(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}

	ctx := context.Background()
	database := fmt.Sprintf("sync_test_%d", time.Now().UnixNano())
	repo, err := NewMongoRepository(ctx, uri, database)
	require.NoError(t, err)
	defer func() {
		_ = repo.client.Database(database).Drop(ctx)
		_ = repo.Close()
	}()

	exerciseRepository(t, repo)
}
