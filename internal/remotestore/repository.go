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

	"trading-hall-sync-go/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
)

const (
	BackendGormSqlite   = "gorm-sqlite"
	BackendGormPostgres = "gorm-postgres"
	BackendMongo        = "mongo"

	DefaultMongoDatabase = "trading_hall_sync"
	collectionName       = "synced_records"
)

var ErrRecordNotFound = errors.New("synced record not found")

// Repository stores the latest version of every record received by the sync server
type Repository interface {
	// Upsert stores rec unless a record with the same type and key is at least as new.
	// It reports whether rec was written.
	Upsert(ctx context.Context, rec models.SyncedRecord) (bool, error)
	// List returns up to limit records of typ, most recently updated first.
	List(ctx context.Context, typ models.SyncType, limit int) ([]models.SyncedRecord, error)
	Get(ctx context.Context, typ models.SyncType, key string) (*models.SyncedRecord, error)
	Close() error
}

// Open builds the repository selected by cfg.Repository
func Open(ctx context.Context, cfg models.ServerConfig) (Repository, error) {
	switch cfg.Repository {
	case "", BackendGormSqlite:
		return NewGormRepository(sqlite.Open(cfg.DSN))
	case BackendGormPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres repository requires SERVER_DSN")
		}
		return NewGormRepository(postgres.Open(cfg.DSN))
	case BackendMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("mongo repository requires MONGODB_URI")
		}
		database := cfg.MongoDatabase
		if database == "" {
			database = DefaultMongoDatabase
		}
		return NewMongoRepository(ctx, cfg.MongoURI, database)
	default:
		return nil, fmt.Errorf("unknown server repository %q", cfg.Repository)
	}
}
