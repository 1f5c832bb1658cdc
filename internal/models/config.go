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
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	KV       KVConfig
	Database DatabaseConfig
	Badger   BadgerConfig
	Sync     SyncConfig
	Server   ServerConfig
	Platform PlatformSettings
	Admin    AdminConfig
}

// KVConfig selects the local key-value backend ("sqlite" or "badger")
type KVConfig struct {
	Backend string
}

// DatabaseConfig holds SQLite connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	UpdateRetries   int
}

// BadgerConfig holds badger settings for the alternate KV backend
type BadgerConfig struct {
	Dir        string
	InMemory   bool
	SyncWrites bool
}

// SyncConfig holds outbound sync queue settings
type SyncConfig struct {
	RemoteBaseURL    string
	Secret           string
	MaxRetry         int
	BaseBackoff      time.Duration
	BackoffFactor    float64
	BackoffCap       time.Duration
	SentHistoryLimit int
	DrainInterval    time.Duration
	PullInterval     time.Duration
	HTTPTimeout      time.Duration
	AutoDrain        bool
	MetricsAddr      string
}

// ServerConfig holds sync server settings
type ServerConfig struct {
	Addr           string
	SyncSecret     string
	AdminSecret    string
	MaxSkew        time.Duration
	ListLimit      int
	Repository     string // gorm-sqlite, gorm-postgres, mongo
	DSN            string
	MongoURI       string
	MongoDatabase  string
	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string
}

// PlatformSettings holds platform defaults applied when nothing is persisted yet
type PlatformSettings struct {
	File           string
	MinOrderAmount decimal.Decimal
	ServiceFeeRate decimal.Decimal
	GrabFeeRate    decimal.Decimal
}

// AdminConfig lists the usernames allowed to run admin workflows
type AdminConfig struct {
	Usernames []string
}
