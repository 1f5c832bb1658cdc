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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"trading-hall-sync-go/internal/models"

	"github.com/shopspring/decimal"
)

const minSecretLength = 12

func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}

	pingTimeout, err := getEnvDuration("DB_PING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	baseBackoff, err := getEnvDuration("SYNC_BASE_BACKOFF", 5*time.Second)
	if err != nil {
		return nil, err
	}

	backoffCap, err := getEnvDuration("SYNC_BACKOFF_CAP", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	drainInterval, err := getEnvDuration("SYNC_DRAIN_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, err
	}

	pullInterval, err := getEnvDuration("SYNC_PULL_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	httpTimeout, err := getEnvDuration("SYNC_HTTP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	maxSkew, err := getEnvDuration("SERVER_MAX_SKEW", 120*time.Second)
	if err != nil {
		return nil, err
	}

	minOrder, err := getEnvDecimal("MIN_ORDER_AMOUNT", decimal.NewFromInt(200))
	if err != nil {
		return nil, err
	}

	serviceFee, err := getEnvDecimal("SERVICE_FEE_RATE", decimal.RequireFromString("0.02"))
	if err != nil {
		return nil, err
	}

	grabFee, err := getEnvDecimal("GRABBING_FEE_RATE", decimal.RequireFromString("0.03"))
	if err != nil {
		return nil, err
	}

	secret := getEnvString("SYNC_SECRET", "")
	if secret != "" && len(secret) < minSecretLength {
		return nil, fmt.Errorf("SYNC_SECRET must be at least %d characters", minSecretLength)
	}

	cfg := &models.Config{
		KV: models.KVConfig{
			Backend: getEnvString("KV_BACKEND", "sqlite"),
		},
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "trading_hall.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			UpdateRetries:   getEnvInt("DB_UPDATE_RETRIES", 5),
		},
		Badger: models.BadgerConfig{
			Dir:        getEnvString("BADGER_DIR", "badger-data"),
			InMemory:   getEnvBool("BADGER_IN_MEMORY", false),
			SyncWrites: getEnvBool("BADGER_SYNC_WRITES", true),
		},
		Sync: models.SyncConfig{
			RemoteBaseURL:    strings.TrimRight(getEnvString("SYNC_REMOTE_BASE_URL", ""), "/"),
			Secret:           secret,
			MaxRetry:         getEnvInt("SYNC_MAX_RETRY", 5),
			BaseBackoff:      baseBackoff,
			BackoffFactor:    getEnvFloat("SYNC_BACKOFF_FACTOR", 3),
			BackoffCap:       backoffCap,
			SentHistoryLimit: getEnvInt("SYNC_SENT_HISTORY_LIMIT", 100),
			DrainInterval:    drainInterval,
			PullInterval:     pullInterval,
			HTTPTimeout:      httpTimeout,
			AutoDrain:        getEnvBool("SYNC_AUTO_DRAIN", true),
			MetricsAddr:      getEnvString("SYNC_METRICS_ADDR", ""),
		},
		Server: models.ServerConfig{
			Addr:           getEnvString("SERVER_ADDR", ":8080"),
			SyncSecret:     secret,
			AdminSecret:    getEnvString("ADMIN_PANEL_SECRET", secret),
			MaxSkew:        maxSkew,
			ListLimit:      getEnvInt("SERVER_LIST_LIMIT", 200),
			Repository:     getEnvString("SERVER_REPOSITORY", "gorm-sqlite"),
			DSN:            getEnvString("SERVER_DSN", "sync_server.db"),
			MongoURI:       getEnvString("MONGODB_URI", "mongodb://localhost:27017"),
			MongoDatabase:  getEnvString("MONGODB_DATABASE", "trading_hall"),
			RateLimit:      getEnvFloat("SERVER_RATE_LIMIT", 50),
			RateBurst:      getEnvInt("SERVER_RATE_BURST", 100),
			AllowedOrigins: getEnvList("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Platform: models.PlatformSettings{
			File:           getEnvString("PLATFORM_FILE", "platform.yaml"),
			MinOrderAmount: minOrder,
			ServiceFeeRate: serviceFee,
			GrabFeeRate:    grabFee,
		},
		Admin: models.AdminConfig{
			Usernames: getEnvList("ADMIN_USERNAMES", []string{"admin"}),
		},
	}

	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	if value := os.Getenv(key); value != "" {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
		}
		return d, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
