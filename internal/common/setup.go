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

package common

import (
	"context"
	"fmt"
	"log"
	"strings"

	"trading-hall-sync-go/internal/api"
	"trading-hall-sync-go/internal/assets"
	"trading-hall-sync-go/internal/badgerkv"
	"trading-hall-sync-go/internal/commission"
	"trading-hall-sync-go/internal/database"
	"trading-hall-sync-go/internal/deposits"
	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/orders"
	"trading-hall-sync-go/internal/payments"
	"trading-hall-sync-go/internal/platform"
	"trading-hall-sync-go/internal/referral"
	"trading-hall-sync-go/internal/store"
	"trading-hall-sync-go/internal/syncqueue"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	KVBackendSqlite = "sqlite"
	KVBackendBadger = "badger"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services bundles everything a command needs to run trading workflows against the local store
type Services struct {
	Store   store.KeyValueStore
	Trading *api.TradingService
	Queue   *syncqueue.Queue
	Merger  *syncqueue.Merger

	Referral *referral.Service
	Assets   *assets.Service
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// OpenStore opens the local key-value backend selected by cfg.KV.Backend
func OpenStore(ctx context.Context, cfg *models.Config) (store.KeyValueStore, error) {
	switch strings.ToLower(cfg.KV.Backend) {
	case "", KVBackendSqlite:
		svc, err := database.NewService(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return svc, nil
	case KVBackendBadger:
		svc, err := badgerkv.NewService(cfg.Badger)
		if err != nil {
			return nil, err
		}
		return svc, nil
	default:
		return nil, fmt.Errorf("unknown KV backend %q (expected %s or %s)", cfg.KV.Backend, KVBackendSqlite, KVBackendBadger)
	}
}

func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	kv, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	zap.L().Info("Opened local store", zap.String("backend", cfg.KV.Backend))

	services, err := NewServices(kv, cfg)
	if err != nil {
		kv.Close()
		return nil, err
	}
	return services, nil
}

// NewServices wires every domain service on top of an already opened store
func NewServices(kv store.KeyValueStore, cfg *models.Config) (*Services, error) {
	defaults, err := LoadPlatformDefaults(cfg.Platform)
	if err != nil {
		return nil, err
	}

	queue, err := syncqueue.New(kv, cfg.Sync)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync queue: %w", err)
	}
	if !queue.RemoteConfigured() {
		zap.L().Info("No sync remote configured, running local-only")
	}

	orderRepo := orders.NewRepository(kv)
	depositRepo := deposits.NewRepository(kv)
	referralService := referral.NewService(kv)
	commissionService := commission.NewService(kv, referralService)
	assetService := assets.NewService(kv, orderRepo, commissionService)
	paymentService := payments.NewService(kv)
	platformService := platform.NewService(kv, defaults)

	trading := api.NewTradingService(api.Services{
		Orders:      orderRepo,
		Deposits:    depositRepo,
		Referral:    referralService,
		Commissions: commissionService,
		Assets:      assetService,
		Payments:    paymentService,
		Platform:    platformService,
		Sync:        queue,
	}, cfg.Platform, cfg.Admin.Usernames)

	return &Services{
		Store:    kv,
		Trading:  trading,
		Queue:    queue,
		Merger:   syncqueue.NewMerger(orderRepo, depositRepo, referralService, paymentService, platformService),
		Referral: referralService,
		Assets:   assetService,
	}, nil
}

func (cs *Services) Close() {
	if cs.Queue != nil {
		cs.Queue.Wait()
	}
	if cs.Store != nil {
		cs.Store.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
