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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-hall-sync-go/internal/common"
	"trading-hall-sync-go/internal/config"
	"trading-hall-sync-go/internal/remotestore"
	"trading-hall-sync-go/internal/syncserver"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	if cfg.Server.SyncSecret == "" {
		zap.L().Warn("SYNC_SECRET is not set, every sync request will be rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Opening sync repository", zap.String("repository", cfg.Server.Repository))
	repo, err := remotestore.Open(ctx, cfg.Server)
	if err != nil {
		zap.L().Fatal("Failed to open sync repository", zap.Error(err))
	}
	defer func() {
		if err := repo.Close(); err != nil {
			zap.L().Warn("Failed to close sync repository", zap.Error(err))
		}
	}()

	server := syncserver.New(cfg.Server, repo, logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, stopping sync server...")
	case err := <-errChan:
		if err != nil {
			zap.L().Error("Sync server failed", zap.Error(err))
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("Forced shutdown after timeout", zap.Error(err))
		return
	}
	zap.L().Info("Sync server stopped gracefully")
}
