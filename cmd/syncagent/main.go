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
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-hall-sync-go/internal/agent"
	"trading-hall-sync-go/internal/common"
	"trading-hall-sync-go/internal/config"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		zap.L().Info("Serving agent metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

func main() {
	requeue := flag.Bool("requeue", false, "Move dead-lettered records back onto the queue before starting")
	once := flag.Bool("once", false, "Pull and drain a single time, then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting trading hall sync agent")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if *requeue {
		n, err := services.Queue.RequeueDeadLetters(ctx)
		if err != nil {
			zap.L().Fatal("Failed to requeue dead letters", zap.Error(err))
		}
		zap.L().Info("Requeued dead letters", zap.Int("count", n))
	}

	if cfg.Sync.MetricsAddr != "" {
		metricsServer := startMetricsServer(cfg.Sync.MetricsAddr)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	syncAgent := agent.NewSyncAgent(agent.SyncAgentConfig{
		Queue:         services.Queue,
		Merger:        services.Merger,
		DrainInterval: cfg.Sync.DrainInterval,
		PullInterval:  cfg.Sync.PullInterval,
	})

	if *once {
		if err := syncAgent.SyncOnce(ctx); err != nil {
			zap.L().Fatal("Sync failed", zap.Error(err))
		}
		stats, err := services.Queue.Stats(ctx)
		if err == nil {
			zap.L().Info("Sync complete",
				zap.Int("pending", stats.Pending),
				zap.Int("sent", stats.Sent),
				zap.Int("dead_letters", stats.DeadLetters))
		}
		return
	}

	if err := syncAgent.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start sync agent", zap.Error(err))
	}

	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping sync agent...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		syncAgent.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Sync agent stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
