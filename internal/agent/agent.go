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

package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/syncqueue"

	"go.uber.org/zap"
)

const (
	DefaultDrainInterval = 15 * time.Second
	DefaultPullInterval  = 5 * time.Minute
)

// Queue is the part of the sync queue the agent drives
type Queue interface {
	RemoteConfigured() bool
	Drain(ctx context.Context) (syncqueue.DrainResult, error)
	FetchRemoteLatest(ctx context.Context) (*models.RemoteSnapshot, error)
}

// Merger folds remote state into the local store
type Merger interface {
	MergeRemoteData(ctx context.Context, snapshot *models.RemoteSnapshot) (models.MergeResult, error)
}

// SyncAgentConfig contains configuration for SyncAgent
type SyncAgentConfig struct {
	Queue         Queue
	Merger        Merger
	DrainInterval time.Duration
	PullInterval  time.Duration
	// Quiet suppresses the console status lines
	Quiet bool
}

// SyncAgent drains the outbound queue on an interval and periodically pulls remote state
type SyncAgent struct {
	queue         Queue
	merger        Merger
	drainInterval time.Duration
	pullInterval  time.Duration
	quiet         bool

	mutex    sync.Mutex
	lastPull time.Time
	stats    Stats

	// Control channels
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// Stats counts what the agent has done since start
type Stats struct {
	Drains       int
	Sent         int
	Failed       int
	DeadLettered int
	Pulls        int
	PullErrors   int
	Merged       int
}

func NewSyncAgent(cfg SyncAgentConfig) *SyncAgent {
	drain := cfg.DrainInterval
	if drain <= 0 {
		drain = DefaultDrainInterval
	}
	pull := cfg.PullInterval
	if pull <= 0 {
		pull = DefaultPullInterval
	}
	return &SyncAgent{
		queue:         cfg.Queue,
		merger:        cfg.Merger,
		drainInterval: drain,
		pullInterval:  pull,
		quiet:         cfg.Quiet,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start runs an initial pull and drain, then continues in the background
func (a *SyncAgent) Start(ctx context.Context) error {
	if !a.queue.RemoteConfigured() {
		return fmt.Errorf("sync agent requires a remote: %w", syncqueue.ErrRemoteNotConfigured)
	}

	zap.L().Info("Starting sync agent",
		zap.Duration("drain_interval", a.drainInterval),
		zap.Duration("pull_interval", a.pullInterval))

	// Pull first so local state catches up with what other devices changed while we were offline.
	_ = a.pull(ctx)

	go a.pollLoop(ctx)
	return nil
}

// Stop gracefully stops the agent and waits for the loop to exit
func (a *SyncAgent) Stop() {
	zap.L().Info("Stopping sync agent")
	a.stopOnce.Do(func() { close(a.stopChan) })
	<-a.doneChan
	zap.L().Info("Sync agent stopped")
}

func (a *SyncAgent) Stats() Stats {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.stats
}

// pollLoop runs the main loop
func (a *SyncAgent) pollLoop(ctx context.Context) {
	defer close(a.doneChan)

	drainTicker := time.NewTicker(a.drainInterval)
	defer drainTicker.Stop()
	pullTicker := time.NewTicker(a.pullInterval)
	defer pullTicker.Stop()

	a.drain(ctx)

	for {
		select {
		case <-drainTicker.C:
			a.drain(ctx)
		case <-pullTicker.C:
			_ = a.pull(ctx)
		case <-a.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ANSI color helpers for console output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func (a *SyncAgent) drain(ctx context.Context) {
	result, err := a.queue.Drain(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			zap.L().Error("Drain failed", zap.Error(err))
			a.printf("%s✗ drain failed: %s%s\n", colorRed, err, colorReset)
		}
		return
	}
	a.record(result)
}

func (a *SyncAgent) record(result syncqueue.DrainResult) {
	if result.Skipped {
		return
	}

	a.mutex.Lock()
	a.stats.Drains++
	a.stats.Sent += result.Sent
	a.stats.Failed += result.Failed
	a.stats.DeadLettered += result.DeadLettered
	a.mutex.Unlock()

	switch {
	case result.DeadLettered > 0:
		a.printf("%s✗ sent %d, failed %d, dead-lettered %d%s\n", colorRed, result.Sent, result.Failed, result.DeadLettered, colorReset)
	case result.Failed > 0:
		a.printf("%s~ sent %d, failed %d, deferred %d%s\n", colorYellow, result.Sent, result.Failed, result.Deferred, colorReset)
	case result.Sent > 0:
		a.printf("%s✓ sent %d%s\n", colorGreen, result.Sent, colorReset)
	}
}

// SyncOnce pulls remote state and drains the queue once, without starting the loop
func (a *SyncAgent) SyncOnce(ctx context.Context) error {
	if !a.queue.RemoteConfigured() {
		return fmt.Errorf("sync requires a remote: %w", syncqueue.ErrRemoteNotConfigured)
	}
	if err := a.pull(ctx); err != nil {
		return err
	}
	result, err := a.queue.Drain(ctx)
	if err != nil {
		return fmt.Errorf("drain failed: %w", err)
	}
	a.record(result)
	return nil
}

func (a *SyncAgent) pull(ctx context.Context) error {
	a.printf("\n%s[%s] Pulling remote state%s\n", colorCyan, time.Now().Format("15:04:05"), colorReset)

	snapshot, err := a.queue.FetchRemoteLatest(ctx)
	if err == nil {
		var merged models.MergeResult
		merged, err = a.merger.MergeRemoteData(ctx, snapshot)
		if err == nil {
			total := merged.Orders + merged.Deposits + merged.Users + merged.PaymentMethods + merged.Rates + merged.PlatformDeposit
			a.mutex.Lock()
			a.stats.Pulls++
			a.stats.Merged += total
			a.lastPull = time.Now().UTC()
			a.mutex.Unlock()
			a.printf("  %s✓ merged %d records%s\n", colorGreen, total, colorReset)
			return nil
		}
	}

	a.mutex.Lock()
	a.stats.PullErrors++
	a.mutex.Unlock()
	zap.L().Warn("Remote pull failed, local state unchanged", zap.Error(err))
	a.printf("  %s✗ pull failed: %s%s\n", colorRed, err, colorReset)
	return fmt.Errorf("pull failed: %w", err)
}

// LastPull returns when remote state was last merged successfully
func (a *SyncAgent) LastPull() time.Time {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.lastPull
}

func (a *SyncAgent) printf(format string, args ...interface{}) {
	if a.quiet {
		return
	}
	fmt.Printf(format, args...)
}
