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

package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"trading-hall-sync-go/internal/metrics"
	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	KeySyncQueue   = "REMOTE_SYNC_QUEUE_V1"
	KeySentHistory = "REMOTE_SYNC_SENT_V1"
	KeyDeadLetters = "REMOTE_SYNC_DEAD_V1"

	DefaultMaxRetry         = 5
	DefaultBaseBackoff      = 5 * time.Second
	DefaultBackoffFactor    = 3
	DefaultBackoffCap       = 10 * time.Minute
	DefaultSentHistoryLimit = 100
	DefaultHTTPTimeout      = 10 * time.Second
)

var (
	ErrRemoteNotConfigured = errors.New("remote sync is not configured")
	ErrInvalidPayload      = errors.New("invalid sync payload")
)

// DrainResult summarises one drain pass
type DrainResult struct {
	Skipped      bool
	Sent         int
	Failed       int
	DeadLettered int
	Deferred     int
}

// Queue is the durable outbound sync queue
type Queue struct {
	kv       store.KeyValueStore
	cfg      models.SyncConfig
	client   *http.Client
	draining atomic.Bool
	inflight sync.WaitGroup
	now      func() time.Time
}

func New(kv store.KeyValueStore, cfg models.SyncConfig) (*Queue, error) {
	cfg = withDefaults(cfg)
	client, err := createCustomHttpClient(cfg.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}
	return NewWithClient(kv, cfg, client), nil
}

func NewWithClient(kv store.KeyValueStore, cfg models.SyncConfig, client *http.Client) *Queue {
	return &Queue{
		kv:     kv,
		cfg:    withDefaults(cfg),
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func withDefaults(cfg models.SyncConfig) models.SyncConfig {
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = DefaultMaxRetry
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = DefaultBaseBackoff
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = DefaultBackoffFactor
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultBackoffCap
	}
	if cfg.SentHistoryLimit <= 0 {
		cfg.SentHistoryLimit = DefaultSentHistoryLimit
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	return cfg
}

// RemoteConfigured reports whether a remote base URL is set
func (q *Queue) RemoteConfigured() bool {
	return q.cfg.RemoteBaseURL != ""
}

// Backoff returns min(base * factor^retry, cap)
func (q *Queue) Backoff(retry int) time.Duration {
	d := float64(q.cfg.BaseBackoff) * math.Pow(q.cfg.BackoffFactor, float64(retry))
	if d >= float64(q.cfg.BackoffCap) {
		return q.cfg.BackoffCap
	}
	return time.Duration(d)
}

// NextAttemptAt is the earliest time item may be sent again
func (q *Queue) NextAttemptAt(item models.QueueItem) time.Time {
	if item.LastTriedAt.IsZero() {
		return item.CreatedAt
	}
	return item.LastTriedAt.Add(q.Backoff(item.Retry))
}

// Enqueue validates payload and appends it to the queue. When auto-drain is on
// a drain is started in the background; the caller never waits for the network.
func (q *Queue) Enqueue(ctx context.Context, payload models.SyncPayload) (*models.QueueItem, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	item := models.QueueItem{
		Id:        uuid.New().String(),
		Type:      payload.Type,
		Data:      payload,
		CreatedAt: q.now(),
	}

	depth := 0
	err := store.UpdateJSON(ctx, q.kv, KeySyncQueue, func(items *[]models.QueueItem) error {
		*items = append(*items, item)
		depth = len(*items)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", payload.Type, err)
	}

	metrics.SyncItemsEnqueued.WithLabelValues(string(item.Type)).Inc()
	metrics.SyncQueueDepth.Set(float64(depth))

	zap.L().Info("Sync item enqueued",
		zap.String("item_id", item.Id),
		zap.String("type", string(item.Type)),
		zap.String("record_key", payload.Key()),
		zap.Int("queue_depth", depth))

	if q.cfg.AutoDrain && q.RemoteConfigured() {
		q.inflight.Add(1)
		go func() {
			defer q.inflight.Done()
			if _, err := q.Drain(context.Background()); err != nil {
				zap.L().Warn("Background drain failed", zap.Error(err))
			}
		}()
	}

	return &item, nil
}

// Wait blocks until background drains started by Enqueue have returned
func (q *Queue) Wait() {
	q.inflight.Wait()
}

// Drain makes one FIFO pass over the queue, sending every item whose backoff has
// elapsed. Only one drain runs at a time; a concurrent call returns Skipped.
func (q *Queue) Drain(ctx context.Context) (DrainResult, error) {
	var result DrainResult

	if !q.RemoteConfigured() {
		zap.L().Debug("Remote sync not configured, drain skipped")
		return result, nil
	}
	if !q.draining.CompareAndSwap(false, true) {
		result.Skipped = true
		return result, nil
	}
	defer q.draining.Store(false)

	start := time.Now()
	defer func() {
		metrics.SyncDrainDuration.Observe(time.Since(start).Seconds())
	}()

	items, err := q.Pending(ctx)
	if err != nil {
		return result, err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if q.NextAttemptAt(item).After(q.now()) {
			result.Deferred++
			continue
		}

		sendErr := q.post(ctx, item)
		if sendErr == nil {
			if err := q.markSent(ctx, item); err != nil {
				return result, err
			}
			result.Sent++
			continue
		}

		dead, err := q.markFailed(ctx, item, sendErr)
		if err != nil {
			return result, err
		}
		if dead {
			result.DeadLettered++
		} else {
			result.Failed++
		}
	}

	if remaining, err := q.Pending(ctx); err == nil {
		metrics.SyncQueueDepth.Set(float64(len(remaining)))
	}

	if result.Sent > 0 || result.Failed > 0 || result.DeadLettered > 0 {
		zap.L().Info("Drain pass finished",
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed),
			zap.Int("dead_lettered", result.DeadLettered),
			zap.Int("deferred", result.Deferred))
	}

	return result, nil
}

func (q *Queue) markSent(ctx context.Context, item models.QueueItem) error {
	entry := models.SentEntry{Id: item.Id, Type: item.Type, SentAt: q.now()}
	err := store.UpdateJSON(ctx, q.kv, KeySentHistory, func(history *[]models.SentEntry) error {
		*history = append(*history, entry)
		if over := len(*history) - q.cfg.SentHistoryLimit; over > 0 {
			*history = (*history)[over:]
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record sent item: %w", err)
	}

	if err := q.removeItem(ctx, item.Id); err != nil {
		return err
	}

	metrics.SyncItemsSent.WithLabelValues(string(item.Type)).Inc()
	zap.L().Info("Sync item delivered",
		zap.String("item_id", item.Id),
		zap.String("type", string(item.Type)),
		zap.Int("retry", item.Retry))
	return nil
}

// markFailed bumps the retry counter; an item reaching MaxRetry moves to the dead-letter list
func (q *Queue) markFailed(ctx context.Context, item models.QueueItem, sendErr error) (bool, error) {
	metrics.SyncAttemptsFailed.WithLabelValues(string(item.Type)).Inc()

	item.Retry++
	item.LastTriedAt = q.now()

	if item.Retry >= q.cfg.MaxRetry {
		letter := models.DeadLetter{Item: item, LastError: sendErr.Error(), DeadAt: q.now()}
		err := store.UpdateJSON(ctx, q.kv, KeyDeadLetters, func(letters *[]models.DeadLetter) error {
			*letters = append(*letters, letter)
			return nil
		})
		if err != nil {
			return false, fmt.Errorf("failed to dead-letter item: %w", err)
		}
		if err := q.removeItem(ctx, item.Id); err != nil {
			return false, err
		}

		metrics.SyncItemsDeadLettered.WithLabelValues(string(item.Type)).Inc()
		zap.L().Error("Sync item exhausted retries, moved to dead-letter list",
			zap.String("item_id", item.Id),
			zap.String("type", string(item.Type)),
			zap.String("record_key", item.Data.Key()),
			zap.Int("retry", item.Retry),
			zap.Error(sendErr))
		return true, nil
	}

	err := store.UpdateJSON(ctx, q.kv, KeySyncQueue, func(items *[]models.QueueItem) error {
		for i := range *items {
			if (*items)[i].Id == item.Id {
				(*items)[i].Retry = item.Retry
				(*items)[i].LastTriedAt = item.LastTriedAt
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to record retry: %w", err)
	}

	zap.L().Warn("Sync attempt failed, will retry",
		zap.String("item_id", item.Id),
		zap.String("type", string(item.Type)),
		zap.Int("retry", item.Retry),
		zap.Time("next_attempt_at", q.NextAttemptAt(item)),
		zap.Error(sendErr))
	return false, nil
}

func (q *Queue) removeItem(ctx context.Context, id string) error {
	err := store.UpdateJSON(ctx, q.kv, KeySyncQueue, func(items *[]models.QueueItem) error {
		kept := (*items)[:0]
		for _, it := range *items {
			if it.Id != id {
				kept = append(kept, it)
			}
		}
		*items = kept
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove item %s: %w", id, err)
	}
	return nil
}

// Pending returns the queued items in FIFO order
func (q *Queue) Pending(ctx context.Context) ([]models.QueueItem, error) {
	var items []models.QueueItem
	if _, err := store.GetJSON(ctx, q.kv, KeySyncQueue, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SentHistory returns the most recent deliveries, oldest first
func (q *Queue) SentHistory(ctx context.Context) ([]models.SentEntry, error) {
	var history []models.SentEntry
	if _, err := store.GetJSON(ctx, q.kv, KeySentHistory, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (q *Queue) DeadLetters(ctx context.Context) ([]models.DeadLetter, error) {
	var letters []models.DeadLetter
	if _, err := store.GetJSON(ctx, q.kv, KeyDeadLetters, &letters); err != nil {
		return nil, err
	}
	return letters, nil
}

// RequeueDeadLetters moves every dead letter back to the end of the queue with a fresh retry budget
func (q *Queue) RequeueDeadLetters(ctx context.Context) (int, error) {
	var letters []models.DeadLetter
	err := store.UpdateJSON(ctx, q.kv, KeyDeadLetters, func(stored *[]models.DeadLetter) error {
		letters = append(letters[:0], *stored...)
		*stored = nil
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read dead letters: %w", err)
	}
	if len(letters) == 0 {
		return 0, nil
	}

	err = store.UpdateJSON(ctx, q.kv, KeySyncQueue, func(items *[]models.QueueItem) error {
		for _, l := range letters {
			item := l.Item
			item.Retry = 0
			item.LastTriedAt = time.Time{}
			*items = append(*items, item)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to requeue dead letters: %w", err)
	}

	zap.L().Info("Dead letters requeued", zap.Int("count", len(letters)))
	return len(letters), nil
}

func (q *Queue) Stats(ctx context.Context) (models.QueueStats, error) {
	var stats models.QueueStats
	pending, err := q.Pending(ctx)
	if err != nil {
		return stats, err
	}
	sent, err := q.SentHistory(ctx)
	if err != nil {
		return stats, err
	}
	dead, err := q.DeadLetters(ctx)
	if err != nil {
		return stats, err
	}
	stats.Pending = len(pending)
	stats.Sent = len(sent)
	stats.DeadLetters = len(dead)
	return stats, nil
}
