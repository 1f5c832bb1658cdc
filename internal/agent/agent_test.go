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
	"sync"
	"testing"
	"time"

	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/syncqueue"
)

type fakeQueue struct {
	mu         sync.Mutex
	configured bool
	drains     int
	fetches    int
	fetchErr   error
}

func (q *fakeQueue) RemoteConfigured() bool { return q.configured }

func (q *fakeQueue) Drain(ctx context.Context) (syncqueue.DrainResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.drains++
	return syncqueue.DrainResult{Sent: 1}, nil
}

func (q *fakeQueue) FetchRemoteLatest(ctx context.Context) (*models.RemoteSnapshot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fetches++
	if q.fetchErr != nil {
		return nil, q.fetchErr
	}
	return &models.RemoteSnapshot{Users: []models.UserProfile{{Username: "bob"}}}, nil
}

func (q *fakeQueue) counts() (int, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drains, q.fetches
}

type fakeMerger struct{}

func (fakeMerger) MergeRemoteData(ctx context.Context, snapshot *models.RemoteSnapshot) (models.MergeResult, error) {
	return models.MergeResult{Users: len(snapshot.Users)}, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before deadline")
}

func TestSyncAgent_DrainsAndPulls(t *testing.T) {
	q := &fakeQueue{configured: true}
	a := NewSyncAgent(SyncAgentConfig{
		Queue:         q,
		Merger:        fakeMerger{},
		DrainInterval: 10 * time.Millisecond,
		PullInterval:  20 * time.Millisecond,
		Quiet:         true,
	})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool {
		drains, fetches := q.counts()
		return drains >= 3 && fetches >= 2
	})
	a.Stop()

	stats := a.Stats()
	if stats.Sent < 3 || stats.Merged < 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if a.LastPull().IsZero() {
		t.Error("Expected last pull time to be recorded")
	}

	drains, _ := q.counts()
	time.Sleep(30 * time.Millisecond)
	if after, _ := q.counts(); after != drains {
		t.Errorf("Expected no drains after Stop, got %d more", after-drains)
	}
}

func TestSyncAgent_RequiresRemote(t *testing.T) {
	a := NewSyncAgent(SyncAgentConfig{Queue: &fakeQueue{}, Merger: fakeMerger{}, Quiet: true})
	err := a.Start(context.Background())
	if !errors.Is(err, syncqueue.ErrRemoteNotConfigured) {
		t.Errorf("Expected ErrRemoteNotConfigured, got %v", err)
	}
}

func TestSyncAgent_PullFailureKeepsRunning(t *testing.T) {
	q := &fakeQueue{configured: true, fetchErr: errors.New("remote down")}
	a := NewSyncAgent(SyncAgentConfig{
		Queue:         q,
		Merger:        fakeMerger{},
		DrainInterval: 10 * time.Millisecond,
		PullInterval:  time.Hour,
		Quiet:         true,
	})

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, func() bool {
		drains, _ := q.counts()
		return drains >= 2
	})
	a.Stop()

	if stats := a.Stats(); stats.PullErrors != 1 || stats.Pulls != 0 {
		t.Errorf("Expected one failed pull, got %+v", stats)
	}
}

func TestSyncAgent_SyncOnce(t *testing.T) {
	q := &fakeQueue{configured: true}
	a := NewSyncAgent(SyncAgentConfig{Queue: q, Merger: fakeMerger{}, Quiet: true})

	if err := a.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce failed: %v", err)
	}
	drains, fetches := q.counts()
	if drains != 1 || fetches != 1 {
		t.Errorf("Expected one drain and one fetch, got %d and %d", drains, fetches)
	}
	if stats := a.Stats(); stats.Sent != 1 || stats.Merged != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	q.fetchErr = errors.New("remote down")
	if err := a.SyncOnce(context.Background()); err == nil {
		t.Error("Expected pull failure to surface")
	}
}
