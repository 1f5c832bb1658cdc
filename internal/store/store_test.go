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

package store_test

import (
	"context"
	"errors"
	"testing"

	"trading-hall-sync-go/internal/database"
	"trading-hall-sync-go/internal/store"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func setupStore(t *testing.T) (store.KeyValueStore, func()) {
	kv, err := database.OpenInMemory(context.Background())
	if err != nil {
		t.Fatalf("Failed to open in-memory store: %v", err)
	}
	return kv, kv.Close
}

func TestGetJSON_Missing(t *testing.T) {
	kv, cleanup := setupStore(t)
	defer cleanup()

	var out sample
	found, err := store.GetJSON(context.Background(), kv, "missing", &out)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if found {
		t.Error("Expected missing key to report not found")
	}
}

func TestSetJSON_RoundTrip(t *testing.T) {
	kv, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.SetJSON(ctx, kv, "sample", sample{Name: "a", Count: 2}); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var out sample
	found, err := store.GetJSON(ctx, kv, "sample", &out)
	if err != nil || !found {
		t.Fatalf("GetJSON failed: found=%v err=%v", found, err)
	}
	if out.Name != "a" || out.Count != 2 {
		t.Errorf("Unexpected value: %+v", out)
	}
}

func TestUpdateJSON_StartsFromZeroValue(t *testing.T) {
	kv, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := store.UpdateJSON(ctx, kv, "counter", func(v *sample) error {
			v.Count++
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateJSON failed: %v", err)
		}
	}

	var out sample
	if _, err := store.GetJSON(ctx, kv, "counter", &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.Count != 3 {
		t.Errorf("Expected count 3, got %d", out.Count)
	}
}

func TestUpdateJSON_ErrorLeavesValue(t *testing.T) {
	kv, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.SetJSON(ctx, kv, "sample", sample{Count: 1}); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	boom := errors.New("boom")
	err := store.UpdateJSON(ctx, kv, "sample", func(v *sample) error {
		v.Count = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	var out sample
	if _, err := store.GetJSON(ctx, kv, "sample", &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if out.Count != 1 {
		t.Errorf("Expected value untouched, got %d", out.Count)
	}
}
