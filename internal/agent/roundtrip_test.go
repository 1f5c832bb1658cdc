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
	"net/http/httptest"
	"testing"

	"trading-hall-sync-go/internal/common"
	"trading-hall-sync-go/internal/database"
	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/remotestore"
	"trading-hall-sync-go/internal/syncserver"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
)

const roundTripSecret = "round-trip-secret"

func setupDevice(t *testing.T, remoteURL string) (*common.Services, *SyncAgent) {
	t.Helper()
	kv, err := database.OpenInMemory(context.Background())
	if err != nil {
		t.Fatalf("Failed to open device store: %v", err)
	}
	services, err := common.NewServices(kv, &models.Config{
		Sync:     models.SyncConfig{RemoteBaseURL: remoteURL, Secret: roundTripSecret},
		Platform: models.PlatformSettings{MinOrderAmount: decimal.NewFromInt(200)},
		Admin:    models.AdminConfig{Usernames: []string{"admin"}},
	})
	if err != nil {
		kv.Close()
		t.Fatalf("Failed to wire device services: %v", err)
	}
	t.Cleanup(services.Close)

	return services, NewSyncAgent(SyncAgentConfig{Queue: services.Queue, Merger: services.Merger, Quiet: true})
}

func TestSyncOnce_PropagatesBetweenDevices(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo, err := remotestore.NewGormRepository(sqlite.Open(":memory:"))
	if err != nil {
		t.Fatalf("Failed to open repository: %v", err)
	}
	defer func() { _ = repo.Close() }()

	server := syncserver.New(models.ServerConfig{SyncSecret: roundTripSecret}, repo, zap.NewNop())
	remote := httptest.NewServer(server.Router())
	defer remote.Close()

	ctx := context.Background()
	deviceA, agentA := setupDevice(t, remote.URL)
	deviceB, agentB := setupDevice(t, remote.URL)

	if _, err := deviceA.Trading.RegisterUser(ctx, "alice", ""); err != nil {
		t.Fatalf("RegisterUser failed: %v", err)
	}
	dep, err := deviceA.Trading.SubmitDeposit(ctx, "alice", decimal.NewFromInt(300), "", "0xabc", "")
	if err != nil {
		t.Fatalf("SubmitDeposit failed: %v", err)
	}

	if err := agentA.SyncOnce(ctx); err != nil {
		t.Fatalf("Device A sync failed: %v", err)
	}
	if stats, _ := deviceA.Queue.Stats(ctx); stats.Pending != 0 || stats.Sent != 2 {
		t.Errorf("Expected device A queue drained with 2 sent, got %+v", stats)
	}

	if err := agentB.SyncOnce(ctx); err != nil {
		t.Fatalf("Device B sync failed: %v", err)
	}

	profile, err := deviceB.Trading.GetProfile(ctx, "alice")
	if err != nil {
		t.Fatalf("Expected alice on device B: %v", err)
	}
	if profile.InviteCode == "" {
		t.Error("Expected invite code to propagate")
	}

	deposits, err := deviceB.Trading.ListDeposits(ctx)
	if err != nil {
		t.Fatalf("ListDeposits failed: %v", err)
	}
	if len(deposits) != 1 || deposits[0].Id != dep.Id || deposits[0].Status != models.DepositStatusPending {
		t.Errorf("Expected pending deposit %s on device B, got %+v", dep.Id, deposits)
	}
	if stats := agentB.Stats(); stats.Pulls != 1 || stats.Merged < 2 {
		t.Errorf("Unexpected device B stats: %+v", stats)
	}
}
