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

package syncserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"trading-hall-sync-go/internal/database"
	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/remotestore"
	"trading-hall-sync-go/internal/signing"
	"trading-hall-sync-go/internal/syncqueue"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
)

const (
	testSyncSecret  = "server-sync-secret"
	testAdminSecret = "server-admin-secret"
)

var fixedNow = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func setupServerTest(t *testing.T, cfg models.ServerConfig) (*Server, func()) {
	gin.SetMode(gin.TestMode)

	repo, err := remotestore.NewGormRepository(sqlite.Open(":memory:"))
	require.NoError(t, err)

	s := New(cfg, repo, zap.NewNop())
	s.now = func() time.Time { return fixedNow }
	return s, func() { _ = repo.Close() }
}

func defaultConfig() models.ServerConfig {
	return models.ServerConfig{SyncSecret: testSyncSecret, AdminSecret: testAdminSecret}
}

func orderPayload(id string, status models.OrderStatus, updated time.Time) models.SyncPayload {
	return models.SyncPayload{
		Type:     models.SyncTypeOrder,
		Username: "alice",
		Action:   "create",
		Order: &models.Order{
			Id:              id,
			AmountUSDT:      decimal.NewFromInt(250),
			UnitPrice:       decimal.NewFromInt(7),
			Status:          status,
			PaymentMethod:   "bank",
			CreatorUsername: "alice",
			CreatedAt:       updated,
			UpdatedAt:       updated,
		},
	}
}

func signedPost(t *testing.T, s *Server, typ string, payload models.SyncPayload, ts int64, secret string) *httptest.ResponseRecorder {
	body, err := json.Marshal(models.WirePayload{SyncPayload: payload, Ts: ts})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/"+typ, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signing.HeaderSignature, signing.Sign(body, secret))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func signedList(s *Server, ts int64, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/sync/list", nil)
	req.Header.Set(signing.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(signing.HeaderSignature, signing.SignTimestamp(ts, secret))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestReceiveRecord_AcceptsSignedPayload(t *testing.T) {
	s, cleanup := setupServerTest(t, defaultConfig())
	defer cleanup()

	w := signedPost(t, s, "order", orderPayload("o-1", models.OrderStatusPendingReview, fixedNow), fixedNow.UnixMilli(), testSyncSecret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"ok":true,"applied":true}`, w.Body.String())

	rec, err := s.repo.Get(context.Background(), models.SyncTypeOrder, "o-1")
	require.NoError(t, err)
	var stored models.Order
	require.NoError(t, json.Unmarshal(rec.Body, &stored))
	assert.Equal(t, models.OrderStatusPendingReview, stored.Status)
}

func TestReceiveRecord_RejectsSkewAndSignature(t *testing.T) {
	s, cleanup := setupServerTest(t, defaultConfig())
	defer cleanup()
	payload := orderPayload("o-1", models.OrderStatusPendingReview, fixedNow)

	stale := fixedNow.Add(-121 * time.Second).UnixMilli()
	w := signedPost(t, s, "order", payload, stale, testSyncSecret)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "timestamp_skew", errorOf(t, w))

	edge := fixedNow.Add(-120 * time.Second).UnixMilli()
	w = signedPost(t, s, "order", payload, edge, testSyncSecret)
	assert.Equal(t, http.StatusOK, w.Code, "skew of exactly 120s is allowed")

	w = signedPost(t, s, "order", payload, 0, testSyncSecret)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "timestamp_skew", errorOf(t, w))

	w = signedPost(t, s, "order", payload, fixedNow.UnixMilli(), "wrong-secret-value")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "bad_signature", errorOf(t, w))
}

func TestReceiveRecord_BadRequests(t *testing.T) {
	s, cleanup := setupServerTest(t, defaultConfig())
	defer cleanup()

	w := signedPost(t, s, "bogus", orderPayload("o-1", models.OrderStatusPendingReview, fixedNow), fixedNow.UnixMilli(), testSyncSecret)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unknown_type", errorOf(t, w))

	req := httptest.NewRequest(http.MethodPost, "/api/sync/order", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_json", errorOf(t, rec))

	w = signedPost(t, s, "user", orderPayload("o-1", models.OrderStatusPendingReview, fixedNow), fixedNow.UnixMilli(), testSyncSecret)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "type_mismatch", errorOf(t, w))

	invalid := orderPayload("o-1", "teleported", fixedNow)
	w = signedPost(t, s, "order", invalid, fixedNow.UnixMilli(), testSyncSecret)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_payload", errorOf(t, w))
}

func TestReceiveRecord_LastWriteWins(t *testing.T) {
	s, cleanup := setupServerTest(t, defaultConfig())
	defer cleanup()
	ts := fixedNow.UnixMilli()

	w := signedPost(t, s, "order", orderPayload("o-1", models.OrderStatusApprovedPayout, fixedNow), ts, testSyncSecret)
	require.Equal(t, http.StatusOK, w.Code)

	w = signedPost(t, s, "order", orderPayload("o-1", models.OrderStatusPendingReview, fixedNow.Add(-time.Hour)), ts, testSyncSecret)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"applied":false}`, w.Body.String())

	rec, err := s.repo.Get(context.Background(), models.SyncTypeOrder, "o-1")
	require.NoError(t, err)
	var stored models.Order
	require.NoError(t, json.Unmarshal(rec.Body, &stored))
	assert.Equal(t, models.OrderStatusApprovedPayout, stored.Status)
}

func TestListRecords_ReturnsSnapshot(t *testing.T) {
	s, cleanup := setupServerTest(t, defaultConfig())
	defer cleanup()
	ts := fixedNow.UnixMilli()

	require.Equal(t, http.StatusOK, signedPost(t, s, "order", orderPayload("o-1", models.OrderStatusPendingReview, fixedNow), ts, testSyncSecret).Code)
	user := models.SyncPayload{Type: models.SyncTypeUser, User: &models.UserProfile{Username: "bob", InviteCode: "bob-321", UpdatedAt: fixedNow}}
	require.Equal(t, http.StatusOK, signedPost(t, s, "user", user, ts, testSyncSecret).Code)

	w := signedList(s, ts, testSyncSecret)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var snapshot models.RemoteSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	require.Len(t, snapshot.Orders, 1)
	assert.Equal(t, "o-1", snapshot.Orders[0].Id)
	require.Len(t, snapshot.Users, 1)
	assert.Equal(t, "bob-321", snapshot.Users[0].InviteCode)
	assert.Nil(t, snapshot.PlatformDeposit)

	w = signedList(s, ts, "wrong-secret-value")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = signedList(s, fixedNow.Add(-5*time.Minute).UnixMilli(), testSyncSecret)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminRoutes_RequireSecret(t *testing.T) {
	s, cleanup := setupServerTest(t, defaultConfig())
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.Header.Set(signing.HeaderAdminSecret, "nope")
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	req.Header.Set(signing.HeaderAdminSecret, testAdminSecret)
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRoutes_UnconfiguredSecret(t *testing.T) {
	s, cleanup := setupServerTest(t, models.ServerConfig{})
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.Header.Set(signing.HeaderAdminSecret, "anything")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "admin_secret_not_configured", errorOf(t, w))
}

func TestAdminSecret_FallsBackToSyncSecret(t *testing.T) {
	s, cleanup := setupServerTest(t, models.ServerConfig{SyncSecret: testSyncSecret})
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.Header.Set(signing.HeaderAdminSecret, testSyncSecret)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminPlatformConfig(t *testing.T) {
	s, cleanup := setupServerTest(t, defaultConfig())
	defer cleanup()

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/platform-config", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(signing.HeaderAdminSecret, testAdminSecret)
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, req)
		return w
	}

	w := post(`{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "nothing_to_update", errorOf(t, w))

	w = post(`{"displayRates":[{"quote":"cny","value":"7.2"}],"platformDeposit":{"address":"TQabc"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"ok":true,"applied":2}`, w.Body.String())

	w = post(`{"displayRates":[{"quote":"jpy","value":"0"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/public/platform-config", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		DisplayRates    []models.Rate           `json:"displayRates"`
		PlatformDeposit *models.PlatformDeposit `json:"platformDeposit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.DisplayRates, 1)
	assert.Equal(t, "USDT_CNY", resp.DisplayRates[0].Key())
	require.NotNil(t, resp.PlatformDeposit)
	assert.Equal(t, models.DefaultDepositNetwork, resp.PlatformDeposit.Network)
}

func depositPayload(id string, status models.DepositStatus, updated time.Time) models.SyncPayload {
	return models.SyncPayload{
		Type:     models.SyncTypeDeposit,
		Username: "alice",
		Action:   "create",
		Deposit: &models.DepositRequest{
			Id:                  id,
			Username:            "alice",
			AmountRequestedUSDT: decimal.NewFromInt(500),
			Status:              status,
			CreatedAt:           updated,
			UpdatedAt:           updated,
		},
	}
}

func adminRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signing.HeaderAdminSecret, testAdminSecret)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestAdminDeposits_FiltersByStatus(t *testing.T) {
	s, cleanup := setupServerTest(t, defaultConfig())
	defer cleanup()

	ts := fixedNow.UnixMilli()
	t0 := fixedNow.Add(-time.Hour)
	require.Equal(t, http.StatusOK, signedPost(t, s, "deposit", depositPayload("d-1", models.DepositStatusPending, t0), ts, testSyncSecret).Code)
	require.Equal(t, http.StatusOK, signedPost(t, s, "deposit", depositPayload("d-2", models.DepositStatusApproved, t0), ts, testSyncSecret).Code)

	var resp struct {
		Deposits []models.DepositRequest `json:"deposits"`
	}
	w := adminRequest(s, http.MethodGet, "/api/admin/deposits", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Deposits, 2)

	w = adminRequest(s, http.MethodGet, "/api/admin/deposits?status=pending", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Deposits, 1)
	assert.Equal(t, "d-1", resp.Deposits[0].Id)
}

func TestAdminDeposits_RequireSecret(t *testing.T) {
	s, cleanup := setupServerTest(t, defaultConfig())
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/deposits", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/admin/deposits/review", bytes.NewBufferString(`{"id":"d-1","action":"approve"}`))
	req.Header.Set(signing.HeaderAdminSecret, "nope")
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	unconfigured, cleanup2 := setupServerTest(t, models.ServerConfig{})
	defer cleanup2()
	w = adminRequest(unconfigured, http.MethodGet, "/api/admin/deposits", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "admin_secret_not_configured", errorOf(t, w))
}

func TestAdminReviewDeposit(t *testing.T) {
	s, cleanup := setupServerTest(t, defaultConfig())
	defer cleanup()
	ctx := context.Background()

	t0 := fixedNow.Add(-time.Hour)
	require.Equal(t, http.StatusOK, signedPost(t, s, "deposit", depositPayload("d-1", models.DepositStatusPending, t0), fixedNow.UnixMilli(), testSyncSecret).Code)
	require.Equal(t, http.StatusOK, signedPost(t, s, "deposit", depositPayload("d-2", models.DepositStatusPending, t0), fixedNow.UnixMilli(), testSyncSecret).Code)

	w := adminRequest(s, http.MethodPost, "/api/admin/deposits/review", `{"action":"approve"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing_id", errorOf(t, w))

	w = adminRequest(s, http.MethodPost, "/api/admin/deposits/review", `{"id":"d-1","action":"refund"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_action", errorOf(t, w))

	w = adminRequest(s, http.MethodPost, "/api/admin/deposits/review", `{"id":"d-9","action":"approve"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = adminRequest(s, http.MethodPost, "/api/admin/deposits/review", `{"id":"d-1","action":"approve","amountApprovedUSDT":"450","reviewer":"root","note":"partial"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	rec, err := s.repo.Get(ctx, models.SyncTypeDeposit, "d-1")
	require.NoError(t, err)
	var stored models.DepositRequest
	require.NoError(t, json.Unmarshal(rec.Body, &stored))
	assert.Equal(t, models.DepositStatusApproved, stored.Status)
	assert.True(t, stored.AmountApprovedUSDT.Equal(decimal.NewFromInt(450)))
	assert.Equal(t, "root", stored.ReviewerUsername)
	assert.Equal(t, "partial", stored.NoteAdmin)
	require.NotNil(t, stored.ReviewedAt)
	assert.True(t, rec.UpdatedAt.After(t0))

	w = adminRequest(s, http.MethodPost, "/api/admin/deposits/review", `{"id":"d-1","action":"reject"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_reviewed", errorOf(t, w))

	w = adminRequest(s, http.MethodPost, "/api/admin/deposits/review", `{"id":"d-2","action":"reject","note":"no proof"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec, err = s.repo.Get(ctx, models.SyncTypeDeposit, "d-2")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(rec.Body, &stored))
	assert.Equal(t, models.DepositStatusRejected, stored.Status)
	assert.True(t, stored.AmountApprovedUSDT.IsZero())
}

func TestAdminReviewDeposit_NewerThanFutureStamp(t *testing.T) {
	s, cleanup := setupServerTest(t, defaultConfig())
	defer cleanup()

	ahead := fixedNow.Add(time.Minute)
	require.Equal(t, http.StatusOK, signedPost(t, s, "deposit", depositPayload("d-1", models.DepositStatusPending, ahead), fixedNow.UnixMilli(), testSyncSecret).Code)

	w := adminRequest(s, http.MethodPost, "/api/admin/deposits/review", `{"id":"d-1","action":"approve"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	rec, err := s.repo.Get(context.Background(), models.SyncTypeDeposit, "d-1")
	require.NoError(t, err)
	assert.True(t, rec.UpdatedAt.After(ahead))
	var stored models.DepositRequest
	require.NoError(t, json.Unmarshal(rec.Body, &stored))
	assert.Equal(t, models.DepositStatusApproved, stored.Status)
	assert.True(t, stored.AmountApprovedUSDT.Equal(decimal.NewFromInt(500)))
}

func TestRateLimit_Throttles(t *testing.T) {
	cfg := defaultConfig()
	cfg.RateLimit = 1
	cfg.RateBurst = 1
	s, cleanup := setupServerTest(t, cfg)
	defer cleanup()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/public/platform-config", nil)
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, codes[1:], http.StatusTooManyRequests)
}

func TestHealth(t *testing.T) {
	s, cleanup := setupServerTest(t, defaultConfig())
	defer cleanup()

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// The queue's signing must match what the server verifies
func TestQueueToServer_RoundTrip(t *testing.T) {
	s, cleanup := setupServerTest(t, defaultConfig())
	defer cleanup()
	s.now = func() time.Time { return time.Now().UTC() }

	remote := httptest.NewServer(s.Router())
	defer remote.Close()

	kv, err := database.OpenInMemory(context.Background())
	require.NoError(t, err)
	defer kv.Close()

	q := syncqueue.NewWithClient(kv, models.SyncConfig{RemoteBaseURL: remote.URL, Secret: testSyncSecret}, remote.Client())
	ctx := context.Background()

	_, err = q.Enqueue(ctx, orderPayload("o-rt", models.OrderStatusPendingReview, time.Now().UTC()))
	require.NoError(t, err)

	result, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	snapshot, err := q.FetchRemoteLatest(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Orders, 1)
	assert.Equal(t, "o-rt", snapshot.Orders[0].Id)
}
