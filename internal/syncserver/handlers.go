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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trading-hall-sync-go/internal/metrics"
	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/remotestore"
	"trading-hall-sync-go/internal/signing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": s.now().Format(time.RFC3339)})
}

func countRequest(typ string, status int) {
	metrics.ServerRequests.WithLabelValues(typ, strconv.Itoa(status)).Inc()
}

// receiveRecord handles POST /api/sync/:type
func (s *Server) receiveRecord(c *gin.Context) {
	typ, err := models.ParseSyncType(c.Param("type"))
	if err != nil {
		countRequest("unknown", http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "unknown_type"})
		return
	}
	if s.cfg.SyncSecret == "" {
		countRequest(string(typ), http.StatusInternalServerError)
		reject(c, http.StatusInternalServerError, "sync_secret_not_configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		countRequest(string(typ), http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "unreadable_body"})
		return
	}

	var wire models.WirePayload
	if err := json.Unmarshal(body, &wire); err != nil {
		countRequest(string(typ), http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_json"})
		return
	}

	if !s.checkSkew(wire.Ts) {
		countRequest(string(typ), http.StatusForbidden)
		reject(c, http.StatusForbidden, "timestamp_skew")
		return
	}
	if !signing.Equal(c.GetHeader(signing.HeaderSignature), signing.Sign(body, s.cfg.SyncSecret)) {
		countRequest(string(typ), http.StatusForbidden)
		reject(c, http.StatusForbidden, "bad_signature")
		return
	}

	payload := wire.SyncPayload
	if payload.Type == "" {
		payload.Type = typ
	}
	if payload.Type != typ {
		countRequest(string(typ), http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "type_mismatch"})
		return
	}
	if err := payload.Validate(); err != nil {
		countRequest(string(typ), http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_payload", "detail": err.Error()})
		return
	}

	rec, err := recordFromPayload(payload, s.now())
	if err != nil {
		countRequest(string(typ), http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_payload", "detail": err.Error()})
		return
	}

	written, err := s.repo.Upsert(c.Request.Context(), rec)
	if err != nil {
		zap.L().Error("Failed to store synced record",
			zap.String("type", string(typ)),
			zap.String("record_key", rec.Key),
			zap.Error(err))
		countRequest(string(typ), http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "storage_error"})
		return
	}

	zap.L().Info("Synced record received",
		zap.String("type", string(typ)),
		zap.String("record_key", rec.Key),
		zap.String("username", payload.Username),
		zap.String("action", payload.Action),
		zap.Bool("applied", written))

	countRequest(string(typ), http.StatusOK)
	c.JSON(http.StatusOK, gin.H{"ok": true, "applied": written})
}

// recordFromPayload stores the carried record itself, not the envelope
func recordFromPayload(p models.SyncPayload, now time.Time) (models.SyncedRecord, error) {
	var variant interface{}
	switch p.Type {
	case models.SyncTypeOrder:
		variant = p.Order
	case models.SyncTypeDeposit:
		variant = p.Deposit
	case models.SyncTypeUser:
		variant = p.User
	case models.SyncTypePaymentMethod:
		variant = p.PaymentMethod
	case models.SyncTypeRate:
		variant = p.Rate
	case models.SyncTypePlatformDeposit:
		variant = p.PlatformDeposit
	}

	body, err := json.Marshal(variant)
	if err != nil {
		return models.SyncedRecord{}, fmt.Errorf("unable to encode %s record: %w", p.Type, err)
	}
	key := p.Key()
	if key == "" {
		return models.SyncedRecord{}, fmt.Errorf("%s record has no key", p.Type)
	}
	updated := p.UpdatedAt()
	if updated.IsZero() {
		updated = now
	}

	return models.SyncedRecord{
		Type:      p.Type,
		Key:       key,
		Body:      body,
		UpdatedAt: updated,
		SyncedAt:  now,
	}, nil
}

// listRecords handles GET /api/sync/list
func (s *Server) listRecords(c *gin.Context) {
	if s.cfg.SyncSecret == "" {
		countRequest("list", http.StatusInternalServerError)
		reject(c, http.StatusInternalServerError, "sync_secret_not_configured")
		return
	}

	ts := parseTimestamp(c.GetHeader(signing.HeaderTimestamp))
	if !s.checkSkew(ts) {
		countRequest("list", http.StatusForbidden)
		reject(c, http.StatusForbidden, "timestamp_skew")
		return
	}
	if !signing.Equal(c.GetHeader(signing.HeaderSignature), signing.SignTimestamp(ts, s.cfg.SyncSecret)) {
		countRequest("list", http.StatusForbidden)
		reject(c, http.StatusForbidden, "bad_signature")
		return
	}

	snapshot, err := s.buildSnapshot(c.Request.Context(), s.cfg.ListLimit)
	if err != nil {
		zap.L().Error("Failed to build sync snapshot", zap.Error(err))
		countRequest("list", http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "storage_error"})
		return
	}

	countRequest("list", http.StatusOK)
	c.JSON(http.StatusOK, snapshot)
}

func decodeRecords[T any](ctx context.Context, repo remotestore.Repository, typ models.SyncType, limit int) ([]T, error) {
	recs, err := repo.List(ctx, typ, limit)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := json.Unmarshal(rec.Body, &v); err != nil {
			zap.L().Warn("Skipping undecodable synced record",
				zap.String("type", string(typ)),
				zap.String("record_key", rec.Key),
				zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Server) platformDeposit(ctx context.Context) (*models.PlatformDeposit, error) {
	rec, err := s.repo.Get(ctx, models.SyncTypePlatformDeposit, models.PlatformDepositId)
	if errors.Is(err, remotestore.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pd models.PlatformDeposit
	if err := json.Unmarshal(rec.Body, &pd); err != nil {
		return nil, fmt.Errorf("unable to decode platform deposit: %w", err)
	}
	return &pd, nil
}

func (s *Server) buildSnapshot(ctx context.Context, limit int) (*models.RemoteSnapshot, error) {
	var (
		snapshot models.RemoteSnapshot
		err      error
	)
	if snapshot.Orders, err = decodeRecords[models.Order](ctx, s.repo, models.SyncTypeOrder, limit); err != nil {
		return nil, err
	}
	if snapshot.Deposits, err = decodeRecords[models.DepositRequest](ctx, s.repo, models.SyncTypeDeposit, limit); err != nil {
		return nil, err
	}
	if snapshot.Users, err = decodeRecords[models.UserProfile](ctx, s.repo, models.SyncTypeUser, limit); err != nil {
		return nil, err
	}
	if snapshot.Rates, err = decodeRecords[models.Rate](ctx, s.repo, models.SyncTypeRate, limit); err != nil {
		return nil, err
	}
	if snapshot.PaymentMethods, err = decodeRecords[models.PaymentMethod](ctx, s.repo, models.SyncTypePaymentMethod, limit); err != nil {
		return nil, err
	}
	if snapshot.PlatformDeposit, err = s.platformDeposit(ctx); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *Server) adminUsers(c *gin.Context) {
	users, err := decodeRecords[models.UserProfile](c.Request.Context(), s.repo, models.SyncTypeUser, s.cfg.ListLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "storage_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "users": users})
}

func (s *Server) adminOrders(c *gin.Context) {
	orders, err := decodeRecords[models.Order](c.Request.Context(), s.repo, models.SyncTypeOrder, s.cfg.ListLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "storage_error"})
		return
	}
	if status := c.Query("status"); status != "" {
		filtered := orders[:0]
		for _, o := range orders {
			if string(o.Status) == status {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "orders": orders})
}

func (s *Server) adminDeposits(c *gin.Context) {
	deposits, err := decodeRecords[models.DepositRequest](c.Request.Context(), s.repo, models.SyncTypeDeposit, s.cfg.ListLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "storage_error"})
		return
	}
	if status := c.Query("status"); status != "" {
		filtered := deposits[:0]
		for _, d := range deposits {
			if string(d.Status) == status {
				filtered = append(filtered, d)
			}
		}
		deposits = filtered
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "deposits": deposits})
}

type depositReviewRequest struct {
	Id                 string           `json:"id"`
	Action             string           `json:"action"`
	AmountApprovedUSDT *decimal.Decimal `json:"amountApprovedUSDT"`
	Reviewer           string           `json:"reviewer"`
	Note               string           `json:"note"`
}

// adminReviewDeposit approves or rejects a synced pending deposit. Agents pick
// the decision up on their next pull.
func (s *Server) adminReviewDeposit(c *gin.Context) {
	var req depositReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_json"})
		return
	}
	req.Id = strings.TrimSpace(req.Id)
	if req.Id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "missing_id"})
		return
	}
	var status models.DepositStatus
	switch req.Action {
	case "approve":
		status = models.DepositStatusApproved
	case "reject":
		status = models.DepositStatusRejected
	default:
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_action"})
		return
	}

	ctx := c.Request.Context()
	rec, err := s.repo.Get(ctx, models.SyncTypeDeposit, req.Id)
	if errors.Is(err, remotestore.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "deposit_not_found"})
		return
	}
	if err != nil {
		zap.L().Error("Failed to load deposit", zap.String("deposit_id", req.Id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "storage_error"})
		return
	}
	var deposit models.DepositRequest
	if err := json.Unmarshal(rec.Body, &deposit); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "corrupt_record"})
		return
	}
	if deposit.Status != models.DepositStatusPending {
		c.JSON(http.StatusConflict, gin.H{"ok": false, "error": "already_reviewed", "status": deposit.Status})
		return
	}

	approved := decimal.Zero
	if status == models.DepositStatusApproved {
		approved = deposit.AmountRequestedUSDT
		if req.AmountApprovedUSDT != nil {
			approved = *req.AmountApprovedUSDT
		}
		if !approved.IsPositive() {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_amount"})
			return
		}
	}

	// the reviewed copy must be strictly newer or the upsert ignores it
	now := s.now()
	if !now.After(deposit.UpdatedAt) {
		now = deposit.UpdatedAt.Add(time.Millisecond)
	}
	reviewer := strings.TrimSpace(req.Reviewer)
	if reviewer == "" {
		reviewer = "admin"
	}
	deposit.Status = status
	deposit.AmountApprovedUSDT = approved
	deposit.NoteAdmin = req.Note
	deposit.ReviewerUsername = reviewer
	deposit.ReviewedAt = &now
	deposit.UpdatedAt = now

	updated, err := recordFromPayload(models.SyncPayload{Type: models.SyncTypeDeposit, Deposit: &deposit}, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "storage_error"})
		return
	}
	if _, err := s.repo.Upsert(ctx, updated); err != nil {
		zap.L().Error("Failed to store reviewed deposit", zap.String("deposit_id", req.Id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "storage_error"})
		return
	}

	zap.L().Info("Deposit reviewed by admin",
		zap.String("deposit_id", deposit.Id),
		zap.String("username", deposit.Username),
		zap.String("status", string(status)),
		zap.String("approved_usdt", approved.String()))
	c.JSON(http.StatusOK, gin.H{"ok": true, "deposit": deposit})
}

type platformConfigRequest struct {
	DisplayRates    []models.Rate           `json:"displayRates"`
	PlatformDeposit *models.PlatformDeposit `json:"platformDeposit"`
}

// adminPlatformConfig lets an admin publish rates and the deposit address without an agent
func (s *Server) adminPlatformConfig(c *gin.Context) {
	var req platformConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_json"})
		return
	}
	if len(req.DisplayRates) == 0 && req.PlatformDeposit == nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "nothing_to_update"})
		return
	}

	ctx := c.Request.Context()
	now := s.now()
	var payloads []models.SyncPayload

	for i := range req.DisplayRates {
		r := req.DisplayRates[i]
		r.Quote = strings.ToUpper(strings.TrimSpace(r.Quote))
		r.Base = strings.ToUpper(strings.TrimSpace(r.Base))
		if r.Base == "" {
			r.Base = models.RateBaseUSDT
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
		payloads = append(payloads, models.SyncPayload{Type: models.SyncTypeRate, Rate: &r})
	}
	if pd := req.PlatformDeposit; pd != nil {
		copied := *pd
		copied.Address = strings.TrimSpace(copied.Address)
		if copied.Network == "" {
			copied.Network = models.DefaultDepositNetwork
		}
		if copied.UpdatedAt.IsZero() {
			copied.UpdatedAt = now
		}
		payloads = append(payloads, models.SyncPayload{Type: models.SyncTypePlatformDeposit, PlatformDeposit: &copied})
	}

	for _, p := range payloads {
		if err := p.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_payload", "detail": err.Error()})
			return
		}
	}

	applied := 0
	for _, p := range payloads {
		rec, err := recordFromPayload(p, now)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_payload", "detail": err.Error()})
			return
		}
		written, err := s.repo.Upsert(ctx, rec)
		if err != nil {
			zap.L().Error("Failed to store platform config", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "storage_error"})
			return
		}
		if written {
			applied++
		}
	}

	zap.L().Info("Platform config updated by admin",
		zap.Int("rates", len(req.DisplayRates)),
		zap.Bool("platform_deposit", req.PlatformDeposit != nil),
		zap.Int("applied", applied))
	c.JSON(http.StatusOK, gin.H{"ok": true, "applied": applied})
}

func (s *Server) publicPlatformConfig(c *gin.Context) {
	ctx := c.Request.Context()
	rates, err := decodeRecords[models.Rate](ctx, s.repo, models.SyncTypeRate, s.cfg.ListLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "storage_error"})
		return
	}
	pd, err := s.platformDeposit(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "storage_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "displayRates": rates, "platformDeposit": pd})
}
