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

package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/orders"
	"trading-hall-sync-go/internal/payments"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	AmountPlaces = 6
	FiatPlaces   = 2
)

// orderTransitions lists the statuses each order status may move to
var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPendingReview:  {models.OrderStatusApprovedPayout, models.OrderStatusRejectedPayout},
	models.OrderStatusApprovedPayout: {models.OrderStatusCompleted},
}

func canTransition(from, to models.OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateOrder debits the creator's topped-up balance and records a sell order awaiting review
func (s *TradingService) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if !req.AmountUSDT.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrValidation, req.AmountUSDT)
	}
	if !req.UnitPrice.IsPositive() {
		return nil, fmt.Errorf("%w: unit price must be positive, got %s", ErrValidation, req.UnitPrice)
	}
	amount := req.AmountUSDT.Round(AmountPlaces)

	s.mu.Lock()
	defer s.mu.Unlock()

	minimum, err := s.svc.Platform.MinOrderAmount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read minimum order amount: %w", err)
	}
	if amount.LessThan(minimum) {
		return nil, fmt.Errorf("%w: %s < %s", ErrBelowMinimum, amount, minimum)
	}

	methodName, methodId, err := s.resolvePaymentMethod(ctx, req)
	if err != nil {
		return nil, err
	}

	balance, err := s.svc.Assets.GetBalance(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		zap.L().Info("Order rejected for insufficient balance",
			zap.String("username", req.Username),
			zap.String("amount", amount.String()),
			zap.String("balance", balance.String()))
		return nil, fmt.Errorf("%w: balance %s, required %s", ErrInsufficientBalance, balance, amount)
	}

	total := amount.Mul(req.UnitPrice).Round(FiatPlaces)
	net := total.Mul(decimal.NewFromInt(1).Sub(s.serviceFeeRate).Sub(s.grabFeeRate)).Round(FiatPlaces)
	now := s.now()

	order := models.Order{
		Id:              s.newId(),
		AmountUSDT:      amount,
		UnitPrice:       req.UnitPrice,
		TotalUSD:        total,
		NetReceiveUSD:   net,
		ServiceFeeRate:  s.serviceFeeRate,
		GrabbingFeeRate: s.grabFeeRate,
		Status:          models.OrderStatusPendingReview,
		ReceiptAddress:  strings.TrimSpace(req.ReceiptAddress),
		PaymentMethod:   methodName,
		PaymentMethodId: methodId,
		CreatorUsername: req.Username,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := models.Validate(order); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if _, err := s.svc.Assets.DecreaseBalance(ctx, req.Username, amount); err != nil {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}
	if err := s.svc.Orders.Insert(ctx, order); err != nil {
		if _, refundErr := s.svc.Assets.IncreaseBalance(ctx, req.Username, amount); refundErr != nil {
			zap.L().Error("Failed to restore balance after order insert failure",
				zap.String("username", req.Username),
				zap.String("amount", amount.String()),
				zap.Error(refundErr))
		}
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	zap.L().Info("Order created",
		zap.String("order_id", order.Id),
		zap.String("username", order.CreatorUsername),
		zap.String("amount", order.AmountUSDT.String()),
		zap.String("total_usd", order.TotalUSD.String()),
		zap.String("payment_method", order.PaymentMethod))

	s.enqueue(ctx, models.SyncPayload{
		Type:     models.SyncTypeOrder,
		Username: order.CreatorUsername,
		Action:   "create",
		Order:    &order,
	})
	return &order, nil
}

// resolvePaymentMethod returns the display name and id of the method an order pays out to.
// A method id must belong to the user; without one the free-form name, then the user's default, is used.
func (s *TradingService) resolvePaymentMethod(ctx context.Context, req models.CreateOrderRequest) (string, string, error) {
	if req.PaymentMethodId != "" {
		pm, err := s.svc.Payments.Get(ctx, req.Username, req.PaymentMethodId)
		if errors.Is(err, payments.ErrPaymentMethodNotFound) {
			return "", "", fmt.Errorf("%w: unknown method %s", ErrPaymentMethodRequired, req.PaymentMethodId)
		}
		if err != nil {
			return "", "", err
		}
		return paymentMethodName(pm), pm.Id, nil
	}

	if name := strings.TrimSpace(req.PaymentMethod); name != "" {
		return name, "", nil
	}

	pm, err := s.svc.Payments.Default(ctx, req.Username)
	if err != nil {
		return "", "", err
	}
	if pm == nil {
		return "", "", ErrPaymentMethodRequired
	}
	return paymentMethodName(pm), pm.Id, nil
}

func paymentMethodName(pm *models.PaymentMethod) string {
	if pm.Label != "" {
		return pm.Label
	}
	return pm.Kind
}

// TransitionOrder moves an order to next on behalf of reviewer. Rejection refunds
// the debited amount; completion distributes referral commission once.
func (s *TradingService) TransitionOrder(ctx context.Context, orderId string, next models.OrderStatus, patch models.OrderPatch, reviewer string) (*models.OrderTransitionResult, error) {
	if err := s.requireAdmin(reviewer); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var from models.OrderStatus
	updated, err := s.svc.Orders.Update(ctx, orderId, func(o *models.Order) error {
		from = o.Status
		if !canTransition(o.Status, next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
		}
		o.Status = next
		o.UpdatedAt = now
		if patch.ReviewNote != "" {
			o.ReviewNote = patch.ReviewNote
		}
		if patch.PayoutTxHash != "" {
			o.PayoutTxHash = patch.PayoutTxHash
		}
		switch next {
		case models.OrderStatusApprovedPayout, models.OrderStatusRejectedPayout:
			o.ReviewerUsername = reviewer
			o.ReviewedAt = &now
		case models.OrderStatusCompleted:
			o.CompletedAt = &now
		}
		return nil
	})
	if errors.Is(err, orders.ErrOrderNotFound) {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderId)
	}
	if err != nil {
		return nil, err
	}

	result := &models.OrderTransitionResult{Order: updated, Refunded: decimal.Zero}

	switch next {
	case models.OrderStatusRejectedPayout:
		if _, err := s.svc.Assets.IncreaseBalance(ctx, updated.CreatorUsername, updated.AmountUSDT); err != nil {
			return nil, fmt.Errorf("failed to refund order %s: %w", orderId, err)
		}
		result.Refunded = updated.AmountUSDT
	case models.OrderStatusCompleted:
		grants, err := s.svc.Commissions.Distribute(ctx, updated.Id, updated.CreatorUsername, updated.AmountUSDT)
		if err != nil {
			return nil, fmt.Errorf("failed to distribute commission for order %s: %w", orderId, err)
		}
		result.Commissions = grants
	}

	zap.L().Info("Order transitioned",
		zap.String("order_id", orderId),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
		zap.String("reviewer", reviewer),
		zap.String("refunded", result.Refunded.String()),
		zap.Int("commissions", len(result.Commissions)))

	s.enqueue(ctx, models.SyncPayload{
		Type:     models.SyncTypeOrder,
		Username: updated.CreatorUsername,
		Action:   string(next),
		Order:    updated,
	})
	return result, nil
}

func (s *TradingService) ApproveOrder(ctx context.Context, orderId, reviewer, note string) (*models.OrderTransitionResult, error) {
	return s.TransitionOrder(ctx, orderId, models.OrderStatusApprovedPayout, models.OrderPatch{ReviewNote: note}, reviewer)
}

func (s *TradingService) RejectOrder(ctx context.Context, orderId, reviewer, note string) (*models.OrderTransitionResult, error) {
	return s.TransitionOrder(ctx, orderId, models.OrderStatusRejectedPayout, models.OrderPatch{ReviewNote: note}, reviewer)
}

func (s *TradingService) CompleteOrder(ctx context.Context, orderId, reviewer, payoutTxHash string) (*models.OrderTransitionResult, error) {
	return s.TransitionOrder(ctx, orderId, models.OrderStatusCompleted, models.OrderPatch{PayoutTxHash: payoutTxHash}, reviewer)
}

// ListOrders returns every local order, newest first
func (s *TradingService) ListOrders(ctx context.Context) ([]models.Order, error) {
	return s.svc.Orders.List(ctx)
}

func (s *TradingService) ListOrdersForUser(ctx context.Context, username string) ([]models.Order, error) {
	return s.svc.Orders.ListForUser(ctx, username)
}
