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

	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/payments"

	"go.uber.org/zap"
)

func (s *TradingService) ListPaymentMethods(ctx context.Context, username string) ([]models.PaymentMethod, error) {
	return s.svc.Payments.ListForUser(ctx, username)
}

func (s *TradingService) AddPaymentMethod(ctx context.Context, pm models.PaymentMethod) (*models.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added, err := s.svc.Payments.Add(ctx, pm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	zap.L().Info("Payment method added",
		zap.String("username", added.Username),
		zap.String("payment_method_id", added.Id),
		zap.String("kind", added.Kind),
		zap.Bool("is_default", added.IsDefault))

	s.syncPaymentMethods(ctx, added.Username, "add")
	return added, nil
}

func (s *TradingService) UpdatePaymentMethod(ctx context.Context, pm models.PaymentMethod) (*models.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := s.svc.Payments.Update(ctx, pm)
	if err != nil {
		return nil, paymentError(err)
	}
	s.syncPaymentMethods(ctx, updated.Username, "update")
	return updated, nil
}

func (s *TradingService) RemovePaymentMethod(ctx context.Context, username, id string) (*models.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.svc.Payments.Remove(ctx, username, id)
	if err != nil {
		return nil, paymentError(err)
	}
	zap.L().Info("Payment method removed",
		zap.String("username", username),
		zap.String("payment_method_id", id))

	s.enqueue(ctx, models.SyncPayload{
		Type:          models.SyncTypePaymentMethod,
		Username:      username,
		Action:        "remove",
		PaymentMethod: removed,
	})
	// a removed default promotes a sibling
	s.syncPaymentMethods(ctx, username, "update")
	return removed, nil
}

func (s *TradingService) SetDefaultPaymentMethod(ctx context.Context, username, id string) (*models.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := s.svc.Payments.SetDefault(ctx, username, id)
	if err != nil {
		return nil, paymentError(err)
	}
	s.syncPaymentMethods(ctx, username, "set-default")
	return updated, nil
}

// syncPaymentMethods enqueues every method of username, since a default change touches siblings too
func (s *TradingService) syncPaymentMethods(ctx context.Context, username, action string) {
	list, err := s.svc.Payments.ListForUser(ctx, username)
	if err != nil {
		zap.L().Error("Failed to load payment methods for sync",
			zap.String("username", username),
			zap.Error(err))
		return
	}
	for i := range list {
		pm := list[i]
		s.enqueue(ctx, models.SyncPayload{
			Type:          models.SyncTypePaymentMethod,
			Username:      username,
			Action:        action,
			PaymentMethod: &pm,
		})
	}
}

func paymentError(err error) error {
	if errors.Is(err, payments.ErrPaymentMethodNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}
