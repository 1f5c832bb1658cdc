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

	"trading-hall-sync-go/internal/deposits"
	"trading-hall-sync-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SubmitDeposit records a top-up request awaiting admin review
func (s *TradingService) SubmitDeposit(ctx context.Context, username string, amount decimal.Decimal, proofImage, txHash, note string) (*models.DepositRequest, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit amount must be positive, got %s", ErrValidation, amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	deposit := models.DepositRequest{
		Id:                  s.newId(),
		Username:            username,
		AmountRequestedUSDT: amount.Round(AmountPlaces),
		ProofImage:          proofImage,
		TxHash:              strings.TrimSpace(txHash),
		NoteUser:            note,
		Status:              models.DepositStatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := models.Validate(deposit); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.svc.Deposits.Insert(ctx, deposit); err != nil {
		return nil, fmt.Errorf("failed to save deposit: %w", err)
	}

	zap.L().Info("Deposit submitted",
		zap.String("deposit_id", deposit.Id),
		zap.String("username", username),
		zap.String("amount", deposit.AmountRequestedUSDT.String()))

	s.enqueue(ctx, models.SyncPayload{
		Type:     models.SyncTypeDeposit,
		Username: username,
		Action:   "submit",
		Deposit:  &deposit,
	})
	return &deposit, nil
}

// ApproveDeposit credits amountApproved, which may differ from the requested amount, exactly once
func (s *TradingService) ApproveDeposit(ctx context.Context, depositId string, amountApproved decimal.Decimal, reviewer, note string) (*models.DepositResult, error) {
	if err := s.requireAdmin(reviewer); err != nil {
		return nil, err
	}
	if !amountApproved.IsPositive() {
		return nil, fmt.Errorf("%w: approved amount must be positive, got %s", ErrValidation, amountApproved)
	}
	amountApproved = amountApproved.Round(AmountPlaces)

	s.mu.Lock()
	defer s.mu.Unlock()

	deposit, err := s.reviewDeposit(ctx, depositId, models.DepositStatusApproved, reviewer, note, amountApproved)
	if err != nil {
		return nil, err
	}

	newBalance, err := s.svc.Assets.IncreaseBalance(ctx, deposit.Username, amountApproved)
	if err != nil {
		zap.L().Error("Deposit approved but balance credit failed",
			zap.String("deposit_id", depositId),
			zap.String("username", deposit.Username),
			zap.Error(err))
		return nil, fmt.Errorf("failed to credit deposit %s: %w", depositId, err)
	}

	zap.L().Info("Deposit approved",
		zap.String("deposit_id", depositId),
		zap.String("username", deposit.Username),
		zap.String("requested", deposit.AmountRequestedUSDT.String()),
		zap.String("approved", amountApproved.String()),
		zap.String("new_balance", newBalance.String()),
		zap.String("reviewer", reviewer))

	s.enqueue(ctx, models.SyncPayload{
		Type:     models.SyncTypeDeposit,
		Username: deposit.Username,
		Action:   "approve",
		Deposit:  deposit,
	})

	return &models.DepositResult{
		Success:    true,
		Deposit:    deposit,
		Credited:   amountApproved,
		NewBalance: newBalance,
	}, nil
}

// RejectDeposit closes a pending deposit without touching the balance
func (s *TradingService) RejectDeposit(ctx context.Context, depositId, reviewer, note string) (*models.DepositResult, error) {
	if err := s.requireAdmin(reviewer); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deposit, err := s.reviewDeposit(ctx, depositId, models.DepositStatusRejected, reviewer, note, decimal.Zero)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Deposit rejected",
		zap.String("deposit_id", depositId),
		zap.String("username", deposit.Username),
		zap.String("reviewer", reviewer))

	// the rejection is stored at this point, so it is synced even if the balance read fails
	s.enqueue(ctx, models.SyncPayload{
		Type:     models.SyncTypeDeposit,
		Username: deposit.Username,
		Action:   "reject",
		Deposit:  deposit,
	})

	balance, err := s.svc.Assets.GetBalance(ctx, deposit.Username)
	if err != nil {
		zap.L().Error("Deposit rejected but balance lookup failed",
			zap.String("deposit_id", depositId),
			zap.String("username", deposit.Username),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read balance after rejecting deposit %s: %w", depositId, err)
	}

	return &models.DepositResult{
		Success:    true,
		Deposit:    deposit,
		Credited:   decimal.Zero,
		NewBalance: balance,
	}, nil
}

// reviewDeposit moves a pending deposit to status. The status check runs on the
// freshly loaded record inside the atomic update.
func (s *TradingService) reviewDeposit(ctx context.Context, depositId string, status models.DepositStatus, reviewer, note string, approved decimal.Decimal) (*models.DepositRequest, error) {
	now := s.now()
	deposit, err := s.svc.Deposits.Update(ctx, depositId, func(d *models.DepositRequest) error {
		if d.Status != models.DepositStatusPending {
			return fmt.Errorf("%w: deposit %s is %s", ErrAlreadyReviewed, d.Id, d.Status)
		}
		d.Status = status
		d.AmountApprovedUSDT = approved
		d.NoteAdmin = note
		d.ReviewerUsername = reviewer
		d.ReviewedAt = &now
		d.UpdatedAt = now
		return nil
	})
	if errors.Is(err, deposits.ErrDepositNotFound) {
		return nil, fmt.Errorf("%w: deposit %s", ErrNotFound, depositId)
	}
	if err != nil {
		if errors.Is(err, ErrAlreadyReviewed) {
			zap.L().Warn("Deposit review refused",
				zap.String("deposit_id", depositId),
				zap.String("reviewer", reviewer),
				zap.Error(err))
		}
		return nil, err
	}
	return deposit, nil
}

// ListDeposits returns every deposit request, newest first
func (s *TradingService) ListDeposits(ctx context.Context) ([]models.DepositRequest, error) {
	return s.svc.Deposits.List(ctx)
}

func (s *TradingService) ListDepositsForUser(ctx context.Context, username string) ([]models.DepositRequest, error) {
	return s.svc.Deposits.ListForUser(ctx, username)
}
