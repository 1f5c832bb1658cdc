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

package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"trading-hall-sync-go/internal/api"
	"trading-hall-sync-go/internal/common"
	"trading-hall-sync-go/internal/config"
	"trading-hall-sync-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	kindOrder   = "order"
	kindDeposit = "deposit"
	kindWallet  = "wallet"
)

type reviewRequest struct {
	kind   string
	id     string
	action string
	admin  string
	amount string
	note   string
	txHash string
}

func validateRequest(req reviewRequest) error {
	if req.admin == "" {
		return fmt.Errorf("--admin is required")
	}
	if req.id == "" {
		return fmt.Errorf("--id is required")
	}
	switch req.kind {
	case kindOrder:
		switch req.action {
		case "approve", "reject", "complete":
			return nil
		}
	case kindDeposit:
		switch req.action {
		case "approve", "reject":
			return nil
		}
	case kindWallet:
		if req.action == "approve" {
			return nil
		}
	default:
		return fmt.Errorf("unknown kind %q (expected order, deposit or wallet)", req.kind)
	}
	return fmt.Errorf("action %q not supported for %s", req.action, req.kind)
}

func reviewOrder(ctx context.Context, services *common.Services, req reviewRequest) error {
	var (
		result *models.OrderTransitionResult
		err    error
	)
	switch req.action {
	case "approve":
		result, err = services.Trading.ApproveOrder(ctx, req.id, req.admin, req.note)
	case "reject":
		result, err = services.Trading.RejectOrder(ctx, req.id, req.admin, req.note)
	case "complete":
		result, err = services.Trading.CompleteOrder(ctx, req.id, req.admin, req.txHash)
	}
	if err != nil {
		return err
	}

	order := result.Order
	fmt.Printf("Order:      %s\n", order.Id)
	fmt.Printf("User:       %s\n", order.CreatorUsername)
	fmt.Printf("Amount:     %s @ %s\n", common.USDT(order.AmountUSDT), order.UnitPrice.String())
	fmt.Printf("Status:     %s\n", order.Status)
	if !result.Refunded.IsZero() {
		fmt.Printf("Refunded:   %s\n", common.USDT(result.Refunded))
	}
	for _, g := range result.Commissions {
		fmt.Printf("Commission: L%d %s -> %s\n", g.Level, common.USDT(g.AmountUSDT), g.ToUsername)
	}
	return nil
}

// approvedAmount uses --amount when given, otherwise the amount the user requested
func approvedAmount(ctx context.Context, services *common.Services, req reviewRequest) (decimal.Decimal, error) {
	if req.amount != "" {
		amount, err := decimal.NewFromString(req.amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid amount %q: %w", req.amount, err)
		}
		return amount, nil
	}

	deposits, err := services.Trading.ListDeposits(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, d := range deposits {
		if d.Id == req.id {
			return d.AmountRequestedUSDT, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: deposit %s", api.ErrNotFound, req.id)
}

func reviewDeposit(ctx context.Context, services *common.Services, req reviewRequest) error {
	var (
		result *models.DepositResult
		amount decimal.Decimal
		err    error
	)
	if req.action == "approve" {
		amount, err = approvedAmount(ctx, services, req)
		if err != nil {
			return err
		}
		result, err = services.Trading.ApproveDeposit(ctx, req.id, amount, req.admin, req.note)
	} else {
		result, err = services.Trading.RejectDeposit(ctx, req.id, req.admin, req.note)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Deposit:     %s\n", result.Deposit.Id)
	fmt.Printf("User:        %s\n", result.Deposit.Username)
	fmt.Printf("Status:      %s\n", result.Deposit.Status)
	fmt.Printf("Credited:    %s\n", common.USDT(result.Credited))
	fmt.Printf("New balance: %s\n", common.USDT(result.NewBalance))
	return nil
}

func reviewWallet(ctx context.Context, services *common.Services, req reviewRequest) error {
	info, err := services.Trading.ApproveWalletAddress(ctx, req.id, req.admin)
	if err != nil {
		return err
	}
	fmt.Printf("User:    %s\n", req.id)
	fmt.Printf("Address: %s (%s)\n", info.Address, info.Network)
	fmt.Printf("Status:  %s\n", info.Status)
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req := reviewRequest{}
	flag.StringVar(&req.kind, "kind", kindOrder, "What to review: order, deposit or wallet")
	flag.StringVar(&req.id, "id", "", "Order id, deposit id, or username for wallet reviews (required)")
	flag.StringVar(&req.action, "action", "approve", "approve, reject or complete (orders only)")
	flag.StringVar(&req.admin, "admin", "", "Reviewing admin username (required)")
	flag.StringVar(&req.amount, "amount", "", "Approved deposit amount in USDT (defaults to the requested amount)")
	flag.StringVar(&req.note, "note", "", "Review note (optional)")
	flag.StringVar(&req.txHash, "tx", "", "Payout transaction hash when completing an order (optional)")
	flag.Parse()

	req.kind = strings.ToLower(req.kind)
	req.action = strings.ToLower(req.action)
	if err := validateRequest(req); err != nil {
		zap.L().Fatal("Invalid review request", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	common.PrintHeader(fmt.Sprintf("%s %s", strings.ToUpper(req.action), strings.ToUpper(req.kind)), common.DefaultWidth)

	switch req.kind {
	case kindOrder:
		err = reviewOrder(ctx, services, req)
	case kindDeposit:
		err = reviewDeposit(ctx, services, req)
	case kindWallet:
		err = reviewWallet(ctx, services, req)
	}
	if err != nil {
		zap.L().Error("Review failed",
			zap.String("kind", req.kind),
			zap.String("id", req.id),
			zap.String("action", req.action),
			zap.Error(err))
		fmt.Printf("✗ %v\n", err)
		return
	}

	common.PrintSeparator("=", common.DefaultWidth)
	zap.L().Info("Review applied",
		zap.String("kind", req.kind),
		zap.String("id", req.id),
		zap.String("action", req.action),
		zap.String("admin", req.admin))
}
