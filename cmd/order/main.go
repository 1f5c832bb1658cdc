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
	"errors"
	"flag"
	"fmt"

	"trading-hall-sync-go/internal/api"
	"trading-hall-sync-go/internal/common"
	"trading-hall-sync-go/internal/config"
	"trading-hall-sync-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type orderFlags struct {
	username        string
	amount          string
	price           string
	paymentMethodId string
	paymentMethod   string
	receiptAddress  string
	list            bool
}

func parseDecimal(name, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, fmt.Errorf("--%s is required", name)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s %q: %w", name, value, err)
	}
	return d, nil
}

func printOrder(order models.Order, isLast bool) {
	fmt.Printf("%s %s  %-22s %14s USDT @ %-8s net %10s  %s\n",
		common.BoxPrefix(isLast),
		order.CreatedAt.Format("2006-01-02 15:04"),
		order.Status,
		order.AmountUSDT.StringFixed(6),
		order.UnitPrice.String(),
		common.Fiat(order.NetReceiveUSD),
		order.Id)
}

func listOrders(ctx context.Context, services *common.Services, username string) {
	orders, err := services.Trading.ListOrdersForUser(ctx, username)
	if err != nil {
		zap.L().Fatal("Failed to list orders", zap.String("username", username), zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("ORDERS FOR %s", username), common.WideWidth)
	for i, o := range orders {
		printOrder(o, i == len(orders)-1)
	}
	common.PrintFooter(fmt.Sprintf("%d orders", len(orders)), common.WideWidth)
}

func createOrder(ctx context.Context, services *common.Services, f orderFlags) {
	amount, err := parseDecimal("amount", f.amount)
	if err != nil {
		zap.L().Fatal("Invalid order", zap.Error(err))
	}
	price, err := parseDecimal("price", f.price)
	if err != nil {
		zap.L().Fatal("Invalid order", zap.Error(err))
	}

	order, err := services.Trading.CreateOrder(ctx, models.CreateOrderRequest{
		Username:        f.username,
		AmountUSDT:      amount,
		UnitPrice:       price,
		PaymentMethod:   f.paymentMethod,
		PaymentMethodId: f.paymentMethodId,
		ReceiptAddress:  f.receiptAddress,
	})
	switch {
	case errors.Is(err, api.ErrInsufficientBalance):
		balance, _ := services.Trading.GetBalance(ctx, f.username)
		fmt.Printf("✗ Insufficient balance: have %s, need %s\n", common.USDT(balance), common.USDT(amount))
		return
	case errors.Is(err, api.ErrBelowMinimum):
		fmt.Printf("✗ %v\n", err)
		return
	case errors.Is(err, api.ErrPaymentMethodRequired):
		fmt.Println("✗ No payment method: pass --payment-method-id or add one with cmd/adduser")
		return
	case err != nil:
		zap.L().Fatal("Failed to create order", zap.Error(err))
	}

	balance, err := services.Trading.GetBalance(ctx, f.username)
	if err != nil {
		zap.L().Warn("Failed to read balance after order", zap.Error(err))
	}

	common.PrintHeader("ORDER CREATED", common.DefaultWidth)
	common.PrintField("Order id", order.Id)
	common.PrintField("Amount", common.USDT(order.AmountUSDT))
	common.PrintField("Unit price", order.UnitPrice.String())
	common.PrintField("Total", common.Fiat(order.TotalUSD))
	common.PrintField("Net receive", common.Fiat(order.NetReceiveUSD))
	common.PrintField("Payment method", order.PaymentMethod)
	common.PrintField("Status", order.Status)
	common.PrintField("Balance left", common.USDT(balance))
	common.PrintSeparator("=", common.DefaultWidth)

	zap.L().Info("Order created",
		zap.String("order_id", order.Id),
		zap.String("username", order.CreatorUsername),
		zap.String("amount", order.AmountUSDT.String()))
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	f := orderFlags{}
	flag.StringVar(&f.username, "username", "", "Seller username (required)")
	flag.StringVar(&f.amount, "amount", "", "USDT amount to sell")
	flag.StringVar(&f.price, "price", "", "Unit price in fiat per USDT")
	flag.StringVar(&f.paymentMethodId, "payment-method-id", "", "Id of a saved payment method (defaults to the user's default)")
	flag.StringVar(&f.paymentMethod, "payment-method", "", "Free-form payment method name, used when no id is given")
	flag.StringVar(&f.receiptAddress, "receipt", "", "Receipt address shown to the buyer (optional)")
	flag.BoolVar(&f.list, "list", false, "List the user's orders instead of creating one")
	flag.Parse()

	if f.username == "" {
		zap.L().Fatal("--username is required")
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

	if f.list {
		listOrders(ctx, services, f.username)
		return
	}
	createOrder(ctx, services, f)
}
