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

	"trading-hall-sync-go/internal/common"
	"trading-hall-sync-go/internal/config"
	"trading-hall-sync-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type setupFlags struct {
	admin          string
	minOrder       string
	rates          string
	depositAddress string
	depositNetwork string
	depositNote    string
}

// parseRates reads "CNY=7.2,KRW=1380" into quote/value pairs
func parseRates(raw string) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal)
	if raw == "" {
		return rates, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		quote, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || quote == "" {
			return nil, fmt.Errorf("invalid rate %q, expected QUOTE=VALUE", pair)
		}
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("invalid rate value for %s: %w", quote, err)
		}
		rates[strings.ToUpper(quote)] = d
	}
	return rates, nil
}

func applyPlatformChanges(ctx context.Context, services *common.Services, f setupFlags) {
	if f.minOrder != "" {
		amount, err := decimal.NewFromString(f.minOrder)
		if err != nil {
			zap.L().Fatal("Invalid minimum order amount", zap.String("value", f.minOrder), zap.Error(err))
		}
		applied, err := services.Trading.SetMinOrderAmount(ctx, amount, f.admin)
		if err != nil {
			zap.L().Fatal("Failed to set minimum order amount", zap.Error(err))
		}
		zap.L().Info("Minimum order amount updated", zap.String("amount", applied.String()))
	}

	rates, err := parseRates(f.rates)
	if err != nil {
		zap.L().Fatal("Invalid rates", zap.Error(err))
	}
	for quote, value := range rates {
		if _, err := services.Trading.SetDisplayRate(ctx, quote, value, f.admin); err != nil {
			zap.L().Fatal("Failed to set display rate", zap.String("quote", quote), zap.Error(err))
		}
		zap.L().Info("Display rate updated", zap.String("quote", quote), zap.String("value", value.String()))
	}

	if f.depositAddress != "" {
		pd, err := services.Trading.SetPlatformDeposit(ctx, models.PlatformDeposit{
			Address: f.depositAddress,
			Network: f.depositNetwork,
			Note:    f.depositNote,
		}, f.admin)
		if err != nil {
			zap.L().Fatal("Failed to set platform deposit address", zap.Error(err))
		}
		zap.L().Info("Platform deposit address updated",
			zap.String("address", pd.Address),
			zap.String("network", pd.Network))
	}
}

func printPlatformConfig(ctx context.Context, services *common.Services) {
	cfg, err := services.Trading.GetPlatformConfig(ctx)
	if err != nil {
		zap.L().Fatal("Failed to read platform config", zap.Error(err))
	}

	common.PrintHeader("PLATFORM CONFIGURATION", common.DefaultWidth)
	fmt.Printf("Minimum order:   %s USDT\n", cfg.MinOrderAmount.String())
	fmt.Println("Display rates:")
	for i, r := range cfg.DisplayRates {
		fmt.Printf("%s 1 %s = %s %s\n", common.BoxPrefix(i == len(cfg.DisplayRates)-1), r.Base, r.Value.String(), r.Quote)
	}
	if cfg.PlatformDeposit != nil {
		fmt.Printf("Deposit address: %s (%s)\n", cfg.PlatformDeposit.Address, cfg.PlatformDeposit.Network)
	} else {
		fmt.Println("Deposit address: not configured")
	}
}

func printQueueStatus(ctx context.Context, services *common.Services) {
	stats, err := services.Queue.Stats(ctx)
	if err != nil {
		zap.L().Fatal("Failed to read sync queue", zap.Error(err))
	}

	common.PrintHeader("SYNC QUEUE", common.DefaultWidth)
	fmt.Printf("Remote configured: %t\n", services.Queue.RemoteConfigured())
	fmt.Printf("Pending:           %d\n", stats.Pending)
	fmt.Printf("Sent (recent):     %d\n", stats.Sent)
	fmt.Printf("Dead letters:      %d\n", stats.DeadLetters)

	dead, err := services.Queue.DeadLetters(ctx)
	if err != nil {
		zap.L().Warn("Failed to read dead letters", zap.Error(err))
		return
	}
	for i, d := range dead {
		fmt.Printf("%s %s %-16s retries %d: %s\n",
			common.BoxPrefix(i == len(dead)-1), d.Item.Id, d.Item.Type, d.Item.Retry, d.LastError)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	f := setupFlags{}
	flag.StringVar(&f.admin, "admin", "", "Admin username, required for any change")
	flag.StringVar(&f.minOrder, "min-order", "", "Set the minimum order amount in USDT")
	flag.StringVar(&f.rates, "rates", "", "Set display rates, e.g. CNY=7.2,KRW=1380")
	flag.StringVar(&f.depositAddress, "deposit-address", "", "Set the platform deposit address")
	flag.StringVar(&f.depositNetwork, "deposit-network", models.DefaultDepositNetwork, "Network of the platform deposit address")
	flag.StringVar(&f.depositNote, "deposit-note", "", "Note shown with the platform deposit address")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	changing := f.minOrder != "" || f.rates != "" || f.depositAddress != ""
	if changing {
		if f.admin == "" {
			zap.L().Fatal("--admin is required to change platform settings")
		}
		applyPlatformChanges(ctx, services, f)
	}

	printPlatformConfig(ctx, services)
	printQueueStatus(ctx, services)
}
