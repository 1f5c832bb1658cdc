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

	"trading-hall-sync-go/internal/api"
	"trading-hall-sync-go/internal/common"
	"trading-hall-sync-go/internal/config"
	"trading-hall-sync-go/internal/models"

	"go.uber.org/zap"
)

type balanceStats struct {
	totalUsers        int
	usersWithBalances int
	pendingWallets    int
}

func printSnapshot(snapshot *models.AssetSnapshot) {
	fmt.Printf("%s %-22s: %20s\n", common.BoxPrefix(false), "Balance (USDT)", snapshot.BalanceUSDT.StringFixed(6))
	fmt.Printf("%s %-22s: %20s\n", common.BoxPrefix(false), "Commission (USDT)", snapshot.CommissionTotalUSDT.StringFixed(6))
	fmt.Printf("%s %-22s: %20s\n", common.BoxPrefix(false), "Available (USDT)", snapshot.AvailableBalanceUSDT.StringFixed(6))
	fmt.Printf("%s %-22s: %20s (wallet: %s)\n", common.BoxPrefix(true), "Withdrawable (USDT)",
		snapshot.WithdrawableUSDT.StringFixed(6), snapshot.WalletStatus)
}

func printUserHeader(user models.UserProfile) {
	fmt.Printf("\n┌─ User: %s\n", user.Username)
	fmt.Printf("│  Invite code: %s\n", user.InviteCode)
	if user.InviterCode != "" {
		fmt.Printf("│  Invited by:  %s\n", user.InviterCode)
	}
	common.PrintBoxSeparator(78)
}

func processUsersAndGenerateReport(ctx context.Context, users []models.UserProfile, trading *api.TradingService, logger *zap.Logger) balanceStats {
	stats := balanceStats{}

	for _, user := range users {
		stats.totalUsers++

		snapshot, err := trading.GetSnapshot(ctx, user.Username)
		if err != nil {
			logger.Error("Failed to build snapshot",
				zap.String("username", user.Username),
				zap.Error(err))
			continue
		}

		printUserHeader(user)
		printSnapshot(snapshot)

		if snapshot.BalanceUSDT.IsPositive() {
			stats.usersWithBalances++
		}
		if snapshot.WalletStatus == models.WalletStatusPendingReview {
			stats.pendingWallets++
		}
	}

	return stats
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	usersFlag := flag.String("users", "", "Comma-separated usernames or invite codes (default: all users)")
	flag.Parse()

	logger.Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	users, err := common.SelectProfiles(ctx, services.Trading, *usersFlag)
	if err != nil {
		logger.Fatal("Failed to select users", zap.Error(err))
	}
	logger.Info("Selected users", zap.Int("count", len(users)))

	common.PrintHeader("USER ASSET REPORT", common.DefaultWidth)

	stats := processUsersAndGenerateReport(ctx, users, services.Trading, logger)

	summary := fmt.Sprintf("SUMMARY: %d users with balances, %d wallet addresses awaiting review (%d users queried)",
		stats.usersWithBalances, stats.pendingWallets, stats.totalUsers)
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("Balance query completed",
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("users_with_balances", stats.usersWithBalances),
		zap.Int("pending_wallets", stats.pendingWallets))
}
