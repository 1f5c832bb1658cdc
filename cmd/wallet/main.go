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

	"trading-hall-sync-go/internal/common"
	"trading-hall-sync-go/internal/config"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	usernameFlag := flag.String("username", "", "Username (required)")
	addressFlag := flag.String("address", "", "Withdrawal address to submit for review")
	flag.Parse()

	if *usernameFlag == "" {
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

	if *addressFlag != "" {
		info, err := services.Trading.SubmitWalletAddress(ctx, *usernameFlag, *addressFlag)
		if err != nil {
			zap.L().Fatal("Failed to submit wallet address", zap.Error(err))
		}
		fmt.Printf("✓ %s submitted %s (%s), status %s\n", *usernameFlag, info.Address, info.Network, info.Status)
		fmt.Println("An admin must approve it with: go run ./cmd/review --kind wallet --id " + *usernameFlag + " --admin <admin>")
		return
	}

	snapshot, err := services.Trading.GetSnapshot(ctx, *usernameFlag)
	if err != nil {
		zap.L().Fatal("Failed to read wallet status", zap.Error(err))
	}
	common.PrintField("Wallet status", snapshot.WalletStatus)
	common.PrintField("Withdrawable", common.USDT(snapshot.WithdrawableUSDT))
}
