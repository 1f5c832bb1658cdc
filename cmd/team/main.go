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

	"go.uber.org/zap"
)

func printLevel(level models.TeamLevel, isLast bool) {
	members := "none"
	if len(level.Members) > 0 {
		members = strings.Join(level.Members, ", ")
	}
	fmt.Printf("%s Level %d: %3d members, commission %s USDT\n",
		common.BoxPrefix(isLast), level.Level, len(level.Members), level.Commission.StringFixed(6))
	fmt.Printf("%s   %s\n", common.BoxDetailPrefix(isLast), members)
}

func printRecent(grants []models.CommissionGrant) {
	if len(grants) == 0 {
		return
	}
	fmt.Println("\nRecent commissions:")
	for i, g := range grants {
		fmt.Printf("%s L%d %14s USDT from %-16s order %s (%s)\n",
			common.BoxPrefix(i == len(grants)-1),
			g.Level, g.AmountUSDT.StringFixed(6), g.FromUsername, g.OrderId,
			g.CreatedAt.Format("2006-01-02 15:04:05"))
	}
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	usernameFlag := flag.String("username", "", "Username whose team to show (required)")
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

	team, err := services.Trading.ComputeTeamHierarchy(ctx, *usernameFlag)
	if err != nil {
		zap.L().Fatal("Failed to compute team", zap.String("username", *usernameFlag), zap.Error(err))
	}

	totals, err := services.Trading.CommissionTotals(ctx, *usernameFlag)
	if err != nil {
		zap.L().Fatal("Failed to load commissions", zap.String("username", *usernameFlag), zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("TEAM OF %s (invite code %s)", team.Username, team.InviteCode), common.DefaultWidth)
	for i, level := range team.Levels {
		printLevel(level, i == len(team.Levels)-1)
	}
	printRecent(totals.Recent)
	common.PrintFooter(fmt.Sprintf("TOTAL COMMISSION: %s", common.USDT(team.Total)), common.DefaultWidth)
}
