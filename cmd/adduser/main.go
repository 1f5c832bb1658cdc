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
	"regexp"

	"trading-hall-sync-go/internal/api"
	"trading-hall-sync-go/internal/common"
	"trading-hall-sync-go/internal/config"
	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/referral"

	"go.uber.org/zap"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._\-]{2,32}$`)

func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("invalid username format: %s", username)
	}
	return nil
}

func addPaymentMethod(ctx context.Context, services *common.Services, username, kind, account, holder string) {
	if kind == "" || account == "" {
		return
	}
	pm, err := services.Trading.AddPaymentMethod(ctx, models.PaymentMethod{
		Username:   username,
		Kind:       kind,
		Account:    account,
		HolderName: holder,
	})
	if err != nil {
		zap.L().Error("Failed to add payment method", zap.String("username", username), zap.Error(err))
		fmt.Printf("✗ Payment method not added: %v\n", err)
		return
	}
	fmt.Printf("✓ Payment method %s (%s) added as default: %t\n", pm.Id, pm.Kind, pm.IsDefault)
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	usernameFlag := flag.String("username", "", "Username (required)")
	inviterFlag := flag.String("inviter", "", "Invite code of the inviting user (optional)")
	kindFlag := flag.String("payment-kind", "", "Payment method kind to register, e.g. bank or alipay (optional)")
	accountFlag := flag.String("payment-account", "", "Payment account number (required with --payment-kind)")
	holderFlag := flag.String("payment-holder", "", "Payment account holder name (optional)")
	flag.Parse()

	if err := validateUsername(*usernameFlag); err != nil {
		zap.L().Fatal("Invalid username", zap.Error(err))
	}

	zap.L().Info("Starting user registration",
		zap.String("username", *usernameFlag),
		zap.String("inviter_code", *inviterFlag))

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	profile, err := services.Trading.RegisterUser(ctx, *usernameFlag, *inviterFlag)
	switch {
	case errors.Is(err, referral.ErrInviterAlreadySet), errors.Is(err, referral.ErrReferralCycle):
		zap.L().Fatal("Invalid inviter", zap.String("inviter_code", *inviterFlag), zap.Error(err))
	case errors.Is(err, api.ErrValidation):
		zap.L().Fatal("Invalid registration", zap.Error(err))
	case err != nil:
		zap.L().Fatal("Failed to register user", zap.Error(err))
	}

	fmt.Println()
	common.PrintHeader("USER REGISTERED", common.DefaultWidth)
	fmt.Printf("Username:     %s\n", profile.Username)
	fmt.Printf("Invite code:  %s\n", profile.InviteCode)
	if profile.InviterCode != "" {
		fmt.Printf("Invited by:   %s\n", profile.InviterCode)
	}
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	addPaymentMethod(ctx, services, profile.Username, *kindFlag, *accountFlag, *holderFlag)

	zap.L().Info("User registered successfully",
		zap.String("username", profile.Username),
		zap.String("invite_code", profile.InviteCode))
}
