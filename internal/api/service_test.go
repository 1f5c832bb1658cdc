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
	"strconv"
	"strings"
	"testing"
	"time"

	"trading-hall-sync-go/internal/assets"
	"trading-hall-sync-go/internal/commission"
	"trading-hall-sync-go/internal/database"
	"trading-hall-sync-go/internal/deposits"
	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/orders"
	"trading-hall-sync-go/internal/payments"
	"trading-hall-sync-go/internal/platform"
	"trading-hall-sync-go/internal/referral"
	"trading-hall-sync-go/internal/store"
	"trading-hall-sync-go/internal/syncqueue"

	"github.com/shopspring/decimal"
)

const testAdmin = "admin"

type fixture struct {
	svc   *TradingService
	queue *syncqueue.Queue
	kv    store.KeyValueStore
}

func setupTradingTest(t *testing.T) (*fixture, func()) {
	kv, err := database.OpenInMemory(context.Background())
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}

	orderRepo := orders.NewRepository(kv)
	referralService := referral.NewService(kv)
	commissionService := commission.NewService(kv, referralService)
	queue, err := syncqueue.New(kv, models.SyncConfig{})
	if err != nil {
		t.Fatalf("Failed to create sync queue: %v", err)
	}

	svc := NewTradingService(Services{
		Orders:      orderRepo,
		Deposits:    deposits.NewRepository(kv),
		Referral:    referralService,
		Commissions: commissionService,
		Assets:      assets.NewService(kv, orderRepo, commissionService),
		Payments:    payments.NewService(kv),
		Platform:    platform.NewService(kv, platform.DefaultConfig(decimal.NewFromInt(200))),
		Sync:        queue,
	}, models.PlatformSettings{}, []string{testAdmin})

	seq := 0
	svc.newId = func() string {
		seq++
		return "id-" + strconv.Itoa(seq)
	}
	tick := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	return &fixture{svc: svc, queue: queue, kv: kv}, kv.Close
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fund registers username, approves a deposit of amount and adds a bank method
func fund(t *testing.T, f *fixture, username, amount string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.RegisterUser(ctx, username, ""); err != nil {
		t.Fatalf("RegisterUser failed: %v", err)
	}
	dep, err := f.svc.SubmitDeposit(ctx, username, dec(amount), "", "", "")
	if err != nil {
		t.Fatalf("SubmitDeposit failed: %v", err)
	}
	if _, err := f.svc.ApproveDeposit(ctx, dep.Id, dec(amount), testAdmin, ""); err != nil {
		t.Fatalf("ApproveDeposit failed: %v", err)
	}
	_, err = f.svc.AddPaymentMethod(ctx, models.PaymentMethod{Username: username, Kind: "bank", Account: "6222-" + username})
	if err != nil {
		t.Fatalf("AddPaymentMethod failed: %v", err)
	}
}

func expectBalance(t *testing.T, f *fixture, username, want string) {
	t.Helper()
	got, err := f.svc.GetBalance(context.Background(), username)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !got.Equal(dec(want)) {
		t.Errorf("Expected %s balance %s, got %s", username, want, got)
	}
}

func TestRejectOrder_RestoresBalance(t *testing.T) {
	f, cleanup := setupTradingTest(t)
	defer cleanup()
	ctx := context.Background()

	fund(t, f, "alice", "300")

	order, err := f.svc.CreateOrder(ctx, models.CreateOrderRequest{
		Username:   "alice",
		AmountUSDT: dec("250"),
		UnitPrice:  dec("7.1234"),
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.Status != models.OrderStatusPendingReview {
		t.Errorf("Expected pending review, got %s", order.Status)
	}
	if !order.TotalUSD.Equal(dec("1780.85")) {
		t.Errorf("Expected total 1780.85, got %s", order.TotalUSD)
	}
	if !order.NetReceiveUSD.Equal(dec("1691.81")) {
		t.Errorf("Expected net 1691.81, got %s", order.NetReceiveUSD)
	}
	if order.PaymentMethod != "bank" || order.PaymentMethodId == "" {
		t.Errorf("Expected default bank method, got %q/%q", order.PaymentMethod, order.PaymentMethodId)
	}
	expectBalance(t, f, "alice", "50")

	result, err := f.svc.RejectOrder(ctx, order.Id, testAdmin, "mismatched account")
	if err != nil {
		t.Fatalf("RejectOrder failed: %v", err)
	}
	if !result.Refunded.Equal(dec("250")) {
		t.Errorf("Expected refund 250, got %s", result.Refunded)
	}
	if result.Order.ReviewerUsername != testAdmin || result.Order.ReviewedAt == nil {
		t.Errorf("Expected review metadata, got %+v", result.Order)
	}
	expectBalance(t, f, "alice", "300")

	if _, err := f.svc.ApproveOrder(ctx, order.Id, testAdmin, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition on rejected order, got %v", err)
	}
}

func TestApproveDeposit_PartialAmountThenConflict(t *testing.T) {
	f, cleanup := setupTradingTest(t)
	defer cleanup()
	ctx := context.Background()

	dep, err := f.svc.SubmitDeposit(ctx, "bob", dec("50"), "proof.png", "0xabc", "top up")
	if err != nil {
		t.Fatalf("SubmitDeposit failed: %v", err)
	}
	if dep.Status != models.DepositStatusPending {
		t.Errorf("Expected pending deposit, got %s", dep.Status)
	}

	result, err := f.svc.ApproveDeposit(ctx, dep.Id, dec("40"), testAdmin, "partial")
	if err != nil {
		t.Fatalf("ApproveDeposit failed: %v", err)
	}
	if !result.Credited.Equal(dec("40")) || !result.NewBalance.Equal(dec("40")) {
		t.Errorf("Expected 40 credited, got %+v", result)
	}
	if !result.Deposit.AmountApprovedUSDT.Equal(dec("40")) {
		t.Errorf("Expected approved amount 40, got %s", result.Deposit.AmountApprovedUSDT)
	}

	_, err = f.svc.ApproveDeposit(ctx, dep.Id, dec("40"), testAdmin, "")
	if !errors.Is(err, ErrAlreadyReviewed) || !errors.Is(err, ErrConflict) {
		t.Errorf("Expected already-reviewed conflict, got %v", err)
	}
	if _, err := f.svc.RejectDeposit(ctx, dep.Id, testAdmin, ""); !errors.Is(err, ErrAlreadyReviewed) {
		t.Errorf("Expected already-reviewed conflict on reject, got %v", err)
	}
	expectBalance(t, f, "bob", "40")
}

func TestRejectDeposit_LeavesBalance(t *testing.T) {
	f, cleanup := setupTradingTest(t)
	defer cleanup()
	ctx := context.Background()

	dep, err := f.svc.SubmitDeposit(ctx, "bob", dec("75"), "", "", "")
	if err != nil {
		t.Fatalf("SubmitDeposit failed: %v", err)
	}
	result, err := f.svc.RejectDeposit(ctx, dep.Id, testAdmin, "no transfer found")
	if err != nil {
		t.Fatalf("RejectDeposit failed: %v", err)
	}
	if result.Deposit.Status != models.DepositStatusRejected || !result.Credited.IsZero() {
		t.Errorf("Unexpected reject result: %+v", result)
	}
	expectBalance(t, f, "bob", "0")

	if _, err := f.svc.ApproveDeposit(ctx, "missing", dec("1"), testAdmin, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRejectDeposit_ReportsBalanceReadFailure(t *testing.T) {
	f, cleanup := setupTradingTest(t)
	defer cleanup()
	ctx := context.Background()

	dep, err := f.svc.SubmitDeposit(ctx, "bob", dec("75"), "", "", "")
	if err != nil {
		t.Fatalf("SubmitDeposit failed: %v", err)
	}
	if err := f.kv.Set(ctx, assets.KeyBalancePrefix+"bob", []byte("not-a-number")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	result, err := f.svc.RejectDeposit(ctx, dep.Id, testAdmin, "")
	if err == nil {
		t.Fatalf("Expected balance read error, got result %+v", result)
	}
	if !strings.Contains(err.Error(), dep.Id) {
		t.Errorf("Expected error to name the deposit, got %v", err)
	}

	// the rejection itself is kept and queued
	if _, err := f.svc.RejectDeposit(ctx, dep.Id, testAdmin, ""); !errors.Is(err, ErrAlreadyReviewed) {
		t.Errorf("Expected ErrAlreadyReviewed, got %v", err)
	}
	pending, err := f.queue.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	var queued bool
	for _, item := range pending {
		if item.Data.Action == "reject" && item.Data.Deposit != nil && item.Data.Deposit.Id == dep.Id {
			queued = true
		}
	}
	if !queued {
		t.Error("Expected rejection to be queued")
	}
}

func TestSubmitDeposit_Validation(t *testing.T) {
	f, cleanup := setupTradingTest(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := f.svc.SubmitDeposit(ctx, "bob", decimal.Zero, "", "", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for zero amount, got %v", err)
	}
	if _, err := f.svc.SubmitDeposit(ctx, "", dec("10"), "", "", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for missing username, got %v", err)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	f, cleanup := setupTradingTest(t)
	defer cleanup()
	ctx := context.Background()

	fund(t, f, "alice", "300")

	_, err := f.svc.CreateOrder(ctx, models.CreateOrderRequest{Username: "alice", AmountUSDT: dec("150"), UnitPrice: dec("7")})
	if !errors.Is(err, ErrBelowMinimum) || !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrBelowMinimum, got %v", err)
	}

	_, err = f.svc.CreateOrder(ctx, models.CreateOrderRequest{Username: "alice", AmountUSDT: dec("400"), UnitPrice: dec("7")})
	if !errors.Is(err, ErrInsufficientBalance) || !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}

	_, err = f.svc.CreateOrder(ctx, models.CreateOrderRequest{Username: "alice", AmountUSDT: dec("200"), UnitPrice: decimal.Zero})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for zero price, got %v", err)
	}

	_, err = f.svc.CreateOrder(ctx, models.CreateOrderRequest{Username: "alice", AmountUSDT: dec("200"), UnitPrice: dec("7"), PaymentMethodId: "nope"})
	if !errors.Is(err, ErrPaymentMethodRequired) {
		t.Errorf("Expected ErrPaymentMethodRequired for unknown method, got %v", err)
	}

	if _, err := f.svc.SubmitDeposit(ctx, "carol", dec("500"), "", "", ""); err != nil {
		t.Fatalf("SubmitDeposit failed: %v", err)
	}
	_, err = f.svc.CreateOrder(ctx, models.CreateOrderRequest{Username: "carol", AmountUSDT: dec("200"), UnitPrice: dec("7")})
	if !errors.Is(err, ErrPaymentMethodRequired) {
		t.Errorf("Expected ErrPaymentMethodRequired without methods, got %v", err)
	}

	expectBalance(t, f, "alice", "300")
}

func TestCompleteOrder_DistributesCommissionOnce(t *testing.T) {
	f, cleanup := setupTradingTest(t)
	defer cleanup()
	ctx := context.Background()

	// a <- b <- c <- d
	var prevCode string
	for _, name := range []string{"a", "b", "c", "d"} {
		p, err := f.svc.RegisterUser(ctx, name, prevCode)
		if err != nil {
			t.Fatalf("RegisterUser %s failed: %v", name, err)
		}
		prevCode = p.InviteCode
	}
	fund(t, f, "d", "1000")

	order, err := f.svc.CreateOrder(ctx, models.CreateOrderRequest{Username: "d", AmountUSDT: dec("200"), UnitPrice: dec("7"), PaymentMethod: "alipay"})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.PaymentMethod != "alipay" {
		t.Errorf("Expected named payment method, got %s", order.PaymentMethod)
	}

	if _, err := f.svc.CompleteOrder(ctx, order.Id, testAdmin, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected pending order not to complete directly, got %v", err)
	}
	if _, err := f.svc.ApproveOrder(ctx, order.Id, testAdmin, "ok"); err != nil {
		t.Fatalf("ApproveOrder failed: %v", err)
	}
	expectBalance(t, f, "d", "800")

	result, err := f.svc.CompleteOrder(ctx, order.Id, testAdmin, "0xpayout")
	if err != nil {
		t.Fatalf("CompleteOrder failed: %v", err)
	}
	if result.Order.CompletedAt == nil || result.Order.PayoutTxHash != "0xpayout" {
		t.Errorf("Expected completion metadata, got %+v", result.Order)
	}

	want := map[string]string{"c": "60", "b": "30", "a": "10"}
	if len(result.Commissions) != len(want) {
		t.Fatalf("Expected %d grants, got %d", len(want), len(result.Commissions))
	}
	for _, g := range result.Commissions {
		if !g.AmountUSDT.Equal(dec(want[g.ToUsername])) {
			t.Errorf("Grant to %s: expected %s, got %s", g.ToUsername, want[g.ToUsername], g.AmountUSDT)
		}
	}

	if _, err := f.svc.CompleteOrder(ctx, order.Id, testAdmin, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected second completion to be refused, got %v", err)
	}

	snap, err := f.svc.GetSnapshot(ctx, "d")
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if !snap.BalanceUSDT.Equal(dec("200")) || !snap.AvailableBalanceUSDT.Equal(dec("800")) {
		t.Errorf("Unexpected snapshot for d: %+v", snap)
	}

	team, err := f.svc.ComputeTeamHierarchy(ctx, "a")
	if err != nil {
		t.Fatalf("ComputeTeamHierarchy failed: %v", err)
	}
	for i, members := range [][]string{{"b"}, {"c"}, {"d"}} {
		if len(team.Levels[i].Members) != 1 || team.Levels[i].Members[0] != members[0] {
			t.Errorf("Level %d: expected %v, got %v", i+1, members, team.Levels[i].Members)
		}
	}
	if !team.Levels[2].Commission.Equal(dec("10")) || !team.Total.Equal(dec("10")) {
		t.Errorf("Expected a to earn 10 at level 3, got %+v", team)
	}
}

func TestTransitionOrder_Guards(t *testing.T) {
	f, cleanup := setupTradingTest(t)
	defer cleanup()
	ctx := context.Background()

	fund(t, f, "alice", "300")
	order, err := f.svc.CreateOrder(ctx, models.CreateOrderRequest{Username: "alice", AmountUSDT: dec("200"), UnitPrice: dec("7")})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	if _, err := f.svc.ApproveOrder(ctx, order.Id, "alice", ""); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("Expected ErrNotAdmin, got %v", err)
	}
	if _, err := f.svc.ApproveOrder(ctx, "missing", testAdmin, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.ApproveDeposit(ctx, "any", dec("1"), "alice", ""); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("Expected ErrNotAdmin for deposit review, got %v", err)
	}
}

func TestMutations_AreQueuedForSync(t *testing.T) {
	f, cleanup := setupTradingTest(t)
	defer cleanup()
	ctx := context.Background()

	fund(t, f, "alice", "300")
	if _, err := f.svc.CreateOrder(ctx, models.CreateOrderRequest{Username: "alice", AmountUSDT: dec("200"), UnitPrice: dec("7")}); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if _, err := f.svc.SetDisplayRate(ctx, "cny", dec("7.2"), testAdmin); err != nil {
		t.Fatalf("SetDisplayRate failed: %v", err)
	}

	pending, err := f.queue.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	want := []models.SyncType{
		models.SyncTypeUser,
		models.SyncTypeDeposit,
		models.SyncTypeDeposit,
		models.SyncTypePaymentMethod,
		models.SyncTypeOrder,
		models.SyncTypeRate,
	}
	if len(pending) != len(want) {
		t.Fatalf("Expected %d queued items, got %d", len(want), len(pending))
	}
	for i, typ := range want {
		if pending[i].Type != typ {
			t.Errorf("Item %d: expected %s, got %s", i, typ, pending[i].Type)
		}
	}
}

func TestPlatformAdmin_RequiresAdmin(t *testing.T) {
	f, cleanup := setupTradingTest(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := f.svc.SetMinOrderAmount(ctx, dec("100"), "alice"); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("Expected ErrNotAdmin, got %v", err)
	}
	stored, err := f.svc.SetMinOrderAmount(ctx, dec("99.9"), testAdmin)
	if err != nil {
		t.Fatalf("SetMinOrderAmount failed: %v", err)
	}
	if !stored.Equal(dec("99")) {
		t.Errorf("Expected floored minimum 99, got %s", stored)
	}
	if _, err := f.svc.SetMinOrderAmount(ctx, dec("0.5"), testAdmin); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation below 1, got %v", err)
	}

	pd, err := f.svc.SetPlatformDeposit(ctx, models.PlatformDeposit{Address: " TQ123 "}, testAdmin)
	if err != nil {
		t.Fatalf("SetPlatformDeposit failed: %v", err)
	}
	if pd.Address != "TQ123" || pd.Network != models.DefaultDepositNetwork {
		t.Errorf("Unexpected platform deposit: %+v", pd)
	}
}

func TestPaymentMethods_SingleDefault(t *testing.T) {
	f, cleanup := setupTradingTest(t)
	defer cleanup()
	ctx := context.Background()

	first, err := f.svc.AddPaymentMethod(ctx, models.PaymentMethod{Username: "alice", Kind: "bank", Account: "1"})
	if err != nil {
		t.Fatalf("AddPaymentMethod failed: %v", err)
	}
	second, err := f.svc.AddPaymentMethod(ctx, models.PaymentMethod{Username: "alice", Kind: "wechat", Account: "2"})
	if err != nil {
		t.Fatalf("AddPaymentMethod failed: %v", err)
	}
	if _, err := f.svc.SetDefaultPaymentMethod(ctx, "alice", second.Id); err != nil {
		t.Fatalf("SetDefaultPaymentMethod failed: %v", err)
	}

	list, _ := f.svc.ListPaymentMethods(ctx, "alice")
	for _, pm := range list {
		if pm.IsDefault != (pm.Id == second.Id) {
			t.Errorf("Unexpected default flag on %s: %v", pm.Id, pm.IsDefault)
		}
	}

	if _, err := f.svc.RemovePaymentMethod(ctx, "alice", second.Id); err != nil {
		t.Fatalf("RemovePaymentMethod failed: %v", err)
	}
	list, _ = f.svc.ListPaymentMethods(ctx, "alice")
	if len(list) != 1 || list[0].Id != first.Id || !list[0].IsDefault {
		t.Errorf("Expected remaining method promoted to default, got %+v", list)
	}

	if _, err := f.svc.RemovePaymentMethod(ctx, "alice", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRemovePaymentMethod_QueuesTombstone(t *testing.T) {
	f, cleanup := setupTradingTest(t)
	defer cleanup()
	ctx := context.Background()

	pm, err := f.svc.AddPaymentMethod(ctx, models.PaymentMethod{Username: "alice", Kind: "bank", Account: "1"})
	if err != nil {
		t.Fatalf("AddPaymentMethod failed: %v", err)
	}
	removed, err := f.svc.RemovePaymentMethod(ctx, "alice", pm.Id)
	if err != nil {
		t.Fatalf("RemovePaymentMethod failed: %v", err)
	}
	if !removed.Deleted || removed.IsDefault || !removed.UpdatedAt.After(pm.UpdatedAt) {
		t.Errorf("Expected a newer non-default tombstone, got %+v", removed)
	}

	pending, err := f.queue.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	var tombstones int
	for _, item := range pending {
		if item.Data.Action == "remove" && item.Data.PaymentMethod != nil && item.Data.PaymentMethod.Id == pm.Id {
			tombstones++
			if !item.Data.PaymentMethod.Deleted {
				t.Error("Expected queued removal to carry the deleted flag")
			}
		}
	}
	if tombstones != 1 {
		t.Errorf("Expected one queued removal, got %d", tombstones)
	}

	if list, _ := f.svc.ListPaymentMethods(ctx, "alice"); len(list) != 0 {
		t.Errorf("Expected no live methods, got %+v", list)
	}
}
