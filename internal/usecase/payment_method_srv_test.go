package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"stay-booking/internal/data/entity"
	"stay-booking/pkg/gateway"
	"stay-booking/pkg/utils"

	"go.uber.org/zap"
)

func TestPaymentMethodService_ServesCatalogFromDatabase(t *testing.T) {
	store := newMemStore()
	store.methods = []*entity.PaymentMethod{
		{Code: "card", Name: "Card", Category: entity.PaymentMethodCard, Currency: "EGP", FeeBps: 250, FixedFeeCents: 300, IsActive: true},
		{Code: "kiosk", Name: "Kiosk", Category: entity.PaymentMethodKiosk, Currency: "EGP", FeeBps: 200, MaxAmountCents: 100000, IsActive: true},
		{Code: "legacy", Name: "Legacy", Category: entity.PaymentMethodCard, Currency: "EGP", IsActive: false},
	}
	gw := &MockGateway{now: time.Now}
	gatewayCalled := false
	gw.MethodsFunc = func(context.Context, int64, string) []gateway.PaymentMethod {
		gatewayCalled = true
		return nil
	}
	cache := &memCache{}
	svc := NewPaymentMethodService(store.repository().PaymentMethod, gw, cache, utils.BookingConfig{MethodCacheTTL: time.Minute}, zap.NewNop())

	methods, err := svc.GetPaymentMethods(context.Background(), 288800, "EGP")
	if err != nil {
		t.Fatalf("GetPaymentMethods: %v", err)
	}
	if len(methods) != 1 || methods[0].Code != "card" {
		t.Fatalf("methods = %+v, want only card", methods)
	}
	// 2.5% of 2888.00 rounded, plus 3.00 fixed.
	if methods[0].FeeCents != 7220+300 || methods[0].TotalWithFeeCents != 288800+7520 {
		t.Errorf("fee = %d total = %d", methods[0].FeeCents, methods[0].TotalWithFeeCents)
	}
	if gatewayCalled {
		t.Error("gateway catalog used although the database had entries")
	}

	// Second call is served from cache even if the table empties.
	store.methods = nil
	methods, err = svc.GetPaymentMethods(context.Background(), 50000, "EGP")
	if err != nil {
		t.Fatalf("cached call: %v", err)
	}
	if len(methods) != 2 {
		t.Errorf("cached methods = %d, want 2", len(methods))
	}
}

func TestPaymentMethodService_FallsBackToGateway(t *testing.T) {
	store := newMemStore()
	gw := &MockGateway{now: time.Now}
	svc := NewPaymentMethodService(store.repository().PaymentMethod, gw, nil, utils.BookingConfig{}, zap.NewNop())

	methods, err := svc.GetPaymentMethods(context.Background(), 288800, "")
	if err != nil {
		t.Fatalf("GetPaymentMethods: %v", err)
	}
	want := gateway.FilterEligible(gateway.DefaultPaymentMethods(), 288800, "EGP")
	if len(methods) != len(want) {
		t.Errorf("methods = %d, want %d defaults", len(methods), len(want))
	}

	if _, err := svc.GetPaymentMethods(context.Background(), 0, "EGP"); !errors.Is(err, ErrValidation) {
		t.Errorf("zero amount err = %v, want ErrValidation", err)
	}
}

func TestPaymentMethodService_ServesTransferAndInstallmentMethods(t *testing.T) {
	store := newMemStore()
	store.methods = []*entity.PaymentMethod{
		{Code: "bank_transfer", Name: "Bank Transfer", Category: entity.PaymentMethodBankTransfer, Currency: "EGP", FixedFeeCents: 500, MinAmountCents: 10000, IsActive: true},
		{Code: "installments", Name: "Pay Later", Category: entity.PaymentMethodBNPL, Currency: "EGP", FeeBps: 450, MinAmountCents: 50000, IsActive: true},
	}
	svc := NewPaymentMethodService(store.repository().PaymentMethod, &MockGateway{now: time.Now}, nil, utils.BookingConfig{}, zap.NewNop())

	methods, err := svc.GetPaymentMethods(context.Background(), 288800, "EGP")
	if err != nil {
		t.Fatalf("GetPaymentMethods: %v", err)
	}
	got := map[string]string{}
	for _, m := range methods {
		got[m.Code] = m.Category
	}
	if got["bank_transfer"] != "bank-transfer" || got["installments"] != "buy-now-pay-later" {
		t.Errorf("categories = %v", got)
	}

	// Below the installment minimum only the transfer remains.
	methods, err = svc.GetPaymentMethods(context.Background(), 20000, "EGP")
	if err != nil {
		t.Fatalf("GetPaymentMethods: %v", err)
	}
	if len(methods) != 1 || methods[0].Code != "bank_transfer" {
		t.Errorf("methods = %+v, want only bank_transfer", methods)
	}
}
