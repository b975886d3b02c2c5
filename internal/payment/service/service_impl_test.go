package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/events"
	gatewaydomain "github.com/smallbiznis/payflow/internal/gatewayconfig/domain"
	gatewayservice "github.com/smallbiznis/payflow/internal/gatewayconfig/service"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	orderrepository "github.com/smallbiznis/payflow/internal/order/repository"
	"github.com/smallbiznis/payflow/internal/payment/adapters"
	"github.com/smallbiznis/payflow/internal/payment/adapters/paypal"
	"github.com/smallbiznis/payflow/internal/payment/adapters/transferuj"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/payment/lifecycle"
	"github.com/smallbiznis/payflow/internal/payment/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_paysvc_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&orderdomain.Order{}, &domain.Payment{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type stubURLs struct{}

func (stubURLs) Domain() string { return "shop.example.com" }

func (stubURLs) Path(backend string, kind domain.URLKind, paymentID int64) string {
	return fmt.Sprintf("/callbacks/%s/%s/%d", backend, kind, paymentID)
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	repo := repository.Provide()
	machine := lifecycle.NewMachine(lifecycle.Params{
		Log:   zap.NewNop(),
		Repo:  repo,
		Bus:   events.NewBus(),
		Clock: clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
	})
	gateways, err := gatewayservice.NewFromConfigs(zap.NewNop(),
		gatewaydomain.TransferujConfig{MerchantID: 511, Key: "secret"},
		gatewaydomain.PaypalConfig{Business: "merchant@example.com"},
	)
	if err != nil {
		t.Fatalf("gateway configs: %v", err)
	}
	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
		Cfg: config.Config{
			SuccessURL: "/thanks",
			FailureURL: "/sorry",
		},
		Registry: adapters.NewRegistry(transferuj.NewFactory(), paypal.NewFactory()),
		Gateways: gateways,
		Repo:     repo,
		Orders:   orderrepository.Provide(),
		Machine:  machine,
		URLs:     stubURLs{},
	})
}

func seedOrder(t *testing.T, db *gorm.DB, currency string) *orderdomain.Order {
	t.Helper()
	ord := &orderdomain.Order{
		ID:          9,
		Amount:      decimal.RequireFromString("50.00"),
		Currency:    currency,
		Description: "Vinyl records",
		CreatedAt:   time.Now().UTC(),
	}
	if err := db.Create(ord).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return ord
}

func TestCreateCopiesOrderAmount(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	seedOrder(t, db, "PLN")

	payment, err := svc.Create(context.Background(), 9, "transferuj")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if payment.Status != domain.StatusNew {
		t.Fatalf("expected new, got %s", payment.Status)
	}
	if !payment.Amount.Equal(decimal.RequireFromString("50.00")) || payment.Currency != "PLN" {
		t.Fatalf("order amount not copied: %+v", payment)
	}
	if payment.Description != "Vinyl records" {
		t.Fatalf("expected description copied, got %q", payment.Description)
	}

	var stored domain.Payment
	if err := db.First(&stored, payment.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
}

func TestCreateRejectsUnknownBackend(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	seedOrder(t, db, "PLN")

	_, err := svc.Create(context.Background(), 9, "skrill")
	if !errors.Is(err, domain.ErrBackendNotFound) {
		t.Fatalf("expected backend not found, got %v", err)
	}
}

func TestCreateRejectsUnacceptedCurrency(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	seedOrder(t, db, "EUR")

	_, err := svc.Create(context.Background(), 9, "transferuj")
	if !errors.Is(err, domain.ErrCurrencyRejected) {
		t.Fatalf("expected currency rejected, got %v", err)
	}
}

func TestRedirectMovesPaymentInProgress(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	seedOrder(t, db, "PLN")

	payment, err := svc.Create(context.Background(), 9, "transferuj")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	redirect, err := svc.Redirect(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("redirect: %v", err)
	}
	if redirect.Method != "GET" {
		t.Fatalf("expected GET redirect, got %s", redirect.Method)
	}
	if !strings.Contains(redirect.URL, "kwota=50.00") {
		t.Fatalf("redirect url missing amount: %q", redirect.URL)
	}

	var stored domain.Payment
	if err := db.First(&stored, payment.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if stored.Status != domain.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", stored.Status)
	}
}

func TestConfirmReturnFailureCancelsPaypal(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	seedOrder(t, db, "PLN")

	// Paypal's cancel_return fires when the buyer abandons checkout, so no
	// notification will ever arrive for this payment.
	payment, err := svc.Create(context.Background(), 9, "paypal")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	landing, err := svc.ConfirmReturn(context.Background(), payment.ID, false)
	if err != nil {
		t.Fatalf("confirm return: %v", err)
	}
	if landing != "/sorry" {
		t.Fatalf("expected failure landing, got %q", landing)
	}

	var stored domain.Payment
	if err := db.First(&stored, payment.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if stored.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", stored.Status)
	}
}

func TestConfirmReturnFailureLeavesServerNotifiedBackends(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	seedOrder(t, db, "PLN")

	payment, err := svc.Create(context.Background(), 9, "transferuj")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The return page is an unauthenticated GET and the gateway will still
	// report the real outcome through its server callback; landing on the
	// failure page must not decide anything.
	landing, err := svc.ConfirmReturn(context.Background(), payment.ID, false)
	if err != nil {
		t.Fatalf("confirm return: %v", err)
	}
	if landing != "/sorry" {
		t.Fatalf("expected failure landing, got %q", landing)
	}

	var stored domain.Payment
	if err := db.First(&stored, payment.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if stored.Status != domain.StatusNew {
		t.Fatalf("expected payment untouched, got %s", stored.Status)
	}
}

func TestConfirmReturnFailureLeavesSettledPayment(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	seedOrder(t, db, "PLN")

	payment, err := svc.Create(context.Background(), 9, "paypal")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Model(&domain.Payment{}).Where("id = ?", payment.ID).
		Update("status", domain.StatusPaid).Error; err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	// The buyer hitting "cancel" after the gateway already settled must
	// not claw the payment back.
	landing, err := svc.ConfirmReturn(context.Background(), payment.ID, false)
	if err != nil {
		t.Fatalf("confirm return: %v", err)
	}
	if landing != "/sorry" {
		t.Fatalf("expected failure landing, got %q", landing)
	}

	var stored domain.Payment
	if err := db.First(&stored, payment.ID).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if stored.Status != domain.StatusPaid {
		t.Fatalf("expected paid, got %s", stored.Status)
	}
}

func TestConfirmReturnSuccess(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	seedOrder(t, db, "PLN")

	payment, err := svc.Create(context.Background(), 9, "transferuj")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	landing, err := svc.ConfirmReturn(context.Background(), payment.ID, true)
	if err != nil {
		t.Fatalf("confirm return: %v", err)
	}
	if landing != "/thanks" {
		t.Fatalf("expected success landing, got %q", landing)
	}
}
