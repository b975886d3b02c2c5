package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/events"
	gatewaydomain "github.com/smallbiznis/payflow/internal/gatewayconfig/domain"
	gatewayservice "github.com/smallbiznis/payflow/internal/gatewayconfig/service"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	orderrepository "github.com/smallbiznis/payflow/internal/order/repository"
	"github.com/smallbiznis/payflow/internal/payment/adapters"
	"github.com/smallbiznis/payflow/internal/payment/adapters/transferuj"
	"github.com/smallbiznis/payflow/internal/payment/callback"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/payment/lifecycle"
	"github.com/smallbiznis/payflow/internal/payment/repository"
	paymentservice "github.com/smallbiznis/payflow/internal/payment/service"
	"github.com/smallbiznis/payflow/internal/payment/sign"
	"github.com/smallbiznis/payflow/internal/routing"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

func setupServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:memdb_server_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&orderdomain.Order{}, &domain.Payment{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := config.Config{
		SiteDomain: "shop.example.com",
		SuccessURL: "/thanks",
		FailureURL: "/sorry",
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	repo := repository.Provide()
	machine := lifecycle.NewMachine(lifecycle.Params{
		Log:   zap.NewNop(),
		Repo:  repo,
		Bus:   events.NewBus(),
		Clock: fake,
	})
	gateways, err := gatewayservice.NewFromConfigs(zap.NewNop(),
		gatewaydomain.TransferujConfig{MerchantID: 511, Key: "secret"},
	)
	if err != nil {
		t.Fatalf("gateway configs: %v", err)
	}
	registry := adapters.NewRegistry(transferuj.NewFactory())
	urls := routing.New(cfg)
	orders := orderrepository.Provide()

	callbackSvc := callback.NewService(callback.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Registry: registry,
		Gateways: gateways,
		Repo:     repo,
		Machine:  machine,
		URLs:     urls,
	})
	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Cfg:      cfg,
		Registry: registry,
		Gateways: gateways,
		Repo:     repo,
		Orders:   orders,
		Machine:  machine,
		URLs:     urls,
	})

	engine := gin.New()
	srv := NewServer(ServerParams{
		Gin:         engine,
		Cfg:         cfg,
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fake,
		PaymentSvc:  paymentSvc,
		CallbackSvc: callbackSvc,
		Orders:      orders,
	})
	srv.RegisterRoutes()
	return srv, db
}

func seedPayment(t *testing.T, db *gorm.DB) *domain.Payment {
	t.Helper()
	p := &domain.Payment{
		ID:        123,
		OrderID:   9,
		Amount:    decimal.RequireFromString("50.00"),
		Currency:  "PLN",
		Status:    domain.StatusInProgress,
		Backend:   gatewaydomain.BackendTransferuj,
		CreatedOn: time.Now().UTC(),
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return p
}

func postCallback(srv *Server, backend, sourceIP string, fields url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/callbacks/"+backend, strings.NewReader(fields.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = sourceIP + ":34712"
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)
	return w
}

func TestCallbackRouteEchoesVerdict(t *testing.T) {
	srv, db := setupServer(t)
	seedPayment(t, db)

	fields := url.Values{}
	fields.Set("id", "511")
	fields.Set("tr_id", "TX1")
	fields.Set("tr_amount", "50.00")
	fields.Set("tr_paid", "50.00")
	fields.Set("tr_crc", "123")
	fields.Set("tr_status", "TRUE")
	fields.Set("md5sum", "3a75959b449bde11febef01eb139be3d")

	w := postCallback(srv, "transferuj", "195.149.229.109", fields)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "TRUE" {
		t.Fatalf("expected TRUE body, got %q", w.Body.String())
	}

	var stored domain.Payment
	if err := db.First(&stored, 123).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	if stored.Status != domain.StatusPaid {
		t.Fatalf("expected paid, got %s", stored.Status)
	}
}

func TestCallbackRouteVerdictTokensStayInBody(t *testing.T) {
	srv, db := setupServer(t)
	seedPayment(t, db)

	// Wrong source address: the verdict is an in-band token, the HTTP
	// status stays 200 so the gateway reads the body.
	fields := url.Values{}
	fields.Set("id", "511")
	fields.Set("tr_id", "TX1")
	fields.Set("tr_amount", "50.00")
	fields.Set("tr_crc", "123")
	fields.Set("tr_status", "TRUE")
	fields.Set("md5sum", "whatever")

	w := postCallback(srv, "transferuj", "10.9.9.9", fields)
	if w.Code != http.StatusOK || w.Body.String() != "IP ERR" {
		t.Fatalf("expected 200 IP ERR, got %d %q", w.Code, w.Body.String())
	}
}

func TestCallbackRouteUnknownBackend(t *testing.T) {
	srv, _ := setupServer(t)

	w := postCallback(srv, "skrill", "195.149.229.109", url.Values{})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestCallbackRouteMalformedPayload(t *testing.T) {
	srv, _ := setupServer(t)

	fields := url.Values{}
	fields.Set("id", "511")

	w := postCallback(srv, "transferuj", "195.149.229.109", fields)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w.Body.String() != "ERR" {
		t.Fatalf("expected generic ERR body, got %q", w.Body.String())
	}
}

func TestPaymentFlowOverHTTP(t *testing.T) {
	srv, db := setupServer(t)

	ord := &orderdomain.Order{
		ID:        9,
		Amount:    decimal.RequireFromString("50.00"),
		Currency:  "PLN",
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(ord).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(`{"order_id":"9","backend":"transferuj"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var payment domain.Payment
	if err := db.First(&payment, "order_id = ?", 9).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/payments/%d/go", payment.ID), nil)
	w = httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	location := w.Header().Get("Location")
	if !strings.HasPrefix(location, "https://secure.transferuj.pl?") {
		t.Fatalf("unexpected redirect target %q", location)
	}

	// The failure landing is an unauthenticated GET; for a backend with a
	// server callback it sends the buyer on without deciding anything.
	req = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/payments/%d/failure", payment.ID), nil)
	w = httptest.NewRecorder()
	srv.engine.ServeHTTP(w, req)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/sorry" {
		t.Fatalf("expected redirect to /sorry, got %d %q", w.Code, w.Header().Get("Location"))
	}

	if err := db.First(&payment, payment.ID).Error; err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if payment.Status != domain.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", payment.Status)
	}

	// A signed settlement still lands after the buyer bailed out.
	fields := url.Values{}
	fields.Set("id", "511")
	fields.Set("tr_id", "TX9")
	fields.Set("tr_amount", "50.00")
	fields.Set("tr_paid", "50.00")
	fields.Set("tr_crc", strconv.FormatInt(payment.ID, 10))
	fields.Set("tr_status", "TRUE")
	fields.Set("md5sum", sign.MD5KeySuffix(map[string]string{
		"id":        "511",
		"tr_id":     "TX9",
		"tr_amount": "50.00",
		"tr_crc":    strconv.FormatInt(payment.ID, 10),
	}, []string{"id", "tr_id", "tr_amount", "tr_crc"}, "secret"))

	w = postCallback(srv, "transferuj", "195.149.229.109", fields)
	if w.Code != http.StatusOK || w.Body.String() != "TRUE" {
		t.Fatalf("expected 200 TRUE, got %d %q", w.Code, w.Body.String())
	}

	if err := db.First(&payment, payment.ID).Error; err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if payment.Status != domain.StatusPaid {
		t.Fatalf("expected paid, got %s", payment.Status)
	}
}
