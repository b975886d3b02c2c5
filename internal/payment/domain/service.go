package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	gatewaydomain "github.com/smallbiznis/payflow/internal/gatewayconfig/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrMalformedCallback = errors.New("malformed_callback")
	ErrPaymentNotFound   = errors.New("payment_not_found")
	ErrBackendNotFound   = errors.New("backend_not_found")
	ErrIllegalTransition = errors.New("illegal_status_transition")
	ErrCurrencyRejected  = errors.New("currency_not_accepted")
	ErrOrderNotFound     = errors.New("order_not_found")
	ErrPostbackRejected  = errors.New("postback_rejected")
)

// Repository persists payments. Like every repository here it receives the
// *gorm.DB per call so callers can scope it to a transaction.
type Repository interface {
	Create(ctx context.Context, db *gorm.DB, payment *Payment) error
	Find(ctx context.Context, db *gorm.DB, id int64) (*Payment, error)
	// FindForUpdate takes a row lock so concurrent callbacks for the same
	// payment serialize on the database.
	FindForUpdate(ctx context.Context, db *gorm.DB, id int64) (*Payment, error)
	Save(ctx context.Context, db *gorm.DB, payment *Payment) error
}

// StateMachine owns the canonical lifecycle graph. Implementations must be
// idempotent on equal status and reject backward transitions.
type StateMachine interface {
	ChangeStatus(ctx context.Context, db *gorm.DB, payment *Payment, next Status) error
	OnSuccess(ctx context.Context, db *gorm.DB, payment *Payment, amount *decimal.Decimal) (bool, error)
	OnFailure(ctx context.Context, db *gorm.DB, payment *Payment) error
}

// URLResolver builds the local routes a gateway redirects or posts back to.
type URLResolver interface {
	Path(backend string, kind URLKind, paymentID int64) string
	Domain() string
}

type URLKind string

const (
	URLOnline  URLKind = "online"
	URLSuccess URLKind = "success"
	URLFailure URLKind = "failure"
)

// RemoteVerifier performs a gateway-mandated synchronous postback of the
// received notification fields. It returns nil only when the gateway
// acknowledged the notification as authentic.
type RemoteVerifier interface {
	VerifyNotification(ctx context.Context, endpoint string, fields map[string]string) error
}

// CallbackRequest is the raw inbound notification before any decoding.
type CallbackRequest struct {
	Fields   map[string]string
	SourceIP string
}

// Redirect describes the outbound checkout hand-off for one payment. GET
// redirects carry everything in the URL; POST redirects return the fields
// for an auto-submitting form.
type Redirect struct {
	URL    string            `json:"url"`
	Method string            `json:"method"`
	Fields map[string]string `json:"fields"`
}

// GatewayAdapter composes signature verification, parsing, reconciliation
// and the state machine into one entry point per gateway.
type GatewayAdapter interface {
	Backend() string
	HandleCallback(ctx context.Context, req CallbackRequest) (Verdict, error)
	BuildRedirect(ctx context.Context, payment *Payment) (Redirect, error)
}

// AdapterDeps carries the collaborators an adapter needs for one callback.
// Tx is the transaction the surrounding service opened; all persistence
// must go through it.
type AdapterDeps struct {
	Tx       *gorm.DB
	Gateway  gatewaydomain.Config
	Repo     Repository
	Machine  StateMachine
	URLs     URLResolver
	Verifier RemoteVerifier
	Log      *zap.Logger
}

type AdapterFactory interface {
	Backend() string
	NewAdapter(deps AdapterDeps) (GatewayAdapter, error)
}
