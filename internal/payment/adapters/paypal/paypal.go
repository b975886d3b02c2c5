// Package paypal handles the hosted IPN processor. There is no local
// signature: authenticity is established by synchronously re-posting the
// received fields to the gateway, which must answer with a literal
// acknowledgement token.
package paypal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	gatewaydomain "github.com/smallbiznis/payflow/internal/gatewayconfig/domain"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/payment/reconcile"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	PostbackEndpoint        = "https://www.paypal.com/cgi-bin/webscr"
	SandboxPostbackEndpoint = "https://www.sandbox.paypal.com/cgi-bin/webscr"

	statusCompleted = "Completed"
)

// rejectedStatuses are the payment states the gateway reports for a
// purchase that will not complete.
var rejectedStatuses = map[string]bool{
	"Cancelled": true,
	"Denied":    true,
	"Refused":   true,
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Backend() string {
	return gatewaydomain.BackendPaypal
}

func (f *Factory) NewAdapter(deps domain.AdapterDeps) (domain.GatewayAdapter, error) {
	cfg, ok := deps.Gateway.(gatewaydomain.PaypalConfig)
	if !ok {
		return nil, gatewaydomain.ErrInvalidConfig
	}
	if deps.Verifier == nil {
		return nil, gatewaydomain.ErrInvalidConfig
	}
	return &Adapter{
		cfg:      cfg,
		tx:       deps.Tx,
		repo:     deps.Repo,
		machine:  deps.Machine,
		urls:     deps.URLs,
		verifier: deps.Verifier,
		log:      deps.Log.Named("adapter.paypal"),
	}, nil
}

type Adapter struct {
	cfg      gatewaydomain.PaypalConfig
	tx       *gorm.DB
	repo     domain.Repository
	machine  domain.StateMachine
	urls     domain.URLResolver
	verifier domain.RemoteVerifier
	log      *zap.Logger
}

func (a *Adapter) Backend() string { return gatewaydomain.BackendPaypal }

func (a *Adapter) endpoint() string {
	if a.cfg.Test {
		return SandboxPostbackEndpoint
	}
	return PostbackEndpoint
}

func parse(fields map[string]string) (*domain.CallbackEvent, error) {
	for _, required := range []string{"custom", "txn_id", "payment_status", "mc_gross", "mc_currency"} {
		if strings.TrimSpace(fields[required]) == "" {
			return nil, fmt.Errorf("%w: missing %s", domain.ErrMalformedCallback, required)
		}
	}

	ref, err := strconv.ParseInt(strings.TrimSpace(fields["custom"]), 10, 64)
	if err != nil {
		ref = 0
	}

	claimed, err := decimal.NewFromString(strings.TrimSpace(fields["mc_gross"]))
	if err != nil {
		return nil, fmt.Errorf("%w: bad mc_gross", domain.ErrMalformedCallback)
	}

	return &domain.CallbackEvent{
		GatewayTransactionID: fields["txn_id"],
		PaymentRef:           ref,
		ClaimedAmount:        claimed,
		ClaimedCurrency:      fields["mc_currency"],
		RawStatus:            fields["payment_status"],
		PayerEmail:           fields["payer_email"],
		Description:          fields["item_name"],
	}, nil
}

func (a *Adapter) HandleCallback(ctx context.Context, req domain.CallbackRequest) (domain.Verdict, error) {
	event, err := parse(req.Fields)
	if err != nil {
		return "", err
	}

	// The verification round trip can fail or time out. That must come
	// back as a retryable error verdict: a silent "ok" would let an
	// unverified notification settle a payment.
	if err := a.verifier.VerifyNotification(ctx, a.endpoint(), req.Fields); err != nil {
		if errors.Is(err, domain.ErrPostbackRejected) {
			a.log.Warn("gateway rejected notification postback",
				zap.String("txn_id", event.GatewayTransactionID),
			)
		} else {
			a.log.Error("notification postback failed", zap.Error(err))
		}
		return domain.VerdictPaymentErr, nil
	}

	if !strings.EqualFold(strings.TrimSpace(req.Fields["receiver_email"]), strings.TrimSpace(a.cfg.ReceiverEmail())) {
		a.log.Warn("notification names a different receiver account",
			zap.String("receiver_email", req.Fields["receiver_email"]),
		)
		return domain.VerdictIDErr, nil
	}

	payment, err := a.repo.FindForUpdate(ctx, a.tx, event.PaymentRef)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		a.log.Error("notification references no payment", zap.Int64("custom", event.PaymentRef))
		return domain.VerdictPaymentErr, nil
	}
	if err != nil {
		return "", err
	}

	if reconcile.Reconcile(payment.Amount, payment.Currency, event.ClaimedAmount, event.ClaimedCurrency) == reconcile.OutcomeCurrencyMismatch {
		a.log.Error("notification with wrong currency",
			zap.Int64("payment_id", payment.ID),
			zap.String("expected", payment.Currency),
			zap.String("claimed", event.ClaimedCurrency),
		)
		return domain.VerdictCurrencyErr, nil
	}

	payment.ExternalID = event.GatewayTransactionID
	payment.Description = event.Description

	switch {
	case event.RawStatus == statusCompleted:
		if _, err := a.machine.OnSuccess(ctx, a.tx, payment, &event.ClaimedAmount); err != nil {
			if !errors.Is(err, domain.ErrIllegalTransition) {
				return "", err
			}
			a.log.Warn("settlement for finalized payment ignored",
				zap.Int64("payment_id", payment.ID),
				zap.String("status", string(payment.Status)),
			)
		}
	case rejectedStatuses[event.RawStatus]:
		if err := a.machine.OnFailure(ctx, a.tx, payment); err != nil {
			if !errors.Is(err, domain.ErrIllegalTransition) {
				return "", err
			}
			a.log.Warn("rejection for settled payment ignored", zap.Int64("payment_id", payment.ID))
		}
	default:
		a.log.Info("ignoring unmapped payment status",
			zap.Int64("payment_id", payment.ID),
			zap.String("payment_status", event.RawStatus),
		)
	}

	if err := a.repo.Save(ctx, a.tx, payment); err != nil {
		return "", err
	}
	return domain.VerdictOK, nil
}

func (a *Adapter) BuildRedirect(ctx context.Context, payment *domain.Payment) (domain.Redirect, error) {
	scheme := "http"
	if a.cfg.ForceSSL {
		scheme = "https"
	}
	base := scheme + "://" + a.urls.Domain()

	fields := map[string]string{
		"cmd":           "_xclick",
		"business":      a.cfg.ReceiverEmail(),
		"amount":        payment.Amount.StringFixed(2),
		"currency_code": strings.ToUpper(payment.Currency),
		"item_name":     orderDescription(payment),
		"notify_url":    base + a.urls.Path(a.Backend(), domain.URLOnline, payment.ID),
		"return":        base + a.urls.Path(a.Backend(), domain.URLSuccess, payment.ID),
		"cancel_return": base + a.urls.Path(a.Backend(), domain.URLFailure, payment.ID),
		"custom":        strconv.FormatInt(payment.ID, 10),
	}

	return domain.Redirect{URL: a.endpoint(), Method: "POST", Fields: fields}, nil
}

func orderDescription(payment *domain.Payment) string {
	if payment.Description != "" {
		return payment.Description
	}
	return fmt.Sprintf("Order #%d", payment.OrderID)
}
