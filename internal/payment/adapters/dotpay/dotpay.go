// Package dotpay handles the Dotpay hosted processor: SHA-256 prefix-keyed
// notifications signed over a long fixed field list that includes card
// metadata, and amount reconciliation against the pre-conversion amount
// when the processor reports one.
package dotpay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	gatewaydomain "github.com/smallbiznis/payflow/internal/gatewayconfig/domain"
	"github.com/smallbiznis/payflow/internal/payment/adapters"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/payment/reconcile"
	"github.com/smallbiznis/payflow/internal/payment/sign"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultGatewayURL = "https://ssl.dotpay.pl/t2/"
	defaultAllowedIP  = "195.150.9.37"

	statusCompleted = "completed"
	statusRejected  = "rejected"
)

// notificationSigFields is the gateway-mandated signing order. It must not
// be reordered or trimmed; the counterparty hashes the same sequence.
var notificationSigFields = []string{
	"id", "operation_number", "operation_type", "operation_status",
	"operation_amount", "operation_currency", "operation_withdrawal_amount",
	"operation_commission_amount", "is_completed", "operation_original_amount",
	"operation_original_currency", "operation_datetime", "operation_related_number", "control",
	"description", "email", "p_info", "p_email", "credit_card_issuer_identification_number",
	"credit_card_masked_number", "credit_card_brand_codename", "credit_card_brand_code",
	"credit_card_id", "channel", "channel_country", "geoip_country",
}

var acceptedLangs = map[string]bool{
	"pl": true, "en": true, "de": true, "it": true, "fr": true,
	"es": true, "cz": true, "ru": true, "bg": true,
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Backend() string {
	return gatewaydomain.BackendDotpay
}

func (f *Factory) NewAdapter(deps domain.AdapterDeps) (domain.GatewayAdapter, error) {
	cfg, ok := deps.Gateway.(gatewaydomain.DotpayConfig)
	if !ok {
		return nil, gatewaydomain.ErrInvalidConfig
	}
	return &Adapter{
		cfg:     cfg,
		tx:      deps.Tx,
		repo:    deps.Repo,
		machine: deps.Machine,
		urls:    deps.URLs,
		log:     deps.Log.Named("adapter.dotpay"),
	}, nil
}

type Adapter struct {
	cfg     gatewaydomain.DotpayConfig
	tx      *gorm.DB
	repo    domain.Repository
	machine domain.StateMachine
	urls    domain.URLResolver
	log     *zap.Logger
}

func (a *Adapter) Backend() string { return gatewaydomain.BackendDotpay }

func parse(fields map[string]string) (*domain.CallbackEvent, error) {
	for _, required := range []string{"signature", "id", "control", "operation_status", "operation_amount", "operation_currency"} {
		if _, ok := fields[required]; !ok {
			return nil, fmt.Errorf("%w: missing %s", domain.ErrMalformedCallback, required)
		}
	}

	ref, err := strconv.ParseInt(strings.TrimSpace(fields["control"]), 10, 64)
	if err != nil {
		ref = 0
	}

	// Some operations report a post-conversion amount; the original
	// amount/currency pair is authoritative when present.
	rawAmount := fields["operation_amount"]
	currency := fields["operation_currency"]
	if original := strings.TrimSpace(fields["operation_original_amount"]); original != "" {
		rawAmount = original
		currency = fields["operation_original_currency"]
	}

	claimed, err := decimal.NewFromString(strings.TrimSpace(rawAmount))
	if err != nil {
		return nil, fmt.Errorf("%w: bad operation amount", domain.ErrMalformedCallback)
	}

	return &domain.CallbackEvent{
		GatewayTransactionID: fields["operation_number"],
		PaymentRef:           ref,
		ClaimedAmount:        claimed,
		ClaimedCurrency:      currency,
		RawStatus:            fields["operation_status"],
		PayerEmail:           fields["email"],
		Description:          fields["email"],
	}, nil
}

func (a *Adapter) HandleCallback(ctx context.Context, req domain.CallbackRequest) (domain.Verdict, error) {
	if !adapters.IPAllowed(req.SourceIP, a.allowedIPs()) {
		a.log.Warn("callback from disallowed ip", zap.String("ip", req.SourceIP))
		return domain.VerdictIPErr, nil
	}

	event, err := parse(req.Fields)
	if err != nil {
		return "", err
	}

	if !sign.VerifySHA256KeyPrefix(req.Fields, notificationSigFields, a.cfg.PIN, req.Fields["signature"]) {
		a.log.Warn("callback with wrong signature",
			zap.String("operation_number", event.GatewayTransactionID),
			zap.Int64("control", event.PaymentRef),
		)
		return domain.VerdictSigErr, nil
	}

	merchantID, err := strconv.ParseInt(strings.TrimSpace(req.Fields["id"]), 10, 64)
	if err != nil || merchantID != a.cfg.MerchantID {
		a.log.Warn("callback with wrong merchant id", zap.String("id", req.Fields["id"]))
		return domain.VerdictIDErr, nil
	}

	payment, err := a.repo.FindForUpdate(ctx, a.tx, event.PaymentRef)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		a.log.Error("callback control references no payment", zap.Int64("control", event.PaymentRef))
		return domain.VerdictPaymentErr, nil
	}
	if err != nil {
		return "", err
	}

	if reconcile.Reconcile(payment.Amount, payment.Currency, event.ClaimedAmount, event.ClaimedCurrency) == reconcile.OutcomeCurrencyMismatch {
		a.log.Error("callback with wrong currency",
			zap.Int64("payment_id", payment.ID),
			zap.String("expected", payment.Currency),
			zap.String("claimed", event.ClaimedCurrency),
		)
		return domain.VerdictCurrencyErr, nil
	}

	payment.ExternalID = event.GatewayTransactionID
	payment.Description = event.Description

	switch event.RawStatus {
	case statusCompleted:
		if _, err := a.machine.OnSuccess(ctx, a.tx, payment, &event.ClaimedAmount); err != nil {
			if !errors.Is(err, domain.ErrIllegalTransition) {
				return "", err
			}
			a.log.Warn("settlement for finalized payment ignored",
				zap.Int64("payment_id", payment.ID),
				zap.String("status", string(payment.Status)),
			)
		}
	case statusRejected:
		if err := a.machine.OnFailure(ctx, a.tx, payment); err != nil {
			if !errors.Is(err, domain.ErrIllegalTransition) {
				return "", err
			}
			a.log.Warn("rejection for settled payment ignored", zap.Int64("payment_id", payment.ID))
		}
	default:
		// Intermediate statuses are deliberately ignored; acknowledging
		// them stops the gateway from retrying a call we will not act on.
		a.log.Info("ignoring unmapped operation status",
			zap.Int64("payment_id", payment.ID),
			zap.String("operation_status", event.RawStatus),
		)
	}

	if err := a.repo.Save(ctx, a.tx, payment); err != nil {
		return "", err
	}
	return domain.VerdictOK, nil
}

func (a *Adapter) allowedIPs() []string {
	if a.cfg.AllowedIPs != nil {
		return a.cfg.AllowedIPs
	}
	return []string{defaultAllowedIP}
}

func (a *Adapter) BuildRedirect(ctx context.Context, payment *domain.Payment) (domain.Redirect, error) {
	scheme := adapters.Scheme(a.cfg.ForceSSL)
	base := scheme + "://" + a.urls.Domain()

	fields := map[string]string{
		"id":          strconv.FormatInt(a.cfg.MerchantID, 10),
		"description": orderDescription(payment),
		"amount":      payment.Amount.StringFixed(2),
		"currency":    payment.Currency,
		"type":        "0",
		"control":     strconv.FormatInt(payment.ID, 10),
		"URL":         base + a.urls.Path(a.Backend(), domain.URLSuccess, payment.ID),
		"URLC":        base + a.urls.Path(a.Backend(), domain.URLOnline, payment.ID),
	}

	if lang := strings.ToLower(strings.TrimSpace(a.cfg.Lang)); acceptedLangs[lang] {
		fields["lang"] = lang
	}
	if a.cfg.OnlineTransfer {
		fields["onlinetransfer"] = "1"
	}
	if a.cfg.PEmail != "" {
		fields["p_email"] = a.cfg.PEmail
	}
	if a.cfg.PInfo != "" {
		fields["p_info"] = a.cfg.PInfo
	}
	if a.cfg.Tax {
		fields["tax"] = "1"
	}

	gatewayURL := a.cfg.GatewayURL
	if gatewayURL == "" {
		gatewayURL = defaultGatewayURL
	}

	if strings.EqualFold(a.cfg.Method, "post") {
		return domain.Redirect{URL: gatewayURL, Method: "POST", Fields: fields}, nil
	}
	return domain.Redirect{URL: adapters.EncodeGET(gatewayURL, fields), Method: "GET", Fields: map[string]string{}}, nil
}

func orderDescription(payment *domain.Payment) string {
	if payment.Description != "" {
		return payment.Description
	}
	return fmt.Sprintf("Order #%d", payment.OrderID)
}
