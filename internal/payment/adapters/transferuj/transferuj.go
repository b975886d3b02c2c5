// Package transferuj handles the transferuj.pl hosted processor: MD5
// suffix-keyed notifications delivered as form posts, with an optional
// source IP allow-list in front of the signature check.
package transferuj

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
	"github.com/smallbiznis/payflow/internal/payment/sign"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultGatewayURL = "https://secure.transferuj.pl"
	defaultAllowedIP  = "195.149.229.109"
)

var (
	notificationSigFields = []string{"id", "tr_id", "tr_amount", "tr_crc"}
	redirectSigFields     = []string{"id", "kwota", "crc"}
	acceptedLangs         = map[string]bool{"pl": true, "en": true, "de": true}
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Backend() string {
	return gatewaydomain.BackendTransferuj
}

func (f *Factory) NewAdapter(deps domain.AdapterDeps) (domain.GatewayAdapter, error) {
	cfg, ok := deps.Gateway.(gatewaydomain.TransferujConfig)
	if !ok {
		return nil, gatewaydomain.ErrInvalidConfig
	}
	return &Adapter{
		cfg:     cfg,
		tx:      deps.Tx,
		repo:    deps.Repo,
		machine: deps.Machine,
		urls:    deps.URLs,
		log:     deps.Log.Named("adapter.transferuj"),
	}, nil
}

type Adapter struct {
	cfg     gatewaydomain.TransferujConfig
	tx      *gorm.DB
	repo    domain.Repository
	machine domain.StateMachine
	urls    domain.URLResolver
	log     *zap.Logger
}

func (a *Adapter) Backend() string { return gatewaydomain.BackendTransferuj }

func (a *Adapter) allowedIPs() []string {
	if a.cfg.AllowedIPs != nil {
		return a.cfg.AllowedIPs
	}
	return []string{defaultAllowedIP}
}

// parse extracts the canonical event from a raw notification. Required
// fields missing means the payload is malformed, not merely unsigned.
func parse(fields map[string]string) (*domain.CallbackEvent, error) {
	for _, required := range []string{"id", "tr_id", "tr_crc", "tr_amount", "tr_status", "md5sum"} {
		if _, ok := fields[required]; !ok {
			return nil, fmt.Errorf("%w: missing %s", domain.ErrMalformedCallback, required)
		}
	}

	ref, err := strconv.ParseInt(strings.TrimSpace(fields["tr_crc"]), 10, 64)
	if err != nil {
		// A non-numeric crc cannot reference a payment; the verdict for
		// that is decided after the signature check.
		ref = 0
	}

	claimed := decimal.Zero
	if raw := strings.TrimSpace(fields["tr_paid"]); raw != "" {
		claimed, err = decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: bad tr_paid", domain.ErrMalformedCallback)
		}
	}

	return &domain.CallbackEvent{
		GatewayTransactionID: fields["tr_id"],
		PaymentRef:           ref,
		ClaimedAmount:        claimed,
		RawStatus:            fields["tr_status"],
		PayerEmail:           fields["tr_email"],
		Description:          fields["tr_email"],
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

	if !sign.VerifyMD5KeySuffix(req.Fields, notificationSigFields, a.cfg.Key, req.Fields["md5sum"]) {
		a.log.Warn("callback with wrong signature",
			zap.String("tr_id", event.GatewayTransactionID),
			zap.Int64("tr_crc", event.PaymentRef),
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
		a.log.Error("callback crc references no payment", zap.Int64("tr_crc", event.PaymentRef))
		return domain.VerdictCRCErr, nil
	}
	if err != nil {
		return "", err
	}

	a.log.Info("incoming transferuj notification",
		zap.Int64("payment_id", payment.ID),
		zap.String("tr_id", event.GatewayTransactionID),
		zap.String("tr_status", event.RawStatus),
		zap.String("tr_paid", event.ClaimedAmount.String()),
	)

	payment.ExternalID = event.GatewayTransactionID
	payment.Description = event.Description

	if event.RawStatus == "TRUE" {
		// The processor requires the paid amount to be checked; it may
		// legitimately differ from the requested one. Without a tr_paid
		// field the settlement counts as the full amount.
		var claimed *decimal.Decimal
		if strings.TrimSpace(req.Fields["tr_paid"]) != "" {
			claimed = &event.ClaimedAmount
		}
		if _, err := a.machine.OnSuccess(ctx, a.tx, payment, claimed); err != nil {
			if !errors.Is(err, domain.ErrIllegalTransition) {
				return "", err
			}
			// Acknowledge anyway. A retry against a finalized payment must
			// terminate, not bounce forever.
			a.log.Warn("settlement for finalized payment ignored",
				zap.Int64("payment_id", payment.ID),
				zap.String("status", string(payment.Status)),
			)
		}
	} else if payment.Status != domain.StatusPaid {
		if err := a.machine.OnFailure(ctx, a.tx, payment); err != nil {
			if !errors.Is(err, domain.ErrIllegalTransition) {
				return "", err
			}
			a.log.Warn("failure notification for settled payment ignored",
				zap.Int64("payment_id", payment.ID),
				zap.String("status", string(payment.Status)),
			)
		}
	}

	if err := a.repo.Save(ctx, a.tx, payment); err != nil {
		return "", err
	}
	return domain.VerdictTrue, nil
}

func (a *Adapter) BuildRedirect(ctx context.Context, payment *domain.Payment) (domain.Redirect, error) {
	fields := map[string]string{
		"id":    strconv.FormatInt(a.cfg.MerchantID, 10),
		"opis":  orderDescription(payment),
		"crc":   strconv.FormatInt(payment.ID, 10),
		"kwota": payment.Amount.StringFixed(2),
	}

	if lang := strings.ToLower(strings.TrimSpace(a.cfg.Lang)); acceptedLangs[lang] {
		fields["jezyk"] = lang
	}

	if a.cfg.SigningEnabled() {
		fields["md5sum"] = sign.MD5KeySuffix(fields, redirectSigFields, a.cfg.Key)
	}

	onlineBase := adapters.Scheme(a.cfg.SSLOnline()) + "://" + a.urls.Domain()
	returnBase := adapters.Scheme(a.cfg.SSLReturn()) + "://" + a.urls.Domain()
	fields["wyn_url"] = onlineBase + a.urls.Path(a.Backend(), domain.URLOnline, payment.ID)
	fields["pow_url"] = returnBase + a.urls.Path(a.Backend(), domain.URLSuccess, payment.ID)
	fields["pow_url_blad"] = returnBase + a.urls.Path(a.Backend(), domain.URLFailure, payment.ID)

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
