// Package cod is the cash-on-delivery backend. There is no remote
// counterparty and no untrusted network input: the "callback" is the local
// confirmation step that accepts the payment for processing, and the
// redirect points at a locally-routed landing page.
package cod

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	gatewaydomain "github.com/smallbiznis/payflow/internal/gatewayconfig/domain"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Backend() string {
	return gatewaydomain.BackendCOD
}

func (f *Factory) NewAdapter(deps domain.AdapterDeps) (domain.GatewayAdapter, error) {
	cfg, ok := deps.Gateway.(gatewaydomain.LocalConfig)
	if !ok {
		return nil, gatewaydomain.ErrInvalidConfig
	}
	return &Adapter{
		cfg:     cfg,
		tx:      deps.Tx,
		repo:    deps.Repo,
		machine: deps.Machine,
		urls:    deps.URLs,
		log:     deps.Log.Named("adapter.cod"),
	}, nil
}

type Adapter struct {
	cfg     gatewaydomain.LocalConfig
	tx      *gorm.DB
	repo    domain.Repository
	machine domain.StateMachine
	urls    domain.URLResolver
	log     *zap.Logger
}

func (a *Adapter) Backend() string { return gatewaydomain.BackendCOD }

// HandleCallback accepts the payment for processing. Settlement happens
// offline, on delivery.
func (a *Adapter) HandleCallback(ctx context.Context, req domain.CallbackRequest) (domain.Verdict, error) {
	raw := strings.TrimSpace(req.Fields["payment"])
	if raw == "" {
		return "", fmt.Errorf("%w: missing payment", domain.ErrMalformedCallback)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: bad payment id", domain.ErrMalformedCallback)
	}

	payment, err := a.repo.FindForUpdate(ctx, a.tx, id)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		a.log.Error("confirmation for unknown payment", zap.Int64("payment_id", id))
		return domain.VerdictPaymentErr, nil
	}
	if err != nil {
		return "", err
	}

	if err := a.machine.ChangeStatus(ctx, a.tx, payment, domain.StatusAcceptedForProc); err != nil {
		if !errors.Is(err, domain.ErrIllegalTransition) {
			return "", err
		}
		a.log.Warn("confirmation for already processed payment ignored",
			zap.Int64("payment_id", payment.ID),
			zap.String("status", string(payment.Status)),
		)
	}
	return domain.VerdictOK, nil
}

func (a *Adapter) BuildRedirect(ctx context.Context, payment *domain.Payment) (domain.Redirect, error) {
	url := "https://" + a.urls.Domain() + a.urls.Path(a.Backend(), domain.URLSuccess, payment.ID)
	return domain.Redirect{URL: url, Method: "GET", Fields: map[string]string{}}, nil
}
