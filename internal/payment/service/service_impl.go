package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/config"
	gatewaydomain "github.com/smallbiznis/payflow/internal/gatewayconfig/domain"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	"github.com/smallbiznis/payflow/internal/payment/adapters"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	Registry *adapters.Registry
	Gateways gatewaydomain.Service
	Repo     domain.Repository
	Orders   orderdomain.Repository
	Machine  domain.StateMachine
	URLs     domain.URLResolver
	Verifier domain.RemoteVerifier
}

// Service owns the outbound half of a payment's life: creation from an
// order and the redirect hand-off into the gateway's checkout.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	registry *adapters.Registry
	gateways gatewaydomain.Service
	repo     domain.Repository
	orders   orderdomain.Repository
	machine  domain.StateMachine
	urls     domain.URLResolver
	verifier domain.RemoteVerifier
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		registry: p.Registry,
		gateways: p.Gateways,
		repo:     p.Repo,
		orders:   p.Orders,
		machine:  p.Machine,
		urls:     p.URLs,
		verifier: p.Verifier,
	}
}

// Create builds a payment for an order on the requested backend. Amount
// and currency are copied from the order and never change afterwards.
func (s *Service) Create(ctx context.Context, orderID int64, backend string) (*domain.Payment, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if !s.registry.BackendExists(backend) {
		return nil, domain.ErrBackendNotFound
	}
	gateway, err := s.gateways.For(backend)
	if err != nil {
		return nil, err
	}

	ord, err := s.orders.Find(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}

	if !currencyAccepted(gateway, ord.Currency) {
		return nil, domain.ErrCurrencyRejected
	}

	payment := &domain.Payment{
		ID:          s.genID.Generate().Int64(),
		OrderID:     ord.ID,
		Amount:      ord.Amount,
		Currency:    strings.ToUpper(ord.Currency),
		Status:      domain.StatusNew,
		Backend:     backend,
		Description: ord.Description,
		CreatedOn:   s.clock.Now().UTC(),
	}
	if err := s.repo.Create(ctx, s.db, payment); err != nil {
		return nil, err
	}

	s.log.Info("payment created",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("order_id", ord.ID),
		zap.String("backend", backend),
		zap.String("amount", payment.Amount.String()),
		zap.String("currency", payment.Currency),
	)
	return payment, nil
}

// Redirect moves a fresh payment into in_progress and builds the checkout
// hand-off for its gateway.
func (s *Service) Redirect(ctx context.Context, paymentID int64) (domain.Redirect, error) {
	var redirect domain.Redirect
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}

		gateway, err := s.gateways.For(payment.Backend)
		if err != nil {
			return err
		}
		adapter, err := s.registry.NewAdapter(payment.Backend, domain.AdapterDeps{
			Tx:       tx,
			Gateway:  gateway,
			Repo:     s.repo,
			Machine:  s.machine,
			URLs:     s.urls,
			Verifier: s.verifier,
			Log:      s.log,
		})
		if err != nil {
			return err
		}

		if payment.Status == domain.StatusNew {
			if err := s.machine.ChangeStatus(ctx, tx, payment, domain.StatusInProgress); err != nil {
				return err
			}
		}

		redirect, err = adapter.BuildRedirect(ctx, payment)
		return err
	})
	if err != nil {
		return domain.Redirect{}, err
	}
	return redirect, nil
}

// Find returns one payment.
func (s *Service) Find(ctx context.Context, paymentID int64) (*domain.Payment, error) {
	return s.repo.Find(ctx, s.db, paymentID)
}

// ConfirmReturn handles the buyer landing back from the gateway. Only the
// paypal failure return cancels the payment: its cancel_return fires when
// the buyer abandons checkout, so no notification will ever follow. The
// other gateways report outcomes through their server callbacks and their
// return pages carry no authority over state. Either way the caller gets
// the deployment's landing URL to send the buyer to.
func (s *Service) ConfirmReturn(ctx context.Context, paymentID int64, success bool) (string, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if success || payment.Backend != gatewaydomain.BackendPaypal {
			return nil
		}
		if err := s.machine.ChangeStatus(ctx, tx, payment, domain.StatusCancelled); err != nil {
			if !errors.Is(err, domain.ErrIllegalTransition) {
				return err
			}
			s.log.Warn("failure return for settled payment ignored",
				zap.Int64("payment_id", payment.ID),
				zap.String("status", string(payment.Status)),
			)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if success {
		return s.cfg.SuccessURL, nil
	}
	return s.cfg.FailureURL, nil
}

func currencyAccepted(gateway gatewaydomain.Config, currency string) bool {
	for _, accepted := range gatewaydomain.AcceptedCurrencies(gateway) {
		if strings.EqualFold(accepted, currency) {
			return true
		}
	}
	return false
}
