package callback

import (
	"context"
	"strings"

	gatewaydomain "github.com/smallbiznis/payflow/internal/gatewayconfig/domain"
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
	Registry *adapters.Registry
	Gateways gatewaydomain.Service
	Repo     domain.Repository
	Machine  domain.StateMachine
	URLs     domain.URLResolver
	Verifier domain.RemoteVerifier
}

// Service routes an inbound gateway notification to its adapter and wraps
// the whole of lookup, verification, reconciliation and state transition
// in one database transaction, so concurrent retries for the same payment
// serialize on the payment row instead of interleaving a lost update.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	registry *adapters.Registry
	gateways gatewaydomain.Service
	repo     domain.Repository
	machine  domain.StateMachine
	urls     domain.URLResolver
	verifier domain.RemoteVerifier
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.callback"),
		registry: p.Registry,
		gateways: p.Gateways,
		repo:     p.Repo,
		machine:  p.Machine,
		urls:     p.URLs,
		verifier: p.Verifier,
	}
}

func (s *Service) Handle(ctx context.Context, backend string, req domain.CallbackRequest) (domain.Verdict, error) {
	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" || !s.registry.BackendExists(backend) {
		return "", domain.ErrBackendNotFound
	}

	gateway, err := s.gateways.For(backend)
	if err != nil {
		return "", err
	}

	var verdict domain.Verdict
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		adapter, err := s.registry.NewAdapter(backend, domain.AdapterDeps{
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

		verdict, err = adapter.HandleCallback(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}
	return verdict, nil
}
