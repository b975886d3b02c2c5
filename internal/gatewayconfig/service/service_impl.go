package service

import (
	"context"
	"sort"
	"strings"

	"github.com/smallbiznis/payflow/internal/gatewayconfig/domain"
	"github.com/smallbiznis/payflow/internal/gatewayconfig/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo repository.Repository
}

type Service struct {
	log     *zap.Logger
	configs map[string]domain.Config
}

// New loads and validates every active gateway configuration eagerly. A
// missing required setting aborts application start: a half-configured
// gateway must never see a live callback.
func New(p Params) (domain.Service, error) {
	records, err := p.Repo.ListActive(context.Background(), p.DB)
	if err != nil {
		return nil, err
	}

	log := p.Log.Named("gatewayconfig.service")
	configs := make(map[string]domain.Config, len(records))
	for _, record := range records {
		cfg, err := domain.Decode(record.Backend, record.Config)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		configs[strings.ToLower(record.Backend)] = cfg
	}

	log.Info("gateway configurations loaded", zap.Int("count", len(configs)))
	return &Service{log: log, configs: configs}, nil
}

// NewFromConfigs builds a service from already-validated configs. Used by
// tests and by deployments that configure gateways in code.
func NewFromConfigs(log *zap.Logger, configs ...domain.Config) (domain.Service, error) {
	byName := make(map[string]domain.Config, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		byName[strings.ToLower(cfg.BackendName())] = cfg
	}
	return &Service{log: log.Named("gatewayconfig.service"), configs: byName}, nil
}

func (s *Service) For(backend string) (domain.Config, error) {
	cfg, ok := s.configs[strings.ToLower(strings.TrimSpace(backend))]
	if !ok {
		return nil, domain.ErrNotConfigured
	}
	return cfg, nil
}

func (s *Service) Backends() []string {
	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
