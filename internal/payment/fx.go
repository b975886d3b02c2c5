package payment

import (
	"github.com/smallbiznis/payflow/internal/payment/adapters"
	"github.com/smallbiznis/payflow/internal/payment/adapters/cod"
	"github.com/smallbiznis/payflow/internal/payment/adapters/dotpay"
	"github.com/smallbiznis/payflow/internal/payment/adapters/paypal"
	"github.com/smallbiznis/payflow/internal/payment/adapters/transfer"
	"github.com/smallbiznis/payflow/internal/payment/adapters/transferuj"
	"github.com/smallbiznis/payflow/internal/payment/callback"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/payment/lifecycle"
	"github.com/smallbiznis/payflow/internal/payment/repository"
	paymentservice "github.com/smallbiznis/payflow/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(lifecycle.NewMachine),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			dotpay.NewFactory(),
			transferuj.NewFactory(),
			paypal.NewFactory(),
			cod.NewFactory(),
			transfer.NewFactory(),
		)
	}),
	fx.Provide(func() domain.RemoteVerifier { return paypal.NewPostbackVerifier() }),
	fx.Provide(callback.NewService),
	fx.Provide(paymentservice.NewService),
)
