package order

import (
	"github.com/smallbiznis/payflow/internal/order/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
)
