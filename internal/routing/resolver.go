// Package routing maps gateway return/notification kinds onto this
// application's local routes, so adapters can build absolute URLs without
// knowing the HTTP layer.
package routing

import (
	"fmt"

	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/payment/domain"
	"go.uber.org/fx"
)

type Resolver struct {
	domain string
}

func New(cfg config.Config) domain.URLResolver {
	return &Resolver{domain: cfg.SiteDomain}
}

func (r *Resolver) Domain() string { return r.domain }

func (r *Resolver) Path(backend string, kind domain.URLKind, paymentID int64) string {
	switch kind {
	case domain.URLOnline:
		return fmt.Sprintf("/callbacks/%s", backend)
	case domain.URLSuccess:
		return fmt.Sprintf("/payments/%d/success", paymentID)
	case domain.URLFailure:
		return fmt.Sprintf("/payments/%d/failure", paymentID)
	}
	return "/"
}

var Module = fx.Module("routing",
	fx.Provide(New),
)
