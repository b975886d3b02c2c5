package migration

import (
	"strings"

	gatewaydomain "github.com/smallbiznis/payflow/internal/gatewayconfig/domain"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
	"github.com/smallbiznis/payflow/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		if strings.EqualFold(conn.Dialector.Name(), "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// golang-migrate's embedded source is written for postgres;
			// mysql and sqlite deployments fall back to the ORM schema.
			err := conn.AutoMigrate(
				&orderdomain.Order{},
				&paymentdomain.Payment{},
				&gatewaydomain.Record{},
			)
			if err != nil {
				return err
			}
		}

		return seed.EnsureLocalBackends(conn)
	}),
)
