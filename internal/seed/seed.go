package seed

import (
	"encoding/json"
	"time"

	gatewaydomain "github.com/smallbiznis/payflow/internal/gatewayconfig/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnsureLocalBackends inserts default configurations for the offline
// backends so a fresh deployment can take cash-on-delivery and bank
// transfer payments without any setup. Existing rows are left alone.
func EnsureLocalBackends(db *gorm.DB) error {
	for _, backend := range []string{gatewaydomain.BackendCOD, gatewaydomain.BackendTransfer} {
		raw, err := json.Marshal(gatewaydomain.LocalConfig{Name: backend})
		if err != nil {
			return err
		}
		record := gatewaydomain.Record{
			Backend:   backend,
			Config:    raw,
			IsActive:  true,
			UpdatedAt: time.Now().UTC(),
		}
		err = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "backend"}},
			DoNothing: true,
		}).Create(&record).Error
		if err != nil {
			return err
		}
	}
	return nil
}
