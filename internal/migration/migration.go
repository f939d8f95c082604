// Package migration creates the schema on startup so the service is usable
// out of the box for local and self-hosted deployments.
package migration

import (
	apikeydomain "github.com/teleora/teleora/internal/apikey/domain"
	auditdomain "github.com/teleora/teleora/internal/audit/domain"
	billingdomain "github.com/teleora/teleora/internal/billingcycle/domain"
	simdomain "github.com/teleora/teleora/internal/sim/domain"
	usagedomain "github.com/teleora/teleora/internal/usage/domain"
	webhookdomain "github.com/teleora/teleora/internal/webhook/domain"
	"gorm.io/gorm"
)

// Models lists every persistent type, in dependency order.
func Models() []any {
	return []any{
		&simdomain.SIM{},
		&usagedomain.UsageRecord{},
		&billingdomain.BillingCycle{},
		&webhookdomain.Webhook{},
		&webhookdomain.Delivery{},
		&auditdomain.AuditLog{},
		&apikeydomain.APIKey{},
	}
}

func Run(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
