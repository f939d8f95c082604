// Package seed provisions startup data so a fresh deployment is usable
// without manual setup.
package seed

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/teleora/teleora/internal/apikey/domain"
	"github.com/teleora/teleora/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EnsureBootstrapAPIKey seeds the configured bootstrap key when it is not
// already present. Seeding is idempotent across restarts; the key row is
// matched by hash, so rotating the configured value adds a new key rather
// than mutating the old one.
func EnsureBootstrapAPIKey(db *gorm.DB, node *snowflake.Node, cfg config.Config, log *zap.Logger) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	token := strings.TrimSpace(cfg.BootstrapAPIKey)
	if token == "" {
		return nil
	}

	hash := apikeydomain.HashAPIKey(token)

	var count int64
	if err := db.Model(&apikeydomain.APIKey{}).
		Where("key_hash = ?", hash).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	key := apikeydomain.APIKey{
		ID:        node.Generate(),
		KeyHash:   hash,
		ClientID:  strings.TrimSpace(cfg.BootstrapAPIClientID),
		Name:      "bootstrap",
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(&key).Error; err != nil {
		return err
	}

	log.Info("seeded bootstrap api key",
		zap.String("client_id", key.ClientID),
		zap.String("key_id", key.ID.String()),
	)
	return nil
}

// Module runs the seeder after migrations during startup.
var Module = fx.Module("seed",
	fx.Invoke(EnsureBootstrapAPIKey),
)
