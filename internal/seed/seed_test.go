package seed

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	apikeydomain "github.com/teleora/teleora/internal/apikey/domain"
	"github.com/teleora/teleora/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&apikeydomain.APIKey{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return db, node
}

func keyCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&apikeydomain.APIKey{}).Count(&count).Error)
	return count
}

func TestEnsureBootstrapAPIKey(t *testing.T) {
	db, node := newTestDB(t)
	cfg := config.Config{
		BootstrapAPIKey:      "tk_bootstrap_secret",
		BootstrapAPIClientID: "ops",
	}

	require.NoError(t, EnsureBootstrapAPIKey(db, node, cfg, zap.NewNop()))
	require.Equal(t, int64(1), keyCount(t, db))

	var key apikeydomain.APIKey
	require.NoError(t, db.First(&key).Error)
	assert.Equal(t, apikeydomain.HashAPIKey("tk_bootstrap_secret"), key.KeyHash)
	assert.Equal(t, "ops", key.ClientID)
	assert.True(t, key.IsActive)

	// Restart with the same key is a no-op.
	require.NoError(t, EnsureBootstrapAPIKey(db, node, cfg, zap.NewNop()))
	assert.Equal(t, int64(1), keyCount(t, db))
}

func TestEnsureBootstrapAPIKey_RotationAddsNewKey(t *testing.T) {
	db, node := newTestDB(t)
	cfg := config.Config{BootstrapAPIKey: "tk_old", BootstrapAPIClientID: "ops"}

	require.NoError(t, EnsureBootstrapAPIKey(db, node, cfg, zap.NewNop()))
	cfg.BootstrapAPIKey = "tk_new"
	require.NoError(t, EnsureBootstrapAPIKey(db, node, cfg, zap.NewNop()))
	assert.Equal(t, int64(2), keyCount(t, db))
}

func TestEnsureBootstrapAPIKey_DisabledWhenUnset(t *testing.T) {
	db, node := newTestDB(t)

	require.NoError(t, EnsureBootstrapAPIKey(db, node, config.Config{}, zap.NewNop()))
	assert.Equal(t, int64(0), keyCount(t, db))
}
