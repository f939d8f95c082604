package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/teleora/teleora/internal/apikey/domain"
	"github.com/teleora/teleora/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.APIKey{}))

	return NewService(ServiceParam{DB: db, Log: zap.NewNop()}), db
}

func seedKey(t *testing.T, db *gorm.DB, token string, mutate func(*domain.APIKey)) {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	key := domain.APIKey{
		ID:       node.Generate(),
		KeyHash:  domain.HashAPIKey(token),
		ClientID: "client-1",
		Name:     "test key",
		IsActive: true,
	}
	if mutate != nil {
		mutate(&key)
	}
	require.NoError(t, db.Create(&key).Error)
}

func TestAuthenticate(t *testing.T) {
	svc, db := newTestService(t)
	seedKey(t, db, "tk_live_valid", nil)

	clientID, err := svc.Authenticate(context.Background(), "tk_live_valid")
	require.NoError(t, err)
	assert.Equal(t, "client-1", clientID)

	// Surrounding whitespace is tolerated.
	clientID, err = svc.Authenticate(context.Background(), "  tk_live_valid ")
	require.NoError(t, err)
	assert.Equal(t, "client-1", clientID)
}

func TestAuthenticate_UnknownToken(t *testing.T) {
	svc, db := newTestService(t)
	seedKey(t, db, "tk_live_valid", nil)

	_, err := svc.Authenticate(context.Background(), "tk_live_other")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthenticate_EmptyToken(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Authenticate(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthenticate_InactiveKey(t *testing.T) {
	svc, db := newTestService(t)
	seedKey(t, db, "tk_live_revoked", nil)
	require.NoError(t, db.Model(&domain.APIKey{}).
		Where("key_hash = ?", domain.HashAPIKey("tk_live_revoked")).
		Update("is_active", false).Error)

	_, err := svc.Authenticate(context.Background(), "tk_live_revoked")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthenticate_ExpiredKey(t *testing.T) {
	svc, db := newTestService(t)
	past := time.Now().UTC().Add(-time.Hour)
	seedKey(t, db, "tk_live_expired", func(k *domain.APIKey) { k.ExpiresAt = &past })

	_, err := svc.Authenticate(context.Background(), "tk_live_expired")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthenticate_CachedLookupSurvivesRevocation(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.APIKey{}))

	resolver := cache.NewAuthResolverCache()
	svc := NewService(ServiceParam{DB: db, Log: zap.NewNop(), Cache: resolver})
	seedKey(t, db, "tk_live_cached", nil)

	clientID, err := svc.Authenticate(context.Background(), "tk_live_cached")
	require.NoError(t, err)
	assert.Equal(t, "client-1", clientID)

	// The resolved identity is served from cache until the TTL lapses, even
	// after the row is revoked.
	require.NoError(t, db.Model(&domain.APIKey{}).
		Where("key_hash = ?", domain.HashAPIKey("tk_live_cached")).
		Update("is_active", false).Error)

	clientID, err = svc.Authenticate(context.Background(), "tk_live_cached")
	require.NoError(t, err)
	assert.Equal(t, "client-1", clientID)

	resolver.Invalidate(domain.HashAPIKey("tk_live_cached"))
	_, err = svc.Authenticate(context.Background(), "tk_live_cached")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthenticate_FutureExpiryStillValid(t *testing.T) {
	svc, db := newTestService(t)
	future := time.Now().UTC().Add(time.Hour)
	seedKey(t, db, "tk_live_fresh", func(k *domain.APIKey) { k.ExpiresAt = &future })

	clientID, err := svc.Authenticate(context.Background(), "tk_live_fresh")
	require.NoError(t, err)
	assert.Equal(t, "client-1", clientID)
}
