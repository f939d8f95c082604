package service

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/teleora/teleora/internal/apikey/domain"
	"github.com/teleora/teleora/internal/cache"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cache cache.AuthResolverCache `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	cache cache.AuthResolverCache
}

func NewService(p ServiceParam) domain.Service {
	return &Service{db: p.DB, log: p.Log.Named("apikey.service"), cache: p.Cache}
}

func (s *Service) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.ErrUnauthorized
	}

	hash := domain.HashAPIKey(token)
	if s.cache != nil {
		if clientID, ok := s.cache.GetClientID(hash); ok {
			return clientID, nil
		}
	}

	now := time.Now().UTC()
	var key domain.APIKey
	err := s.db.WithContext(ctx).
		Where("key_hash = ? AND is_active = ? AND (expires_at IS NULL OR expires_at > ?)", hash, true, now).
		First(&key).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", domain.ErrUnauthorized
		}
		return "", err
	}

	if subtle.ConstantTimeCompare([]byte(key.KeyHash), []byte(hash)) != 1 {
		return "", domain.ErrUnauthorized
	}

	if s.cache != nil {
		// Keys expiring sooner than the cache TTL are not cached so expiry
		// stays exact.
		if key.ExpiresAt == nil || key.ExpiresAt.After(now.Add(time.Minute)) {
			s.cache.SetClientID(hash, key.ClientID)
		}
	}
	return key.ClientID, nil
}
