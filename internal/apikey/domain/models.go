// Package domain contains the API key model. Keys are stored hashed; the
// auth middleware resolves a bearer token to the owning client id.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// APIKey maps a hashed bearer token to a client identity.
type APIKey struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	KeyHash   string       `gorm:"type:text;not null;uniqueIndex"`
	ClientID  string       `gorm:"type:text;not null;index"`
	Name      string       `gorm:"type:text"`
	IsActive  bool         `gorm:"not null;default:true"`
	ExpiresAt *time.Time
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

type Service interface {
	// Authenticate resolves a raw bearer token to its client id.
	Authenticate(ctx context.Context, token string) (string, error)
}

var ErrUnauthorized = errors.New("unauthorized")
