// Package domain contains webhook registrations and delivery bookkeeping.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Event types a webhook may subscribe to.
const (
	EventSimActivated   = "SIM_ACTIVATED"
	EventSimDeactivated = "SIM_DEACTIVATED"
	EventSimBlocked     = "SIM_BLOCKED"
	EventSimUnblocked   = "SIM_UNBLOCKED"
)

// ValidEventType reports whether name is a subscribable event type.
func ValidEventType(name string) bool {
	switch name {
	case EventSimActivated, EventSimDeactivated, EventSimBlocked, EventSimUnblocked:
		return true
	default:
		return false
	}
}

// WebhookStatus enables/disables a registration without deleting it.
type WebhookStatus string

const (
	WebhookStatusActive   WebhookStatus = "ACTIVE"
	WebhookStatusDisabled WebhookStatus = "DISABLED"
)

// Webhook is a subscriber registration for lifecycle events.
type Webhook struct {
	ID       snowflake.ID                 `gorm:"primaryKey"`
	URL      string                       `gorm:"type:text;not null"`
	Events   datatypes.JSONSlice[string]  `gorm:"not null"`
	Secret   string                       `gorm:"type:text;not null"`
	ClientID string                       `gorm:"type:text;not null;index"`
	Status   WebhookStatus                `gorm:"type:text;not null;default:'ACTIVE'"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Webhook) TableName() string { return "webhooks" }

// DeliveryStatus tracks one delivery's progress. DELIVERED and ABANDONED are
// terminal.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "PENDING"
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
	DeliveryStatusFailed    DeliveryStatus = "FAILED"
	DeliveryStatusAbandoned DeliveryStatus = "ABANDONED"
)

// Delivery is one attempt series to deliver an event to a webhook. Payload
// holds the exact JSON bytes sent on the wire; the signature is computed over
// these bytes, so they are stored rather than re-marshalled per attempt.
type Delivery struct {
	ID           snowflake.ID   `gorm:"primaryKey"`
	EventID      string         `gorm:"type:text;not null;index"`
	EventType    string         `gorm:"type:text;not null"`
	WebhookID    snowflake.ID   `gorm:"not null;index"`
	Payload      []byte         `gorm:"type:bytes;not null"`
	Status       DeliveryStatus `gorm:"type:text;not null;default:'PENDING';index"`
	AttemptCount int            `gorm:"not null;default:0"`
	ResponseCode *int
	LastError    string     `gorm:"type:text"`
	NextRetryAt  *time.Time `gorm:"index"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Delivery) TableName() string { return "webhook_deliveries" }
