// Package domain contains the audit trail model. Entries are a side-channel
// record of API calls and SIM state transitions; writes never gate the
// primary operation.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog records one mutating operation.
type AuditLog struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	SimID          string            `gorm:"type:text;index"`
	ICCID          string            `gorm:"column:iccid;type:text;index"`
	Action         string            `gorm:"type:text;not null"`
	PreviousStatus string            `gorm:"type:text"`
	NewStatus      string            `gorm:"type:text"`
	Reason         string            `gorm:"type:text"`
	Notes          string            `gorm:"type:text"`
	InitiatorType  string            `gorm:"type:text;not null"`
	ClientID       string            `gorm:"type:text"`
	CorrelationID  string            `gorm:"type:text"`
	RequestID      string            `gorm:"type:text"`
	IPAddress      string            `gorm:"type:text"`
	Changes        datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// Entry is the caller-facing shape of an audit record. Request-scoped fields
// (client id, request id, ip, initiator) are resolved from context.
type Entry struct {
	SimID          string
	ICCID          string
	Action         string
	PreviousStatus string
	NewStatus      string
	Reason         string
	Notes          string
	CorrelationID  string
	Changes        map[string]any
}

type ListRequest struct {
	SimID     string
	ICCID     string
	Action    string
	StartAt   *time.Time
	EndAt     *time.Time
	PageToken string
	PageSize  int32
}

type ListResponse struct {
	AuditLogs     []AuditLog `json:"audit_logs"`
	NextPageToken string     `json:"next_page_token"`
	HasMore       bool       `json:"has_more"`
}

type Service interface {
	// Record persists an audit entry. Failures are logged and swallowed; the
	// returned error is informational for tests only and must not be used to
	// fail the primary operation.
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

type Repository interface {
	Insert(ctx context.Context, entry *AuditLog) error
	List(ctx context.Context, filter ListFilter) ([]*AuditLog, error)
}

// ListFilter narrows an audit query.
type ListFilter struct {
	SimID   string
	ICCID   string
	Action  string
	StartAt *time.Time
	EndAt   *time.Time
	Cursor  *Cursor
	Limit   int
}

// Cursor points past the last row of the previous page.
type Cursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
