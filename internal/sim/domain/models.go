// Package domain contains persistence models for provisioned SIMs.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the lifecycle state of a SIM.
type Status string

const (
	StatusProvisioned Status = "PROVISIONED"
	StatusActive      Status = "ACTIVE"
	StatusInactive    Status = "INACTIVE"
	StatusBlocked     Status = "BLOCKED"
)

// BlockReason is the closed set of reasons a SIM may be blocked for.
type BlockReason string

const (
	BlockReasonUsageThresholdExceeded BlockReason = "USAGE_THRESHOLD_EXCEEDED"
	BlockReasonFraudSuspected         BlockReason = "FRAUD_SUSPECTED"
	BlockReasonBillingIssue           BlockReason = "BILLING_ISSUE"
	BlockReasonCustomerRequest        BlockReason = "CUSTOMER_REQUEST"
	BlockReasonPolicyViolation        BlockReason = "POLICY_VIOLATION"
	BlockReasonManual                 BlockReason = "MANUAL"
)

// ValidBlockReason reports whether reason belongs to the closed enum.
func ValidBlockReason(reason string) bool {
	switch BlockReason(reason) {
	case BlockReasonUsageThresholdExceeded,
		BlockReasonFraudSuspected,
		BlockReasonBillingIssue,
		BlockReasonCustomerRequest,
		BlockReasonPolicyViolation,
		BlockReasonManual:
		return true
	default:
		return false
	}
}

// SIM is a provisioned telecom identity. Rows are never deleted; lifecycle is
// soft and driven exclusively through the state-machine operations.
type SIM struct {
	ID     snowflake.ID `gorm:"primaryKey"`
	ICCID  string       `gorm:"column:iccid;type:text;not null;uniqueIndex"`
	IMSI   string       `gorm:"type:text;not null"`
	MSISDN string       `gorm:"type:text;not null"`

	Status Status `gorm:"type:text;not null;default:'PROVISIONED'"`

	// BlockReason is non-nil iff Status == BLOCKED. PreviousStatus holds the
	// pre-block state so unblock can restore it.
	BlockReason    *BlockReason `gorm:"type:text"`
	PreviousStatus *Status      `gorm:"type:text"`
	BlockedAt      *time.Time

	APN              string `gorm:"type:text"`
	RatePlanID       string `gorm:"type:text"`
	DataLimitBytes   *int64
	BillingAccountID string `gorm:"type:text"`
	CustomerID       string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SIM) TableName() string { return "sims" }
