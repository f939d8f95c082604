// Package domain contains the billing cycle accumulator model. A cycle is
// the running per-SIM usage total for one accounting period, keyed by
// (iccid, cycle id) with at most one current cycle per iccid.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BillingCycle accumulates usage for one SIM over one billing period.
// PreviousCycle carries the archived snapshot written at reset time.
type BillingCycle struct {
	ID            snowflake.ID      `gorm:"primaryKey"`
	ICCID         string            `gorm:"column:iccid;type:text;not null;uniqueIndex:idx_billing_cycles_iccid_cycle"`
	CycleID       string            `gorm:"type:text;not null;uniqueIndex:idx_billing_cycles_iccid_cycle"`
	CycleStart    time.Time         `gorm:"not null"`
	CycleEnd      time.Time         `gorm:"not null"`
	UploadBytes   int64             `gorm:"not null;default:0"`
	DownloadBytes int64             `gorm:"not null;default:0"`
	TotalBytes    int64             `gorm:"not null;default:0"`
	SMSCount      int64             `gorm:"not null;default:0"`
	VoiceSeconds  int64             `gorm:"not null;default:0"`
	RecordCount   int64             `gorm:"not null;default:0"`
	Current       bool              `gorm:"not null;default:false;index"`
	PreviousCycle datatypes.JSONMap `gorm:"type:jsonb"`
	LastUpdated   time.Time         `gorm:"not null"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingCycle) TableName() string { return "billing_cycles" }

// Totals returns the cycle's accumulated usage as a delta value.
func (c *BillingCycle) Totals() Delta {
	return Delta{
		UploadBytes:   c.UploadBytes,
		DownloadBytes: c.DownloadBytes,
		TotalBytes:    c.TotalBytes,
		SMSCount:      c.SMSCount,
		VoiceSeconds:  c.VoiceSeconds,
	}
}
