// Package domain contains the usage mediation model. A usage record is one
// reported consumption event, deduplicated by the caller-supplied record id.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageRecord is immutable once ingested. RecordID is the idempotency key;
// a second insert with the same value never re-applies totals.
type UsageRecord struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	RecordID      string       `gorm:"type:text;not null;uniqueIndex"`
	ICCID         string       `gorm:"column:iccid;type:text;not null;index"`
	PeriodStart   time.Time    `gorm:"not null"`
	PeriodEnd     time.Time    `gorm:"not null"`
	UploadBytes   int64        `gorm:"not null;default:0"`
	DownloadBytes int64        `gorm:"not null;default:0"`
	TotalBytes    int64        `gorm:"not null;default:0"`
	SMSCount      int64        `gorm:"not null;default:0"`
	VoiceSeconds  int64        `gorm:"not null;default:0"`
	Source        string       `gorm:"type:text"`
	ReceivedAt    time.Time    `gorm:"not null"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }
