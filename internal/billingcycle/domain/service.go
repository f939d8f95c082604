package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// CycleCurrent selects the open cycle in a usage query.
const CycleCurrent = "current"

// Delta is one validated usage contribution.
type Delta struct {
	UploadBytes   int64
	DownloadBytes int64
	TotalBytes    int64
	SMSCount      int64
	VoiceSeconds  int64
}

// Period is the time window a usage record covers.
type Period struct {
	Start time.Time
	End   time.Time
}

// QueryResult is the resolved usage view for one SIM and cycle.
// PercentOfLimit is nil when the SIM has no configured data limit.
type QueryResult struct {
	SimID          string
	ICCID          string
	CycleID        string
	CycleStart     time.Time
	CycleEnd       time.Time
	Usage          Delta
	DataLimitBytes *int64
	PercentOfLimit *float64
	LastUpdated    time.Time
}

// ResetRequest closes the current cycle and opens a new one.
// FinalUsage, when set, overrides the closing cycle's stored totals in the
// archived snapshot.
type ResetRequest struct {
	ICCID          string    `json:"iccid"`
	BillingCycleID string    `json:"billingCycleId"`
	CycleStart     time.Time `json:"cycleStart"`
	CycleEnd       time.Time `json:"cycleEnd"`
	FinalUsage     *Delta    `json:"finalUsage"`
}

type ResetResult struct {
	ICCID         string
	PreviousCycle map[string]any
	NewCycle      *BillingCycle
}

type Service interface {
	// Accumulate adds a usage delta into the cycle covering the period,
	// creating the cycle on first use. It runs inside the caller's
	// transaction so record insert and total update commit together.
	Accumulate(ctx context.Context, tx *gorm.DB, iccid string, delta Delta, period Period) error
	Query(ctx context.Context, iccid, cycle string) (*QueryResult, error)
	Reset(ctx context.Context, req ResetRequest) (*ResetResult, error)
}
