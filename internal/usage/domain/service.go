package domain

import (
	"context"
	"time"

	"github.com/teleora/teleora/internal/validation"
)

// Submission outcomes. DUPLICATE acknowledges a previously seen record id
// without re-applying its totals.
const (
	StatusAccepted  = "ACCEPTED"
	StatusDuplicate = "DUPLICATE"
)

// MaxBatchSize is the hard cap on records per batch submission.
const MaxBatchSize = 1000

// MaxBatchErrorDetail caps per-record error detail in a batch response.
const MaxBatchErrorDetail = 10

// UsagePayload carries the reported usage counters. Pointers distinguish
// omitted optional counters from explicit zeros; TotalBytes is mandatory.
type UsagePayload struct {
	UploadBytes   *int64 `json:"uploadBytes"`
	DownloadBytes *int64 `json:"downloadBytes"`
	TotalBytes    *int64 `json:"totalBytes"`
	SMSCount      *int64 `json:"smsCount"`
	VoiceSeconds  *int64 `json:"voiceSeconds"`
}

// SubmitRequest is one usage record as received on the wire. Timestamps stay
// strings here so a malformed date surfaces as a field error, not a bind
// failure.
type SubmitRequest struct {
	RecordID    string       `json:"recordId"`
	ICCID       string       `json:"iccid"`
	PeriodStart string       `json:"periodStart"`
	PeriodEnd   string       `json:"periodEnd"`
	Usage       UsagePayload `json:"usage"`
	Source      string       `json:"source"`
}

type SubmitResult struct {
	RecordID    string
	Status      string
	ProcessedAt time.Time
}

type BatchRequest struct {
	BatchID string          `json:"batchId"`
	Source  string          `json:"source"`
	Records []SubmitRequest `json:"records"`
}

// BatchRecordError reports one failed record within a batch.
type BatchRecordError struct {
	Index    int                     `json:"index"`
	RecordID string                  `json:"recordId,omitempty"`
	Errors   []validation.FieldError `json:"errors"`
}

type BatchResult struct {
	BatchID          string
	RecordsReceived  int
	RecordsProcessed int
	RecordsFailed    int
	Errors           []BatchRecordError
	ProcessedAt      time.Time
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	SubmitBatch(ctx context.Context, req BatchRequest) (*BatchResult, error)
}
