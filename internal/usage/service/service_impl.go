package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/teleora/teleora/internal/audit/domain"
	billingdomain "github.com/teleora/teleora/internal/billingcycle/domain"
	"github.com/teleora/teleora/internal/observability/metrics"
	"github.com/teleora/teleora/internal/usage/domain"
	"github.com/teleora/teleora/internal/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Cycles   billingdomain.Service
	AuditSvc auditdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	cycles   billingdomain.Service
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("usage.service"),
		genID:    p.GenID,
		cycles:   p.Cycles,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.SubmitResult, error) {
	record, err := s.buildRecord(req)
	if err != nil {
		return nil, err
	}

	status, err := s.apply(ctx, record)
	if err != nil {
		// One retry at the transaction boundary covers transient storage
		// failures. The conditional insert keeps the retry safe.
		s.log.Warn("usage apply failed, retrying once",
			zap.String("record_id", record.RecordID),
			zap.Error(err),
		)
		status, err = s.apply(ctx, record)
	}
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordUsageIngest(status)
	}

	s.audit(ctx, record.ICCID, "usage_submit", map[string]any{
		"recordId":   record.RecordID,
		"status":     status,
		"totalBytes": record.TotalBytes,
	})

	return &domain.SubmitResult{
		RecordID:    record.RecordID,
		Status:      status,
		ProcessedAt: time.Now().UTC(),
	}, nil
}

func (s *Service) SubmitBatch(ctx context.Context, req domain.BatchRequest) (*domain.BatchResult, error) {
	verr := &validation.Errors{}
	if strings.TrimSpace(req.BatchID) == "" {
		verr.Add("batchId", "required", "batchId is required")
	}
	if len(req.Records) == 0 {
		verr.Add("records", "required", "records must not be empty")
	}
	if len(req.Records) > domain.MaxBatchSize {
		verr.Add("records", "too_many", "batch must not exceed 1000 records")
	}
	if err := verr.AsError(); err != nil {
		return nil, err
	}

	out := &domain.BatchResult{
		BatchID:         req.BatchID,
		RecordsReceived: len(req.Records),
	}

	for i, rec := range req.Records {
		if rec.Source == "" {
			rec.Source = req.Source
		}

		_, err := s.Submit(ctx, rec)
		if err == nil {
			out.RecordsProcessed++
			continue
		}

		out.RecordsFailed++
		if len(out.Errors) >= domain.MaxBatchErrorDetail {
			continue
		}
		detail := domain.BatchRecordError{Index: i, RecordID: strings.TrimSpace(rec.RecordID)}
		if verrs, ok := err.(*validation.Errors); ok {
			detail.Errors = verrs.Fields
		} else {
			detail.Errors = []validation.FieldError{{
				Field:   "record",
				Code:    "apply_failed",
				Message: "record could not be applied",
			}}
		}
		out.Errors = append(out.Errors, detail)
	}

	out.ProcessedAt = time.Now().UTC()

	s.audit(ctx, "", "usage_batch", map[string]any{
		"batchId":          req.BatchID,
		"recordsReceived":  out.RecordsReceived,
		"recordsProcessed": out.RecordsProcessed,
		"recordsFailed":    out.RecordsFailed,
	})
	return out, nil
}

// audit is fire-and-forget: a failed write is already logged by the audit
// service and must not fail the ingestion.
func (s *Service) audit(ctx context.Context, iccid, action string, changes map[string]any) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		ICCID:   iccid,
		Action:  action,
		Changes: changes,
	})
}

// apply is the single atomic unit: conditional insert on the record id plus
// the billing cycle accumulation, in one transaction. A lost insert race is
// observed as zero rows affected and reported DUPLICATE.
func (s *Service) apply(ctx context.Context, record *domain.UsageRecord) (string, error) {
	var status string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "record_id"}},
			DoNothing: true,
		}).Create(record)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			status = domain.StatusDuplicate
			return nil
		}

		status = domain.StatusAccepted
		return s.cycles.Accumulate(ctx, tx,
			record.ICCID,
			billingdomain.Delta{
				UploadBytes:   record.UploadBytes,
				DownloadBytes: record.DownloadBytes,
				TotalBytes:    record.TotalBytes,
				SMSCount:      record.SMSCount,
				VoiceSeconds:  record.VoiceSeconds,
			},
			billingdomain.Period{Start: record.PeriodStart, End: record.PeriodEnd},
		)
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

func (s *Service) buildRecord(req domain.SubmitRequest) (*domain.UsageRecord, error) {
	verr := &validation.Errors{}

	recordID := strings.TrimSpace(req.RecordID)
	if recordID == "" {
		verr.Add("recordId", "required", "recordId is required")
	}
	iccid := strings.TrimSpace(req.ICCID)
	if iccid == "" {
		verr.Add("iccid", "required", "iccid is required")
	}

	periodStart := parsePeriod(verr, "periodStart", req.PeriodStart)
	periodEnd := parsePeriod(verr, "periodEnd", req.PeriodEnd)
	if !periodStart.IsZero() && !periodEnd.IsZero() && !periodEnd.After(periodStart) {
		verr.Add("periodEnd", "invalid_range", "periodEnd must be after periodStart")
	}

	if req.Usage.TotalBytes == nil {
		verr.Add("usage.totalBytes", "required", "usage.totalBytes is required")
	}
	checkNonNegative(verr, "usage.totalBytes", req.Usage.TotalBytes)
	checkNonNegative(verr, "usage.uploadBytes", req.Usage.UploadBytes)
	checkNonNegative(verr, "usage.downloadBytes", req.Usage.DownloadBytes)
	checkNonNegative(verr, "usage.smsCount", req.Usage.SMSCount)
	checkNonNegative(verr, "usage.voiceSeconds", req.Usage.VoiceSeconds)

	if err := verr.AsError(); err != nil {
		return nil, err
	}

	return &domain.UsageRecord{
		ID:            s.genID.Generate(),
		RecordID:      recordID,
		ICCID:         iccid,
		PeriodStart:   periodStart.UTC(),
		PeriodEnd:     periodEnd.UTC(),
		UploadBytes:   valueOrZero(req.Usage.UploadBytes),
		DownloadBytes: valueOrZero(req.Usage.DownloadBytes),
		TotalBytes:    valueOrZero(req.Usage.TotalBytes),
		SMSCount:      valueOrZero(req.Usage.SMSCount),
		VoiceSeconds:  valueOrZero(req.Usage.VoiceSeconds),
		Source:        strings.TrimSpace(req.Source),
		ReceivedAt:    time.Now().UTC(),
	}, nil
}

func parsePeriod(verr *validation.Errors, field, value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		verr.Add(field, "required", field+" is required")
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		verr.Add(field, "invalid_format", field+" must be an ISO-8601 timestamp")
		return time.Time{}
	}
	return t
}

func checkNonNegative(verr *validation.Errors, field string, value *int64) {
	if value != nil && *value < 0 {
		verr.Add(field, "negative", field+" must not be negative")
	}
}

func valueOrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
