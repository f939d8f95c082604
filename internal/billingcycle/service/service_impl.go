package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/teleora/teleora/internal/audit/domain"
	"github.com/teleora/teleora/internal/billingcycle/domain"
	simdomain "github.com/teleora/teleora/internal/sim/domain"
	"github.com/teleora/teleora/internal/validation"
	"github.com/teleora/teleora/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var cycleIDPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Sims     simdomain.Service
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	sims     simdomain.Service
	auditSvc auditdomain.Service
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("billingcycle.service"),
		genID:    p.GenID,
		sims:     p.Sims,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Accumulate(ctx context.Context, tx *gorm.DB, iccid string, delta domain.Delta, period domain.Period) error {
	now := time.Now().UTC()

	additive := map[string]any{
		"upload_bytes":   gorm.Expr("upload_bytes + ?", delta.UploadBytes),
		"download_bytes": gorm.Expr("download_bytes + ?", delta.DownloadBytes),
		"total_bytes":    gorm.Expr("total_bytes + ?", delta.TotalBytes),
		"sms_count":      gorm.Expr("sms_count + ?", delta.SMSCount),
		"voice_seconds":  gorm.Expr("voice_seconds + ?", delta.VoiceSeconds),
		"record_count":   gorm.Expr("record_count + 1"),
		"last_updated":   now,
	}

	// The open cycle takes precedence when it covers the record's period.
	// Reset may have given it bounds that differ from the calendar month.
	result := tx.WithContext(ctx).
		Model(&domain.BillingCycle{}).
		Where("iccid = ? AND current = ? AND cycle_start <= ? AND cycle_end > ?",
			iccid, true, period.Start, period.Start).
		Updates(additive)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// No covering open cycle: fall back to the calendar-month cycle of the
	// period start, creating it on first use. Late records for an archived
	// month land on that month's row without disturbing the current flag.
	cycleID := period.Start.UTC().Format("2006-01")
	monthStart := time.Date(period.Start.UTC().Year(), period.Start.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	var openCycles int64
	if err := tx.WithContext(ctx).
		Model(&domain.BillingCycle{}).
		Where("iccid = ? AND current = ?", iccid, true).
		Count(&openCycles).Error; err != nil {
		return err
	}

	cycle := &domain.BillingCycle{
		ID:            s.genID.Generate(),
		ICCID:         iccid,
		CycleID:       cycleID,
		CycleStart:    monthStart,
		CycleEnd:      monthEnd,
		UploadBytes:   delta.UploadBytes,
		DownloadBytes: delta.DownloadBytes,
		TotalBytes:    delta.TotalBytes,
		SMSCount:      delta.SMSCount,
		VoiceSeconds:  delta.VoiceSeconds,
		RecordCount:   1,
		Current:       openCycles == 0,
		LastUpdated:   now,
	}

	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "iccid"}, {Name: "cycle_id"}},
			DoUpdates: clause.Assignments(additive),
		}).
		Create(cycle).Error
}

func (s *Service) Query(ctx context.Context, iccid, cycle string) (*domain.QueryResult, error) {
	sim, err := s.findSim(ctx, iccid)
	if err != nil {
		return nil, err
	}

	cycle = strings.TrimSpace(cycle)
	if cycle == "" {
		cycle = domain.CycleCurrent
	}
	if cycle != domain.CycleCurrent && !cycleIDPattern.MatchString(cycle) {
		return nil, validation.New("cycle", "invalid_format", "cycle must be 'current' or YYYY-MM")
	}

	var row domain.BillingCycle
	query := s.db.WithContext(ctx).Where("iccid = ?", iccid)
	if cycle == domain.CycleCurrent {
		query = query.Where("current = ?", true)
	} else {
		query = query.Where("cycle_id = ?", cycle)
	}

	result := &domain.QueryResult{
		SimID:          sim.ID.String(),
		ICCID:          iccid,
		DataLimitBytes: sim.DataLimitBytes,
	}

	if err := query.First(&row).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
		// No usage reported yet: an empty view of the requested period.
		result.CycleID = cycle
		if cycle == domain.CycleCurrent {
			result.CycleID = time.Now().UTC().Format("2006-01")
		}
		return result, nil
	}

	result.CycleID = row.CycleID
	result.CycleStart = row.CycleStart
	result.CycleEnd = row.CycleEnd
	result.Usage = row.Totals()
	result.LastUpdated = row.LastUpdated

	if sim.DataLimitBytes != nil && *sim.DataLimitBytes > 0 {
		pct := float64(row.TotalBytes) / float64(*sim.DataLimitBytes) * 100
		result.PercentOfLimit = &pct
	}
	return result, nil
}

func (s *Service) Reset(ctx context.Context, req domain.ResetRequest) (*domain.ResetResult, error) {
	if err := validateReset(req); err != nil {
		return nil, err
	}

	if _, err := s.findSim(ctx, req.ICCID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var out domain.ResetResult
	out.ICCID = req.ICCID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var closing domain.BillingCycle
		hasClosing := true
		if err := tx.Where("iccid = ? AND current = ?", req.ICCID, true).First(&closing).Error; err != nil {
			if err != gorm.ErrRecordNotFound {
				return err
			}
			hasClosing = false
		}

		var archived datatypes.JSONMap
		if hasClosing {
			totals := closing.Totals()
			if req.FinalUsage != nil {
				totals = *req.FinalUsage
			}
			archived = datatypes.JSONMap{
				"cycleId":    closing.CycleID,
				"cycleStart": closing.CycleStart,
				"cycleEnd":   closing.CycleEnd,
				"archivedAt": now,
				"archivedUsage": map[string]any{
					"uploadBytes":   totals.UploadBytes,
					"downloadBytes": totals.DownloadBytes,
					"totalBytes":    totals.TotalBytes,
					"smsCount":      totals.SMSCount,
					"voiceSeconds":  totals.VoiceSeconds,
				},
			}
			if err := tx.Model(&domain.BillingCycle{}).
				Where("id = ?", closing.ID).
				Updates(map[string]any{"current": false, "last_updated": now}).Error; err != nil {
				return err
			}
		}

		next := &domain.BillingCycle{
			ID:            s.genID.Generate(),
			ICCID:         req.ICCID,
			CycleID:       req.BillingCycleID,
			CycleStart:    req.CycleStart.UTC(),
			CycleEnd:      req.CycleEnd.UTC(),
			Current:       true,
			PreviousCycle: archived,
			LastUpdated:   now,
		}
		if err := tx.Create(next).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return validation.New("billingCycleId", "already_exists", "a cycle with this id already exists for the iccid")
			}
			return err
		}

		out.PreviousCycle = archived
		out.NewCycle = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("billing cycle reset",
		zap.String("iccid", req.ICCID),
		zap.String("cycle_id", req.BillingCycleID),
	)
	if s.auditSvc != nil {
		changes := map[string]any{"billingCycleId": req.BillingCycleID}
		if out.PreviousCycle != nil {
			changes["previousCycleId"] = out.PreviousCycle["cycleId"]
		}
		// Fire-and-forget, same as the lifecycle path.
		_ = s.auditSvc.Record(ctx, auditdomain.Entry{
			ICCID:   req.ICCID,
			Action:  "usage_reset",
			Changes: changes,
		})
	}
	return &out, nil
}

func (s *Service) findSim(ctx context.Context, iccid string) (*simdomain.SIM, error) {
	return s.sims.GetByICCID(ctx, iccid)
}

func validateReset(req domain.ResetRequest) error {
	verr := &validation.Errors{}

	if strings.TrimSpace(req.ICCID) == "" {
		verr.Add("iccid", "required", "iccid is required")
	}
	if !cycleIDPattern.MatchString(req.BillingCycleID) {
		verr.Add("billingCycleId", "invalid_format", "billingCycleId must be YYYY-MM")
	}
	if req.CycleStart.IsZero() {
		verr.Add("cycleStart", "required", "cycleStart is required")
	}
	if req.CycleEnd.IsZero() {
		verr.Add("cycleEnd", "required", "cycleEnd is required")
	}
	if !req.CycleStart.IsZero() && !req.CycleEnd.IsZero() && !req.CycleEnd.After(req.CycleStart) {
		verr.Add("cycleEnd", "invalid_range", "cycleEnd must be after cycleStart")
	}
	if req.FinalUsage != nil {
		if req.FinalUsage.TotalBytes < 0 || req.FinalUsage.UploadBytes < 0 || req.FinalUsage.DownloadBytes < 0 ||
			req.FinalUsage.SMSCount < 0 || req.FinalUsage.VoiceSeconds < 0 {
			verr.Add("finalUsage", "negative", "final usage values must not be negative")
		}
	}

	return verr.AsError()
}
