package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/teleora/teleora/internal/audit/domain"
	"github.com/teleora/teleora/internal/observability/metrics"
	"github.com/teleora/teleora/internal/requestctx"
	simdomain "github.com/teleora/teleora/internal/sim/domain"
	"github.com/teleora/teleora/internal/validation"
	webhookdomain "github.com/teleora/teleora/internal/webhook/domain"
	"github.com/teleora/teleora/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	iccidPattern  = regexp.MustCompile(`^\d{19,20}$`)
	imsiPattern   = regexp.MustCompile(`^\d{15}$`)
	msisdnPattern = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	AuditSvc auditdomain.Service
	Notifier webhookdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	auditSvc auditdomain.Service
	notifier webhookdomain.Service
	metrics  *metrics.Metrics
}

func NewService(p ServiceParam) simdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("sim.service"),
		genID:    p.GenID,
		auditSvc: p.AuditSvc,
		notifier: p.Notifier,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req simdomain.CreateRequest) (*simdomain.SIM, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	status := simdomain.StatusProvisioned
	if req.Activate {
		status = simdomain.StatusActive
	}

	now := time.Now().UTC()
	sim := &simdomain.SIM{
		ID:               s.genID.Generate(),
		ICCID:            strings.TrimSpace(req.ICCID),
		IMSI:             strings.TrimSpace(req.IMSI),
		MSISDN:           strings.TrimSpace(req.MSISDN),
		Status:           status,
		APN:              strings.TrimSpace(req.APN),
		RatePlanID:       strings.TrimSpace(req.RatePlanID),
		DataLimitBytes:   req.DataLimitBytes,
		BillingAccountID: strings.TrimSpace(req.BillingAccountID),
		CustomerID:       strings.TrimSpace(req.CustomerID),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.db.WithContext(ctx).Create(sim).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, simdomain.ErrDuplicateICCID
		}
		return nil, err
	}

	s.audit(ctx, sim, "create", "", string(sim.Status), "", "", "", map[string]any{
		"status": map[string]any{"from": nil, "to": string(sim.Status)},
		"iccid":  sim.ICCID,
	})
	if req.Activate {
		s.emit(ctx, sim, webhookdomain.EventSimActivated, string(simdomain.StatusProvisioned), "", "")
	}
	return sim, nil
}

func (s *Service) Get(ctx context.Context, simID string) (*simdomain.SIM, error) {
	return s.find(ctx, simID)
}

func (s *Service) GetByICCID(ctx context.Context, iccid string) (*simdomain.SIM, error) {
	iccid = strings.TrimSpace(iccid)
	if iccid == "" {
		return nil, simdomain.ErrSimNotFound
	}

	var sim simdomain.SIM
	if err := s.db.WithContext(ctx).First(&sim, "iccid = ?", iccid).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, simdomain.ErrSimNotFound
		}
		return nil, err
	}
	return &sim, nil
}

func (s *Service) Activate(ctx context.Context, req simdomain.TransitionRequest) (*simdomain.TransitionResult, error) {
	return s.transition(ctx, req, simdomain.OperationActivate)
}

func (s *Service) Deactivate(ctx context.Context, req simdomain.TransitionRequest) (*simdomain.TransitionResult, error) {
	return s.transition(ctx, req, simdomain.OperationDeactivate)
}

func (s *Service) Block(ctx context.Context, req simdomain.TransitionRequest) (*simdomain.TransitionResult, error) {
	if !simdomain.ValidBlockReason(strings.TrimSpace(req.Reason)) {
		return nil, validation.New("reason", "invalid_block_reason", "reason must be one of the supported block reasons")
	}
	return s.transition(ctx, req, simdomain.OperationBlock)
}

func (s *Service) Unblock(ctx context.Context, req simdomain.TransitionRequest) (*simdomain.TransitionResult, error) {
	return s.transition(ctx, req, simdomain.OperationUnblock)
}

func (s *Service) transition(ctx context.Context, req simdomain.TransitionRequest, op simdomain.Operation) (*simdomain.TransitionResult, error) {
	sim, err := s.find(ctx, req.SimID)
	if err != nil {
		return nil, err
	}

	current := sim.Status

	// Double-block is a common idempotent caller retry; acknowledge instead
	// of failing.
	if op == simdomain.OperationBlock && current == simdomain.StatusBlocked {
		return &simdomain.TransitionResult{SIM: sim, Changed: false, Note: "already blocked"}, nil
	}

	next, err := nextStatus(sim, op)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"status":     next,
		"updated_at": time.Now().UTC(),
	}
	switch op {
	case simdomain.OperationBlock:
		reason := simdomain.BlockReason(strings.TrimSpace(req.Reason))
		updates["block_reason"] = reason
		updates["previous_status"] = current
		updates["blocked_at"] = time.Now().UTC()
	case simdomain.OperationUnblock:
		updates["block_reason"] = nil
		updates["previous_status"] = nil
		updates["blocked_at"] = nil
	}

	// Conditional update on the observed status: a concurrent transition
	// loses the race and is reported against the fresh state.
	result := s.db.WithContext(ctx).
		Model(&simdomain.SIM{}).
		Where("id = ? AND status = ?", sim.ID, current).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		fresh, err := s.find(ctx, req.SimID)
		if err != nil {
			return nil, err
		}
		return nil, &simdomain.InvalidTransitionError{
			Operation: op,
			Current:   fresh.Status,
			Attempted: next,
		}
	}

	updated, err := s.find(ctx, req.SimID)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordStateTransition(string(op))
	}

	s.audit(ctx, updated, string(op), string(current), string(next), req.Reason, req.Notes, req.CorrelationID, map[string]any{
		"status": map[string]any{"from": string(current), "to": string(next)},
	})
	s.emit(ctx, updated, eventTypeFor(op), string(current), req.Reason, req.CorrelationID)

	return &simdomain.TransitionResult{SIM: updated, Changed: true}, nil
}

// nextStatus applies the legal-transition table.
func nextStatus(sim *simdomain.SIM, op simdomain.Operation) (simdomain.Status, error) {
	current := sim.Status

	invalid := func(attempted simdomain.Status) error {
		return &simdomain.InvalidTransitionError{Operation: op, Current: current, Attempted: attempted}
	}

	switch op {
	case simdomain.OperationActivate:
		if current == simdomain.StatusProvisioned || current == simdomain.StatusInactive {
			return op.TargetStatus(), nil
		}
		return "", invalid(op.TargetStatus())
	case simdomain.OperationDeactivate:
		if current == simdomain.StatusActive {
			return op.TargetStatus(), nil
		}
		return "", invalid(op.TargetStatus())
	case simdomain.OperationBlock:
		if current == simdomain.StatusActive || current == simdomain.StatusInactive {
			return op.TargetStatus(), nil
		}
		return "", invalid(op.TargetStatus())
	case simdomain.OperationUnblock:
		if current != simdomain.StatusBlocked {
			return "", invalid(restoredStatus(sim))
		}
		return restoredStatus(sim), nil
	default:
		return "", invalid("")
	}
}

// restoredStatus is the state preserved at block time. INACTIVE is the
// conservative fallback for rows blocked before the column existed.
func restoredStatus(sim *simdomain.SIM) simdomain.Status {
	if sim.PreviousStatus != nil && *sim.PreviousStatus != "" {
		return *sim.PreviousStatus
	}
	return simdomain.StatusInactive
}

func eventTypeFor(op simdomain.Operation) string {
	switch op {
	case simdomain.OperationActivate:
		return webhookdomain.EventSimActivated
	case simdomain.OperationDeactivate:
		return webhookdomain.EventSimDeactivated
	case simdomain.OperationBlock:
		return webhookdomain.EventSimBlocked
	case simdomain.OperationUnblock:
		return webhookdomain.EventSimUnblocked
	default:
		return ""
	}
}

func (s *Service) find(ctx context.Context, simID string) (*simdomain.SIM, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(simID))
	if err != nil || id == 0 {
		return nil, simdomain.ErrSimNotFound
	}

	var sim simdomain.SIM
	if err := s.db.WithContext(ctx).First(&sim, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, simdomain.ErrSimNotFound
		}
		return nil, err
	}
	return &sim, nil
}

// audit is fire-and-forget: a failed write is already logged by the audit
// service and must not fail the state change.
func (s *Service) audit(ctx context.Context, sim *simdomain.SIM, action, previous, next, reason, notes, correlationID string, changes map[string]any) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		SimID:          sim.ID.String(),
		ICCID:          sim.ICCID,
		Action:         action,
		PreviousStatus: previous,
		NewStatus:      next,
		Reason:         reason,
		Notes:          notes,
		CorrelationID:  correlationID,
		Changes:        changes,
	})
}

func (s *Service) emit(ctx context.Context, sim *simdomain.SIM, eventType, previous, reason, correlationID string) {
	if s.notifier == nil || eventType == "" {
		return
	}
	s.notifier.Emit(webhookdomain.Event{
		Type:           eventType,
		SimID:          sim.ID.String(),
		ICCID:          sim.ICCID,
		IMSI:           sim.IMSI,
		MSISDN:         sim.MSISDN,
		PreviousStatus: previous,
		NewStatus:      string(sim.Status),
		Reason:         reason,
		InitiatedBy:    requestctx.InitiatorFromContext(ctx),
		CorrelationID:  correlationID,
	})
}

func validateCreate(req simdomain.CreateRequest) error {
	verr := &validation.Errors{}

	iccid := strings.TrimSpace(req.ICCID)
	switch {
	case iccid == "":
		verr.Add("iccid", "required", "iccid is required")
	case !iccidPattern.MatchString(iccid):
		verr.Add("iccid", "invalid_format", "iccid must be 19-20 digits")
	}

	imsi := strings.TrimSpace(req.IMSI)
	switch {
	case imsi == "":
		verr.Add("imsi", "required", "imsi is required")
	case !imsiPattern.MatchString(imsi):
		verr.Add("imsi", "invalid_format", "imsi must be 15 digits")
	}

	msisdn := strings.TrimSpace(req.MSISDN)
	switch {
	case msisdn == "":
		verr.Add("msisdn", "required", "msisdn is required")
	case !msisdnPattern.MatchString(msisdn):
		verr.Add("msisdn", "invalid_format", "msisdn must be an E.164 number")
	}

	if req.DataLimitBytes != nil && *req.DataLimitBytes < 0 {
		verr.Add("dataLimitBytes", "negative", "data limit must not be negative")
	}

	return verr.AsError()
}
