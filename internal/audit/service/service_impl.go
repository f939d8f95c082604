package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/teleora/teleora/internal/audit/domain"
	"github.com/teleora/teleora/internal/requestctx"
	"github.com/teleora/teleora/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// Record writes an audit entry. A failed write is logged and reported to the
// caller but must never be allowed to fail the operation being audited;
// callers on the primary path ignore the returned error.
func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	changes := datatypes.JSONMap{}
	for key, value := range entry.Changes {
		if key == "" {
			continue
		}
		changes[key] = value
	}

	// Caller-supplied correlation wins; the header-sourced one from the
	// request context covers entries the handlers did not thread it into.
	correlationID := strings.TrimSpace(entry.CorrelationID)
	if correlationID == "" {
		correlationID = requestctx.CorrelationIDFromContext(ctx)
	}

	row := auditdomain.AuditLog{
		ID:             s.genID.Generate(),
		SimID:          strings.TrimSpace(entry.SimID),
		ICCID:          strings.TrimSpace(entry.ICCID),
		Action:         action,
		PreviousStatus: entry.PreviousStatus,
		NewStatus:      entry.NewStatus,
		Reason:         strings.TrimSpace(entry.Reason),
		Notes:          strings.TrimSpace(entry.Notes),
		InitiatorType:  requestctx.InitiatorFromContext(ctx),
		ClientID:       requestctx.ClientIDFromContext(ctx),
		CorrelationID:  correlationID,
		RequestID:      requestctx.RequestIDFromContext(ctx),
		IPAddress:      requestctx.IPAddressFromContext(ctx),
		Changes:        changes,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, &row); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("sim_id", row.SimID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) (auditdomain.ListResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListResponse{}, auditdomain.ErrInvalidTimeRange
	}

	var cursor *auditdomain.Cursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		cursor = &auditdomain.Cursor{ID: id, CreatedAt: createdAt}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.List(ctx, auditdomain.ListFilter{
		SimID:   req.SimID,
		ICCID:   req.ICCID,
		Action:  req.Action,
		StartAt: req.StartAt,
		EndAt:   req.EndAt,
		Cursor:  cursor,
		Limit:   int(pageSize),
	})
	if err != nil {
		return auditdomain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *auditdomain.AuditLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}

	resp := auditdomain.ListResponse{AuditLogs: logs}
	if pageInfo != nil {
		resp.NextPageToken = pageInfo.NextPageToken
		resp.HasMore = pageInfo.HasMore
	}
	return resp, nil
}
