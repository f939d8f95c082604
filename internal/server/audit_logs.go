package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/teleora/teleora/internal/audit/domain"
	"github.com/teleora/teleora/internal/validation"
)

type auditLogResponse struct {
	ID             string         `json:"id"`
	SimID          string         `json:"simId,omitempty"`
	ICCID          string         `json:"iccid,omitempty"`
	Action         string         `json:"action"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	NewStatus      string         `json:"newStatus,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	InitiatorType  string         `json:"initiatorType"`
	ClientID       string         `json:"clientId,omitempty"`
	CorrelationID  string         `json:"correlationId,omitempty"`
	RequestID      string         `json:"requestId,omitempty"`
	IPAddress      string         `json:"ipAddress,omitempty"`
	Changes        map[string]any `json:"changes,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

func (s *Server) listAuditLogs(c *gin.Context) {
	req := auditdomain.ListRequest{
		SimID:     c.Query("simId"),
		ICCID:     c.Query("iccid"),
		Action:    c.Query("action"),
		PageToken: c.Query("pageToken"),
	}

	if raw := c.Query("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			AbortWithError(c, validation.New("pageSize", "invalid", "pageSize must be a positive integer"))
			return
		}
		req.PageSize = int32(size)
	}

	startAt, err := parseTimeQuery(c, "startTime")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.StartAt = startAt

	endAt, err := parseTimeQuery(c, "endTime")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.EndAt = endAt

	result, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	logs := make([]auditLogResponse, 0, len(result.AuditLogs))
	for i := range result.AuditLogs {
		entry := &result.AuditLogs[i]
		logs = append(logs, auditLogResponse{
			ID:             entry.ID.String(),
			SimID:          entry.SimID,
			ICCID:          entry.ICCID,
			Action:         entry.Action,
			PreviousStatus: entry.PreviousStatus,
			NewStatus:      entry.NewStatus,
			Reason:         entry.Reason,
			Notes:          entry.Notes,
			InitiatorType:  entry.InitiatorType,
			ClientID:       entry.ClientID,
			CorrelationID:  entry.CorrelationID,
			RequestID:      entry.RequestID,
			IPAddress:      entry.IPAddress,
			Changes:        entry.Changes,
			CreatedAt:      entry.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"auditLogs":     logs,
		"nextPageToken": result.NextPageToken,
		"hasMore":       result.HasMore,
	})
}

func parseTimeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, validation.New(name, "invalid_format", name+" must be an ISO-8601 timestamp")
	}
	return &t, nil
}
