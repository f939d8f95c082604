package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/teleora/teleora/internal/billingcycle/domain"
	usagedomain "github.com/teleora/teleora/internal/usage/domain"
)

type submitUsageResponse struct {
	RecordID    string    `json:"recordId"`
	Status      string    `json:"status"`
	ProcessedAt time.Time `json:"processedAt"`
}

type batchUsageResponse struct {
	BatchID          string                        `json:"batchId"`
	RecordsReceived  int                           `json:"recordsReceived"`
	RecordsProcessed int                           `json:"recordsProcessed"`
	RecordsFailed    int                           `json:"recordsFailed"`
	Errors           []usagedomain.BatchRecordError `json:"errors,omitempty"`
	ProcessedAt      time.Time                     `json:"processedAt"`
}

type usageTotals struct {
	UploadBytes   int64 `json:"uploadBytes"`
	DownloadBytes int64 `json:"downloadBytes"`
	TotalBytes    int64 `json:"totalBytes"`
	SMSCount      int64 `json:"smsCount"`
	VoiceSeconds  int64 `json:"voiceSeconds"`
}

type simUsageResponse struct {
	SimID          string      `json:"simId"`
	ICCID          string      `json:"iccid"`
	BillingCycle   string      `json:"billingCycle"`
	CycleStart     *time.Time  `json:"cycleStart,omitempty"`
	CycleEnd       *time.Time  `json:"cycleEnd,omitempty"`
	Usage          usageTotals `json:"usage"`
	Limit          *int64      `json:"limit"`
	PercentOfLimit *float64    `json:"percentOfLimit,omitempty"`
	LastUpdated    *time.Time  `json:"lastUpdated,omitempty"`
}

type resetUsageResponse struct {
	ICCID         string         `json:"iccid"`
	PreviousCycle map[string]any `json:"previousCycle"`
	NewCycle      cycleSummary   `json:"newCycle"`
}

type cycleSummary struct {
	BillingCycleID string      `json:"billingCycleId"`
	CycleStart     time.Time   `json:"cycleStart"`
	CycleEnd       time.Time   `json:"cycleEnd"`
	Usage          usageTotals `json:"usage"`
}

func (s *Server) submitUsage(c *gin.Context) {
	var req usagedomain.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.usageSvc.Submit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, submitUsageResponse{
		RecordID:    result.RecordID,
		Status:      result.Status,
		ProcessedAt: result.ProcessedAt,
	})
}

func (s *Server) submitUsageBatch(c *gin.Context) {
	var req usagedomain.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.usageSvc.SubmitBatch(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, batchUsageResponse{
		BatchID:          result.BatchID,
		RecordsReceived:  result.RecordsReceived,
		RecordsProcessed: result.RecordsProcessed,
		RecordsFailed:    result.RecordsFailed,
		Errors:           result.Errors,
		ProcessedAt:      result.ProcessedAt,
	})
}

func (s *Server) resetUsage(c *gin.Context) {
	var req billingdomain.ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.cycleSvc.Reset(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resetUsageResponse{
		ICCID:         result.ICCID,
		PreviousCycle: result.PreviousCycle,
		NewCycle: cycleSummary{
			BillingCycleID: result.NewCycle.CycleID,
			CycleStart:     result.NewCycle.CycleStart,
			CycleEnd:       result.NewCycle.CycleEnd,
			Usage:          totalsFromDelta(result.NewCycle.Totals()),
		},
	})
}

func (s *Server) getSimUsage(c *gin.Context) {
	sim, err := s.simSvc.Get(c.Request.Context(), c.Param("simId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.cycleSvc.Query(c.Request.Context(), sim.ICCID, c.Query("cycle"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := simUsageResponse{
		SimID:          result.SimID,
		ICCID:          result.ICCID,
		BillingCycle:   result.CycleID,
		Usage:          totalsFromDelta(result.Usage),
		Limit:          result.DataLimitBytes,
		PercentOfLimit: result.PercentOfLimit,
	}
	if !result.CycleStart.IsZero() {
		resp.CycleStart = &result.CycleStart
		resp.CycleEnd = &result.CycleEnd
	}
	if !result.LastUpdated.IsZero() {
		resp.LastUpdated = &result.LastUpdated
	}

	c.JSON(http.StatusOK, resp)
}

func totalsFromDelta(d billingdomain.Delta) usageTotals {
	return usageTotals{
		UploadBytes:   d.UploadBytes,
		DownloadBytes: d.DownloadBytes,
		TotalBytes:    d.TotalBytes,
		SMSCount:      d.SMSCount,
		VoiceSeconds:  d.VoiceSeconds,
	}
}
