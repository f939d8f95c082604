package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	simdomain "github.com/teleora/teleora/internal/sim/domain"
)

type simResponse struct {
	SimID            string     `json:"simId"`
	ICCID            string     `json:"iccid"`
	IMSI             string     `json:"imsi"`
	MSISDN           string     `json:"msisdn"`
	Status           string     `json:"status"`
	BlockReason      *string    `json:"blockReason,omitempty"`
	BlockedAt        *time.Time `json:"blockedAt,omitempty"`
	APN              string     `json:"apn,omitempty"`
	RatePlanID       string     `json:"ratePlanId,omitempty"`
	DataLimitBytes   *int64     `json:"dataLimitBytes,omitempty"`
	BillingAccountID string     `json:"billingAccountId,omitempty"`
	CustomerID       string     `json:"customerId,omitempty"`
	Note             string     `json:"note,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`

	Links map[string]string `json:"links"`
}

func newSimResponse(sim *simdomain.SIM) simResponse {
	resp := simResponse{
		SimID:            sim.ID.String(),
		ICCID:            sim.ICCID,
		IMSI:             sim.IMSI,
		MSISDN:           sim.MSISDN,
		Status:           string(sim.Status),
		BlockedAt:        sim.BlockedAt,
		APN:              sim.APN,
		RatePlanID:       sim.RatePlanID,
		DataLimitBytes:   sim.DataLimitBytes,
		BillingAccountID: sim.BillingAccountID,
		CustomerID:       sim.CustomerID,
		CreatedAt:        sim.CreatedAt,
		UpdatedAt:        sim.UpdatedAt,
		Links:            simLinks(sim),
	}
	if sim.BlockReason != nil {
		reason := string(*sim.BlockReason)
		resp.BlockReason = &reason
	}
	return resp
}

// simLinks advertises the operations legal from the SIM's current state.
func simLinks(sim *simdomain.SIM) map[string]string {
	base := "/v1/sims/" + sim.ID.String()
	links := map[string]string{
		"self":  base,
		"usage": base + "/usage",
	}

	switch sim.Status {
	case simdomain.StatusProvisioned:
		links["activate"] = base + "/activate"
	case simdomain.StatusActive:
		links["deactivate"] = base + "/deactivate"
		links["block"] = base + "/block"
	case simdomain.StatusInactive:
		links["activate"] = base + "/activate"
		links["block"] = base + "/block"
	case simdomain.StatusBlocked:
		links["unblock"] = base + "/unblock"
	}
	return links
}

func (s *Server) createSim(c *gin.Context) {
	var req simdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sim, err := s.simSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newSimResponse(sim))
}

func (s *Server) getSim(c *gin.Context) {
	sim, err := s.simSvc.Get(c.Request.Context(), c.Param("simId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSimResponse(sim))
}

// transitionSim serves all four lifecycle commands; the request body is
// optional for every operation except block, which validates its reason in
// the service.
func (s *Server) transitionSim(op simdomain.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req simdomain.TransitionRequest
		if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
			AbortWithError(c, invalidRequestError())
			return
		}
		req.SimID = c.Param("simId")

		var (
			result *simdomain.TransitionResult
			err    error
		)
		ctx := c.Request.Context()
		switch op {
		case simdomain.OperationActivate:
			result, err = s.simSvc.Activate(ctx, req)
		case simdomain.OperationDeactivate:
			result, err = s.simSvc.Deactivate(ctx, req)
		case simdomain.OperationBlock:
			result, err = s.simSvc.Block(ctx, req)
		case simdomain.OperationUnblock:
			result, err = s.simSvc.Unblock(ctx, req)
		}
		if err != nil {
			AbortWithError(c, err)
			return
		}

		resp := newSimResponse(result.SIM)
		resp.Note = result.Note
		c.JSON(http.StatusOK, resp)
	}
}
