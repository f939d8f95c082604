package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/teleora/teleora/internal/apikey/domain"
	auditdomain "github.com/teleora/teleora/internal/audit/domain"
	simdomain "github.com/teleora/teleora/internal/sim/domain"
	"github.com/teleora/teleora/internal/validation"
	webhookdomain "github.com/teleora/teleora/internal/webhook/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type            string                  `json:"type"`
	Message         string                  `json:"message"`
	Errors          []validation.FieldError `json:"errors,omitempty"`
	CurrentStatus   string                  `json:"currentStatus,omitempty"`
	AttemptedStatus string                  `json:"attemptedStatus,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrUnauthorized = errors.New("unauthorized")

// ErrorHandlingMiddleware converts errors collected on the context into one
// JSON error response after the handler chain has run.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return validation.New("request", "invalid_request", "request body could not be parsed")
}

func mapError(err error) (int, errorPayload) {
	var verr *validation.Errors
	if errors.As(err, &verr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  verr.Fields,
		}
	}

	var terr *simdomain.InvalidTransitionError
	if errors.As(err, &terr) {
		return http.StatusConflict, errorPayload{
			Type:            "invalid_state_transition",
			Message:         terr.Error(),
			CurrentStatus:   string(terr.Current),
			AttemptedStatus: string(terr.Attempted),
		}
	}

	switch {
	case errors.Is(err, simdomain.ErrSimNotFound):
		return http.StatusNotFound, errorPayload{Type: "sim_not_found", Message: "sim not found"}
	case errors.Is(err, simdomain.ErrDuplicateICCID):
		return http.StatusConflict, errorPayload{Type: "duplicate_iccid", Message: "a sim with this iccid already exists"}
	case errors.Is(err, webhookdomain.ErrWebhookNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "resource not found"}
	case errors.Is(err, apikeydomain.ErrUnauthorized),
		errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "missing or invalid api key"}
	case errors.Is(err, auditdomain.ErrInvalidPageToken):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  []validation.FieldError{{Field: "pageToken", Code: "invalid", Message: "page token is not valid"}},
		}
	case errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  []validation.FieldError{{Field: "endTime", Code: "invalid_range", Message: "endTime must be after startTime"}},
		}
	}

	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}

// classifyErrorForLog labels request log lines without leaking detail.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return "internal", payload.Type
	}
	return "client", payload.Type
}
