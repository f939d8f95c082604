package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/teleora/teleora/internal/ratelimit"
	"github.com/teleora/teleora/internal/requestctx"
)

// RateLimit counts the request against the category's window and writes the
// quota headers on every response, allowed or not.
func (s *Server) RateLimit(category ratelimit.Category) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := requestctx.ClientIDFromContext(c.Request.Context())
		if clientID == "" {
			clientID = c.ClientIP()
		}

		result := s.limiter.Allow(c.Request.Context(), clientID, category)

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))

		if !result.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
				Type:    "rate_limit_exceeded",
				Message: "request quota exhausted for this window",
			}})
			return
		}

		c.Next()
	}
}
