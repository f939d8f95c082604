package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/teleora/teleora/internal/requestctx"
)

// APIKeyRequired authenticates the bearer token and stamps the resolved
// client identity onto the request context for the limiter and audit trail.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		clientID, err := s.apiKeySvc.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		ctx = requestctx.WithClientID(ctx, clientID)
		ctx = requestctx.WithInitiator(ctx, requestctx.InitiatorAPI)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
