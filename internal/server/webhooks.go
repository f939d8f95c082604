package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teleora/teleora/internal/requestctx"
	webhookdomain "github.com/teleora/teleora/internal/webhook/domain"
)

type webhookResponse struct {
	WebhookID string    `json:"webhookId"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func newWebhookResponse(w *webhookdomain.Webhook) webhookResponse {
	return webhookResponse{
		WebhookID: w.ID.String(),
		URL:       w.URL,
		Events:    []string(w.Events),
		Status:    string(w.Status),
		CreatedAt: w.CreatedAt,
	}
}

func (s *Server) registerWebhook(c *gin.Context) {
	var req webhookdomain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	clientID := requestctx.ClientIDFromContext(c.Request.Context())
	hook, err := s.webhookSvc.Register(c.Request.Context(), clientID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newWebhookResponse(hook))
}

func (s *Server) getWebhook(c *gin.Context) {
	hook, err := s.ownedWebhook(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newWebhookResponse(hook))
}

func (s *Server) deleteWebhook(c *gin.Context) {
	hook, err := s.ownedWebhook(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.webhookSvc.Delete(c.Request.Context(), hook.ID.String()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listWebhooks(c *gin.Context) {
	clientID := requestctx.ClientIDFromContext(c.Request.Context())
	hooks, err := s.webhookSvc.List(c.Request.Context(), clientID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	out := make([]webhookResponse, 0, len(hooks))
	for i := range hooks {
		out = append(out, newWebhookResponse(&hooks[i]))
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": out})
}

// ownedWebhook loads the path webhook and hides other clients' registrations
// behind not-found.
func (s *Server) ownedWebhook(c *gin.Context) (*webhookdomain.Webhook, error) {
	hook, err := s.webhookSvc.Get(c.Request.Context(), c.Param("webhookId"))
	if err != nil {
		return nil, err
	}
	if hook.ClientID != requestctx.ClientIDFromContext(c.Request.Context()) {
		return nil, webhookdomain.ErrWebhookNotFound
	}
	return hook, nil
}
