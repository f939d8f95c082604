package service

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/teleora/teleora/internal/validation"
	"github.com/teleora/teleora/internal/webhook/dispatcher"
	webhookdomain "github.com/teleora/teleora/internal/webhook/domain"
	"github.com/teleora/teleora/pkg/db/option"
	"github.com/teleora/teleora/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const minSecretLength = 32

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Deliverer *dispatcher.Deliverer
}

type Service struct {
	log        *zap.Logger
	genID      *snowflake.Node
	deliverer  *dispatcher.Deliverer
	webhooks   repository.Repository[webhookdomain.Webhook]
	deliveries repository.Repository[webhookdomain.Delivery]
}

func NewService(p ServiceParam) webhookdomain.Service {
	return &Service{
		log:        p.Log.Named("webhook.service"),
		genID:      p.GenID,
		deliverer:  p.Deliverer,
		webhooks:   repository.ProvideStore[webhookdomain.Webhook](p.DB),
		deliveries: repository.ProvideStore[webhookdomain.Delivery](p.DB),
	}
}

func (s *Service) Register(ctx context.Context, clientID string, req webhookdomain.RegisterRequest) (*webhookdomain.Webhook, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	wh := &webhookdomain.Webhook{
		ID:        s.genID.Generate(),
		URL:       strings.TrimSpace(req.URL),
		Events:    datatypes.JSONSlice[string](normalizeEvents(req.Events)),
		Secret:    req.Secret,
		ClientID:  strings.TrimSpace(clientID),
		Status:    webhookdomain.WebhookStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.webhooks.Create(ctx, wh); err != nil {
		return nil, err
	}
	return wh, nil
}

func (s *Service) Get(ctx context.Context, webhookID string) (*webhookdomain.Webhook, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(webhookID))
	if err != nil || id == 0 {
		return nil, webhookdomain.ErrWebhookNotFound
	}

	wh, err := s.webhooks.FindOne(ctx, &webhookdomain.Webhook{ID: id})
	if err != nil {
		return nil, err
	}
	if wh == nil {
		return nil, webhookdomain.ErrWebhookNotFound
	}
	return wh, nil
}

func (s *Service) Delete(ctx context.Context, webhookID string) error {
	wh, err := s.Get(ctx, webhookID)
	if err != nil {
		return err
	}
	return s.webhooks.Delete(ctx, wh.ID.String())
}

func (s *Service) List(ctx context.Context, clientID string) ([]webhookdomain.Webhook, error) {
	query := &webhookdomain.Webhook{ClientID: strings.TrimSpace(clientID)}
	rows, err := s.webhooks.Find(ctx, query, option.WithSortBy(option.QuerySortBy{Desc: true}))
	if err != nil {
		return nil, err
	}

	webhooks := make([]webhookdomain.Webhook, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		webhooks = append(webhooks, *row)
	}
	return webhooks, nil
}

// Emit fans out asynchronously. The triggering state change has already
// committed; nothing here may fail it, so every error ends at a log line.
func (s *Service) Emit(event webhookdomain.Event) {
	go s.fanOut(context.Background(), event)
}

func (s *Service) fanOut(ctx context.Context, event webhookdomain.Event) {
	subscribers, err := s.subscribersFor(ctx, event.Type)
	if err != nil {
		s.log.Warn("failed to resolve webhook subscribers",
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		return
	}
	if len(subscribers) == 0 {
		return
	}

	eventID := uuid.NewString()
	payload, err := buildPayload(eventID, event)
	if err != nil {
		s.log.Warn("failed to build webhook payload", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	for _, wh := range subscribers {
		delivery := webhookdomain.Delivery{
			ID:          s.genID.Generate(),
			EventID:     eventID,
			EventType:   event.Type,
			WebhookID:   wh.ID,
			Payload:     payload,
			Status:      webhookdomain.DeliveryStatusPending,
			NextRetryAt: &now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.deliveries.Create(ctx, &delivery); err != nil {
			s.log.Warn("failed to create webhook delivery",
				zap.String("webhook_id", wh.ID.String()),
				zap.String("event_id", eventID),
				zap.Error(err),
			)
			continue
		}

		if err := s.deliverer.Attempt(ctx, delivery, wh); err != nil {
			s.log.Warn("webhook delivery attempt failed",
				zap.String("webhook_id", wh.ID.String()),
				zap.String("event_id", eventID),
				zap.Error(err),
			)
		}
	}

	s.log.Info("webhook event dispatched",
		zap.String("event_type", event.Type),
		zap.String("event_id", eventID),
		zap.Int("webhook_count", len(subscribers)),
	)
}

func (s *Service) subscribersFor(ctx context.Context, eventType string) ([]webhookdomain.Webhook, error) {
	active, err := s.webhooks.Find(ctx, &webhookdomain.Webhook{Status: webhookdomain.WebhookStatusActive})
	if err != nil {
		return nil, err
	}

	var subscribed []webhookdomain.Webhook
	for _, wh := range active {
		if wh == nil {
			continue
		}
		for _, name := range wh.Events {
			if name == eventType {
				subscribed = append(subscribed, *wh)
				break
			}
		}
	}
	return subscribed, nil
}

// payload is the wire shape delivered to subscribers. The signature covers
// these exact bytes.
type payload struct {
	EventID        string     `json:"eventId"`
	EventType      string     `json:"eventType"`
	Timestamp      string     `json:"timestamp"`
	SIM            payloadSIM `json:"sim"`
	PreviousStatus string     `json:"previousStatus"`
	NewStatus      string     `json:"newStatus"`
	Reason         string     `json:"reason,omitempty"`
	InitiatedBy    string     `json:"initiatedBy"`
	CorrelationID  string     `json:"correlationId,omitempty"`
}

type payloadSIM struct {
	SimID  string `json:"simId"`
	ICCID  string `json:"iccid"`
	IMSI   string `json:"imsi"`
	MSISDN string `json:"msisdn"`
}

func buildPayload(eventID string, event webhookdomain.Event) ([]byte, error) {
	return json.Marshal(payload{
		EventID:   eventID,
		EventType: event.Type,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		SIM: payloadSIM{
			SimID:  event.SimID,
			ICCID:  event.ICCID,
			IMSI:   event.IMSI,
			MSISDN: event.MSISDN,
		},
		PreviousStatus: event.PreviousStatus,
		NewStatus:      event.NewStatus,
		Reason:         event.Reason,
		InitiatedBy:    event.InitiatedBy,
		CorrelationID:  event.CorrelationID,
	})
}

func validateRegistration(req webhookdomain.RegisterRequest) error {
	verr := &validation.Errors{}

	target := strings.TrimSpace(req.URL)
	if target == "" {
		verr.Add("url", "required", "url is required")
	} else if parsed, err := url.Parse(target); err != nil || parsed.Scheme != "https" || parsed.Host == "" {
		verr.Add("url", "invalid_scheme", "url must be a valid https endpoint")
	}

	events := normalizeEvents(req.Events)
	if len(events) == 0 {
		verr.Add("events", "required", "at least one event type is required")
	}
	for _, name := range events {
		if !webhookdomain.ValidEventType(name) {
			verr.Add("events", "invalid_event_type", "unknown event type "+name)
		}
	}

	if len(req.Secret) < minSecretLength {
		verr.Add("secret", "too_short", "secret must be at least 32 characters")
	}

	return verr.AsError()
}

func normalizeEvents(events []string) []string {
	out := make([]string, 0, len(events))
	seen := map[string]bool{}
	for _, name := range events {
		name = strings.ToUpper(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
