package domain

import (
	"context"
	"errors"
)

// Event is a SIM lifecycle notification handed to the notifier by the state
// machine. Emission is fire-and-forget relative to the triggering request.
type Event struct {
	Type           string
	SimID          string
	ICCID          string
	IMSI           string
	MSISDN         string
	PreviousStatus string
	NewStatus      string
	Reason         string
	InitiatedBy    string
	CorrelationID  string
}

type RegisterRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type Service interface {
	Register(ctx context.Context, clientID string, req RegisterRequest) (*Webhook, error)
	Get(ctx context.Context, webhookID string) (*Webhook, error)
	Delete(ctx context.Context, webhookID string) error
	List(ctx context.Context, clientID string) ([]Webhook, error)

	// Emit fans the event out to all subscribed webhooks. It returns
	// immediately; delivery happens in the background and its failure never
	// reaches the caller.
	Emit(event Event)
}

var ErrWebhookNotFound = errors.New("webhook_not_found")
