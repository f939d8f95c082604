// Package dispatcher delivers webhook events over HTTP and retries failed
// deliveries in the background.
package dispatcher

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/teleora/teleora/internal/config"
	"github.com/teleora/teleora/internal/observability/metrics"
	webhookdomain "github.com/teleora/teleora/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type DelivererParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	Metrics *metrics.Metrics `optional:"true"`
}

// Deliverer performs a single delivery attempt and records its outcome.
type Deliverer struct {
	db      *gorm.DB
	log     *zap.Logger
	client  *http.Client
	cfg     config.WebhookConfig
	metrics *metrics.Metrics
}

func NewDeliverer(p DelivererParams) *Deliverer {
	cfg := p.Config.Webhook
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 30 * time.Second
	}
	return &Deliverer{
		db:      p.DB,
		log:     p.Log.Named("webhook.deliverer"),
		client:  &http.Client{Timeout: cfg.DeliveryTimeout},
		cfg:     cfg,
		metrics: p.Metrics,
	}
}

// Attempt claims the delivery, posts the stored payload and records the
// outcome. The claim is an optimistic compare-and-swap on attempt_count so a
// concurrent worker pass cannot double-send the same attempt.
func (d *Deliverer) Attempt(ctx context.Context, delivery webhookdomain.Delivery, wh webhookdomain.Webhook) error {
	attempt := delivery.AttemptCount + 1
	if attempt > d.cfg.MaxAttempts {
		return d.markAbandoned(ctx, delivery)
	}

	claimed, err := d.claim(ctx, delivery, attempt)
	if err != nil || !claimed {
		return err
	}

	code, sendErr := d.send(ctx, delivery, wh)

	now := time.Now().UTC()
	updates := map[string]any{
		"updated_at": now,
	}
	if code != 0 {
		updates["response_code"] = code
	}

	switch {
	case sendErr == nil && code >= 200 && code < 300:
		updates["status"] = webhookdomain.DeliveryStatusDelivered
		updates["next_retry_at"] = nil
		updates["last_error"] = ""
		d.recordOutcome("delivered")
	case attempt >= d.cfg.MaxAttempts:
		updates["status"] = webhookdomain.DeliveryStatusAbandoned
		updates["next_retry_at"] = nil
		updates["last_error"] = errorText(sendErr, code)
		d.recordOutcome("abandoned")
		d.log.Warn("webhook delivery abandoned",
			zap.String("event_id", delivery.EventID),
			zap.String("webhook_id", wh.ID.String()),
			zap.Int("attempts", attempt),
		)
	default:
		updates["status"] = webhookdomain.DeliveryStatusFailed
		updates["next_retry_at"] = now.Add(d.backoff(attempt))
		updates["last_error"] = errorText(sendErr, code)
		d.recordOutcome("failed")
	}

	return d.db.WithContext(ctx).
		Model(&webhookdomain.Delivery{}).
		Where("id = ?", delivery.ID).
		Updates(updates).Error
}

func (d *Deliverer) claim(ctx context.Context, delivery webhookdomain.Delivery, attempt int) (bool, error) {
	result := d.db.WithContext(ctx).
		Model(&webhookdomain.Delivery{}).
		Where("id = ? AND attempt_count = ?", delivery.ID, delivery.AttemptCount).
		Updates(map[string]any{
			"attempt_count": attempt,
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (d *Deliverer) send(ctx context.Context, delivery webhookdomain.Delivery, wh webhookdomain.Webhook) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return 0, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Teleora-Webhook/1.0")
	req.Header.Set("X-Event-Id", delivery.EventID)
	req.Header.Set("X-Event-Type", delivery.EventType)
	req.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().UTC().Unix(), 10))
	req.Header.Set("X-Signature", Sign(delivery.Payload, wh.Secret))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, nil
}

func (d *Deliverer) markAbandoned(ctx context.Context, delivery webhookdomain.Delivery) error {
	return d.db.WithContext(ctx).
		Model(&webhookdomain.Delivery{}).
		Where("id = ?", delivery.ID).
		Updates(map[string]any{
			"status":        webhookdomain.DeliveryStatusAbandoned,
			"next_retry_at": nil,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// backoff doubles per attempt: base, 2*base, 4*base, ...
func (d *Deliverer) backoff(attempt int) time.Duration {
	delay := d.cfg.RetryBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > time.Hour {
			return time.Hour
		}
	}
	return delay
}

func (d *Deliverer) recordOutcome(status string) {
	if d.metrics == nil {
		return
	}
	d.metrics.RecordWebhookDelivery(status)
}

func errorText(err error, code int) string {
	if err != nil {
		return err.Error()
	}
	return "unexpected response status " + strconv.Itoa(code)
}

// Sign computes the hex HMAC-SHA256 of the exact payload bytes sent on the
// wire. Receivers verify against the same bytes, so the payload is stored and
// never re-marshalled between attempts.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
