package dispatcher

import (
	"context"
	"time"

	"github.com/teleora/teleora/internal/config"
	webhookdomain "github.com/teleora/teleora/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type WorkerParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	Deliverer *Deliverer
}

// Worker retries deliveries whose next_retry_at has come due.
type Worker struct {
	db        *gorm.DB
	log       *zap.Logger
	deliverer *Deliverer
	interval  time.Duration
	batchSize int
}

func NewWorker(p WorkerParams) *Worker {
	interval := p.Config.Webhook.PollInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	batchSize := p.Config.Webhook.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Worker{
		db:        p.DB,
		log:       p.Log.Named("webhook.worker"),
		deliverer: p.Deliverer,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn("webhook retry run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) RunOnce(ctx context.Context) error {
	var due []webhookdomain.Delivery
	err := w.db.WithContext(ctx).
		Where("status IN ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?",
			[]webhookdomain.DeliveryStatus{
				webhookdomain.DeliveryStatusPending,
				webhookdomain.DeliveryStatusFailed,
			},
			time.Now().UTC(),
		).
		Order("next_retry_at asc").
		Limit(w.batchSize).
		Find(&due).Error
	if err != nil {
		return err
	}

	for _, delivery := range due {
		var wh webhookdomain.Webhook
		if err := w.db.WithContext(ctx).First(&wh, "id = ?", delivery.WebhookID).Error; err != nil {
			// Registration deleted since the event was emitted; stop retrying.
			if abandonErr := w.db.WithContext(ctx).
				Model(&webhookdomain.Delivery{}).
				Where("id = ?", delivery.ID).
				Updates(map[string]any{
					"status":        webhookdomain.DeliveryStatusAbandoned,
					"next_retry_at": nil,
					"updated_at":    time.Now().UTC(),
				}).Error; abandonErr != nil {
				w.log.Warn("failed to abandon orphaned delivery", zap.Error(abandonErr))
			}
			continue
		}

		if err := w.deliverer.Attempt(ctx, delivery, wh); err != nil {
			w.log.Warn("webhook retry attempt failed",
				zap.String("event_id", delivery.EventID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Run wires the worker into the fx lifecycle.
func Run(lc fx.Lifecycle, w *Worker) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go w.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
