package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/teleora/teleora/internal/apikey"
	apikeydomain "github.com/teleora/teleora/internal/apikey/domain"
	"github.com/teleora/teleora/internal/audit"
	auditdomain "github.com/teleora/teleora/internal/audit/domain"
	"github.com/teleora/teleora/internal/billingcycle"
	billingdomain "github.com/teleora/teleora/internal/billingcycle/domain"
	"github.com/teleora/teleora/internal/config"
	"github.com/teleora/teleora/internal/migration"
	"github.com/teleora/teleora/internal/observability"
	obslogger "github.com/teleora/teleora/internal/observability/logger"
	obsmetrics "github.com/teleora/teleora/internal/observability/metrics"
	"github.com/teleora/teleora/internal/ratelimit"
	"github.com/teleora/teleora/internal/seed"
	"github.com/teleora/teleora/internal/sim"
	simdomain "github.com/teleora/teleora/internal/sim/domain"
	"github.com/teleora/teleora/internal/usage"
	usagedomain "github.com/teleora/teleora/internal/usage/domain"
	"github.com/teleora/teleora/internal/webhook"
	webhookdomain "github.com/teleora/teleora/internal/webhook/domain"
	"github.com/teleora/teleora/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	observability.Module,
	db.Module,
	migration.Module,
	seed.Module,
	apikey.Module,
	audit.Module,
	webhook.Module,
	sim.Module,
	billingcycle.Module,
	usage.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, m *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obsmetrics.GinMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))

	return r
}

func registerGin(obsCfg observability.Config, m *obsmetrics.Metrics) *gin.Engine {
	return NewEngine(obsCfg, m)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	apiKeySvc  apikeydomain.Service
	simSvc     simdomain.Service
	usageSvc   usagedomain.Service
	cycleSvc   billingdomain.Service
	webhookSvc webhookdomain.Service
	auditSvc   auditdomain.Service
	limiter    *ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	APIKeySvc  apikeydomain.Service
	SimSvc     simdomain.Service
	UsageSvc   usagedomain.Service
	CycleSvc   billingdomain.Service
	WebhookSvc webhookdomain.Service
	AuditSvc   auditdomain.Service
	Limiter    *ratelimit.Limiter
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("server"),
		genID:      p.GenID,
		apiKeySvc:  p.APIKeySvc,
		simSvc:     p.SimSvc,
		usageSvc:   p.UsageSvc,
		cycleSvc:   p.CycleSvc,
		webhookSvc: p.WebhookSvc,
		auditSvc:   p.AuditSvc,
		limiter:    p.Limiter,
	}

	svc.registerAPIRoutes()
	return svc
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(s.APIKeyRequired())

	v1.POST("/usage", s.RateLimit(ratelimit.CategoryUsageSingle), s.submitUsage)
	v1.POST("/usage/batch", s.RateLimit(ratelimit.CategoryUsageBatch), s.submitUsageBatch)
	v1.POST("/usage/reset", s.RateLimit(ratelimit.CategoryProvisioningWrite), s.resetUsage)

	v1.POST("/sims", s.RateLimit(ratelimit.CategoryProvisioningWrite), s.createSim)
	v1.GET("/sims/:simId", s.RateLimit(ratelimit.CategoryProvisioningRead), s.getSim)
	v1.GET("/sims/:simId/usage", s.RateLimit(ratelimit.CategoryProvisioningRead), s.getSimUsage)
	v1.POST("/sims/:simId/activate", s.RateLimit(ratelimit.CategoryProvisioningWrite), s.transitionSim(simdomain.OperationActivate))
	v1.POST("/sims/:simId/deactivate", s.RateLimit(ratelimit.CategoryProvisioningWrite), s.transitionSim(simdomain.OperationDeactivate))
	v1.POST("/sims/:simId/block", s.RateLimit(ratelimit.CategoryProvisioningWrite), s.transitionSim(simdomain.OperationBlock))
	v1.POST("/sims/:simId/unblock", s.RateLimit(ratelimit.CategoryProvisioningWrite), s.transitionSim(simdomain.OperationUnblock))

	v1.POST("/webhooks", s.RateLimit(ratelimit.CategoryProvisioningWrite), s.registerWebhook)
	v1.GET("/webhooks", s.RateLimit(ratelimit.CategoryProvisioningRead), s.listWebhooks)
	v1.GET("/webhooks/:webhookId", s.RateLimit(ratelimit.CategoryProvisioningRead), s.getWebhook)
	v1.DELETE("/webhooks/:webhookId", s.RateLimit(ratelimit.CategoryProvisioningWrite), s.deleteWebhook)

	v1.GET("/audit-logs", s.RateLimit(ratelimit.CategoryProvisioningRead), s.listAuditLogs)
}
