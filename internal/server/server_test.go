package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	apikeydomain "github.com/teleora/teleora/internal/apikey/domain"
	apikeyservice "github.com/teleora/teleora/internal/apikey/service"
	auditrepository "github.com/teleora/teleora/internal/audit/repository"
	auditservice "github.com/teleora/teleora/internal/audit/service"
	billingservice "github.com/teleora/teleora/internal/billingcycle/service"
	"github.com/teleora/teleora/internal/config"
	"github.com/teleora/teleora/internal/migration"
	"github.com/teleora/teleora/internal/observability"
	obsmetrics "github.com/teleora/teleora/internal/observability/metrics"
	"github.com/teleora/teleora/internal/ratelimit"
	simservice "github.com/teleora/teleora/internal/sim/service"
	usageservice "github.com/teleora/teleora/internal/usage/service"
	"github.com/teleora/teleora/internal/webhook/dispatcher"
	webhookservice "github.com/teleora/teleora/internal/webhook/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testToken    = "tk_test_topsecret"
	testClientID = "client-test"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migration.Run(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	m := obsmetrics.New()

	cfg := config.Config{
		HTTPAddr: ":0",
		RateLimit: config.RateLimitConfig{
			Enabled:           true,
			ProvisioningWrite: config.CategoryLimit{Limit: 1000, WindowSeconds: 60},
			ProvisioningRead:  config.CategoryLimit{Limit: 1000, WindowSeconds: 60},
			UsageSingle:       config.CategoryLimit{Limit: 1000, WindowSeconds: 60},
			UsageBatch:        config.CategoryLimit{Limit: 1000, WindowSeconds: 60},
		},
		Webhook: config.WebhookConfig{MaxAttempts: 3},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	auditSvc := auditservice.NewService(auditservice.Params{
		Log:   log,
		GenID: node,
		Repo:  auditrepository.Provide(db),
	})
	deliverer := dispatcher.NewDeliverer(dispatcher.DelivererParams{DB: db, Log: log, Config: cfg})
	webhookSvc := webhookservice.NewService(webhookservice.ServiceParam{
		DB: db, Log: log, GenID: node, Deliverer: deliverer,
	})
	simSvc := simservice.NewService(simservice.ServiceParam{
		DB: db, Log: log, GenID: node, AuditSvc: auditSvc, Notifier: webhookSvc, Metrics: m,
	})
	cycleSvc := billingservice.NewService(billingservice.ServiceParam{
		DB: db, Log: log, GenID: node, Sims: simSvc, AuditSvc: auditSvc,
	})
	usageSvc := usageservice.NewService(usageservice.ServiceParam{
		DB: db, Log: log, GenID: node, Cycles: cycleSvc, AuditSvc: auditSvc, Metrics: m,
	})
	apiKeySvc := apikeyservice.NewService(apikeyservice.ServiceParam{DB: db, Log: log})
	limiter := ratelimit.NewLimiter(cfg.RateLimit, nil, log, m)

	engine := NewEngine(observability.Config{}, m)
	srv := NewServer(ServerParams{
		Gin:        engine,
		Cfg:        cfg,
		DB:         db,
		Log:        log,
		GenID:      node,
		APIKeySvc:  apiKeySvc,
		SimSvc:     simSvc,
		UsageSvc:   usageSvc,
		CycleSvc:   cycleSvc,
		WebhookSvc: webhookSvc,
		AuditSvc:   auditSvc,
		Limiter:    limiter,
	})

	key := apikeydomain.APIKey{
		ID:       node.Generate(),
		KeyHash:  apikeydomain.HashAPIKey(testToken),
		ClientID: testClientID,
		IsActive: true,
	}
	require.NoError(t, db.Create(&key).Error)

	return srv, db
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, auth bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}

	resp := httptest.NewRecorder()
	srv.engine.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func createTestSim(t *testing.T, srv *Server, iccid string, activate bool) map[string]any {
	t.Helper()
	resp := doJSON(t, srv, http.MethodPost, "/v1/sims", gin.H{
		"iccid":    iccid,
		"imsi":     "310150123456789",
		"msisdn":   "+14155550100",
		"activate": activate,
	}, true)
	require.Equal(t, http.StatusCreated, resp.Code)
	return decodeBody(t, resp)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := doJSON(t, srv, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok", decodeBody(t, resp)["status"])
}

func TestAuth_MissingOrBadToken(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := doJSON(t, srv, http.MethodGet, "/v1/sims/1234", nil, false)
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	body := decodeBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "unauthorized", errObj["type"])

	req := httptest.NewRequest(http.MethodGet, "/v1/sims/1234", nil)
	req.Header.Set("Authorization", "Bearer tk_wrong")
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndGetSim(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	created := createTestSim(t, srv, "8944500312345678901", false)
	assert.Equal(t, "PROVISIONED", created["status"])
	links := created["links"].(map[string]any)
	assert.Contains(t, links, "activate")
	assert.NotContains(t, links, "deactivate")

	simID := created["simId"].(string)
	resp := doJSON(t, srv, http.MethodGet, "/v1/sims/"+simID, nil, true)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "8944500312345678901", decodeBody(t, resp)["iccid"])
}

func TestCreateSim_ValidationError(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := doJSON(t, srv, http.MethodPost, "/v1/sims", gin.H{"iccid": "123"}, true)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	errObj := decodeBody(t, resp)["error"].(map[string]any)
	assert.Equal(t, "validation_error", errObj["type"])
	assert.NotEmpty(t, errObj["errors"])
}

func TestGetSim_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := doJSON(t, srv, http.MethodGet, "/v1/sims/999999999", nil, true)
	require.Equal(t, http.StatusNotFound, resp.Code)
	errObj := decodeBody(t, resp)["error"].(map[string]any)
	assert.Equal(t, "sim_not_found", errObj["type"])
}

func TestLifecycleRoutes(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	created := createTestSim(t, srv, "8944500312345678901", false)
	simID := created["simId"].(string)
	base := "/v1/sims/" + simID

	resp := doJSON(t, srv, http.MethodPost, base+"/activate", nil, true)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ACTIVE", decodeBody(t, resp)["status"])

	// Activating an active SIM is an illegal move and reports both states.
	resp = doJSON(t, srv, http.MethodPost, base+"/activate", nil, true)
	require.Equal(t, http.StatusConflict, resp.Code)
	errObj := decodeBody(t, resp)["error"].(map[string]any)
	assert.Equal(t, "invalid_state_transition", errObj["type"])
	assert.Equal(t, "ACTIVE", errObj["currentStatus"])
	assert.Equal(t, "ACTIVE", errObj["attemptedStatus"])

	resp = doJSON(t, srv, http.MethodPost, base+"/block", gin.H{"reason": "FRAUD_SUSPECTED"}, true)
	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, "BLOCKED", body["status"])
	assert.Equal(t, "FRAUD_SUSPECTED", body["blockReason"])

	resp = doJSON(t, srv, http.MethodPost, base+"/unblock", nil, true)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ACTIVE", decodeBody(t, resp)["status"])

	resp = doJSON(t, srv, http.MethodPost, base+"/deactivate", nil, true)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "INACTIVE", decodeBody(t, resp)["status"])
}

func TestUsageRoutes(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	created := createTestSim(t, srv, "8944500312345678901", true)
	simID := created["simId"].(string)

	record := gin.H{
		"recordId":    "CDR-1",
		"iccid":       "8944500312345678901",
		"periodStart": "2026-08-26T10:00:00Z",
		"periodEnd":   "2026-08-26T10:05:00Z",
		"usage":       gin.H{"uploadBytes": 100, "downloadBytes": 400, "totalBytes": 500},
	}

	resp := doJSON(t, srv, http.MethodPost, "/v1/usage", record, true)
	require.Equal(t, http.StatusAccepted, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, "ACCEPTED", body["status"])
	assert.Equal(t, "CDR-1", body["recordId"])

	// Replay of the same record is acknowledged, not double counted.
	resp = doJSON(t, srv, http.MethodPost, "/v1/usage", record, true)
	require.Equal(t, http.StatusAccepted, resp.Code)
	assert.Equal(t, "DUPLICATE", decodeBody(t, resp)["status"])

	resp = doJSON(t, srv, http.MethodGet, "/v1/sims/"+simID+"/usage", nil, true)
	require.Equal(t, http.StatusOK, resp.Code)
	usage := decodeBody(t, resp)["usage"].(map[string]any)
	assert.Equal(t, float64(500), usage["totalBytes"])
}

func TestUsageBatchRoute(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	createTestSim(t, srv, "8944500312345678901", true)

	resp := doJSON(t, srv, http.MethodPost, "/v1/usage/batch", gin.H{
		"batchId": "BATCH-1",
		"records": []gin.H{
			{
				"recordId":    "CDR-1",
				"iccid":       "8944500312345678901",
				"periodStart": "2026-08-26T10:00:00Z",
				"periodEnd":   "2026-08-26T10:05:00Z",
				"usage":       gin.H{"totalBytes": 100},
			},
			{
				"recordId":    "CDR-2",
				"iccid":       "8944500312345678901",
				"periodStart": "2026-08-26T10:05:00Z",
				"periodEnd":   "2026-08-26T10:10:00Z",
				"usage":       gin.H{"totalBytes": -1},
			},
		},
	}, true)
	require.Equal(t, http.StatusAccepted, resp.Code)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(2), body["recordsReceived"])
	assert.Equal(t, float64(1), body["recordsProcessed"])
	assert.Equal(t, float64(1), body["recordsFailed"])
}

func TestResetUsageRoute(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	createTestSim(t, srv, "8944500312345678901", true)

	record := gin.H{
		"recordId":    "CDR-1",
		"iccid":       "8944500312345678901",
		"periodStart": "2026-08-26T10:00:00Z",
		"periodEnd":   "2026-08-26T10:05:00Z",
		"usage":       gin.H{"totalBytes": 500},
	}
	resp := doJSON(t, srv, http.MethodPost, "/v1/usage", record, true)
	require.Equal(t, http.StatusAccepted, resp.Code)

	resp = doJSON(t, srv, http.MethodPost, "/v1/usage/reset", gin.H{
		"iccid":          "8944500312345678901",
		"billingCycleId": "2026-09",
		"cycleStart":     "2026-09-01T00:00:00Z",
		"cycleEnd":       "2026-10-01T00:00:00Z",
	}, true)
	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)

	previous := body["previousCycle"].(map[string]any)
	archived := previous["archivedUsage"].(map[string]any)
	assert.Equal(t, float64(500), archived["totalBytes"])

	newCycle := body["newCycle"].(map[string]any)
	assert.Equal(t, "2026-09", newCycle["billingCycleId"])
	assert.Equal(t, float64(0), newCycle["usage"].(map[string]any)["totalBytes"])
}

func TestWebhookRoutes(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := doJSON(t, srv, http.MethodPost, "/v1/webhooks", gin.H{
		"url":    "https://hooks.example.com/sims",
		"events": []string{"SIM_ACTIVATED"},
		"secret": "0123456789abcdef0123456789abcdef",
	}, true)
	require.Equal(t, http.StatusCreated, resp.Code)
	webhookID := decodeBody(t, resp)["webhookId"].(string)

	resp = doJSON(t, srv, http.MethodGet, "/v1/webhooks/"+webhookID, nil, true)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = doJSON(t, srv, http.MethodGet, "/v1/webhooks", nil, true)
	require.Equal(t, http.StatusOK, resp.Code)
	hooks := decodeBody(t, resp)["webhooks"].([]any)
	assert.Len(t, hooks, 1)

	resp = doJSON(t, srv, http.MethodDelete, "/v1/webhooks/"+webhookID, nil, true)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = doJSON(t, srv, http.MethodGet, "/v1/webhooks/"+webhookID, nil, true)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAuditLogsRoute(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	created := createTestSim(t, srv, "8944500312345678901", false)
	simID := created["simId"].(string)

	resp := doJSON(t, srv, http.MethodGet, "/v1/audit-logs?simId="+simID, nil, true)
	require.Equal(t, http.StatusOK, resp.Code)
	body := decodeBody(t, resp)
	logs := body["auditLogs"].([]any)
	require.NotEmpty(t, logs)
	first := logs[0].(map[string]any)
	assert.Equal(t, "create", first["action"])
	assert.Equal(t, testClientID, first["clientId"])
}

func TestRateLimitHeadersAnd429(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.ProvisioningRead.Limit = 2
	})

	for i := 1; i <= 2; i++ {
		resp := doJSON(t, srv, http.MethodGet, "/v1/webhooks", nil, true)
		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "2", resp.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, fmt.Sprintf("%d", 2-i), resp.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, resp.Header().Get("X-RateLimit-Reset"))
	}

	resp := doJSON(t, srv, http.MethodGet, "/v1/webhooks", nil, true)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	errObj := decodeBody(t, resp)["error"].(map[string]any)
	assert.Equal(t, "rate_limit_exceeded", errObj["type"])
	assert.Equal(t, "0", resp.Header().Get("X-RateLimit-Remaining"))
}
