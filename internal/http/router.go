package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/domainmap/internal/domain"
	"github.com/splax/domainmap/internal/service/billing"
	"github.com/splax/domainmap/internal/service/events"
	"github.com/splax/domainmap/internal/service/ingress"
	"github.com/splax/domainmap/internal/service/mapping"
	"github.com/splax/domainmap/internal/service/settings"
	"github.com/splax/domainmap/internal/service/webhook"
	"github.com/splax/domainmap/internal/ws"
)

// DomainService manages mapped domains.
type DomainService interface {
	List(ctx context.Context, filter domain.DomainFilter) ([]domain.Domain, error)
	Get(ctx context.Context, id string) (*domain.Domain, error)
	Create(ctx context.Context, in mapping.CreateInput) (*domain.Domain, error)
	Delete(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) (*domain.Domain, error)
	DNSRecords(ctx context.Context, host string) (mapping.DNSReport, error)
}

// SettingsService reads and writes registered settings.
type SettingsService interface {
	Fields(ctx context.Context) ([]settings.FieldValue, error)
	Get(ctx context.Context, key string) (any, error)
	Set(ctx context.Context, key string, value any) (any, error)
	Instructions(ctx context.Context) (string, error)
}

// EventService exposes fired events and registered types.
type EventService interface {
	List(ctx context.Context, slug string, limit, offset int) ([]domain.Event, error)
	Types() []events.TypeInfo
}

// WebhookService manages webhook subscriptions.
type WebhookService interface {
	Create(ctx context.Context, input webhook.CreateInput) (*webhook.Created, error)
	List(ctx context.Context) ([]domain.Webhook, error)
	Delete(ctx context.Context, id string) error
}

// LogService reads channel logs and exposes the streaming hub.
type LogService interface {
	List(ctx context.Context, channel string, limit, offset int) ([]domain.LogEntry, error)
	Hub() *ws.Hub
}

// BillingService opens checkout sessions and confirms payments.
type BillingService interface {
	CreateSession(ctx context.Context, cart billing.Cart) (billing.Session, error)
	Confirm(ctx context.Context, payload []byte, signature string) (billing.Confirmation, error)
}

// IntegrationService checks host provider integrations.
type IntegrationService interface {
	Test(ctx context.Context) []ingress.TestResult
}

// Services groups the router dependencies.
type Services struct {
	Domains      DomainService
	Settings     SettingsService
	Events       EventService
	Webhooks     WebhookService
	Logs         LogService
	Billing      BillingService
	Integrations IntegrationService
}

// Options tunes the router.
type Options struct {
	JWTSecret string
	Limiter   RateLimiter
	DBHealth  func(context.Context) error
	Gatherer  prometheus.Gatherer
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	svc       Services
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	jwtSecret string
	dbHealth  func(context.Context) error
	gatherer  prometheus.Gatherer

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitWrite     = 60
	rateLimitRead      = 240
	rateLimitWebsocket = 30
	rateLimitStripe    = 120
	healthCheckTimeout = 2 * time.Second
	sseHeartbeat       = 15 * time.Second
	maxBodyBytes       = 1 << 20
)

const (
	scopeDomains  = "domains"
	scopeSettings = "settings"
	scopeEvents   = "events"
	scopeWebhooks = "webhooks"
	scopeLogs     = "logs"
	scopeBilling  = "billing"
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, svc Services, opts Options) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger.With("component", "http"),
		svc:    svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:   opts.Limiter,
		jwtSecret: opts.JWTSecret,
		dbHealth:  opts.DBHealth,
		gatherer:  opts.Gatherer,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.gatherer == nil {
		r.gatherer = prometheus.DefaultGatherer
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.public("GET /healthz", r.handleHealthz)
	r.mux.Handle("GET /metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	r.public("POST /stripe/webhook", r.withRateLimit("POST /stripe/webhook", rateLimitStripe, rateWindowDefault, rateLimitKeyIP, r.handleStripeWebhook))

	r.private("GET /domains", scopeDomains, rateLimitRead, r.handleListDomains)
	r.private("POST /domains", scopeDomains, rateLimitWrite, r.handleCreateDomain)
	r.private("GET /domains/instructions", scopeDomains, rateLimitRead, r.handleInstructions)
	r.private("GET /domains/{id}", scopeDomains, rateLimitRead, r.handleGetDomain)
	r.private("DELETE /domains/{id}", scopeDomains, rateLimitWrite, r.handleDeleteDomain)
	r.private("POST /domains/{id}/restart", scopeDomains, rateLimitWrite, r.handleRestartDomain)
	r.private("GET /domains/{id}/dns", scopeDomains, rateLimitRead, r.handleDomainDNS)

	r.private("GET /settings", scopeSettings, rateLimitRead, r.handleListSettings)
	r.private("GET /settings/{key}", scopeSettings, rateLimitRead, r.handleGetSetting)
	r.private("PUT /settings/{key}", scopeSettings, rateLimitWrite, r.handleSetSetting)

	r.private("GET /integrations/test", scopeSettings, rateLimitWrite, r.handleTestIntegrations)

	r.private("GET /events", scopeEvents, rateLimitRead, r.handleListEvents)
	r.private("GET /hooks", scopeEvents, rateLimitRead, r.handleListHooks)

	r.private("GET /webhooks", scopeWebhooks, rateLimitRead, r.handleListWebhooks)
	r.private("POST /webhooks", scopeWebhooks, rateLimitWrite, r.handleCreateWebhook)
	r.private("DELETE /webhooks/{id}", scopeWebhooks, rateLimitWrite, r.handleDeleteWebhook)

	r.private("GET /logs/{channel}", scopeLogs, rateLimitRead, r.handleLogs)
	r.mux.HandleFunc("GET /ws/logs", r.audit("GET /ws/logs", r.requireAuth(scopeLogs,
		r.withRateLimit("GET /ws/logs", rateLimitWebsocket, rateWindowRealtime, rateLimitKeySubject, r.handleLogsWS))))

	r.private("POST /checkout/sessions", scopeBilling, rateLimitWrite, r.handleCreateCheckout)
}

func (r *Router) public(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, r.audit(pattern, h))
}

func (r *Router) private(pattern, scope string, limit int, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, r.audit(pattern, r.requireAuth(scope,
		r.withRateLimit(pattern, limit, rateWindowDefault, rateLimitKeySubject, h))))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	status := map[string]string{"status": "ok"}
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			r.logger.Error("database health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
			return
		}
		status["database"] = "ok"
	}
	writeJSON(w, http.StatusOK, status)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "token"
			fields = append(fields, "subject", info.Subject)
		} else if strings.HasPrefix(req.URL.Path, "/stripe/") {
			actor = "stripe"
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}
