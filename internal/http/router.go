package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/teamroster/internal/service/auth"
	"github.com/splax/teamroster/internal/service/documents"
)

// Limits are per-window request quotas; zero disables a limit.
type Limits struct {
	Signup    int
	Login     int
	UserRead  int
	UserWrite int
}

// Deps carries everything the router serves.
type Deps struct {
	Logger          *slog.Logger
	Auth            auth.Service
	Documents       *documents.Service
	Limiter         RateLimiter
	Limits          Limits
	StreamHeartbeat time.Duration
	MetricsEnabled  bool
	DBHealth        func(context.Context) error
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *mux.Router
	logger    *slog.Logger
	auth      auth.Service
	docs      *documents.Service
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	limits    Limits
	heartbeat time.Duration
	dbHealth  func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	healthCheckTimeout = 2 * time.Second
	maxBodyBytes       = 1 << 20
)

// NewRouter assembles routes with dependencies.
func NewRouter(deps Deps) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:    mux.NewRouter(),
		logger: logger,
		auth:   deps.Auth,
		docs:   deps.Documents,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:   deps.Limiter,
		limits:    deps.Limits,
		heartbeat: deps.StreamHeartbeat,
		dbHealth:  deps.DBHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.heartbeat <= 0 {
		r.heartbeat = 25 * time.Second
	}
	if deps.MetricsEnabled {
		r.initMetrics()
	}
	r.register(deps.MetricsEnabled)
	return r
}

// ServeHTTP delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register(metrics bool) {
	r.mux.NotFoundHandler = r.audit(func(w http.ResponseWriter, _ *http.Request) { r.notFound(w) })
	r.mux.MethodNotAllowedHandler = r.audit(func(w http.ResponseWriter, _ *http.Request) { r.methodNotAllowed(w) })

	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz)).Methods(http.MethodGet)
	if metrics {
		r.mux.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	r.mux.HandleFunc("/auth/signup", r.audit(r.withRateLimit("/auth/signup", r.limits.Signup, rateWindowDefault, rateLimitKeyIP, r.handleSignup))).Methods(http.MethodPost)
	r.mux.HandleFunc("/auth/login", r.audit(r.withRateLimit("/auth/login", r.limits.Login, rateWindowDefault, rateLimitKeyIP, r.handleLogin))).Methods(http.MethodPost)
	r.mux.HandleFunc("/auth/refresh", r.audit(r.withRateLimit("/auth/refresh", r.limits.Login, rateWindowDefault, rateLimitKeyIP, r.handleRefresh))).Methods(http.MethodPost)
	r.mux.HandleFunc("/auth/me", r.audit(r.handlerAuthRate("/auth/me", r.limits.UserRead, rateWindowDefault, r.handleMe))).Methods(http.MethodGet)

	data := "/v1/data/{path:.*}"
	r.mux.HandleFunc(data, r.audit(r.handlerAuthRate(data, r.limits.UserRead, rateWindowDefault, r.handleDataGet))).Methods(http.MethodGet)
	r.mux.HandleFunc(data, r.audit(r.handlerAuthRate(data, r.limits.UserWrite, rateWindowDefault, r.handleDataSet))).Methods(http.MethodPut)
	r.mux.HandleFunc(data, r.audit(r.handlerAuthRate(data, r.limits.UserWrite, rateWindowDefault, r.handleDataUpdate))).Methods(http.MethodPatch)
	r.mux.HandleFunc(data, r.audit(r.handlerAuthRate(data, r.limits.UserWrite, rateWindowDefault, r.handleDataRemove))).Methods(http.MethodDelete)

	r.mux.HandleFunc("/v1/subscribe", r.audit(r.handlerAuthRate("/v1/subscribe", r.limits.UserRead, rateWindowDefault, r.handleSubscribeWS))).Methods(http.MethodGet)
	r.mux.HandleFunc("/v1/stream", r.audit(r.handlerAuthRate("/v1/stream", r.limits.UserRead, rateWindowDefault, r.handleStream))).Methods(http.MethodGet)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	if r.docs != nil {
		components["subscriptions"] = map[string]any{"active": r.docs.Subscribers()}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
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
		route := routeTemplate(req)
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
			actor = string(info.Role)
			fields = append(fields, "user_id", info.UserID)
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

func routeTemplate(req *http.Request) string {
	if route := mux.CurrentRoute(req); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
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
		if sr.status == 0 {
			sr.status = http.StatusSwitchingProtocols
		}
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
