package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/edma-uni/reporter/internal/config"
	"github.com/edma-uni/reporter/internal/database"
	"github.com/edma-uni/reporter/internal/metrics"
	"github.com/edma-uni/reporter/internal/middleware"
	"github.com/edma-uni/reporter/internal/refresh"
	"github.com/edma-uni/reporter/internal/reporting"
)

// Refresher triggers an on-demand aggregate view refresh.
type Refresher interface {
	Trigger(ctx context.Context) error
}

// HealthChecker reports liveness of an external collaborator.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ConnChecker reports whether a long-lived connection is currently up.
type ConnChecker interface {
	Healthy() bool
}

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	Reports   *reporting.Service
	Refresher Refresher
	DB        *database.PostgresDB
	Redis     *database.RedisDB
	NATS      ConnChecker
	Config    *config.Config
	Logger    *zap.Logger
}

// Server wraps the HTTP handlers of the read API.
type Server struct {
	reports   *reporting.Service
	refresher Refresher
	db        *database.PostgresDB
	redis     *database.RedisDB
	nats      ConnChecker
	logger    *zap.Logger
	config    *config.Config
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	s := &Server{
		reports:   deps.Reports,
		refresher: deps.Refresher,
		db:        deps.DB,
		redis:     deps.Redis,
		nats:      deps.NATS,
		logger:    deps.Logger,
		config:    deps.Config,
	}

	auth := middleware.NewAuthMiddleware(deps.Config.Auth, deps.Logger)

	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/revenue", s.handleRevenue)
	mux.HandleFunc("/demographics", s.handleDemographics)
	mux.Handle("/refresh-views", auth.Handler(http.HandlerFunc(s.handleRefreshViews)))

	var handler http.Handler = mux
	handler = middleware.NewRateLimitMiddleware(deps.Config.RateLimit, deps.Logger).Handler(handler)
	handler = middleware.NewLoggingMiddleware(deps.Logger).Handler(handler)
	handler = middleware.NewRequestIDMiddleware().Handler(handler)
	handler = middleware.NewRecoveryMiddleware(deps.Logger).Handler(handler)

	return handler
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	healthy := true

	check := func(name string, hc HealthChecker) {
		if hc == nil {
			status[name] = "disabled"
			return
		}
		if err := hc.Health(ctx); err != nil {
			status[name] = "unreachable"
			healthy = false
			return
		}
		status[name] = "ok"
	}

	if s.db != nil {
		check("postgres", s.db)
	} else {
		status["postgres"] = "disabled"
	}
	if s.redis != nil {
		check("redis", s.redis)
	} else {
		status["redis"] = "disabled"
	}
	switch {
	case s.nats == nil:
		status["nats"] = "disabled"
	case s.nats.Healthy():
		status["nats"] = "ok"
	default:
		status["nats"] = "unreachable"
		healthy = false
	}

	code := http.StatusOK
	if !healthy {
		status["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, status)
}

// ---- Reports ----

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	from, to, ok := s.parseRange(w, r)
	if !ok {
		return
	}
	req := reporting.EventsRequest{
		From:        from,
		To:          to,
		Source:      r.URL.Query().Get("source"),
		FunnelStage: r.URL.Query().Get("funnelStage"),
		EventType:   r.URL.Query().Get("eventType"),
	}

	report, err := s.reports.Events(r.Context(), req)
	if err != nil {
		s.reportError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRevenue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	from, to, ok := s.parseRange(w, r)
	if !ok {
		return
	}
	req := reporting.RevenueRequest{
		From:       from,
		To:         to,
		Source:     r.URL.Query().Get("source"),
		CampaignID: r.URL.Query().Get("campaignId"),
	}

	report, err := s.reports.Revenue(r.Context(), req)
	if err != nil {
		s.reportError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDemographics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	from, to, ok := s.parseRange(w, r)
	if !ok {
		return
	}
	req := reporting.DemographicsRequest{
		From:   from,
		To:     to,
		Source: r.URL.Query().Get("source"),
	}

	report, err := s.reports.Demographics(r.Context(), req)
	if err != nil {
		s.reportError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// ---- Refresh ----

func (s *Server) handleRefreshViews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := s.refresher.Trigger(r.Context())
	switch {
	case errors.Is(err, refresh.ErrRefreshInProgress):
		s.errorResponse(w, "refresh in progress", http.StatusConflict)
	case err != nil:
		s.logger.Error("on-demand refresh failed", zap.Error(err))
		s.errorResponse(w, "refresh failed", http.StatusInternalServerError)
	default:
		s.writeJSON(w, http.StatusOK, map[string]string{
			"status":      "ok",
			"refreshedAt": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ---- Helpers ----

// parseRange reads the optional inclusive [from, to] bounds. Both RFC3339
// timestamps and plain dates are accepted.
func (s *Server) parseRange(w http.ResponseWriter, r *http.Request) (*time.Time, *time.Time, bool) {
	from, err := parseTimeParam(r.URL.Query().Get("from"))
	if err != nil {
		s.errorResponse(w, "invalid from parameter", http.StatusBadRequest)
		return nil, nil, false
	}
	to, err := parseTimeParam(r.URL.Query().Get("to"))
	if err != nil {
		s.errorResponse(w, "invalid to parameter", http.StatusBadRequest)
		return nil, nil, false
	}
	return from, to, true
}

func parseTimeParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Server) reportError(w http.ResponseWriter, err error) {
	if errors.Is(err, reporting.ErrInvalidRequest) {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Error("report query failed", zap.Error(err))
	s.errorResponse(w, "query failed", http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, map[string]string{"error": message})
}
