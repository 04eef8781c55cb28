package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pickforge/internal/domain"
	"github.com/pickforge/internal/metrics"
	"github.com/pickforge/internal/odds"
	"github.com/pickforge/internal/service"
	"github.com/pickforge/internal/websocket"
)

// UserIDHeader identifies the submitting user. It is optional for pick
// submission; anonymous picks are decided but not stored.
const UserIDHeader = "X-User-ID"

const readyTimeout = 2 * time.Second

// Pinger is a dependency probed by the readiness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the PickForge API
type Handler struct {
	lines       *service.LinesService
	picks       *service.PickService
	standings   *service.StandingsService
	hub         *websocket.Hub
	metrics     *metrics.Metrics
	corsOrigins []string
	checks      map[string]Pinger
	logger      *slog.Logger
}

// NewHandler creates a new HTTP handler. hub may be nil, which disables /ws.
func NewHandler(
	lines *service.LinesService,
	picks *service.PickService,
	standings *service.StandingsService,
	hub *websocket.Hub,
	m *metrics.Metrics,
	corsOrigins []string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		lines:       lines,
		picks:       picks,
		standings:   standings,
		hub:         hub,
		metrics:     m,
		corsOrigins: corsOrigins,
		checks:      make(map[string]Pinger),
		logger:      logger,
	}
}

// AddReadinessCheck registers a dependency probed by /ready
func (h *Handler) AddReadinessCheck(name string, p Pinger) {
	h.checks[name] = p
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error  string                 `json:"error"`
	Status int                    `json:"status,omitempty"`
	Detail string                 `json:"detail,omitempty"`
	Meta   map[string]interface{} `json:"meta,omitempty"`
}

// LinesMeta describes where a lines payload came from
type LinesMeta struct {
	FetchedAt time.Time    `json:"fetchedAt"`
	Cached    bool         `json:"cached"`
	Quota     domain.Quota `json:"quota"`
}

// LinesResponse is the body of GET /api/lines
type LinesResponse struct {
	League domain.League `json:"league"`
	Games  []domain.Game `json:"games"`
	Meta   LinesMeta     `json:"meta"`
}

// PicksResponse is the body of POST /api/picks
type PicksResponse struct {
	ServerTime time.Time             `json:"serverTime"`
	League     domain.League         `json:"league"`
	Accepted   []domain.AcceptedPick `json:"accepted"`
	Rejected   []domain.RejectedPick `json:"rejected"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", UserIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/lines", h.GetLines)

		r.Post("/picks", h.SubmitPicks)
		r.Get("/picks", h.ListPicks)

		r.Route("/standings/{league}", func(r chi.Router) {
			r.Get("/", h.GetStandings)
			r.Get("/users/{userID}", h.GetUserStanding)
		})
	})

	return r
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, code string) {
	h.writeJSON(w, status, ErrorResponse{Error: code})
}

// writeServiceError maps a service error onto a status and stable code
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	if upErr, ok := odds.AsUpstreamError(err); ok {
		h.logger.Warn("upstream request failed", "op", op, "status", upErr.Status, "timeout", upErr.Timeout, "error", err)
		h.writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:  "upstream_error",
			Status: upErr.Status,
			Detail: upErr.Detail,
			Meta:   map[string]interface{}{"quota": upErr.Quota},
		})
		return
	}

	switch {
	case domain.IsClientError(err):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidRequest):
		h.writeError(w, http.StatusBadRequest, "invalid_request")
	case errors.Is(err, domain.ErrUserNotRanked):
		h.writeError(w, http.StatusNotFound, "not_ranked")
	case errors.Is(err, domain.ErrStoreUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "store_unavailable")
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		h.writeError(w, http.StatusServiceUnavailable, "websocket_unavailable")
		return
	}
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ReadyCheck pings every registered dependency
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", "dependency", name, "error", err)
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	h.writeJSON(w, status, map[string]interface{}{"status": state, "dependencies": deps})
}

// GetLines serves odds for a league
func (h *Handler) GetLines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lines, err := h.lines.GetLines(r.Context(), service.LinesQuery{
		League:  q.Get("league"),
		Region:  q.Get("region"),
		Markets: q.Get("markets"),
	})
	if err != nil {
		h.writeServiceError(w, "get lines", err)
		return
	}

	games := lines.Snapshot.Games
	if games == nil {
		games = []domain.Game{}
	}
	h.writeJSON(w, http.StatusOK, LinesResponse{
		League: lines.League,
		Games:  games,
		Meta: LinesMeta{
			FetchedAt: lines.Snapshot.FetchedAt,
			Cached:    lines.Cached,
			Quota:     lines.Snapshot.Quota,
		},
	})
}

// SubmitPicks decides a batch of picks
func (h *Handler) SubmitPicks(w http.ResponseWriter, r *http.Request) {
	var batch domain.PickBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidBody.Error())
		return
	}

	sub, err := h.picks.Submit(r.Context(), r.Header.Get(UserIDHeader), batch)
	if err != nil {
		h.writeServiceError(w, "submit picks", err)
		return
	}

	h.writeJSON(w, http.StatusOK, PicksResponse{
		ServerTime: sub.ServerTime,
		League:     sub.League,
		Accepted:   sub.Decision.Accepted,
		Rejected:   sub.Decision.Rejected,
	})
}

// ListPicks returns the calling user's stored picks
func (h *Handler) ListPicks(w http.ResponseWriter, r *http.Request) {
	week, ok := intParam(r, "week", 0)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	league := domain.ParseLeague(r.URL.Query().Get("league"))
	picks, err := h.picks.List(r.Context(), r.Header.Get(UserIDHeader), league, week)
	if err != nil {
		h.writeServiceError(w, "list picks", err)
		return
	}
	if picks == nil {
		picks = []domain.StoredPick{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"league": league,
		"week":   week,
		"picks":  picks,
	})
}

// GetStandings returns the ranked table for a league and optional week
func (h *Handler) GetStandings(w http.ResponseWriter, r *http.Request) {
	league, ok := domain.LookupLeague(chi.URLParam(r, "league"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown_league")
		return
	}
	week, ok := intParam(r, "week", 0)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	limit, ok := intParam(r, "limit", 0)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	entries, err := h.standings.Top(r.Context(), league, week, limit)
	if err != nil {
		h.writeServiceError(w, "get standings", err)
		return
	}
	if entries == nil {
		entries = []domain.Standing{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"league":    league,
		"week":      week,
		"standings": entries,
	})
}

// GetUserStanding returns one user's rank and points
func (h *Handler) GetUserStanding(w http.ResponseWriter, r *http.Request) {
	league, ok := domain.LookupLeague(chi.URLParam(r, "league"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown_league")
		return
	}
	week, ok := intParam(r, "week", 0)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	entry, err := h.standings.Rank(r.Context(), league, week, chi.URLParam(r, "userID"))
	if err != nil {
		h.writeServiceError(w, "get user standing", err)
		return
	}

	h.writeJSON(w, http.StatusOK, entry)
}

// intParam reads an optional integer query parameter
func intParam(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
