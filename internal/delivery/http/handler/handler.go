package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/bookscan-service/internal/catalog"
	"github.com/user/bookscan-service/internal/delivery/http/request"
	"github.com/user/bookscan-service/internal/delivery/http/response"
	"github.com/user/bookscan-service/internal/entity"
	"github.com/user/bookscan-service/internal/repository"
	"github.com/user/bookscan-service/internal/similarity"
	"github.com/user/bookscan-service/internal/usecase"
)

// Jobs enqueues background work.
type Jobs interface {
	SubmitParse(ctx context.Context, p entity.ParseQueryPayload) (string, error)
	RequestRefresh(ctx context.Context) (string, error)
	QueueDepth(ctx context.Context) (int64, error)
}

type Searcher interface {
	Search(ctx context.Context, query string) (*usecase.SearchResult, error)
}

type PendingPeeker interface {
	Peek(ctx context.Context, query string) (*entity.PendingScrapeEntry, error)
}

// Catalog is the read-only part of the catalog client used by the API.
type Catalog interface {
	Facets(ctx context.Context, phrase string) (json.RawMessage, error)
	Stats() catalog.RateLimitState
}

// Pinger checks a backing store.
type Pinger func(ctx context.Context) error

// Deps are the handler's collaborators.
type Deps struct {
	Jobs      Jobs
	Search    Searcher
	Pending   PendingPeeker
	Presence  repository.PresenceRepository
	ParseLogs repository.ParseLogRepository
	Catalog   Catalog
	Checks    map[string]Pinger
}

type Handler struct {
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	return &Handler{deps: deps, logger: logger, now: time.Now}
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	for name, ping := range h.deps.Checks {
		if err := ping(ctx); err != nil {
			h.logger.Error("health check failed", zap.String("component", name), zap.Error(err))
			status[name] = "unhealthy"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "healthy"
	}
	h.writeJSON(w, code, status)
}

func (h *Handler) HandleSubmitParse(w http.ResponseWriter, r *http.Request) {
	var req request.SubmitParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id, err := h.deps.Jobs.SubmitParse(r.Context(), entity.ParseQueryPayload{
		Query:        req.Query,
		Source:       req.Source,
		FetchDetails: req.FetchDetails,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidPayload) {
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to submit parse", zap.String("query", req.Query), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, response.TaskAcceptedResponse{
		Status:  "accepted",
		Message: "Parse task queued",
		TaskID:  id,
	})
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	res, err := h.deps.Search.Search(r.Context(), q)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidPayload) {
			h.writeJSONError(w, "q query parameter is required", http.StatusBadRequest)
			return
		}
		h.logger.Error("search failed", zap.String("query", q), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	code := http.StatusOK
	if res.Status == usecase.SearchParsingStarted {
		code = http.StatusAccepted
	}
	h.writeJSON(w, code, res)
}

func (h *Handler) HandleSimilar(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q, title := params.Get("q"), params.Get("title")
	if strings.TrimSpace(q) == "" || strings.TrimSpace(title) == "" {
		h.writeJSONError(w, "q and title query parameters are required", http.StatusBadRequest)
		return
	}
	ok, reason := similarity.IsSimilar(q, title, params.Get("author"))
	h.writeJSON(w, http.StatusOK, response.SimilarityResponse{Similar: ok, Reason: reason})
}

func (h *Handler) HandleGetPending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		h.writeJSONError(w, "q query parameter is required", http.StatusBadRequest)
		return
	}
	entry, err := h.deps.Pending.Peek(r.Context(), q)
	if err != nil {
		h.logger.Error("pending lookup failed", zap.String("query", q), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if entry == nil {
		h.writeJSONError(w, "No pending scrape for the given query", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, response.PendingResponse{
		QueryKey:       entry.QueryKey,
		RawQuery:       entry.RawQuery,
		Author:         entry.Author,
		AlreadyFetched: entry.AlreadyFetched,
		CreatedAt:      entry.CreatedAt,
	})
}

func (h *Handler) HandleRefreshCredential(w http.ResponseWriter, r *http.Request) {
	id, err := h.deps.Jobs.RequestRefresh(r.Context())
	if err != nil {
		h.logger.Error("failed to request credential refresh", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusAccepted, response.TaskAcceptedResponse{
		Status:  "accepted",
		Message: "Credential refresh queued",
		TaskID:  id,
	})
}

func (h *Handler) HandlePresence(w http.ResponseWriter, r *http.Request) {
	var req request.PresenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		h.writeJSONError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if err := h.deps.Presence.Touch(r.Context(), req.UserID, h.now()); err != nil {
		h.logger.Error("presence heartbeat failed", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleFacets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		h.writeJSONError(w, "q query parameter is required", http.StatusBadRequest)
		return
	}
	doc, err := h.deps.Catalog.Facets(r.Context(), q)
	if err != nil {
		h.logger.Warn("facet search failed", zap.String("query", q), zap.Error(err))
		h.writeJSONError(w, "Catalog unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (h *Handler) HandleParseLogs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			h.writeJSONError(w, "limit must be between 1 and 200", http.StatusBadRequest)
			return
		}
		limit = n
	}
	logs, err := h.deps.ParseLogs.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("parse log query failed", zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	out := make([]response.ParseLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, response.ParseLogResponse{
			ID:        l.ID,
			Source:    l.Source,
			Query:     l.Query,
			Status:    l.Status,
			Message:   l.Message,
			Items:     l.Items,
			CreatedAt: l.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	depth, err := h.deps.Jobs.QueueDepth(r.Context())
	if err != nil {
		h.logger.Warn("queue depth unavailable", zap.Error(err))
	}
	stats := h.deps.Catalog.Stats()
	h.writeJSON(w, http.StatusOK, response.StatsResponse{
		QueueDepth:  depth,
		Catalog:     stats,
		SuccessRate: stats.SuccessRate(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
