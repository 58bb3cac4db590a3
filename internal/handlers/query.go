package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"enterprise-chatbot/internal/coordinator"
	"enterprise-chatbot/internal/engine"
	"enterprise-chatbot/internal/loadtest"
	"enterprise-chatbot/internal/scaler"
	"enterprise-chatbot/pkg/logging/logging"
)

// Coordinator is the query side of the service.
type Coordinator interface {
	Handle(ctx context.Context, query string) engine.Result
	History(limit int) []coordinator.Record
	Stats() coordinator.Stats
}

// Scaler exposes the scaling controller state.
type Scaler interface {
	State(limit int) scaler.State
}

// CacheSizer reports the number of cached responses.
type CacheSizer interface {
	CacheLen(ctx context.Context) (int, error)
}

// LoadTester controls the background load test.
type LoadTester interface {
	Start(iterations int) error
	Stop() error
	Status() loadtest.Status
}

// APIHandler holds dependencies for the /v1 endpoints.
type APIHandler struct {
	Coordinator Coordinator
	Scaler      Scaler
	Cache       CacheSizer
	LoadTest    LoadTester
}

func NewAPIHandler(c Coordinator, s Scaler, cs CacheSizer, lt LoadTester) *APIHandler {
	return &APIHandler{
		Coordinator: c,
		Scaler:      s,
		Cache:       cs,
		LoadTest:    lt,
	}
}

type queryRequest struct {
	Query string `json:"query"`
}

// Query handles POST /v1/query.
func (h *APIHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req queryRequest
	if !decodeJSON(w, r, logger, &req) {
		return
	}

	res := h.Coordinator.Handle(ctx, req.Query)

	logger.Info("query_handled",
		zap.String("query_id", res.QueryID),
		zap.String("category", string(res.Category)),
		zap.Bool("optimized", res.Optimized),
		zap.Duration("total_latency", time.Since(start)),
	)

	writeJSON(w, http.StatusOK, res)
}

// History handles GET /v1/history.
func (h *APIHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	records := h.Coordinator.History(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"records": records,
	})
}

// Scaling handles GET /v1/scaling.
func (h *APIHandler) Scaling(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Scaler.State(limit))
}

type statsResponse struct {
	coordinator.Stats
	CacheEntries     int `json:"cache_entries"`
	CurrentInstances int `json:"current_instances"`
}

// Stats handles GET /v1/stats.
func (h *APIHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := statsResponse{
		Stats:            h.Coordinator.Stats(),
		CurrentInstances: h.Scaler.State(1).CurrentInstances,
		CacheEntries:     -1,
	}
	if n, err := h.Cache.CacheLen(ctx); err != nil {
		// Cache is best-effort; report an unknown size.
		logging.L(ctx).Warn("cache_len_error", zap.Error(err))
	} else {
		resp.CacheEntries = n
	}

	writeJSON(w, http.StatusOK, resp)
}

type loadTestRequest struct {
	Iterations int `json:"iterations"`
}

// StartLoadTest handles POST /v1/loadtest. An empty body runs the
// configured iteration count.
func (h *APIHandler) StartLoadTest(w http.ResponseWriter, r *http.Request) {
	logger := logging.L(r.Context())

	var req loadTestRequest
	if !decodeOptionalJSON(w, r, logger, &req) {
		return
	}
	if req.Iterations < 0 {
		writeError(w, http.StatusBadRequest, "iterations must not be negative")
		return
	}

	if err := h.LoadTest.Start(req.Iterations); err != nil {
		if errors.Is(err, loadtest.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		logger.Error("loadtest_start_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_server_error")
		return
	}

	logger.Info("loadtest_started", zap.Int("iterations", req.Iterations))
	writeJSON(w, http.StatusAccepted, h.LoadTest.Status())
}

// StopLoadTest handles DELETE /v1/loadtest.
func (h *APIHandler) StopLoadTest(w http.ResponseWriter, r *http.Request) {
	if err := h.LoadTest.Stop(); err != nil {
		if errors.Is(err, loadtest.ErrNotRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		logging.L(r.Context()).Error("loadtest_stop_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_server_error")
		return
	}
	writeJSON(w, http.StatusAccepted, h.LoadTest.Status())
}

// LoadTestStatus handles GET /v1/loadtest.
func (h *APIHandler) LoadTestStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.LoadTest.Status())
}

// decodeJSON reads the request body into v, answering 413 for bodies over
// the middleware limit and 400 for anything else unreadable.
func decodeJSON(w http.ResponseWriter, r *http.Request, logger *zap.Logger, v any) bool {
	return decodeBody(w, r, logger, v, false)
}

// decodeOptionalJSON is decodeJSON but leaves v untouched when the body is
// empty, whatever its declared length.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, logger *zap.Logger, v any) bool {
	return decodeBody(w, r, logger, v, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, logger *zap.Logger, v any, optional bool) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("request body too large", zap.Int64("limit", tooLarge.Limit))
			writeError(w, http.StatusRequestEntityTooLarge, "request_too_large")
			return false
		}
		logger.Warn("invalid request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeJSON is a small helper to send JSON responses consistently.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
