// Package handler is the HTTP boundary of the query engine: it parses query
// parameters, consults the page cache, runs the engine and maps errors to
// status codes.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/pkg/middleware"
)

const (
	defaultTagPage = 100
	maxTagPage     = 1000
)

// QueryEngine is what the handler needs from executor.Engine.
type QueryEngine interface {
	Query(ctx context.Context, req executor.QueryRequest) (*executor.Page, error)
	BooleanQuery(ctx context.Context, req executor.BooleanRequest) (*executor.Page, error)
	Materialize(positions []document.Position, stats executor.Stats) (*executor.Page, error)
	Index() *indexer.Index
}

type Config struct {
	DefaultPageSize int
	MaxPageSize     int
	DefaultStrategy parser.Strategy
	DefaultSort     document.SortField
}

// Response is the body of a successful query.
type Response struct {
	Results  []document.Document `json:"results"`
	Count    int                 `json:"count"`
	Stats    executor.Stats      `json:"stats"`
	CacheHit bool                `json:"cache_hit"`
}

type Handler struct {
	engine    QueryEngine
	cfg       Config
	cache     *cache.PageCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New builds a handler. pageCache, collector and m may be nil.
func New(engine QueryEngine, cfg Config, pageCache *cache.PageCache, collector *analytics.Collector, m *metrics.Metrics) *Handler {
	if cfg.MaxPageSize <= 0 || cfg.MaxPageSize > executor.MaxPageSize {
		cfg.MaxPageSize = executor.MaxPageSize
	}
	if cfg.DefaultPageSize <= 0 || cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = min(20, cfg.MaxPageSize)
	}
	return &Handler{
		engine:    engine,
		cfg:       cfg,
		cache:     pageCache,
		collector: collector,
		metrics:   m,
		logger:    slog.Default().With("component", "query-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/questions", h.Questions)
	mux.HandleFunc("GET /api/v1/questions/boolean", h.Boolean)
	mux.HandleFunc("GET /api/v1/tags", h.Tags)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("DELETE /api/v1/cache", h.CacheInvalidate)
}

// Questions serves GET /api/v1/questions?tag=&sort=&pageSize=&skip=&exclude=.
func (h *Handler) Questions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	event := analytics.QueryEvent{Type: analytics.EventQuery}

	req, err := h.parseQuery(q)
	if err != nil {
		h.fail(w, r, event, start, err)
		return
	}
	event.Tag, event.Field, event.Skip, event.PageSize, event.Exclusions =
		req.Tag, req.Field.String(), req.Skip, req.PageSize, req.Exclusions

	key := cache.Key{
		Tag:        req.Tag,
		Field:      req.Field.String(),
		Skip:       req.Skip,
		PageSize:   req.PageSize,
		Exclusions: req.Exclusions,
	}
	page, hit, err := h.run(r.Context(), key, func() (*executor.Page, error) {
		return h.engine.Query(r.Context(), req)
	})
	if err != nil {
		h.fail(w, r, event, start, err)
		return
	}
	h.succeed(w, r, event, start, page, hit)
}

// Boolean serves GET /api/v1/questions/boolean?tag1=&tag2=&op=&sort=
// &pageSize=&skip=&exclude=&strategy=.
func (h *Handler) Boolean(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	event := analytics.QueryEvent{Type: analytics.EventBoolean}

	req, err := h.parseBoolean(q)
	if err != nil {
		h.fail(w, r, event, start, err)
		return
	}
	event.Tag, event.Tag2, event.Operator, event.Strategy = req.Tag1, req.Tag2, req.Operator.String(), req.Strategy.String()
	event.Field, event.Skip, event.PageSize, event.Exclusions = req.Field.String(), req.Skip, req.PageSize, req.Exclusions

	key := cache.Key{
		Tag:        req.Tag1,
		Tag2:       req.Tag2,
		Operator:   req.Operator.String(),
		Field:      req.Field.String(),
		Strategy:   req.Strategy.String(),
		Skip:       req.Skip,
		PageSize:   req.PageSize,
		Exclusions: req.Exclusions,
	}
	page, hit, err := h.run(r.Context(), key, func() (*executor.Page, error) {
		return h.engine.BooleanQuery(r.Context(), req)
	})
	if err != nil {
		h.fail(w, r, event, start, err)
		return
	}
	h.succeed(w, r, event, start, page, hit)
}

// Tags serves GET /api/v1/tags?skip=&take=: tag names with document counts,
// in name order.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	skip, err := intParam(q.Get("skip"), 0, apperrors.ErrInvalidInput, "skip")
	if err == nil && skip < 0 {
		err = fmt.Errorf("%w: negative skip %d", apperrors.ErrInvalidInput, skip)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	take, err := intParam(q.Get("take"), defaultTagPage, apperrors.ErrInvalidPageSize, "take")
	if err == nil && (take < 1 || take > maxTagPage) {
		err = fmt.Errorf("%w: take %d not in [1,%d]", apperrors.ErrInvalidPageSize, take, maxTagPage)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ix := h.engine.Index()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"tags":  ix.TagCounts(skip, take),
		"total": len(ix.Tags()),
	})
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Index().Stats())
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.BreakerState().String(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// run answers from the page cache when one is configured. Only successful
// pages are cached.
func (h *Handler) run(ctx context.Context, key cache.Key, compute func() (*executor.Page, error)) (*executor.Page, bool, error) {
	if h.cache == nil {
		page, err := compute()
		return page, false, err
	}
	var computed *executor.Page
	entry, hit, err := h.cache.GetOrCompute(ctx, key, func() (*cache.Entry, error) {
		page, err := compute()
		if err != nil {
			return nil, err
		}
		computed = page
		return &cache.Entry{Positions: page.Positions, Stats: page.Stats}, nil
	})
	if err != nil {
		return nil, false, err
	}
	if h.metrics != nil {
		if hit {
			h.metrics.CacheHitsTotal.Inc()
		} else {
			h.metrics.CacheMissesTotal.Inc()
		}
	}
	if computed != nil {
		return computed, hit, nil
	}
	page, err := h.engine.Materialize(entry.Positions, entry.Stats)
	return page, hit, err
}

func (h *Handler) parseQuery(q map[string][]string) (executor.QueryRequest, error) {
	get := func(k string) string { return first(q[k]) }
	tag := parser.NormalizeTag(get("tag"))
	if tag == "" {
		return executor.QueryRequest{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'tag' is required")
	}
	field, pageSize, skip, err := h.parseWindow(get)
	if err != nil {
		return executor.QueryRequest{}, err
	}
	return executor.QueryRequest{
		Field:      field,
		Tag:        tag,
		PageSize:   pageSize,
		Skip:       skip,
		Exclusions: parser.ParseExclusions(get("exclude")),
	}, nil
}

func (h *Handler) parseBoolean(q map[string][]string) (executor.BooleanRequest, error) {
	get := func(k string) string { return first(q[k]) }
	tag1, tag2 := parser.NormalizeTag(get("tag1")), parser.NormalizeTag(get("tag2"))
	if tag1 == "" || tag2 == "" {
		return executor.BooleanRequest{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameters 'tag1' and 'tag2' are required")
	}
	op, err := parser.ParseOperator(get("op"))
	if err != nil {
		return executor.BooleanRequest{}, err
	}
	strategy := h.cfg.DefaultStrategy
	if s := get("strategy"); s != "" {
		if strategy, err = parser.ParseStrategy(s); err != nil {
			return executor.BooleanRequest{}, err
		}
	}
	field, pageSize, skip, err := h.parseWindow(get)
	if err != nil {
		return executor.BooleanRequest{}, err
	}
	return executor.BooleanRequest{
		Field:      field,
		Tag1:       tag1,
		Tag2:       tag2,
		Operator:   op,
		PageSize:   pageSize,
		Skip:       skip,
		Exclusions: parser.ParseExclusions(get("exclude")),
		Strategy:   strategy,
	}, nil
}

func (h *Handler) parseWindow(get func(string) string) (document.SortField, int, int, error) {
	field := h.cfg.DefaultSort
	if s := get("sort"); s != "" {
		var err error
		if field, err = document.ParseSortField(s); err != nil {
			return 0, 0, 0, err
		}
	}
	pageSize, err := intParam(get("pageSize"), h.cfg.DefaultPageSize, apperrors.ErrInvalidPageSize, "pageSize")
	if err != nil {
		return 0, 0, 0, err
	}
	if pageSize > h.cfg.MaxPageSize {
		return 0, 0, 0, fmt.Errorf("%w: %d exceeds %d", apperrors.ErrInvalidPageSize, pageSize, h.cfg.MaxPageSize)
	}
	skip, err := intParam(get("skip"), 0, apperrors.ErrInvalidInput, "skip")
	if err != nil {
		return 0, 0, 0, err
	}
	return field, pageSize, skip, nil
}

func intParam(raw string, def int, sentinel error, name string) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", sentinel, name, raw)
	}
	return v, nil
}

func first(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

func (h *Handler) succeed(w http.ResponseWriter, r *http.Request, event analytics.QueryEvent, start time.Time, page *executor.Page, hit bool) {
	latency := time.Since(start)
	event.Scanned, event.Excluded, event.Returned = page.Stats.Scanned, page.Stats.Excluded, page.Stats.Returned
	event.CacheHit = hit
	h.observe(r, event, latency, "ok")

	logger.FromContext(r.Context()).Info("query completed",
		"type", string(event.Type),
		"tag", event.Tag,
		"tag2", event.Tag2,
		"operator", event.Operator,
		"strategy", event.Strategy,
		"returned", page.Stats.Returned,
		"cache_hit", hit,
		"latency_ms", latency.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, Response{
		Results:  page.Documents,
		Count:    len(page.Documents),
		Stats:    page.Stats,
		CacheHit: hit,
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, event analytics.QueryEvent, start time.Time, err error) {
	event.Error = err.Error()
	outcome := "client_error"
	if !apperrors.IsQueryError(err) {
		outcome = "error"
	}
	h.observe(r, event, time.Since(start), outcome)
	h.writeError(w, r, err)
}

func (h *Handler) observe(r *http.Request, event analytics.QueryEvent, latency time.Duration, outcome string) {
	if h.metrics != nil {
		h.metrics.QueriesTotal.WithLabelValues(string(event.Type), event.Strategy, event.Operator, outcome).Inc()
		if outcome == "ok" {
			cacheStatus := "miss"
			if event.CacheHit {
				cacheStatus = "hit"
			}
			h.metrics.QueryLatency.WithLabelValues(event.Strategy, cacheStatus).Observe(latency.Seconds())
			h.metrics.QueryScanned.WithLabelValues(event.Strategy).Observe(float64(event.Scanned))
			h.metrics.QueryResultsCount.Observe(float64(event.Returned))
		}
	}
	if h.collector != nil {
		event.LatencyMs = latency.Milliseconds()
		event.RequestID = middleware.GetRequestID(r.Context())
		event.Timestamp = time.Now().UTC()
		h.collector.Track(event)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err onto a status. Server-side failures are logged and
// reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError && !errors.Is(err, apperrors.ErrTimeout) {
		logger.FromContext(r.Context()).Error("query failed", "path", r.URL.Path, "error", err)
		message = apperrors.ErrInternal.Error()
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
