package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/katscan/pkg/client"
	"github.com/Sternrassler/katscan/pkg/collection"
	"github.com/Sternrassler/katscan/pkg/logging"
	"github.com/Sternrassler/katscan/pkg/metrics"
	"github.com/Sternrassler/katscan/pkg/pagination"
)

const headerRequestID = "X-Request-ID"

// Query keys with a meaning of their own; every other key is a trait filter.
const (
	paramPage     = "page"
	paramPageSize = "pageSize"
	paramFetchAll = "fetchAll"
)

type server struct {
	api            *client.Client
	status         *client.Client // nil disables /api/kasplex/nft/stats
	batch          *pagination.BatchFetcher
	redis          *redis.Client
	logger         zerolog.Logger
	requestTimeout time.Duration
}

func newServer(api, status *client.Client, batch *pagination.BatchFetcher, redisClient *redis.Client, logger zerolog.Logger) *server {
	return &server{
		api:            api,
		status:         status,
		batch:          batch,
		redis:          redisClient,
		logger:         logger.With().Str("component", "proxy").Logger(),
		requestTimeout: 30 * time.Second,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/nft/list", s.handleList)
	mux.HandleFunc("GET /api/nft/tick/{id}", s.handleTick)
	if s.status != nil {
		mux.HandleFunc("GET /api/kasplex/nft/stats", s.handleStats)
	}
	return s.withRequestID(mux)
}

// tickResponse mirrors the envelope the web front-end consumes.
type tickResponse struct {
	Entries    []collection.Item   `json:"entries"`
	TickInfo   *collection.Info    `json:"tickInfo"`
	Pagination collection.PageMeta `json:"pagination"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Readiness check failed: redis unreachable")
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// handleList passes the upstream collection list through unchanged.
func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	s.passThrough(w, r, s.api, client.EndpointList)
}

// handleStats passes the KRC-721 indexer status through unchanged.
func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.passThrough(w, r, s.status, "")
}

func (s *server) passThrough(w http.ResponseWriter, r *http.Request, upstream *client.Client, endpoint string) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	resp, err := upstream.Get(ctx, endpoint, nil)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	if v := resp.Header.Get("X-Cache"); v != "" {
		w.Header().Set("X-Cache", v)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, resp.Body); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to write pass-through response")
	}
}

func (s *server) handleTick(w http.ResponseWriter, r *http.Request) {
	tick := r.PathValue("id")
	if tick == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid token id"})
		return
	}

	q, err := parseTickQuery(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	logger := zerolog.Ctx(r.Context())
	pageSize := q.pageSize
	if pageSize == 0 {
		pageSize = s.api.PageSize()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	var resp tickResponse
	if q.fetchAll {
		batch := s.batch
		if pageSize != s.api.PageSize() {
			batch = batch.WithSource(s.api.Windowed(pageSize))
		}
		result, err := batch.FetchAll(ctx, tick, q.filters)
		if err != nil {
			s.writeUpstreamError(w, r, err)
			return
		}
		// The envelope describes the requested page, as for a single page.
		meta := result.Meta
		meta.CurrentPage = q.page
		meta.HasMorePages = q.page < meta.TotalPages
		resp = tickResponse{Entries: result.Items, TickInfo: result.Info, Pagination: meta}
	} else {
		page, err := s.api.FetchWindow(ctx, tick, q.page, pageSize, q.filters)
		if err != nil {
			s.writeUpstreamError(w, r, err)
			return
		}
		resp = tickResponse{Entries: page.Items, TickInfo: page.Info, Pagination: page.Meta}
	}
	if resp.Entries == nil {
		resp.Entries = []collection.Item{}
	}

	logger.Debug().
		Str("tick", tick).
		Int("page", resp.Pagination.CurrentPage).
		Int("entries", len(resp.Entries)).
		Int("filters", len(q.filters)).
		Bool("fetch_all", q.fetchAll).
		Msg("Served tick")

	writeJSON(w, http.StatusOK, resp)
}

type tickQuery struct {
	page     int
	pageSize int
	fetchAll bool
	filters  collection.Filters
}

func parseTickQuery(values url.Values) (tickQuery, error) {
	q := tickQuery{page: 1, filters: collection.Filters{}}

	if v := values.Get(paramPage); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return q, fmt.Errorf("invalid page %q", v)
		}
		q.page = page
	}
	if v := values.Get(paramPageSize); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 1 {
			return q, fmt.Errorf("invalid pageSize %q", v)
		}
		q.pageSize = size
	}
	q.fetchAll = values.Get(paramFetchAll) == "true"

	for key, vals := range values {
		switch key {
		case paramPage, paramPageSize, paramFetchAll:
			continue
		}
		if len(vals) > 0 && vals[0] != "" {
			q.filters[key] = vals[0]
		}
	}
	return q, nil
}

// writeUpstreamError maps a failed upstream call to a status. Upstream 4xx
// statuses pass through, blocked requests are 503, deadlines 504 and
// everything else 502.
func (s *server) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Class == client.ErrorClassClient:
		status = apiErr.StatusCode
	case errors.Is(err, client.ErrRequestBlocked):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	zerolog.Ctx(r.Context()).Error().
		Err(err).
		Str("error_class", string(client.ClassOf(err))).
		Int("status_code", status).
		Msg("Upstream request failed")

	writeJSON(w, status, errorResponse{Error: fmt.Sprintf("upstream request failed: %v", err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestID tags each request with an X-Request-ID, reusing a valid
// incoming one, and logs the request once it completes.
func (s *server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)

		logger := logging.WithRequestID(s.logger, id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r.WithContext(logger.WithContext(r.Context())))

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
