package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/elonfeng/trendpulse/internal/scheduler"
	"github.com/elonfeng/trendpulse/internal/store"
	"github.com/elonfeng/trendpulse/pkg/feed"
	"github.com/elonfeng/trendpulse/pkg/trend"
)

var searchWindows = map[string]time.Duration{
	"hour": time.Hour,
	"day":  24 * time.Hour,
	"week": 168 * time.Hour,
}

// Server provides the HTTP API.
type Server struct {
	store      store.Store
	aggregator *trend.Aggregator
	sched      *scheduler.Scheduler
	log        *zap.Logger
	port       int
}

// New creates a new HTTP server.
func New(s store.Store, aggregator *trend.Aggregator, sched *scheduler.Scheduler, port int, log *zap.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		store:      s,
		aggregator: aggregator,
		sched:      sched,
		log:        log,
		port:       port,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/trending", s.handleTrending)
	mux.HandleFunc("/api/v1/trending/stats", s.handleStats)
	mux.HandleFunc("/api/v1/popularity", s.handlePopularity)
	mux.HandleFunc("/api/v1/search", s.handleSearch)
	mux.HandleFunc("/api/v1/fetch", s.handleFetch)
	mux.HandleFunc("/api/v1/status", s.handleStatus)

	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("server listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil || limit <= 0 {
			limit = 20
		}
	}

	topics, err := s.aggregator.TrendingTopics(r.Context(), limit)
	if err != nil {
		s.log.Error("trending query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch trending topics"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(topics),
		"data":  topics,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	stats, err := s.aggregator.Stats(r.Context())
	if err != nil {
		s.log.Error("stats query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch topic statistics"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": stats})
}

func (s *Server) handlePopularity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	topic := r.URL.Query().Get("topic")
	source := r.URL.Query().Get("source")
	if topic == "" || source == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "topic and source are required"})
		return
	}

	samples, err := s.store.SampleHistory(r.Context(), topic, feed.Source(source))
	if err != nil {
		s.log.Error("popularity query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch popularity data"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(samples),
		"data":  samples,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	keyword := r.URL.Query().Get("keyword")
	if keyword == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "keyword is required"})
		return
	}

	window, ok := searchWindows[r.URL.Query().Get("timeRange")]
	if !ok {
		window = searchWindows["day"]
	}

	mentions, err := s.store.SearchMentions(r.Context(), keyword, time.Now().UTC().Add(-window))
	if err != nil {
		s.log.Error("search failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "search failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(mentions),
		"data":  mentions,
	})
}

// handleFetch manually triggers an ingestion cycle. A trigger during an
// active cycle is dropped and reported as a conflict.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	// Detached from the request context: the cycle outlives the request.
	if !s.sched.TriggerAsync(context.Background()) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "ingest cycle already running"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	writeJSON(w, http.StatusOK, s.sched.Status())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
