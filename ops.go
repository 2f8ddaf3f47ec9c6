package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"grantwatch/internal/store"
	"grantwatch/metrics"
)

type statusResponse struct {
	State   string           `json:"state"`
	Stats   store.Stats      `json:"stats"`
	Metrics metrics.Snapshot `json:"metrics"`
	Sources int              `json:"configured_feeds"`
}

// handleStatus reports the runner state, store stats and metric counters.
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	stats, err := s.st.Stats(r.Context())
	if err != nil {
		http.Error(w, "stats unavailable", http.StatusInternalServerError)
		return
	}
	respondJSON(w, statusResponse{
		State:   s.runner.State(),
		Stats:   stats,
		Metrics: s.met.Snapshot(),
		Sources: len(s.cfg.FeedURLs),
	})
}

// handleHistory lists recent delivered grants, newest first.
func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	entries, err := s.st.ListHistory(r.Context(), limit)
	if err != nil {
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []store.HistoryEntry{}
	}
	respondJSON(w, entries)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.st.Health(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("respond json: %v", err)
	}
}
