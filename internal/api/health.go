package api

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse reports service liveness and canonical store status.
type HealthResponse struct {
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Uptime    string     `json:"uptime,omitempty"`
	Store     StoreStats `json:"store"`
}

// StoreStats summarizes what the canonical store has ingested so far.
type StoreStats struct {
	Reachable    bool       `json:"reachable"`
	BatchCount   int        `json:"batch_count"`
	LastLoadedAt *time.Time `json:"last_loaded_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}

var startTime = time.Now()

// HandleHealth reports liveness plus a store probe, so one request tells
// an operator whether the API can actually serve canonical data and how
// fresh it is.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(startTime).String(),
		Store:     StoreStats{Reachable: true},
	}

	batches, err := s.store.ListBatches(ctx)
	if err != nil {
		response.Status = "degraded"
		response.Store.Reachable = false
		response.Store.Error = err.Error()
		s.respondJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	response.Store.BatchCount = len(batches)
	for _, b := range batches {
		if response.Store.LastLoadedAt == nil || b.LoadedAt.After(*response.Store.LastLoadedAt) {
			loadedAt := b.LoadedAt
			response.Store.LastLoadedAt = &loadedAt
		}
	}

	s.respondJSON(w, http.StatusOK, response)
}
