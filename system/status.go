package system

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type Stats struct {
	hits atomic.Uint64
	t1   time.Time
}

func NewStats() *Stats {
	return &Stats{t1: time.Now()}
}

func (s *Stats) Hit() { s.hits.Add(1) }

func (s *Stats) Hits() uint64 { return s.hits.Load() }

// StatsSnapshot is the /status body.
type StatsSnapshot struct {
	Hits    uint64  `json:"hits"`
	Average float64 `json:"hits-per-second,omitempty"`
	Uptime  float64 `json:"uptime,omitempty"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{Hits: s.Hits()}
	if !s.t1.IsZero() {
		snap.Uptime = time.Since(s.t1).Truncate(time.Second).Seconds()
		if snap.Uptime > 0 {
			snap.Average = math.Round(float64(snap.Hits)/snap.Uptime*100) / 100
		}
	}
	return snap
}

func (s *System) StatusHandler(w http.ResponseWriter, r *http.Request) {
	serveJSON(w, r, http.StatusOK, s.Stats.Snapshot())
}

// HealthHandler pings the store.
func (s *System) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		logger(r).Warn("store ping failed", zap.Error(err))
		serveJsonError(w, r, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	serveJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

type JSONError struct {
	Error string `json:"error"`
}

func serveJsonError(w http.ResponseWriter, r *http.Request, e string, code int) {
	serveJSON(w, r, code, JSONError{e})
}

func serveJSON(w http.ResponseWriter, r *http.Request, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger(r).Debug("writing json", zap.Error(err))
	}
}
