package system

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	contacts *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	m := &metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dojod",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dojod",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		contacts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dojod",
			Name:      "contact_submissions_total",
			Help:      "Contact form submissions by result.",
		}, []string{"result"}),
	}
	for _, result := range []string{"stored", "incomplete", "error"} {
		m.contacts.WithLabelValues(result)
	}
	return m
}

func (m *metrics) observe(r *http.Request, code int, took time.Duration) {
	route := "unmatched"
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			route = p
		}
	}
	m.requests.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(r.Method, route).Observe(took.Seconds())
}

func (s *System) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// HitCounter http middleware that logs and counts
func (s *System) HitCounter(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t1 := time.Now()
		s.Stats.Hit()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		h.ServeHTTP(ww, r)
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		took := time.Since(t1)
		s.metrics.observe(r, code, took)
		logger(r).Info("http", append(logr(r), zap.Int("status", code), zap.Duration("took", took))...)
	})
}
