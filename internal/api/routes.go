package api

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/recordcache/internal/cache"
	"github.com/onnwee/recordcache/internal/metrics"
)

// NewRouter wires the cache handlers into a mux router.
func NewRouter(c *cache.Cache[Document], statsInterval time.Duration) *mux.Router {
	h := NewHandler(c, statsInterval)
	r := mux.NewRouter()

	// Point operations
	r.HandleFunc("/api/cache/{key}", h.PutDocument).Methods("PUT")
	r.HandleFunc("/api/cache/{key}", h.GetDocument).Methods("GET")
	r.HandleFunc("/api/cache/{key}", h.HeadDocument).Methods("HEAD")
	r.HandleFunc("/api/cache/{key}", h.DeleteDocument).Methods("DELETE")

	// Batch operations
	r.HandleFunc("/api/cache", h.PutBatch).Methods("POST")
	r.HandleFunc("/api/cache", h.GetBatch).Methods("GET")
	r.HandleFunc("/api/cache", h.DeleteBatch).Methods("DELETE")

	// Admin
	r.HandleFunc("/api/admin/cache/invalidate", h.InvalidateCache).Methods("POST")
	r.HandleFunc("/api/admin/cache/stats", h.GetCacheStats).Methods("GET")

	// Observability
	r.HandleFunc("/healthz", Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/ws/stats", h.StatsStream)

	r.Use(instrument)

	return r
}

// instrument records per-route request counts and latencies.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		recordHTTPMetrics(route, sw.status, time.Since(start))
	})
}

func recordHTTPMetrics(route string, status int, elapsed time.Duration) {
	metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack passes through to the underlying writer so the websocket upgrade
// still works behind the instrumentation wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}
