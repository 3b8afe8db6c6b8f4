package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports storage reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

const pingTimeout = 2 * time.Second

// NewOpsRouter serves /metrics, /health (liveness) and /ready (storage ping).
func NewOpsRouter(g prometheus.Gatherer, db Pinger, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "pass")
	})
	r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), pingTimeout)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			log.Warn("readiness check failed", zap.Error(err))
			writeStatus(w, http.StatusServiceUnavailable, "fail")
			return
		}
		writeStatus(w, http.StatusOK, "pass")
	})
	return r
}

func writeStatus(w http.ResponseWriter, code int, s string) {
	w.Header().Set("Content-Type", "application/health+json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": s})
}
