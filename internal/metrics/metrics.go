// Package metrics instruments the certificate service and the gRPC
// transport with Prometheus collectors and serves the ops endpoints.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const namespace = "certvault"

// Metrics holds the collectors.
type Metrics struct {
	rpcs          *prometheus.CounterVec
	rpcLatency    *prometheus.HistogramVec
	calls         *prometheus.CounterVec
	callLatency   *prometheus.HistogramVec
	verifications *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rpcs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "grpc", Name: "requests_total",
			Help: "Handled gRPC requests by method and status code.",
		}, []string{"method", "code"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "grpc", Name: "request_duration_seconds",
			Help:    "gRPC request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "certificates", Name: "calls_total",
			Help: "Certificate service calls by method and error kind.",
		}, []string{"method", "kind"}),
		callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "certificates", Name: "call_duration_seconds",
			Help:    "Certificate service call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "certificates", Name: "verifications_total",
			Help: "Verification outcomes by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.rpcs, m.rpcLatency, m.calls, m.callLatency, m.verifications)
	return m
}

// UnaryServerInterceptor counts requests and observes their latency.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		begin := time.Now()
		resp, err := next(ctx, req)
		m.rpcs.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		m.rpcLatency.WithLabelValues(info.FullMethod).Observe(time.Since(begin).Seconds())
		return resp, err
	}
}
