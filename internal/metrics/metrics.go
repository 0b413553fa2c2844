package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"lending/internal/errs"
	"lending/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lending holds the service's collectors. Each instance owns a registry so
// tests can build as many as they like.
type Lending struct {
	registry    *prometheus.Registry
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	poolTotals  *prometheus.GaugeVec
	httpLatency *prometheus.HistogramVec
}

func New() *Lending {
	m := &Lending{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lending_operations_total",
				Help: "Ledger mutations by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lending_operation_duration_seconds",
				Help:    "Time spent inside one atomic ledger mutation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		poolTotals: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lending_pool_total_units",
				Help: "Pool totals in underlying units after the last committed mutation.",
			},
			[]string{"asset", "side"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_requests_latency_seconds",
				Help:    "Latency of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
	m.registry.MustRegister(m.operations, m.latency, m.poolTotals, m.httpLatency)
	return m
}

// ObserveOperation counts one mutation. The outcome label is "ok" or the
// error code.
func (m *Lending) ObserveOperation(kind models.OperationKind, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = errs.Code(err)
		if errors.Is(err, errs.ErrInsufficientCollateral) {
			outcome = "denied"
		}
	}
	m.operations.WithLabelValues(string(kind), outcome).Inc()
	m.latency.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (m *Lending) ObservePool(pool models.Pool) {
	m.poolTotals.WithLabelValues(pool.AssetID, "deposited").Set(float64(pool.TotalDeposited))
	m.poolTotals.WithLabelValues(pool.AssetID, "borrowed").Set(float64(pool.TotalBorrowed))
}

func (m *Lending) ForgetPool(assetID string) {
	m.poolTotals.DeleteLabelValues(assetID, "deposited")
	m.poolTotals.DeleteLabelValues(assetID, "borrowed")
}

// Handler serves the registry at /metrics.
func (m *Lending) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("%T does not support hijacking", w.ResponseWriter)
	}
	w.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// HTTP records request latency labelled by chi route pattern.
func (m *Lending) HTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.httpLatency.WithLabelValues(r.Method, routePattern(r), strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
