package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/target/towertrack-portal/internal/errors"
	obserrors "github.com/target/towertrack-portal/internal/observability/errors"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Role lookup outcomes.
const (
	LookupLocalHit  = "local_hit"
	LookupSharedHit = "shared_hit"
	LookupStale     = "stale_served"
	LookupFetched   = "fetched"
	LookupError     = "error"
)

// Options configures collector construction.
type Options struct {
	Registerer prometheus.Registerer
	Namespace  string
	Buckets    []float64
}

// Portal holds every collector the portal exports. A nil *Portal is a valid no-op sink.
type Portal struct {
	GuardDecisions *prometheus.CounterVec
	RoleLookups    *prometheus.CounterVec
	RoleFetch      *prometheus.HistogramVec
	StaleDiscards  prometheus.Counter
	SessionOps     *prometheus.CounterVec
	ActivePortals  prometheus.Gauge
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	HTTPInFlight   prometheus.Gauge
}

// New constructs and registers the portal collectors. Collectors that are already
// registered (for example by a previous call in tests) are reused.
func New(opts Options) (*Portal, error) {
	ns := opts.Namespace
	if ns == "" {
		ns = "portal"
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	var (
		p   Portal
		err error
	)
	if p.GuardDecisions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "guard", Name: "decisions_total",
		Help: "Route guard decisions partitioned by guard and decision.",
	}, []string{"guard", "decision"})); err != nil {
		return nil, err
	}
	if p.RoleLookups, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "role", Name: "lookups_total",
		Help: "Role lookups partitioned by outcome (cache tier hit, fetch, error).",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if p.RoleFetch, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "role", Name: "fetch_duration_seconds",
		Help: "Latency of backend role fetches.", Buckets: buckets,
	}, []string{"result", "error_class"})); err != nil {
		return nil, err
	}
	if p.StaleDiscards, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "role", Name: "stale_discarded_total",
		Help: "Role results discarded because the identity changed while the fetch was in flight.",
	})); err != nil {
		return nil, err
	}
	if p.SessionOps, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "session", Name: "operations_total",
		Help: "Backend session bridge operations partitioned by op and result.",
	}, []string{"op", "result"})); err != nil {
		return nil, err
	}
	if p.ActivePortals, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "active_sessions",
		Help: "Browser sessions currently held in memory.",
	})); err != nil {
		return nil, err
	}
	if p.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "http", Name: "requests_total",
		Help: "Total number of HTTP requests partitioned by method, route, and status code.",
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}
	if p.HTTPDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "Histogram of HTTP request latencies in seconds partitioned by method, route, and status code.",
		Buckets: buckets,
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}
	if p.HTTPInFlight, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: "http", Name: "in_flight_requests",
		Help: "Current number of in-flight HTTP requests.",
	})); err != nil {
		return nil, err
	}
	return &p, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

// GuardDecision counts one guard evaluation.
func (p *Portal) GuardDecision(guard, decision string) {
	if p == nil {
		return
	}
	p.GuardDecisions.WithLabelValues(guard, decision).Inc()
}

// RoleLookup counts a lookup outcome.
func (p *Portal) RoleLookup(outcome string) {
	if p == nil {
		return
	}
	p.RoleLookups.WithLabelValues(outcome).Inc()
}

// RoleFetched records a backend fetch latency and result.
func (p *Portal) RoleFetched(d time.Duration, err error) {
	if p == nil {
		return
	}
	result, class := ResultSuccess, ""
	if err != nil {
		result, class = ResultError, ErrorClass(err)
	}
	p.RoleFetch.WithLabelValues(result, class).Observe(d.Seconds())
}

// StaleDiscarded counts a discarded late role result.
func (p *Portal) StaleDiscarded() {
	if p == nil {
		return
	}
	p.StaleDiscards.Inc()
}

// SessionOp counts a session bridge operation.
func (p *Portal) SessionOp(op string, err error) {
	if p == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	p.SessionOps.WithLabelValues(op, result).Inc()
}

// PortalOpened and PortalClosed track the in-memory session count.
func (p *Portal) PortalOpened() {
	if p == nil {
		return
	}
	p.ActivePortals.Inc()
}

func (p *Portal) PortalClosed() {
	if p == nil {
		return
	}
	p.ActivePortals.Dec()
}

// ErrorClass prefers the application error code and falls back to the concrete error type.
func ErrorClass(err error) string {
	if err == nil {
		return ""
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	return obserrors.Classify(err)
}
