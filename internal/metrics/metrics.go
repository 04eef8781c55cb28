package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pickforge"

// Sync run outcomes
const (
	SyncOK      = "ok"
	SyncError   = "error"
	SyncSkipped = "skipped"
	SyncDropped = "dropped"
)

// Metrics holds the service's Prometheus instruments. A nil *Metrics is
// valid and records nothing, so components can run without it in tests.
type Metrics struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	picks            *prometheus.CounterVec
	syncRuns         *prometheus.CounterVec
	resultsUpserted  prometheus.Counter
	picksGraded      *prometheus.CounterVec
	wsConnections    prometheus.Gauge
}

// New creates the instruments on a dedicated registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Requests sent to the odds provider.",
		}, []string{"endpoint", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of odds provider requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "odds_cache_lookups_total",
			Help:      "Odds cache lookups by result.",
		}, []string{"result"}),
		picks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "picks_total",
			Help:      "Pick decisions by outcome and reason.",
		}, []string{"decision", "reason"}),
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_sync_runs_total",
			Help:      "Result sync jobs by outcome.",
		}, []string{"outcome"}),
		resultsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "game_results_upserted_total",
			Help:      "Game result rows written by result sync.",
		}),
		picksGraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "picks_graded_total",
			Help:      "Picks settled by result.",
		}, []string{"result"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open websocket connections.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.upstreamRequests,
		m.upstreamLatency,
		m.cacheLookups,
		m.picks,
		m.syncRuns,
		m.resultsUpserted,
		m.picksGraded,
		m.wsConnections,
	)
	return m
}

// Handler exposes the registry for scraping
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveUpstream records one provider request
func (m *Metrics) ObserveUpstream(endpoint string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.upstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	m.upstreamLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// CacheLookup records an odds cache hit or miss
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// PickAccepted records accepted picks
func (m *Metrics) PickAccepted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.picks.WithLabelValues("accepted", "").Add(float64(n))
}

// PickRejected records one rejected pick
func (m *Metrics) PickRejected(reason string) {
	if m == nil {
		return
	}
	m.picks.WithLabelValues("rejected", reason).Inc()
}

// SyncRun records the outcome of a result sync job
func (m *Metrics) SyncRun(outcome string) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(outcome).Inc()
}

// ResultsUpserted records game rows written by a sync job
func (m *Metrics) ResultsUpserted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.resultsUpserted.Add(float64(n))
}

// PickGraded records one settled pick
func (m *Metrics) PickGraded(result string) {
	if m == nil {
		return
	}
	m.picksGraded.WithLabelValues(result).Inc()
}

// SetWebsocketConnections sets the open connection gauge
func (m *Metrics) SetWebsocketConnections(n int) {
	if m == nil {
		return
	}
	m.wsConnections.Set(float64(n))
}
