package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BoundaryFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metromap_boundary_fetch_total",
		Help: "Boundary GeoJSON fetches by source and status",
	}, []string{"source", "status"})
	BoundaryFetchDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "metromap_boundary_fetch_duration_ms",
		Help:    "Boundary GeoJSON fetch duration in milliseconds",
		Buckets: []float64{50, 100, 200, 500, 1000, 2000, 5000, 10000},
	}, []string{"source"})
	RefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metromap_refresh_total",
		Help: "Dataset refreshes by status",
	}, []string{"status"})
	RefreshDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "metromap_refresh_duration_ms",
		Help:    "Dataset refresh duration in milliseconds",
		Buckets: []float64{100, 200, 500, 1000, 2000, 5000, 10000, 30000},
	})
	RegionsKept = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "metromap_regions_kept",
		Help: "Regions kept after the proximity filter in the current snapshot",
	})
	MatchFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "metromap_match_fallback_total",
		Help: "Stations matched by nearest centroid instead of containment",
	})
	MalformedRingTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "metromap_malformed_ring_total",
		Help: "Containment tests skipped because of malformed ring data",
	})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "metromap_cache_hits_total",
		Help: "Popup cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "metromap_cache_misses_total",
		Help: "Popup cache misses",
	})
	ChatRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metromap_chat_requests_total",
		Help: "Chat requests forwarded to the chat service by status",
	}, []string{"status"})
	ChatDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "metromap_chat_duration_ms",
		Help:    "Chat service call duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})
	DBErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metromap_db_errors_total",
		Help: "Database query errors by query",
	}, []string{"query"})
)

func init() {
	prometheus.MustRegister(BoundaryFetchTotal)
	prometheus.MustRegister(BoundaryFetchDurationMs)
	prometheus.MustRegister(RefreshTotal)
	prometheus.MustRegister(RefreshDurationMs)
	prometheus.MustRegister(RegionsKept)
	prometheus.MustRegister(MatchFallbackTotal)
	prometheus.MustRegister(MalformedRingTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(ChatRequestsTotal)
	prometheus.MustRegister(ChatDurationMs)
	prometheus.MustRegister(DBErrorsTotal)
}

// Handler：返回 Prometheus 指标处理器，在主入口挂载到 <API_BASE>/metrics
func Handler() http.Handler { return promhttp.Handler() }
