package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/photo365/photo365/internal/memo"
)

// cacheCollectors 在所有列表缓存间共享，按 cache 标签区分。
type cacheCollectors struct {
	hits         *prometheus.CounterVec
	misses       *prometheus.CounterVec
	loads        *prometheus.CounterVec
	loadDuration *prometheus.HistogramVec
	evictions    *prometheus.CounterVec
}

var (
	cacheOnce sync.Once
	cacheVecs *cacheCollectors
)

// cacheMetrics 是 memo.Metrics 的 Prometheus 实现。
type cacheMetrics struct {
	name string
	vecs *cacheCollectors
}

// NewCacheMetrics 为名为 name 的列表缓存创建指标；未启用时返回 nil。
func NewCacheMetrics(name string) memo.Metrics {
	if !IsEnabled() {
		return nil
	}
	cacheOnce.Do(func() {
		reg := GetRegistry()
		cacheVecs = &cacheCollectors{
			hits: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "listing_cache_hits_total",
					Help:      "Listing cache lookups served from an existing entry",
				},
				[]string{"cache"},
			),
			misses: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "listing_cache_misses_total",
					Help:      "Listing cache lookups that started a load",
				},
				[]string{"cache"},
			),
			loads: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "listing_cache_loads_total",
					Help:      "Completed listing loads by status",
				},
				[]string{"cache", "status"},
			),
			loadDuration: promauto.With(reg).NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "listing_cache_load_duration_seconds",
					Help:      "Duration of directory enumerations behind the listing cache",
					Buckets: []float64{
						0.0005, // 500µs
						0.001,  // 1ms
						0.005,  // 5ms
						0.025,  // 25ms
						0.1,    // 100ms
						0.5,    // 500ms
						2.5,    // 2.5s
					},
				},
				[]string{"cache"},
			),
			evictions: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "listing_cache_evictions_total",
					Help:      "Listing cache entries dropped by the size bound",
				},
				[]string{"cache"},
			),
		}
	})
	return &cacheMetrics{name: name, vecs: cacheVecs}
}

func (m *cacheMetrics) ObserveHit() {
	m.vecs.hits.WithLabelValues(m.name).Inc()
}

func (m *cacheMetrics) ObserveMiss() {
	m.vecs.misses.WithLabelValues(m.name).Inc()
}

func (m *cacheMetrics) ObserveLoad(duration time.Duration, err error) {
	m.vecs.loads.WithLabelValues(m.name, status(err)).Inc()
	m.vecs.loadDuration.WithLabelValues(m.name).Observe(duration.Seconds())
}

func (m *cacheMetrics) ObserveEviction() {
	m.vecs.evictions.WithLabelValues(m.name).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
