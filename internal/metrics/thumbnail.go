package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/photo365/photo365/internal/thumbnail"
)

type thumbnailMetrics struct {
	reused           prometheus.Counter
	generated        *prometheus.CounterVec
	generateDuration prometheus.Histogram
}

var (
	thumbOnce sync.Once
	thumbImpl *thumbnailMetrics
)

// NewThumbnailMetrics 返回派生图复用/生成指标；未启用时返回 nil。
func NewThumbnailMetrics() thumbnail.Metrics {
	if !IsEnabled() {
		return nil
	}
	thumbOnce.Do(func() {
		reg := GetRegistry()
		thumbImpl = &thumbnailMetrics{
			reused: promauto.With(reg).NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "thumbnail_reused_total",
					Help:      "Derivative requests served from an existing file",
				},
			),
			generated: promauto.With(reg).NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "thumbnail_generated_total",
					Help:      "Derivative renders by status",
				},
				[]string{"status"},
			),
			generateDuration: promauto.With(reg).NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "thumbnail_generate_duration_seconds",
					Help:      "Resize, encode and persist time per derivative",
					Buckets: []float64{
						0.01, // 10ms
						0.05, // 50ms
						0.1,  // 100ms
						0.25, // 250ms
						0.5,  // 500ms
						1,    // 1s
						2.5,  // 2.5s
						5,    // 5s
					},
				},
			),
		}
	})
	return thumbImpl
}

func (m *thumbnailMetrics) ObserveReuse() {
	m.reused.Inc()
}

func (m *thumbnailMetrics) ObserveGenerate(duration time.Duration, err error) {
	m.generated.WithLabelValues(status(err)).Inc()
	m.generateDuration.Observe(duration.Seconds())
}
