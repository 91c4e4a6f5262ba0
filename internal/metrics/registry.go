// Package metrics exposes Prometheus collectors for the listing caches and
// the thumbnail pipeline.
//
// Metrics are optional. Until InitRegistry is called every constructor
// returns nil and the instrumented components fall back to their built-in
// no-op implementations.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "photo365"

var (
	// registry 只写一次，由 registryOnce 保护。
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry 初始化全局 registry 并注册 Go 运行时与进程指标，重复调用无副作用。
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry 返回全局 registry，未初始化时为 nil。
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled 报告是否已启用指标采集。
func IsEnabled() bool {
	return GetRegistry() != nil
}

// Handler 返回暴露指标的 HTTP handler；未启用时返回 503。
func Handler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics collection is disabled\n"))
		})
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
