package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"FaceValServer/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

var (
	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_megabytes",
		Help: "Memory usage in megabytes",
	})
	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})

	// ValidationTotal counts validation requests received.
	ValidationTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "validation_requests_total",
		Help: "Total number of face validation requests processed",
	})
	// ValidationFailures counts requests that ended in a processing error.
	ValidationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "validation_failures_total",
		Help: "Total number of face validation requests that failed",
	})
	// ProcessingSeconds observes end-to-end pipeline latency.
	ProcessingSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "validation_processing_seconds",
		Help:    "Face validation pipeline latency in seconds",
		Buckets: prometheus.DefBuckets,
	})
)

var (
	proc process.Process
	srv  *http.Server
)

func serveMetrics(port int) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(memUsage, cpuUsage, ValidationTotal, ValidationFailures, ProcessingSeconds)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("metrics server stopped", zap.Error(err))
		}
	}()
}

func sampleProcess() {
	memInfo, err := proc.MemoryInfo()
	if err == nil {
		memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	}
	cpuPercent, err := proc.CPUPercent()
	if err == nil {
		cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	}
}

// StartMon serves the metrics endpoint on port and samples process
// cpu/memory every 500ms until ctx is cancelled.
func StartMon(port int, ctx context.Context) {
	proc = process.Process{Pid: int32(os.Getpid())}
	serveMetrics(port)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
sample:
	for {
		select {
		case <-ctx.Done():
			break sample
		case <-ticker.C:
			sampleProcess()
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Error("metrics server shutdown", zap.Error(err))
	}
}
