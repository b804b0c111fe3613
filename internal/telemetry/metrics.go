package telemetry

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aleksandr-gorokhov/komprender/internal/logging"
)

const namespace = "komprender"

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "sessions_active",
		Help: "Consumption sessions currently running",
	})
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "sessions_total",
		Help: "Finished consumption sessions by viewing mode and outcome",
	}, []string{"mode", "outcome"})
	RecordsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "records_emitted_total",
		Help: "Decoded records handed to emission sinks",
	})
	DecodeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "decode_total",
		Help: "Payloads decoded, by the strategy that accepted them",
	}, []string{"strategy"})
	DecodeDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "decode_dropped_total",
		Help: "Payloads dropped because no strategy could interpret them",
	})
	WatermarkErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "watermark_errors_total",
		Help: "Partition watermark queries that failed or timed out",
	})
)

// Expose serves /metrics on port in the background. The returned server is
// owned by the caller and should be shut down with the host process.
func Expose(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("metrics listener stopped", "port", port, "err", err)
		}
	}()
	return srv
}
