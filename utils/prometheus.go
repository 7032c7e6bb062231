package utils

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PrometheusLoadsStarted  *prometheus.CounterVec
	PrometheusLoadsFinished *prometheus.CounterVec
	PrometheusLoadsFailed   *prometheus.CounterVec
	PrometheusRowsWritten   *prometheus.CounterVec
	PrometheusBytesUploaded *prometheus.CounterVec

	PrometheusLastLoadDuration *prometheus.GaugeVec
)

func StartPrometheus(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		err := http.ListenAndServe(":"+port, mux)
		if err != nil {
			logger.Error().Str("err", err.Error()).Msg("prometheus start error")
		}
	}()
	logger.Info().Str("port", port).Msg("Started prometheus")
}

func init() {
	var labelNames = []string{"handler", "method"}

	PrometheusLoadsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dlt_loads_started",
	}, labelNames)

	PrometheusLoadsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dlt_loads_finished",
	}, labelNames)

	PrometheusLoadsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dlt_loads_failed",
	}, []string{"handler", "method", "kind"})

	PrometheusRowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dlt_rows_written",
	}, labelNames)

	PrometheusBytesUploaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dlt_bytes_uploaded",
	}, []string{"handler"})

	PrometheusLastLoadDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dlt_last_load_duration_seconds",
	}, labelNames)
}
