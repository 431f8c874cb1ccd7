package logger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics registry for Prometheus metrics

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors",
		},
		[]string{"service", "error_type"},
	)

	IndicatorComputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indicator_compute_duration_seconds",
			Help:    "Time spent computing an indicator frame",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"scope"},
	)

	NormalizerRowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "normalizer_rows_dropped_total",
			Help: "Raw rows dropped by the series normalizer",
		},
		[]string{"reason"},
	)

	DatasetReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataset_reloads_total",
			Help: "Dataset (re)loads by result",
		},
		[]string{"result"},
	)

	DatasetInstruments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataset_instruments",
			Help: "Number of instruments in the cached dataset",
		},
	)

	SnapshotExcluded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_instruments_excluded_total",
			Help: "Instruments left out of a snapshot table",
		},
		[]string{"reason"},
	)

	SignalsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_detected_total",
			Help: "Signals emitted by the detector per rule family",
		},
		[]string{"rule"},
	)
)
