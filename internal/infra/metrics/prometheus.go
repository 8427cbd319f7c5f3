package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embryo_analyses_total",
		Help: "Total number of analysis requests, by mode and outcome",
	}, []string{"mode", "outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "embryo_analysis_stage_duration_seconds",
		Help:    "Duration of each analysis pipeline stage",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"stage"})

	GateDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embryo_gate_decisions_total",
		Help: "Content gate decisions, by method and verdict",
	}, []string{"method", "verdict"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embryo_frames_sampled_total",
		Help: "Total number of frames sampled across all analyses",
	})

	InferenceInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embryo_inference_in_flight",
		Help: "Number of model forward passes currently running",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embryo_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embryo_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})

	ModelLoaded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "embryo_model_loaded",
		Help: "1 when the named model is loaded, 0 otherwise",
	}, []string{"model"})
)
