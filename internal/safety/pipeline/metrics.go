package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inputProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_input_processed_total",
		Help: "User inputs processed, by terminal pipeline action",
	}, []string{"clinic_id", "action"})

	outputProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_output_processed_total",
		Help: "AI outputs processed, by terminal pipeline action",
	}, []string{"clinic_id", "action"})

	detectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_detections_total",
		Help: "Safety detections, by detector",
	}, []string{"clinic_id", "detector"})

	processingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "safety_processing_duration_seconds",
		Help:    "Time to run a message through the safety pipeline",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"stage"})
)
