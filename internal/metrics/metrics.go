// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Marks counts attendance submissions by result: created, duplicate, not_recognized,
	// not_found, error.
	Marks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campusattend",
		Name:      "marks_total",
		Help:      "Attendance mark requests by result.",
	}, []string{"result"})

	RecognitionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campusattend",
		Name:      "recognition_attempts_total",
		Help:      "Face identification attempts by outcome.",
	}, []string{"outcome"})

	RecognitionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "campusattend",
		Name:      "recognition_duration_seconds",
		Help:      "Time spent identifying a capture.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "campusattend",
		Name:      "notifications_total",
		Help:      "Defaulter notices by outcome.",
	}, []string{"outcome"})

	Defaulters = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "campusattend",
		Name:      "defaulters",
		Help:      "Students below the attendance threshold at the last computation.",
	})
)
