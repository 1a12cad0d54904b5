package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	captureEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "pipeline",
		Name:      "capture_events_total",
		Help:      "Capture events by scheduler decision",
	}, []string{"decision"})

	framesProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "pipeline",
		Name:      "frames_produced_total",
		Help:      "Frames dispatched (sync) or scheduled for dispatch (async)",
	}, []string{"source", "mode"})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "pipeline",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped before reaching a sink",
	}, []string{"source", "reason"})

	rotations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "pipeline",
		Name:      "rotations_total",
		Help:      "Active window rotations",
	})

	encodeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "framestream",
		Subsystem: "pipeline",
		Name:      "encode_duration_seconds",
		Help:      "Time spent encoding one frame",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	streamingEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "framestream",
		Subsystem: "pipeline",
		Name:      "streaming_enabled",
		Help:      "1 when streaming is enabled",
	})
)
