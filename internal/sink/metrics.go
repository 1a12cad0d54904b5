package sink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "sink",
		Name:      "frames_total",
		Help:      "Frames delivered per sink",
	}, []string{"sink"})

	bytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "sink",
		Name:      "bytes_total",
		Help:      "Bytes delivered per sink",
	}, []string{"sink"})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "sink",
		Name:      "frames_dropped_total",
		Help:      "Frames a sink could not deliver",
	}, []string{"sink", "reason"})
)
