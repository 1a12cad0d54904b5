package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "relay",
		Name:      "frames_ingested_total",
		Help:      "Wire messages saved to disk",
	})

	bytesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "relay",
		Name:      "bytes_ingested_total",
		Help:      "Payload bytes saved to disk",
	})

	ingestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "relay",
		Name:      "errors_total",
		Help:      "Wire messages rejected by the relay",
	}, []string{"reason"})
)
