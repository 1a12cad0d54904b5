package streaming

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "framestream",
		Subsystem: "socket",
		Name:      "sessions",
		Help:      "Connected websocket sessions",
	})

	sessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "socket",
		Name:      "sessions_total",
		Help:      "Websocket sessions accepted",
	})

	messagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "socket",
		Name:      "messages_sent_total",
		Help:      "Binary messages written to sessions",
	})

	bytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "socket",
		Name:      "bytes_sent_total",
		Help:      "Bytes written to sessions",
	})

	sendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "socket",
		Name:      "send_errors_total",
		Help:      "Session writes that failed and closed the session",
	})

	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "socket",
		Name:      "messages_received_total",
		Help:      "Binary messages read, by side (server or client)",
	}, []string{"side"})

	reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "socket",
		Name:      "client_reconnects_total",
		Help:      "Client dial attempts after a lost or failed connection",
	})
)
