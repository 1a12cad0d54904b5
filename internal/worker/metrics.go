package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "worker",
		Name:      "jobs_submitted_total",
		Help:      "Jobs accepted by the pool",
	}, []string{"pool"})

	jobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "worker",
		Name:      "jobs_completed_total",
		Help:      "Jobs that returned normally",
	}, []string{"pool"})

	jobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "worker",
		Name:      "jobs_failed_total",
		Help:      "Jobs that panicked",
	}, []string{"pool"})

	jobsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "framestream",
		Subsystem: "worker",
		Name:      "jobs_rejected_total",
		Help:      "Submissions refused because the pool was closed or saturated",
	}, []string{"pool", "reason"})

	slotsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "framestream",
		Subsystem: "worker",
		Name:      "slots",
		Help:      "Slots allocated in the pool",
	}, []string{"pool"})

	slotsBusy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "framestream",
		Subsystem: "worker",
		Name:      "busy_slots",
		Help:      "Slots currently running a job",
	}, []string{"pool"})
)
