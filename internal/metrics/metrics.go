package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReserveSlotDuration tracks the latency of slot reservation
	ReserveSlotDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "slot_reserve_duration_seconds",
			Help: "Duration of slot reservation requests in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
				10.0,  // 10s
			},
		},
		[]string{"status"}, // success or failure
	)

	// ActivatedSlots counts slots promoted from unopened to available
	ActivatedSlots = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slot_activated_total",
			Help: "Total number of slots promoted to available",
		},
	)
)

// RecordReserveSlotDuration records the duration of a slot reservation request
func RecordReserveSlotDuration(status string, duration float64) {
	ReserveSlotDuration.WithLabelValues(status).Observe(duration)
}

// RecordActivatedSlots adds n to the activation counter
func RecordActivatedSlots(n int) {
	ActivatedSlots.Add(float64(n))
}
