package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters for the core operations.
type Metrics struct {
	ParticipantsRegistered prometheus.Counter
	MaterialsSubmitted     prometheus.Counter
	TransfersRecorded      prometheus.Counter
	TransfersRejected      *prometheus.CounterVec
}

var (
	once sync.Once
	def  *Metrics
)

// Default returns the process-wide metrics, registering them on first use.
func Default() *Metrics {
	once.Do(func() {
		def = &Metrics{
			ParticipantsRegistered: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scavenger_participants_registered_total",
				Help: "Total number of participants registered",
			}),
			MaterialsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scavenger_materials_submitted_total",
				Help: "Total number of materials submitted",
			}),
			TransfersRecorded: promauto.NewCounter(prometheus.CounterOpts{
				Name: "scavenger_transfers_recorded_total",
				Help: "Total number of ownership transfers recorded",
			}),
			TransfersRejected: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "scavenger_transfers_rejected_total",
				Help: "Total number of transfers rejected, by guard",
			}, []string{"reason"}),
		}
	})
	return def
}
