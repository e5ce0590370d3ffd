package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Monotonic counters exposed on the operational API. Every dropped
// event is observable here; silent loss is not an option.
var (
	EventsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authguard",
		Name:      "events_processed_total",
		Help:      "Total normalized authentication events accepted into the engine.",
	})
	EventsDroppedMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authguard",
		Name:      "events_dropped_malformed_total",
		Help:      "Events dropped because required fields could not be extracted.",
	})
	EventsDroppedStale = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authguard",
		Name:      "events_dropped_stale_total",
		Help:      "Events dropped for timestamps outside the accepted skew bounds.",
	})
	EventsDroppedBackpressure = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authguard",
		Name:      "events_dropped_backpressure_total",
		Help:      "Events dropped because the ingestion channel was full.",
	})
	TenantFallback = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authguard",
		Name:      "tenant_fallback_total",
		Help:      "Resolutions that fell back to the default tenant.",
	})
	AlertsRaised = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authguard",
		Name:      "alerts_raised_total",
		Help:      "New brute-force alerts raised.",
	})
	AlertsUpdated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authguard",
		Name:      "alerts_updated_total",
		Help:      "Updates appended to an ongoing alert burst.",
	})
	AlertsDroppedQueueFull = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "authguard",
		Name:      "alerts_dropped_queue_full_total",
		Help:      "Alerts dropped because the outbound queue was full.",
	})
)

// Register attaches all collectors to the supplied registerer.
// Double registration is tolerated so tests can share the default
// registry.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		EventsProcessed,
		EventsDroppedMalformed,
		EventsDroppedStale,
		EventsDroppedBackpressure,
		TenantFallback,
		AlertsRaised,
		AlertsUpdated,
		AlertsDroppedQueueFull,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}
