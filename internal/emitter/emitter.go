package emitter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"authguard/internal/alerts"
	"authguard/internal/metrics"
	"authguard/internal/model"
	"authguard/internal/storage"
)

// Emitter decouples alert delivery from the aggregation path. Enqueue
// never blocks: a full queue drops the alert and bumps a counter, so a
// slow or unavailable sink degrades alerting throughput, never
// ingestion.
type Emitter struct {
	queue  chan model.ThreatAlert
	store  *alerts.Store
	sink   storage.Store
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
	done   chan struct{}
}

func New(queueSize int, store *alerts.Store, sink storage.Store, logger *slog.Logger) *Emitter {
	if queueSize <= 0 {
		queueSize = 1000
	}
	e := &Emitter{
		queue:  make(chan model.ThreatAlert, queueSize),
		store:  store,
		sink:   sink,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go e.drain()
	return e
}

// Emit hands an alert (or a correlation-scoped patch, Updated=true) to
// the drain worker. Fire and forget from the detector's perspective.
// The queue channel is never closed, and the send attempt happens under
// the same lock Close takes, so Emit can race Close without panicking.
func (e *Emitter) Emit(alert model.ThreatAlert) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		metrics.AlertsDroppedQueueFull.Inc()
		return
	}
	select {
	case e.queue <- alert:
		e.mu.Unlock()
	default:
		e.mu.Unlock()
		metrics.AlertsDroppedQueueFull.Inc()
		if e.logger != nil {
			e.logger.Warn("alert queue full, dropping alert",
				"tenant_id", alert.TenantID,
				"correlation_id", alert.CorrelationID,
			)
		}
	}
}

func (e *Emitter) drain() {
	defer close(e.done)
	for {
		select {
		case alert := <-e.queue:
			e.deliver(alert)
		case <-e.stop:
			// Flush whatever made it into the queue before Close.
			for {
				select {
				case alert := <-e.queue:
					e.deliver(alert)
				default:
					return
				}
			}
		}
	}
}

func (e *Emitter) deliver(alert model.ThreatAlert) {
	if e.store != nil {
		if alert.Updated {
			e.store.Merge(alert)
		} else {
			e.store.Add(alert)
		}
	}
	if e.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var err error
	if alert.Updated {
		err = e.sink.UpdateAlert(ctx, alert)
	} else {
		err = e.sink.SaveAlert(ctx, alert)
	}
	if err != nil && e.logger != nil {
		e.logger.Warn("alert sink write failed",
			"tenant_id", alert.TenantID,
			"correlation_id", alert.CorrelationID,
			"err", err,
		)
	}
}

// Close stops accepting alerts and waits for the drain worker to flush
// the queue, for at most grace. Past the grace period whatever is still
// queued is abandoned and counted as dropped. Never blocks
// indefinitely.
func (e *Emitter) Close(grace time.Duration) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	close(e.stop)

	if grace <= 0 {
		grace = 5 * time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-e.done:
	case <-timer.C:
		remaining := len(e.queue)
		if remaining > 0 && e.logger != nil {
			e.logger.Warn("shutdown grace expired, abandoning queued alerts", "count", remaining)
		}
		for i := 0; i < remaining; i++ {
			metrics.AlertsDroppedQueueFull.Inc()
		}
	}
}
