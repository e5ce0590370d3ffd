package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"authguard/internal/config"
	"authguard/internal/metrics"
	"authguard/internal/model"
	"authguard/internal/normalize"
)

// SendNonBlocking forwards an event to the shared ingestion channel.
// A full channel drops the event and counts it; producers never stall
// on the detection path.
func SendNonBlocking(ctx context.Context, out chan<- model.AuthEvent, ev model.AuthEvent, logger *slog.Logger) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	default:
		metrics.EventsDroppedBackpressure.Inc()
		if logger != nil {
			logger.Warn("event channel full, dropping event", "tenant_id", ev.TenantID, "source_ip", ev.SourceIP)
		}
		return false
	}
}

// processRecord normalizes a parsed record and forwards it. Malformed
// and stale records are dropped and counted, never forwarded.
func processRecord(ctx context.Context, cfg *config.Manager, rec *model.RawRecord, out chan<- model.AuthEvent, logger *slog.Logger) bool {
	if rec == nil {
		return false
	}
	ev, err := normalize.Normalize(*rec, cfg.Get(), time.Now().UTC())
	if err != nil {
		var malformed *normalize.MalformedEventError
		var stale *normalize.StaleEventError
		switch {
		case errors.As(err, &malformed):
			metrics.EventsDroppedMalformed.Inc()
		case errors.As(err, &stale):
			metrics.EventsDroppedStale.Inc()
		}
		if logger != nil {
			logger.Debug("event rejected", "err", err)
		}
		return false
	}
	return SendNonBlocking(ctx, out, ev, logger)
}

func processLine(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.AuthEvent, logger *slog.Logger, line string) {
	rec, err := parser.ParseLine(line)
	if err != nil || rec == nil {
		return
	}
	processRecord(ctx, cfg, rec, out, logger)
}

// BackoffSleep pauses between reconnect attempts, honoring cancel.
func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
