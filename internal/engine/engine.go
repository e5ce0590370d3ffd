package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"authguard/internal/config"
	"authguard/internal/emitter"
	"authguard/internal/metrics"
	"authguard/internal/model"
	"authguard/internal/tenant"
)

// Engine ties tenant resolution, sliding-window aggregation, threshold
// detection and alert emission together. Producers feed it through a
// shared channel; per-key ordering is arrival order on that channel.
type Engine struct {
	logger   *slog.Logger
	metrics  *metrics.Store
	emitter  *emitter.Emitter
	resolver *tenant.Resolver
	agg      *Aggregator
	cfg      atomic.Value
	deDupe   *DedupeCache
	cooldown *Cooldown
	started  time.Time
}

func NewEngine(cfg *config.Config, logger *slog.Logger, metricsStore *metrics.Store, resolver *tenant.Resolver, em *emitter.Emitter) *Engine {
	e := &Engine{
		logger:   logger,
		metrics:  metricsStore,
		emitter:  em,
		resolver: resolver,
		agg:      NewAggregator(cfg.Detection.Shards),
		deDupe:   NewDedupeCache(),
		cooldown: NewCooldown(),
		started:  time.Now().UTC(),
	}
	e.cfg.Store(cfg)
	return e
}

// UpdateConfig swaps detection parameters and the tenant range table.
// In-flight evaluations finish against the old snapshot.
func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.cfg.Store(cfg)
	if e.resolver != nil {
		e.resolver.Update(cfg.Tenants)
	}
}

func (e *Engine) config() *config.Config {
	if v := e.cfg.Load(); v != nil {
		return v.(*config.Config)
	}
	return config.DefaultConfig()
}

// Start consumes event batches until the context is cancelled. The
// idle-key sweeper runs alongside.
func (e *Engine) Start(ctx context.Context, in <-chan []model.AuthEvent) {
	go func() {
		for {
			select {
			case batch := <-in:
				e.ProcessBatch(batch)
			case <-ctx.Done():
				return
			}
		}
	}()
	go e.sweepLoop(ctx)
}

func (e *Engine) sweepLoop(ctx context.Context) {
	for {
		cfg := e.config().Detection
		timer := time.NewTimer(cfg.SweepInterval)
		select {
		case <-timer.C:
			removed := e.agg.Sweep(time.Now().UTC(), cfg.Window, cfg.IdleGrace)
			if len(removed) > 0 {
				if e.metrics != nil {
					e.metrics.Remove(removed)
				}
				if e.logger != nil {
					e.logger.Debug("swept idle window keys", "removed", len(removed))
				}
			}
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (e *Engine) ProcessBatch(batch []model.AuthEvent) {
	for _, ev := range batch {
		e.ProcessEvent(ev)
	}
}

// ProcessEvent runs one event through the full pipeline and returns any
// alerts emitted, for callers that want the decisions synchronously.
func (e *Engine) ProcessEvent(ev model.AuthEvent) []model.ThreatAlert {
	cfg := e.config()
	now := time.Now().UTC()

	if ev.TenantID == "" {
		if e.resolver != nil {
			ev.TenantID = e.resolver.Resolve(ev.SourceIP)
		} else {
			ev.TenantID = cfg.Tenants.Default
		}
	}

	// Dedupe after tenant resolution: the key carries the tenant, so
	// identical refs from different tenants never suppress each other.
	if cfg.Ingest.DedupeWindow > 0 && e.deDupe.Seen(dedupeKey(ev), now, cfg.Ingest.DedupeWindow) {
		return nil
	}
	metrics.EventsProcessed.Inc()

	var out []model.ThreatAlert
	for _, res := range e.agg.Process(ev, cfg) {
		if e.metrics != nil {
			e.metrics.Update(res.Snapshot)
		}
		switch res.Decision.Kind {
		case RaiseAlert:
			alert := e.buildAlert(ev, res, cfg, false)
			metrics.AlertsRaised.Inc()
			if e.logger != nil {
				e.logger.Warn("brute force alert raised",
					"tenant_id", alert.TenantID,
					"dimension", res.Snapshot.Key.Dimension,
					"value", res.Snapshot.Key.Value,
					"failures", res.Snapshot.Failures,
					"confidence", alert.Confidence,
					"severity", alert.Severity,
					"correlation_id", alert.CorrelationID,
				)
			}
			if e.emitter != nil {
				e.emitter.Emit(alert)
			}
			out = append(out, alert)
		case UpdateAlert:
			if !e.cooldown.Allow(res.Decision.CorrelationID, now, cfg.Detection.UpdateInterval) {
				continue
			}
			patch := e.buildAlert(ev, res, cfg, true)
			metrics.AlertsUpdated.Inc()
			if e.emitter != nil {
				e.emitter.Emit(patch)
			}
			out = append(out, patch)
		}
	}
	return out
}

func (e *Engine) buildAlert(ev model.AuthEvent, res KeyResult, cfg *config.Config, update bool) model.ThreatAlert {
	key := res.Snapshot.Key
	var title, username string
	sourceIP := ev.SourceIP.String()
	switch key.Dimension {
	case model.DimUsername:
		username = key.Value
		title = fmt.Sprintf("Brute-force attack against user %s", username)
	default:
		sourceIP = key.Value
		title = fmt.Sprintf("Brute-force attack from %s", sourceIP)
	}
	return model.ThreatAlert{
		ID:        uuid.NewString(),
		TenantID:  key.TenantID,
		AlertType: model.AlertTypeBruteForce,
		Severity:  res.Decision.Severity,
		Title:     title,
		Description: fmt.Sprintf("%d failed %s authentication attempts within %s",
			res.Snapshot.Failures, ev.Protocol, cfg.Detection.Window),
		SourceIP:   sourceIP,
		Username:   username,
		Timestamp:  time.Now().UTC(),
		Confidence: res.Decision.Confidence,
		Evidence: model.Evidence{
			Attempts:  res.Snapshot.Failures,
			WindowSec: int(cfg.Detection.Window.Seconds()),
			FirstSeen: res.Snapshot.Oldest,
			LastSeen:  res.Snapshot.Newest,
			EventRefs: res.Refs,
			Metadata: map[string]string{
				"protocol":  ev.Protocol,
				"dimension": string(key.Dimension),
			},
		},
		CorrelationID: res.Decision.CorrelationID,
		Updated:       update,
	}
}

// Reset drops all aggregation and suppression state.
func (e *Engine) Reset() {
	e.agg.Reset()
	e.deDupe = NewDedupeCache()
	e.cooldown = NewCooldown()
}

// KeyCount reports tracked window keys, for the status endpoint.
func (e *Engine) KeyCount() int {
	return e.agg.KeyCount()
}
