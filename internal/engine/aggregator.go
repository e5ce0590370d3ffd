package engine

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"authguard/internal/config"
	"authguard/internal/model"
)

// KeyResult is the outcome of recording one event against one of its
// window keys.
type KeyResult struct {
	Snapshot model.WindowSnapshot
	Decision Decision
	Refs     []string
}

type shard struct {
	mu     sync.Mutex
	states map[model.WindowKey]*WindowState
}

// Aggregator owns all per-key sliding window state, sharded by key hash
// so keys for different tenants and sources do not contend. Mutation of
// one WindowState is serialized by its shard lock; no operation ever
// takes more than one shard lock.
type Aggregator struct {
	shards []*shard
	mask   uint32
}

func NewAggregator(shardCount int) *Aggregator {
	n := 1
	for n < shardCount {
		n <<= 1
	}
	a := &Aggregator{shards: make([]*shard, n), mask: uint32(n - 1)}
	for i := range a.shards {
		a.shards[i] = &shard{states: make(map[model.WindowKey]*WindowState)}
	}
	return a
}

func (a *Aggregator) shardFor(key model.WindowKey) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.String()))
	return a.shards[h.Sum32()&a.mask]
}

func keysFor(ev model.AuthEvent) []model.WindowKey {
	keys := make([]model.WindowKey, 0, 2)
	keys = append(keys, model.WindowKey{TenantID: ev.TenantID, Dimension: model.DimSourceIP, Value: ev.SourceIP.String()})
	if ev.Username != "" {
		keys = append(keys, model.WindowKey{TenantID: ev.TenantID, Dimension: model.DimUsername, Value: ev.Username})
	}
	return keys
}

// Process records the event into both of its window keys and evaluates
// each against the threshold. Success events become reset signals when
// the config says so; they never count as failures.
func (a *Aggregator) Process(ev model.AuthEvent, cfg *config.Config) []KeyResult {
	det := cfg.Detection
	cutoff := ev.Timestamp.Add(-det.Window)
	results := make([]KeyResult, 0, 2)

	// One event can cross the threshold on both dimensions at once.
	// That is one attack, not two: the second key joins the first
	// key's burst instead of raising a duplicate alert.
	burstID := ""

	for _, key := range keysFor(ev) {
		sh := a.shardFor(key)
		sh.mu.Lock()
		st, ok := sh.states[key]
		if !ok {
			st = NewWindowState(key, det.Window)
			sh.states[key] = st
		}
		st.Evict(cutoff)

		if ev.Outcome == model.OutcomeFailure {
			st.RecordFailure(ev.Timestamp, ev.RawRef)
		} else if det.ResetOnSuccess {
			st.Resolve(ev.Timestamp)
		} else {
			st.lastTouched = ev.Timestamp
		}

		snap := st.Snapshot()
		res := KeyResult{Snapshot: snap, Decision: Decision{Kind: NoAction}}
		if ev.Outcome == model.OutcomeFailure {
			res.Decision = decide(snap.Failures, det.Threshold, st.alerted, st.correlationID)
			if res.Decision.Kind == RaiseAlert {
				st.alerted = true
				if burstID != "" {
					st.correlationID = burstID
					res.Decision.Kind = NoAction
				} else {
					st.correlationID = uuid.NewString()
					burstID = st.correlationID
					res.Decision.CorrelationID = st.correlationID
				}
			}
			if res.Decision.Kind != NoAction {
				res.Refs = st.EventRefs(det.MaxEventRefs)
			}
		}
		sh.mu.Unlock()
		results = append(results, res)
	}
	return results
}

// Sweep removes keys idle past the grace period and returns them so
// callers can retire dependent state, like API snapshots. It never
// removes a key that still holds un-evicted entries inside the active
// window.
func (a *Aggregator) Sweep(now time.Time, window, idleGrace time.Duration) []model.WindowKey {
	idleCutoff := now.Add(-idleGrace)
	var removed []model.WindowKey
	for _, sh := range a.shards {
		sh.mu.Lock()
		for key, st := range sh.states {
			st.Evict(now.Add(-window))
			if st.Idle(idleCutoff) {
				delete(sh.states, key)
				removed = append(removed, key)
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// KeyCount reports the number of tracked keys across all shards.
func (a *Aggregator) KeyCount() int {
	total := 0
	for _, sh := range a.shards {
		sh.mu.Lock()
		total += len(sh.states)
		sh.mu.Unlock()
	}
	return total
}

// Reset drops all window state.
func (a *Aggregator) Reset() {
	for _, sh := range a.shards {
		sh.mu.Lock()
		sh.states = make(map[model.WindowKey]*WindowState)
		sh.mu.Unlock()
	}
}
