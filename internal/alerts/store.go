package alerts

import (
	"sync"
	"time"

	"authguard/internal/model"
)

// Store is a bounded in-memory ring of recent alerts, queryable only by
// tenant. Patches for an ongoing burst merge into the existing entry by
// correlation id instead of appending a duplicate.
type Store struct {
	mu    sync.RWMutex
	buf   []model.ThreatAlert
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

func (s *Store) Add(alert model.ThreatAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, alert)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = alert
}

// Merge folds a patch into the alert sharing its correlation id. The
// patch may raise confidence and severity and extends evidence; it
// never lowers either. Unknown correlation ids append (the original may
// have rotated out of the ring).
func (s *Store) Merge(patch model.ThreatAlert) {
	s.mu.Lock()
	for i := len(s.buf) - 1; i >= 0; i-- {
		if s.buf[i].CorrelationID != patch.CorrelationID || s.buf[i].TenantID != patch.TenantID {
			continue
		}
		existing := &s.buf[i]
		if patch.Confidence > existing.Confidence {
			existing.Confidence = patch.Confidence
			existing.Severity = patch.Severity
		}
		existing.Evidence.Attempts = patch.Evidence.Attempts
		existing.Evidence.LastSeen = patch.Evidence.LastSeen
		if len(patch.Evidence.EventRefs) > 0 {
			existing.Evidence.EventRefs = patch.Evidence.EventRefs
		}
		existing.Updated = true
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.Add(patch)
}

// List returns up to limit most recent alerts for one tenant, oldest
// first. The tenant id is mandatory; there is no cross-tenant listing.
func (s *Store) List(tenantID string, limit int) []model.ThreatAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ThreatAlert, 0)
	for _, a := range s.buf {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (s *Store) Since(tenantID string, ts time.Time) []model.ThreatAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ThreatAlert, 0)
	for _, a := range s.buf {
		if a.TenantID == tenantID && !a.Timestamp.Before(ts) {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
