package metrics

import (
	"sync"
	"time"

	"authguard/internal/model"
)

type snapEntry struct {
	snap model.WindowSnapshot
	at   time.Time
}

// Store keeps the latest window snapshot per key for the operational
// API. Snapshots are indexed tenant-first so one tenant's view can
// never include another's keys. Both the tenant count and the key count
// per tenant are bounded: past the limit the least recently updated
// entry is evicted, so a tenant spraying distinct sources cannot grow
// the store without bound.
type Store struct {
	mu        sync.RWMutex
	byTenant  map[string]map[model.WindowKey]snapEntry
	updatedAt map[string]time.Time
	limit     int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		byTenant:  make(map[string]map[model.WindowKey]snapEntry),
		updatedAt: make(map[string]time.Time),
		limit:     limit,
	}
}

func (s *Store) Update(snap model.WindowSnapshot) {
	if snap.Key.TenantID == "" {
		return
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byTenant[snap.Key.TenantID]
	if !ok {
		m = make(map[model.WindowKey]snapEntry)
		s.byTenant[snap.Key.TenantID] = m
	}
	m[snap.Key] = snapEntry{snap: snap, at: now}
	if len(m) > s.limit {
		evictOldestKey(m)
	}
	s.updatedAt[snap.Key.TenantID] = now
	if len(s.byTenant) > s.limit {
		s.evictOldestTenant()
	}
}

// Remove drops snapshots for keys the aggregator no longer tracks.
func (s *Store) Remove(keys []model.WindowKey) {
	if len(keys) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		m, ok := s.byTenant[key.TenantID]
		if !ok {
			continue
		}
		delete(m, key)
		if len(m) == 0 {
			delete(s.byTenant, key.TenantID)
			delete(s.updatedAt, key.TenantID)
		}
	}
}

func (s *Store) Get(tenantID string) ([]model.WindowSnapshot, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byTenant[tenantID]
	if !ok {
		return nil, time.Time{}, false
	}
	out := make([]model.WindowSnapshot, 0, len(m))
	for _, e := range m {
		out = append(out, e.snap)
	}
	return out, s.updatedAt[tenantID], true
}

func (s *Store) Tenants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byTenant))
	for tenantID := range s.byTenant {
		out = append(out, tenantID)
	}
	return out
}

func evictOldestKey(m map[model.WindowKey]snapEntry) {
	var oldestKey model.WindowKey
	var oldest time.Time
	first := true
	for key, e := range m {
		if first || e.at.Before(oldest) {
			oldestKey = key
			oldest = e.at
			first = false
		}
	}
	if !first {
		delete(m, oldestKey)
	}
}

func (s *Store) evictOldestTenant() {
	var oldestTenant string
	var oldest time.Time
	for tenantID, ts := range s.updatedAt {
		if oldestTenant == "" || ts.Before(oldest) {
			oldestTenant = tenantID
			oldest = ts
		}
	}
	if oldestTenant != "" {
		delete(s.byTenant, oldestTenant)
		delete(s.updatedAt, oldestTenant)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTenant = make(map[string]map[model.WindowKey]snapEntry)
	s.updatedAt = make(map[string]time.Time)
}
