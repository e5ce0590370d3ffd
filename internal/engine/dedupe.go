package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"authguard/internal/model"
)

// DedupeCache suppresses duplicate deliveries at the ingestion
// boundary. Callers that supply a stable raw_ref get best-effort
// idempotence; without one the event content is hashed, which still
// catches producer retries. Beyond the cache TTL the guarantee is
// at-least-once.
type DedupeCache struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewDedupeCache() *DedupeCache {
	return &DedupeCache{items: make(map[string]time.Time)}
}

func (d *DedupeCache) Seen(key string, now time.Time, ttl time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ts, ok := d.items[key]; ok {
		if now.Sub(ts) <= ttl {
			return true
		}
	}
	d.items[key] = now
	if len(d.items) > 10000 {
		d.compact(now, ttl)
	}
	return false
}

func (d *DedupeCache) compact(now time.Time, ttl time.Duration) {
	for k, ts := range d.items {
		if now.Sub(ts) > ttl {
			delete(d.items, k)
		}
	}
}

// dedupeKey is always tenant-prefixed; suppression state never crosses
// tenants even when producers reuse refs.
func dedupeKey(ev model.AuthEvent) string {
	if ev.RawRef != "" {
		return ev.TenantID + "|" + ev.RawRef
	}
	parts := ev.TenantID + "|" + ev.SourceIP.String() + "|" + ev.Username + "|" +
		string(ev.Outcome) + "|" + ev.Timestamp.UTC().Format(time.RFC3339Nano)
	h := sha256.Sum256([]byte(parts))
	return hex.EncodeToString(h[:])
}
