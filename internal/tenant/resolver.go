package tenant

import (
	"log/slog"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"authguard/internal/config"
	"authguard/internal/metrics"
)

// rangeEntry pairs one CIDR with its owning tenant. Entries keep the
// order they appear in configuration; overlapping ranges resolve to the
// first match.
type rangeEntry struct {
	prefix netip.Prefix
	tenant string
}

type table struct {
	entries       []rangeEntry
	defaultTenant string
}

// Resolver maps source addresses to tenant identifiers. Resolution
// never fails: unmatched addresses fall back to the default tenant.
// The range table is swapped as a whole on reload, and a TTL-bounded
// LRU caches results for the identical-source bursts typical of
// brute-force traffic.
type Resolver struct {
	tbl    atomic.Value
	cache  atomic.Value
	size   int
	ttl    time.Duration
	logger *slog.Logger
}

func NewResolver(cfg config.TenantsConfig, logger *slog.Logger) *Resolver {
	r := &Resolver{
		size:   cfg.CacheSize,
		ttl:    cfg.CacheTTL,
		logger: logger,
	}
	if r.size <= 0 {
		r.size = 4096
	}
	if r.ttl <= 0 {
		r.ttl = 30 * time.Second
	}
	r.Update(cfg)
	return r
}

// Update installs a new range table. Readers never observe a partial
// table; the cache is rebuilt so no stale mapping survives the swap.
func (r *Resolver) Update(cfg config.TenantsConfig) {
	t := &table{defaultTenant: cfg.Default}
	if t.defaultTenant == "" {
		t.defaultTenant = "default"
	}
	for _, tr := range cfg.Ranges {
		for _, c := range tr.CIDRs {
			prefix, err := netip.ParsePrefix(c)
			if err != nil {
				if r.logger != nil {
					r.logger.Warn("skipping invalid tenant cidr", "tenant", tr.ID, "cidr", c, "err", err)
				}
				continue
			}
			t.entries = append(t.entries, rangeEntry{prefix: prefix.Masked(), tenant: tr.ID})
		}
	}
	r.tbl.Store(t)
	r.cache.Store(expirable.NewLRU[netip.Addr, string](r.size, nil, r.ttl))
}

// Resolve returns the owning tenant for an address. First matching
// configured range wins; the default tenant is returned otherwise and
// counted so operators can spot configuration gaps.
func (r *Resolver) Resolve(ip netip.Addr) string {
	ip = ip.Unmap()
	cache := r.cache.Load().(*expirable.LRU[netip.Addr, string])
	if tenant, ok := cache.Get(ip); ok {
		return tenant
	}
	t := r.tbl.Load().(*table)
	tenant := t.defaultTenant
	matched := false
	for _, e := range t.entries {
		if e.prefix.Contains(ip) {
			tenant = e.tenant
			matched = true
			break
		}
	}
	if !matched {
		metrics.TenantFallback.Inc()
	}
	cache.Add(ip, tenant)
	return tenant
}

// DefaultTenant reports the configured fallback tenant.
func (r *Resolver) DefaultTenant() string {
	return r.tbl.Load().(*table).defaultTenant
}
