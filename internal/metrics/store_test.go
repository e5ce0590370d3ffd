package metrics

import (
	"fmt"
	"testing"

	"authguard/internal/model"
)

func snapFor(tenant, value string, failures int) model.WindowSnapshot {
	return model.WindowSnapshot{
		Key:      model.WindowKey{TenantID: tenant, Dimension: model.DimSourceIP, Value: value},
		Failures: failures,
	}
}

func TestStoreBoundsKeysPerTenant(t *testing.T) {
	s := NewStore(10)
	for i := 0; i < 1000; i++ {
		s.Update(snapFor("t1", fmt.Sprintf("10.0.%d.%d", i/256, i%256), 1))
	}
	snaps, _, ok := s.Get("t1")
	if !ok {
		t.Fatalf("tenant missing")
	}
	if len(snaps) > 10 {
		t.Fatalf("per-tenant snapshots unbounded: %d retained with limit 10", len(snaps))
	}
}

func TestStoreUpdateReplacesNotGrows(t *testing.T) {
	s := NewStore(10)
	for i := 1; i <= 5; i++ {
		s.Update(snapFor("t1", "10.0.0.1", i))
	}
	snaps, _, _ := s.Get("t1")
	if len(snaps) != 1 {
		t.Fatalf("same key duplicated: %d entries", len(snaps))
	}
	if snaps[0].Failures != 5 {
		t.Fatalf("stale snapshot retained: %+v", snaps[0])
	}
}

func TestStoreRemoveDropsSweptKeys(t *testing.T) {
	s := NewStore(10)
	keep := snapFor("t1", "10.0.0.1", 3)
	gone := snapFor("t1", "10.0.0.2", 1)
	s.Update(keep)
	s.Update(gone)

	s.Remove([]model.WindowKey{gone.Key})
	snaps, _, ok := s.Get("t1")
	if !ok || len(snaps) != 1 {
		t.Fatalf("remove dropped wrong entries: %+v", snaps)
	}
	if snaps[0].Key != keep.Key {
		t.Fatalf("surviving key mismatch: %+v", snaps[0].Key)
	}

	// Removing the last key retires the tenant entirely.
	s.Remove([]model.WindowKey{keep.Key})
	if _, _, ok := s.Get("t1"); ok {
		t.Fatalf("empty tenant still listed")
	}
}

func TestStoreTenantIsolation(t *testing.T) {
	s := NewStore(10)
	s.Update(snapFor("t1", "10.0.0.1", 2))
	s.Update(snapFor("t2", "10.0.0.1", 4))
	snaps, _, _ := s.Get("t1")
	if len(snaps) != 1 || snaps[0].Key.TenantID != "t1" {
		t.Fatalf("cross-tenant snapshot leak: %+v", snaps)
	}
}
