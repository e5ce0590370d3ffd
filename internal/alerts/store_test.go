package alerts

import (
	"fmt"
	"testing"
	"time"

	"authguard/internal/model"
)

func alert(tenant, correlationID string, confidence float64) model.ThreatAlert {
	sev := model.SeverityWarning
	if confidence > 0.8 {
		sev = model.SeverityCritical
	}
	return model.ThreatAlert{
		ID:            "a-" + correlationID,
		TenantID:      tenant,
		AlertType:     model.AlertTypeBruteForce,
		Severity:      sev,
		Confidence:    confidence,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	}
}

func TestStoreRingEvictsOldest(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 5; i++ {
		s.Add(alert("t1", fmt.Sprintf("c-%d", i), 0.5))
	}
	got := s.List("t1", 0)
	if len(got) != 3 {
		t.Fatalf("ring size: got %d, want 3", len(got))
	}
	if got[0].CorrelationID != "c-2" || got[2].CorrelationID != "c-4" {
		t.Fatalf("wrong survivors: %s .. %s", got[0].CorrelationID, got[2].CorrelationID)
	}
}

func TestMergeRaisesButNeverLowers(t *testing.T) {
	s := NewStore(10)
	s.Add(alert("t1", "c-1", 0.5))

	patch := alert("t1", "c-1", 0.9)
	patch.Updated = true
	patch.Evidence.Attempts = 9
	s.Merge(patch)

	got := s.List("t1", 0)
	if len(got) != 1 {
		t.Fatalf("merge appended instead of folding: %d entries", len(got))
	}
	if got[0].Confidence != 0.9 || got[0].Severity != model.SeverityCritical {
		t.Fatalf("confidence/severity not raised: %+v", got[0])
	}
	if got[0].Evidence.Attempts != 9 {
		t.Fatalf("evidence not updated: %+v", got[0].Evidence)
	}

	lower := alert("t1", "c-1", 0.3)
	lower.Updated = true
	s.Merge(lower)
	got = s.List("t1", 0)
	if got[0].Confidence != 0.9 {
		t.Fatalf("merge lowered confidence to %v", got[0].Confidence)
	}
}

func TestMergeUnknownCorrelationAppends(t *testing.T) {
	s := NewStore(10)
	patch := alert("t1", "c-gone", 0.6)
	patch.Updated = true
	s.Merge(patch)
	if got := s.List("t1", 0); len(got) != 1 {
		t.Fatalf("orphan patch not kept: %d entries", len(got))
	}
}

func TestListIsTenantScoped(t *testing.T) {
	s := NewStore(10)
	s.Add(alert("t1", "c-1", 0.5))
	s.Add(alert("t2", "c-2", 0.5))
	s.Add(alert("t1", "c-3", 0.5))

	if got := s.List("t1", 0); len(got) != 2 {
		t.Fatalf("t1: got %d, want 2", len(got))
	}
	if got := s.List("t2", 0); len(got) != 1 || got[0].CorrelationID != "c-2" {
		t.Fatalf("t2 leak: %+v", got)
	}
	if got := s.List("", 0); len(got) != 0 {
		t.Fatalf("empty tenant must list nothing, got %d", len(got))
	}
}

func TestSinceFiltersByTimestamp(t *testing.T) {
	s := NewStore(10)
	old := alert("t1", "c-old", 0.5)
	old.Timestamp = time.Now().Add(-time.Hour)
	s.Add(old)
	s.Add(alert("t1", "c-new", 0.5))

	got := s.Since("t1", time.Now().Add(-time.Minute))
	if len(got) != 1 || got[0].CorrelationID != "c-new" {
		t.Fatalf("since filter: %+v", got)
	}
}
