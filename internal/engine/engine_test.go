package engine

import (
	"net/netip"
	"testing"
	"time"

	"authguard/internal/config"
	"authguard/internal/metrics"
	"authguard/internal/model"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Detection.Threshold = 5
	cfg.Detection.Window = 300 * time.Second
	cfg.Detection.UpdateInterval = 0
	cfg.Detection.Shards = 4
	cfg.Detection.MaxEventRefs = 10
	cfg.Ingest.DedupeWindow = 0
	return cfg
}

func newEngineForTest(cfg *config.Config) *Engine {
	return NewEngine(cfg, nil, metrics.NewStore(100), nil, nil)
}

func authEvent(tenant, ip, user string, outcome model.Outcome, ts time.Time) model.AuthEvent {
	return model.AuthEvent{
		TenantID:  tenant,
		SourceIP:  netip.MustParseAddr(ip),
		Username:  user,
		Protocol:  "ssh",
		Outcome:   outcome,
		Timestamp: ts,
	}
}

func TestBelowThresholdNoAlert(t *testing.T) {
	eng := newEngineForTest(testConfig())
	base := time.Now().UTC().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		ev := authEvent("demo-org", "203.0.113.100", "admin", model.OutcomeFailure, base.Add(time.Duration(i)*time.Second))
		if alerts := eng.ProcessEvent(ev); len(alerts) > 0 {
			t.Fatalf("unexpected alert at failure %d", i+1)
		}
	}
}

func TestThresholdRaisesSingleAlert(t *testing.T) {
	eng := newEngineForTest(testConfig())
	base := time.Now().UTC().Add(-time.Minute)
	var raised []model.ThreatAlert
	for i := 0; i < 5; i++ {
		ev := authEvent("demo-org", "192.168.1.100", "testuser", model.OutcomeFailure, base.Add(time.Duration(i)*time.Second))
		alerts := eng.ProcessEvent(ev)
		if i < 4 && len(alerts) > 0 {
			t.Fatalf("alert before threshold at failure %d", i+1)
		}
		raised = append(raised, alerts...)
	}
	if len(raised) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(raised))
	}
	a := raised[0]
	if a.Updated {
		t.Fatalf("first crossing must raise, not update")
	}
	if a.Confidence != 0.5 {
		t.Fatalf("confidence at threshold: got %v, want 0.5", a.Confidence)
	}
	if a.Severity != model.SeverityWarning {
		t.Fatalf("severity: got %s", a.Severity)
	}
	if a.TenantID != "demo-org" || a.AlertType != model.AlertTypeBruteForce {
		t.Fatalf("alert identity mismatch: %+v", a)
	}
	if a.CorrelationID == "" || a.ID == "" {
		t.Fatalf("alert missing ids")
	}
}

func TestSaturatedConfidenceCritical(t *testing.T) {
	eng := newEngineForTest(testConfig())
	base := time.Now().UTC().Add(-time.Minute)
	var last model.ThreatAlert
	for i := 0; i < 10; i++ {
		ev := authEvent("demo-org", "10.0.0.9", "root", model.OutcomeFailure, base.Add(time.Duration(i)*time.Second))
		for _, a := range eng.ProcessEvent(ev) {
			last = a
		}
	}
	if last.Confidence < 0.95 {
		t.Fatalf("confidence at 2x threshold: got %v, want >= 0.95", last.Confidence)
	}
	if last.Severity != model.SeverityCritical {
		t.Fatalf("severity at saturation: got %s", last.Severity)
	}
}

func TestSuccessResetsAndMintsNewCorrelationID(t *testing.T) {
	eng := newEngineForTest(testConfig())
	base := time.Now().UTC().Add(-time.Minute)
	ts := func(i int) time.Time { return base.Add(time.Duration(i) * time.Second) }

	var first string
	for i := 0; i < 5; i++ {
		for _, a := range eng.ProcessEvent(authEvent("demo-org", "10.0.0.1", "alice", model.OutcomeFailure, ts(i))) {
			first = a.CorrelationID
		}
	}
	if first == "" {
		t.Fatalf("expected initial alert")
	}

	// Legitimate login ends the burst.
	if alerts := eng.ProcessEvent(authEvent("demo-org", "10.0.0.1", "alice", model.OutcomeSuccess, ts(5))); len(alerts) > 0 {
		t.Fatalf("success must not alert")
	}

	var second string
	for i := 0; i < 5; i++ {
		alerts := eng.ProcessEvent(authEvent("demo-org", "10.0.0.1", "alice", model.OutcomeFailure, ts(6+i)))
		if i < 4 && len(alerts) > 0 {
			t.Fatalf("reset history still counted: alert at fresh failure %d", i+1)
		}
		for _, a := range alerts {
			if a.Updated {
				t.Fatalf("fresh burst produced an update, want a new alert")
			}
			second = a.CorrelationID
		}
	}
	if second == "" {
		t.Fatalf("expected alert for fresh burst after reset")
	}
	if second == first {
		t.Fatalf("fresh burst reused correlation id %s", first)
	}
}

func TestResetDisabledKeepsCounting(t *testing.T) {
	cfg := testConfig()
	cfg.Detection.ResetOnSuccess = false
	eng := newEngineForTest(cfg)
	base := time.Now().UTC().Add(-time.Minute)
	ts := func(i int) time.Time { return base.Add(time.Duration(i) * time.Second) }

	for i := 0; i < 4; i++ {
		eng.ProcessEvent(authEvent("demo-org", "10.0.0.2", "bob", model.OutcomeFailure, ts(i)))
	}
	eng.ProcessEvent(authEvent("demo-org", "10.0.0.2", "bob", model.OutcomeSuccess, ts(4)))
	alerts := eng.ProcessEvent(authEvent("demo-org", "10.0.0.2", "bob", model.OutcomeFailure, ts(5)))
	if len(alerts) == 0 {
		t.Fatalf("with reset disabled the fifth failure should still alert")
	}
}

func TestWindowSlidesAndEvicts(t *testing.T) {
	eng := newEngineForTest(testConfig())
	base := time.Now().UTC().Add(-10 * time.Minute)
	for i := 0; i < 4; i++ {
		if alerts := eng.ProcessEvent(authEvent("demo-org", "10.0.0.3", "carol", model.OutcomeFailure, base.Add(time.Duration(i)*time.Second))); len(alerts) > 0 {
			t.Fatalf("alert below threshold")
		}
	}
	// Gap exceeding the window; the old burst must not count.
	late := base.Add(400 * time.Second)
	if alerts := eng.ProcessEvent(authEvent("demo-org", "10.0.0.3", "carol", model.OutcomeFailure, late)); len(alerts) > 0 {
		t.Fatalf("evicted entries counted toward threshold")
	}
}

func TestTenantIsolation(t *testing.T) {
	eng := newEngineForTest(testConfig())
	base := time.Now().UTC().Add(-time.Minute)
	ts := func(i int) time.Time { return base.Add(time.Duration(i) * time.Second) }

	// Same source address, two tenants. Tenant A reaches the
	// threshold; tenant B stays below it.
	for i := 0; i < 3; i++ {
		if alerts := eng.ProcessEvent(authEvent("tenant-b", "198.51.100.7", "dave", model.OutcomeFailure, ts(i))); len(alerts) > 0 {
			t.Fatalf("tenant-b alerted below threshold")
		}
	}
	var raised []model.ThreatAlert
	for i := 0; i < 5; i++ {
		raised = append(raised, eng.ProcessEvent(authEvent("tenant-a", "198.51.100.7", "dave", model.OutcomeFailure, ts(3+i)))...)
	}
	if len(raised) != 1 {
		t.Fatalf("expected one tenant-a alert, got %d", len(raised))
	}
	for _, a := range raised {
		if a.TenantID != "tenant-a" {
			t.Fatalf("alert leaked across tenants: %s", a.TenantID)
		}
	}
}

func TestBurstContinuationUpdatesNotDuplicates(t *testing.T) {
	eng := newEngineForTest(testConfig())
	base := time.Now().UTC().Add(-time.Minute)
	var raises, updates int
	var corrID string
	for i := 0; i < 8; i++ {
		ev := authEvent("demo-org", "10.0.0.4", "erin", model.OutcomeFailure, base.Add(time.Duration(i)*time.Second))
		for _, a := range eng.ProcessEvent(ev) {
			if a.Updated {
				updates++
				if corrID != "" && a.CorrelationID != corrID {
					t.Fatalf("update switched correlation id")
				}
			} else {
				raises++
				corrID = a.CorrelationID
			}
		}
	}
	if raises != 1 {
		t.Fatalf("ongoing burst raised %d alerts, want 1", raises)
	}
	if updates == 0 {
		t.Fatalf("continuing burst produced no updates")
	}
}

func TestDuplicateDeliveryNotDoubleCounted(t *testing.T) {
	cfg := testConfig()
	cfg.Ingest.DedupeWindow = time.Minute
	eng := newEngineForTest(cfg)
	base := time.Now().UTC().Add(-time.Minute)

	for i := 0; i < 4; i++ {
		ev := authEvent("demo-org", "10.0.0.5", "frank", model.OutcomeFailure, base.Add(time.Duration(i)*time.Second))
		ev.RawRef = "ref-" + string(rune('a'+i))
		eng.ProcessEvent(ev)
	}
	// Redelivery of the fourth event must not push the count to the
	// threshold.
	dup := authEvent("demo-org", "10.0.0.5", "frank", model.OutcomeFailure, base.Add(3*time.Second))
	dup.RawRef = "ref-d"
	if alerts := eng.ProcessEvent(dup); len(alerts) > 0 {
		t.Fatalf("duplicate delivery triggered an alert")
	}
	fresh := authEvent("demo-org", "10.0.0.5", "frank", model.OutcomeFailure, base.Add(4*time.Second))
	fresh.RawRef = "ref-e"
	if alerts := eng.ProcessEvent(fresh); len(alerts) == 0 {
		t.Fatalf("fifth distinct failure should alert")
	}
}

func TestDedupeIsTenantScoped(t *testing.T) {
	cfg := testConfig()
	cfg.Ingest.DedupeWindow = time.Minute
	eng := newEngineForTest(cfg)
	base := time.Now().UTC().Add(-time.Minute)

	// Both tenants deliver five failures reusing the same refs.
	var raised []model.ThreatAlert
	for _, tenant := range []string{"tenant-a", "tenant-b"} {
		for i := 0; i < 5; i++ {
			ev := authEvent(tenant, "10.0.0.7", "harry", model.OutcomeFailure, base.Add(time.Duration(i)*time.Second))
			ev.RawRef = "ref-" + string(rune('a'+i))
			raised = append(raised, eng.ProcessEvent(ev)...)
		}
	}
	if len(raised) != 2 {
		t.Fatalf("colliding refs suppressed across tenants: %d alerts, want 2", len(raised))
	}
	if raised[0].TenantID == raised[1].TenantID {
		t.Fatalf("both alerts for one tenant: %s", raised[0].TenantID)
	}
}

func TestSixSSHFailuresEndToEnd(t *testing.T) {
	eng := newEngineForTest(testConfig())
	base := time.Now().UTC().Add(-time.Minute)
	var raised []model.ThreatAlert
	var final model.ThreatAlert
	for i := 0; i < 6; i++ {
		ev := authEvent("demo-org", "192.168.1.100", "testuser", model.OutcomeFailure, base.Add(time.Duration(i)*time.Second))
		for _, a := range eng.ProcessEvent(ev) {
			if !a.Updated {
				raised = append(raised, a)
			}
			final = a
		}
	}
	if len(raised) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(raised))
	}
	if raised[0].TenantID != "demo-org" || raised[0].AlertType != model.AlertTypeBruteForce {
		t.Fatalf("alert fields: %+v", raised[0])
	}
	if final.Confidence < 0.6 {
		t.Fatalf("confidence after 6 failures: got %v, want >= 0.6", final.Confidence)
	}
	if final.Evidence.Attempts != 6 {
		t.Fatalf("evidence attempts: got %d, want 6", final.Evidence.Attempts)
	}
}

func TestSweepKeepsActiveKeys(t *testing.T) {
	eng := newEngineForTest(testConfig())
	now := time.Now().UTC()
	eng.ProcessEvent(authEvent("demo-org", "10.0.0.6", "gail", model.OutcomeFailure, now.Add(-time.Second)))
	if eng.KeyCount() == 0 {
		t.Fatalf("expected tracked keys")
	}
	removed := eng.agg.Sweep(now, 300*time.Second, 600*time.Second)
	if len(removed) != 0 {
		t.Fatalf("sweep removed keys with in-window entries")
	}
	// Far in the future everything is idle and eligible.
	removed = eng.agg.Sweep(now.Add(time.Hour), 300*time.Second, 600*time.Second)
	if len(removed) == 0 || eng.KeyCount() != 0 {
		t.Fatalf("idle keys not purged: removed=%d remaining=%d", len(removed), eng.KeyCount())
	}
}
