package model

import (
	"net/netip"
	"time"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Dimension selects which identity a window tracks. Failures are
// counted per source address (password spraying) and per username
// (single-account brute force) independently.
type Dimension string

const (
	DimSourceIP Dimension = "source_ip"
	DimUsername Dimension = "username"
)

// RawRecord is the parsed record handed over by a listener. TenantHint
// is honored when present, otherwise the resolver decides.
type RawRecord struct {
	TenantHint string            `json:"tenant_hint,omitempty"`
	SourceIP   string            `json:"source_ip"`
	Username   string            `json:"username,omitempty"`
	Protocol   string            `json:"protocol,omitempty"`
	Outcome    string            `json:"outcome"`
	Timestamp  string            `json:"timestamp,omitempty"`
	RawRef     string            `json:"raw_ref,omitempty"`
	Extras     map[string]string `json:"extras,omitempty"`
}

// AuthEvent is the canonical normalized authentication event. Immutable
// once built; not retained past aggregation.
type AuthEvent struct {
	TenantID  string     `json:"tenant_id"`
	SourceIP  netip.Addr `json:"source_ip"`
	Username  string     `json:"username,omitempty"`
	Protocol  string     `json:"protocol"`
	Outcome   Outcome    `json:"outcome"`
	Timestamp time.Time  `json:"timestamp"`
	RawRef    string     `json:"raw_ref,omitempty"`
}

// WindowKey indexes aggregator state. TenantID is a mandatory component
// of every key, so cross-tenant aggregation is structurally impossible.
type WindowKey struct {
	TenantID  string    `json:"tenant_id"`
	Dimension Dimension `json:"dimension"`
	Value     string    `json:"value"`
}

func (k WindowKey) String() string {
	return k.TenantID + "|" + string(k.Dimension) + "|" + k.Value
}

// WindowSnapshot is the post-eviction view of one key's window, as
// returned by the aggregator for threshold evaluation and metrics.
type WindowSnapshot struct {
	Key      WindowKey     `json:"key"`
	Failures int           `json:"failures"`
	Span     time.Duration `json:"span"`
	Oldest   time.Time     `json:"oldest,omitempty"`
	Newest   time.Time     `json:"newest,omitempty"`
	Resolved bool          `json:"resolved"`
}

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const AlertTypeBruteForce = "brute_force_attack"

// Evidence captures what the detector saw when it fired.
type Evidence struct {
	Attempts  int               `json:"attempts"`
	WindowSec int               `json:"window_sec"`
	FirstSeen time.Time         `json:"first_seen"`
	LastSeen  time.Time         `json:"last_seen"`
	EventRefs []string          `json:"event_refs,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ThreatAlert is the tenant-scoped alert handed to the sink. The
// CorrelationID is stable for the lifetime of one burst so the sink can
// merge updates instead of duplicating.
type ThreatAlert struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	AlertType     string    `json:"alert_type"`
	Severity      Severity  `json:"severity"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	SourceIP      string    `json:"source_ip,omitempty"`
	Username      string    `json:"username,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Confidence    float64   `json:"confidence"`
	Evidence      Evidence  `json:"evidence"`
	CorrelationID string    `json:"correlation_id"`
	Updated       bool      `json:"updated,omitempty"`
}
