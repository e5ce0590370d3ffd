package normalize

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"authguard/internal/config"
	"authguard/internal/model"
)

// MalformedEventError marks an event whose required fields could not be
// extracted. Such events are dropped and counted, never forwarded.
type MalformedEventError struct {
	Field  string
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event: %s: %s", e.Field, e.Reason)
}

// StaleEventError marks an event whose timestamp falls outside the
// accepted skew bounds relative to ingest time.
type StaleEventError struct {
	Timestamp time.Time
	Reason    string
}

func (e *StaleEventError) Error() string {
	return fmt.Sprintf("stale event at %s: %s", e.Timestamp.Format(time.RFC3339), e.Reason)
}

// Normalize converts a raw listener record into a canonical AuthEvent.
// Timestamps are accepted from the producer but bounded: more than
// MaxFutureSkew ahead of now is rejected (prevents adversarial window
// manipulation), older than window+LateGrace is rejected as stale.
func Normalize(raw model.RawRecord, cfg *config.Config, now time.Time) (model.AuthEvent, error) {
	ipText := strings.TrimSpace(raw.SourceIP)
	if ipText == "" {
		return model.AuthEvent{}, &MalformedEventError{Field: "source_ip", Reason: "missing"}
	}
	ip, err := netip.ParseAddr(ipText)
	if err != nil {
		return model.AuthEvent{}, &MalformedEventError{Field: "source_ip", Reason: err.Error()}
	}
	// IPv4-mapped IPv6 sources must compare equal to their IPv4 form,
	// or they would never match an IPv4 tenant range.
	ip = ip.Unmap()

	outcome, ok := ParseOutcome(raw.Outcome)
	if !ok {
		return model.AuthEvent{}, &MalformedEventError{Field: "outcome", Reason: fmt.Sprintf("unrecognized value %q", raw.Outcome)}
	}

	ts := now.UTC()
	if strings.TrimSpace(raw.Timestamp) != "" {
		parsed, err := ParseTimestamp(raw.Timestamp, time.UTC)
		if err != nil {
			return model.AuthEvent{}, &MalformedEventError{Field: "timestamp", Reason: err.Error()}
		}
		ts = parsed.UTC()
	}

	if cfg.Detection.MaxFutureSkew > 0 && ts.Sub(now) > cfg.Detection.MaxFutureSkew {
		return model.AuthEvent{}, &StaleEventError{Timestamp: ts, Reason: "timestamp ahead of ingest time"}
	}
	maxAge := cfg.Detection.Window + cfg.Detection.LateGrace
	if maxAge > 0 && now.Sub(ts) > maxAge {
		return model.AuthEvent{}, &StaleEventError{Timestamp: ts, Reason: "timestamp older than window plus grace"}
	}

	protocol := strings.ToLower(strings.TrimSpace(raw.Protocol))
	if protocol == "" {
		protocol = "unknown"
	}

	return model.AuthEvent{
		TenantID:  strings.TrimSpace(raw.TenantHint),
		SourceIP:  ip,
		Username:  strings.TrimSpace(raw.Username),
		Protocol:  protocol,
		Outcome:   outcome,
		Timestamp: ts,
		RawRef:    raw.RawRef,
	}, nil
}

func ParseOutcome(value string) (model.Outcome, bool) {
	n := strings.ToLower(strings.TrimSpace(value))
	switch n {
	case "ok", "success", "accepted", "allow", "allowed", "granted", "pass":
		return model.OutcomeSuccess, true
	case "fail", "failed", "failure", "denied", "reject", "rejected", "invalid", "error":
		return model.OutcomeFailure, true
	}
	return "", false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
	"Jan 02 15:04:05",
	"Jan 2 15:04:05",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if layout == "Jan 02 15:04:05" || layout == "Jan 2 15:04:05" {
			// Classic syslog stamps carry no year; assume the current one.
			if t, err := time.ParseInLocation(layout, value, loc); err == nil {
				now := time.Now().In(loc)
				return time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc), nil
			}
			continue
		}
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
