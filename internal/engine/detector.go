package engine

import (
	"authguard/internal/model"
)

type DecisionKind int

const (
	NoAction DecisionKind = iota
	RaiseAlert
	UpdateAlert
)

// Decision is the detector's verdict for one window snapshot.
type Decision struct {
	Kind          DecisionKind
	Confidence    float64
	Severity      model.Severity
	CorrelationID string
}

// Confidence grows with the failure count relative to the threshold and
// saturates at twice the threshold: an exactly-at-threshold burst may
// still be user error (~0.5), twice the threshold is a near-certain
// attack.
func Confidence(failures, threshold int) float64 {
	if threshold <= 0 {
		return 0
	}
	c := float64(failures) / float64(threshold*2)
	if c > 1.0 {
		return 1.0
	}
	return c
}

func SeverityFor(confidence float64) model.Severity {
	if confidence > 0.8 {
		return model.SeverityCritical
	}
	return model.SeverityWarning
}

// decide evaluates a snapshot against the threshold. The caller owns
// the WindowState lock; alerted bookkeeping happens in the aggregator.
func decide(failures, threshold int, alerted bool, correlationID string) Decision {
	if failures < threshold {
		return Decision{Kind: NoAction}
	}
	confidence := Confidence(failures, threshold)
	d := Decision{
		Confidence: confidence,
		Severity:   SeverityFor(confidence),
	}
	if alerted && correlationID != "" {
		d.Kind = UpdateAlert
		d.CorrelationID = correlationID
		return d
	}
	d.Kind = RaiseAlert
	return d
}
