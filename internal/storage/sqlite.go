package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"authguard/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:authguard.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT NOT NULL,
			correlation_id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			alert_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL,
			source_ip TEXT,
			username TEXT,
			ts TEXT NOT NULL,
			confidence REAL NOT NULL,
			evidence_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_tenant_ts ON alerts(tenant_id, ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveAlert(ctx context.Context, alert model.ThreatAlert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, correlation_id, tenant_id, alert_type, severity, title, description, source_ip, username, ts, confidence, evidence_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(correlation_id) DO UPDATE SET
			severity = excluded.severity,
			confidence = excluded.confidence,
			evidence_json = excluded.evidence_json`,
		alert.ID,
		alert.CorrelationID,
		alert.TenantID,
		alert.AlertType,
		alert.Severity,
		alert.Title,
		alert.Description,
		alert.SourceIP,
		alert.Username,
		alert.Timestamp.UTC(),
		alert.Confidence,
		encodeJSON(alert.Evidence),
	)
	return err
}

func (s *sqliteStore) UpdateAlert(ctx context.Context, alert model.ThreatAlert) error {
	if s.db == nil {
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET severity = ?, confidence = ?, evidence_json = ? WHERE correlation_id = ?`,
		alert.Severity,
		alert.Confidence,
		encodeJSON(alert.Evidence),
		alert.CorrelationID,
	)
	if err != nil {
		return err
	}
	// The original may have been lost; a patch then becomes an insert.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.SaveAlert(ctx, alert)
	}
	return nil
}
