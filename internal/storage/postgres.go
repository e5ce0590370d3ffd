package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"authguard/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/authguard?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
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
			ts TIMESTAMPTZ NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			evidence_json JSONB NOT NULL
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

func (s *postgresStore) SaveAlert(ctx context.Context, alert model.ThreatAlert) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, correlation_id, tenant_id, alert_type, severity, title, description, source_ip, username, ts, confidence, evidence_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (correlation_id) DO UPDATE SET
			severity = EXCLUDED.severity,
			confidence = EXCLUDED.confidence,
			evidence_json = EXCLUDED.evidence_json`,
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

func (s *postgresStore) UpdateAlert(ctx context.Context, alert model.ThreatAlert) error {
	if s.db == nil {
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET severity = $1, confidence = $2, evidence_json = $3 WHERE correlation_id = $4`,
		alert.Severity,
		alert.Confidence,
		encodeJSON(alert.Evidence),
		alert.CorrelationID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.SaveAlert(ctx, alert)
	}
	return nil
}
