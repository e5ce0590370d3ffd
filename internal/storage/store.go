package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"authguard/internal/config"
	"authguard/internal/model"
)

// Store is the external alert sink. Delivery is at-least-once; the
// correlation id is the dedup key, so SaveAlert upserts and UpdateAlert
// merges rather than duplicating.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveAlert(ctx context.Context, alert model.ThreatAlert) error
	UpdateAlert(ctx context.Context, alert model.ThreatAlert) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}
