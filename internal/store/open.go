// Package store persists one Record per (category, entity_id) across runs.
// It is the sole source of truth for "have we seen this, and in what form".
package store

import (
	"errors"
	"strings"

	logx "briefbot/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}

func key(cat, id string) string { return cat + "|" + id }
