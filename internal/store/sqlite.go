//go:build sqlite
// +build sqlite

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"briefbot/internal/event"
	logx "briefbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db   *sql.DB
	log  logx.Logger
	lock runLock
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log, lock: runLock{path: path + ".lock"}}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrUnavailable, err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	_ = s.lock.release()
	return s.db.Close()
}

func (s *sqliteStore) Lock(ctx context.Context) error { return s.lock.acquire(ctx) }
func (s *sqliteStore) Unlock() error                  { return s.lock.release() }

func (s *sqliteStore) Get(ctx context.Context, cat event.Category, entityID string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT entity_id, category, title, due_at, content_hash, first_seen, last_seen, notified_at, notified_reason, removed_at
		 FROM records WHERE category = ? AND entity_id = ?`,
		string(cat), entityID,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: get: %v", ErrUnavailable, err)
	}
	return rec, true, nil
}

func (s *sqliteStore) Put(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.EntityID) == "" {
		return fmt.Errorf("%w: put with empty entity id", ErrUnavailable)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records(category, entity_id, title, due_at, content_hash, first_seen, last_seen, notified_at, notified_reason, removed_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(category, entity_id) DO UPDATE SET
		   title=excluded.title,
		   due_at=excluded.due_at,
		   content_hash=excluded.content_hash,
		   first_seen=excluded.first_seen,
		   last_seen=excluded.last_seen,
		   notified_at=excluded.notified_at,
		   notified_reason=excluded.notified_reason,
		   removed_at=excluded.removed_at`,
		string(rec.Category), rec.EntityID, rec.Title,
		nullMilli(rec.LastSeenDueAt), rec.LastSeenHash,
		rec.FirstSeenAt.UnixMilli(), rec.LastSeenAt.UnixMilli(),
		nullMilli(rec.LastNotifiedAt), string(rec.LastNotifiedReason),
		nullMilli(rec.RemovedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: put: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *sqliteStore) Scan(ctx context.Context, cat event.Category) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_id, category, title, due_at, content_hash, first_seen, last_seen, notified_at, notified_reason, removed_at
		 FROM records WHERE category = ? ORDER BY entity_id`,
		string(cat),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan row: %v", ErrUnavailable, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (s *sqliteStore) GC(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE last_seen < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("%w: gc: %v", ErrUnavailable, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Info("state gc", logx.Int64("removed", n), logx.Time("older_than", olderThan))
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (Record, error) {
	var (
		rec                           Record
		cat, reason                   string
		dueAt, notifiedAt, removedAt  sql.NullInt64
		firstSeenMilli, lastSeenMilli int64
	)
	err := r.Scan(&rec.EntityID, &cat, &rec.Title, &dueAt, &rec.LastSeenHash,
		&firstSeenMilli, &lastSeenMilli, &notifiedAt, &reason, &removedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Category = event.Category(cat)
	rec.LastNotifiedReason = event.ChangeKind(reason)
	rec.FirstSeenAt = time.UnixMilli(firstSeenMilli).UTC()
	rec.LastSeenAt = time.UnixMilli(lastSeenMilli).UTC()
	rec.LastSeenDueAt = milliPtr(dueAt)
	rec.LastNotifiedAt = milliPtr(notifiedAt)
	rec.RemovedAt = milliPtr(removedAt)
	return rec, nil
}

func nullMilli(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func milliPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
