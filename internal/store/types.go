package store

import (
	"context"
	"errors"
	"time"

	"briefbot/internal/event"
)

// ErrUnavailable wraps any failure to read or write the store. It is fatal
// for the affected category's run: without prior state no notification can be
// computed safely.
var ErrUnavailable = errors.New("state store unavailable")

// ErrLocked is returned when another run holds the store's exclusive lock.
var ErrLocked = errors.New("state store locked by another run")

// Config configures the store.
//
// Driver values:
//   - "file": dependency-free file backend (snapshot + jsonl journal)
//   - "sqlite": SQLite database file (build with -tags sqlite)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is the stored shadow of one logical entity, keyed by
// (Category, EntityID). Put replaces the whole record; there is no partial
// field merge.
type Record struct {
	EntityID string         `json:"entity_id"`
	Category event.Category `json:"category"`

	// Title is the last observed display title, kept so digests can render
	// without re-fetching the source.
	Title string `json:"title,omitempty"`

	LastSeenDueAt *time.Time `json:"last_seen_due_at,omitempty"`
	LastSeenHash  string     `json:"last_seen_hash,omitempty"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`

	LastNotifiedAt     *time.Time       `json:"last_notified_at,omitempty"`
	LastNotifiedReason event.ChangeKind `json:"last_notified_reason,omitempty"`

	// RemovedAt marks the entity as gone from its source. Terminal: a record
	// with RemovedAt set never produces another Removed notification. Set by
	// the engine's removal sweep, cleared if the entity re-appears.
	RemovedAt *time.Time `json:"removed_at,omitempty"`
}

// Store is the durable (category, entity_id) -> Record mapping shared by the
// change detector and the decision logic. Implementations must guarantee
// that once Put returns nil, a later Get observes the record, including
// across abrupt process termination.
type Store interface {
	Get(ctx context.Context, cat event.Category, entityID string) (Record, bool, error)
	Put(ctx context.Context, rec Record) error
	Scan(ctx context.Context, cat event.Category) ([]Record, error)

	// GC removes records last seen before the cutoff. The only destructive
	// operation; callers invoke it explicitly and it logs what it removed.
	GC(ctx context.Context, olderThan time.Time) (int, error)

	// Lock acquires the store-wide exclusive run lock, serializing
	// overlapping runs of the same job. Coarse-grained on purpose: event
	// volume is small and a whole-store lock keeps get-then-put atomic.
	Lock(ctx context.Context) error
	Unlock() error

	Close() error
}
