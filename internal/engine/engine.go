package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"briefbot/internal/event"
	"briefbot/internal/store"
	logx "briefbot/pkg/logx"
)

// Config carries the resolved decision policy. All plain values.
type Config struct {
	Detector DetectorConfig

	// EmitRemoved controls whether a disappearance produces a low-priority
	// informational intent or is recorded silently. News feeds rotate items
	// out constantly, so news categories default to silent.
	EmitRemoved map[event.Category]bool

	// DryRun computes classifications and scores but commits nothing, so a
	// run can be inspected without changing future runs.
	DryRun bool
}

// Engine is the dedup/notification decision core. It owns the
// classify -> score -> commit sequence for each incoming event and the
// removal sweep at the end of each batch.
type Engine struct {
	st  store.Store
	det Detector
	cfg Config
	log logx.Logger

	// now is swappable for tests.
	now func() time.Time
}

func New(st store.Store, cfg Config, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		st:  st,
		det: NewDetector(cfg.Detector),
		cfg: cfg,
		log: log,
		now: time.Now,
	}
}

// ProcessBatch runs the decision core once over a category's batch.
//
// Per event: look up the previous record, classify, skip silently when
// Unchanged (the record's last-seen fields are still refreshed), otherwise
// score, build the intent, and only then commit the updated record. The
// commit-after-intent order makes a crash before commit safe to retry; a
// crash after commit but before delivery loses at most that one
// notification, which is the accepted trade: never notify twice.
//
// A store failure aborts the whole category: no intents are returned.
func (e *Engine) ProcessBatch(ctx context.Context, cat event.Category, events []event.Event, runID string) ([]event.Intent, error) {
	now := e.now().UTC()
	log := e.log.With(logx.String("category", string(cat)), logx.String("run_id", runID))

	seen := make(map[string]struct{}, len(events))
	intents := make([]event.Intent, 0, len(events))
	malformed := 0

	for i := range events {
		ev := events[i]
		if err := ev.Validate(); err != nil {
			malformed++
			log.Warn("skipping malformed event", logx.Err(err), logx.String("title", ev.Title))
			continue
		}
		if ev.Category != cat {
			malformed++
			log.Warn("event category does not match batch", logx.String("entity_id", ev.EntityID), logx.String("got", string(ev.Category)))
			continue
		}
		if _, dup := seen[ev.EntityID]; dup {
			// Adapters dedupe within a fetch; a duplicate here is a bug
			// upstream, and processing it twice would break idempotence.
			log.Warn("duplicate entity in batch", logx.String("entity_id", ev.EntityID))
			continue
		}
		seen[ev.EntityID] = struct{}{}

		prevRec, ok, err := e.st.Get(ctx, cat, ev.EntityID)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", cat, err)
		}
		var prev *store.Record
		if ok {
			prev = &prevRec
		}

		kind := e.det.Classify(ev, prev, now)
		rec := refreshedRecord(ev, prev, now)

		if kind == event.ChangeUnchanged {
			if err := e.commit(ctx, rec); err != nil {
				return nil, fmt.Errorf("category %s: %w", cat, err)
			}
			continue
		}

		priority, channel := Score(ev, kind, now)
		intents = append(intents, event.Intent{
			Channel:  channel,
			Priority: priority,
			Event:    ev,
			Reason:   kind,
			RunID:    runID,
		})

		rec.LastNotifiedAt = &now
		rec.LastNotifiedReason = kind
		if err := e.commit(ctx, rec); err != nil {
			return nil, fmt.Errorf("category %s: %w", cat, err)
		}
		log.Debug("notification decided",
			logx.String("entity_id", ev.EntityID),
			logx.String("kind", string(kind)),
			logx.Int("priority", priority),
			logx.String("channel", string(channel)))
	}

	removedIntents, err := e.sweepRemoved(ctx, cat, seen, now, runID, log)
	if err != nil {
		return nil, err
	}
	intents = append(intents, removedIntents...)

	// Descending priority with a deterministic tie-break so daily-brief
	// grouping stays stable across identical runs.
	sort.SliceStable(intents, func(i, j int) bool {
		if intents[i].Priority != intents[j].Priority {
			return intents[i].Priority > intents[j].Priority
		}
		return intents[i].Event.EntityID < intents[j].Event.EntityID
	})

	log.Info("batch processed",
		logx.Int("events", len(events)),
		logx.Int("intents", len(intents)),
		logx.Int("malformed", malformed),
		logx.Bool("dry_run", e.cfg.DryRun))
	return intents, nil
}

// sweepRemoved classifies entities that were stored for this category but
// absent from the current batch. Each disappearance is reported at most once;
// the record is marked terminal so later runs stay silent.
func (e *Engine) sweepRemoved(ctx context.Context, cat event.Category, seen map[string]struct{}, now time.Time, runID string, log logx.Logger) ([]event.Intent, error) {
	recs, err := e.st.Scan(ctx, cat)
	if err != nil {
		return nil, fmt.Errorf("category %s: removal sweep: %w", cat, err)
	}

	var intents []event.Intent
	for _, rec := range recs {
		if _, present := seen[rec.EntityID]; present {
			continue
		}
		if rec.RemovedAt != nil {
			continue // already reported, terminal
		}

		if e.cfg.EmitRemoved[cat] {
			ev := event.Event{EntityID: rec.EntityID, Category: rec.Category, DueAt: rec.LastSeenDueAt}
			priority, channel := Score(ev, event.ChangeRemoved, now)
			intents = append(intents, event.Intent{
				Channel:  channel,
				Priority: priority,
				Event:    ev,
				Reason:   event.ChangeRemoved,
				RunID:    runID,
			})
		}

		rec.RemovedAt = &now
		rec.LastNotifiedAt = &now
		rec.LastNotifiedReason = event.ChangeRemoved
		if err := e.commit(ctx, rec); err != nil {
			return nil, fmt.Errorf("category %s: removal sweep: %w", cat, err)
		}
		log.Debug("entity removed at source", logx.String("entity_id", rec.EntityID))
	}
	return intents, nil
}

func (e *Engine) commit(ctx context.Context, rec store.Record) error {
	if e.cfg.DryRun {
		return nil
	}
	return e.st.Put(ctx, rec)
}

// refreshedRecord builds the whole-record replacement for this sighting.
// Notification bookkeeping is carried over until the caller overwrites it;
// RemovedAt is always cleared because the entity is demonstrably back.
func refreshedRecord(ev event.Event, prev *store.Record, now time.Time) store.Record {
	rec := store.Record{
		EntityID:      ev.EntityID,
		Category:      ev.Category,
		Title:         ev.Title,
		LastSeenDueAt: ev.DueAt,
		LastSeenHash:  ev.ContentHash(),
		FirstSeenAt:   now,
		LastSeenAt:    now,
	}
	if prev != nil {
		rec.FirstSeenAt = prev.FirstSeenAt
		rec.LastNotifiedAt = prev.LastNotifiedAt
		rec.LastNotifiedReason = prev.LastNotifiedReason
	}
	return rec
}

// GC prunes records last seen before the retention window. Explicit and
// logged; never called implicitly from ProcessBatch.
func (e *Engine) GC(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	if e.cfg.DryRun {
		return 0, nil
	}
	n, err := e.st.GC(ctx, e.now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("gc: %w", err)
	}
	return n, nil
}

// StoreFatal reports whether err is the kind of failure that must abort the
// category run rather than skip an event.
func StoreFatal(err error) bool {
	return errors.Is(err, store.ErrUnavailable) || errors.Is(err, store.ErrLocked)
}
