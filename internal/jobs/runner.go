// Package jobs wires sources, the decision engine, and delivery into the
// runnable units the scheduler triggers: canvas, news, brief, weekly, and gc.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"briefbot/internal/delivery"
	"briefbot/internal/engine"
	"briefbot/internal/event"
	"briefbot/internal/source/canvas"
	"briefbot/internal/source/rss"
	"briefbot/internal/store"
	logx "briefbot/pkg/logx"
)

// CanvasAPI is the slice of the LMS client the canvas job needs.
type CanvasAPI interface {
	Courses(ctx context.Context) ([]canvas.Course, error)
	Assignments(ctx context.Context, courseID int64) ([]canvas.Assignment, error)
	Announcements(ctx context.Context, courseID int64) ([]canvas.Announcement, error)
}

// FeedFetcher is the slice of the rss fetcher the news job needs.
type FeedFetcher interface {
	Fetch(ctx context.Context, feed rss.Feed) ([]rss.Item, error)
}

// Deliverer pushes a batch of intents out. *delivery.Dispatcher satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, intents []event.Intent) error
}

type Options struct {
	Store      store.Store
	Engine     *engine.Engine
	Dispatcher Deliverer

	Canvas  CanvasAPI // nil when the LMS side is not configured
	Fetcher FeedFetcher
	Filter  *rss.Filter
	Feeds   []rss.Feed

	Retention time.Duration
}

type Runner struct {
	opts Options
	log  logx.Logger

	// now is swappable for tests.
	now func() time.Time
}

var _ Deliverer = (*delivery.Dispatcher)(nil)

func NewRunner(opts Options, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{opts: opts, log: log, now: time.Now}
}

// Names lists the runnable jobs in scheduling order.
func Names() []string { return []string{"canvas", "news", "brief", "weekly", "gc"} }

// Run executes one named job under the store-wide run lock. Every run gets a
// fresh id so intents and log lines can be correlated. The pseudo-job "all"
// runs every job in Names order, each under its own lock and id; the first
// failure stops the sequence.
func (r *Runner) Run(ctx context.Context, name string) error {
	if name == "all" {
		for _, n := range Names() {
			if err := r.Run(ctx, n); err != nil {
				return err
			}
		}
		return nil
	}

	runID := uuid.NewString()
	log := r.log.With(logx.String("job", name), logx.String("run_id", runID))

	if err := r.opts.Store.Lock(ctx); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	defer func() {
		if err := r.opts.Store.Unlock(); err != nil {
			log.Warn("run lock release failed", logx.Err(err))
		}
	}()

	start := r.now()
	var err error
	switch name {
	case "canvas":
		err = r.runCanvas(ctx, runID, log)
	case "news":
		err = r.runNews(ctx, runID, log)
	case "brief":
		err = r.runBrief(ctx, runID, log)
	case "weekly":
		err = r.runWeekly(ctx, runID, log)
	case "gc":
		err = r.runGC(ctx, log)
	default:
		return fmt.Errorf("job %s: unknown job", name)
	}
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	log.Info("job finished", logx.Duration("took", r.now().Sub(start)))
	return nil
}

func (r *Runner) runGC(ctx context.Context, log logx.Logger) error {
	n, err := r.opts.Engine.GC(ctx, r.opts.Retention)
	if err != nil {
		return err
	}
	log.Info("gc finished", logx.Int("removed", n))
	return nil
}

// deliver sorts the aggregated intents across categories and hands them to
// the dispatcher. Same ordering rule the engine applies per batch.
func (r *Runner) deliver(ctx context.Context, intents []event.Intent, log logx.Logger) error {
	if len(intents) == 0 {
		return nil
	}
	sort.SliceStable(intents, func(i, j int) bool {
		if intents[i].Priority != intents[j].Priority {
			return intents[i].Priority > intents[j].Priority
		}
		return intents[i].Event.EntityID < intents[j].Event.EntityID
	})
	if err := r.opts.Dispatcher.Deliver(ctx, intents); err != nil {
		// Intents are already committed; a delivery failure drops those
		// notifications rather than risking duplicates on retry.
		log.Warn("delivery incomplete", logx.Err(err))
	}
	return nil
}
