package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"briefbot/internal/event"
	"briefbot/internal/store"
	logx "briefbot/pkg/logx"
)

type briefBucket struct {
	label string
	until time.Duration
}

var briefBuckets = []briefBucket{
	{"Today", 24 * time.Hour},
	{"Tomorrow", 48 * time.Hour},
	{"This week", 7 * 24 * time.Hour},
}

// runBrief renders a digest of upcoming academic deadlines from stored state
// alone. Read-only: it never notifies per item and never touches records, so
// it can run any number of times without affecting change detection.
func (r *Runner) runBrief(ctx context.Context, runID string, log logx.Logger) error {
	now := r.now().UTC()

	var upcoming []store.Record
	for _, cat := range []event.Category{event.CategoryAssignment, event.CategoryExam} {
		recs, err := r.opts.Store.Scan(ctx, cat)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if rec.RemovedAt != nil || rec.LastSeenDueAt == nil {
				continue
			}
			if rec.LastSeenDueAt.Before(now.Add(-24 * time.Hour)) {
				continue // long past due, not worth repeating
			}
			upcoming = append(upcoming, rec)
		}
	}
	if len(upcoming) == 0 {
		log.Info("no upcoming deadlines, brief skipped")
		return nil
	}
	sort.Slice(upcoming, func(i, j int) bool {
		return upcoming[i].LastSeenDueAt.Before(*upcoming[j].LastSeenDueAt)
	})

	body := renderBrief(upcoming, now)
	intent := event.Intent{
		Channel:  event.ChannelDailyBrief,
		Priority: 400,
		Reason:   event.ChangeNew,
		RunID:    runID,
		Event: event.Event{
			EntityID:    "brief:" + now.Format("2006-01-02"),
			Category:    event.CategoryAnnouncement,
			Title:       "Daily brief " + now.Format("2006-01-02"),
			BodyExcerpt: body,
		},
	}
	log.Info("brief rendered", logx.Int("items", len(upcoming)))
	return r.deliver(ctx, []event.Intent{intent}, log)
}

func renderBrief(recs []store.Record, now time.Time) string {
	var b strings.Builder
	used := map[string]bool{}

	writeSection := func(label string, match func(due time.Time) bool) {
		header := false
		for _, rec := range recs {
			if used[rec.EntityID] || !match(*rec.LastSeenDueAt) {
				continue
			}
			used[rec.EntityID] = true
			if !header {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(label + ":\n")
				header = true
			}
			fmt.Fprintf(&b, "- %s (due %s)\n", briefTitle(rec), rec.LastSeenDueAt.UTC().Format("Mon 15:04"))
		}
	}

	writeSection("Overdue", func(due time.Time) bool { return due.Before(now) })
	for _, bucket := range briefBuckets {
		limit := now.Add(bucket.until)
		writeSection(bucket.label, func(due time.Time) bool { return due.Before(limit) })
	}
	return strings.TrimRight(b.String(), "\n")
}

func briefTitle(rec store.Record) string {
	if rec.Title != "" {
		return rec.Title
	}
	return rec.EntityID
}
