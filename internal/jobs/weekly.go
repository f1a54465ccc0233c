package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"briefbot/internal/event"
	logx "briefbot/pkg/logx"
)

const weeklyWindow = 7 * 24 * time.Hour

// runWeekly renders an activity summary from the notification bookkeeping the
// store already carries: how many notices went out over the past week, per
// category and per change kind. Read-only, like the daily brief.
func (r *Runner) runWeekly(ctx context.Context, runID string, log logx.Logger) error {
	now := r.now().UTC()
	since := now.Add(-weeklyWindow)

	perCategory := map[event.Category]int{}
	perReason := map[event.ChangeKind]int{}
	total, active := 0, 0
	for _, cat := range event.Categories {
		recs, err := r.opts.Store.Scan(ctx, cat)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if rec.RemovedAt == nil && !rec.LastSeenAt.Before(since) {
				active++
			}
			if rec.LastNotifiedAt == nil || rec.LastNotifiedAt.Before(since) {
				continue
			}
			perCategory[cat]++
			perReason[rec.LastNotifiedReason]++
			total++
		}
	}
	if total == 0 {
		log.Info("no notifications in the past week, report skipped")
		return nil
	}

	intent := event.Intent{
		Channel:  event.ChannelDailyBrief,
		Priority: 350,
		Reason:   event.ChangeNew,
		RunID:    runID,
		Event: event.Event{
			EntityID:    "weekly:" + now.Format("2006-01-02"),
			Category:    event.CategoryAnnouncement,
			Title:       "Weekly report " + now.Format("2006-01-02"),
			BodyExcerpt: renderWeekly(total, active, perCategory, perReason),
		},
	}
	log.Info("weekly report rendered", logx.Int("notifications", total))
	return r.deliver(ctx, []event.Intent{intent}, log)
}

func renderWeekly(total, active int, perCategory map[event.Category]int, perReason map[event.ChangeKind]int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Notifications this week: %d\n", total)
	fmt.Fprintf(&b, "Entities active this week: %d\n", active)

	b.WriteString("\nBy category:\n")
	for _, cat := range event.Categories {
		if n := perCategory[cat]; n > 0 {
			fmt.Fprintf(&b, "- %s: %d\n", cat, n)
		}
	}

	b.WriteString("\nBy change:\n")
	for _, kind := range []event.ChangeKind{
		event.ChangeNew, event.ChangeDueSoon, event.ChangeMoved,
		event.ChangeFlagged, event.ChangeRemoved,
	} {
		if n := perReason[kind]; n > 0 {
			fmt.Fprintf(&b, "- %s: %d\n", kind, n)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
