package jobs

import (
	"context"
	"fmt"

	"briefbot/internal/event"
	"briefbot/internal/source/canvas"
	logx "briefbot/pkg/logx"
)

// academicBatchOrder fixes the processing order so identical runs produce
// identical logs and delivery order.
var academicBatchOrder = []event.Category{
	event.CategoryAssignment,
	event.CategoryExam,
	event.CategoryAnnouncement,
}

// runCanvas fetches the full LMS snapshot, then runs the decision core per
// academic category. Fetching completes before any batch is processed: a
// partial fetch must never reach the removal sweep, where absence would read
// as deletion.
func (r *Runner) runCanvas(ctx context.Context, runID string, log logx.Logger) error {
	if r.opts.Canvas == nil {
		log.Warn("canvas not configured, skipping")
		return nil
	}

	courses, err := r.opts.Canvas.Courses(ctx)
	if err != nil {
		return fmt.Errorf("courses: %w", err)
	}

	batches := map[event.Category][]event.Event{}
	for _, course := range courses {
		assignments, err := r.opts.Canvas.Assignments(ctx, course.ID)
		if err != nil {
			return fmt.Errorf("assignments for course %d: %w", course.ID, err)
		}
		for _, a := range assignments {
			if ev, ok := canvas.NormalizeAssignment(a, course); ok {
				batches[ev.Category] = append(batches[ev.Category], ev)
			}
		}

		announcements, err := r.opts.Canvas.Announcements(ctx, course.ID)
		if err != nil {
			return fmt.Errorf("announcements for course %d: %w", course.ID, err)
		}
		for _, a := range announcements {
			if ev, ok := canvas.NormalizeAnnouncement(a, course); ok {
				batches[ev.Category] = append(batches[ev.Category], ev)
			}
		}
	}

	var intents []event.Intent
	for _, cat := range academicBatchOrder {
		out, err := r.opts.Engine.ProcessBatch(ctx, cat, batches[cat], runID)
		if err != nil {
			return err
		}
		intents = append(intents, out...)
	}
	log.Info("canvas snapshot processed",
		logx.Int("courses", len(courses)),
		logx.Int("intents", len(intents)))
	return r.deliver(ctx, intents, log)
}
