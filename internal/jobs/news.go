package jobs

import (
	"context"

	"briefbot/internal/event"
	logx "briefbot/pkg/logx"
)

var newsBatchOrder = []event.Category{
	event.CategoryAITech,
	event.CategoryEarnings,
	event.CategoryMacro,
	event.CategoryGenericNews,
}

// runNews fetches every configured feed, filters items through the
// watchlists, and processes one batch per news category.
//
// A failed feed poisons only its own category: the category's batch is
// skipped this run so the removal sweep cannot mistake a fetch failure for
// the items disappearing. Categories without a configured feed are skipped
// for the same reason.
func (r *Runner) runNews(ctx context.Context, runID string, log logx.Logger) error {
	if len(r.opts.Feeds) == 0 {
		log.Warn("no feeds configured, skipping")
		return nil
	}

	batches := map[event.Category][]event.Event{}
	configured := map[event.Category]bool{}
	failed := map[event.Category]bool{}
	seen := map[string]bool{}

	for _, feed := range r.opts.Feeds {
		configured[feed.Category] = true
		items, err := r.opts.Fetcher.Fetch(ctx, feed)
		if err != nil {
			failed[feed.Category] = true
			log.Warn("feed fetch failed",
				logx.String("feed", feed.Name),
				logx.String("category", string(feed.Category)),
				logx.Err(err))
			continue
		}
		kept := 0
		for _, it := range items {
			ev, ok := r.opts.Filter.Normalize(it)
			if !ok {
				continue
			}
			if seen[ev.EntityID] {
				continue // same story syndicated by several feeds
			}
			seen[ev.EntityID] = true
			batches[ev.Category] = append(batches[ev.Category], ev)
			kept++
		}
		log.Debug("feed fetched",
			logx.String("feed", feed.Name),
			logx.Int("items", len(items)),
			logx.Int("kept", kept))
	}

	var intents []event.Intent
	for _, cat := range newsBatchOrder {
		if !configured[cat] {
			continue
		}
		if failed[cat] {
			log.Warn("skipping category after fetch failure", logx.String("category", string(cat)))
			continue
		}
		out, err := r.opts.Engine.ProcessBatch(ctx, cat, batches[cat], runID)
		if err != nil {
			return err
		}
		intents = append(intents, out...)
	}
	return r.deliver(ctx, intents, log)
}
