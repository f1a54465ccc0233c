package delivery

import (
	"context"

	"briefbot/internal/event"
	logx "briefbot/pkg/logx"
)

// dryRunSink logs what would have been sent. Used by default and whenever the
// run is forced dry.
type dryRunSink struct {
	log logx.Logger
}

func (s *dryRunSink) Send(_ context.Context, in event.Intent) error {
	s.log.Info("dry-run notification",
		logx.String("channel", string(in.Channel)),
		logx.Int("priority", in.Priority),
		logx.String("reason", string(in.Reason)),
		logx.String("entity", in.Event.EntityID),
		logx.String("title", in.Event.Title),
		logx.String("run_id", in.RunID))
	return nil
}
