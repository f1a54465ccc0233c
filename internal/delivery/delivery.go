// Package delivery sends notification intents to their channels: Discord-style
// webhooks, Telegram chats, or a dry-run sink that only logs.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"briefbot/internal/event"
	logx "briefbot/pkg/logx"
)

// Sink delivers a single intent to its channel.
type Sink interface {
	Send(ctx context.Context, in event.Intent) error
}

// Options selects and configures the sink.
type Options struct {
	Mode       string
	Webhooks   map[event.Channel]string
	RatePerSec int
	RetryMax   int
	RetryBase  time.Duration

	TelegramToken string
	TelegramChats map[event.Channel]int64
}

// Dispatcher pushes a batch of intents through one sink, rate-limited. A
// failed intent is logged and skipped; the rest of the batch still goes out.
type Dispatcher struct {
	sink    Sink
	limiter *rate.Limiter
	log     logx.Logger
}

func New(opts Options, log logx.Logger) (*Dispatcher, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	var sink Sink
	var err error
	switch opts.Mode {
	case "webhook":
		sink, err = newWebhookSink(opts, log)
	case "telegram":
		sink, err = newTelegramSink(opts, log)
	case "dry-run", "":
		sink = &dryRunSink{log: log}
	default:
		err = fmt.Errorf("delivery: unknown mode %q", opts.Mode)
	}
	if err != nil {
		return nil, err
	}

	perSec := opts.RatePerSec
	if perSec <= 0 {
		perSec = 3
	}
	return &Dispatcher{
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(perSec), perSec),
		log:     log,
	}, nil
}

// Deliver sends intents in the order given. The engine already sorted them by
// priority, so the most important notification goes out first.
func (d *Dispatcher) Deliver(ctx context.Context, intents []event.Intent) error {
	var errs []error
	for _, in := range intents {
		if err := d.limiter.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}
		if err := d.sink.Send(ctx, in); err != nil {
			d.log.Warn("delivery failed",
				logx.String("entity", in.Event.EntityID),
				logx.String("channel", string(in.Channel)),
				logx.Err(err))
			errs = append(errs, err)
			continue
		}
		d.log.Debug("delivered",
			logx.String("entity", in.Event.EntityID),
			logx.String("channel", string(in.Channel)),
			logx.Int("priority", in.Priority))
	}
	return errors.Join(errs...)
}
