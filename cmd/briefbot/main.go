package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"briefbot/internal/config"
	"briefbot/internal/delivery"
	"briefbot/internal/engine"
	"briefbot/internal/jobs"
	"briefbot/internal/source/canvas"
	"briefbot/internal/source/rss"
	"briefbot/internal/store"
	logx "briefbot/pkg/logx"
	"briefbot/pkg/sdnotify"
)

const jobTimeout = 5 * time.Minute

// cronLogger adapts the structured logger to cron's interface. Only the
// SkipIfStillRunning wrapper logs through it, so Info lines are skip notices
// and worth a warning.
type cronLogger struct{ log logx.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.log.Warn(msg, logx.Any("detail", kv))
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.log.Error(msg, logx.Err(err), logx.Any("detail", kv))
}

func main() {
	var (
		cfgPath string
		jobName string
		once    bool
		dryRun  bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.StringVar(&jobName, "job", "", "run a single job (canvas, news, brief, weekly, gc, all) and exit")
	flag.BoolVar(&once, "once", false, "run every job once and exit, same as -job all")
	flag.BoolVar(&dryRun, "dry-run", false, "compute decisions without committing state or sending")
	flag.Parse()

	if once && jobName == "" {
		jobName = "all"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath, jobName, dryRun); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath, jobName string, dryRun bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log, logCloser, err := logx.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	st, err := store.Open(cfg.Storage, log.With(logx.String("component", "store")))
	if err != nil {
		return err
	}
	defer st.Close()

	var (
		mu     sync.RWMutex
		runner *jobs.Runner
	)
	runner, err = buildRunner(cfg, st, dryRun, log)
	if err != nil {
		return err
	}

	runJob := func(ctx context.Context, name string) error {
		mu.RLock()
		r := runner
		mu.RUnlock()
		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		defer cancel()
		return r.Run(jobCtx, name)
	}

	if jobName != "" {
		return runJob(ctx, jobName)
	}

	// Scheduled mode. Config edits swap the runner between runs; storage
	// changes need a restart because the store owns the run lock. A job that
	// overruns its own interval is skipped, not stacked.
	c := cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})))
	for _, name := range jobs.Names() {
		spec := cfg.Jobs[name]
		if spec == "" {
			spec = defaultSchedules[name]
		}
		normalized, err := parseSchedule(spec)
		if err != nil {
			return fmt.Errorf("jobs.%s: %w", name, err)
		}
		name := name
		if _, err := c.AddFunc(normalized, func() {
			if err := runJob(ctx, name); err != nil {
				log.Error("job failed", logx.String("job", name), logx.Err(err))
			}
		}); err != nil {
			return fmt.Errorf("jobs.%s: %w", name, err)
		}
		log.Info("job scheduled", logx.String("job", name), logx.String("schedule", normalized))
	}

	reload, err := config.Watch(ctx, cfgPath, log.With(logx.String("component", "config")))
	if err != nil {
		log.Warn("config watch unavailable", logx.Err(err))
	} else {
		go func() {
			for range reload {
				next, err := config.Load(cfgPath)
				if err != nil {
					log.Warn("config reload failed, keeping previous", logx.Err(err))
					continue
				}
				if next.Storage != cfg.Storage {
					log.Warn("storage config changed, restart required to apply")
				}
				nextRunner, err := buildRunner(next, st, dryRun, log)
				if err != nil {
					log.Warn("config reload failed, keeping previous", logx.Err(err))
					continue
				}
				mu.Lock()
				cfg = next
				runner = nextRunner
				mu.Unlock()
				log.Info("config reloaded")
			}
		}()
	}

	c.Start()
	sdnotify.Ready()
	sdnotify.Status("scheduling jobs")
	log.Info("briefbot started", logx.String("config", cfgPath), logx.Bool("dry_run", dryRun))

	<-ctx.Done()
	sdnotify.Stopping()
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		log.Warn("shutdown timed out waiting for running jobs")
	}
	log.Info("briefbot stopped")
	return nil
}

// buildRunner assembles the per-config pipeline on top of the long-lived
// store: engine, sources, filter, and delivery.
func buildRunner(cfg *config.Resolved, st store.Store, dryRun bool, log logx.Logger) (*jobs.Runner, error) {
	engCfg := cfg.Engine
	engCfg.DryRun = engCfg.DryRun || dryRun
	eng := engine.New(st, engCfg, log.With(logx.String("component", "engine")))

	deliveryOpts := delivery.Options{
		Mode:          cfg.Delivery.Mode,
		Webhooks:      cfg.Delivery.Webhooks,
		RatePerSec:    cfg.Delivery.RatePerSec,
		RetryMax:      cfg.Delivery.RetryMax,
		RetryBase:     cfg.Delivery.RetryBase,
		TelegramToken: cfg.Delivery.TelegramToken,
		TelegramChats: cfg.Delivery.TelegramChats,
	}
	if dryRun {
		deliveryOpts.Mode = "dry-run"
	}
	disp, err := delivery.New(deliveryOpts, log.With(logx.String("component", "delivery")))
	if err != nil {
		return nil, err
	}

	var canvasAPI jobs.CanvasAPI
	if cfg.Canvas.Configured() {
		canvasAPI = canvas.NewClient(canvas.Options{
			BaseURL:  cfg.Canvas.BaseURL,
			Token:    cfg.Canvas.Token,
			MaxPages: cfg.Canvas.MaxPages,
			Timeout:  cfg.Canvas.Timeout,
		}, log.With(logx.String("component", "canvas")))
	}

	feeds := make([]rss.Feed, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		feeds = append(feeds, rss.Feed{Name: f.Name, URL: f.URL, Category: f.Category})
	}

	return jobs.NewRunner(jobs.Options{
		Engine:     eng,
		Store:      st,
		Dispatcher: disp,
		Canvas:     canvasAPI,
		Fetcher:    rss.NewFetcher(20*time.Second, log.With(logx.String("component", "rss"))),
		Filter: rss.NewFilter(rss.Watchlists{
			Tickers:        cfg.Watchlists.Tickers,
			AIKeywords:     cfg.Watchlists.AIKeywords,
			MacroKeywords:  cfg.Watchlists.MacroKeywords,
			TrustedSources: cfg.Watchlists.TrustedSources,
			NoiseKeywords:  cfg.Watchlists.NoiseKeywords,
		}, cfg.MinNewsScore),
		Feeds:     feeds,
		Retention: cfg.Retention,
	}, log.With(logx.String("component", "jobs"))), nil
}
