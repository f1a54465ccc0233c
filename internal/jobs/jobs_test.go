package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"briefbot/internal/engine"
	"briefbot/internal/event"
	"briefbot/internal/source/canvas"
	"briefbot/internal/source/rss"
	"briefbot/internal/store"
	logx "briefbot/pkg/logx"
)

type captureDeliverer struct {
	batches [][]event.Intent
}

func (c *captureDeliverer) Deliver(_ context.Context, intents []event.Intent) error {
	c.batches = append(c.batches, intents)
	return nil
}

func (c *captureDeliverer) all() []event.Intent {
	var out []event.Intent
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

type fakeCanvas struct {
	courses     []canvas.Course
	assignments map[int64][]canvas.Assignment
	err         error
}

func (f *fakeCanvas) Courses(context.Context) ([]canvas.Course, error) {
	return f.courses, f.err
}

func (f *fakeCanvas) Assignments(_ context.Context, courseID int64) ([]canvas.Assignment, error) {
	return f.assignments[courseID], nil
}

func (f *fakeCanvas) Announcements(context.Context, int64) ([]canvas.Announcement, error) {
	return nil, nil
}

type fakeFetcher struct {
	items map[string][]rss.Item
	fail  map[string]bool
}

func (f *fakeFetcher) Fetch(_ context.Context, feed rss.Feed) ([]rss.Item, error) {
	if f.fail[feed.Name] {
		return nil, errors.New("feed down")
	}
	return f.items[feed.Name], nil
}

func newTestRunner(t *testing.T, opts Options) (*Runner, store.Store, *captureDeliverer) {
	t.Helper()
	st, err := store.Open(store.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "state")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	eng := engine.New(st, engine.Config{
		Detector: engine.DetectorConfig{
			Thresholds: map[event.Category]time.Duration{
				event.CategoryAssignment: 24 * time.Hour,
				event.CategoryExam:       72 * time.Hour,
			},
		},
		EmitRemoved: map[event.Category]bool{
			event.CategoryAssignment: true,
		},
	}, logx.Nop())

	sink := &captureDeliverer{}
	opts.Store = st
	opts.Engine = eng
	opts.Dispatcher = sink
	if opts.Retention == 0 {
		opts.Retention = 30 * 24 * time.Hour
	}
	return NewRunner(opts, logx.Nop()), st, sink
}

func TestCanvasJobLifecycle(t *testing.T) {
	t.Parallel()
	due := time.Now().UTC().Add(10 * 24 * time.Hour)
	fc := &fakeCanvas{
		courses: []canvas.Course{{ID: 1, Name: "CS"}},
		assignments: map[int64][]canvas.Assignment{
			1: {{ID: 7, Name: "Problem Set 3", DueAt: &due, WorkflowState: "published"}},
		},
	}
	r, _, sink := newTestRunner(t, Options{Canvas: fc})
	ctx := context.Background()

	if err := r.Run(ctx, "canvas"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	got := sink.all()
	if len(got) != 1 || got[0].Reason != event.ChangeNew {
		t.Fatalf("first run intents = %+v", got)
	}

	sink.batches = nil
	if err := r.Run(ctx, "canvas"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(sink.all()) != 0 {
		t.Fatalf("unchanged re-run produced intents: %+v", sink.all())
	}

	// Assignment disappears: exactly one removal notice, then silence.
	fc.assignments = map[int64][]canvas.Assignment{}
	sink.batches = nil
	if err := r.Run(ctx, "canvas"); err != nil {
		t.Fatalf("removal run: %v", err)
	}
	got = sink.all()
	if len(got) != 1 || got[0].Reason != event.ChangeRemoved {
		t.Fatalf("removal run intents = %+v", got)
	}

	sink.batches = nil
	if err := r.Run(ctx, "canvas"); err != nil {
		t.Fatalf("post-removal run: %v", err)
	}
	if len(sink.all()) != 0 {
		t.Fatalf("removal fired twice: %+v", sink.all())
	}
}

func TestCanvasFetchFailureAbortsBeforeSweep(t *testing.T) {
	t.Parallel()
	due := time.Now().UTC().Add(48 * time.Hour)
	fc := &fakeCanvas{
		courses: []canvas.Course{{ID: 1, Name: "CS"}},
		assignments: map[int64][]canvas.Assignment{
			1: {{ID: 7, Name: "PS3", DueAt: &due, WorkflowState: "published"}},
		},
	}
	r, st, sink := newTestRunner(t, Options{Canvas: fc})
	ctx := context.Background()

	if err := r.Run(ctx, "canvas"); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	fc.err = errors.New("canvas down")
	sink.batches = nil
	if err := r.Run(ctx, "canvas"); err == nil {
		t.Fatal("expected fetch failure to surface")
	}
	if len(sink.all()) != 0 {
		t.Fatalf("failed run delivered intents: %+v", sink.all())
	}
	rec, ok, err := st.Get(ctx, event.CategoryAssignment, "canvas:1:7")
	if err != nil || !ok {
		t.Fatalf("record lost after failed run: ok=%v err=%v", ok, err)
	}
	if rec.RemovedAt != nil {
		t.Fatal("fetch failure must not be recorded as removal")
	}
}

func TestNewsFeedFailureSkipsOnlyItsCategory(t *testing.T) {
	t.Parallel()
	lists := rss.Watchlists{
		Tickers:       []string{"NVDA"},
		AIKeywords:    []string{"AI"},
		MacroKeywords: []string{"CPI"},
	}
	feeds := []rss.Feed{
		{Name: "macro-feed", URL: "https://example.org/m", Category: event.CategoryMacro},
		{Name: "ai-feed", URL: "https://example.org/a", Category: event.CategoryAITech},
	}
	ff := &fakeFetcher{
		fail: map[string]bool{"macro-feed": true},
		items: map[string][]rss.Item{
			"ai-feed": {{Title: "AI chips surge", GUID: "g1", Category: event.CategoryAITech, Source: "ai-feed"}},
		},
	}
	r, st, sink := newTestRunner(t, Options{
		Fetcher: ff,
		Filter:  rss.NewFilter(lists, 50),
		Feeds:   feeds,
	})
	ctx := context.Background()

	// Seed a macro record so the failed feed has something to wrongly remove.
	now := time.Now().UTC()
	seed := store.Record{
		EntityID:     "news:seeded",
		Category:     event.CategoryMacro,
		Title:        "CPI preview",
		LastSeenHash: "abc",
		FirstSeenAt:  now,
		LastSeenAt:   now,
	}
	if err := st.Put(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := r.Run(ctx, "news"); err != nil {
		t.Fatalf("news run: %v", err)
	}
	got := sink.all()
	if len(got) != 1 || got[0].Event.Category != event.CategoryAITech {
		t.Fatalf("intents = %+v", got)
	}
	rec, ok, err := st.Get(ctx, event.CategoryMacro, "news:seeded")
	if err != nil || !ok {
		t.Fatalf("seeded record: ok=%v err=%v", ok, err)
	}
	if rec.RemovedAt != nil {
		t.Fatal("failed feed's records must not be swept as removed")
	}
}

func TestBriefDigest(t *testing.T) {
	t.Parallel()
	r, st, sink := newTestRunner(t, Options{})
	ctx := context.Background()
	now := time.Now().UTC()

	seedDue := func(id, title string, due time.Time, cat event.Category) {
		rec := store.Record{
			EntityID:      id,
			Category:      cat,
			Title:         title,
			LastSeenDueAt: &due,
			FirstSeenAt:   now,
			LastSeenAt:    now,
		}
		if err := st.Put(ctx, rec); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	seedDue("canvas:1:1", "PS due today", now.Add(5*time.Hour), event.CategoryAssignment)
	seedDue("canvas:1:2", "Midterm", now.Add(60*time.Hour), event.CategoryExam)
	seedDue("canvas:1:3", "Ancient HW", now.Add(-40*24*time.Hour), event.CategoryAssignment)

	if err := r.Run(ctx, "brief"); err != nil {
		t.Fatalf("brief run: %v", err)
	}
	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("intents = %+v", got)
	}
	body := got[0].Event.BodyExcerpt
	if !strings.Contains(body, "Today:") || !strings.Contains(body, "PS due today") {
		t.Fatalf("brief missing today section:\n%s", body)
	}
	if !strings.Contains(body, "This week:") || !strings.Contains(body, "Midterm") {
		t.Fatalf("brief missing week section:\n%s", body)
	}
	if strings.Contains(body, "Ancient HW") {
		t.Fatalf("long-stale item should be excluded:\n%s", body)
	}
	if got[0].Channel != event.ChannelDailyBrief {
		t.Fatalf("channel = %q", got[0].Channel)
	}
}

func TestBriefEmptyStateSendsNothing(t *testing.T) {
	t.Parallel()
	r, _, sink := newTestRunner(t, Options{})
	if err := r.Run(context.Background(), "brief"); err != nil {
		t.Fatalf("brief run: %v", err)
	}
	if len(sink.all()) != 0 {
		t.Fatalf("empty state produced intents: %+v", sink.all())
	}
}

func TestWeeklyReportCountsRecentNotifications(t *testing.T) {
	t.Parallel()
	r, st, sink := newTestRunner(t, Options{})
	ctx := context.Background()
	now := time.Now().UTC()

	seedNotified := func(id string, cat event.Category, reason event.ChangeKind, at time.Time) {
		rec := store.Record{
			EntityID:           id,
			Category:           cat,
			Title:              id,
			LastSeenHash:       "h",
			FirstSeenAt:        at,
			LastSeenAt:         at,
			LastNotifiedAt:     &at,
			LastNotifiedReason: reason,
		}
		if err := st.Put(ctx, rec); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	seedNotified("canvas:1:1", event.CategoryAssignment, event.ChangeNew, now.Add(-2*24*time.Hour))
	seedNotified("canvas:1:2", event.CategoryAssignment, event.ChangeDueSoon, now.Add(-6*24*time.Hour))
	seedNotified("news:old", event.CategoryMacro, event.ChangeNew, now.Add(-20*24*time.Hour))

	if err := r.Run(ctx, "weekly"); err != nil {
		t.Fatalf("weekly run: %v", err)
	}
	got := sink.all()
	if len(got) != 1 || got[0].Channel != event.ChannelDailyBrief {
		t.Fatalf("intents = %+v", got)
	}
	body := got[0].Event.BodyExcerpt
	if !strings.Contains(body, "Notifications this week: 2") {
		t.Fatalf("wrong total:\n%s", body)
	}
	if !strings.Contains(body, "assignment: 2") {
		t.Fatalf("missing category count:\n%s", body)
	}
	if !strings.Contains(body, "due_soon: 1") {
		t.Fatalf("missing change count:\n%s", body)
	}
	if strings.Contains(body, "macro") {
		t.Fatalf("stale notification counted:\n%s", body)
	}
}

func TestWeeklyReportEmptyWeekSendsNothing(t *testing.T) {
	t.Parallel()
	r, _, sink := newTestRunner(t, Options{})
	if err := r.Run(context.Background(), "weekly"); err != nil {
		t.Fatalf("weekly run: %v", err)
	}
	if len(sink.all()) != 0 {
		t.Fatalf("empty week produced intents: %+v", sink.all())
	}
}

func TestRunAllExecutesEveryJob(t *testing.T) {
	t.Parallel()
	due := time.Now().UTC().Add(10 * time.Hour)
	fc := &fakeCanvas{
		courses: []canvas.Course{{ID: 1, Name: "CS"}},
		assignments: map[int64][]canvas.Assignment{
			1: {{ID: 9, Name: "Lab 2", DueAt: &due, WorkflowState: "published"}},
		},
	}
	r, _, sink := newTestRunner(t, Options{Canvas: fc})

	if err := r.Run(context.Background(), "all"); err != nil {
		t.Fatalf("run all: %v", err)
	}
	// Canvas notifies the new assignment, the brief digests it, and the
	// weekly report counts the notification; news and gc run as no-ops
	// without feeds or expired records.
	got := sink.all()
	if len(got) != 3 {
		t.Fatalf("intents = %+v", got)
	}
	if got[0].Reason != event.ChangeNew {
		t.Fatalf("first intent reason = %q", got[0].Reason)
	}
	if !strings.Contains(got[1].Event.BodyExcerpt, "Lab 2") {
		t.Fatalf("brief missing assignment:\n%s", got[1].Event.BodyExcerpt)
	}
	if !strings.Contains(got[2].Event.BodyExcerpt, "Notifications this week: 1") {
		t.Fatalf("weekly report:\n%s", got[2].Event.BodyExcerpt)
	}
}

func TestUnknownJobRejected(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestRunner(t, Options{})
	if err := r.Run(context.Background(), "mystery"); err == nil {
		t.Fatal("expected unknown job error")
	}
}
