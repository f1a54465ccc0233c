package engine

import (
	"testing"
	"time"

	"briefbot/internal/event"
)

func TestScoreDeterminism(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	due := now.Add(18 * time.Hour)
	ev := event.Event{
		EntityID: "canvas:1:42",
		Category: event.CategoryAssignment,
		Title:    "Essay draft",
		TaskType: "paper",
		Points:   50,
		DueAt:    &due,
	}
	p1, c1 := Score(ev, event.ChangeDueSoon, now)
	p2, c2 := Score(ev, event.ChangeDueSoon, now)
	if p1 != p2 || c1 != c2 {
		t.Fatalf("Score not deterministic: (%d,%s) vs (%d,%s)", p1, c1, p2, c2)
	}
}

func TestSeverityOrdering(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	due := now.Add(20 * time.Hour)

	exam := event.Event{EntityID: "e", Category: event.CategoryExam, TaskType: "exam", DueAt: &due}
	assign := event.Event{EntityID: "a", Category: event.CategoryAssignment, TaskType: "assignment", DueAt: &due}

	moved, _ := Score(assign, event.ChangeMoved, now)
	dueExam, _ := Score(exam, event.ChangeDueSoon, now)
	dueAssign, _ := Score(assign, event.ChangeDueSoon, now)
	flagged, _ := Score(assign, event.ChangeFlagged, now)
	fresh, _ := Score(assign, event.ChangeNew, now)

	if !(moved > dueExam && dueExam > dueAssign && dueAssign > flagged && flagged > fresh) {
		t.Fatalf("severity ordering broken: moved=%d dueExam=%d dueAssign=%d flagged=%d new=%d",
			moved, dueExam, dueAssign, flagged, fresh)
	}
}

func TestUrgencyMonotonicAsDeadlineApproaches(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	prev := -1
	for _, hours := range []int{400, 300, 150, 60, 40, 20, 10, 5} {
		due := now.Add(time.Duration(hours) * time.Hour)
		ev := event.Event{EntityID: "a", Category: event.CategoryAssignment, TaskType: "assignment", DueAt: &due}
		p, _ := Score(ev, event.ChangeDueSoon, now)
		if p < prev {
			t.Fatalf("priority decreased as deadline approached: %d then %d at %dh", prev, p, hours)
		}
		prev = p
	}
}

func TestNoDeadlineUsesFlatBase(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	ev := event.Event{EntityID: "n", Category: event.CategoryAnnouncement}
	p1, _ := Score(ev, event.ChangeNew, now)
	p2, _ := Score(ev, event.ChangeNew, now.Add(48*time.Hour))
	if p1 != p2 {
		t.Fatalf("flat base should not depend on now: %d vs %d", p1, p2)
	}
}

func TestNewsRoutingPrecedence(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		ev   event.Event
		want event.Channel
	}{
		{
			name: "explicit earnings category",
			ev:   event.Event{EntityID: "1", Category: event.CategoryEarnings},
			want: event.ChannelEarnings,
		},
		{
			name: "both macro and ai keywords resolve to macro only",
			ev: event.Event{
				EntityID: "2", Category: event.CategoryGenericNews,
				MatchedKeywords: map[string][]string{"ai": {"LLM"}, "macro": {"CPI"}},
			},
			want: event.ChannelMacro,
		},
		{
			name: "ai keywords alone",
			ev: event.Event{
				EntityID: "3", Category: event.CategoryGenericNews,
				MatchedKeywords: map[string][]string{"ai": {"GPU"}},
			},
			want: event.ChannelAITech,
		},
		{
			name: "watchlist ticker alone",
			ev: event.Event{
				EntityID: "4", Category: event.CategoryGenericNews,
				Tickers: []string{"NVDA"},
			},
			want: event.ChannelEarnings,
		},
		{
			name: "no matches falls through to market alerts",
			ev:   event.Event{EntityID: "5", Category: event.CategoryGenericNews},
			want: event.ChannelMarketAlerts,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, got := Score(tt.ev, event.ChangeNew, now)
			if got != tt.want {
				t.Fatalf("routed to %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAcademicRouting(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	due := now.Add(10 * time.Hour)
	ev := event.Event{EntityID: "a", Category: event.CategoryAssignment, TaskType: "assignment", DueAt: &due}

	if _, ch := Score(ev, event.ChangeDueSoon, now); ch != event.ChannelAlerts {
		t.Fatalf("DueSoon routed to %q, want alerts", ch)
	}
	if _, ch := Score(ev, event.ChangeNew, now); ch != event.ChannelDailyBrief {
		t.Fatalf("New routed to %q, want daily-brief", ch)
	}
}
