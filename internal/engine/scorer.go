package engine

import (
	"time"

	"briefbot/internal/event"
)

// Score is a pure function from (event, change kind) to a priority and a
// single target channel. No store access, no clock reads (the caller passes
// "now"), identical inputs always produce identical outputs.
//
// The change kind contributes a base tier with gaps wide enough that the
// 0-100 urgency/impact blend can never reorder tiers:
// Moved > DueSoon(exam) > DueSoon(other) > Flagged > New > Removed.
func Score(ev event.Event, kind event.ChangeKind, now time.Time) (int, event.Channel) {
	return kindBase(ev, kind) + blend(ev, now), route(ev, kind)
}

func kindBase(ev event.Event, kind event.ChangeKind) int {
	switch kind {
	case event.ChangeMoved:
		return 1000
	case event.ChangeDueSoon:
		if examLike(ev) {
			return 800
		}
		return 700
	case event.ChangeFlagged:
		return 500
	case event.ChangeNew:
		return 300
	case event.ChangeRemoved:
		return 100
	default:
		return 0
	}
}

func examLike(ev event.Event) bool {
	if ev.Category == event.CategoryExam {
		return true
	}
	switch ev.TaskType {
	case "exam", "midterm", "final", "quiz":
		return true
	}
	return false
}

// typeWeights is the impact weighting per detected academic task type.
var typeWeights = map[string]int{
	"exam":        100,
	"midterm":     100,
	"final":       100,
	"project":     85,
	"paper":       80,
	"quiz":        70,
	"problem_set": 65,
	"assignment":  60,
	"lab":         55,
	"discussion":  40,
	"reading":     30,
	"other":       50,
}

// newsWeights is the impact weighting per news category.
var newsWeights = map[event.Category]int{
	event.CategoryEarnings:    70,
	event.CategoryMacro:       65,
	event.CategoryAITech:      60,
	event.CategoryGenericNews: 50,
}

// blend combines urgency, impact, and risk (0-100 each) the same way the
// per-task priority breakdown does: urgency dominates, then impact, then
// the task-type risk term.
func blend(ev event.Event, now time.Time) int {
	u := urgency(ev, now)
	i := impact(ev)
	r := risk(ev)
	return (u*5 + i*3 + r*2) / 10
}

// urgency maps time-to-deadline onto a saturating 0-100 step curve. It only
// applies deadline semantics to academic categories; news carries a
// published-at instant, not a deadline, so it gets the flat no-deadline base.
func urgency(ev event.Event, now time.Time) int {
	if !ev.Category.Academic() || ev.DueAt == nil {
		return 20
	}
	hours := ev.DueAt.Sub(now).Hours()
	switch {
	case hours < 0:
		return 100 // overdue
	case hours <= 6:
		return 100
	case hours <= 12:
		return 95
	case hours <= 24:
		return 90
	case hours <= 48:
		return 75
	case hours <= 72:
		return 60
	case hours <= 168:
		return 40
	case hours <= 336:
		return 25
	default:
		return 10
	}
}

func impact(ev event.Event) int {
	w := risk(ev)
	if ev.Points <= 0 {
		return w
	}
	var factor int // percent
	switch {
	case ev.Points >= 100:
		factor = 100
	case ev.Points >= 50:
		factor = 90
	case ev.Points >= 25:
		factor = 80
	case ev.Points >= 10:
		factor = 70
	default:
		factor = 60
	}
	return w * factor / 100
}

func risk(ev event.Event) int {
	if ev.Category.Academic() {
		if w, ok := typeWeights[ev.TaskType]; ok {
			return w
		}
		if ev.Category == event.CategoryExam {
			return typeWeights["exam"]
		}
		return typeWeights["other"]
	}
	if w, ok := newsWeights[ev.Category]; ok {
		return w
	}
	return newsWeights[event.CategoryGenericNews]
}

// route maps an event to exactly one channel. Academic items go to alerts
// when the change is urgent and to the daily brief otherwise. News resolves
// by fixed precedence: explicit category first, then for generic items
// macro keywords beat AI keywords beat watchlist tickers. One event never
// fans out to two channels.
func route(ev event.Event, kind event.ChangeKind) event.Channel {
	if ev.Category.Academic() {
		switch kind {
		case event.ChangeMoved, event.ChangeDueSoon, event.ChangeFlagged:
			return event.ChannelAlerts
		default:
			return event.ChannelDailyBrief
		}
	}

	switch ev.Category {
	case event.CategoryEarnings:
		return event.ChannelEarnings
	case event.CategoryMacro:
		return event.ChannelMacro
	case event.CategoryAITech:
		return event.ChannelAITech
	}

	if len(ev.MatchedKeywords["macro"]) > 0 {
		return event.ChannelMacro
	}
	if len(ev.MatchedKeywords["ai"]) > 0 {
		return event.ChannelAITech
	}
	if len(ev.Tickers) > 0 {
		return event.ChannelEarnings
	}
	return event.ChannelMarketAlerts
}
