// Package engine holds the stateful decision core: change detection against
// the store, pure priority scoring, and the per-batch notification decision.
package engine

import (
	"strings"
	"time"

	"briefbot/internal/event"
	"briefbot/internal/store"
)

// DetectorConfig carries the resolved thresholds and keyword sets. Plain
// values; the detector never touches config files or the network.
type DetectorConfig struct {
	// Thresholds maps a category to its urgency window, e.g. assignments
	// within 24h, exams within 72h. A category without an entry never
	// produces DueSoon.
	Thresholds map[event.Category]time.Duration

	// MandatoryKeywords flag an entity even when its core fields are
	// unchanged (e.g. "mandatory", "exam moved").
	MandatoryKeywords []string
}

type Detector struct {
	cfg DetectorConfig
}

func NewDetector(cfg DetectorConfig) Detector {
	return Detector{cfg: cfg}
}

// Classify compares an incoming event against the stored version of the same
// entity and names the change.
//
// Precedence: Moved beats DueSoon beats Flagged. A deadline that moved
// earlier is always alert-worthy regardless of distance, so it is checked
// first. DueSoon and Flagged consult the previously notified reason so a
// condition that stays true does not re-fire every run.
func (d Detector) Classify(ev event.Event, prev *store.Record, now time.Time) event.ChangeKind {
	if prev == nil || prev.RemovedAt != nil {
		// Never seen, or seen and since removed at the source. A re-published
		// entity starts its lifecycle over.
		return event.ChangeNew
	}

	if ev.DueAt != nil && prev.LastSeenDueAt != nil && ev.DueAt.Before(*prev.LastSeenDueAt) {
		return event.ChangeMoved
	}

	if ev.DueAt != nil {
		if th, ok := d.cfg.Thresholds[ev.Category]; ok && th > 0 {
			remaining := ev.DueAt.Sub(now)
			// Overdue items are not "due soon"; they had their chance.
			if remaining > 0 && remaining <= th && !alreadyFiredDeadline(prev.LastNotifiedReason) {
				return event.ChangeDueSoon
			}
		}
	}

	if d.matchesMandatory(ev.Title+" "+ev.BodyExcerpt) && prev.LastNotifiedReason != event.ChangeFlagged {
		return event.ChangeFlagged
	}

	return event.ChangeUnchanged
}

// alreadyFiredDeadline reports whether a deadline-driven notification already
// went out for the current deadline. Moved counts: after a moved-earlier
// alert the owner knows the deadline, so the threshold crossing must not fire
// again until the deadline changes once more.
func alreadyFiredDeadline(reason event.ChangeKind) bool {
	return reason == event.ChangeDueSoon || reason == event.ChangeMoved
}

func (d Detector) matchesMandatory(text string) bool {
	if len(d.cfg.MandatoryKeywords) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range d.cfg.MandatoryKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
