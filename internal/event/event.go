// Package event defines the canonical model shared by sources, the engine,
// the store, and delivery: categories, channels, change kinds, events, and
// notification intents.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrMalformed marks a source record that fails normalization invariants
// (missing entity ID, unknown category). Malformed events are skipped, never
// fatal for a batch.
var ErrMalformed = errors.New("malformed event")

// Category classifies the logical kind of an entity. Unknown categories are
// rejected at config/normalization time rather than defaulted.
type Category string

const (
	CategoryAssignment   Category = "assignment"
	CategoryExam         Category = "exam"
	CategoryAnnouncement Category = "announcement"
	CategoryAITech       Category = "ai_tech"
	CategoryEarnings     Category = "earnings"
	CategoryMacro        Category = "macro"
	CategoryGenericNews  Category = "generic_news"
)

// Categories lists every known category in a fixed order.
var Categories = []Category{
	CategoryAssignment,
	CategoryExam,
	CategoryAnnouncement,
	CategoryAITech,
	CategoryEarnings,
	CategoryMacro,
	CategoryGenericNews,
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Academic reports whether the category comes from the LMS side (deadline
// semantics) as opposed to the news side (published-at semantics).
func (c Category) Academic() bool {
	switch c {
	case CategoryAssignment, CategoryExam, CategoryAnnouncement:
		return true
	}
	return false
}

// Channel is the destination classification of a notification intent.
type Channel string

const (
	ChannelAlerts       Channel = "alerts"
	ChannelDailyBrief   Channel = "daily-brief"
	ChannelAITech       Channel = "ai-tech"
	ChannelEarnings     Channel = "earnings"
	ChannelMacro        Channel = "macro"
	ChannelMarketAlerts Channel = "market-alerts"
)

// Channels lists every known channel in a fixed order.
var Channels = []Channel{
	ChannelAlerts,
	ChannelDailyBrief,
	ChannelAITech,
	ChannelEarnings,
	ChannelMacro,
	ChannelMarketAlerts,
}

func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Channels {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// ChangeKind classifies how an entity's current observation differs from its
// last stored observation. Closed set; the engine never invents new kinds.
type ChangeKind string

const (
	ChangeNew       ChangeKind = "new"
	ChangeUnchanged ChangeKind = "unchanged"
	ChangeDueSoon   ChangeKind = "due_soon"
	ChangeMoved     ChangeKind = "moved"
	ChangeFlagged   ChangeKind = "flagged"
	ChangeRemoved   ChangeKind = "removed"
)

// Event is the canonical, source-agnostic record the core consumes.
//
// EntityID is stable across re-fetches of the same underlying item and unique
// within a category for the lifetime of the entity. Title and BodyExcerpt are
// display text, not identity.
type Event struct {
	EntityID    string
	Category    Category
	Title       string
	BodyExcerpt string

	// DueAt is the deadline for academic items or the published-at instant
	// for news/announcements. Nil when the source has neither.
	DueAt *time.Time

	// TaskType is the detected academic task type (exam, quiz, project, ...)
	// used for impact weighting. Empty for news.
	TaskType string

	// Points is the grade weight of an academic item; 0 means unknown.
	Points float64

	URL string

	// Tickers and MatchedKeywords are the watchlist matches computed by the
	// source adapters; the store treats them as opaque, the scorer routes on
	// them. MatchedKeywords keys: "ai", "macro".
	Tickers         []string
	MatchedKeywords map[string][]string

	// SourceFields carries remaining category-specific attributes.
	SourceFields map[string]string
}

// Validate checks the normalization invariants the core relies on.
func (e *Event) Validate() error {
	if strings.TrimSpace(e.EntityID) == "" {
		return fmt.Errorf("%w: empty entity id", ErrMalformed)
	}
	if _, err := ParseCategory(string(e.Category)); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// ContentHash returns a stable 16-hex-char digest over the fields relevant to
// change detection. Identical events always hash identically across runs.
func (e *Event) ContentHash() string {
	parts := []string{string(e.Category), e.EntityID}
	extra := map[string]string{
		"title": e.Title,
		"body":  e.BodyExcerpt,
	}
	if e.DueAt != nil {
		extra["due_at"] = e.DueAt.UTC().Format(time.RFC3339)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := extra[k]; v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

// Intent is the core's decision to notify. Ephemeral: produced per run,
// handed to delivery, never persisted.
type Intent struct {
	Channel  Channel
	Priority int
	Event    Event
	Reason   ChangeKind
	RunID    string
}
