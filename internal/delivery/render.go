package delivery

import (
	"fmt"
	"strings"
	"time"

	"briefbot/internal/event"
)

func reasonLabel(k event.ChangeKind) string {
	switch k {
	case event.ChangeNew:
		return "New"
	case event.ChangeDueSoon:
		return "Due soon"
	case event.ChangeMoved:
		return "Deadline moved"
	case event.ChangeFlagged:
		return "Flagged"
	case event.ChangeRemoved:
		return "Removed"
	default:
		return string(k)
	}
}

// renderText formats an intent as plain text for Telegram and the dry-run
// sink. Webhooks build a structured embed instead.
func renderText(in event.Intent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", reasonLabel(in.Reason), in.Event.Title)

	if in.Event.DueAt != nil && in.Event.Category.Academic() {
		fmt.Fprintf(&b, "\nDue: %s", in.Event.DueAt.UTC().Format("Mon, 02 Jan 15:04 MST"))
	}
	if course := in.Event.SourceFields["course"]; course != "" {
		fmt.Fprintf(&b, "\nCourse: %s", course)
	}
	if len(in.Event.Tickers) > 0 {
		fmt.Fprintf(&b, "\nTickers: %s", strings.Join(in.Event.Tickers, ", "))
	}
	if in.Event.BodyExcerpt != "" {
		fmt.Fprintf(&b, "\n%s", in.Event.BodyExcerpt)
	}
	if in.Event.URL != "" {
		fmt.Fprintf(&b, "\n%s", in.Event.URL)
	}
	return b.String()
}

// embedColor picks a Discord embed color by reason severity.
func embedColor(k event.ChangeKind) int {
	switch k {
	case event.ChangeMoved:
		return 0xE74C3C // red
	case event.ChangeDueSoon:
		return 0xE67E22 // orange
	case event.ChangeFlagged:
		return 0xF1C40F // yellow
	case event.ChangeRemoved:
		return 0x95A5A6 // grey
	default:
		return 0x3498DB // blue
	}
}

func dueField(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("Mon, 02 Jan 15:04 MST")
}
