package canvas

import (
	"strings"
	"testing"
	"time"

	"briefbot/internal/event"
)

func TestDetectTaskType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		title string
		subs  []string
		want  string
	}{
		{title: "Midterm Exam Review", want: "exam"},
		{title: "Weekly Quiz 4", want: "quiz"},
		{title: "Capstone Project Proposal", want: "project"},
		{title: "Reflection Essay", want: "paper"},
		{title: "Chem Lab 2", want: "lab"},
		{title: "Reply to two classmates", want: "discussion"},
		{title: "Untitled", subs: []string{"online_quiz"}, want: "quiz"},
		{title: "Homework 3", want: "assignment"},
	}
	for _, tt := range tests {
		if got := DetectTaskType(tt.title, tt.subs); got != tt.want {
			t.Fatalf("DetectTaskType(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestNormalizeAssignment(t *testing.T) {
	t.Parallel()
	due := time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)
	course := Course{ID: 42, Name: "CS 2040"}

	ev, ok := NormalizeAssignment(Assignment{
		ID:             7,
		Name:           "Problem Set 3",
		DueAt:          &due,
		PointsPossible: 50,
		WorkflowState:  "published",
	}, course)
	if !ok {
		t.Fatal("published assignment dropped")
	}
	if ev.EntityID != "canvas:42:7" {
		t.Fatalf("EntityID = %q", ev.EntityID)
	}
	if ev.Category != event.CategoryAssignment {
		t.Fatalf("Category = %q", ev.Category)
	}
	if ev.DueAt == nil || !ev.DueAt.Equal(due) {
		t.Fatalf("DueAt = %v", ev.DueAt)
	}
	if err := ev.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestNormalizeAssignmentStableID(t *testing.T) {
	t.Parallel()
	course := Course{ID: 42, Name: "CS 2040"}
	a := Assignment{ID: 7, Name: "Problem Set 3", WorkflowState: "published"}
	ev1, _ := NormalizeAssignment(a, course)
	ev2, _ := NormalizeAssignment(a, course)
	if ev1.EntityID != ev2.EntityID || ev1.ContentHash() != ev2.ContentHash() {
		t.Fatal("normalization not stable across re-fetches")
	}
}

func TestNormalizeAssignmentExamCategory(t *testing.T) {
	t.Parallel()
	ev, ok := NormalizeAssignment(Assignment{
		ID:            9,
		Name:          "Final Exam",
		WorkflowState: "published",
	}, Course{ID: 1, Name: "Bio"})
	if !ok || ev.Category != event.CategoryExam {
		t.Fatalf("ok=%v category=%q, want exam", ok, ev.Category)
	}
}

func TestNormalizeAssignmentSkipsUnpublished(t *testing.T) {
	t.Parallel()
	_, ok := NormalizeAssignment(Assignment{
		ID:            8,
		Name:          "Draft",
		WorkflowState: "unpublished",
	}, Course{ID: 1, Name: "Bio"})
	if ok {
		t.Fatal("unpublished assignment should be dropped")
	}
}

func TestNormalizeAnnouncementStripsHTML(t *testing.T) {
	t.Parallel()
	ev, ok := NormalizeAnnouncement(Announcement{
		ID:      3,
		Title:   "Room change",
		Message: "<p>Lecture moved to <b>Hall B</b>.&nbsp;See&nbsp;you there.</p>",
	}, Course{ID: 1, Name: "Bio"})
	if !ok {
		t.Fatal("announcement dropped")
	}
	if strings.ContainsAny(ev.BodyExcerpt, "<>") {
		t.Fatalf("excerpt still contains markup: %q", ev.BodyExcerpt)
	}
	if !strings.Contains(ev.BodyExcerpt, "Lecture moved to Hall B") {
		t.Fatalf("excerpt = %q", ev.BodyExcerpt)
	}
	if ev.DueAt != nil {
		t.Fatal("announcements carry no deadline")
	}
}

func TestExcerptTruncates(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("word ", 200)
	got := Excerpt(long, 300)
	if len([]rune(got)) > 303 {
		t.Fatalf("excerpt too long: %d runes", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("truncated excerpt should end with ellipsis: %q", got[len(got)-10:])
	}
}

func TestNextLink(t *testing.T) {
	t.Parallel()
	header := `<https://school.test/api/v1/courses?page=2>; rel="next", <https://school.test/api/v1/courses?page=5>; rel="last"`
	if got := nextLink(header); got != "https://school.test/api/v1/courses?page=2" {
		t.Fatalf("nextLink = %q", got)
	}
	if got := nextLink(`<https://x>; rel="last"`); got != "" {
		t.Fatalf("nextLink without next = %q", got)
	}
}
