package canvas

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"briefbot/internal/event"
)

const excerptLimit = 300

var taskTypeKeywords = []struct {
	taskType string
	words    []string
}{
	{"exam", []string{"exam", "midterm", "final", "test"}},
	{"quiz", []string{"quiz"}},
	{"project", []string{"project", "capstone", "portfolio"}},
	{"paper", []string{"paper", "essay", "report", "thesis", "writing"}},
	{"lab", []string{"lab", "laboratory", "experiment"}},
	{"discussion", []string{"discussion", "forum", "reply", "respond"}},
}

// DetectTaskType infers the task type from the title, falling back to the
// Canvas submission types. Ordered checks keep the result deterministic when
// a title matches several keyword groups.
func DetectTaskType(title string, submissionTypes []string) string {
	lower := strings.ToLower(title)
	for _, tk := range taskTypeKeywords {
		for _, w := range tk.words {
			if strings.Contains(lower, w) {
				return tk.taskType
			}
		}
	}
	for _, st := range submissionTypes {
		switch st {
		case "online_quiz":
			return "quiz"
		case "discussion_topic":
			return "discussion"
		}
	}
	return "assignment"
}

// NormalizeAssignment maps a Canvas assignment to a canonical event.
// Unpublished assignments are dropped (ok=false); they reappear as New if
// published later.
func NormalizeAssignment(a Assignment, course Course) (event.Event, bool) {
	if a.ID == 0 || a.WorkflowState != "published" {
		return event.Event{}, false
	}

	taskType := DetectTaskType(a.Name, a.SubmissionTypes)
	cat := event.CategoryAssignment
	switch taskType {
	case "exam", "quiz":
		cat = event.CategoryExam
	}

	return event.Event{
		EntityID: fmt.Sprintf("canvas:%d:%d", course.ID, a.ID),
		Category: cat,
		Title:    a.Name,
		DueAt:    a.DueAt,
		TaskType: taskType,
		Points:   a.PointsPossible,
		URL:      a.HTMLURL,
		SourceFields: map[string]string{
			"course":    course.Name,
			"task_type": taskType,
		},
	}, true
}

// NormalizeAnnouncement maps a Canvas announcement to a canonical event.
// Announcements have no deadline; posted-at is kept as a source field for
// rendering.
func NormalizeAnnouncement(a Announcement, course Course) (event.Event, bool) {
	if a.ID == 0 {
		return event.Event{}, false
	}
	fields := map[string]string{"course": course.Name}
	if a.PostedAt != nil {
		fields["posted_at"] = a.PostedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return event.Event{
		EntityID:     fmt.Sprintf("canvas:announcement:%d", a.ID),
		Category:     event.CategoryAnnouncement,
		Title:        a.Title,
		BodyExcerpt:  Excerpt(a.Message, excerptLimit),
		URL:          a.HTMLURL,
		SourceFields: fields,
	}, true
}

var whitespace = regexp.MustCompile(`\s+`)

// Excerpt strips HTML down to text and truncates to limit runes.
func Excerpt(html string, limit int) string {
	text := html
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		text = doc.Text()
	}
	text = strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
