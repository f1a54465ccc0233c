// Package canvas fetches courses, assignments, and announcements from a
// Canvas-style LMS REST API and normalizes them into canonical events.
package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "briefbot/pkg/logx"
)

// Options configures the client. Plain values; credentials come from the
// config layer.
type Options struct {
	BaseURL  string
	Token    string
	MaxPages int
	Timeout  time.Duration
}

type Client struct {
	baseURL  string
	token    string
	maxPages int
	http     *http.Client
	log      logx.Logger
}

func NewClient(opts Options, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = 10
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		token:    opts.Token,
		maxPages: maxPages,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

func (c *Client) Configured() bool { return c.baseURL != "" && c.token != "" }

type Course struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Assignment struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	DueAt           *time.Time `json:"due_at"`
	PointsPossible  float64    `json:"points_possible"`
	SubmissionTypes []string   `json:"submission_types"`
	HTMLURL         string     `json:"html_url"`
	WorkflowState   string     `json:"workflow_state"`
}

type Announcement struct {
	ID       int64      `json:"id"`
	Title    string     `json:"title"`
	Message  string     `json:"message"`
	PostedAt *time.Time `json:"posted_at"`
	HTMLURL  string     `json:"html_url"`
}

// Courses lists the active enrollments.
func (c *Client) Courses(ctx context.Context) ([]Course, error) {
	var out []Course
	err := c.paginate(ctx, "/api/v1/courses", url.Values{"enrollment_state": {"active"}}, func(page []byte) error {
		var courses []Course
		if err := json.Unmarshal(page, &courses); err != nil {
			return err
		}
		out = append(out, courses...)
		return nil
	})
	return out, err
}

func (c *Client) Assignments(ctx context.Context, courseID int64) ([]Assignment, error) {
	var out []Assignment
	path := fmt.Sprintf("/api/v1/courses/%d/assignments", courseID)
	err := c.paginate(ctx, path, url.Values{"order_by": {"due_at"}}, func(page []byte) error {
		var as []Assignment
		if err := json.Unmarshal(page, &as); err != nil {
			return err
		}
		out = append(out, as...)
		return nil
	})
	return out, err
}

func (c *Client) Announcements(ctx context.Context, courseID int64) ([]Announcement, error) {
	var out []Announcement
	path := fmt.Sprintf("/api/v1/courses/%d/discussion_topics", courseID)
	err := c.paginate(ctx, path, url.Values{"only_announcements": {"true"}}, func(page []byte) error {
		var anns []Announcement
		if err := json.Unmarshal(page, &anns); err != nil {
			return err
		}
		out = append(out, anns...)
		return nil
	})
	return out, err
}

// paginate walks Link-header pagination up to maxPages.
func (c *Client) paginate(ctx context.Context, path string, params url.Values, visit func(page []byte) error) error {
	if !c.Configured() {
		return fmt.Errorf("canvas client not configured")
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("per_page", "100")
	next := c.baseURL + path + "?" + params.Encode()

	for page := 0; next != "" && page < c.maxPages; page++ {
		body, link, err := c.get(ctx, next)
		if err != nil {
			return err
		}
		if err := visit(body); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		next = nextLink(link)
	}
	return nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("canvas request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, "", fmt.Errorf("canvas request: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("canvas response: %w", err)
	}
	return body, resp.Header.Get("Link"), nil
}

// nextLink extracts the rel="next" URL from a Link header, if any.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		seg := strings.Split(part, ";")
		if len(seg) < 2 {
			continue
		}
		if !strings.Contains(seg[1], `rel="next"`) {
			continue
		}
		u := strings.TrimSpace(seg[0])
		u = strings.TrimPrefix(u, "<")
		return strings.TrimSuffix(u, ">")
	}
	return ""
}
