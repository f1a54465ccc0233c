// Package rss fetches RSS/Atom feeds and normalizes market/tech news into
// canonical events, applying watchlist filtering before anything reaches the
// decision core.
package rss

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"briefbot/internal/event"
	logx "briefbot/pkg/logx"
)

// Feed identifies one source.
type Feed struct {
	Name     string
	URL      string
	Category event.Category
}

// Item is a raw feed entry before watchlist filtering.
type Item struct {
	Title     string
	Summary   string
	Link      string
	GUID      string
	Source    string
	Category  event.Category
	Published *time.Time
}

type Fetcher struct {
	http *http.Client
	log  logx.Logger
}

func NewFetcher(timeout time.Duration, log logx.Logger) *Fetcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Fetcher{http: &http.Client{Timeout: timeout}, log: log}
}

// Fetch downloads and parses one feed. RSS 2.0 and Atom are both accepted.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "briefbot/1.0")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", feed.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch %s: unexpected status %s", feed.Name, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", feed.Name, err)
	}
	items, err := Parse(body, feed)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", feed.Name, err)
	}
	return items, nil
}

type rssDoc struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rssEntry `xml:"item"`
	} `xml:"channel"`
}

type rssEntry struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate"`
}

type atomDoc struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	Content string `xml:"content"`
	ID      string `xml:"id"`
	Updated string `xml:"updated"`
	Links   []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
	} `xml:"link"`
}

// Parse decodes a feed document, sniffing RSS vs Atom by the root element.
func Parse(body []byte, feed Feed) ([]Item, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.Contains(trimmed[:min(len(trimmed), 512)], "<feed") && !strings.Contains(trimmed[:min(len(trimmed), 512)], "<rss") {
		return parseAtom(body, feed)
	}
	return parseRSS(body, feed)
}

func parseRSS(body []byte, feed Feed) ([]Item, error) {
	var doc rssDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(doc.Channel.Items))
	for _, e := range doc.Channel.Items {
		items = append(items, Item{
			Title:     strings.TrimSpace(e.Title),
			Summary:   strings.TrimSpace(e.Description),
			Link:      strings.TrimSpace(e.Link),
			GUID:      strings.TrimSpace(e.GUID),
			Source:    feed.Name,
			Category:  feed.Category,
			Published: parseFeedTime(e.PubDate),
		})
	}
	return items, nil
}

func parseAtom(body []byte, feed Feed) ([]Item, error) {
	var doc atomDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		link := ""
		for _, l := range e.Links {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}
		summary := e.Summary
		if summary == "" {
			summary = e.Content
		}
		items = append(items, Item{
			Title:     strings.TrimSpace(e.Title),
			Summary:   strings.TrimSpace(summary),
			Link:      strings.TrimSpace(link),
			GUID:      strings.TrimSpace(e.ID),
			Source:    feed.Name,
			Category:  feed.Category,
			Published: parseFeedTime(e.Updated),
		})
	}
	return items, nil
}

var feedTimeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2006-01-02T15:04:05Z",
}

func parseFeedTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range feedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

// EntityID derives the stable identifier for a feed item: the GUID when the
// feed provides one, else a digest of the link, else of the title.
func (it Item) EntityID() string {
	basis := it.GUID
	if basis == "" {
		basis = it.Link
	}
	if basis == "" {
		basis = it.Title
	}
	sum := sha256.Sum256([]byte(basis))
	return "news:" + hex.EncodeToString(sum[:])[:16]
}
