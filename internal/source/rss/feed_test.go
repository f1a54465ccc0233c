package rss

import (
	"testing"
	"time"

	"briefbot/internal/event"
)

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Fed Press</title>
    <item>
      <title>FOMC statement</title>
      <description>Rates unchanged.</description>
      <link>https://example.org/fomc</link>
      <guid>press-2026-001</guid>
      <pubDate>Mon, 02 Mar 2026 14:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Speech</title>
      <link>https://example.org/speech</link>
    </item>
  </channel>
</rss>`

const sampleAtom = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Tech Wire</title>
  <entry>
    <title>NVDA ships new GPU</title>
    <summary>Datacenter refresh.</summary>
    <id>urn:wire:42</id>
    <updated>2026-03-02T09:30:00Z</updated>
    <link rel="alternate" href="https://example.org/nvda"/>
  </entry>
</feed>`

func TestParseRSS(t *testing.T) {
	t.Parallel()
	items, err := Parse([]byte(sampleRSS), Feed{Name: "Fed Press", Category: event.CategoryMacro})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	it := items[0]
	if it.Title != "FOMC statement" || it.GUID != "press-2026-001" {
		t.Fatalf("item = %+v", it)
	}
	if it.Category != event.CategoryMacro || it.Source != "Fed Press" {
		t.Fatalf("category/source = %q/%q", it.Category, it.Source)
	}
	want := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	if it.Published == nil || !it.Published.Equal(want) {
		t.Fatalf("published = %v", it.Published)
	}
	if items[1].Published != nil {
		t.Fatal("item without pubDate should have nil published")
	}
}

func TestParseAtom(t *testing.T) {
	t.Parallel()
	items, err := Parse([]byte(sampleAtom), Feed{Name: "Tech Wire", Category: event.CategoryAITech})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	it := items[0]
	if it.Title != "NVDA ships new GPU" || it.Link != "https://example.org/nvda" {
		t.Fatalf("item = %+v", it)
	}
	if it.GUID != "urn:wire:42" {
		t.Fatalf("guid = %q", it.GUID)
	}
	if it.Published == nil || it.Published.Hour() != 9 {
		t.Fatalf("published = %v", it.Published)
	}
}

func TestEntityIDStable(t *testing.T) {
	t.Parallel()
	a := Item{GUID: "press-2026-001", Title: "FOMC statement"}
	b := Item{GUID: "press-2026-001", Title: "FOMC statement (updated)"}
	if a.EntityID() != b.EntityID() {
		t.Fatal("identity must follow the guid, not the title")
	}
	c := Item{Link: "https://example.org/x"}
	d := Item{Link: "https://example.org/y"}
	if c.EntityID() == d.EntityID() {
		t.Fatal("distinct links must produce distinct identities")
	}
}
