package rss

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"briefbot/internal/event"
)

// Watchlists drive news filtering. Items that match nothing on any list are
// dropped before they reach the decision core.
type Watchlists struct {
	Tickers        []string
	AIKeywords     []string
	MacroKeywords  []string
	TrustedSources []string
	NoiseKeywords  []string
}

// Matches records which watchlist entries an item hit.
type Matches struct {
	Tickers []string
	AI      []string
	Macro   []string
	Trusted bool
}

func (m Matches) Any() bool {
	return len(m.Tickers) > 0 || len(m.AI) > 0 || len(m.Macro) > 0
}

// Filter evaluates feed items against the watchlists and assigns the
// relevance pre-score used to gate delivery.
type Filter struct {
	lists    Watchlists
	minScore int

	once      sync.Once
	tickerRe  *regexp.Regexp
	keywordRe map[string]*regexp.Regexp
}

func NewFilter(lists Watchlists, minScore int) *Filter {
	if minScore <= 0 {
		minScore = 50
	}
	return &Filter{lists: lists, minScore: minScore}
}

func (f *Filter) compile() {
	f.once.Do(func() {
		if len(f.lists.Tickers) > 0 {
			escaped := make([]string, 0, len(f.lists.Tickers))
			for _, t := range f.lists.Tickers {
				escaped = append(escaped, regexp.QuoteMeta(t))
			}
			f.tickerRe = regexp.MustCompile(`\b(` + strings.Join(escaped, "|") + `)\b`)
		}
		f.keywordRe = make(map[string]*regexp.Regexp, len(f.lists.AIKeywords)+len(f.lists.MacroKeywords))
		for _, kw := range f.lists.AIKeywords {
			f.keywordRe[kw] = keywordPattern(kw)
		}
		for _, kw := range f.lists.MacroKeywords {
			f.keywordRe[kw] = keywordPattern(kw)
		}
	})
}

// keywordPattern matches a keyword case-insensitively on word boundaries, so
// short entries like "AI" and "Fed" do not hit inside unrelated words.
func keywordPattern(kw string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
}

// Match inspects the item's title and summary against every watchlist.
// Tickers are matched case-sensitively; keywords are not.
func (f *Filter) Match(it Item) Matches {
	f.compile()
	text := it.Title + " " + it.Summary

	var m Matches
	if f.tickerRe != nil {
		seen := map[string]bool{}
		for _, t := range f.tickerRe.FindAllString(text, -1) {
			if !seen[t] {
				seen[t] = true
				m.Tickers = append(m.Tickers, t)
			}
		}
	}
	for _, kw := range f.lists.AIKeywords {
		if f.keywordRe[kw].MatchString(text) {
			m.AI = append(m.AI, kw)
		}
	}
	for _, kw := range f.lists.MacroKeywords {
		if f.keywordRe[kw].MatchString(text) {
			m.Macro = append(m.Macro, kw)
		}
	}
	lowerLink := strings.ToLower(it.Link)
	for _, src := range f.lists.TrustedSources {
		if strings.Contains(lowerLink, strings.ToLower(src)) {
			m.Trusted = true
			break
		}
	}
	return m
}

// IsNoise reports whether the item trips a noise keyword. Noise entries are
// case-insensitive substrings; they describe boilerplate announcements that
// technically match the watchlists but never matter.
func (f *Filter) IsNoise(it Item) bool {
	text := strings.ToLower(it.Title + " " + it.Summary)
	for _, kw := range f.lists.NoiseKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// ImpactScore is the relevance pre-score, 0..100. Curated feeds (an explicit
// category) get a standing bonus so their items pass without watchlist hits;
// generic feeds must match something.
func (f *Filter) ImpactScore(it Item, m Matches) int {
	score := 0
	if it.Category != event.CategoryGenericNews {
		score += 50
	}
	if len(m.Macro) > 0 {
		score += 60
	}
	if len(m.AI) > 0 {
		score += 50
	}
	if len(m.Tickers) > 0 {
		score += 40 + 10*(len(m.Tickers)-1)
	}
	if m.Trusted {
		score += 10
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Normalize applies the noise gate and the score gate, then maps the item to
// a canonical event. ok=false means the item was filtered out.
func (f *Filter) Normalize(it Item) (event.Event, bool) {
	if strings.TrimSpace(it.Title) == "" {
		return event.Event{}, false
	}
	if f.IsNoise(it) {
		return event.Event{}, false
	}
	m := f.Match(it)
	if f.ImpactScore(it, m) < f.minScore {
		return event.Event{}, false
	}

	matched := map[string][]string{}
	if len(m.Tickers) > 0 {
		matched["tickers"] = m.Tickers
	}
	if len(m.AI) > 0 {
		matched["ai"] = m.AI
	}
	if len(m.Macro) > 0 {
		matched["macro"] = m.Macro
	}

	fields := map[string]string{"source": it.Source}
	if m.Trusted {
		fields["trusted"] = "true"
	}
	// Published time is metadata, not a deadline. Keeping it out of DueAt
	// means a feed correcting its timestamps never reads as a moved deadline.
	if it.Published != nil {
		fields["published_at"] = it.Published.UTC().Format(time.RFC3339)
	}

	return event.Event{
		EntityID:        it.EntityID(),
		Category:        it.Category,
		Title:           it.Title,
		BodyExcerpt:     excerpt(it.Summary, 300),
		URL:             it.Link,
		Tickers:         m.Tickers,
		MatchedKeywords: matched,
		SourceFields:    fields,
	}, true
}

var whitespace = regexp.MustCompile(`\s+`)

// excerpt strips any HTML in the summary down to text and truncates.
func excerpt(html string, limit int) string {
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
