package config

import "time"

// Defaults mirror the notification policy the system shipped with: urgent
// assignments inside a day, exams flagged three days out, a month of dedup
// history before gc.
const (
	defaultAssignmentWindow = 24 * time.Hour
	defaultExamWindow       = 72 * time.Hour
	defaultRetention        = 30 * 24 * time.Hour
	defaultMinNewsScore     = 50
)

func resolveWatchlists(raw WatchlistsConfig) Watchlists {
	w := Watchlists{
		Tickers:        raw.Tickers,
		AIKeywords:     raw.AIKeywords,
		MacroKeywords:  raw.MacroKeywords,
		TrustedSources: raw.TrustedSources,
		NoiseKeywords:  raw.NoiseKeywords,
	}
	if len(w.Tickers) == 0 {
		w.Tickers = []string{"AAPL", "MSFT", "NVDA", "GOOGL", "AMZN", "META", "TSLA"}
	}
	if len(w.AIKeywords) == 0 {
		w.AIKeywords = []string{
			"AI", "artificial intelligence", "LLM", "GPT", "ChatGPT",
			"OpenAI", "Anthropic", "NVIDIA", "GPU", "inference", "training",
		}
	}
	if len(w.MacroKeywords) == 0 {
		w.MacroKeywords = []string{"CPI", "FOMC", "Fed", "interest rate", "Treasury", "inflation"}
	}
	if len(w.TrustedSources) == 0 {
		w.TrustedSources = []string{"reuters.com", "bloomberg.com", "sec.gov"}
	}
	if len(w.NoiseKeywords) == 0 {
		w.NoiseKeywords = []string{
			"enforcement action", "enforcement actions", "terminates enforcement",
			"staff manual", "supervision", "supervising",
			"former employee", "issues enforcement",
			"pricing", "payment services", "check services", "debit card",
			"reappointment", "reserve bank president", "first vice president",
			"public input", "request comment", "requests comment",
			"biennial report", "request public input",
			"bank holding company", "eligible financial institutions",
			"withdraws", "policy statement regarding", "responsible innovation",
			"supervised banks",
		}
	}
	return w
}
