package config

// Config is the raw on-disk shape. YAML and JSON are both accepted; YAML is
// coerced to JSON and strict-decoded so unknown keys fail loudly.
//
// All durations are Go duration strings (e.g. "500ms", "24h").
type Config struct {
	Logging  LoggingConfig  `json:"logging,omitempty"`
	Storage  StorageConfig  `json:"storage"`
	Engine   EngineConfig   `json:"engine,omitempty"`
	Canvas   CanvasConfig   `json:"canvas,omitempty"`
	Feeds    []FeedConfig   `json:"feeds,omitempty"`
	Delivery DeliveryConfig `json:"delivery,omitempty"`

	Watchlists WatchlistsConfig `json:"watchlists,omitempty"`

	// Jobs maps a job name (canvas, news, brief, weekly, gc) to its schedule:
	// a cron expression, "@every 30m", a plain duration, or "HH:MM".
	Jobs map[string]string `json:"jobs,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"` // nil means enabled
	File    FileLogConfig `json:"file,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./state/briefbot" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// EngineConfig controls the decision core.
type EngineConfig struct {
	// Thresholds maps category name to the urgency window duration, e.g.
	// {"assignment": "24h", "exam": "72h"}. Unknown categories are rejected.
	Thresholds map[string]string `json:"thresholds,omitempty"`

	MandatoryKeywords []string `json:"mandatory_keywords,omitempty"`

	// EmitRemoved overrides whether a category reports disappearances.
	// Defaults: academic categories do, news categories do not.
	EmitRemoved map[string]bool `json:"emit_removed,omitempty"`

	// Retention is how long an unseen record survives before gc removes it.
	Retention string `json:"retention,omitempty"`

	// MinNewsScore gates which filtered news items reach the engine at all.
	MinNewsScore int `json:"min_news_score,omitempty"`
}

type WatchlistsConfig struct {
	Tickers        []string `json:"tickers,omitempty"`
	AIKeywords     []string `json:"ai_keywords,omitempty"`
	MacroKeywords  []string `json:"macro_keywords,omitempty"`
	TrustedSources []string `json:"trusted_sources,omitempty"`
	NoiseKeywords  []string `json:"noise_keywords,omitempty"`
}

type CanvasConfig struct {
	BaseURL  string `json:"base_url"`
	Token    string `json:"token"`
	MaxPages int    `json:"max_pages,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

type FeedConfig struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Category string `json:"category"` // must be a news category
}

// DeliveryConfig controls the outbound boundary.
//
// Mode values: "webhook", "telegram", "dry-run".
type DeliveryConfig struct {
	Mode string `json:"mode,omitempty"`

	// Webhooks maps channel name to webhook URL.
	Webhooks map[string]string `json:"webhooks,omitempty"`

	RatePerSec int    `json:"rate_per_sec,omitempty"`
	RetryMax   int    `json:"retry_max,omitempty"`
	RetryBase  string `json:"retry_base,omitempty"`

	Telegram TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
	// Chats maps channel name to a chat ID.
	Chats map[string]int64 `json:"chats,omitempty"`
}
