// Package config loads and validates the briefbot configuration: storage,
// decision thresholds, watchlists, sources, delivery, and job schedules.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"briefbot/internal/engine"
	"briefbot/internal/event"
	"briefbot/internal/store"
	logx "briefbot/pkg/logx"
)

// Resolved is the fully typed configuration handed to components. Unknown
// categories, channels, and bad durations have already been rejected; every
// field is a plain value.
type Resolved struct {
	Logging logx.Config
	Storage store.Config
	Engine  engine.Config

	Retention    time.Duration
	MinNewsScore int

	Watchlists Watchlists
	Canvas     Canvas
	Feeds      []Feed

	Delivery Delivery

	Jobs map[string]string
}

type Watchlists struct {
	Tickers        []string
	AIKeywords     []string
	MacroKeywords  []string
	TrustedSources []string
	NoiseKeywords  []string
}

type Canvas struct {
	BaseURL  string
	Token    string
	MaxPages int
	Timeout  time.Duration
}

func (c Canvas) Configured() bool { return c.BaseURL != "" && c.Token != "" }

type Feed struct {
	Name     string
	URL      string
	Category event.Category
}

type Delivery struct {
	Mode       string
	Webhooks   map[event.Channel]string
	RatePerSec int
	RetryMax   int
	RetryBase  time.Duration

	TelegramToken string
	TelegramChats map[event.Channel]int64
}

// Load reads, decodes, and resolves the config file.
func Load(path string) (*Resolved, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	raw, err := Decode(path, data)
	if err != nil {
		return nil, err
	}
	return raw.Resolve()
}

// Decode strict-decodes raw bytes, accepting YAML or JSON by extension.
func Decode(path string, data []byte) (*Config, error) {
	j, format, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(j))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config (%s): %w", format, err)
	}
	return &cfg, nil
}

// Resolve validates the raw config and produces the typed form, applying
// defaults where the file is silent.
func (c *Config) Resolve() (*Resolved, error) {
	r := &Resolved{}

	r.Logging = logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console == nil || *c.Logging.Console,
	}
	r.Logging.File.Enabled = c.Logging.File.Enabled
	r.Logging.File.Path = c.Logging.File.Path

	busy, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	r.Storage = store.Config{Driver: c.Storage.Driver, Path: c.Storage.Path, BusyTimeout: busy}

	thresholds, err := resolveThresholds(c.Engine.Thresholds)
	if err != nil {
		return nil, err
	}
	emitRemoved, err := resolveEmitRemoved(c.Engine.EmitRemoved)
	if err != nil {
		return nil, err
	}
	r.Engine = engine.Config{
		Detector: engine.DetectorConfig{
			Thresholds:        thresholds,
			MandatoryKeywords: c.Engine.MandatoryKeywords,
		},
		EmitRemoved: emitRemoved,
	}

	r.Retention, err = ParseDurationOrDefault("engine.retention", c.Engine.Retention, defaultRetention)
	if err != nil {
		return nil, err
	}
	r.MinNewsScore = c.Engine.MinNewsScore
	if r.MinNewsScore <= 0 {
		r.MinNewsScore = defaultMinNewsScore
	}

	r.Watchlists = resolveWatchlists(c.Watchlists)

	canvasTimeout, err := ParseDurationOrDefault("canvas.timeout", c.Canvas.Timeout, 20*time.Second)
	if err != nil {
		return nil, err
	}
	r.Canvas = Canvas{
		BaseURL:  strings.TrimRight(strings.TrimSpace(c.Canvas.BaseURL), "/"),
		Token:    strings.TrimSpace(c.Canvas.Token),
		MaxPages: c.Canvas.MaxPages,
		Timeout:  canvasTimeout,
	}
	if r.Canvas.MaxPages <= 0 {
		r.Canvas.MaxPages = 10
	}

	for i, f := range c.Feeds {
		cat, err := event.ParseCategory(f.Category)
		if err != nil {
			return nil, fmt.Errorf("feeds[%d]: %w", i, err)
		}
		if cat.Academic() {
			return nil, fmt.Errorf("feeds[%d]: category %q is not a news category", i, f.Category)
		}
		if strings.TrimSpace(f.URL) == "" {
			return nil, fmt.Errorf("feeds[%d]: url is required", i)
		}
		r.Feeds = append(r.Feeds, Feed{Name: f.Name, URL: f.URL, Category: cat})
	}

	r.Delivery, err = resolveDelivery(c.Delivery)
	if err != nil {
		return nil, err
	}

	r.Jobs = c.Jobs
	return r, nil
}

func resolveThresholds(raw map[string]string) (map[event.Category]time.Duration, error) {
	out := map[event.Category]time.Duration{
		event.CategoryAssignment: defaultAssignmentWindow,
		event.CategoryExam:       defaultExamWindow,
	}
	for name, rawDur := range raw {
		cat, err := event.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("engine.thresholds: %w", err)
		}
		d, err := ParseDurationField("engine.thresholds."+name, rawDur)
		if err != nil {
			return nil, err
		}
		out[cat] = d
	}
	return out, nil
}

func resolveEmitRemoved(raw map[string]bool) (map[event.Category]bool, error) {
	out := map[event.Category]bool{}
	for _, cat := range event.Categories {
		out[cat] = cat.Academic()
	}
	for name, emit := range raw {
		cat, err := event.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("engine.emit_removed: %w", err)
		}
		out[cat] = emit
	}
	return out, nil
}

func resolveDelivery(raw DeliveryConfig) (Delivery, error) {
	mode := strings.ToLower(strings.TrimSpace(raw.Mode))
	switch mode {
	case "":
		mode = "dry-run"
	case "webhook", "telegram", "dry-run":
	default:
		return Delivery{}, fmt.Errorf("delivery.mode: unknown mode %q", raw.Mode)
	}

	d := Delivery{
		Mode:          mode,
		Webhooks:      map[event.Channel]string{},
		RatePerSec:    raw.RatePerSec,
		RetryMax:      raw.RetryMax,
		TelegramToken: raw.Telegram.Token,
		TelegramChats: map[event.Channel]int64{},
	}
	if d.RatePerSec <= 0 {
		d.RatePerSec = 3
	}
	if d.RetryMax <= 0 {
		d.RetryMax = 3
	}
	var err error
	d.RetryBase, err = ParseDurationOrDefault("delivery.retry_base", raw.RetryBase, 500*time.Millisecond)
	if err != nil {
		return Delivery{}, err
	}

	for name, url := range raw.Webhooks {
		ch, err := event.ParseChannel(name)
		if err != nil {
			return Delivery{}, fmt.Errorf("delivery.webhooks: %w", err)
		}
		d.Webhooks[ch] = url
	}
	for name, chatID := range raw.Telegram.Chats {
		ch, err := event.ParseChannel(name)
		if err != nil {
			return Delivery{}, fmt.Errorf("delivery.telegram.chats: %w", err)
		}
		d.TelegramChats[ch] = chatID
	}
	return d, nil
}

// coerceToJSONBytes converts YAML config to JSON bytes so we can re-use the
// strict JSON decoder (DisallowUnknownFields) for both formats.
func coerceToJSONBytes(path string, data []byte) ([]byte, string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, "json", nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}

	v = normalizeYAML(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, "yaml", nil
}

// normalizeYAML ensures all map keys are strings so the result can be
// JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}
