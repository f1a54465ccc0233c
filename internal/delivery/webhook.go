package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"briefbot/internal/event"
	logx "briefbot/pkg/logx"
)

type webhookSink struct {
	urls      map[event.Channel]string
	http      *http.Client
	retryMax  int
	retryBase time.Duration
	log       logx.Logger
}

func newWebhookSink(opts Options, log logx.Logger) (*webhookSink, error) {
	if len(opts.Webhooks) == 0 {
		return nil, fmt.Errorf("delivery: webhook mode needs at least one webhook url")
	}
	retryMax := opts.RetryMax
	if retryMax <= 0 {
		retryMax = 3
	}
	retryBase := opts.RetryBase
	if retryBase <= 0 {
		retryBase = 500 * time.Millisecond
	}
	return &webhookSink{
		urls:      opts.Webhooks,
		http:      &http.Client{Timeout: 15 * time.Second},
		retryMax:  retryMax,
		retryBase: retryBase,
		log:       log,
	}, nil
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

func buildEmbed(in event.Intent) embed {
	e := embed{
		Title:       fmt.Sprintf("[%s] %s", reasonLabel(in.Reason), in.Event.Title),
		Description: in.Event.BodyExcerpt,
		URL:         in.Event.URL,
		Color:       embedColor(in.Reason),
	}
	if due := dueField(in.Event.DueAt); due != "" && in.Event.Category.Academic() {
		e.Fields = append(e.Fields, embedField{Name: "Due", Value: due, Inline: true})
	}
	if course := in.Event.SourceFields["course"]; course != "" {
		e.Fields = append(e.Fields, embedField{Name: "Course", Value: course, Inline: true})
	}
	if len(in.Event.Tickers) > 0 {
		e.Fields = append(e.Fields, embedField{Name: "Tickers", Value: strings.Join(in.Event.Tickers, ", "), Inline: true})
	}
	return e
}

func (s *webhookSink) Send(ctx context.Context, in event.Intent) error {
	url := s.urls[in.Channel]
	if url == "" {
		return fmt.Errorf("webhook: no url configured for channel %q", in.Channel)
	}
	body, err := json.Marshal(webhookPayload{Embeds: []embed{buildEmbed(in)}})
	if err != nil {
		return fmt.Errorf("webhook: encode: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.retryMax; attempt++ {
		if attempt > 0 {
			backoff := s.retryBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		retryable, err := s.post(ctx, url, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		s.log.Debug("webhook retry",
			logx.String("channel", string(in.Channel)),
			logx.Int("attempt", attempt+1),
			logx.Err(err))
	}
	return fmt.Errorf("webhook: giving up after %d retries: %w", s.retryMax, lastErr)
}

// post performs one delivery attempt. 429 and 5xx are retryable, other
// non-2xx statuses are not.
func (s *webhookSink) post(ctx context.Context, url string, body []byte) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook: status %s", resp.Status)
	default:
		return false, fmt.Errorf("webhook: status %s", resp.Status)
	}
}
