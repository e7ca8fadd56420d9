package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"smarttv-backend/pkg/logger"
)

// DiscordSink posts events as webhook embeds.
// Ref: https://discord.com/developers/docs/resources/webhook#execute-webhook
type DiscordSink struct {
	webhookURL string
	appName    string
	env        string
	minLevel   Level
	always     map[EventType]bool

	http    *http.Client
	timeout time.Duration
	log     *slog.Logger

	// slots bounds concurrent deliveries; events beyond it are dropped.
	slots chan struct{}
	wg    sync.WaitGroup
}

type DiscordOptions struct {
	WebhookURL string
	AppName    string
	Env        string

	// MinLevel defaults to warning.
	MinLevel Level
	// AlwaysSend lists event types posted regardless of MinLevel.
	// nil defaults to system events (startup and shutdown); an empty slice disables it.
	AlwaysSend []EventType

	HTTPClient *http.Client
	Timeout    time.Duration
	MaxPending int
	Log        *slog.Logger
}

func NewDiscordSink(opts DiscordOptions) *DiscordSink {
	s := &DiscordSink{
		webhookURL: opts.WebhookURL,
		appName:    opts.AppName,
		env:        opts.Env,
		minLevel:   opts.MinLevel,
		always:     make(map[EventType]bool),
		http:       opts.HTTPClient,
		timeout:    opts.Timeout,
		log:        opts.Log,
	}
	if s.minLevel == "" {
		s.minLevel = LevelWarning
	}
	always := opts.AlwaysSend
	if always == nil {
		always = []EventType{EventSystem}
	}
	for _, t := range always {
		s.always[t] = true
	}
	if s.http == nil {
		s.http = &http.Client{}
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	pending := opts.MaxPending
	if pending <= 0 {
		pending = 8
	}
	s.slots = make(chan struct{}, pending)
	return s
}

func (s *DiscordSink) Emit(ctx context.Context, e Event) {
	if s.webhookURL == "" {
		return
	}
	if !e.Level.AtLeast(s.minLevel) && !s.always[e.Type] {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case s.slots <- struct{}{}:
	default:
		s.log.Warn("discord alert dropped", "event", string(e.Type))
		return
	}

	payload := s.payload(e)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.slots }()
		// Delivery outlives the emitting request.
		if err := s.post(context.WithoutCancel(ctx), payload); err != nil {
			s.log.Warn("discord alert failed", "event", string(e.Type), "err", err)
		}
	}()
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (s *DiscordSink) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type discordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Footer      discordFooter  `json:"footer"`
	Fields      []discordField `json:"fields"`
}

type discordFooter struct {
	Text string `json:"text"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

const maxFieldValue = 1000

func (s *DiscordSink) payload(e Event) discordPayload {
	color, title := 0x3498db, "Information"
	switch e.Level {
	case LevelWarning:
		color, title = 0xf39c12, "Warning"
	case LevelError:
		color, title = 0xe74c3c, "Error"
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]discordField, 0, len(keys)+1)
	for _, k := range keys {
		v := fmt.Sprint(e.Fields[k])
		if v == "" {
			continue
		}
		if len(v) > maxFieldValue {
			v = v[:maxFieldValue-3] + "..."
		}
		fields = append(fields, discordField{Name: fieldName(k), Value: v, Inline: true})
	}
	if len(fields) == 0 {
		fields = append(fields, discordField{Name: "Environment", Value: "`" + strings.ToUpper(s.env) + "`", Inline: true})
	}

	return discordPayload{
		Username: s.appName,
		Embeds: []discordEmbed{{
			Title:       fmt.Sprintf("%s: %s", title, e.Type),
			Description: "**" + e.Message + "**",
			Color:       color,
			Timestamp:   e.At.UTC().Format(time.RFC3339),
			Footer:      discordFooter{Text: fmt.Sprintf("%s • %s", s.appName, strings.ToUpper(s.env))},
			Fields:      fields,
		}},
	}
}

// fieldName turns snake_case keys into title case labels.
func fieldName(key string) string {
	parts := strings.Split(key, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

func (s *DiscordSink) post(ctx context.Context, p discordPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook status %d", resp.StatusCode)
	}
	return nil
}
