package pixel

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
)

const (
	defaultGraphURL   = "https://graph.facebook.com"
	defaultAPIVersion = "v18.0"
)

// ConversionsAPISink posts events to the Facebook Conversions API.
type ConversionsAPISink struct {
	PixelID       string
	AccessToken   string
	TestEventCode string
	APIVersion    string
	BaseURL       string
	HTTPClient    *http.Client
}

type capiEvent struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	EventID        string         `json:"event_id"`
	ActionSource   string         `json:"action_source"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	UserData       capiUserData   `json:"user_data"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
}

type capiUserData struct {
	Email      []string `json:"em,omitempty"`
	Phone      []string `json:"ph,omitempty"`
	ExternalID []string `json:"external_id,omitempty"`
}

type capiRequest struct {
	Data          []capiEvent `json:"data"`
	TestEventCode string      `json:"test_event_code,omitempty"`
}

// Ready reports whether the sink has credentials.
func (s *ConversionsAPISink) Ready(context.Context) bool {
	return s.PixelID != "" && s.AccessToken != ""
}

// Send posts a single event.
func (s *ConversionsAPISink) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(capiRequest{
		Data:          []capiEvent{s.encode(ev)},
		TestEventCode: s.TestEventCode,
	})
	if err != nil {
		return err
	}

	base := s.BaseURL
	if base == "" {
		base = defaultGraphURL
	}
	version := s.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	endpoint := fmt.Sprintf("%s/%s/%s/events?access_token=%s",
		strings.TrimRight(base, "/"), version, url.PathEscape(s.PixelID), url.QueryEscape(s.AccessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	hc := s.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("conversions api status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *ConversionsAPISink) encode(ev Event) capiEvent {
	out := capiEvent{
		EventName:      ev.Name,
		EventTime:      ev.Time.Unix(),
		EventID:        ev.ID,
		ActionSource:   "website",
		EventSourceURL: ev.SourceURL,
		CustomData:     ev.Data,
	}
	if v := normalizeEmail(ev.User.Email); v != "" {
		out.UserData.Email = []string{hashValue(v)}
	}
	if v := normalizePhone(ev.User.Phone); v != "" {
		out.UserData.Phone = []string{hashValue(v)}
	}
	if ev.User.ExternalID != "" {
		out.UserData.ExternalID = []string{hashValue(ev.User.ExternalID)}
	}
	return out
}

func hashValue(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// normalizePhone keeps digits and prefixes the Brazilian country code.
func normalizePhone(v string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, v)
	if digits == "" {
		return ""
	}
	if len(digits) <= 11 {
		digits = "55" + digits
	}
	return digits
}

// LogSink writes events to the log. It is used when no pixel is configured.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Ready(context.Context) bool { return true }

func (s LogSink) Send(_ context.Context, ev Event) error {
	l := s.Logger
	if l == nil {
		l = zap.NewNop()
	}
	l.Info("pixel event",
		zap.String("event", ev.Name),
		zap.String("event_id", ev.ID),
		zap.Bool("custom", ev.Custom),
		zap.String("source_url", ev.SourceURL),
		zap.Any("data", ev.Data),
	)
	return nil
}
