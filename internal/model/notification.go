package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ID is a notification or alert identifier. The backend emits either JSON
// strings or JSON numbers; both decode to the same textual form.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// NotificationType classifies what triggered a notification.
type NotificationType string

const (
	NotificationPrice     NotificationType = "price"
	NotificationNews      NotificationType = "news"
	NotificationThreshold NotificationType = "threshold"
	NotificationOther     NotificationType = "other"
)

// ParseNotificationType maps unknown values to NotificationOther.
func ParseNotificationType(s string) NotificationType {
	switch t := NotificationType(strings.ToLower(strings.TrimSpace(s))); t {
	case NotificationPrice, NotificationNews, NotificationThreshold:
		return t
	default:
		return NotificationOther
	}
}

// Severity is the urgency attached to notifications and market alerts.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity maps unknown values to SeverityLow.
func ParseSeverity(s string) Severity {
	switch v := Severity(strings.ToLower(strings.TrimSpace(s))); v {
	case SeverityMedium, SeverityHigh:
		return v
	default:
		return SeverityLow
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// Notification is a server-originated item shown to the user, annotated
// locally with read state.
type Notification struct {
	// ID is stable across cache and remote fetches.
	ID ID `json:"id"`

	Title string `json:"title"`
	Body  string `json:"body"`

	Type     NotificationType `json:"type"`
	Severity Severity         `json:"severity"`

	// Commodity is the associated market symbol, empty when absent.
	Commodity string `json:"commodity,omitempty"`

	// CreatedAt orders notifications, newest first.
	CreatedAt time.Time `json:"created_at"`

	// IsRead is flipped locally on user interaction and reconciled with
	// the server on every refresh.
	IsRead bool `json:"is_read"`
}

// UnmarshalJSON decodes a notification, tolerating malformed optional
// fields. Only a malformed id or timestamp is an error.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        ID              `json:"id"`
		Title     string          `json:"title"`
		Body      string          `json:"body"`
		Message   string          `json:"message"`
		Type      json.RawMessage `json:"type"`
		Severity  json.RawMessage `json:"severity"`
		Commodity json.RawMessage `json:"commodity"`
		CreatedAt json.RawMessage `json:"created_at"`
		IsRead    json.RawMessage `json:"is_read"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	created, err := parseTimestamp(raw.CreatedAt)
	if err != nil {
		return err
	}

	*n = Notification{
		ID:        raw.ID,
		Title:     raw.Title,
		Body:      raw.Body,
		Type:      ParseNotificationType(looseString(raw.Type)),
		Severity:  ParseSeverity(looseString(raw.Severity)),
		Commodity: looseString(raw.Commodity),
		CreatedAt: created,
		IsRead:    looseBool(raw.IsRead),
	}
	if n.Body == "" {
		n.Body = raw.Message
	}
	return nil
}

// MarketAlert is a read-only price/severity event tied to a commodity.
type MarketAlert struct {
	ID            ID        `json:"id"`
	Commodity     string    `json:"commodity"`
	Severity      Severity  `json:"severity"`
	Message       string    `json:"message"`
	ChangePercent *float64  `json:"change_percent,omitempty"`
	CurrentPrice  *float64  `json:"current_price,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// UnmarshalJSON decodes a market alert. Optional numbers accept JSON
// numbers or numeric strings; anything else is treated as absent.
func (a *MarketAlert) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID            ID              `json:"id"`
		Commodity     json.RawMessage `json:"commodity"`
		Severity      json.RawMessage `json:"severity"`
		Message       string          `json:"message"`
		ChangePercent json.RawMessage `json:"change_percent"`
		CurrentPrice  json.RawMessage `json:"current_price"`
		CreatedAt     json.RawMessage `json:"created_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	created, err := parseTimestamp(raw.CreatedAt)
	if err != nil {
		return err
	}

	*a = MarketAlert{
		ID:            raw.ID,
		Commodity:     looseString(raw.Commodity),
		Severity:      ParseSeverity(looseString(raw.Severity)),
		Message:       raw.Message,
		ChangePercent: looseFloat(raw.ChangePercent),
		CurrentPrice:  looseFloat(raw.CurrentPrice),
		CreatedAt:     created,
	}
	return nil
}

// looseString returns the string value of raw, or "" for null, absent or
// non-string values.
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func looseBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}
	return false
}

func looseFloat(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}

// localLayouts are ISO 8601 forms without a zone offset, read as UTC.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts RFC 3339 strings, ISO 8601 strings without an
// offset (taken as UTC), epoch seconds or epoch milliseconds. An absent
// timestamp is the zero time.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err == nil {
			return t, nil
		}
		for _, layout := range localLayouts {
			if lt, lerr := time.ParseInLocation(layout, s, time.UTC); lerr == nil {
				return lt, nil
			}
		}
		return time.Time{}, err
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, err
	}
	// Values past year 33658 in seconds are assumed to be milliseconds.
	if n > 1e12 {
		return time.UnixMilli(n).UTC(), nil
	}
	return time.Unix(n, 0).UTC(), nil
}
