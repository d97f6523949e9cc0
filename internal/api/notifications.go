package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/nhle/commodity-alerts/internal/model"
)

// NotificationsResponse is the response from GET /notifications.
type NotificationsResponse struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unread_count"`
}

// FetchNotifications retrieves the user's notification window. Rows that
// fail to decode are logged and skipped.
func (c *Client) FetchNotifications(ctx context.Context) (*NotificationsResponse, error) {
	var raw struct {
		Notifications []json.RawMessage `json:"notifications"`
		UnreadCount   int               `json:"unread_count"`
	}
	if err := c.get(ctx, "/notifications", &raw); err != nil {
		return nil, fmt.Errorf("fetching notifications: %w", err)
	}
	return &NotificationsResponse{
		Notifications: decodeRows[model.Notification](c, "notification", raw.Notifications),
		UnreadCount:   raw.UnreadCount,
	}, nil
}

// FetchMarketAlerts retrieves up to limit of the latest market alerts.
// Rows that fail to decode are logged and skipped.
func (c *Client) FetchMarketAlerts(ctx context.Context, limit int) ([]model.MarketAlert, error) {
	path := "/notifications/market-alerts"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}

	var raw struct {
		Alerts []json.RawMessage `json:"alerts"`
	}
	if err := c.get(ctx, path, &raw); err != nil {
		return nil, fmt.Errorf("fetching market alerts: %w", err)
	}
	return decodeRows[model.MarketAlert](c, "market alert", raw.Alerts), nil
}

// decodeRows decodes each row on its own so one malformed row does not
// discard the rest. The result is never nil.
func decodeRows[T any](c *Client, kind string, rows []json.RawMessage) []T {
	out := make([]T, 0, len(rows))
	for i, row := range rows {
		var v T
		if err := json.Unmarshal(row, &v); err != nil {
			c.logger.Warn("skipping undecodable row",
				zap.String("kind", kind),
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		out = append(out, v)
	}
	return out
}

// MarkRead acknowledges a notification as read on the server.
func (c *Client) MarkRead(ctx context.Context, id model.ID) error {
	path := "/notifications/" + url.PathEscape(string(id)) + "/read"
	if err := c.post(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("marking notification %s read: %w", id, err)
	}
	return nil
}

// GetPreferences retrieves the user's alert preferences.
func (c *Client) GetPreferences(ctx context.Context) (*model.AlertPreferences, error) {
	var p model.AlertPreferences
	if err := c.get(ctx, "/notifications/preferences", &p); err != nil {
		return nil, fmt.Errorf("fetching preferences: %w", err)
	}
	return &p, nil
}

// UpdatePreferences replaces the user's alert preferences and returns the
// server's stored copy.
func (c *Client) UpdatePreferences(ctx context.Context, p model.AlertPreferences) (*model.AlertPreferences, error) {
	var stored model.AlertPreferences
	if err := c.put(ctx, "/notifications/preferences", p, &stored); err != nil {
		return nil, fmt.Errorf("updating preferences: %w", err)
	}
	// Servers that answer 204 leave stored empty.
	if stored.Frequency == "" {
		stored = p
	}
	return &stored, nil
}
