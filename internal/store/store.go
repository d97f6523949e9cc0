package store

import (
	"context"
	"errors"

	"github.com/nhle/commodity-alerts/internal/model"
)

// ErrNotFound is returned when a referenced record is not in the cache.
var ErrNotFound = errors.New("not found")

// Store defines the local cache for notifications, market alerts and alert
// preferences. Every list write replaces the whole list atomically.
type Store interface {
	// === Notifications ===

	LoadNotifications(ctx context.Context) ([]model.Notification, error)
	SaveNotifications(ctx context.Context, list []model.Notification) error
	MergeNotifications(cached, remote []model.Notification) []model.Notification
	MarkAsReadLocally(ctx context.Context, id model.ID) error
	MarkAsUnreadLocally(ctx context.Context, id model.ID) error
	ClearNotifications(ctx context.Context) error

	// === Market alerts ===

	LoadMarketAlerts(ctx context.Context) ([]model.MarketAlert, error)
	SaveMarketAlerts(ctx context.Context, alerts []model.MarketAlert) error

	// === Preferences ===

	// LoadPreferences returns nil, nil when nothing has been cached yet.
	LoadPreferences(ctx context.Context) (*model.AlertPreferences, error)
	SavePreferences(ctx context.Context, p model.AlertPreferences) error
}
