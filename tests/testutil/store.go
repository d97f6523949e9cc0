package testutil

import (
	"testing"
	"time"

	"github.com/nhle/commodity-alerts/internal/model"
	"github.com/nhle/commodity-alerts/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T, opts ...store.Option) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:", opts...)
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// BaseTime is the reference timestamp used by fixtures.
var BaseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Notification builds a fixture created minutes after BaseTime.
func Notification(id string, minutes int, read bool) model.Notification {
	return model.Notification{
		ID:        model.ID(id),
		Title:     "Gold moved " + id,
		Body:      "XAU crossed a threshold",
		Type:      model.NotificationPrice,
		Severity:  model.SeverityHigh,
		Commodity: "XAU",
		CreatedAt: BaseTime.Add(time.Duration(minutes) * time.Minute),
		IsRead:    read,
	}
}

// MarketAlert builds a fixture created minutes after BaseTime.
func MarketAlert(id string, minutes int) model.MarketAlert {
	change := -2.5
	return model.MarketAlert{
		ID:            model.ID(id),
		Commodity:     "WTI",
		Severity:      model.SeverityMedium,
		Message:       "Crude fell",
		ChangePercent: &change,
		CreatedAt:     BaseTime.Add(time.Duration(minutes) * time.Minute),
	}
}
