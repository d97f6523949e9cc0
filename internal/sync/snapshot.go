package sync

import (
	"time"

	"github.com/nhle/commodity-alerts/internal/model"
	"github.com/nhle/commodity-alerts/internal/reconcile"
)

// User-facing texts for the non-list states.
const (
	RetryPrompt  = "Unable to load notifications - pull to retry"
	EmptyMessage = "No notifications yet"
)

// State describes what a snapshot holds.
type State int

const (
	StateLoading State = iota
	StateReady
	StateEmpty
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateEmpty:
		return "empty"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Source tells where a snapshot's notifications came from.
type Source int

const (
	SourceCache Source = iota
	SourceRemote
)

func (s Source) String() string {
	if s == SourceRemote {
		return "remote"
	}
	return "cache"
}

// Snapshot is an immutable view of the merged notification state handed
// to the observer.
type Snapshot struct {
	Notifications []model.Notification
	Alerts        []model.MarketAlert
	UnreadCount   int

	State  State
	Source Source

	// Stale is set when the backend failed and the cache was served.
	Stale bool

	// Err is only set in StateError.
	Err error

	CycleID   string
	UpdatedAt time.Time

	seq uint64
}

// Message returns the text to show instead of a list, or "" when the
// snapshot has notifications to show.
func (s Snapshot) Message() string {
	switch s.State {
	case StateError:
		return RetryPrompt
	case StateEmpty:
		return EmptyMessage
	default:
		return ""
	}
}

func newSnapshot(
	cycle string,
	list []model.Notification,
	alerts []model.MarketAlert,
	source Source,
	stale bool,
) Snapshot {
	state := StateReady
	if len(list) == 0 {
		state = StateEmpty
	}
	return Snapshot{
		Notifications: list,
		Alerts:        alerts,
		UnreadCount:   reconcile.UnreadCount(list),
		State:         state,
		Source:        source,
		Stale:         stale,
		CycleID:       cycle,
		UpdatedAt:     time.Now(),
	}
}
