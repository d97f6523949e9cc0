// Package reconcile combines cached and freshly fetched notification lists
// into one de-duplicated, newest-first view.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/nhle/commodity-alerts/internal/model"
)

// ReadPolicy decides the read flag when an id appears in both inputs.
type ReadPolicy int

const (
	// ReadPolicyMerge marks an entry read if either side has it read.
	ReadPolicyMerge ReadPolicy = iota

	// ReadPolicyRemote takes the server's read flag as authoritative.
	ReadPolicyRemote
)

func (p ReadPolicy) String() string {
	switch p {
	case ReadPolicyMerge:
		return "merge"
	case ReadPolicyRemote:
		return "remote"
	default:
		return fmt.Sprintf("ReadPolicy(%d)", int(p))
	}
}

// ParseReadPolicy converts a config value into a ReadPolicy.
func ParseReadPolicy(s string) (ReadPolicy, error) {
	switch s {
	case "", "merge":
		return ReadPolicyMerge, nil
	case "remote":
		return ReadPolicyRemote, nil
	default:
		return ReadPolicyMerge, fmt.Errorf("unknown read policy %q", s)
	}
}

// Merge returns the union of cached and remote, each id exactly once,
// sorted by CreatedAt descending. Field contents come from the remote copy
// when an id is in both inputs; the read flag follows policy.
//
// Entries with equal timestamps keep their input order, where remote
// entries precede cache-only entries. Neither input is modified.
func Merge(cached, remote []model.Notification, policy ReadPolicy) []model.Notification {
	cachedByID := make(map[model.ID]model.Notification, len(cached))
	for _, n := range cached {
		if _, dup := cachedByID[n.ID]; !dup {
			cachedByID[n.ID] = n
		}
	}

	merged := make([]model.Notification, 0, len(cached)+len(remote))
	seen := make(map[model.ID]struct{}, len(cached)+len(remote))

	for _, r := range remote {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}

		if c, ok := cachedByID[r.ID]; ok && policy == ReadPolicyMerge {
			r.IsRead = r.IsRead || c.IsRead
		}
		merged = append(merged, r)
	}

	for _, c := range cached {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		merged = append(merged, c)
	}

	SortNewestFirst(merged)
	return merged
}

// SortNewestFirst stably sorts list by CreatedAt descending, in place.
func SortNewestFirst(list []model.Notification) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

// UnreadCount returns the number of entries not yet read.
func UnreadCount(list []model.Notification) int {
	count := 0
	for _, n := range list {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// Trim keeps the first max entries of a newest-first list. A max of zero
// or less disables trimming.
func Trim(list []model.Notification, max int) []model.Notification {
	return TrimExcept(list, max, nil)
}

// TrimExcept trims like Trim but never drops an entry whose id appears in
// pinned. Pinned entries count toward max, so the result only exceeds max
// when pinned alone does. Order is preserved.
func TrimExcept(list []model.Notification, max int, pinned []model.Notification) []model.Notification {
	if max <= 0 || len(list) <= max {
		return list
	}

	keep := make(map[model.ID]struct{}, len(pinned))
	for _, n := range pinned {
		keep[n.ID] = struct{}{}
	}
	room := max
	for _, n := range list {
		if _, ok := keep[n.ID]; ok {
			room--
		}
	}

	out := make([]model.Notification, 0, max)
	for _, n := range list {
		if _, ok := keep[n.ID]; ok {
			out = append(out, n)
			continue
		}
		if room > 0 {
			out = append(out, n)
			room--
		}
	}
	return out
}

// SetRead returns a copy of list with the read flag of id set to read.
// changed is false when id is absent or already has that value.
func SetRead(list []model.Notification, id model.ID, read bool) (out []model.Notification, changed bool) {
	out = make([]model.Notification, len(list))
	copy(out, list)
	for i := range out {
		if out[i].ID != id {
			continue
		}
		if out[i].IsRead != read {
			out[i].IsRead = read
			changed = true
		}
		break
	}
	return out, changed
}
