package sync

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nhle/commodity-alerts/internal/model"
	"github.com/nhle/commodity-alerts/internal/reconcile"
	"github.com/nhle/commodity-alerts/internal/store"
)

// MarkRead marks a notification read locally, publishes the updated
// snapshot, then confirms with the backend. A backend failure is logged and
// returned; the local change is only reverted when the controller was
// configured with RollbackOnFailure.
func (c *Controller) MarkRead(ctx context.Context, id model.ID) error {
	log := c.logger.With(zap.String("notification", string(id)))

	c.writeMu.Lock()
	cacheErr := c.store.MarkAsReadLocally(ctx, id)
	if errors.Is(cacheErr, store.ErrNotFound) && !c.inCurrent(id) {
		c.writeMu.Unlock()
		return fmt.Errorf("marking %s read: %w", id, cacheErr)
	}
	if cacheErr != nil && !errors.Is(cacheErr, store.ErrNotFound) {
		log.Warn("updating cached read state failed", zap.Error(cacheErr))
	}
	snap, changed := c.setCurrentRead(id, true)
	c.writeMu.Unlock()

	if changed {
		c.deliver(snap)
	}

	if err := c.remote.MarkRead(ctx, id); err != nil {
		if !c.cfg.RollbackOnFailure {
			log.Warn("server did not confirm read, keeping local state", zap.Error(err))
			return fmt.Errorf("confirming read of %s: %w", id, err)
		}

		log.Warn("server did not confirm read, rolling back", zap.Error(err))
		c.writeMu.Lock()
		if rbErr := c.store.MarkAsUnreadLocally(context.WithoutCancel(ctx), id); rbErr != nil &&
			!errors.Is(rbErr, store.ErrNotFound) {
			log.Warn("rolling back cached read state failed", zap.Error(rbErr))
		}
		snap, changed := c.setCurrentRead(id, false)
		c.writeMu.Unlock()

		if changed {
			c.deliver(snap)
		}
		return fmt.Errorf("confirming read of %s: %w", id, err)
	}

	log.Debug("notification marked read")
	return nil
}

// inCurrent reports whether id is part of the current snapshot.
func (c *Controller) inCurrent(id model.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.current.Notifications {
		if n.ID == id {
			return true
		}
	}
	return false
}

// setCurrentRead flips id in the current snapshot and recomputes the unread
// count. The returned snapshot is committed only when changed is true.
func (c *Controller) setCurrentRead(id model.ID, read bool) (Snapshot, bool) {
	c.mu.Lock()
	list, changed := reconcile.SetRead(c.current.Notifications, id, read)
	if !changed {
		snap := c.current
		c.mu.Unlock()
		return snap, false
	}
	snap := c.current
	snap.Notifications = list
	snap.UnreadCount = reconcile.UnreadCount(list)
	c.mu.Unlock()

	return c.commit(snap), true
}
