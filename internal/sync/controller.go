package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nhle/commodity-alerts/internal/api"
	"github.com/nhle/commodity-alerts/internal/logging"
	"github.com/nhle/commodity-alerts/internal/model"
	"github.com/nhle/commodity-alerts/internal/reconcile"
	"github.com/nhle/commodity-alerts/internal/store"
)

// ErrUnavailable is surfaced when neither the cache nor the backend can
// provide notifications.
var ErrUnavailable = errors.New("notifications unavailable")

// defaultInterval applies when the configured poll interval is not positive.
const defaultInterval = 30 * time.Second

// defaultFetchTimeout bounds a refresh cycle when none is configured.
const defaultFetchTimeout = 30 * time.Second

// Remote is the subset of the backend client the controller needs.
type Remote interface {
	FetchNotifications(ctx context.Context) (*api.NotificationsResponse, error)
	FetchMarketAlerts(ctx context.Context, limit int) ([]model.MarketAlert, error)
	MarkRead(ctx context.Context, id model.ID) error
}

// Observer receives every snapshot the controller publishes. It is called
// synchronously, one snapshot at a time, and must not call MarkRead or
// RefreshNow on the same goroutine.
type Observer func(Snapshot)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = logging.OrNop(l)
	}
}

// WithInterval overrides the configured poll interval.
func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithObserver registers the observer at construction time.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.observer = o
	}
}

// refreshKey names the single refresh flight.
const refreshKey = "refresh"

// Controller keeps the cached notification list in step with the backend.
// It polls on an interval, coalesces concurrent refresh requests and
// applies optimistic read-state updates.
type Controller struct {
	store  store.Store
	remote Remote
	cfg    model.SyncConfig
	logger *zap.Logger

	interval time.Duration

	mu        gosync.Mutex
	observer  Observer
	closed    bool
	current   Snapshot
	seq       uint64
	cancel    context.CancelFunc
	loopDone  chan struct{}
	delivered uint64

	// flight coalesces concurrent refresh requests into one cycle.
	flight singleflight.Group

	// joined, when set, runs after a caller has attached to a flight.
	joined func()

	// writeMu serializes cache writes between refresh cycles and
	// read-state mutations.
	writeMu gosync.Mutex

	// notifyMu keeps observer calls sequential.
	notifyMu gosync.Mutex
}

// New creates a Controller over the given cache and backend.
func New(s store.Store, remote Remote, cfg model.SyncConfig, opts ...Option) *Controller {
	c := &Controller{
		store:    s,
		remote:   remote,
		cfg:      cfg,
		logger:   zap.NewNop(),
		interval: cfg.PollInterval(),
		current:  Snapshot{State: StateLoading},
	}
	if c.interval <= 0 {
		c.interval = defaultInterval
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetObserver replaces the registered observer. A nil observer stops
// delivery.
func (c *Controller) SetObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
}

// Current returns the most recently published snapshot.
func (c *Controller) Current() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Start begins periodic refreshes, running the first one immediately.
// Calling Start on a running controller does nothing.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil || c.closed {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.loopDone = done

	c.logger.Info("starting notification sync", zap.Duration("interval", c.interval))
	go c.run(ctx, done)
}

// Stop cancels periodic refreshes and waits for the loop to exit. An
// in-flight refresh keeps running to completion. Stop is idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.loopDone
	c.cancel, c.loopDone = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info("notification sync stopped")
}

// Close stops polling and detaches the observer. Results of a refresh
// still in flight are written to the cache but no longer published.
func (c *Controller) Close() {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.observer = nil
}

// run is the polling loop.
func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.refreshFromLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshFromLoop(ctx)
		}
	}
}

func (c *Controller) refreshFromLoop(ctx context.Context) {
	if _, err := c.RefreshNow(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Debug("scheduled refresh failed", zap.Error(err))
	}
}

// RefreshNow runs a fetch-and-merge cycle and returns its snapshot. If a
// cycle is already running, the caller waits for that cycle instead of
// starting another one. Cancelling ctx stops the wait, not the cycle.
func (c *Controller) RefreshNow(ctx context.Context) (Snapshot, error) {
	ch := c.flight.DoChan(refreshKey, func() (interface{}, error) {
		return c.runRefresh()
	})
	if c.joined != nil {
		c.joined()
	}

	select {
	case res := <-ch:
		snap, _ := res.Val.(Snapshot)
		return snap, res.Err
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// runRefresh runs one cycle on its own deadline, detached from any caller.
func (c *Controller) runRefresh() (Snapshot, error) {
	timeout := c.cfg.FetchTimeout()
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return c.refresh(ctx)
}

// refresh performs one cycle: cache read, remote fetch, merge, cache write.
func (c *Controller) refresh(ctx context.Context) (Snapshot, error) {
	cycle := uuid.NewString()
	log := c.logger.With(zap.String("cycle", cycle))
	started := time.Now()

	// Store work must finish even if the fetch used up the deadline.
	storeCtx := context.WithoutCancel(ctx)

	cachedAlerts := c.loadAlerts(storeCtx, log)
	if fast, ok := c.commitFromCache(storeCtx, log, cycle, cachedAlerts, false); ok {
		c.deliver(fast)
	}

	var (
		remoteResp *api.NotificationsResponse
		notesErr   error
		alerts     []model.MarketAlert
		alertsErr  error
	)
	// The two fetches are independent. Neither failure cancels the other,
	// so each records its own error and Wait only joins them.
	var g errgroup.Group
	g.Go(func() error {
		remoteResp, notesErr = c.remote.FetchNotifications(ctx)
		return nil
	})
	g.Go(func() error {
		alerts, alertsErr = c.remote.FetchMarketAlerts(ctx, c.cfg.AlertLimit)
		return nil
	})
	_ = g.Wait()

	if notesErr == nil && remoteResp == nil {
		remoteResp = &api.NotificationsResponse{}
	}

	if alertsErr != nil {
		log.Warn("market alert fetch failed, keeping cached alerts", zap.Error(alertsErr))
		alerts = cachedAlerts
	} else {
		c.writeMu.Lock()
		if err := c.store.SaveMarketAlerts(storeCtx, alerts); err != nil {
			log.Warn("caching market alerts failed", zap.Error(err))
		}
		c.writeMu.Unlock()
	}

	if notesErr != nil {
		if snap, ok := c.commitFromCache(storeCtx, log, cycle, alerts, true); ok {
			log.Warn("notification fetch failed, serving cache", zap.Error(notesErr))
			c.deliver(snap)
			return snap, nil
		}

		err := fmt.Errorf("%w: %v", ErrUnavailable, notesErr)
		log.Error("notification fetch failed with no cache", zap.Error(notesErr))
		snap := c.commit(Snapshot{
			Notifications: []model.Notification{},
			Alerts:        alerts,
			State:         StateError,
			Source:        SourceRemote,
			Err:           err,
			CycleID:       cycle,
			UpdatedAt:     time.Now(),
		})
		c.deliver(snap)
		return snap, err
	}

	c.writeMu.Lock()
	// Re-read so reads marked while the fetch was running survive the merge.
	latest := c.loadNotifications(storeCtx, log)
	merged := c.store.MergeNotifications(latest, remoteResp.Notifications)
	// Entries in the current server window stay cached so their local read
	// flag survives the next merge.
	merged = reconcile.TrimExcept(merged, c.cfg.MaxCached, remoteResp.Notifications)
	if err := c.store.SaveNotifications(storeCtx, merged); err != nil {
		log.Warn("caching notifications failed", zap.Error(err))
	}
	snap := c.commit(newSnapshot(cycle, merged, alerts, SourceRemote, false))
	c.writeMu.Unlock()

	log.Debug("refresh complete",
		zap.Int("cached", len(latest)),
		zap.Int("remote", len(remoteResp.Notifications)),
		zap.Int("merged", len(merged)),
		zap.Int("unread", snap.UnreadCount),
		zap.Int("server_unread", remoteResp.UnreadCount),
		zap.Duration("took", time.Since(started)),
	)

	c.deliver(snap)
	return snap, nil
}

// commitFromCache publishes the cached list. ok is false when the cache is
// empty, which callers treat as "no cache".
func (c *Controller) commitFromCache(
	ctx context.Context,
	log *zap.Logger,
	cycle string,
	alerts []model.MarketAlert,
	stale bool,
) (Snapshot, bool) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cached := c.loadNotifications(ctx, log)
	if len(cached) == 0 {
		return Snapshot{}, false
	}
	return c.commit(newSnapshot(cycle, cached, alerts, SourceCache, stale)), true
}

// loadNotifications reads the cache; failures degrade to an empty list.
func (c *Controller) loadNotifications(ctx context.Context, log *zap.Logger) []model.Notification {
	list, err := c.store.LoadNotifications(ctx)
	if err != nil {
		log.Warn("reading notification cache failed", zap.Error(err))
		return []model.Notification{}
	}
	return list
}

func (c *Controller) loadAlerts(ctx context.Context, log *zap.Logger) []model.MarketAlert {
	alerts, err := c.store.LoadMarketAlerts(ctx)
	if err != nil {
		log.Warn("reading market alert cache failed", zap.Error(err))
		return []model.MarketAlert{}
	}
	return alerts
}

// commit makes snap the current snapshot and stamps its sequence number.
func (c *Controller) commit(snap Snapshot) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	snap.seq = c.seq
	c.current = snap
	return snap
}

// deliver hands snap to the observer unless a newer snapshot was already
// delivered or the controller is closed.
func (c *Controller) deliver(snap Snapshot) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	obs := c.observer
	if c.closed || snap.seq <= c.delivered {
		obs = nil
	} else {
		c.delivered = snap.seq
	}
	c.mu.Unlock()

	if obs != nil {
		obs(snap)
	}
}
