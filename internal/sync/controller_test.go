package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nhle/commodity-alerts/internal/api"
	"github.com/nhle/commodity-alerts/internal/model"
	"github.com/nhle/commodity-alerts/internal/reconcile"
	"github.com/nhle/commodity-alerts/internal/store"
	"github.com/nhle/commodity-alerts/tests/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRemote is a scripted backend. When gate is non-nil,
// FetchNotifications signals entered and blocks until gate is closed.
type fakeRemote struct {
	mu            gosync.Mutex
	notifications []model.Notification
	alerts        []model.MarketAlert
	fetchErr      error
	alertsErr     error
	markErr       error
	marked        []model.ID

	gate    chan struct{}
	entered chan struct{}

	notificationCalls atomic.Int32
	alertCalls        atomic.Int32
}

func (f *fakeRemote) FetchNotifications(ctx context.Context) (*api.NotificationsResponse, error) {
	f.notificationCalls.Add(1)
	if f.gate != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	list := make([]model.Notification, len(f.notifications))
	copy(list, f.notifications)
	return &api.NotificationsResponse{
		Notifications: list,
		UnreadCount:   reconcile.UnreadCount(list),
	}, nil
}

func (f *fakeRemote) FetchMarketAlerts(ctx context.Context, limit int) ([]model.MarketAlert, error) {
	f.alertCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alertsErr != nil {
		return nil, f.alertsErr
	}
	return f.alerts, nil
}

func (f *fakeRemote) MarkRead(ctx context.Context, id model.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	return f.markErr
}

// recorder collects every snapshot the controller publishes.
type recorder struct {
	mu    gosync.Mutex
	snaps []Snapshot
}

func (r *recorder) observe(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, len(r.snaps))
	copy(out, r.snaps)
	return out
}

func (r *recorder) last(t *testing.T) Snapshot {
	t.Helper()
	all := r.all()
	require.NotEmpty(t, all, "no snapshot delivered")
	return all[len(all)-1]
}

func testConfig() model.SyncConfig {
	return model.SyncConfig{
		PollIntervalSec: 30,
		FetchTimeoutSec: 5,
		AlertLimit:      10,
		ReadPolicy:      "merge",
		MaxCached:       100,
	}
}

func newController(t *testing.T, s store.Store, remote Remote, cfg model.SyncConfig, opts ...Option) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]Option{WithObserver(rec.observe)}, opts...)
	c := New(s, remote, cfg, opts...)
	t.Cleanup(c.Close)
	return c, rec
}

func ids(list []model.Notification) []model.ID {
	out := make([]model.ID, len(list))
	for i, n := range list {
		out[i] = n.ID
	}
	return out
}

func TestRefreshNow_MergesCacheAndRemote(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	require.NoError(t, s.SaveNotifications(ctx, []model.Notification{
		testutil.Notification("1", 0, false),
	}))

	remote := &fakeRemote{
		notifications: []model.Notification{
			testutil.Notification("1", 0, true),
			testutil.Notification("2", 5, false),
		},
		alerts: []model.MarketAlert{testutil.MarketAlert("a1", 0)},
	}
	c, rec := newController(t, s, remote, testConfig())

	snap, err := c.RefreshNow(ctx)
	require.NoError(t, err)

	assert.Equal(t, []model.ID{"2", "1"}, ids(snap.Notifications))
	assert.True(t, snap.Notifications[1].IsRead)
	assert.Equal(t, 1, snap.UnreadCount)
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, SourceRemote, snap.Source)
	assert.Len(t, snap.Alerts, 1)

	cached, err := s.LoadNotifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids(snap.Notifications), ids(cached))
	assert.True(t, cached[1].IsRead)

	alerts, err := s.LoadMarketAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	// The cached list is published before the merged one.
	all := rec.all()
	require.Len(t, all, 2)
	assert.Equal(t, SourceCache, all[0].Source)
	assert.Equal(t, []model.ID{"1"}, ids(all[0].Notifications))
	assert.Equal(t, 1, rec.last(t).UnreadCount)
}

func TestRefreshNow_RemoteFailureServesCache(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	require.NoError(t, s.SaveNotifications(ctx, []model.Notification{
		testutil.Notification("5", 0, false),
	}))

	remote := &fakeRemote{fetchErr: errors.New("connection refused")}
	c, rec := newController(t, s, remote, testConfig())

	snap, err := c.RefreshNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.ID{"5"}, ids(snap.Notifications))
	assert.True(t, snap.Stale)
	assert.Nil(t, snap.Err)
	assert.Equal(t, StateReady, snap.State)
	assert.Empty(t, snap.Message())

	for _, published := range rec.all() {
		assert.NotEqual(t, StateError, published.State)
	}
}

func TestRefreshNow_RemoteFailureWithoutCache(t *testing.T) {
	s := testutil.NewTestStore(t)
	remote := &fakeRemote{fetchErr: errors.New("connection refused")}
	c, rec := newController(t, s, remote, testConfig())

	snap, err := c.RefreshNow(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, RetryPrompt, snap.Message())

	last := rec.last(t)
	assert.Equal(t, StateError, last.State)
	assert.ErrorIs(t, last.Err, ErrUnavailable)
}

func TestRefreshNow_EmptyState(t *testing.T) {
	s := testutil.NewTestStore(t)
	remote := &fakeRemote{}
	c, rec := newController(t, s, remote, testConfig())

	snap, err := c.RefreshNow(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Notifications)
	assert.Equal(t, StateEmpty, snap.State)
	assert.Equal(t, EmptyMessage, snap.Message())
	assert.Nil(t, snap.Err)
	assert.Equal(t, StateEmpty, rec.last(t).State)
}

func TestRefreshNow_AlertFailureKeepsCachedAlerts(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	require.NoError(t, s.SaveMarketAlerts(ctx, []model.MarketAlert{testutil.MarketAlert("a1", 0)}))

	remote := &fakeRemote{
		notifications: []model.Notification{testutil.Notification("1", 0, false)},
		alertsErr:     errors.New("timeout"),
	}
	c, _ := newController(t, s, remote, testConfig())

	snap, err := c.RefreshNow(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Alerts, 1)
	assert.Equal(t, model.ID("a1"), snap.Alerts[0].ID)
}

func TestRefreshNow_NotificationFailureStillCachesAlerts(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	require.NoError(t, s.SaveNotifications(ctx, []model.Notification{
		testutil.Notification("1", 0, false),
	}))
	remote := &fakeRemote{
		fetchErr: errors.New("connection reset"),
		alerts:   []model.MarketAlert{testutil.MarketAlert("a1", 0), testutil.MarketAlert("a2", 1)},
	}
	c, _ := newController(t, s, remote, testConfig())

	snap, err := c.RefreshNow(ctx)
	require.NoError(t, err)
	assert.True(t, snap.Stale)
	assert.Len(t, snap.Alerts, 2)

	alerts, err := s.LoadMarketAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, alerts, 2)
	assert.Equal(t, int32(1), remote.alertCalls.Load())
}

func TestRefreshNow_TrimsCache(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	require.NoError(t, s.SaveNotifications(ctx, []model.Notification{
		testutil.Notification("1", 1, false),
		testutil.Notification("2", 2, false),
	}))
	remote := &fakeRemote{notifications: []model.Notification{
		testutil.Notification("3", 3, false),
	}}
	cfg := testConfig()
	cfg.MaxCached = 2
	c, _ := newController(t, s, remote, cfg)

	snap, err := c.RefreshNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.ID{"3", "2"}, ids(snap.Notifications))
}

func TestRefreshNow_TrimKeepsServerWindowReadState(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	remote := &fakeRemote{notifications: []model.Notification{
		testutil.Notification("1", 1, false),
		testutil.Notification("2", 2, false),
		testutil.Notification("3", 3, false),
	}}
	cfg := testConfig()
	cfg.MaxCached = 2
	c, _ := newController(t, s, remote, cfg)

	_, err := c.RefreshNow(ctx)
	require.NoError(t, err)
	require.NoError(t, c.MarkRead(ctx, "1"))

	// The oldest entry is past the limit but still in the server window,
	// which keeps reporting it unread.
	for range 2 {
		snap, err := c.RefreshNow(ctx)
		require.NoError(t, err)
		assert.Equal(t, []model.ID{"3", "2", "1"}, ids(snap.Notifications))
		assert.True(t, snap.Notifications[2].IsRead)
		assert.Equal(t, 2, snap.UnreadCount)
	}
}

func TestRefreshNow_Coalesces(t *testing.T) {
	s := testutil.NewTestStore(t)
	remote := &fakeRemote{
		notifications: []model.Notification{testutil.Notification("1", 0, false)},
		gate:          make(chan struct{}),
		entered:       make(chan struct{}, 1),
	}
	c, _ := newController(t, s, remote, testConfig())
	attached := make(chan struct{}, 2)
	c.joined = func() { attached <- struct{}{} }

	var wg gosync.WaitGroup
	results := make([]Snapshot, 2)
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = c.RefreshNow(context.Background())
	}()
	<-remote.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = c.RefreshNow(context.Background())
	}()
	// Both callers are attached while the fetch is still blocked.
	<-attached
	<-attached

	close(remote.gate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), remote.notificationCalls.Load())
	assert.Equal(t, int32(1), remote.alertCalls.Load())
	assert.Equal(t, results[0].CycleID, results[1].CycleID)

	// A later call starts a fresh cycle.
	next, err := c.RefreshNow(context.Background())
	<-attached
	require.NoError(t, err)
	assert.NotEqual(t, results[0].CycleID, next.CycleID)
	assert.Equal(t, int32(2), remote.notificationCalls.Load())
}

func TestRefreshNow_CallerCancelDoesNotAbortCycle(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	remote := &fakeRemote{
		notifications: []model.Notification{testutil.Notification("1", 0, false)},
		gate:          make(chan struct{}),
		entered:       make(chan struct{}, 1),
	}
	c, _ := newController(t, s, remote, testConfig())

	callCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() {
		_, err := c.RefreshNow(callCtx)
		errCh <- err
	}()
	<-remote.entered
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(remote.gate)
	require.Eventually(t, func() bool {
		cached, err := s.LoadNotifications(ctx)
		return err == nil && len(cached) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMarkRead_Optimistic(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	remote := &fakeRemote{notifications: []model.Notification{
		testutil.Notification("1", 0, false),
		testutil.Notification("2", 1, false),
	}}
	c, rec := newController(t, s, remote, testConfig())

	_, err := c.RefreshNow(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, c.Current().UnreadCount)

	require.NoError(t, c.MarkRead(ctx, "1"))

	assert.Equal(t, 1, c.Current().UnreadCount)
	assert.Equal(t, 1, rec.last(t).UnreadCount)
	assert.Equal(t, []model.ID{"1"}, remote.marked)

	cached, err := s.LoadNotifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reconcile.UnreadCount(cached))
}

func TestMarkRead_SurvivesNextRefresh(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	remote := &fakeRemote{notifications: []model.Notification{testutil.Notification("1", 0, false)}}
	c, _ := newController(t, s, remote, testConfig())

	_, err := c.RefreshNow(ctx)
	require.NoError(t, err)
	require.NoError(t, c.MarkRead(ctx, "1"))

	// Backend has not caught up yet and still reports the entry unread.
	snap, err := c.RefreshNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.UnreadCount)
}

func TestMarkRead_ServerFailureKeepsLocalState(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	remote := &fakeRemote{
		notifications: []model.Notification{testutil.Notification("1", 0, false)},
		markErr:       errors.New("500"),
	}
	c, _ := newController(t, s, remote, testConfig())

	_, err := c.RefreshNow(ctx)
	require.NoError(t, err)

	err = c.MarkRead(ctx, "1")
	require.Error(t, err)
	assert.Equal(t, 0, c.Current().UnreadCount)

	cached, err := s.LoadNotifications(ctx)
	require.NoError(t, err)
	assert.True(t, cached[0].IsRead)
}

func TestMarkRead_RollbackOnFailure(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	remote := &fakeRemote{
		notifications: []model.Notification{testutil.Notification("1", 0, false)},
		markErr:       errors.New("500"),
	}
	cfg := testConfig()
	cfg.RollbackOnFailure = true
	c, rec := newController(t, s, remote, cfg)

	_, err := c.RefreshNow(ctx)
	require.NoError(t, err)

	require.Error(t, c.MarkRead(ctx, "1"))
	assert.Equal(t, 1, c.Current().UnreadCount)
	assert.Equal(t, 1, rec.last(t).UnreadCount)

	cached, err := s.LoadNotifications(ctx)
	require.NoError(t, err)
	assert.False(t, cached[0].IsRead)
}

func TestMarkRead_UnknownID(t *testing.T) {
	s := testutil.NewTestStore(t)
	remote := &fakeRemote{}
	c, _ := newController(t, s, remote, testConfig())

	err := c.MarkRead(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, remote.marked)
}

func TestStartStop(t *testing.T) {
	s := testutil.NewTestStore(t)
	remote := &fakeRemote{notifications: []model.Notification{testutil.Notification("1", 0, false)}}
	c, rec := newController(t, s, remote, testConfig(), WithInterval(10*time.Millisecond))

	c.Start()
	c.Start()
	require.Eventually(t, func() bool { return remote.notificationCalls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop()

	// Let a cycle that was already running when Stop returned finish.
	time.Sleep(50 * time.Millisecond)
	calls := remote.notificationCalls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, remote.notificationCalls.Load())
	assert.Equal(t, StateReady, rec.last(t).State)
}

func TestStopWithoutStart(t *testing.T) {
	c := New(testutil.NewTestStore(t), &fakeRemote{}, testConfig())
	assert.NotPanics(t, c.Stop)
	assert.NotPanics(t, c.Close)
}

func TestClose_DetachesObserver(t *testing.T) {
	s := testutil.NewTestStore(t)
	remote := &fakeRemote{notifications: []model.Notification{testutil.Notification("1", 0, false)}}
	c, rec := newController(t, s, remote, testConfig())

	c.Close()
	_, err := c.RefreshNow(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rec.all())

	cached, err := s.LoadNotifications(context.Background())
	require.NoError(t, err)
	assert.Len(t, cached, 1)
}

// brokenStore fails every notification read.
type brokenStore struct {
	*store.SQLiteStore
}

func (brokenStore) LoadNotifications(context.Context) ([]model.Notification, error) {
	return nil, errors.New("disk I/O error")
}

func TestRefreshNow_CacheErrorIsNotFatal(t *testing.T) {
	s := brokenStore{testutil.NewTestStore(t)}
	remote := &fakeRemote{notifications: []model.Notification{testutil.Notification("1", 0, false)}}
	c, _ := newController(t, s, remote, testConfig())

	snap, err := c.RefreshNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.ID{"1"}, ids(snap.Notifications))
}
