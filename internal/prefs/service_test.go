package prefs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/commodity-alerts/internal/model"
	"github.com/nhle/commodity-alerts/internal/prefs"
	"github.com/nhle/commodity-alerts/tests/testutil"
)

type fakeRemote struct {
	prefs     *model.AlertPreferences
	getErr    error
	updateErr error
	updated   []model.AlertPreferences
}

func (f *fakeRemote) GetPreferences(context.Context) (*model.AlertPreferences, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.prefs, nil
}

func (f *fakeRemote) UpdatePreferences(_ context.Context, p model.AlertPreferences) (*model.AlertPreferences, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updated = append(f.updated, p)
	return &p, nil
}

func TestGet_CachesRemote(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	remote := &fakeRemote{prefs: &model.AlertPreferences{
		Commodities: model.StringSet{"XAU", " WTI", "XAU"},
		Frequency:   "Daily",
		Threshold:   "high",
	}}
	svc := prefs.NewService(remote, s, nil)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StringSet{"WTI", "XAU"}, got.Commodities)
	assert.Equal(t, model.FrequencyDaily, got.Frequency)

	cached, err := s.LoadPreferences(ctx)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, model.SeverityHigh, cached.Threshold)
}

func TestGet_FallsBackToCache(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	want := model.DefaultPreferences()
	want.Frequency = model.FrequencyWeekly
	require.NoError(t, s.SavePreferences(ctx, want))

	svc := prefs.NewService(&fakeRemote{getErr: errors.New("offline")}, s, nil)
	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.FrequencyWeekly, got.Frequency)
}

func TestGet_FallsBackToDefaults(t *testing.T) {
	svc := prefs.NewService(&fakeRemote{getErr: errors.New("offline")}, testutil.NewTestStore(t), nil)
	got, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DefaultPreferences(), got)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	remote := &fakeRemote{}
	svc := prefs.NewService(remote, s, nil)

	in := model.DefaultPreferences()
	in.Currencies = model.StringSet{"usd", "EUR"}
	in.Threshold = "HIGH"

	got, err := svc.Update(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, model.StringSet{"EUR", "USD"}, got.Currencies)
	assert.Equal(t, model.SeverityHigh, got.Threshold)
	require.Len(t, remote.updated, 1)

	cached, err := s.LoadPreferences(ctx)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, got.Currencies, cached.Currencies)
}

func TestUpdate_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(p *model.AlertPreferences)
		field string
	}{
		{"bad frequency", func(p *model.AlertPreferences) { p.Frequency = "hourly" }, "frequency"},
		{"missing threshold", func(p *model.AlertPreferences) { p.Threshold = "" }, "threshold"},
		{"bad currency", func(p *model.AlertPreferences) { p.Currencies = model.StringSet{"DOLLAR"} }, "currencies[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &fakeRemote{}
			svc := prefs.NewService(remote, testutil.NewTestStore(t), nil)

			p := model.DefaultPreferences()
			tt.edit(&p)
			_, err := svc.Update(context.Background(), p)

			var verr *prefs.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, remote.updated)
		})
	}
}

func TestUpdate_RemoteError(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	svc := prefs.NewService(&fakeRemote{updateErr: errors.New("503")}, s, nil)

	_, err := svc.Update(ctx, model.DefaultPreferences())
	require.Error(t, err)

	cached, err := s.LoadPreferences(ctx)
	require.NoError(t, err)
	assert.Nil(t, cached)
}
