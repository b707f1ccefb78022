package funnel

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vsltrack/api/models"
	"vsltrack/api/store"
)

// fakeEventStore fakes store.EventStore for engine tests.
type fakeEventStore struct {
	QueryFn    func(ctx context.Context, f store.EventFilter) ([]models.FunnelEvent, error)
	lastFilter store.EventFilter
	queries    int
}

func (f *fakeEventStore) Query(ctx context.Context, flt store.EventFilter) ([]models.FunnelEvent, error) {
	f.queries++
	f.lastFilter = flt
	if f.QueryFn != nil {
		return f.QueryFn(ctx, flt)
	}
	return nil, nil
}

func (f *fakeEventStore) Insert(ctx context.Context, e *models.FunnelEvent) error { return nil }
func (f *fakeEventStore) UpdatePing(ctx context.Context, sessionID string, ts time.Time) error {
	return nil
}
func (f *fakeEventStore) DeleteAll(ctx context.Context) error { return nil }

func newTestEngine(st store.EventStore, now time.Time) *Engine {
	e := NewEngine(st, EngineConfig{
		ExcludedCountryCodes: []string{"BR"},
		ExcludedCountryNames: []string{"Brazil"},
	}, nil)
	e.now = func() time.Time { return now }
	return e
}

func TestEngine_RefreshPublishesSnapshot(t *testing.T) {
	base := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	recent := base.Add(-10 * time.Second)
	stale := base.Add(-121 * time.Second)

	st := &fakeEventStore{
		QueryFn: func(ctx context.Context, f store.EventFilter) ([]models.FunnelEvent, error) {
			return []models.FunnelEvent{
				{SessionID: "live", EventType: models.EventPageEnter, CreatedAt: base.Add(-time.Minute), LastPing: &recent, CountryName: "Spain"},
				{SessionID: "live", EventType: models.EventVideoPlay, CreatedAt: base.Add(-50 * time.Second)},
				{SessionID: "gone", EventType: models.EventPageEnter, CreatedAt: base.Add(-time.Hour), LastPing: &stale, CountryName: "France"},
			}, nil
		},
	}

	e := newTestEngine(st, base)
	require.NoError(t, e.Refresh(context.Background()))

	stats := e.Snapshot()
	assert.True(t, stats.Connected)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.LiveSessions)
	assert.InDelta(t, 0.5, stats.VideoPlayRate, 1e-9)

	live := e.Live()
	require.Len(t, live, 1)
	assert.Equal(t, "live", live[0].SessionID)

	sessions := e.Sessions()
	require.Len(t, sessions, 2)
	assert.True(t, sessions[0].Live)
	assert.False(t, sessions[1].Live)

	// The exclusion policy travels down to the store query.
	assert.Equal(t, []string{"BR"}, st.lastFilter.ExcludeCountryCodes)
	assert.Equal(t, []string{"Brazil"}, st.lastFilter.ExcludeCountryNames)
}

func TestEngine_RefreshStoreFailure(t *testing.T) {
	base := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	st := &fakeEventStore{
		QueryFn: func(ctx context.Context, f store.EventFilter) ([]models.FunnelEvent, error) {
			return nil, errors.New("connection refused")
		},
	}

	e := newTestEngine(st, base)
	err := e.Refresh(context.Background())
	require.Error(t, err)

	stats := e.Snapshot()
	assert.False(t, stats.Connected)
	assert.Equal(t, 0, stats.TotalSessions)
	assert.Equal(t, 0.0, stats.VideoPlayRate)
	assert.Empty(t, e.Live())
}

func TestEngine_ExcludesOriginsAsGuard(t *testing.T) {
	base := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	st := &fakeEventStore{
		QueryFn: func(ctx context.Context, f store.EventFilter) ([]models.FunnelEvent, error) {
			// A backend that ignored the exclusion filter.
			return []models.FunnelEvent{
				{SessionID: "br", EventType: models.EventPageEnter, CreatedAt: base, CountryCode: "BR"},
				{SessionID: "br2", EventType: models.EventPageEnter, CreatedAt: base, CountryName: "Brazil"},
				{SessionID: "ok", EventType: models.EventPageEnter, CreatedAt: base, CountryCode: "PT"},
			}, nil
		},
	}

	e := newTestEngine(st, base)
	require.NoError(t, e.Refresh(context.Background()))

	assert.Equal(t, 1, e.Snapshot().TotalSessions)
	require.Len(t, e.Sessions(), 1)
	assert.Equal(t, "ok", e.Sessions()[0].SessionID)
}

func TestEngine_StaleGenerationDropped(t *testing.T) {
	base := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	e := newTestEngine(&fakeEventStore{}, base)

	newer := models.DashboardStats{TotalSessions: 7, Connected: true}
	older := models.DashboardStats{TotalSessions: 1, Connected: true}

	e.publish(2, newer, nil, nil)
	e.publish(1, older, nil, nil)

	assert.Equal(t, 7, e.Snapshot().TotalSessions)
}

func TestEngine_UpsellRollupFromRawEvents(t *testing.T) {
	base := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	st := &fakeEventStore{
		QueryFn: func(ctx context.Context, f store.EventFilter) ([]models.FunnelEvent, error) {
			return []models.FunnelEvent{
				{SessionID: "A", EventType: models.EventPageEnter, CreatedAt: base},
				{SessionID: "A", EventType: models.EventOfferClick, CreatedAt: base,
					EventData: json.RawMessage(`{"offer_type":"upsell-3-bottle-accept"}`)},
			}, nil
		},
	}

	e := newTestEngine(st, base)
	require.NoError(t, e.Refresh(context.Background()))

	st3 := e.Snapshot().UpsellStats["3-bottle"]
	assert.Equal(t, 1, st3.Clicks)
	assert.Equal(t, 1, st3.Accepts)
	assert.Equal(t, 0, st3.Rejects)
}

func TestEngine_StartStop(t *testing.T) {
	base := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	st := &fakeEventStore{}
	e := newTestEngine(st, base)
	e.cfg.PollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	require.Eventually(t, func() bool {
		return e.Snapshot().Connected
	}, time.Second, 5*time.Millisecond)

	e.Stop()
	e.Stop() // idempotent
}
