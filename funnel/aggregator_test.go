package funnel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vsltrack/api/funnel"
	"vsltrack/api/models"
)

func TestAggregate_EmptySnapshot(t *testing.T) {
	stats := funnel.Aggregate(nil, nil, time.UTC, t0)

	assert.Equal(t, 0, stats.TotalSessions)
	assert.Equal(t, 0.0, stats.VideoPlayRate)
	assert.Equal(t, 0.0, stats.LeadReachRate)
	assert.Equal(t, 0.0, stats.PitchReachRate)
	assert.Empty(t, stats.OfferClickRates)
	assert.Empty(t, stats.UpsellStats)
	assert.Empty(t, stats.TopCountries)
	assert.True(t, stats.Connected)
}

func TestAggregate_Rates(t *testing.T) {
	summaries := []models.SessionSummary{
		{SessionID: "a", PlayedVideo: true, ReachedLead: true, ReachedPitch: true, ClickedOffer: "3-bottle"},
		{SessionID: "b", PlayedVideo: true},
		{SessionID: "c"},
		{SessionID: "d", PlayedVideo: true, ReachedLead: true, ClickedOffer: "3-bottle"},
	}

	stats := funnel.Aggregate(summaries, nil, time.UTC, t0)

	assert.Equal(t, 4, stats.TotalSessions)
	assert.InDelta(t, 0.75, stats.VideoPlayRate, 1e-9)
	assert.InDelta(t, 0.5, stats.LeadReachRate, 1e-9)
	assert.InDelta(t, 0.25, stats.PitchReachRate, 1e-9)
	assert.InDelta(t, 0.5, stats.OfferClickRates["3-bottle"], 1e-9)
}

// A single session clicking an offer yields a 100% click rate for that
// package, per the dashboard's definition.
func TestAggregate_SingleSessionScenario(t *testing.T) {
	summaries := []models.SessionSummary{
		{SessionID: "A", PlayedVideo: true, ClickedOffer: "3-bottle", TotalTimeOnPage: 50, Progress: funnel.ProgressStart},
	}

	stats := funnel.Aggregate(summaries, nil, time.UTC, t0)

	assert.Equal(t, 1, stats.TotalSessions)
	assert.InDelta(t, 1.0, stats.VideoPlayRate, 1e-9)
	assert.InDelta(t, 1.0, stats.OfferClickRates["3-bottle"], 1e-9)
}

func TestParseUpsellOffer(t *testing.T) {
	tests := []struct {
		in     string
		pkg    string
		action string
		ok     bool
	}{
		{"upsell-3-bottle-accept", "3-bottle", "accept", true},
		{"upsell-3-bottle-reject", "3-bottle", "reject", true},
		{"upsell-pro-accept", "pro", "accept", true},
		{"3-bottle", "", "", false},
		{"upsell-accept", "", "", false},
		{"upsell--accept", "", "", false},
		{"upsell-3-bottle", "", "", false},
		{"upsell-3-bottle-maybe", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		pkg, action, ok := funnel.ParseUpsellOffer(tt.in)
		require.Equal(t, tt.ok, ok, "input=%q", tt.in)
		assert.Equal(t, tt.pkg, pkg, "input=%q", tt.in)
		assert.Equal(t, tt.action, action, "input=%q", tt.in)
	}
}

func TestAggregate_UpsellStats(t *testing.T) {
	summaries := []models.SessionSummary{{SessionID: "A"}}
	events := []models.FunnelEvent{
		event("A", models.EventOfferClick, t0, `{"offer_type":"upsell-3-bottle-accept"}`),
		event("A", models.EventOfferClick, t0, `{"offer_type":"upsell-3-bottle-reject"}`),
		event("A", models.EventOfferClick, t0, `{"offer_type":"upsell-3-bottle-accept"}`),
		event("A", models.EventOfferClick, t0, `{"offer_type":"6-bottle"}`), // not an upsell shape
		event("A", models.EventVideoPlay, t0, ""),
	}

	stats := funnel.Aggregate(summaries, events, time.UTC, t0)

	st, ok := stats.UpsellStats["3-bottle"]
	require.True(t, ok)
	assert.Equal(t, 3, st.Clicks)
	assert.Equal(t, 2, st.Accepts)
	assert.Equal(t, 1, st.Rejects)
	assert.NotContains(t, stats.UpsellStats, "6-bottle")
}

func TestAggregate_TopCountriesStableTies(t *testing.T) {
	summaries := []models.SessionSummary{
		{SessionID: "1", CountryName: "Portugal"},
		{SessionID: "2", CountryName: "Spain"},
		{SessionID: "3", CountryName: "Portugal"},
		{SessionID: "4", CountryName: "Spain"},
		{SessionID: "5", CountryName: "France"},
	}

	stats := funnel.Aggregate(summaries, nil, time.UTC, t0)

	require.Len(t, stats.TopCountries, 3)
	// Portugal and Spain tie at 2; Portugal appeared first and keeps rank.
	assert.Equal(t, models.CountStat{Key: "Portugal", Count: 2}, stats.TopCountries[0])
	assert.Equal(t, models.CountStat{Key: "Spain", Count: 2}, stats.TopCountries[1])
	assert.Equal(t, models.CountStat{Key: "France", Count: 1}, stats.TopCountries[2])
}

func TestAggregate_UnknownCountryFallback(t *testing.T) {
	summaries := []models.SessionSummary{
		{SessionID: "1"},
		{SessionID: "2", CountryName: "Spain"},
	}

	stats := funnel.Aggregate(summaries, nil, time.UTC, t0)

	require.Len(t, stats.TopCountries, 2)
	assert.Equal(t, "Unknown", stats.TopCountries[0].Key)
}

func TestAggregate_TopCountriesTruncatedToTen(t *testing.T) {
	var summaries []models.SessionSummary
	names := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L"}
	for i, n := range names {
		for j := 0; j <= i; j++ {
			summaries = append(summaries, models.SessionSummary{CountryName: n})
		}
	}

	stats := funnel.Aggregate(summaries, nil, time.UTC, t0)

	require.Len(t, stats.TopCountries, 10)
	assert.Equal(t, "L", stats.TopCountries[0].Key)
	assert.Equal(t, 12, stats.TopCountries[0].Count)
}

func TestAggregate_LongestSessions(t *testing.T) {
	summaries := []models.SessionSummary{
		{SessionID: "short", TotalTimeOnPage: 30}, // floor is exclusive
		{SessionID: "mid", TotalTimeOnPage: 90, Progress: funnel.ProgressBrowsing},
		{SessionID: "long", TotalTimeOnPage: 600, Progress: funnel.ProgressLeadReached},
	}

	stats := funnel.Aggregate(summaries, nil, time.UTC, t0)

	require.Len(t, stats.LongestSessions, 2)
	assert.Equal(t, "long", stats.LongestSessions[0].SessionID)
	assert.Equal(t, 600, stats.LongestSessions[0].Seconds)
	assert.Equal(t, "mid", stats.LongestSessions[1].SessionID)
}

func TestAggregate_HourlyHistogramUsesConfiguredZone(t *testing.T) {
	loc := time.FixedZone("TST", -3*3600)
	summaries := []models.SessionSummary{
		{SessionID: "a", FirstSeen: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)}, // 09:30 in TST
		{SessionID: "b", FirstSeen: time.Date(2026, 3, 1, 12, 45, 0, 0, time.UTC)},
		{SessionID: "c", FirstSeen: time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC)}, // 23:00 previous day
	}

	stats := funnel.Aggregate(summaries, nil, loc, t0)

	assert.Equal(t, 2, stats.HourlyHistogram[9])
	assert.Equal(t, 1, stats.HourlyHistogram[23])
	assert.Equal(t, 0, stats.HourlyHistogram[12])
}

func TestAggregate_Idempotent(t *testing.T) {
	summaries := []models.SessionSummary{
		{SessionID: "a", PlayedVideo: true, CountryName: "Spain", City: "Madrid", TotalTimeOnPage: 200, FirstSeen: t0},
		{SessionID: "b", ReachedLead: true, CountryName: "France", TotalTimeOnPage: 40, FirstSeen: t0},
	}
	events := []models.FunnelEvent{
		event("a", models.EventOfferClick, t0, `{"offer_type":"upsell-pro-accept"}`),
	}

	first := funnel.Aggregate(summaries, events, time.UTC, t0)
	second := funnel.Aggregate(summaries, events, time.UTC, t0)

	require.Equal(t, first, second)
}
