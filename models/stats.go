// api/models/stats.go
package models

import "time"

// SessionSummary is the per-session funnel state derived from one
// aggregation pass. It is rebuilt from scratch on every refresh and never
// mutated in place.
type SessionSummary struct {
	SessionID   string `json:"session_id"`
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	City        string `json:"city"`
	Region      string `json:"region"`
	IP          string `json:"ip"`

	PlayedVideo  bool   `json:"played_video"`
	ReachedLead  bool   `json:"reached_lead"`
	ReachedPitch bool   `json:"reached_pitch"`
	ClickedOffer string `json:"clicked_offer,omitempty"` // offer_type of first click, "" = none

	TotalTimeOnPage int    `json:"total_time_on_page"` // seconds
	Progress        string `json:"progress"`
	Live            bool   `json:"live"`

	FirstSeen time.Time `json:"first_seen"`
}

// LiveSession is a currently-active session as shown on the dashboard. The
// fields come from the session's most-recent-ping event.
type LiveSession struct {
	SessionID   string    `json:"session_id"`
	CountryCode string    `json:"country_code"`
	CountryName string    `json:"country_name"`
	City        string    `json:"city"`
	Page        string    `json:"page"`
	LastPing    time.Time `json:"last_ping"`
	SecondsAgo  int       `json:"seconds_ago"`
}

// CountStat is one row of a top-N breakdown.
type CountStat struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type UpsellStat struct {
	Clicks  int `json:"clicks"`
	Accepts int `json:"accepts"`
	Rejects int `json:"rejects"`
}

type LongSession struct {
	SessionID   string `json:"session_id"`
	CountryName string `json:"country_name"`
	City        string `json:"city"`
	Seconds     int    `json:"seconds"`
	Progress    string `json:"progress"`
}

// DashboardStats is the full report for one snapshot. Rates are fractions in
// [0,1] and are 0 (never NaN) when TotalSessions is 0.
type DashboardStats struct {
	TotalSessions  int     `json:"total_sessions"`
	LiveSessions   int     `json:"live_sessions"`
	VideoPlayRate  float64 `json:"video_play_rate"`
	LeadReachRate  float64 `json:"lead_reach_rate"`
	PitchReachRate float64 `json:"pitch_reach_rate"`

	OfferClickRates map[string]float64    `json:"offer_click_rates"`
	UpsellStats     map[string]UpsellStat `json:"upsell_stats"`

	TopCountries    []CountStat   `json:"top_countries"`
	TopCities       []CountStat   `json:"top_cities"`
	LongestSessions []LongSession `json:"longest_sessions"`
	HourlyHistogram [24]int       `json:"hourly_histogram"`

	// Connected is false when the event store could not be reached; the
	// dashboard shows its banner instead of stale numbers.
	Connected   bool      `json:"connected"`
	GeneratedAt time.Time `json:"generated_at"`
}
