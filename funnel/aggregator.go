// api/funnel/aggregator.go
package funnel

import (
	"sort"
	"strings"
	"time"

	"vsltrack/api/models"
)

const (
	topCountriesLimit    = 10
	topCitiesLimit       = 5
	longestSessionsLimit = 20

	// Sessions shorter than this are noise for the "longest sessions" view.
	longSessionFloorSeconds = 30
)

// Aggregate folds classified sessions (plus the raw events, for event-level
// roll-ups) into the dashboard report. Pure: the same snapshot always yields
// the same stats. All rates are 0 when there are no sessions.
func Aggregate(summaries []models.SessionSummary, events []models.FunnelEvent, loc *time.Location, now time.Time) models.DashboardStats {
	if loc == nil {
		loc = time.UTC
	}

	stats := models.DashboardStats{
		OfferClickRates: make(map[string]float64),
		UpsellStats:     make(map[string]models.UpsellStat),
		Connected:       true,
		GeneratedAt:     now,
	}

	total := len(summaries)
	stats.TotalSessions = total
	if total == 0 {
		return stats
	}

	var played, leads, pitches, live int
	offerClicks := make(map[string]int)

	for _, s := range summaries {
		if s.PlayedVideo {
			played++
		}
		if s.ReachedLead {
			leads++
		}
		if s.ReachedPitch {
			pitches++
		}
		if s.Live {
			live++
		}
		if s.ClickedOffer != "" {
			offerClicks[s.ClickedOffer]++
		}
		stats.HourlyHistogram[s.FirstSeen.In(loc).Hour()]++
	}

	stats.LiveSessions = live
	stats.VideoPlayRate = float64(played) / float64(total)
	stats.LeadReachRate = float64(leads) / float64(total)
	stats.PitchReachRate = float64(pitches) / float64(total)
	for offer, count := range offerClicks {
		stats.OfferClickRates[offer] = float64(count) / float64(total)
	}

	stats.UpsellStats = upsellStats(events)
	stats.TopCountries = topBreakdown(summaries, topCountriesLimit, func(s models.SessionSummary) string {
		return s.CountryName
	})
	stats.TopCities = topBreakdown(summaries, topCitiesLimit, func(s models.SessionSummary) string {
		return s.City
	})
	stats.LongestSessions = longestSessions(summaries)

	return stats
}

// ParseUpsellOffer splits an "upsell-<package>-<action>" offer_type string.
// The package id may itself contain hyphens ("3-bottle"), so the action is
// matched as a suffix. Returns ok=false for anything else.
func ParseUpsellOffer(offerType string) (pkg, action string, ok bool) {
	rest, found := strings.CutPrefix(offerType, "upsell-")
	if !found {
		return "", "", false
	}
	for _, a := range []string{"accept", "reject"} {
		if p, found := strings.CutSuffix(rest, "-"+a); found && p != "" {
			return p, a, true
		}
	}
	return "", "", false
}

// upsellStats scans raw offer_click events; sessions can click several
// upsell buttons so this is event-level, not session-level. Offer strings
// that do not match the upsell shape are skipped, not an error.
func upsellStats(events []models.FunnelEvent) map[string]models.UpsellStat {
	out := make(map[string]models.UpsellStat)
	for _, e := range events {
		if e.EventType != models.EventOfferClick {
			continue
		}
		p, ok := e.Payload().(*models.OfferClickPayload)
		if !ok {
			continue
		}
		pkg, action, ok := ParseUpsellOffer(p.OfferType)
		if !ok {
			continue
		}
		st := out[pkg]
		st.Clicks++
		switch action {
		case "accept":
			st.Accepts++
		case "reject":
			st.Rejects++
		}
		out[pkg] = st
	}
	return out
}

// topBreakdown groups sessions by a key (empty key reports as "Unknown"),
// sorts by count descending with a stable sort so equal counts keep
// first-encountered order, and truncates to limit.
func topBreakdown(summaries []models.SessionSummary, limit int, key func(models.SessionSummary) string) []models.CountStat {
	counts := make(map[string]int)
	var order []string
	for _, s := range summaries {
		k := key(s)
		if k == "" {
			k = "Unknown"
		}
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k]++
	}

	out := make([]models.CountStat, 0, len(order))
	for _, k := range order {
		out = append(out, models.CountStat{Key: k, Count: counts[k]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func longestSessions(summaries []models.SessionSummary) []models.LongSession {
	var out []models.LongSession
	for _, s := range summaries {
		if s.TotalTimeOnPage <= longSessionFloorSeconds {
			continue
		}
		out = append(out, models.LongSession{
			SessionID:   s.SessionID,
			CountryName: s.CountryName,
			City:        s.City,
			Seconds:     s.TotalTimeOnPage,
			Progress:    s.Progress,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Seconds > out[j].Seconds
	})
	if len(out) > longestSessionsLimit {
		out = out[:longestSessionsLimit]
	}
	return out
}
