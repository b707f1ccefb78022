// api/funnel/classifier.go
package funnel

import (
	"math"
	"time"

	"vsltrack/api/models"
)

// Funnel thresholds in seconds of time-on-page. The lead mark sits at 7:45
// into the video, the pitch at 35:55.
const (
	LeadThresholdSeconds  = 465
	PitchThresholdSeconds = 2155

	MilestoneLeadReached  = "lead_reached"
	MilestonePitchReached = "pitch_reached"
)

// Progress labels, highest threshold first.
const (
	ProgressPitchReached = "Pitch Reached"
	ProgressLeadReached  = "Lead Reached"
	ProgressEngaged      = "Engaged (5min+)"
	ProgressBrowsing     = "Browsing"
	ProgressStart        = "Start"
)

// Classify derives a SessionSummary from one session's ordered events.
// It never fails: missing or malformed event_data fields degrade to the
// "not reached" / zero branch.
//
// A video_play event counts as played unless its payload carries
// vturb_loaded explicitly set to false; an absent flag counts. This is the
// one canonical rule for every caller.
func Classify(sessionID string, events []models.FunnelEvent, now time.Time) models.SessionSummary {
	s := models.SessionSummary{SessionID: sessionID}
	if len(events) == 0 {
		return s
	}

	first := events[0]
	s.CountryCode = first.CountryCode
	s.CountryName = first.CountryName
	s.City = first.City
	s.Region = first.Region
	s.IP = first.IP
	s.FirstSeen = first.CreatedAt

	for _, e := range events {
		switch e.EventType {
		case models.EventVideoPlay:
			if p, ok := e.Payload().(*models.VideoPlayPayload); ok {
				if p.VturbLoaded == nil || *p.VturbLoaded {
					s.PlayedVideo = true
				}
			} else {
				// Undecodable payload: the event itself is the signal.
				s.PlayedVideo = true
			}
		case models.EventVideoProgress:
			p, ok := e.Payload().(*models.VideoProgressPayload)
			if !ok {
				continue
			}
			if p.TotalTimeOnPage >= LeadThresholdSeconds || p.Milestone == MilestoneLeadReached {
				s.ReachedLead = true
			}
			if p.TotalTimeOnPage >= PitchThresholdSeconds || p.Milestone == MilestonePitchReached {
				s.ReachedPitch = true
			}
		case models.EventPitchReached:
			s.ReachedPitch = true
		case models.EventOfferClick:
			if s.ClickedOffer != "" {
				continue // first click wins
			}
			// A click without an offer_type degrades to "no offer recorded
			// yet", so a later click that names one still counts. "First
			// click" means first click that carries an offer.
			if p, ok := e.Payload().(*models.OfferClickPayload); ok && p.OfferType != "" {
				s.ClickedOffer = p.OfferType
			}
		}
	}

	s.TotalTimeOnPage = totalTimeOnPage(events, now)
	s.Progress = ProgressLabel(s.TotalTimeOnPage)
	return s
}

// totalTimeOnPage applies the fallback chain: exit duration when the page
// reported one, else elapsed time from page_enter to the session's last
// heartbeat (or "now" when it never pinged), else 0.
func totalTimeOnPage(events []models.FunnelEvent, now time.Time) int {
	for _, e := range events {
		if e.EventType != models.EventPageExit {
			continue
		}
		if p, ok := e.Payload().(*models.PageExitPayload); ok {
			if ms, ok := p.Milliseconds(); ok {
				return clampSeconds(ms / 1000)
			}
		}
	}

	for _, e := range events {
		if e.EventType != models.EventPageEnter {
			continue
		}
		ref := now
		if ping, ok := maxLastPing(events); ok {
			ref = ping
		}
		return clampSeconds(ref.Sub(e.CreatedAt).Seconds())
	}

	return 0
}

// clampSeconds rounds to whole seconds and clamps clock-skew negatives to 0.
func clampSeconds(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Round(seconds))
}

// maxLastPing returns the latest heartbeat across the session's events.
func maxLastPing(events []models.FunnelEvent) (time.Time, bool) {
	var max time.Time
	found := false
	for _, e := range events {
		if e.LastPing == nil {
			continue
		}
		if !found || e.LastPing.After(max) {
			max = *e.LastPing
			found = true
		}
	}
	return max, found
}

// ProgressLabel buckets seconds-on-page for the dashboard, first match wins.
func ProgressLabel(seconds int) string {
	switch {
	case seconds >= PitchThresholdSeconds:
		return ProgressPitchReached
	case seconds >= LeadThresholdSeconds:
		return ProgressLeadReached
	case seconds >= 300:
		return ProgressEngaged
	case seconds >= 60:
		return ProgressBrowsing
	case seconds > 0:
		return ProgressStart
	default:
		return ""
	}
}
