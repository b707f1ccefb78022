// api/funnel/presence.go
package funnel

import (
	"time"

	"vsltrack/api/models"
)

// DefaultLiveWindow is how far back a heartbeat may be for a session to
// count as currently active.
const DefaultLiveWindow = 2 * time.Minute

// LiveSessions returns the currently-active sessions in first-seen order.
// A session is live iff now − max(last_ping) ≤ window, boundary inclusive.
// Negative deltas (heartbeat ahead of the aggregating clock) clamp to zero,
// so a ping "from the future" is live. Sessions without any heartbeat are
// never live.
func LiveSessions(groups *SessionGroups, now time.Time, window time.Duration) []models.LiveSession {
	if window <= 0 {
		window = DefaultLiveWindow
	}

	var live []models.LiveSession
	for _, id := range groups.SessionIDs() {
		events := groups.Events(id)

		rep, ping, ok := representativeEvent(events)
		if !ok {
			continue
		}

		delta := now.Sub(ping)
		if delta < 0 {
			delta = 0
		}
		if delta > window {
			continue
		}

		live = append(live, models.LiveSession{
			SessionID:   id,
			CountryCode: rep.CountryCode,
			CountryName: rep.CountryName,
			City:        rep.City,
			Page:        currentPage(rep, events),
			LastPing:    ping,
			SecondsAgo:  int(delta.Seconds()),
		})
	}
	return live
}

// representativeEvent picks the event carrying the session's most recent
// heartbeat; its denormalized fields drive the live view.
func representativeEvent(events []models.FunnelEvent) (models.FunnelEvent, time.Time, bool) {
	var (
		rep   models.FunnelEvent
		ping  time.Time
		found bool
	)
	for _, e := range events {
		if e.LastPing == nil {
			continue
		}
		if !found || e.LastPing.After(ping) {
			rep = e
			ping = *e.LastPing
			found = true
		}
	}
	return rep, ping, found
}

// currentPage reads the page path from the representative event when it has
// one, else from the session's most recent page_enter.
func currentPage(rep models.FunnelEvent, events []models.FunnelEvent) string {
	if p, ok := rep.Payload().(*models.PageEnterPayload); ok && p.Path != "" {
		return p.Path
	}
	page := ""
	for _, e := range events {
		if e.EventType != models.EventPageEnter {
			continue
		}
		if p, ok := e.Payload().(*models.PageEnterPayload); ok && p.Path != "" {
			page = p.Path
		}
	}
	return page
}
