// Package funnel turns a snapshot of vsl_analytics rows into per-session
// funnel summaries, a live-presence view and dashboard statistics. Every
// pass is a pure function of the snapshot it was given; nothing here is
// updated incrementally.
package funnel

import "vsltrack/api/models"

// SessionGroups is a stable partition of events by session id. Insertion
// order is preserved both inside each session (so "first event" stays the
// canonical metadata source) and across sessions (first-seen order, used for
// top-N tie-breaking downstream).
type SessionGroups struct {
	order  []string
	groups map[string][]models.FunnelEvent
}

// GroupBySession partitions events by session_id. Empty input yields empty
// groups; a session id never maps to an empty list.
func GroupBySession(events []models.FunnelEvent) *SessionGroups {
	g := &SessionGroups{groups: make(map[string][]models.FunnelEvent, len(events))}
	for _, e := range events {
		if _, seen := g.groups[e.SessionID]; !seen {
			g.order = append(g.order, e.SessionID)
		}
		g.groups[e.SessionID] = append(g.groups[e.SessionID], e)
	}
	return g
}

// SessionIDs returns session ids in first-seen order.
func (g *SessionGroups) SessionIDs() []string {
	return g.order
}

// Events returns the ordered events of one session, nil if unknown.
func (g *SessionGroups) Events(sessionID string) []models.FunnelEvent {
	return g.groups[sessionID]
}

func (g *SessionGroups) Len() int {
	return len(g.order)
}
