package pixel

import "sync"

// TrackingState remembers which pixel events already fired for a session.
// It replaces the ad-hoc "already tracked" flags the funnel pages used to
// stash in browser storage; inject one instance into the dispatcher.
type TrackingState struct {
	mu    sync.Mutex
	fired map[string]struct{}
}

func NewTrackingState() *TrackingState {
	return &TrackingState{fired: make(map[string]struct{})}
}

// MarkOnce records a (session, event) pair and reports whether this was the
// first time. Subsequent calls for the same pair return false.
func (t *TrackingState) MarkOnce(sessionID, event string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := sessionID + "|" + event
	if _, done := t.fired[key]; done {
		return false
	}
	t.fired[key] = struct{}{}
	return true
}
