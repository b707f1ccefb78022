// api/models/event.go
package models

import (
	"encoding/json"
	"time"
)

// Known event types written by the funnel pages. Anything else (e.g. the
// ad-hoc "session_start" seen in the wild) decodes to UnknownPayload and is
// ignored by the classifier.
const (
	EventPageEnter     = "page_enter"
	EventVideoPlay     = "video_play"
	EventVideoProgress = "video_progress"
	EventPitchReached  = "pitch_reached"
	EventOfferClick    = "offer_click"
	EventPageExit      = "page_exit"
)

// FunnelEvent is a single row of the vsl_analytics table. Geolocation fields
// are resolved once at session start and denormalized onto every event of
// that session.
type FunnelEvent struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id" binding:"required"`
	EventType   string          `json:"event_type" binding:"required"`
	EventData   json.RawMessage `json:"event_data,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	LastPing    *time.Time      `json:"last_ping,omitempty"`
	CountryCode string          `json:"country_code"`
	CountryName string          `json:"country_name"`
	City        string          `json:"city"`
	Region      string          `json:"region"`
	IP          string          `json:"ip"`
}

// Payload is the decoded form of event_data, one variant per known event
// type. Consumers read optional fields defensively; a decode failure or an
// unknown event type yields UnknownPayload.
type Payload interface {
	payload()
}

type PageEnterPayload struct {
	Path string `json:"path"`
}

type VideoPlayPayload struct {
	// Nil when the flag was not sent; the classifier treats nil as loaded.
	VturbLoaded *bool `json:"vturb_loaded"`
}

type VideoProgressPayload struct {
	Milestone       string  `json:"milestone"`
	TotalTimeOnPage float64 `json:"total_time_on_page"`
}

type PitchReachedPayload struct{}

type OfferClickPayload struct {
	OfferType string `json:"offer_type"`
}

type PageExitPayload struct {
	TotalTimeOnPageMs *float64 `json:"total_time_on_page_ms"`
	TimeOnPageMs      *float64 `json:"time_on_page_ms"` // legacy field name
}

type UnknownPayload struct {
	Raw json.RawMessage
}

func (PageEnterPayload) payload()     {}
func (VideoPlayPayload) payload()     {}
func (VideoProgressPayload) payload() {}
func (PitchReachedPayload) payload()  {}
func (OfferClickPayload) payload()    {}
func (PageExitPayload) payload()      {}
func (UnknownPayload) payload()       {}

// Milliseconds returns the exit duration, preferring the current field name
// over the legacy one.
func (p PageExitPayload) Milliseconds() (float64, bool) {
	if p.TotalTimeOnPageMs != nil {
		return *p.TotalTimeOnPageMs, true
	}
	if p.TimeOnPageMs != nil {
		return *p.TimeOnPageMs, true
	}
	return 0, false
}

// Payload decodes EventData for this event's type. It never fails: malformed
// JSON degrades to UnknownPayload and an empty bag decodes to the zero value
// of the typed variant.
func (e *FunnelEvent) Payload() Payload {
	switch e.EventType {
	case EventPageEnter:
		var p PageEnterPayload
		return e.decode(&p)
	case EventVideoPlay:
		var p VideoPlayPayload
		return e.decode(&p)
	case EventVideoProgress:
		var p VideoProgressPayload
		return e.decode(&p)
	case EventPitchReached:
		var p PitchReachedPayload
		return e.decode(&p)
	case EventOfferClick:
		var p OfferClickPayload
		return e.decode(&p)
	case EventPageExit:
		var p PageExitPayload
		return e.decode(&p)
	default:
		return UnknownPayload{Raw: e.EventData}
	}
}

func (e *FunnelEvent) decode(into Payload) Payload {
	if len(e.EventData) == 0 {
		return into
	}
	if err := json.Unmarshal(e.EventData, into); err != nil {
		return UnknownPayload{Raw: e.EventData}
	}
	return into
}
