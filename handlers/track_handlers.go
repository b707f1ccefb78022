// api/handlers/track_handlers.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"vsltrack/api/geo"
	"vsltrack/api/models"
	"vsltrack/api/pixel"
	"vsltrack/api/store"
)

type TrackHandlers struct {
	Events store.EventStore
	Geo    *geo.Resolver
	Pixels *pixel.Dispatcher
}

func NewTrackHandlers(events store.EventStore, resolver *geo.Resolver, pixels *pixel.Dispatcher) *TrackHandlers {
	return &TrackHandlers{Events: events, Geo: resolver, Pixels: pixels}
}

// TrackEvent ingests funnel events, sent either as a batch array or as a
// single object. The server assigns ids and timestamps, captures the client
// IP and resolves geolocation when the page did not send it (first event of
// a session).
func (h *TrackHandlers) TrackEvent(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		log.WithError(err).Debug("failed to read track request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	incoming, err := decodeEvents(body)
	if err != nil {
		log.WithError(err).Debug("invalid track request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if len(incoming) == 0 {
		c.Status(http.StatusOK)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	now := time.Now().UTC()
	landingURL := c.Request.Referer()

	for i := range incoming {
		e := &incoming[i]
		e.ID = uuid.New().String()
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.LastPing == nil {
			ping := now
			e.LastPing = &ping
		}
		if e.IP == "" {
			e.IP = c.ClientIP()
		}
		if e.CountryCode == "" {
			loc := h.Geo.Resolve(ctx, e.IP)
			e.CountryCode = loc.CountryCode
			e.CountryName = loc.CountryName
			e.City = loc.City
			e.Region = loc.Region
		}

		if err := h.Events.Insert(ctx, e); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"session_id": e.SessionID,
				"event_type": e.EventType,
			}).Error("failed to insert event")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record analytics events"})
			return
		}

		h.firePixels(e, landingURL)
	}

	c.Status(http.StatusOK)
}

// decodeEvents accepts a JSON array of events or one bare event object.
func decodeEvents(body []byte) ([]models.FunnelEvent, error) {
	var batch []models.FunnelEvent
	if err := json.Unmarshal(body, &batch); err != nil {
		var single models.FunnelEvent
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, err
		}
		batch = []models.FunnelEvent{single}
	}
	for i := range batch {
		if batch[i].SessionID == "" || batch[i].EventType == "" {
			return nil, fmt.Errorf("event %d is missing session_id or event_type", i)
		}
	}
	return batch, nil
}

// firePixels reports conversions; the dispatcher applies the paid-traffic
// gate and the once-per-session guard.
func (h *TrackHandlers) firePixels(e *models.FunnelEvent, landingURL string) {
	if h.Pixels == nil {
		return
	}
	switch e.EventType {
	case models.EventOfferClick:
		params := map[string]any{}
		if p, ok := e.Payload().(*models.OfferClickPayload); ok && p.OfferType != "" {
			params["offer_type"] = p.OfferType
		}
		h.Pixels.Fire(e.SessionID, landingURL, pixel.EventInitiateCheckout, params)
	case "purchase":
		h.Pixels.Fire(e.SessionID, landingURL, pixel.EventPurchase, nil)
	}
}

type PingRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// Heartbeat updates last_ping for a session. Fire-and-forget semantics:
// failures are logged and the page is not told, there is nothing it could
// do and the next ping is the retry.
func (h *TrackHandlers) Heartbeat(c *gin.Context) {
	var req PingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.Events.UpdatePing(ctx, req.SessionID, time.Now().UTC()); err != nil {
		log.WithError(err).WithField("session_id", req.SessionID).Warn("failed to update ping")
	}

	c.Status(http.StatusAccepted)
}

// ClearEvents wipes the event table (admin-only).
func (h *TrackHandlers) ClearEvents(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if err := h.Events.DeleteAll(ctx); err != nil {
		log.WithError(err).Error("failed to clear events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear analytics data"})
		return
	}

	log.Warn("all analytics data cleared")
	c.JSON(http.StatusOK, gin.H{"message": "All analytics data cleared"})
}
