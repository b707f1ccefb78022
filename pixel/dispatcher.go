package pixel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Standard conversion event names.
const (
	EventInitiateCheckout = "InitiateCheckout"
	EventPurchase         = "Purchase"
)

// Event is one conversion report sent to every sink.
type Event struct {
	Name      string         `json:"event"`
	SessionID string         `json:"session_id"`
	Params    map[string]any `json:"params,omitempty"`
}

// Sink delivers a conversion event to one external analytics endpoint.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// HTTPSink posts events as JSON to a webhook-style endpoint.
type HTTPSink struct {
	name     string
	endpoint string
	client   *http.Client
}

func NewHTTPSink(name, endpoint string) *HTTPSink {
	return &HTTPSink{
		name:     name,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *HTTPSink) Name() string { return s.name }

func (s *HTTPSink) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal pixel event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sink returned status %d", resp.StatusCode)
	}
	return nil
}

// Dispatcher fans conversion events out to the configured sinks. Events
// fire at most once per session per event name, only for paid traffic, and
// failures are logged, never propagated.
type Dispatcher struct {
	sinks []Sink
	state *TrackingState
	log   *logrus.Entry
}

func NewDispatcher(sinks []Sink, state *TrackingState, logger *logrus.Logger) *Dispatcher {
	if state == nil {
		state = NewTrackingState()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		sinks: sinks,
		state: state,
		log:   logger.WithField("component", "pixel-dispatcher"),
	}
}

// Fire reports an event when the landing URL classifies as paid traffic and
// the session has not reported this event yet. Delivery happens in the
// background; Fire returns immediately with whether a dispatch was started.
func (d *Dispatcher) Fire(sessionID, landingURL, eventName string, params map[string]any) bool {
	if len(d.sinks) == 0 {
		return false
	}
	if !IsPaidTraffic(landingURL) {
		return false
	}
	if !d.state.MarkOnce(sessionID, eventName) {
		return false
	}

	ev := Event{Name: eventName, SessionID: sessionID, Params: params}
	for _, sink := range d.sinks {
		go func(s Sink) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.Send(ctx, ev); err != nil {
				d.log.WithError(err).WithFields(logrus.Fields{
					"sink":  s.Name(),
					"event": eventName,
				}).Warn("pixel dispatch failed")
			}
		}(sink)
	}
	return true
}
