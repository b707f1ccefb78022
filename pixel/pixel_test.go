package pixel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPaidTraffic(t *testing.T) {
	tests := []struct {
		name string
		url  string
		paid bool
	}{
		{"facebook click id", "https://shop.example.com/?fbclid=abc123", true},
		{"google click id", "https://shop.example.com/?gclid=xyz", true},
		{"tiktok click id", "https://shop.example.com/?ttclid=tt1", true},
		{"cpc medium", "https://shop.example.com/?utm_source=google&utm_medium=cpc", true},
		{"ppc medium", "https://shop.example.com/?utm_medium=ppc", true},
		{"paid medium", "https://shop.example.com/?utm_medium=paid", true},
		{"paid social medium", "https://shop.example.com/?utm_medium=paid-social", true},
		{"facebook paid combo", "https://shop.example.com/?utm_source=facebook&utm_medium=paid", true},
		{"organic social", "https://shop.example.com/?utm_source=facebook&utm_medium=social", false},
		{"email", "https://shop.example.com/?utm_medium=email", false},
		{"no params", "https://shop.example.com/", false},
		{"empty url", "", false},
		{"unparseable url", "://not-a-url", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.paid, IsPaidTraffic(tt.url))
		})
	}
}

func TestTrackingState_MarkOnce(t *testing.T) {
	state := NewTrackingState()

	assert.True(t, state.MarkOnce("s1", EventInitiateCheckout))
	assert.False(t, state.MarkOnce("s1", EventInitiateCheckout))

	// Different event or session is a fresh pair.
	assert.True(t, state.MarkOnce("s1", EventPurchase))
	assert.True(t, state.MarkOnce("s2", EventInitiateCheckout))
}

// fakeSink records deliveries for dispatcher tests.
type fakeSink struct {
	delivered chan Event
}

func newFakeSink() *fakeSink {
	return &fakeSink{delivered: make(chan Event, 8)}
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Send(ctx context.Context, ev Event) error {
	f.delivered <- ev
	return nil
}

func waitForEvent(t *testing.T, sink *fakeSink) Event {
	t.Helper()
	select {
	case ev := <-sink.delivered:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no pixel event delivered")
		return Event{}
	}
}

func TestDispatcher_FiresOncePerSession(t *testing.T) {
	sink := newFakeSink()
	d := NewDispatcher([]Sink{sink}, NewTrackingState(), nil)

	paidURL := "https://shop.example.com/?fbclid=abc"

	require.True(t, d.Fire("s1", paidURL, EventInitiateCheckout, map[string]any{"offer_type": "3-bottle"}))
	ev := waitForEvent(t, sink)
	assert.Equal(t, EventInitiateCheckout, ev.Name)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, "3-bottle", ev.Params["offer_type"])

	// Second fire for the same session+event is suppressed.
	assert.False(t, d.Fire("s1", paidURL, EventInitiateCheckout, nil))

	// A different event for the same session still goes out.
	require.True(t, d.Fire("s1", paidURL, EventPurchase, nil))
	assert.Equal(t, EventPurchase, waitForEvent(t, sink).Name)
}

func TestDispatcher_OrganicTrafficSkipped(t *testing.T) {
	sink := newFakeSink()
	d := NewDispatcher([]Sink{sink}, NewTrackingState(), nil)

	assert.False(t, d.Fire("s1", "https://shop.example.com/?utm_medium=email", EventPurchase, nil))
	assert.Empty(t, sink.delivered)
}

func TestDispatcher_NoSinks(t *testing.T) {
	d := NewDispatcher(nil, NewTrackingState(), nil)
	assert.False(t, d.Fire("s1", "https://shop.example.com/?fbclid=a", EventPurchase, nil))
}
