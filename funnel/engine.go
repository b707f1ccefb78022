// api/funnel/engine.go
package funnel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"vsltrack/api/models"
	"vsltrack/api/store"
)

// EngineConfig carries the knobs the engine needs; main fills it from the
// service config.
type EngineConfig struct {
	PollInterval         time.Duration
	LiveWindow           time.Duration
	ExcludedCountryCodes []string
	ExcludedCountryNames []string
	Location             *time.Location
}

// Engine runs the fetch-then-aggregate pipeline on a timer and on demand and
// publishes the latest snapshot. Each pass is tagged with a generation
// number; a pass that finishes after a newer one has published is dropped,
// so slow fetches never overwrite fresh results.
type Engine struct {
	store store.EventStore
	cfg   EngineConfig
	log   *logrus.Entry

	// test seam
	now func() time.Time

	generation atomic.Uint64

	mu        sync.RWMutex
	published uint64
	stats     models.DashboardStats
	live      []models.LiveSession
	summaries []models.SessionSummary

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewEngine(st store.EventStore, cfg EngineConfig, logger *logrus.Logger) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.LiveWindow <= 0 {
		cfg.LiveWindow = DefaultLiveWindow
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		store: st,
		cfg:   cfg,
		log:   logger.WithField("component", "funnel-engine"),
		now:   time.Now,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the poll loop. The first pass runs immediately so the
// dashboard has data before the first tick.
func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	if err := e.Refresh(ctx); err != nil {
		e.log.WithError(err).Warn("initial aggregation pass failed")
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			if err := e.Refresh(ctx); err != nil {
				e.log.WithError(err).Warn("aggregation pass failed")
			}
		}
	}
}

// Stop halts the poll loop and waits for it to exit. Idempotent; safe to
// call even if Start never ran (the loop goroutine is the only writer of
// done, so we only wait when one exists).
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stop)
	})
	select {
	case <-e.done:
	case <-time.After(time.Second):
	}
}

// Refresh runs one full fetch-then-aggregate pass. Store failures publish a
// zero-value disconnected snapshot (the dashboard shows its banner) and
// return the error.
func (e *Engine) Refresh(ctx context.Context) error {
	gen := e.generation.Add(1)
	now := e.now()

	events, err := e.store.Query(ctx, store.EventFilter{
		ExcludeCountryCodes: e.cfg.ExcludedCountryCodes,
		ExcludeCountryNames: e.cfg.ExcludedCountryNames,
		OrderBy:             store.OrderCreatedAt,
	})
	if err != nil {
		e.log.WithError(err).Error("event store query failed")
		e.publish(gen, models.DashboardStats{
			OfferClickRates: map[string]float64{},
			UpsellStats:     map[string]models.UpsellStat{},
			Connected:       false,
			GeneratedAt:     now,
		}, nil, nil)
		return err
	}

	// Guard for backends whose filter could not express the exclusion.
	events = e.excludeOrigins(events)

	groups := GroupBySession(events)

	liveSet := make(map[string]bool)
	live := LiveSessions(groups, now, e.cfg.LiveWindow)
	for _, l := range live {
		liveSet[l.SessionID] = true
	}

	summaries := make([]models.SessionSummary, 0, groups.Len())
	for _, id := range groups.SessionIDs() {
		s := Classify(id, groups.Events(id), now)
		s.Live = liveSet[id]
		summaries = append(summaries, s)
	}

	stats := Aggregate(summaries, events, e.cfg.Location, now)
	e.publish(gen, stats, live, summaries)

	e.log.WithFields(logrus.Fields{
		"generation": gen,
		"events":     len(events),
		"sessions":   stats.TotalSessions,
		"live":       stats.LiveSessions,
	}).Debug("aggregation pass complete")
	return nil
}

// publish installs a pass's results unless a newer generation already did.
func (e *Engine) publish(gen uint64, stats models.DashboardStats, live []models.LiveSession, summaries []models.SessionSummary) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen < e.published {
		e.log.WithField("generation", gen).Debug("dropping stale aggregation result")
		return
	}
	e.published = gen
	e.stats = stats
	e.live = live
	e.summaries = summaries
}

func (e *Engine) excludeOrigins(events []models.FunnelEvent) []models.FunnelEvent {
	if len(e.cfg.ExcludedCountryCodes) == 0 && len(e.cfg.ExcludedCountryNames) == 0 {
		return events
	}
	out := events[:0]
	for _, ev := range events {
		if containsString(e.cfg.ExcludedCountryCodes, ev.CountryCode) ||
			containsString(e.cfg.ExcludedCountryNames, ev.CountryName) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Snapshot returns the last published dashboard statistics.
func (e *Engine) Snapshot() models.DashboardStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// Live returns the last published live-session view.
func (e *Engine) Live() []models.LiveSession {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.live
}

// Sessions returns the last published per-session summaries.
func (e *Engine) Sessions() []models.SessionSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.summaries
}
