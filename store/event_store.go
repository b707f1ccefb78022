// api/store/event_store.go
package store

import (
	"context"
	"time"

	"vsltrack/api/models"
)

// Columns the external store contract allows ordering by.
const (
	OrderCreatedAt = "created_at"
	OrderLastPing  = "last_ping"
)

func isOrderColumn(col string) bool {
	switch col {
	case OrderCreatedAt, OrderLastPing:
		return true
	default:
		return false
	}
}

// EventFilter describes one query against the vsl_analytics table. Zero
// value means "select everything in insertion order".
type EventFilter struct {
	EventTypes []string

	// Excluded origins (reporting policy; rows stay in the store).
	ExcludeCountryCodes []string
	ExcludeCountryNames []string

	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	PingAfter     *time.Time

	OrderBy    string // OrderCreatedAt or OrderLastPing; "" = created_at
	Descending bool
	Limit      int
}

// EventStore is the contract against the hosted event table. Implementations
// exist for Postgres and ClickHouse.
type EventStore interface {
	Query(ctx context.Context, f EventFilter) ([]models.FunnelEvent, error)
	Insert(ctx context.Context, e *models.FunnelEvent) error

	// UpdatePing stamps last_ping on every row of the session; the schema is
	// denormalized so heartbeats touch the whole session.
	UpdatePing(ctx context.Context, sessionID string, ts time.Time) error

	DeleteAll(ctx context.Context) error
}
