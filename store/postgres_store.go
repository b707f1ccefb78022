// api/store/postgres_store.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"vsltrack/api/models"
)

// PostgresEventStore reads and writes the vsl_analytics table over
// database/sql + lib/pq.
type PostgresEventStore struct {
	db *sql.DB
}

func NewPostgresEventStore(db *sql.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

const eventColumns = `id, session_id, event_type, event_data, created_at, last_ping, country_code, country_name, city, region, ip`

// buildEventQuery assembles the SELECT for a filter. Kept separate from
// Query so the SQL assembly is testable without a database.
func buildEventQuery(f EventFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.EventTypes) > 0 {
		conds = append(conds, fmt.Sprintf("event_type = ANY(%s)", arg(pq.Array(f.EventTypes))))
	}
	if len(f.ExcludeCountryCodes) > 0 {
		conds = append(conds, fmt.Sprintf("COALESCE(country_code, '') <> ALL(%s)", arg(pq.Array(f.ExcludeCountryCodes))))
	}
	if len(f.ExcludeCountryNames) > 0 {
		conds = append(conds, fmt.Sprintf("COALESCE(country_name, '') <> ALL(%s)", arg(pq.Array(f.ExcludeCountryNames))))
	}
	if f.CreatedAfter != nil {
		conds = append(conds, fmt.Sprintf("created_at >= %s", arg(*f.CreatedAfter)))
	}
	if f.CreatedBefore != nil {
		conds = append(conds, fmt.Sprintf("created_at <= %s", arg(*f.CreatedBefore)))
	}
	if f.PingAfter != nil {
		conds = append(conds, fmt.Sprintf("last_ping >= %s", arg(*f.PingAfter)))
	}

	query := fmt.Sprintf("SELECT %s FROM vsl_analytics", eventColumns)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	orderBy := f.OrderBy
	if !isOrderColumn(orderBy) {
		orderBy = OrderCreatedAt
	}
	direction := "ASC"
	if f.Descending {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", orderBy, direction)

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %s", arg(f.Limit))
	}

	return query, args
}

func (s *PostgresEventStore) Query(ctx context.Context, f EventFilter) ([]models.FunnelEvent, error) {
	query, args := buildEventQuery(f)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.FunnelEvent
	for rows.Next() {
		var (
			e         models.FunnelEvent
			eventData []byte
			lastPing  sql.NullTime
			cc, cn    sql.NullString
			city      sql.NullString
			region    sql.NullString
			ip        sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &eventData, &e.CreatedAt,
			&lastPing, &cc, &cn, &city, &region, &ip); err != nil {
			log.WithError(err).Error("error scanning event row")
			continue
		}
		e.EventData = eventData
		if lastPing.Valid {
			t := lastPing.Time
			e.LastPing = &t
		}
		e.CountryCode = cc.String
		e.CountryName = cn.String
		e.City = city.String
		e.Region = region.String
		e.IP = ip.String
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event query: %w", err)
	}

	return events, nil
}

func (s *PostgresEventStore) Insert(ctx context.Context, e *models.FunnelEvent) error {
	query := fmt.Sprintf(`
		INSERT INTO vsl_analytics (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, eventColumns)

	var eventData interface{}
	if len(e.EventData) > 0 {
		eventData = []byte(e.EventData)
	}

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.SessionID, e.EventType, eventData, e.CreatedAt, e.LastPing,
		e.CountryCode, e.CountryName, e.City, e.Region, e.IP,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) UpdatePing(ctx context.Context, sessionID string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vsl_analytics SET last_ping = $1 WHERE session_id = $2`, ts, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update ping for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *PostgresEventStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vsl_analytics`); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}
	return nil
}
