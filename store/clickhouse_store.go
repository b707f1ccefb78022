// api/store/clickhouse_store.go
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"vsltrack/api/database"
	"vsltrack/api/models"
)

// ClickHouseEventStore is the high-volume backend for the vsl_analytics
// table. Same contract as the Postgres store; selected with
// EVENT_BACKEND=clickhouse.
type ClickHouseEventStore struct {
	DB *database.ClickHouseClient
}

func NewClickHouseEventStore(chClient *database.ClickHouseClient) *ClickHouseEventStore {
	return &ClickHouseEventStore{DB: chClient}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s *ClickHouseEventStore) Query(ctx context.Context, f EventFilter) ([]models.FunnelEvent, error) {
	var conds []string
	var args []interface{}

	if len(f.EventTypes) > 0 {
		conds = append(conds, fmt.Sprintf("event_type IN (%s)", placeholders(len(f.EventTypes))))
		for _, t := range f.EventTypes {
			args = append(args, t)
		}
	}
	if len(f.ExcludeCountryCodes) > 0 {
		conds = append(conds, fmt.Sprintf("country_code NOT IN (%s)", placeholders(len(f.ExcludeCountryCodes))))
		for _, c := range f.ExcludeCountryCodes {
			args = append(args, c)
		}
	}
	if len(f.ExcludeCountryNames) > 0 {
		conds = append(conds, fmt.Sprintf("country_name NOT IN (%s)", placeholders(len(f.ExcludeCountryNames))))
		for _, c := range f.ExcludeCountryNames {
			args = append(args, c)
		}
	}
	if f.CreatedAfter != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, *f.CreatedBefore)
	}
	if f.PingAfter != nil {
		conds = append(conds, "last_ping >= ?")
		args = append(args, *f.PingAfter)
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
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.FunnelEvent
	for rows.Next() {
		var (
			e         models.FunnelEvent
			eventData string
			lastPing  *time.Time
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &eventData, &e.CreatedAt,
			&lastPing, &e.CountryCode, &e.CountryName, &e.City, &e.Region, &e.IP); err != nil {
			log.WithError(err).Error("error scanning event row")
			continue
		}
		if eventData != "" {
			e.EventData = []byte(eventData)
		}
		e.LastPing = lastPing
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event query: %w", err)
	}

	return events, nil
}

func (s *ClickHouseEventStore) Insert(ctx context.Context, e *models.FunnelEvent) error {
	batch, err := s.DB.Conn.PrepareBatch(ctx, fmt.Sprintf(`
		INSERT INTO vsl_analytics (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, eventColumns))
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	if err := batch.Append(
		e.ID,
		e.SessionID,
		e.EventType,
		string(e.EventData),
		e.CreatedAt,
		e.LastPing,
		e.CountryCode,
		e.CountryName,
		e.City,
		e.Region,
		e.IP,
	); err != nil {
		return fmt.Errorf("failed to append event to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// UpdatePing is an async mutation on ClickHouse; heartbeat callers treat it
// as fire-and-forget so the delay is acceptable.
func (s *ClickHouseEventStore) UpdatePing(ctx context.Context, sessionID string, ts time.Time) error {
	err := s.DB.Conn.Exec(ctx,
		`ALTER TABLE vsl_analytics UPDATE last_ping = ? WHERE session_id = ?`, ts, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update ping for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *ClickHouseEventStore) DeleteAll(ctx context.Context) error {
	if err := s.DB.Conn.Exec(ctx, `TRUNCATE TABLE vsl_analytics`); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}
	return nil
}
