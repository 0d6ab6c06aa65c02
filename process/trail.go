package process

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TrailService reads the immutable audit trail of a process record.
type TrailService struct {
	pool *pgxpool.Pool
}

func NewTrailService(pool *pgxpool.Pool) *TrailService {
	return &TrailService{pool: pool}
}

// Events returns the trail for one process in append order.
func (s *TrailService) Events(ctx context.Context, processID string) ([]Event, error) {
	const query = `
		SELECT id, process_id, seq, type, actor_id, created_at, payload
		FROM process_events
		WHERE process_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, processID)
	if err != nil {
		return nil, fmt.Errorf("process: list events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, 8)
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.ProcessID, &ev.Seq, &ev.Type, &ev.ActorID, &ev.CreatedAt, &ev.Payload); err != nil {
			return nil, fmt.Errorf("process: scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("process: iterate events: %w", err)
	}
	return events, nil
}
