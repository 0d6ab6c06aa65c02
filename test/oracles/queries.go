package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the cross-record invariants that must hold at any instant,
// no matter how many actors are racing. Each query selects violations; an
// empty result means the invariant holds.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_known_states_only",
			SQL: `SELECT id, kind, state FROM processes
                  WHERE state NOT IN ('created','folio_assignment','vendor_handover_pending',
                                      'with_vendor','pending_approval','ready_for_customer_pickup',
                                      'final_closure_review','closed')`,
		},
		{
			Name: "O2_closed_records_are_stamped",
			SQL: `SELECT id FROM processes
                  WHERE state = 'closed'
                    AND (closed_at IS NULL OR NOT actor_stamps ? 'closed')`,
		},
		{
			Name: "O3_trail_seq_monotonic",
			SQL: `WITH seqs AS (
                      SELECT process_id, seq,
                             LAG(seq) OVER (PARTITION BY process_id ORDER BY seq) AS prev
                      FROM process_events)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND seq <= prev`,
		},
		{
			Name: "O4_review_states_carry_resolution",
			SQL: `SELECT id, kind, state FROM processes
                  WHERE state IN ('pending_approval','ready_for_customer_pickup')
                    AND resolution_kind IS NULL`,
		},
		{
			Name: "O5_return_rework_has_no_resolution",
			SQL: `SELECT id FROM processes
                  WHERE kind = 'return' AND state = 'with_vendor'
                    AND resolution_kind IS NOT NULL`,
		},
		{
			Name: "O6_repair_is_warranty_only",
			SQL:  `SELECT id FROM processes WHERE kind = 'return' AND resolution_kind = 'repair'`,
		},
		{
			Name: "O7_folio_present_past_assignment",
			SQL: `SELECT id, state FROM processes
                  WHERE state IN ('vendor_handover_pending','with_vendor','pending_approval',
                                  'ready_for_customer_pickup','final_closure_review','closed')
                    AND folio IS NULL`,
		},
		{
			Name: "O8_outbox_status_domain",
			SQL:  `SELECT id, status FROM outbox WHERE status NOT IN ('pending','processing','processed','dead')`,
		},
		{
			Name: "O9_process_delete_guard",
			SQL: `SELECT 'missing_no_delete_trigger' AS detail
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname = 'processes_no_delete')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample
// row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
