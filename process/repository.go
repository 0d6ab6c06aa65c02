package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// Repository is the pgx-backed implementation of the engine's and intake
// service's data access. It holds no state; every method runs inside the
// caller's transaction so the precondition check and the write commit
// together.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

const recordColumns = `
	id, kind, state, branch_id, vendor_id,
	product_name, product_sku, invoice_number, invoice_value, description,
	folio, seller_name, seller_phone, pickup_date, pickup_ticket, evidence_url,
	resolution_kind, resolution_data, customer_delivery_date, actor_stamps,
	created_at, updated_at, handed_over_at, resolved_at, delivered_at, closed_at`

// GetForUpdate loads a record under a row lock. A non-empty branchScope
// restricts the lookup to that branch; a scoped miss is indistinguishable
// from a missing id.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id, branchScope string) (Record, error) {
	if id == "" {
		return Record{}, fmt.Errorf("process: empty process id")
	}

	query := `SELECT` + recordColumns + ` FROM processes WHERE id = $1`
	args := []any{id}
	if branchScope != "" {
		query += ` AND branch_id = $2`
		args = append(args, branchScope)
	}
	query += ` FOR UPDATE`

	rec, err := scanRecord(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("process: load record: %w", err)
	}
	return rec, nil
}

// ApplyTransition performs the compare-and-swap state write. The WHERE
// clause re-checks the expected state so a stale caller cannot overwrite a
// concurrent transition; zero affected rows means the race was lost.
func (r *Repository) ApplyTransition(ctx context.Context, tx pgx.Tx, id string, expected State, patch TransitionPatch) error {
	sets := []string{"state = $3", "updated_at = now()"}
	args := []any{id, expected, patch.To}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Folio != nil {
		sets = append(sets, "folio = "+arg(*patch.Folio))
	}
	if h := patch.Handover; h != nil {
		sets = append(sets,
			"seller_name = "+arg(h.SellerName),
			"seller_phone = "+arg(h.SellerPhone),
			"pickup_date = "+arg(h.PickupDate),
			"pickup_ticket = "+arg(h.PickupTicket),
		)
		if h.EvidenceURL != nil {
			sets = append(sets, "evidence_url = "+arg(*h.EvidenceURL))
		}
	}
	if patch.ResolutionKind != nil {
		sets = append(sets,
			"resolution_kind = "+arg(string(*patch.ResolutionKind)),
			"resolution_data = "+arg(patch.ResolutionData)+"::jsonb",
		)
	}
	if patch.ClearResolution {
		sets = append(sets, "resolution_kind = NULL", "resolution_data = NULL", "resolved_at = NULL")
	}
	if patch.CustomerDeliveryDate != nil {
		sets = append(sets, "customer_delivery_date = "+arg(*patch.CustomerDeliveryDate))
	}
	if patch.HandedOverAt != nil {
		sets = append(sets, "handed_over_at = "+arg(*patch.HandedOverAt))
	}
	if patch.ResolvedAt != nil {
		sets = append(sets, "resolved_at = "+arg(*patch.ResolvedAt))
	}
	if patch.DeliveredAt != nil {
		sets = append(sets, "delivered_at = "+arg(*patch.DeliveredAt))
	}
	if patch.ClosedAt != nil {
		sets = append(sets, "closed_at = "+arg(*patch.ClosedAt))
	}

	stampExpr := "COALESCE(actor_stamps, '{}'::jsonb)"
	if len(patch.Stamps) > 0 {
		stamps, err := json.Marshal(patch.Stamps)
		if err != nil {
			return fmt.Errorf("process: marshal actor stamps: %w", err)
		}
		stampExpr += " || " + arg(stamps) + "::jsonb"
	}
	for _, key := range patch.ClearStamps {
		stampExpr += " - " + arg(key) + "::text"
	}
	sets = append(sets, "actor_stamps = "+stampExpr)

	query := fmt.Sprintf(`UPDATE processes SET %s WHERE id = $1 AND state = $2`, strings.Join(sets, ", "))
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("process: apply transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// AppendEvent adds one immutable entry to the process audit trail. The seq
// column is assigned per process so the trail orders deterministically even
// within a single transaction timestamp.
func (r *Repository) AppendEvent(ctx context.Context, tx pgx.Tx, processID, eventType, actorID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("process: marshal event payload: %w", err)
	}

	var actor any
	if actorID != "" {
		actor = actorID
	}

	const q = `
INSERT INTO process_events (process_id, seq, type, payload, actor_id)
VALUES ($1, (SELECT COALESCE(MAX(seq),0)+1 FROM process_events WHERE process_id = $1), $2, $3::jsonb, $4)
`
	if _, err := tx.Exec(ctx, q, processID, eventType, body, actor); err != nil {
		return fmt.Errorf("process: insert event: %w", err)
	}
	return nil
}

// EnqueueOutbox records a fire-and-forget notification for the dispatcher.
func (r *Repository) EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("process: marshal outbox payload: %w", err)
	}
	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("process: enqueue outbox: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec            Record
		sellerName     *string
		sellerPhone    *string
		pickupDate     *time.Time
		pickupTicket   *string
		evidenceURL    *string
		resolutionKind *string
		resolutionData []byte
		stamps         []byte
	)
	err := row.Scan(
		&rec.ID, &rec.Kind, &rec.State, &rec.BranchID, &rec.VendorID,
		&rec.Product.Name, &rec.Product.SKU, &rec.Product.InvoiceNumber, &rec.Product.InvoiceValue, &rec.Product.Description,
		&rec.Folio, &sellerName, &sellerPhone, &pickupDate, &pickupTicket, &evidenceURL,
		&resolutionKind, &resolutionData, &rec.CustomerDeliveryDate, &stamps,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.HandedOverAt, &rec.ResolvedAt, &rec.DeliveredAt, &rec.ClosedAt,
	)
	if err != nil {
		return Record{}, err
	}

	if sellerName != nil {
		h := &VendorHandover{
			SellerName:  *sellerName,
			EvidenceURL: evidenceURL,
		}
		if sellerPhone != nil {
			h.SellerPhone = *sellerPhone
		}
		if pickupDate != nil {
			h.PickupDate = *pickupDate
		}
		if pickupTicket != nil {
			h.PickupTicket = *pickupTicket
		}
		rec.Handover = h
	}
	if resolutionKind != nil {
		k := ResolutionKind(*resolutionKind)
		rec.ResolutionKind = &k
		rec.ResolutionData = resolutionData
	}
	if len(stamps) > 0 {
		if err := json.Unmarshal(stamps, &rec.ActorStamps); err != nil {
			return Record{}, fmt.Errorf("process: decode actor stamps: %w", err)
		}
	}
	return rec, nil
}
