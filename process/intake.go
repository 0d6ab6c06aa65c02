package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"aftersales/auth"
)

// ReferenceChecker validates branch and vendor foreign keys at intake. The
// catalogs themselves are reference data owned elsewhere.
type ReferenceChecker interface {
	BranchExists(ctx context.Context, id string) (bool, error)
	VendorExists(ctx context.Context, id string) (bool, error)
}

// CreateParams carries the intake form for a new warranty or return.
type CreateParams struct {
	Kind     Kind
	BranchID string
	VendorID string
	Product  ProductInfo
	// Customer contact is appended to the product description at intake;
	// the engine has no customer entity of its own.
	CustomerName  string
	CustomerPhone string
}

// ListFilters narrows and pages the process listing.
type ListFilters struct {
	BranchID string
	Kind     Kind
	State    State
	Page     int
	PageSize int
}

// IntakeService creates and reads process records. All mutation beyond
// creation goes through the Engine.
type IntakeService struct {
	pool *pgxpool.Pool
	refs ReferenceChecker
	log  *zap.Logger
}

func NewIntakeService(pool *pgxpool.Pool, refs ReferenceChecker, log *zap.Logger) *IntakeService {
	if log == nil {
		log = zap.NewNop()
	}
	return &IntakeService{pool: pool, refs: refs, log: log}
}

// Create registers a new process record in state created. Branch and
// vendor references are validated against the reference catalogs; the
// intake actor is stamped and a creation event plus outbox notification are
// written in the same transaction as the insert.
func (s *IntakeService) Create(ctx context.Context, actor auth.Identity, params CreateParams) (Record, error) {
	if !params.Kind.IsValid() {
		return Record{}, fmt.Errorf("unknown kind %q: %w", params.Kind, ErrInvalidInput)
	}
	if params.BranchID == "" || params.VendorID == "" {
		return Record{}, fmt.Errorf("branch and vendor ids required: %w", ErrInvalidInput)
	}
	if strings.TrimSpace(params.Product.Name) == "" || strings.TrimSpace(params.Product.SKU) == "" {
		return Record{}, fmt.Errorf("product name and sku required: %w", ErrInvalidInput)
	}
	if params.Product.InvoiceValue < 0 {
		return Record{}, fmt.Errorf("invalid invoice value: %w", ErrInvalidInput)
	}

	if ok, err := s.refs.BranchExists(ctx, params.BranchID); err != nil {
		return Record{}, fmt.Errorf("process: check branch: %w", err)
	} else if !ok {
		return Record{}, fmt.Errorf("branch %s does not exist: %w", params.BranchID, ErrInvalidInput)
	}
	if ok, err := s.refs.VendorExists(ctx, params.VendorID); err != nil {
		return Record{}, fmt.Errorf("process: check vendor: %w", err)
	} else if !ok {
		return Record{}, fmt.Errorf("vendor %s does not exist: %w", params.VendorID, ErrInvalidInput)
	}

	product := params.Product
	if params.CustomerName != "" || params.CustomerPhone != "" {
		product.Description = fmt.Sprintf("%s\n[Customer: %s - Tel: %s]",
			product.Description, params.CustomerName, params.CustomerPhone)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("process: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	id := uuid.NewString()
	const insertSQL = `
        INSERT INTO processes (id, kind, state, branch_id, vendor_id,
            product_name, product_sku, invoice_number, invoice_value, description,
            actor_stamps)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::jsonb)
        RETURNING` + recordColumns + `
    `
	stamps, err := json.Marshal(map[string]string{StampIntake: actor.ActorID})
	if err != nil {
		return Record{}, fmt.Errorf("process: marshal actor stamps: %w", err)
	}
	rec, err := scanRecord(tx.QueryRow(ctx, insertSQL,
		id, params.Kind, StateCreated, params.BranchID, params.VendorID,
		product.Name, product.SKU, product.InvoiceNumber, product.InvoiceValue, product.Description,
		stamps,
	))
	if err != nil {
		return Record{}, fmt.Errorf("process: insert: %w", err)
	}

	repo := NewRepository()
	eventPayload := map[string]any{
		"kind":      string(rec.Kind),
		"branch_id": rec.BranchID,
		"vendor_id": rec.VendorID,
		"sku":       rec.Product.SKU,
	}
	if err := repo.AppendEvent(ctx, tx, rec.ID, EventProcessCreated, actor.ActorID, eventPayload); err != nil {
		return Record{}, err
	}

	outboxPayload := map[string]any{
		"event_id":   uuid.NewString(),
		"process_id": rec.ID,
		"kind":       string(rec.Kind),
		"branch_id":  rec.BranchID,
	}
	if err := repo.EnqueueOutbox(ctx, tx, TopicProcessCreated, outboxPayload); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("process: commit: %w", err)
	}

	s.log.Info("process created",
		zap.String("process_id", rec.ID),
		zap.String("kind", string(rec.Kind)),
		zap.String("branch_id", rec.BranchID),
	)
	return rec, nil
}

// GetByID loads a single record. Cashiers only see their own branch; a
// scoped miss surfaces as ErrNotFound, not a permission error.
func (s *IntakeService) GetByID(ctx context.Context, actor auth.Identity, id string) (Record, error) {
	scope, err := branchScopeFor(actor)
	if err != nil {
		return Record{}, err
	}

	query := `SELECT` + recordColumns + ` FROM processes WHERE id = $1`
	args := []any{id}
	if scope != "" {
		query += ` AND branch_id = $2`
		args = append(args, scope)
	}

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("process: get by id: %w", err)
	}
	return rec, nil
}

// List pages through process records newest first.
func (s *IntakeService) List(ctx context.Context, actor auth.Identity, filters ListFilters) ([]Record, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}
	scope, err := branchScopeFor(actor)
	if err != nil {
		return nil, 0, err
	}
	if scope != "" {
		filters.BranchID = scope
	}

	where := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filters.BranchID != "" {
		where = append(where, "branch_id = "+arg(filters.BranchID))
	}
	if filters.Kind != "" {
		where = append(where, "kind = "+arg(filters.Kind))
	}
	if filters.State != "" {
		where = append(where, "state = "+arg(filters.State))
	}
	cond := strings.Join(where, " AND ")

	query := `SELECT` + recordColumns + `
        FROM processes
        WHERE ` + cond + `
        ORDER BY created_at DESC
        LIMIT ` + arg(filters.PageSize) + ` OFFSET ` + arg((filters.Page-1)*filters.PageSize)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("process: list: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("process: scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("process: iterate records: %w", err)
	}

	countArgs := args[:len(args)-2]
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM processes WHERE `+cond, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("process: count: %w", err)
	}

	return records, total, nil
}
