package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"aftersales/auth"
)

// TestEngine_Integration connects to a real PostgreSQL via DATABASE_URL and
// drives one warranty through its whole lifecycle against the pgx-backed
// repository, then verifies the trail, the outbox and the delete guard.
func TestEngine_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	for _, table := range []string{"processes", "process_events", "outbox", "branches", "vendors"} {
		if !tableExists(ctx, t, pool, table) {
			t.Skipf("table %s missing; apply migrations first", table)
		}
	}

	suffix := time.Now().UnixNano()
	branchID := fmt.Sprintf("branch-it-%d", suffix)
	vendorID := fmt.Sprintf("vendor-it-%d", suffix)

	if _, err := pool.Exec(ctx, `INSERT INTO branches (id, name) VALUES ($1, $2)`, branchID, "Integration Branch"); err != nil {
		t.Fatalf("seed branch: %v", err)
	}
	if _, err := pool.Exec(ctx, `INSERT INTO vendors (id, name) VALUES ($1, $2)`, vendorID, "Integration Vendor"); err != nil {
		t.Fatalf("seed vendor: %v", err)
	}

	cashier := auth.Identity{ActorID: "it-cashier", Role: auth.RoleCashier, BranchID: branchID}
	admin := auth.Identity{ActorID: "it-admin", Role: auth.RoleAdministrator}

	refs := &fakeRefs{
		branches: map[string]bool{branchID: true},
		vendors:  map[string]bool{vendorID: true},
	}
	intake := NewIntakeService(pool, refs, nil)
	engine := NewEngine(pool, nil, nil)

	rec, err := intake.Create(ctx, cashier, CreateParams{
		Kind:     KindWarranty,
		BranchID: branchID,
		VendorID: vendorID,
		Product: ProductInfo{
			Name:         "Blender X200",
			SKU:          "BLX-200",
			InvoiceValue: 1299.90,
			Description:  "does not power on",
		},
		CustomerName:  "Ana Torres",
		CustomerPhone: "555-0133",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.State != StateCreated {
		t.Fatalf("expected created, got %s", rec.State)
	}
	if rec.ActorStamps[StampIntake] != "it-cashier" {
		t.Fatalf("expected intake stamp, got %+v", rec.ActorStamps)
	}

	steps := []struct {
		actor auth.Identity
		req   TransitionRequest
	}{
		{cashier, TransitionRequest{To: StateFolioAssignment}},
		{admin, TransitionRequest{To: StateVendorHandoverPending, Folio: fmt.Sprintf("F-IT-%d", suffix)}},
		{cashier, TransitionRequest{To: StateWithVendor, Handover: &VendorHandover{
			SellerName:  "Luis Ortega",
			SellerPhone: "555-0142",
			PickupDate:  time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		}}},
		{cashier, TransitionRequest{To: StatePendingApproval, Resolution: &ResolutionInput{
			Kind:   ResolutionCreditNote,
			Fields: creditNoteFields(),
		}}},
		{admin, TransitionRequest{To: StateReadyForCustomerPickup}},
		{cashier, TransitionRequest{To: StateFinalClosureReview, DeliveryDate: timePtr(time.Date(2025, 3, 22, 0, 0, 0, 0, time.UTC))}},
		{admin, TransitionRequest{To: StateClosed}},
	}

	for i, step := range steps {
		req := step.req
		req.ProcessID = rec.ID
		req.Actor = step.actor
		if _, err := engine.AttemptTransition(ctx, req); err != nil {
			t.Fatalf("step %d -> %s: %v", i, step.req.To, err)
		}
	}

	final, err := intake.GetByID(ctx, admin, rec.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !final.Closed() {
		t.Fatalf("expected closed, got %s", final.State)
	}
	if final.Folio == nil || final.ResolutionKind == nil || final.ClosedAt == nil {
		t.Fatalf("expected folio, resolution and closure to persist: %+v", final)
	}
	if final.Handover == nil || final.Handover.SellerName != "Luis Ortega" {
		t.Fatalf("expected handover to persist, got %+v", final.Handover)
	}

	// Branch scoping: a cashier from another branch must not see the record.
	outsider := auth.Identity{ActorID: "it-outsider", Role: auth.RoleCashier, BranchID: "branch-other"}
	if _, err := intake.GetByID(ctx, outsider, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign branch, got %v", err)
	}

	// Trail: creation plus one event per transition, strictly ordered.
	events, err := NewTrailService(pool).Events(ctx, rec.ID)
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if len(events) != len(steps)+1 {
		t.Fatalf("expected %d events, got %d", len(steps)+1, len(events))
	}
	if events[0].Type != EventProcessCreated {
		t.Fatalf("expected creation event first, got %s", events[0].Type)
	}
	for i, ev := range events {
		if ev.Seq != i+1 {
			t.Fatalf("expected seq %d, got %d", i+1, ev.Seq)
		}
	}

	// Outbox: at least creation, per-transition and closure notifications.
	var outboxCount int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE payload->>'process_id' = $1`, rec.ID).Scan(&outboxCount); err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outboxCount < len(steps)+1 {
		t.Fatalf("expected at least %d outbox rows, got %d", len(steps)+1, outboxCount)
	}

	// Records are never deleted.
	if _, err := pool.Exec(ctx, `DELETE FROM processes WHERE id = $1`, rec.ID); err == nil {
		t.Fatal("expected delete to be rejected by trigger")
	}

	// A stale transition on the closed record fails as an illegal move.
	_, err = engine.AttemptTransition(ctx, TransitionRequest{
		ProcessID: rec.ID,
		Actor:     admin,
		To:        StateFinalClosureReview,
	})
	var illegal *IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("expected IllegalTransitionError on closed record, got %v", err)
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	if err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, name).Scan(&exists); err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
