package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"aftersales/auth"
	"aftersales/process"
)

// Actors drive the transition engine the way store staff would, as fast as
// the database lets them. Domain rejections (conflicts, illegal moves) are
// the point of the exercise and are swallowed; only context cancellation
// stops an actor. Transient connection errors are tolerated because the
// chaos routine kills backends on purpose.

func sleepJitter(base, jitter int) {
	time.Sleep(time.Duration(base+rand.Intn(jitter)) * time.Millisecond)
}

func domainError(err error) bool {
	var illegal *process.IllegalTransitionError
	var invalid *process.InvalidResolutionDataError
	return errors.Is(err, process.ErrConflict) ||
		errors.Is(err, process.ErrNotFound) ||
		errors.Is(err, process.ErrUnauthorized) ||
		errors.Is(err, process.ErrInvalidInput) ||
		errors.As(err, &illegal) ||
		errors.As(err, &invalid)
}

// Intaker registers a steady stream of new warranty and return cases at one
// branch.
func Intaker(ctx context.Context, svc *process.IntakeService, cashier auth.Identity, branchID, vendorID string, stop <-chan struct{}) error {
	kinds := []process.Kind{process.KindWarranty, process.KindReturn}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		n := rand.Int63()
		_, err := svc.Create(ctx, cashier, process.CreateParams{
			Kind:     kinds[rand.Intn(len(kinds))],
			BranchID: branchID,
			VendorID: vendorID,
			Product: process.ProductInfo{
				Name:         fmt.Sprintf("Stress Item %d", n),
				SKU:          fmt.Sprintf("SKU-%d", n),
				InvoiceValue: float64(rand.Intn(5000)) + 0.99,
				Description:  "stress intake",
			},
			CustomerName:  "Stress Customer",
			CustomerPhone: "555-0000",
		})
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		sleepJitter(40, 60)
	}
}

// Cashier advances records of its branch through the operational edges:
// folio request, vendor handover, resolution submission and customer
// delivery confirmation.
func Cashier(ctx context.Context, pool *pgxpool.Pool, engine *process.Engine, cashier auth.Identity, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var (
			id    string
			kind  process.Kind
			state process.State
		)
		err := pool.QueryRow(ctx, `
			SELECT id, kind, state FROM processes
			WHERE branch_id = $1
			  AND state IN ('created','vendor_handover_pending','with_vendor','ready_for_customer_pickup')
			ORDER BY random() LIMIT 1`, cashier.BranchID).Scan(&id, &kind, &state)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sleepJitter(30, 40)
			continue
		}

		req := process.TransitionRequest{ProcessID: id, Actor: cashier}
		switch state {
		case process.StateCreated:
			req.To = process.StateFolioAssignment
		case process.StateVendorHandoverPending:
			req.To = process.StateWithVendor
			req.Handover = &process.VendorHandover{
				SellerName:  "Luis Ortega",
				SellerPhone: "555-0142",
				PickupDate:  time.Now().UTC().Truncate(24 * time.Hour),
			}
		case process.StateWithVendor:
			if kind == process.KindWarranty {
				req.To = process.StatePendingApproval
			} else {
				req.To = process.StateFinalClosureReview
			}
			req.Resolution = submittableResolution(kind)
		case process.StateReadyForCustomerPickup:
			req.To = process.StateFinalClosureReview
			now := time.Now().UTC().Truncate(24 * time.Hour)
			req.DeliveryDate = &now
		default:
			continue
		}

		if _, err := engine.AttemptTransition(ctx, req); err != nil && !domainError(err) && ctx.Err() != nil {
			return ctx.Err()
		}
		sleepJitter(15, 35)
	}
}

// Admin assigns folios and works the review queues, rejecting roughly a
// quarter of submissions to exercise the rework loops.
func Admin(ctx context.Context, pool *pgxpool.Pool, engine *process.Engine, admin auth.Identity, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		var (
			id    string
			kind  process.Kind
			state process.State
		)
		err := pool.QueryRow(ctx, `
			SELECT id, kind, state FROM processes
			WHERE state IN ('folio_assignment','pending_approval','final_closure_review')
			ORDER BY random() LIMIT 1`).Scan(&id, &kind, &state)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sleepJitter(30, 40)
			continue
		}

		req := process.TransitionRequest{ProcessID: id, Actor: admin}
		reject := rand.Intn(4) == 0
		switch state {
		case process.StateFolioAssignment:
			req.To = process.StateVendorHandoverPending
			req.Folio = fmt.Sprintf("F-%d", rand.Int63())
		case process.StatePendingApproval:
			if reject {
				req.To = process.StateWithVendor
				req.Note = "rework requested"
			} else {
				req.To = process.StateReadyForCustomerPickup
			}
		case process.StateFinalClosureReview:
			switch {
			case !reject:
				req.To = process.StateClosed
			case kind == process.KindWarranty:
				req.To = process.StateReadyForCustomerPickup
				req.Note = "delivery evidence incomplete"
			default:
				req.To = process.StateWithVendor
				req.Note = "resolution rejected"
			}
		default:
			continue
		}

		if _, err := engine.AttemptTransition(ctx, req); err != nil && !domainError(err) && ctx.Err() != nil {
			return ctx.Err()
		}
		sleepJitter(20, 40)
	}
}

func submittableResolution(kind process.Kind) *process.ResolutionInput {
	if kind == process.KindReturn || rand.Intn(2) == 0 {
		fields := map[string]string{
			process.FieldReceivedByBranchPerson: "Marta Ruiz",
			process.FieldReentryDate:            time.Now().UTC().Format("2006-01-02"),
		}
		if kind == process.KindWarranty {
			fields[process.FieldDeliveredToCustomer] = "Pedro Lima"
			fields[process.FieldCustomerDeliveryDate] = time.Now().UTC().Format("2006-01-02")
		}
		return &process.ResolutionInput{Kind: process.ResolutionPhysicalExchange, Fields: fields}
	}
	return &process.ResolutionInput{
		Kind: process.ResolutionCreditNote,
		Fields: map[string]string{
			process.FieldCreditNoteFolio:  fmt.Sprintf("NC-%d", rand.Int63()),
			process.FieldCreditNoteValue:  "1299.90",
			process.FieldAffectedInvoices: "F-88412",
			process.FieldNotifiedBy:       "Laura Medina",
			process.FieldNotificationDate: time.Now().UTC().Format("2006-01-02"),
		},
	}
}
