package process

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"aftersales/auth"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TransitionRepository defines the data access the engine needs. The state
// write is a compare-and-swap: ApplyTransition must fail with ErrConflict
// when the row's state no longer matches expected.
type TransitionRepository interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id, branchScope string) (Record, error)
	ApplyTransition(ctx context.Context, tx pgx.Tx, id string, expected State, patch TransitionPatch) error
	AppendEvent(ctx context.Context, tx pgx.Tx, processID, eventType, actorID string, payload map[string]any) error
	EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// ResolutionInput is the raw resolution submission accompanying a
// with_vendor -> review transition.
type ResolutionInput struct {
	Kind   ResolutionKind
	Fields map[string]string
}

// TransitionRequest is an actor's attempt to move a record to a new state.
type TransitionRequest struct {
	ProcessID string
	Actor     auth.Identity
	To        State

	// Folio carries the internal system folio on the assign_folio edge.
	Folio string
	// Handover carries the vendor handover details on the
	// vendor_handover edge.
	Handover *VendorHandover
	// Resolution carries the proposed remedy on the submit_resolution edge.
	Resolution *ResolutionInput
	// DeliveryDate carries the customer delivery date on the
	// confirm_customer_delivery edge.
	DeliveryDate *time.Time
	// Note is an optional free-text comment, recorded in the audit trail.
	// Administrators use it to explain rejections.
	Note string
}

// TransitionPatch enumerates the columns a single transition may touch.
// Nil pointers leave the column alone; the Clear flags wipe it.
type TransitionPatch struct {
	To State

	Folio                *string
	Handover             *VendorHandover
	ResolutionKind       *ResolutionKind
	ResolutionData       []byte
	ClearResolution      bool
	CustomerDeliveryDate *time.Time

	HandedOverAt *time.Time
	ResolvedAt   *time.Time
	DeliveredAt  *time.Time
	ClosedAt     *time.Time

	Stamps      map[string]string
	ClearStamps []string
}

// Engine is the single mutation entry point for process records. All checks
// run before any write, and the write itself is a conditional update, so a
// failed attempt never leaves partial state behind.
type Engine struct {
	pool TxBeginner
	repo TransitionRepository
	gate *Gate
	log  *zap.Logger
	now  func() time.Time
}

// NewEngine wires a transition engine. A nil repo gets the pgx-backed
// default and a nil logger is replaced with a no-op one.
func NewEngine(pool TxBeginner, repo TransitionRepository, log *zap.Logger) *Engine {
	if repo == nil {
		repo = NewRepository()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		pool: pool,
		repo: repo,
		gate: NewGate(),
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// AttemptTransition validates and applies one transition. On any failure the
// transaction rolls back and the record is untouched.
func (e *Engine) AttemptTransition(ctx context.Context, req TransitionRequest) (Record, error) {
	if req.ProcessID == "" {
		return Record{}, fmt.Errorf("missing process id: %w", ErrInvalidInput)
	}
	if req.Actor.ActorID == "" {
		return Record{}, fmt.Errorf("missing actor id: %w", ErrInvalidInput)
	}

	branchScope, err := branchScopeFor(req.Actor)
	if err != nil {
		return Record{}, err
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("process: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := e.repo.GetForUpdate(ctx, tx, req.ProcessID, branchScope)
	if err != nil {
		return Record{}, err
	}

	edge, ok := FindEdge(rec.Kind, rec.State, req.To)
	if !ok {
		return Record{}, &IllegalTransitionError{Kind: rec.Kind, From: rec.State, To: req.To}
	}

	if err := e.gate.Authorize(req.Actor.Role, edge); err != nil {
		return Record{}, err
	}

	patch, err := e.buildPatch(rec, edge, req)
	if err != nil {
		return Record{}, err
	}

	if err := e.repo.ApplyTransition(ctx, tx, rec.ID, rec.State, patch); err != nil {
		return Record{}, err
	}

	eventPayload := map[string]any{
		"previous_state": string(rec.State),
		"next_state":     string(edge.To),
		"action":         string(edge.Action),
	}
	if req.Note != "" {
		eventPayload["note"] = req.Note
	}
	if edge.CarriesResolution && req.Resolution != nil {
		eventPayload["resolution_kind"] = string(req.Resolution.Kind)
	}
	eventType := EventStateTransition
	if edge.CarriesResolution {
		eventType = EventResolutionStored
	}
	if err := e.repo.AppendEvent(ctx, tx, rec.ID, eventType, req.Actor.ActorID, eventPayload); err != nil {
		return Record{}, err
	}

	for _, topic := range transitionTopics(edge) {
		outboxPayload := map[string]any{
			"event_id":   uuid.NewString(),
			"process_id": rec.ID,
			"kind":       string(rec.Kind),
			"previous":   string(rec.State),
			"next":       string(edge.To),
			"action":     string(edge.Action),
		}
		if err := e.repo.EnqueueOutbox(ctx, tx, topic, outboxPayload); err != nil {
			return Record{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("process: commit transition: %w", err)
	}

	updated := applyPatch(rec, patch, e.now())
	e.log.Info("process transitioned",
		zap.String("process_id", rec.ID),
		zap.String("kind", string(rec.Kind)),
		zap.String("from", string(rec.State)),
		zap.String("to", string(edge.To)),
		zap.String("action", string(edge.Action)),
		zap.String("actor_id", req.Actor.ActorID),
	)
	return updated, nil
}

// buildPatch enforces the per-edge payload preconditions and assembles the
// column updates for the write.
func (e *Engine) buildPatch(rec Record, edge Edge, req TransitionRequest) (TransitionPatch, error) {
	now := e.now()
	patch := TransitionPatch{
		To:     edge.To,
		Stamps: map[string]string{},
	}

	switch edge.Action {
	case ActionRequestFolio:
		patch.Stamps[StampFolioRequested] = req.Actor.ActorID

	case ActionAssignFolio:
		if req.Folio == "" {
			return TransitionPatch{}, fmt.Errorf("folio value required: %w", ErrInvalidInput)
		}
		folio := req.Folio
		patch.Folio = &folio
		patch.Stamps[StampFolioAssigned] = req.Actor.ActorID

	case ActionVendorHandover:
		h := req.Handover
		if h == nil || h.SellerName == "" || h.SellerPhone == "" || h.PickupDate.IsZero() {
			return TransitionPatch{}, fmt.Errorf("vendor handover requires seller name, phone and pickup date: %w", ErrInvalidInput)
		}
		patch.Handover = h
		patch.HandedOverAt = &now
		patch.Stamps[StampVendorHandover] = req.Actor.ActorID

	case ActionSubmitResolution:
		if req.Resolution == nil {
			return TransitionPatch{}, fmt.Errorf("resolution payload required: %w", ErrInvalidInput)
		}
		res, err := ParseResolution(rec.Kind, req.Resolution.Kind, req.Resolution.Fields)
		if err != nil {
			return TransitionPatch{}, err
		}
		data, err := json.Marshal(res)
		if err != nil {
			return TransitionPatch{}, fmt.Errorf("process: marshal resolution: %w", err)
		}
		kind := req.Resolution.Kind
		patch.ResolutionKind = &kind
		patch.ResolutionData = data
		patch.ResolvedAt = &now
		patch.Stamps[StampResolutionSubmitted] = req.Actor.ActorID

	case ActionApproveResolution:
		patch.Stamps[StampApproved] = req.Actor.ActorID

	case ActionConfirmDelivery:
		if req.DeliveryDate == nil {
			return TransitionPatch{}, fmt.Errorf("customer delivery date required: %w", ErrInvalidInput)
		}
		patch.CustomerDeliveryDate = req.DeliveryDate
		patch.DeliveredAt = &now
		patch.Stamps[StampCustomerDelivery] = req.Actor.ActorID

	case ActionApproveClosure:
		patch.ClosedAt = &now
		patch.Stamps[StampClosed] = req.Actor.ActorID
		// For returns the single review doubles as resolution approval.
		if rec.Kind == KindReturn {
			patch.Stamps[StampApproved] = req.Actor.ActorID
		}

	case ActionRejectResolution, ActionRejectClosure:
		patch.ClearStamps = append(patch.ClearStamps, StampApproved)
		if !PreservesResolutionOnReject(rec.Kind) && edge.To == StateWithVendor {
			patch.ClearResolution = true
		}

	default:
		return TransitionPatch{}, fmt.Errorf("process: unknown action %q", edge.Action)
	}

	return patch, nil
}

// applyPatch mirrors the repository write on the in-memory copy so callers
// get the updated record without a second read.
func applyPatch(rec Record, patch TransitionPatch, updatedAt time.Time) Record {
	rec.State = patch.To
	rec.UpdatedAt = updatedAt

	if patch.Folio != nil {
		rec.Folio = patch.Folio
	}
	if patch.Handover != nil {
		rec.Handover = patch.Handover
	}
	if patch.ResolutionKind != nil {
		rec.ResolutionKind = patch.ResolutionKind
		rec.ResolutionData = patch.ResolutionData
	}
	if patch.ClearResolution {
		rec.ResolutionKind = nil
		rec.ResolutionData = nil
		rec.ResolvedAt = nil
	}
	if patch.CustomerDeliveryDate != nil {
		rec.CustomerDeliveryDate = patch.CustomerDeliveryDate
	}
	if patch.HandedOverAt != nil {
		rec.HandedOverAt = patch.HandedOverAt
	}
	if patch.ResolvedAt != nil {
		rec.ResolvedAt = patch.ResolvedAt
	}
	if patch.DeliveredAt != nil {
		rec.DeliveredAt = patch.DeliveredAt
	}
	if patch.ClosedAt != nil {
		rec.ClosedAt = patch.ClosedAt
	}

	if rec.ActorStamps == nil {
		rec.ActorStamps = map[string]string{}
	} else {
		stamps := make(map[string]string, len(rec.ActorStamps))
		for k, v := range rec.ActorStamps {
			stamps[k] = v
		}
		rec.ActorStamps = stamps
	}
	for k, v := range patch.Stamps {
		rec.ActorStamps[k] = v
	}
	for _, k := range patch.ClearStamps {
		delete(rec.ActorStamps, k)
	}

	return rec
}

// transitionTopics lists the outbox topics an edge emits. Every transition
// announces itself; resolutions and closures additionally get their own
// topic for consumers that only care about those milestones.
func transitionTopics(edge Edge) []string {
	topics := []string{TopicProcessTransitioned}
	if edge.CarriesResolution {
		topics = append(topics, TopicProcessResolved)
	}
	if edge.To == StateClosed {
		topics = append(topics, TopicProcessClosed)
	}
	return topics
}
