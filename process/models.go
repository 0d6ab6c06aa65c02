package process

import "time"

// Kind distinguishes the two tracked store operations. It fixes which state
// graph and which resolution kinds apply to a record.
type Kind string

const (
	KindWarranty Kind = "warranty"
	KindReturn   Kind = "return"
)

// IsValid reports whether k is a known process kind.
func (k Kind) IsValid() bool {
	return k == KindWarranty || k == KindReturn
}

// State is a lifecycle stage of a process record. Records only ever move
// along the edges declared in the catalog for their kind.
type State string

const (
	StateCreated                State = "created"
	StateFolioAssignment        State = "folio_assignment"
	StateVendorHandoverPending  State = "vendor_handover_pending"
	StateWithVendor             State = "with_vendor"
	StatePendingApproval        State = "pending_approval"
	StateReadyForCustomerPickup State = "ready_for_customer_pickup"
	StateFinalClosureReview     State = "final_closure_review"
	StateClosed                 State = "closed"
)

// Actor stamp keys recorded on the record as each step is performed.
const (
	StampIntake              = "intake"
	StampFolioRequested      = "folio_requested"
	StampFolioAssigned       = "folio_assigned"
	StampVendorHandover      = "vendor_handover"
	StampResolutionSubmitted = "resolution_submitted"
	StampApproved            = "approved"
	StampCustomerDelivery    = "customer_delivery"
	StampClosed              = "closed"
)

// Outbox topics emitted by the intake service and the transition engine.
// Delivery is fire-and-forget; consumers must tolerate at-most-once.
const (
	TopicProcessCreated      = "process.created"
	TopicProcessTransitioned = "process.transitioned"
	TopicProcessResolved     = "process.resolved"
	TopicProcessClosed       = "process.closed"
)

// ProductInfo is the immutable business data captured at intake.
type ProductInfo struct {
	Name          string
	SKU           string
	InvoiceNumber string
	InvoiceValue  float64
	// Description holds the reported defect (warranty) or the return
	// reason, including any customer contact note appended at intake.
	Description string
}

// VendorHandover records the physical handover of the item to the supplier.
// Set once when the record moves to with_vendor.
type VendorHandover struct {
	SellerName   string
	SellerPhone  string
	PickupDate   time.Time
	PickupTicket string
	// EvidenceURL is an opaque blob reference owned by the evidence store.
	// The engine stores and forwards it but never interprets the content.
	EvidenceURL *string
}

// Record is the persistent unit of work for one warranty or return case.
// It mirrors the processes table. State is mutated only through the engine;
// records are never deleted, closure is a state.
type Record struct {
	ID       string
	Kind     Kind
	State    State
	BranchID string
	VendorID string

	Product ProductInfo

	Folio    *string
	Handover *VendorHandover

	ResolutionKind *ResolutionKind
	// ResolutionData is the latest validated resolution payload serialized
	// as JSON. Each submission fully replaces the previous one; rejected
	// attempts survive only in the event trail.
	ResolutionData []byte

	CustomerDeliveryDate *time.Time

	// ActorStamps maps a stamp key to the id of the actor who performed it.
	ActorStamps map[string]string

	CreatedAt    time.Time
	UpdatedAt    time.Time
	HandedOverAt *time.Time
	ResolvedAt   *time.Time
	DeliveredAt  *time.Time
	ClosedAt     *time.Time
}

// Closed reports whether the record is terminal.
func (r *Record) Closed() bool {
	return r.State == StateClosed
}

// Event is one immutable audit trail entry for a process record.
type Event struct {
	ID        int64
	ProcessID string
	Seq       int
	Type      string
	ActorID   *string
	CreatedAt time.Time
	Payload   []byte
}

// Event types appended to the trail.
const (
	EventProcessCreated   = "PROCESS_CREATED"
	EventStateTransition  = "STATE_TRANSITIONED"
	EventResolutionStored = "RESOLUTION_SUBMITTED"
)
