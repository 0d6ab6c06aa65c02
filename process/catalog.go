package process

// Action names the business operation carried by an edge. Stable strings:
// they end up in actor stamps, audit events, and the HTTP API.
type Action string

const (
	ActionRequestFolio      Action = "request_folio"
	ActionAssignFolio       Action = "assign_folio"
	ActionVendorHandover    Action = "vendor_handover"
	ActionSubmitResolution  Action = "submit_resolution"
	ActionApproveResolution Action = "approve_resolution"
	ActionRejectResolution  Action = "reject_resolution"
	ActionConfirmDelivery   Action = "confirm_customer_delivery"
	ActionApproveClosure    Action = "approve_closure"
	ActionRejectClosure     Action = "reject_closure"
)

// Edge is one declared transition in a kind's state graph. The catalog is a
// pure lookup table: it declares what moves exist and what they carry, it
// does not validate payloads or roles.
type Edge struct {
	Kind   Kind
	From   State
	To     State
	Action Action

	// AdminOnly edges may be performed by administrators exclusively.
	AdminOnly bool
	// CarriesResolution marks edges whose payload must pass the
	// resolution schema registry.
	CarriesResolution bool
	// Rejection marks the administrator edges that send a record back
	// for rework from a review state.
	Rejection bool
}

// reviewStates are the stages only an administrator may resolve.
var reviewStates = map[State]bool{
	StatePendingApproval:    true,
	StateFinalClosureReview: true,
}

// IsReviewState reports whether s is an administrative review stage.
func IsReviewState(s State) bool {
	return reviewStates[s]
}

var warrantyEdges = []Edge{
	{Kind: KindWarranty, From: StateCreated, To: StateFolioAssignment, Action: ActionRequestFolio},
	{Kind: KindWarranty, From: StateFolioAssignment, To: StateVendorHandoverPending, Action: ActionAssignFolio, AdminOnly: true},
	{Kind: KindWarranty, From: StateVendorHandoverPending, To: StateWithVendor, Action: ActionVendorHandover},
	{Kind: KindWarranty, From: StateWithVendor, To: StatePendingApproval, Action: ActionSubmitResolution, CarriesResolution: true},
	{Kind: KindWarranty, From: StatePendingApproval, To: StateReadyForCustomerPickup, Action: ActionApproveResolution, AdminOnly: true},
	{Kind: KindWarranty, From: StatePendingApproval, To: StateWithVendor, Action: ActionRejectResolution, AdminOnly: true, Rejection: true},
	{Kind: KindWarranty, From: StateReadyForCustomerPickup, To: StateFinalClosureReview, Action: ActionConfirmDelivery},
	{Kind: KindWarranty, From: StateFinalClosureReview, To: StateClosed, Action: ActionApproveClosure, AdminOnly: true},
	{Kind: KindWarranty, From: StateFinalClosureReview, To: StateReadyForCustomerPickup, Action: ActionRejectClosure, AdminOnly: true, Rejection: true},
}

var returnEdges = []Edge{
	{Kind: KindReturn, From: StateCreated, To: StateFolioAssignment, Action: ActionRequestFolio},
	{Kind: KindReturn, From: StateFolioAssignment, To: StateVendorHandoverPending, Action: ActionAssignFolio, AdminOnly: true},
	{Kind: KindReturn, From: StateVendorHandoverPending, To: StateWithVendor, Action: ActionVendorHandover},
	{Kind: KindReturn, From: StateWithVendor, To: StateFinalClosureReview, Action: ActionSubmitResolution, CarriesResolution: true},
	{Kind: KindReturn, From: StateFinalClosureReview, To: StateClosed, Action: ActionApproveClosure, AdminOnly: true},
	{Kind: KindReturn, From: StateFinalClosureReview, To: StateWithVendor, Action: ActionRejectClosure, AdminOnly: true, Rejection: true},
}

type kindConfig struct {
	edges []Edge
	// preserveResolutionOnReject keeps the submitted resolution on the
	// record after an administrator rejection so the team can re-edit it.
	// When false a rejection wipes it and forces a full resubmission.
	preserveResolutionOnReject bool
}

var catalog = map[Kind]kindConfig{
	KindWarranty: {edges: warrantyEdges, preserveResolutionOnReject: true},
	KindReturn:   {edges: returnEdges, preserveResolutionOnReject: false},
}

// FindEdge returns the declared edge from one state to another for a kind.
// The second return is false when no such move exists, including every move
// out of the terminal closed state.
func FindEdge(kind Kind, from, to State) (Edge, bool) {
	cfg, ok := catalog[kind]
	if !ok {
		return Edge{}, false
	}
	for _, e := range cfg.edges {
		if e.From == from && e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

// Successors lists the states reachable in one transition from the given
// state. A nil result means the state is terminal (or unknown) for the kind.
func Successors(kind Kind, from State) []State {
	cfg, ok := catalog[kind]
	if !ok {
		return nil
	}
	var out []State
	for _, e := range cfg.edges {
		if e.From == from {
			out = append(out, e.To)
		}
	}
	return out
}

// Edges returns the full declared edge set for a kind.
func Edges(kind Kind) []Edge {
	cfg := catalog[kind]
	out := make([]Edge, len(cfg.edges))
	copy(out, cfg.edges)
	return out
}

// States returns every state that appears in the kind's graph, in declared
// forward order.
func States(kind Kind) []State {
	seen := make(map[State]bool)
	var out []State
	add := func(s State) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, e := range catalog[kind].edges {
		add(e.From)
		add(e.To)
	}
	return out
}

// PreservesResolutionOnReject reports whether a rejection keeps the
// record's resolution data as a starting point for re-edit.
func PreservesResolutionOnReject(kind Kind) bool {
	return catalog[kind].preserveResolutionOnReject
}
