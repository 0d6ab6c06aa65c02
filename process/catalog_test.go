package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindEdge_DeclaredMoves(t *testing.T) {
	edge, ok := FindEdge(KindWarranty, StateWithVendor, StatePendingApproval)
	require.True(t, ok)
	assert.Equal(t, ActionSubmitResolution, edge.Action)
	assert.True(t, edge.CarriesResolution)
	assert.False(t, edge.AdminOnly)

	edge, ok = FindEdge(KindReturn, StateWithVendor, StateFinalClosureReview)
	require.True(t, ok)
	assert.Equal(t, ActionSubmitResolution, edge.Action)
	assert.True(t, edge.CarriesResolution)
}

func TestFindEdge_ReturnsSkipPendingApproval(t *testing.T) {
	// Returns have a single review stage, so the warranty's intermediate
	// approval state is unreachable for them.
	_, ok := FindEdge(KindReturn, StateWithVendor, StatePendingApproval)
	assert.False(t, ok)
	assert.NotContains(t, States(KindReturn), StatePendingApproval)
}

func TestFindEdge_ClosedIsTerminal(t *testing.T) {
	for _, kind := range []Kind{KindWarranty, KindReturn} {
		assert.Nil(t, Successors(kind, StateClosed), "kind %s", kind)
		for _, to := range States(kind) {
			_, ok := FindEdge(kind, StateClosed, to)
			assert.False(t, ok, "%s: closed -> %s must not exist", kind, to)
		}
	}
}

func TestFindEdge_UnknownKind(t *testing.T) {
	_, ok := FindEdge(Kind("exchange"), StateCreated, StateFolioAssignment)
	assert.False(t, ok)
}

func TestAdminOnlyEdges_CoverAllReviewDecisions(t *testing.T) {
	for _, kind := range []Kind{KindWarranty, KindReturn} {
		for _, edge := range Edges(kind) {
			if IsReviewState(edge.From) {
				assert.True(t, edge.AdminOnly, "%s: %s -> %s leaves a review state and must be admin-only", kind, edge.From, edge.To)
			}
			if edge.Rejection {
				assert.True(t, edge.AdminOnly, "%s: rejection %s -> %s must be admin-only", kind, edge.From, edge.To)
			}
		}
	}
}

func TestStates_PerKindGraphs(t *testing.T) {
	assert.Len(t, States(KindWarranty), 8)
	assert.Len(t, States(KindReturn), 6)
}

func TestPreservesResolutionOnReject(t *testing.T) {
	assert.True(t, PreservesResolutionOnReject(KindWarranty))
	assert.False(t, PreservesResolutionOnReject(KindReturn))
}

func TestSuccessors_ReviewStatesBranch(t *testing.T) {
	assert.ElementsMatch(t,
		[]State{StateReadyForCustomerPickup, StateWithVendor},
		Successors(KindWarranty, StatePendingApproval))
	assert.ElementsMatch(t,
		[]State{StateClosed, StateWithVendor},
		Successors(KindReturn, StateFinalClosureReview))
}
