package process

import (
	"fmt"

	"aftersales/auth"
)

// Gate is the single place where actor roles are checked against edges.
// UI layers hide controls the actor cannot use, but the engine consults the
// gate on every attempt regardless of what the UI offered.
type Gate struct{}

// NewGate returns the authorization gate.
func NewGate() *Gate {
	return &Gate{}
}

// Allows reports whether the role may perform the edge. Administrators may
// perform everything; cashiers are blocked from admin-only edges, which
// covers writing the assigned folio and every approval or rejection
// decision on a review state.
func (g *Gate) Allows(role auth.Role, edge Edge) bool {
	if role == auth.RoleAdministrator {
		return true
	}
	if role != auth.RoleCashier {
		return false
	}
	return !edge.AdminOnly
}

// Authorize returns ErrUnauthorized when the role may not perform the edge.
// Denial is terminal; the caller is expected to render a read-only waiting
// view rather than retry.
func (g *Gate) Authorize(role auth.Role, edge Edge) error {
	if !g.Allows(role, edge) {
		return ErrUnauthorized
	}
	return nil
}

// branchScopeFor resolves the branch filter for a read or transition.
// Administrators are unscoped. A cashier identity that carries no branch
// cannot be scoped to anything and is rejected rather than left unscoped.
func branchScopeFor(actor auth.Identity) (string, error) {
	if actor.IsAdmin() {
		return "", nil
	}
	if actor.BranchID == "" {
		return "", fmt.Errorf("process: actor %s has no branch: %w", actor.ActorID, ErrUnauthorized)
	}
	return actor.BranchID, nil
}
