// Package party resolves which side of a work item an actor is on.
// Capability checks never trust a client-supplied role for party
// membership; the actor id is compared against the work item record.
// The admin role is the only header-derived capability and overrides
// both sides.
package party

import (
	"github.com/gewerk/handover/services/acceptance-service/internal/fault"
)

type Role int

const (
	RoleNone Role = iota
	RoleCommissioning
	RolePerforming
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleCommissioning:
		return "commissioning"
	case RolePerforming:
		return "performing"
	case RoleAdmin:
		return "admin"
	}
	return "none"
}

// Actor is the authenticated caller as forwarded by the gateway.
type Actor struct {
	ID    string
	Admin bool
}

// Resolve places the actor relative to a work item's two parties.
func Resolve(actor Actor, commissioningPartyID, performingPartyID string) Role {
	if actor.Admin {
		return RoleAdmin
	}
	switch actor.ID {
	case commissioningPartyID:
		return RoleCommissioning
	case performingPartyID:
		return RolePerforming
	}
	return RoleNone
}

// RequireCommissioning fails unless the actor is the commissioning party
// or an admin.
func RequireCommissioning(actor Actor, commissioningPartyID, performingPartyID, operation string) error {
	role := Resolve(actor, commissioningPartyID, performingPartyID)
	if role == RoleCommissioning || role == RoleAdmin {
		return nil
	}
	return fault.NotAuthorized("%s is reserved for the commissioning party, actor %s resolves to %s", operation, actor.ID, role)
}

// RequirePerforming fails unless the actor is the performing party or an
// admin.
func RequirePerforming(actor Actor, commissioningPartyID, performingPartyID, operation string) error {
	role := Resolve(actor, commissioningPartyID, performingPartyID)
	if role == RolePerforming || role == RoleAdmin {
		return nil
	}
	return fault.NotAuthorized("%s is reserved for the performing party, actor %s resolves to %s", operation, actor.ID, role)
}

// RequireParticipant fails unless the actor belongs to either side.
func RequireParticipant(actor Actor, commissioningPartyID, performingPartyID, operation string) error {
	if Resolve(actor, commissioningPartyID, performingPartyID) == RoleNone {
		return fault.NotAuthorized("%s requires a work item participant, actor %s is neither party", operation, actor.ID)
	}
	return nil
}
