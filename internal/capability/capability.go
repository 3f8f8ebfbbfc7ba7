// Package capability maps roles to the operations they may perform. The
// mapping is fixed: a Capabilities value is derived once per request and
// treated as immutable for its duration. UI-side gating is advisory only;
// the engine calls Require before every mutation.
package capability

import (
	"fmt"

	"ouvidor/internal/domain"
)

type Capability string

const (
	CreateManifestation  Capability = "manifestation.create"
	EditManifestation    Capability = "manifestation.edit"
	ForwardManifestation Capability = "manifestation.forward"
	RespondManifestation Capability = "manifestation.respond"
	CloseManifestation   Capability = "manifestation.close"
	CancelManifestation  Capability = "manifestation.cancel"
	DeleteManifestation  Capability = "manifestation.delete"
	ManageManifestations Capability = "manage-manifestations"
	ManagePlans          Capability = "plan.manage"
	ViewReports          Capability = "view-reports"
	ManageUsers          Capability = "manage-users"
	ManageSectors        Capability = "manage-sectors"

	// AssignedOnly marks roles whose mutating capabilities apply only to
	// records they are responsible for. The engine checks the assignment.
	AssignedOnly Capability = "assigned-only"
)

// ForbiddenError indicates the actor lacks a required capability.
type ForbiddenError struct {
	Capability Capability
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("capability %s required", e.Capability)
}

// Capabilities is the immutable set held by an actor for one request.
type Capabilities struct {
	set map[Capability]struct{}
}

func (c Capabilities) Has(capa Capability) bool {
	_, ok := c.set[capa]
	return ok
}

// Require returns ForbiddenError if the capability is absent.
func (c Capabilities) Require(capa Capability) error {
	if !c.Has(capa) {
		return ForbiddenError{Capability: capa}
	}
	return nil
}

// List returns the capabilities in no particular order.
func (c Capabilities) List() []Capability {
	out := make([]Capability, 0, len(c.set))
	for capa := range c.set {
		out = append(out, capa)
	}
	return out
}

func newSet(caps ...Capability) Capabilities {
	set := make(map[Capability]struct{}, len(caps))
	for _, capa := range caps {
		set[capa] = struct{}{}
	}
	return Capabilities{set: set}
}

var manageSet = []Capability{
	CreateManifestation, EditManifestation, ForwardManifestation,
	RespondManifestation, CloseManifestation, CancelManifestation,
	ManageManifestations, ManagePlans,
}

// For derives the capability set for a role. Unknown roles get nothing.
func For(role domain.Role) Capabilities {
	switch role {
	case domain.RoleAdmin:
		return newSet(append(manageSet,
			DeleteManifestation, ViewReports, ManageUsers, ManageSectors)...)
	case domain.RoleOuvidor:
		return newSet(append(manageSet, DeleteManifestation, ViewReports)...)
	case domain.RoleGestor:
		// Sector scoping is a convention enforced by assignment in the
		// engine, not by this mapping.
		return newSet(append(manageSet, ViewReports)...)
	case domain.RoleAssistente:
		return newSet(CreateManifestation, EditManifestation,
			ForwardManifestation, RespondManifestation, ManagePlans)
	case domain.RoleAnalista:
		return newSet(EditManifestation, ForwardManifestation,
			RespondManifestation, ManagePlans, AssignedOnly)
	case domain.RoleConsulta:
		return newSet()
	}
	return newSet()
}
