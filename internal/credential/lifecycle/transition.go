// Package lifecycle holds the credential transition table.
package lifecycle

import (
	"fmt"
	"slices"

	"credlife/internal/credential/models"
	id "credlife/pkg/domain"
	dErrors "credlife/pkg/domain-errors"
)

type edge struct {
	from models.Status
	to   models.Status
}

// Review decisions may be taken by reviewers and by admins.
var reviewers = []id.Role{id.RoleReviewer, id.RoleAdmin}

// transitions maps each legal status change to the roles allowed to make it.
var transitions = map[edge][]id.Role{
	{models.StatusNone, models.StatusPending}:      {id.RoleOwner},
	{models.StatusPending, models.StatusApproved}:  reviewers,
	{models.StatusPending, models.StatusRejected}:  reviewers,
	{models.StatusPending, models.StatusReplaced}:  {id.RoleOwner},
	{models.StatusApproved, models.StatusExpired}:  {id.RoleSystem},
	{models.StatusApproved, models.StatusReplaced}: {id.RoleOwner},
	{models.StatusRejected, models.StatusReplaced}: {id.RoleOwner},
	{models.StatusExpired, models.StatusReplaced}:  {id.RoleOwner},
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	Current   models.Status
	Requested models.Status
	Role      id.Role
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s not allowed for role %s", e.Current, e.Requested, e.Role)
}

// ValidateTransition checks a status change against the transition table.
// It has no side effects. Failures carry code invalid_transition and wrap a
// *TransitionError with the attempted pair.
func ValidateTransition(current, requested models.Status, role id.Role) error {
	if slices.Contains(transitions[edge{current, requested}], role) {
		return nil
	}
	terr := &TransitionError{Current: current, Requested: requested, Role: role}
	return &dErrors.Error{Code: dErrors.CodeInvalidTransition, Message: terr.Error(), Err: terr}
}

// Allowed reports whether the transition is legal for the role.
func Allowed(current, requested models.Status, role id.Role) bool {
	return ValidateTransition(current, requested, role) == nil
}
