// Package access decides which actor may do what to an application. Every
// workflow operation calls Authorize before touching the store; the UI hiding
// a button is never relied upon.
package access

import (
	"errors"
	"fmt"

	"nobconsult/internal/domain"
)

type Action string

const (
	ActionRead              Action = "read"
	ActionCreateApplication Action = "create_application"
	ActionUploadDocument    Action = "upload_document"
	ActionDecideDocument    Action = "decide_document"
	ActionChangeStatus      Action = "change_status"
	ActionUpdatePayment     Action = "update_payment"
	ActionEditNotes         Action = "edit_notes"
	ActionSendMessage       Action = "send_message"
	ActionAssign            Action = "assign"
	ActionClaim             Action = "claim"
	ActionArchive           Action = "archive"
)

var ErrForbidden = errors.New("forbidden")

// Resource is the ownership information the gate needs about an application.
type Resource struct {
	CustomerID      int64
	AssignedStaffID *int64
}

func ResourceOf(app *domain.Application) Resource {
	return Resource{CustomerID: app.CustomerID, AssignedStaffID: app.AssignedStaffID}
}

// ForCustomer describes an application that does not exist yet.
func ForCustomer(customerID int64) Resource {
	return Resource{CustomerID: customerID}
}

var customerActions = map[Action]bool{
	ActionRead:              true,
	ActionCreateApplication: true,
	ActionUploadDocument:    true,
	ActionSendMessage:       true,
}

// staff may only mutate applications assigned to them
var assignedStaffActions = map[Action]bool{
	ActionRead:           true,
	ActionDecideDocument: true,
	ActionChangeStatus:   true,
	ActionUpdatePayment:  true,
	ActionEditNotes:      true,
	ActionSendMessage:    true,
}

func CanPerform(actor domain.Actor, action Action, res Resource) bool {
	switch actor.Role {
	case domain.RoleAdmin:
		return action != ActionUploadDocument
	case domain.RoleCustomer:
		return res.CustomerID == actor.UserID && customerActions[action]
	case domain.RoleStaff:
		unassigned := res.AssignedStaffID == nil
		assigned := !unassigned && *res.AssignedStaffID == actor.UserID
		switch action {
		case ActionCreateApplication:
			return true
		case ActionRead:
			return assigned || unassigned
		case ActionClaim:
			return unassigned
		}
		return assigned && assignedStaffActions[action]
	}
	return false
}

// Authorize is CanPerform returning an error wrapping ErrForbidden.
func Authorize(actor domain.Actor, action Action, res Resource) error {
	if CanPerform(actor, action, res) {
		return nil
	}
	return fmt.Errorf("%w: %s may not %s", ErrForbidden, actor.Role, action)
}
