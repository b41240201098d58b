package domain

import (
	"slices"
	"strings"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// ApproverType tags the variant of an Approver.
type ApproverType string

const (
	ApproverRole       ApproverType = "role"
	ApproverDepartment ApproverType = "department"
	ApproverUser       ApproverType = "user"
)

// Membership is what the identity directory knows about an actor inside an
// organization.
type Membership struct {
	ActorID     string   `json:"id"`
	DisplayName string   `json:"display_name,omitempty"`
	Role        string   `json:"role"`
	Departments []string `json:"departments"`
	Admin       bool     `json:"admin"`
}

// Approver names who may act on a step. The set of implementations is closed:
// RoleApprover, DepartmentApprover and UserApprover.
type Approver interface {
	Type() ApproverType
	Value() string
	// Matches reports whether the member satisfies this approver.
	Matches(m Membership) bool

	approver()
}

// RoleApprover matches members holding exactly the given organizational role.
type RoleApprover struct{ Role string }

func (a RoleApprover) Type() ApproverType        { return ApproverRole }
func (a RoleApprover) Value() string             { return a.Role }
func (a RoleApprover) Matches(m Membership) bool { return m.Role == a.Role }
func (RoleApprover) approver()                   {}

// DepartmentApprover matches members of the given department.
type DepartmentApprover struct{ Department string }

func (a DepartmentApprover) Type() ApproverType { return ApproverDepartment }
func (a DepartmentApprover) Value() string      { return a.Department }
func (a DepartmentApprover) Matches(m Membership) bool {
	return slices.Contains(m.Departments, a.Department)
}
func (DepartmentApprover) approver() {}

// UserApprover matches one specific identity.
type UserApprover struct{ UserID string }

func (a UserApprover) Type() ApproverType        { return ApproverUser }
func (a UserApprover) Value() string             { return a.UserID }
func (a UserApprover) Matches(m Membership) bool { return m.ActorID == a.UserID }
func (UserApprover) approver()                   {}

// NewApprover builds the variant for an (approverType, approverValue) pair.
func NewApprover(t ApproverType, value string) (Approver, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.InvalidInput("approver_value", "approver value is required")
	}
	switch ApproverType(strings.ToLower(string(t))) {
	case ApproverRole:
		return RoleApprover{Role: value}, nil
	case ApproverDepartment:
		return DepartmentApprover{Department: value}, nil
	case ApproverUser:
		return UserApprover{UserID: value}, nil
	default:
		return nil, errors.InvalidInput("approver_type", "approver type must be one of role, department, user")
	}
}
