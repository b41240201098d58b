// Package domain holds the approval workflow model and its state machine.
package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// Status is the lifecycle state of an ApprovalRequest.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	// StatusCanceled is reserved for administrative cancellation; no action produces it.
	StatusCanceled Status = "canceled"
)

// IsTerminal reports whether no further actions are accepted.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCanceled:
		return true
	}
	return false
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusApproved, StatusRejected, StatusCanceled:
		return true
	}
	return false
}

// Action is a decision an approver takes on the current step.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionReturn  Action = "return"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionApprove, ActionReject, ActionReturn:
		return a, nil
	}
	return "", errors.InvalidInput("action", "action must be one of approve, reject, return")
}

// Event names a lifecycle notification.
type Event string

const (
	EventCreated  Event = "created"
	EventAdvanced Event = "advanced"
	EventApproved Event = "approved"
	EventRejected Event = "rejected"
	EventReturned Event = "returned"
)

// RequestType classifies a request. The set is open; these are the ones the
// platform ships with.
type RequestType string

const (
	RequestTypeGeneral  RequestType = "general"
	RequestTypeExpense  RequestType = "expense"
	RequestTypeLeave    RequestType = "leave"
	RequestTypePurchase RequestType = "purchase"
)

var requestTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// ParseRequestType normalizes a request type, defaulting blank to general.
func ParseRequestType(s string) (RequestType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RequestTypeGeneral, nil
	}
	if !requestTypePattern.MatchString(s) {
		return "", errors.InvalidInput("request_type", "request type must be a lowercase identifier")
	}
	return RequestType(s), nil
}

// Actor is the explicit caller context passed into every engine call.
type Actor struct {
	ID          string
	DisplayName string
	OrgID       string
	Role        string
	Departments []string
	Admin       bool
}

// Membership returns the actor's self-reported membership.
func (a Actor) Membership() Membership {
	return Membership{
		ActorID:     a.ID,
		DisplayName: a.DisplayName,
		Role:        a.Role,
		Departments: a.Departments,
		Admin:       a.Admin,
	}
}

// WorkflowDefinition is a named, ordered list of approval steps.
type WorkflowDefinition struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Steps       Steps     `json:"steps"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ApprovalRequest is one item routed through a workflow.
type ApprovalRequest struct {
	ID          string         `json:"id"`
	OrgID       string         `json:"org_id"`
	WorkflowID  string         `json:"workflow_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	RequestType RequestType    `json:"request_type"`
	Payload     map[string]any `json:"payload,omitempty"`
	RequesterID string         `json:"requester_id"`
	Status      Status         `json:"status"`
	CurrentStep int            `json:"current_step"`
	// Steps is the workflow's step list as it was at submission.
	Steps       Steps      `json:"steps"`
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TotalSteps returns the number of steps in the snapshot.
func (r *ApprovalRequest) TotalSteps() int { return r.Steps.Len() }

// CurrentStepDefinition returns the step awaiting action.
func (r *ApprovalRequest) CurrentStepDefinition() (Step, bool) {
	return r.Steps.At(r.CurrentStep)
}

// Clone returns a copy safe to mutate independently of r.
func (r *ApprovalRequest) Clone() *ApprovalRequest {
	out := *r
	if r.Payload != nil {
		out.Payload = copyObject(r.Payload)
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// copyObject deep-copies the JSON-shaped values a payload can hold.
func copyObject(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyObject(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = copyObject(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// HistoryEntry is one immutable record in a request's ledger.
type HistoryEntry struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	OrgID     string    `json:"org_id"`
	StepOrder int       `json:"step_order"`
	ActorID   string    `json:"actor_id"`
	Action    Action    `json:"action"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification is handed to the NotificationEmitter after a state change.
type Notification struct {
	RequestID string    `json:"request_id"`
	OrgID     string    `json:"org_id"`
	Event     Event     `json:"event"`
	ActorID   string    `json:"actor_id"`
	Step      int       `json:"step"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
