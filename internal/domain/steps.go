package domain

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// Step is one position in a workflow.
type Step struct {
	Order    int
	Approver Approver
	Required bool
}

// StepSpec is the unvalidated input form of a Step, also its wire form.
type StepSpec struct {
	Order         int          `json:"order"`
	ApproverType  ApproverType `json:"approver_type"`
	ApproverValue string       `json:"approver_value"`
	Required      *bool        `json:"required,omitempty"`
}

// Steps is an immutable, validated step sequence with orders 1..N.
type Steps struct {
	steps []Step
}

// NewSteps validates specs and returns them ordered. Orders may arrive in any
// order but must form exactly 1..N.
func NewSteps(specs []StepSpec) (Steps, error) {
	if len(specs) == 0 {
		return Steps{}, errors.InvalidInput("steps", "workflow must have at least one step")
	}

	steps := make([]Step, 0, len(specs))
	for i, spec := range specs {
		approver, err := NewApprover(spec.ApproverType, spec.ApproverValue)
		if err != nil {
			field, message := fmt.Sprintf("steps[%d]", i), err.Error()
			var e *errors.Error
			if errors.As(err, &e) {
				field, message = field+"."+e.Field, e.Message
			}
			return Steps{}, errors.InvalidInput(field, message)
		}
		required := true
		if spec.Required != nil {
			required = *spec.Required
		}
		steps = append(steps, Step{Order: spec.Order, Approver: approver, Required: required})
	}

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	for i, s := range steps {
		if s.Order != i+1 {
			return Steps{}, errors.InvalidInput("steps", "step orders must be a contiguous sequence starting at 1")
		}
	}
	return Steps{steps: steps}, nil
}

// MustSteps is NewSteps that panics on invalid input. Intended for fixtures.
func MustSteps(specs ...StepSpec) Steps {
	s, err := NewSteps(specs)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of steps.
func (s Steps) Len() int { return len(s.steps) }

// At returns the step with the given 1-based order.
func (s Steps) At(order int) (Step, bool) {
	if order < 1 || order > len(s.steps) {
		return Step{}, false
	}
	return s.steps[order-1], true
}

// All returns a copy of the steps in order.
func (s Steps) All() []Step {
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

// Specs converts the steps back to their wire form.
func (s Steps) Specs() []StepSpec {
	out := make([]StepSpec, 0, len(s.steps))
	for _, step := range s.steps {
		required := step.Required
		out = append(out, StepSpec{
			Order:         step.Order,
			ApproverType:  step.Approver.Type(),
			ApproverValue: step.Approver.Value(),
			Required:      &required,
		})
	}
	return out
}

func (s Steps) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Specs())
}

func (s *Steps) UnmarshalJSON(data []byte) error {
	var specs []StepSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return err
	}
	parsed, err := NewSteps(specs)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
