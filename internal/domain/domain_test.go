package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

func boolPtr(b bool) *bool { return &b }

func TestNewStepsOrdersAndValidates(t *testing.T) {
	steps, err := NewSteps([]StepSpec{
		{Order: 2, ApproverType: ApproverRole, ApproverValue: "admin"},
		{Order: 1, ApproverType: ApproverDepartment, ApproverValue: "finance"},
		{Order: 3, ApproverType: ApproverUser, ApproverValue: "u-9", Required: boolPtr(false)},
	})
	require.NoError(t, err)
	require.Equal(t, 3, steps.Len())

	first, ok := steps.At(1)
	require.True(t, ok)
	assert.Equal(t, DepartmentApprover{Department: "finance"}, first.Approver)
	assert.True(t, first.Required)

	third, _ := steps.At(3)
	assert.False(t, third.Required)

	_, ok = steps.At(0)
	assert.False(t, ok)
	_, ok = steps.At(4)
	assert.False(t, ok)
}

func TestNewStepsRejectsBadSequences(t *testing.T) {
	cases := map[string][]StepSpec{
		"empty":     nil,
		"gap":       {{Order: 1, ApproverType: ApproverRole, ApproverValue: "a"}, {Order: 3, ApproverType: ApproverRole, ApproverValue: "b"}},
		"duplicate": {{Order: 1, ApproverType: ApproverRole, ApproverValue: "a"}, {Order: 1, ApproverType: ApproverRole, ApproverValue: "b"}},
		"zero":      {{Order: 0, ApproverType: ApproverRole, ApproverValue: "a"}},
		"bad type":  {{Order: 1, ApproverType: "group", ApproverValue: "a"}},
		"no value":  {{Order: 1, ApproverType: ApproverRole, ApproverValue: "  "}},
	}
	for name, specs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewSteps(specs)
			assert.True(t, errors.Is(err, errors.ErrCodeValidation), "got %v", err)
		})
	}
}

func TestNewStepsReportsApproverField(t *testing.T) {
	_, err := NewSteps([]StepSpec{
		{Order: 1, ApproverType: ApproverRole, ApproverValue: "manager"},
		{Order: 2, ApproverType: ApproverRole, ApproverValue: ""},
	})
	var e *errors.Error
	require.True(t, errors.As(err, &e), "got %v", err)
	assert.Equal(t, errors.ErrCodeValidation, e.Code)
	assert.Equal(t, "steps[1].approver_value", e.Field)
	assert.Equal(t, "approver value is required", e.Message)

	_, err = NewSteps([]StepSpec{{Order: 1, ApproverType: "group", ApproverValue: "a"}})
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "steps[0].approver_type", e.Field)
	assert.NotContains(t, e.Message, "VALIDATION")
}

func TestStepsJSONRoundTripValidates(t *testing.T) {
	steps := MustSteps(
		StepSpec{Order: 1, ApproverType: ApproverRole, ApproverValue: "manager"},
		StepSpec{Order: 2, ApproverType: ApproverUser, ApproverValue: "u-1"},
	)
	data, err := json.Marshal(steps)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"order":1,"approver_type":"role","approver_value":"manager","required":true},
		{"order":2,"approver_type":"user","approver_value":"u-1","required":true}
	]`, string(data))

	var decoded Steps
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, steps, decoded)

	err = json.Unmarshal([]byte(`[{"order":2,"approver_type":"role","approver_value":"x"}]`), &decoded)
	assert.Error(t, err)
}

func TestApproverMatches(t *testing.T) {
	m := Membership{ActorID: "u-1", Role: "manager", Departments: []string{"finance", "ops"}}

	assert.True(t, RoleApprover{Role: "manager"}.Matches(m))
	assert.False(t, RoleApprover{Role: "admin"}.Matches(m))
	assert.True(t, DepartmentApprover{Department: "ops"}.Matches(m))
	assert.False(t, DepartmentApprover{Department: "legal"}.Matches(m))
	assert.True(t, UserApprover{UserID: "u-1"}.Matches(m))
	assert.False(t, UserApprover{UserID: "u-2"}.Matches(m))
}

func TestNextTransitionTable(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		current  int
		total    int
		action   Action
		want     Transition
		wantCode errors.Code
	}{
		{"approve advances", StatusPending, 1, 3, ActionApprove, Transition{StatusInProgress, 2, EventAdvanced}, ""},
		{"approve last completes", StatusInProgress, 3, 3, ActionApprove, Transition{StatusApproved, 3, EventApproved}, ""},
		{"single step approve", StatusPending, 1, 1, ActionApprove, Transition{StatusApproved, 1, EventApproved}, ""},
		{"reject freezes", StatusInProgress, 2, 3, ActionReject, Transition{StatusRejected, 2, EventRejected}, ""},
		{"return decrements", StatusInProgress, 3, 3, ActionReturn, Transition{StatusPending, 2, EventReturned}, ""},
		{"return at first step clamps", StatusPending, 1, 3, ActionReturn, Transition{StatusPending, 1, EventReturned}, ""},
		{"approved is terminal", StatusApproved, 2, 2, ActionApprove, Transition{}, errors.ErrCodeInvalidState},
		{"rejected is terminal", StatusRejected, 1, 2, ActionReturn, Transition{}, errors.ErrCodeInvalidState},
		{"canceled is terminal", StatusCanceled, 1, 2, ActionReject, Transition{}, errors.ErrCodeInvalidState},
		{"unknown action", StatusPending, 1, 2, Action("escalate"), Transition{}, errors.ErrCodeValidation},
		{"step out of range", StatusPending, 3, 2, ActionApprove, Transition{}, errors.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.status, tt.current, tt.total, tt.action)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseHelpers(t *testing.T) {
	a, err := ParseAction(" Approve ")
	require.NoError(t, err)
	assert.Equal(t, ActionApprove, a)
	_, err = ParseAction("escalate")
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))

	rt, err := ParseRequestType("")
	require.NoError(t, err)
	assert.Equal(t, RequestTypeGeneral, rt)
	rt, err = ParseRequestType("Travel_Advance")
	require.NoError(t, err)
	assert.Equal(t, RequestType("travel_advance"), rt)
	_, err = ParseRequestType("not valid!")
	assert.Error(t, err)

	assert.True(t, StatusCanceled.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
	assert.False(t, Status("archived").IsValid())
}

func TestCloneIsIndependent(t *testing.T) {
	r := &ApprovalRequest{ID: "r1", Payload: map[string]any{"amount": 10}}
	c := r.Clone()
	c.Payload["amount"] = 20
	c.Status = StatusApproved
	assert.Equal(t, 10, r.Payload["amount"])
	assert.Equal(t, Status(""), r.Status)
}

func TestCloneCopiesNestedPayload(t *testing.T) {
	r := &ApprovalRequest{ID: "r1", Payload: map[string]any{
		"vendor": map[string]any{"name": "Acme"},
		"lines":  []any{map[string]any{"amount": 10}},
		"tags":   []string{"travel"},
	}}
	c := r.Clone()
	c.Payload["vendor"].(map[string]any)["name"] = "Globex"
	c.Payload["lines"].([]any)[0].(map[string]any)["amount"] = 99
	c.Payload["tags"].([]string)[0] = "meals"

	assert.Equal(t, "Acme", r.Payload["vendor"].(map[string]any)["name"])
	assert.Equal(t, 10, r.Payload["lines"].([]any)[0].(map[string]any)["amount"])
	assert.Equal(t, []string{"travel"}, r.Payload["tags"])
}
