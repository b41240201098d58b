package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pesio-ai/be-plt-approvals/internal/approver"
	"github.com/pesio-ai/be-plt-approvals/internal/domain"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/metrics"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

const (
	maxTitleLength   = 200
	maxCommentLength = 2000

	// metrics label for actions outside the known set
	actionInvalid = "invalid"
)

// Notifier receives lifecycle events after they are committed. It must not
// block for long and never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// SubmitInput carries the fields of a new approval request.
type SubmitInput struct {
	WorkflowID  string         `json:"workflow_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	RequestType string         `json:"request_type"`
	Payload     map[string]any `json:"payload"`
}

// ApprovalService drives approval requests through their workflow steps.
type ApprovalService struct {
	workflows  repository.WorkflowStore
	requests   repository.RequestStore
	history    repository.HistoryLedger
	resolver   *approver.Resolver
	notifier   Notifier
	metrics    *metrics.Metrics
	maxRetries int
	now        func() time.Time
	log        *logger.Logger
}

// ApprovalOption customizes an ApprovalService.
type ApprovalOption func(*ApprovalService)

// WithMetrics records action outcomes on m.
func WithMetrics(m *metrics.Metrics) ApprovalOption {
	return func(s *ApprovalService) { s.metrics = m }
}

// WithMaxRetries bounds how many times a transition is re-attempted after a
// concurrent update of the same request.
func WithMaxRetries(n int) ApprovalOption {
	return func(s *ApprovalService) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithClock overrides the completion timestamp source.
func WithClock(now func() time.Time) ApprovalOption {
	return func(s *ApprovalService) { s.now = now }
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	stores repository.Stores,
	resolver *approver.Resolver,
	notifier Notifier,
	log *logger.Logger,
	opts ...ApprovalOption,
) *ApprovalService {
	s := &ApprovalService{
		workflows:  stores.Workflows,
		requests:   stores.Requests,
		history:    stores.History,
		resolver:   resolver,
		notifier:   notifier,
		maxRetries: 3,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ── Submit ────────────────────────────────────────────────────────────────────

// Submit creates a pending request at step 1 of the given workflow. The
// workflow's steps are snapshotted onto the request.
func (s *ApprovalService) Submit(ctx context.Context, actor domain.Actor, in SubmitInput) (*domain.ApprovalRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errors.InvalidInput("title", "title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, errors.InvalidInput("title", fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	if strings.TrimSpace(in.WorkflowID) == "" {
		return nil, errors.InvalidInput("workflow_id", "workflow_id is required")
	}
	requestType, err := domain.ParseRequestType(in.RequestType)
	if err != nil {
		return nil, err
	}

	wf, err := s.workflows.GetByID(ctx, actor.OrgID, in.WorkflowID)
	if err != nil {
		return nil, err
	}
	if wf.Steps.Len() == 0 {
		return nil, errors.InvalidState("workflow definition has no steps")
	}

	req := &domain.ApprovalRequest{
		OrgID:       actor.OrgID,
		WorkflowID:  wf.ID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		RequestType: requestType,
		Payload:     in.Payload,
		RequesterID: actor.ID,
		Status:      domain.StatusPending,
		CurrentStep: 1,
		Steps:       wf.Steps,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	s.metrics.IncSubmitted(string(requestType))
	s.log.Info().
		Str("request_id", req.ID).
		Str("workflow_id", wf.ID).
		Str("org_id", req.OrgID).
		Str("requester_id", actor.ID).
		Int("total_steps", req.TotalSteps()).
		Msg("Approval request submitted")

	s.notify(ctx, req, domain.EventCreated, actor.ID)
	return req, nil
}

// ── Act ───────────────────────────────────────────────────────────────────────

// Act applies action to the request's current step on behalf of actor. The
// state change and its history entry commit together. When another actor
// updates the request first, the action is re-evaluated against the fresh
// state as long as the request still sits at the step the caller acted on.
func (s *ApprovalService) Act(
	ctx context.Context,
	actor domain.Actor,
	requestID string,
	action domain.Action,
	comment string,
) (*domain.ApprovalRequest, error) {
	parsed, err := domain.ParseAction(string(action))
	if err != nil {
		s.metrics.ObserveAction(actionInvalid, string(errors.CodeOf(err)))
		return nil, err
	}
	action = parsed

	updated, event, err := s.act(ctx, actor, requestID, action, comment)
	if err != nil {
		s.metrics.ObserveAction(string(action), string(errors.CodeOf(err)))
		return nil, err
	}
	s.metrics.ObserveAction(string(action), "ok")

	s.log.Info().
		Str("request_id", updated.ID).
		Str("actor_id", actor.ID).
		Str("action", string(action)).
		Str("status", string(updated.Status)).
		Int("current_step", updated.CurrentStep).
		Msg("Approval action recorded")

	s.notify(ctx, updated, event, actor.ID)
	return updated, nil
}

func (s *ApprovalService) act(
	ctx context.Context,
	actor domain.Actor,
	requestID string,
	action domain.Action,
	comment string,
) (*domain.ApprovalRequest, domain.Event, error) {
	if err := requireActor(actor); err != nil {
		return nil, "", err
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return nil, "", errors.InvalidInput("comment", fmt.Sprintf("comment must be at most %d characters", maxCommentLength))
	}

	req, err := s.requests.GetByID(ctx, actor.OrgID, requestID)
	if err != nil {
		return nil, "", err
	}
	seenStatus, seenStep := req.Status, req.CurrentStep

	for attempt := 0; ; attempt++ {
		updated, event, err := s.apply(ctx, actor, req, action, comment)
		if err == nil {
			return updated, event, nil
		}
		if !errors.Is(err, errors.ErrCodeConflict) || attempt >= s.maxRetries {
			return nil, "", err
		}

		s.metrics.IncConflictRetry()
		s.log.Debug().
			Str("request_id", requestID).
			Int("attempt", attempt+1).
			Msg("Approval request changed concurrently; re-reading")

		req, err = s.requests.GetByID(ctx, actor.OrgID, requestID)
		if err != nil {
			return nil, "", err
		}
		if req.Status.IsTerminal() {
			return nil, "", errors.InvalidState("request already finalized")
		}
		if req.Status != seenStatus || req.CurrentStep != seenStep {
			return nil, "", errors.Conflict(fmt.Sprintf(
				"request moved from step %d to step %d while the action was in flight", seenStep, req.CurrentStep))
		}
	}
}

// apply validates and persists one transition against req as read.
func (s *ApprovalService) apply(
	ctx context.Context,
	actor domain.Actor,
	req *domain.ApprovalRequest,
	action domain.Action,
	comment string,
) (*domain.ApprovalRequest, domain.Event, error) {
	if req.Status.IsTerminal() {
		return nil, "", errors.InvalidState("request already finalized")
	}

	step, ok := req.CurrentStepDefinition()
	if !ok {
		return nil, "", errors.New(errors.ErrCodeInternal,
			fmt.Sprintf("request %s has no step %d", req.ID, req.CurrentStep))
	}
	if !s.resolver.CanAct(ctx, actor, step, req.OrgID) {
		return nil, "", errors.NotAuthorized(fmt.Sprintf("actor is not an approver for step %d", req.CurrentStep))
	}

	tr, err := domain.Next(req.Status, req.CurrentStep, req.TotalSteps(), action)
	if err != nil {
		return nil, "", err
	}

	next := req.Clone()
	next.Status = tr.Status
	next.CurrentStep = tr.CurrentStep
	if tr.Status.IsTerminal() {
		completed := s.now()
		next.CompletedAt = &completed
	}

	entry := &domain.HistoryEntry{
		RequestID: req.ID,
		OrgID:     req.OrgID,
		StepOrder: req.CurrentStep,
		ActorID:   actor.ID,
		Action:    action,
		Comment:   comment,
	}
	if err := s.requests.ApplyTransition(ctx, next, req.Version, entry); err != nil {
		return nil, "", err
	}
	return next, tr.Event, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// ListForOrg returns the organization's requests, newest first.
func (s *ApprovalService) ListForOrg(ctx context.Context, actor domain.Actor) ([]*domain.ApprovalRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return s.requests.ListByOrg(ctx, actor.OrgID)
}

// Get returns one request of the actor's organization.
func (s *ApprovalService) Get(ctx context.Context, actor domain.Actor, requestID string) (*domain.ApprovalRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return s.requests.GetByID(ctx, actor.OrgID, requestID)
}

// History returns the request's ledger, oldest first.
func (s *ApprovalService) History(ctx context.Context, actor domain.Actor, requestID string) ([]*domain.HistoryEntry, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if _, err := s.requests.GetByID(ctx, actor.OrgID, requestID); err != nil {
		return nil, err
	}
	return s.history.ListByRequest(ctx, actor.OrgID, requestID)
}

// PendingFor returns the open requests whose current step the actor may act
// on, oldest first.
func (s *ApprovalService) PendingFor(ctx context.Context, actor domain.Actor) ([]*domain.ApprovalRequest, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	open, err := s.requests.ListOpenByOrg(ctx, actor.OrgID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.ApprovalRequest, 0, len(open))
	for _, req := range open {
		step, ok := req.CurrentStepDefinition()
		if ok && s.resolver.CanAct(ctx, actor, step, req.OrgID) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (s *ApprovalService) notify(ctx context.Context, req *domain.ApprovalRequest, event domain.Event, actorID string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, domain.Notification{
		RequestID: req.ID,
		OrgID:     req.OrgID,
		Event:     event,
		ActorID:   actorID,
		Step:      req.CurrentStep,
		Status:    req.Status,
		Timestamp: s.now(),
	})
}

func requireActor(actor domain.Actor) error {
	if actor.ID == "" || actor.OrgID == "" {
		return errors.Unauthenticated("actor identity and organization are required")
	}
	return nil
}
