package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pesio-ai/be-plt-approvals/internal/approver"
	"github.com/pesio-ai/be-plt-approvals/internal/domain"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

const maxWorkflowNameLength = 120

// WorkflowInput carries the editable fields of a workflow definition.
type WorkflowInput struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Steps       []domain.StepSpec `json:"steps"`
}

// WorkflowService manages workflow definitions. Reads are open to every
// member of the organization; writes require the administrator capability.
type WorkflowService struct {
	workflows repository.WorkflowStore
	requests  repository.RequestStore
	resolver  *approver.Resolver
	log       *logger.Logger
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(stores repository.Stores, resolver *approver.Resolver, log *logger.Logger) *WorkflowService {
	return &WorkflowService{
		workflows: stores.Workflows,
		requests:  stores.Requests,
		resolver:  resolver,
		log:       log,
	}
}

// Create stores a new definition owned by the actor's organization.
func (s *WorkflowService) Create(ctx context.Context, actor domain.Actor, in WorkflowInput) (*domain.WorkflowDefinition, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	name, steps, err := validateWorkflow(in)
	if err != nil {
		return nil, err
	}

	wf := &domain.WorkflowDefinition{
		OrgID:       actor.OrgID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Steps:       steps,
		CreatedBy:   actor.ID,
	}
	if err := s.workflows.Create(ctx, wf); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("workflow_id", wf.ID).
		Str("org_id", wf.OrgID).
		Int("steps", wf.Steps.Len()).
		Msg("Workflow definition created")
	return wf, nil
}

// List returns the organization's definitions ordered by name.
func (s *WorkflowService) List(ctx context.Context, actor domain.Actor) ([]*domain.WorkflowDefinition, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return s.workflows.List(ctx, actor.OrgID)
}

func (s *WorkflowService) Get(ctx context.Context, actor domain.Actor, id string) (*domain.WorkflowDefinition, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	return s.workflows.GetByID(ctx, actor.OrgID, id)
}

// Update replaces a definition's name, description and steps. Requests
// already submitted keep the steps they were created with.
func (s *WorkflowService) Update(ctx context.Context, actor domain.Actor, id string, in WorkflowInput) (*domain.WorkflowDefinition, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	name, steps, err := validateWorkflow(in)
	if err != nil {
		return nil, err
	}

	wf, err := s.workflows.GetByID(ctx, actor.OrgID, id)
	if err != nil {
		return nil, err
	}
	wf.Name = name
	wf.Description = strings.TrimSpace(in.Description)
	wf.Steps = steps
	if err := s.workflows.Update(ctx, wf); err != nil {
		return nil, err
	}

	s.log.Info().Str("workflow_id", wf.ID).Str("org_id", wf.OrgID).Msg("Workflow definition updated")
	return wf, nil
}

// Delete removes a definition no request refers to.
func (s *WorkflowService) Delete(ctx context.Context, actor domain.Actor, id string) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}
	if _, err := s.workflows.GetByID(ctx, actor.OrgID, id); err != nil {
		return err
	}
	n, err := s.requests.CountByWorkflow(ctx, actor.OrgID, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return errors.InvalidState(fmt.Sprintf("workflow definition is referenced by %d approval requests", n))
	}
	if err := s.workflows.Delete(ctx, actor.OrgID, id); err != nil {
		return err
	}

	s.log.Info().Str("workflow_id", id).Str("org_id", actor.OrgID).Msg("Workflow definition deleted")
	return nil
}

func (s *WorkflowService) requireAdmin(ctx context.Context, actor domain.Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !s.resolver.IsAdmin(ctx, actor, actor.OrgID) {
		return errors.Forbidden("managing workflow definitions requires the administrator role")
	}
	return nil
}

func validateWorkflow(in WorkflowInput) (string, domain.Steps, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", domain.Steps{}, errors.InvalidInput("name", "name is required")
	}
	if utf8.RuneCountInString(name) > maxWorkflowNameLength {
		return "", domain.Steps{}, errors.InvalidInput("name",
			fmt.Sprintf("name must be at most %d characters", maxWorkflowNameLength))
	}
	steps, err := domain.NewSteps(in.Steps)
	if err != nil {
		return "", domain.Steps{}, err
	}
	return name, steps, nil
}
