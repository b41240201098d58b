package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pesio-ai/be-plt-approvals/internal/domain"
	"github.com/pesio-ai/be-plt-approvals/internal/errors"
	"github.com/pesio-ai/be-plt-approvals/internal/ids"
)

// MemoryStore implements WorkflowStore, RequestStore and HistoryLedger in
// process. It is used when no database is configured and in tests. Values are
// copied in and out so callers never share state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*domain.WorkflowDefinition
	requests  map[string]*domain.ApprovalRequest
	history   map[string][]*domain.HistoryEntry
	now       func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*domain.WorkflowDefinition),
		requests:  make(map[string]*domain.ApprovalRequest),
		history:   make(map[string][]*domain.HistoryEntry),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Stores returns the store bundled for service construction.
func (s *MemoryStore) Stores() Stores {
	return Stores{
		Workflows: memoryWorkflows{s},
		Requests:  memoryRequests{s},
		History:   memoryHistory{s},
	}
}

// The three views below exist because the store interfaces share method names.

type memoryWorkflows struct{ s *MemoryStore }
type memoryRequests struct{ s *MemoryStore }
type memoryHistory struct{ s *MemoryStore }

// ── Workflows ─────────────────────────────────────────────────────────────────

func (m memoryWorkflows) Create(ctx context.Context, wf *domain.WorkflowDefinition) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if wf.ID == "" {
		wf.ID = ids.New()
	}
	now := s.now()
	wf.CreatedAt, wf.UpdatedAt = now, now
	cp := *wf
	s.workflows[wf.ID] = &cp
	return nil
}

func (m memoryWorkflows) Update(ctx context.Context, wf *domain.WorkflowDefinition) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.workflows[wf.ID]
	if !ok || existing.OrgID != wf.OrgID {
		return errors.NotFound("workflow_definition", wf.ID)
	}
	wf.CreatedAt = existing.CreatedAt
	wf.CreatedBy = existing.CreatedBy
	wf.UpdatedAt = s.now()
	cp := *wf
	s.workflows[wf.ID] = &cp
	return nil
}

func (m memoryWorkflows) Delete(ctx context.Context, orgID, id string) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.workflows[id]
	if !ok || existing.OrgID != orgID {
		return errors.NotFound("workflow_definition", id)
	}
	for _, req := range s.requests {
		if req.WorkflowID == id {
			return errors.InvalidState("workflow definition is referenced by approval requests")
		}
	}
	delete(s.workflows, id)
	return nil
}

func (m memoryWorkflows) GetByID(ctx context.Context, orgID, id string) (*domain.WorkflowDefinition, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok || wf.OrgID != orgID {
		return nil, errors.NotFound("workflow_definition", id)
	}
	cp := *wf
	return &cp, nil
}

func (m memoryWorkflows) List(ctx context.Context, orgID string) ([]*domain.WorkflowDefinition, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.WorkflowDefinition
	for _, wf := range s.workflows {
		if wf.OrgID == orgID {
			cp := *wf
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ── Requests ──────────────────────────────────────────────────────────────────

func (m memoryRequests) Create(ctx context.Context, req *domain.ApprovalRequest) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = ids.New()
	}
	now := s.now()
	req.CreatedAt, req.UpdatedAt = now, now
	req.Version = 1
	s.requests[req.ID] = req.Clone()
	return nil
}

func (m memoryRequests) GetByID(ctx context.Context, orgID, id string) (*domain.ApprovalRequest, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok || req.OrgID != orgID {
		return nil, errors.NotFound("approval_request", id)
	}
	return req.Clone(), nil
}

func (m memoryRequests) ListByOrg(ctx context.Context, orgID string) ([]*domain.ApprovalRequest, error) {
	out := m.filter(orgID, func(*domain.ApprovalRequest) bool { return true })
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out, nil
}

func (m memoryRequests) ListOpenByOrg(ctx context.Context, orgID string) ([]*domain.ApprovalRequest, error) {
	out := m.filter(orgID, func(r *domain.ApprovalRequest) bool { return !r.Status.IsTerminal() })
	sort.Slice(out, func(i, j int) bool { return newer(out[j], out[i]) })
	return out, nil
}

func (m memoryRequests) CountByWorkflow(ctx context.Context, orgID, workflowID string) (int, error) {
	return len(m.filter(orgID, func(r *domain.ApprovalRequest) bool { return r.WorkflowID == workflowID })), nil
}

func (m memoryRequests) ApplyTransition(ctx context.Context, req *domain.ApprovalRequest, expectedVersion int, entry *domain.HistoryEntry) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.requests[req.ID]
	if !ok || stored.OrgID != req.OrgID {
		return errors.NotFound("approval_request", req.ID)
	}
	if stored.Version != expectedVersion {
		return errors.Conflict("approval request was modified concurrently")
	}

	now := s.now()
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	entry.CreatedAt = now
	e := *entry
	s.history[req.ID] = append(s.history[req.ID], &e)

	stored.Status = req.Status
	stored.CurrentStep = req.CurrentStep
	stored.CompletedAt = nil
	if req.CompletedAt != nil {
		t := *req.CompletedAt
		stored.CompletedAt = &t
	}
	stored.Version = expectedVersion + 1
	stored.UpdatedAt = now

	req.Version = stored.Version
	req.UpdatedAt = now
	return nil
}

func (m memoryRequests) filter(orgID string, keep func(*domain.ApprovalRequest) bool) []*domain.ApprovalRequest {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ApprovalRequest
	for _, req := range s.requests {
		if req.OrgID == orgID && keep(req) {
			out = append(out, req.Clone())
		}
	}
	return out
}

// newer orders by creation time, breaking ties on the monotonic id.
func newer(a, b *domain.ApprovalRequest) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// ── History ───────────────────────────────────────────────────────────────────

func (m memoryHistory) ListByRequest(ctx context.Context, orgID, requestID string) ([]*domain.HistoryEntry, error) {
	s := m.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.history[requestID]
	out := make([]*domain.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.OrgID != orgID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}
