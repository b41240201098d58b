// Package approver decides whether an actor may act on a workflow step.
package approver

import (
	"context"

	"github.com/pesio-ai/be-plt-approvals/internal/domain"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
)

// Directory looks up an actor's membership in an organization.
type Directory interface {
	Lookup(ctx context.Context, orgID string, actor domain.Actor) (domain.Membership, error)
}

// ClaimsDirectory trusts the membership carried by the authenticated actor.
type ClaimsDirectory struct{}

func (ClaimsDirectory) Lookup(_ context.Context, _ string, actor domain.Actor) (domain.Membership, error) {
	return actor.Membership(), nil
}

// Resolver is the approver-resolution predicate. It never returns an error:
// any directory failure denies.
type Resolver struct {
	dir Directory
	log *logger.Logger
}

// NewResolver creates a Resolver over dir.
func NewResolver(dir Directory, log *logger.Logger) *Resolver {
	return &Resolver{dir: dir, log: log}
}

// CanAct reports whether actor satisfies step's approver within orgID.
func (r *Resolver) CanAct(ctx context.Context, actor domain.Actor, step domain.Step, orgID string) bool {
	if step.Approver == nil {
		return false
	}
	m, ok := r.membership(ctx, actor, orgID)
	if !ok {
		return false
	}
	return step.Approver.Matches(m)
}

// IsAdmin reports whether actor holds the administrator capability in orgID.
func (r *Resolver) IsAdmin(ctx context.Context, actor domain.Actor, orgID string) bool {
	m, ok := r.membership(ctx, actor, orgID)
	return ok && m.Admin
}

func (r *Resolver) membership(ctx context.Context, actor domain.Actor, orgID string) (domain.Membership, bool) {
	if actor.ID == "" || orgID == "" || actor.OrgID != orgID {
		return domain.Membership{}, false
	}
	m, err := r.dir.Lookup(ctx, orgID, actor)
	if err != nil {
		r.log.Warn().Err(err).
			Str("actor_id", actor.ID).
			Str("org_id", orgID).
			Msg("Membership lookup failed; denying")
		return domain.Membership{}, false
	}
	if m.ActorID == "" {
		m.ActorID = actor.ID
	}
	if m.ActorID != actor.ID {
		return domain.Membership{}, false
	}
	return m, true
}
