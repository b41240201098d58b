package approver

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-plt-approvals/internal/domain"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
)

type stubDirectory struct {
	members map[string]domain.Membership
	err     error
	calls   atomic.Int32
}

func (s *stubDirectory) Lookup(_ context.Context, _ string, actor domain.Actor) (domain.Membership, error) {
	s.calls.Add(1)
	if s.err != nil {
		return domain.Membership{}, s.err
	}
	m, ok := s.members[actor.ID]
	if !ok {
		return domain.Membership{}, stderrors.New("unknown member")
	}
	return m, nil
}

func step(t domain.ApproverType, v string) domain.Step {
	a, err := domain.NewApprover(t, v)
	if err != nil {
		panic(err)
	}
	return domain.Step{Order: 1, Approver: a, Required: true}
}

func TestResolverWithClaims(t *testing.T) {
	r := NewResolver(ClaimsDirectory{}, logger.Nop())
	ctx := context.Background()
	actor := domain.Actor{ID: "u-1", OrgID: "org-1", Role: "manager", Departments: []string{"finance"}}

	assert.True(t, r.CanAct(ctx, actor, step(domain.ApproverRole, "manager"), "org-1"))
	assert.False(t, r.CanAct(ctx, actor, step(domain.ApproverRole, "admin"), "org-1"))
	assert.True(t, r.CanAct(ctx, actor, step(domain.ApproverDepartment, "finance"), "org-1"))
	assert.False(t, r.CanAct(ctx, actor, step(domain.ApproverDepartment, "legal"), "org-1"))
	assert.True(t, r.CanAct(ctx, actor, step(domain.ApproverUser, "u-1"), "org-1"))
	assert.False(t, r.CanAct(ctx, actor, step(domain.ApproverUser, "u-2"), "org-1"))
}

func TestResolverDeniesAcrossOrganizations(t *testing.T) {
	r := NewResolver(ClaimsDirectory{}, logger.Nop())
	actor := domain.Actor{ID: "u-1", OrgID: "org-1", Role: "manager"}

	assert.False(t, r.CanAct(context.Background(), actor, step(domain.ApproverRole, "manager"), "org-2"))
	assert.False(t, r.CanAct(context.Background(), domain.Actor{OrgID: "org-1", Role: "manager"}, step(domain.ApproverRole, "manager"), "org-1"))
}

func TestResolverDeniesWhenDirectoryUnavailable(t *testing.T) {
	dir := &stubDirectory{err: stderrors.New("identity service unavailable")}
	r := NewResolver(dir, logger.Nop())
	actor := domain.Actor{ID: "u-1", OrgID: "org-1", Role: "manager", Admin: true}

	assert.False(t, r.CanAct(context.Background(), actor, step(domain.ApproverRole, "manager"), "org-1"))
	assert.False(t, r.IsAdmin(context.Background(), actor, "org-1"))
}

func TestResolverUsesDirectoryOverClaims(t *testing.T) {
	dir := &stubDirectory{members: map[string]domain.Membership{
		"u-1": {ActorID: "u-1", Role: "admin", Admin: true},
	}}
	r := NewResolver(dir, logger.Nop())
	actor := domain.Actor{ID: "u-1", OrgID: "org-1", Role: "manager"}

	assert.False(t, r.CanAct(context.Background(), actor, step(domain.ApproverRole, "manager"), "org-1"))
	assert.True(t, r.CanAct(context.Background(), actor, step(domain.ApproverRole, "admin"), "org-1"))
	assert.True(t, r.IsAdmin(context.Background(), actor, "org-1"))
}

func TestResolverRejectsMismatchedMembership(t *testing.T) {
	dir := &stubDirectory{members: map[string]domain.Membership{
		"u-1": {ActorID: "someone-else", Role: "manager"},
	}}
	r := NewResolver(dir, logger.Nop())
	actor := domain.Actor{ID: "u-1", OrgID: "org-1"}

	assert.False(t, r.CanAct(context.Background(), actor, step(domain.ApproverRole, "manager"), "org-1"))
}

func TestCachedDirectoryReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	inner := &stubDirectory{members: map[string]domain.Membership{
		"u-1": {ActorID: "u-1", Role: "manager", Departments: []string{"ops"}},
	}}
	dir := NewCachedDirectory(inner, client, time.Minute, logger.Nop())
	ctx := context.Background()
	actor := domain.Actor{ID: "u-1", OrgID: "org-1"}

	m, err := dir.Lookup(ctx, "org-1", actor)
	require.NoError(t, err)
	assert.Equal(t, "manager", m.Role)
	assert.True(t, mr.Exists("approvals:membership:org-1:u-1"))

	m, err = dir.Lookup(ctx, "org-1", actor)
	require.NoError(t, err)
	assert.Equal(t, []string{"ops"}, m.Departments)
	assert.Equal(t, int32(1), inner.calls.Load())

	mr.FastForward(2 * time.Minute)
	_, err = dir.Lookup(ctx, "org-1", actor)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())

	require.NoError(t, dir.Invalidate(ctx, "org-1", "u-1"))
	assert.False(t, mr.Exists("approvals:membership:org-1:u-1"))
}

func TestCachedDirectoryFallsThroughWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	inner := &stubDirectory{members: map[string]domain.Membership{"u-1": {ActorID: "u-1", Role: "manager"}}}
	dir := NewCachedDirectory(inner, client, time.Minute, logger.Nop())
	mr.Close()

	m, err := dir.Lookup(context.Background(), "org-1", domain.Actor{ID: "u-1", OrgID: "org-1"})
	require.NoError(t, err)
	assert.Equal(t, "manager", m.Role)
}

func TestCachedDirectoryPropagatesInnerError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	inner := &stubDirectory{err: stderrors.New("down")}
	dir := NewCachedDirectory(inner, client, time.Minute, logger.Nop())

	_, err := dir.Lookup(context.Background(), "org-1", domain.Actor{ID: "u-1", OrgID: "org-1"})
	assert.Error(t, err)
	assert.False(t, mr.Exists("approvals:membership:org-1:u-1"))
}
