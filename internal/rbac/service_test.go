package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

type stubRoles struct {
	assigned map[uuid.UUID][]string
	err      error
}

func (s stubRoles) RoleAssignments(ctx context.Context, orgID, actorID uuid.UUID) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.assigned[actorID], nil
}

type memorySink struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (m *memorySink) Record(ctx context.Context, log shared.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc   *Service
	sink  *memorySink
	clock *fixedClock
	orgA  uuid.UUID
	orgB  uuid.UUID
}

func newFixture(t *testing.T, assigned map[uuid.UUID][]string) fixture {
	t.Helper()
	sink := &memorySink{}
	clock := &fixedClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	trail := NewAuditTrail(100, sink, nil)
	trail.WithNow(clock.Now)
	svc := NewService(stubRoles{assigned: assigned}, trail, Options{SessionTTL: 8 * time.Hour, MaxLifetime: 24 * time.Hour}, nil)
	svc.WithNow(clock.Now)
	return fixture{svc: svc, sink: sink, clock: clock, orgA: uuid.New(), orgB: uuid.New()}
}

func TestResolveRolePicksHighestPrecedence(t *testing.T) {
	actor := uuid.New()
	f := newFixture(t, map[uuid.UUID][]string{actor: {"viewer", "Analyst", "manager", "bogus"}})
	role, err := f.svc.ResolveRole(context.Background(), actor, f.orgA)
	require.NoError(t, err)
	assert.Equal(t, RoleManager, role)
}

func TestResolveRoleDefaultsToViewer(t *testing.T) {
	f := newFixture(t, nil)
	role, err := f.svc.ResolveRole(context.Background(), uuid.New(), f.orgA)
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, role)

	f.svc.roles = stubRoles{err: errors.New("db down")}
	_, err = f.svc.ResolveRole(context.Background(), uuid.New(), f.orgA)
	assert.True(t, shared.Retryable(err))
}

func TestHasPermissionHonoursWildcard(t *testing.T) {
	admin, viewer := uuid.New(), uuid.New()
	f := newFixture(t, map[uuid.UUID][]string{admin: {"admin"}})
	ctx := context.Background()

	adminCtx, err := f.svc.Establish(ctx, admin, f.orgA)
	require.NoError(t, err)
	assert.True(t, adminCtx.HasPermission(shared.PermTransactionsPost))
	assert.True(t, adminCtx.HasPermission("anything.at.all"))

	viewerCtx, err := f.svc.Establish(ctx, viewer, f.orgA)
	require.NoError(t, err)
	assert.True(t, viewerCtx.HasPermission(shared.PermEntitiesRead))
	assert.False(t, viewerCtx.HasPermission(shared.PermEntitiesWrite))
	assert.True(t, viewerCtx.HasAny(shared.PermEntitiesWrite, shared.PermEntitiesRead))
	assert.False(t, viewerCtx.HasAll(shared.PermEntitiesWrite, shared.PermEntitiesRead))
}

func TestAuthorizeViewViewerOnFinancial(t *testing.T) {
	f := newFixture(t, nil)
	sc, err := f.svc.Establish(context.Background(), uuid.New(), f.orgA)
	require.NoError(t, err)

	decision := sc.AuthorizeView(context.Background(), f.orgA, ResourceConfig{Type: ResourceFinancial})
	assert.True(t, decision.CanView)
	assert.False(t, decision.CanExport)
	assert.False(t, decision.CanEdit)
	assert.False(t, decision.CanDelete)
	assert.Contains(t, decision.MaskedFields, "detailed_breakdown")
	assert.True(t, decision.AuditRequired)
}

func TestAuthorizeViewMasksByRole(t *testing.T) {
	analyst, auditor := uuid.New(), uuid.New()
	f := newFixture(t, map[uuid.UUID][]string{analyst: {"analyst"}, auditor: {"auditor"}})
	ctx := context.Background()

	a, err := f.svc.Establish(ctx, analyst, f.orgA)
	require.NoError(t, err)
	d := a.AuthorizeView(ctx, f.orgA, ResourceConfig{Type: ResourceFinancial})
	assert.True(t, d.CanExport)
	assert.Equal(t, []string{"customer_specific_data"}, d.MaskedFields)

	au, err := f.svc.Establish(ctx, auditor, f.orgA)
	require.NoError(t, err)
	d = au.AuthorizeView(ctx, f.orgA, ResourceConfig{Type: ResourceFinancial})
	assert.Contains(t, d.MaskedFields, "personal_identifiers")
}

func TestAuthorizeViewCrossOrganizationDeniedForEveryRole(t *testing.T) {
	actors := map[uuid.UUID][]string{}
	for _, role := range precedence {
		actors[uuid.New()] = []string{string(role)}
	}
	f := newFixture(t, actors)
	ctx := context.Background()
	for actor := range actors {
		sc, err := f.svc.Establish(ctx, actor, f.orgA)
		require.NoError(t, err)
		d := sc.AuthorizeView(ctx, f.orgB, ResourceConfig{Type: ResourceFinancial})
		assert.False(t, d.CanView, sc.Role())
		assert.False(t, d.CanEdit)
		assert.False(t, d.CanExport)
		assert.False(t, d.CanDelete)
		assert.Equal(t, []string{MaskAll}, d.MaskedFields)
	}
	denied := 0
	for _, log := range f.sink.logs {
		if log.Result == shared.AuditDenied {
			denied++
		}
	}
	assert.Equal(t, len(actors), denied)
}

func TestAuthorizeBoundaryAndPermission(t *testing.T) {
	admin := uuid.New()
	f := newFixture(t, map[uuid.UUID][]string{admin: {"admin"}})
	ctx := context.Background()
	sc, err := f.svc.Establish(ctx, admin, f.orgA)
	require.NoError(t, err)

	err = sc.Authorize(ctx, f.orgB, shared.PermEntitiesWrite, "entity")
	assert.ErrorIs(t, err, shared.ErrOrganizationBoundaryViolation)

	viewer, err := f.svc.Establish(ctx, uuid.New(), f.orgA)
	require.NoError(t, err)
	err = viewer.Authorize(ctx, f.orgA, shared.PermEntitiesWrite, "entity")
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	assert.NotEmpty(t, shared.Reason(err))

	last := f.sink.logs[len(f.sink.logs)-1]
	assert.Equal(t, shared.AuditDenied, last.Result)
	assert.Equal(t, shared.PermEntitiesWrite, last.Action)
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sc, err := f.svc.Establish(ctx, uuid.New(), f.orgA)
	require.NoError(t, err)
	assert.Equal(t, StateActive, sc.State())

	require.NoError(t, sc.ExtendSession(ctx, 8*time.Hour))
	err = sc.ExtendSession(ctx, 9*time.Hour)
	assert.ErrorIs(t, err, shared.ErrValidation)

	f.clock.Advance(17 * time.Hour)
	assert.Equal(t, StateExpired, sc.State())
	assert.False(t, sc.HasPermission(shared.PermEntitiesRead))
	err = sc.Authorize(ctx, f.orgA, shared.PermEntitiesRead, "entity")
	assert.ErrorIs(t, err, shared.ErrSessionExpired)
	assert.ErrorIs(t, sc.ExtendSession(ctx, time.Hour), shared.ErrSessionExpired)
}

func TestInvalidateIsTerminal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sc, err := f.svc.Establish(ctx, uuid.New(), f.orgA)
	require.NoError(t, err)
	sc.Invalidate(ctx)
	assert.Equal(t, StateInvalidated, sc.State())
	f.clock.Advance(48 * time.Hour)
	assert.Equal(t, StateInvalidated, sc.State())
}

func TestRequireWithoutContextDenies(t *testing.T) {
	_, err := Require(context.Background(), uuid.New(), shared.PermEntitiesRead, "entity")
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)

	f := newFixture(t, nil)
	_, err = Require(f.svc.Bind(context.Background()), f.orgA, shared.PermEntitiesWrite, "entity:widget")
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	require.Len(t, f.sink.logs, 1)
	denied := f.sink.logs[0]
	assert.Equal(t, shared.AuditDenied, denied.Result)
	assert.Equal(t, shared.PermEntitiesWrite, denied.Action)
	assert.Equal(t, "entity:widget", denied.Resource)
	assert.Equal(t, f.orgA, denied.OrganizationID)
	assert.Equal(t, uuid.Nil, denied.ActorID)
	assert.Equal(t, "no security context", denied.Reason)
	assert.Equal(t, 1, f.svc.Trail().Len())

	sc, err := f.svc.Establish(context.Background(), uuid.New(), f.orgA)
	require.NoError(t, err)
	ctx := WithSecurity(context.Background(), sc)
	got, err := Require(ctx, f.orgA, shared.PermEntitiesRead, "entity")
	require.NoError(t, err)
	assert.Same(t, sc, got)
}
