// Package rbactest builds security contexts for tests in other packages.
package rbactest

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/heraerp/heraerp-prd-sub081/internal/rbac"
	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

type fixedRoles map[uuid.UUID][]string

func (f fixedRoles) RoleAssignments(ctx context.Context, orgID, actorID uuid.UUID) ([]string, error) {
	return f[actorID], nil
}

// Sink collects audit events in memory.
type Sink struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

// Record implements rbac.AuditSink.
func (s *Sink) Record(ctx context.Context, log shared.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return nil
}

// Actions returns the recorded actions in order.
func (s *Sink) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.logs))
	for _, l := range s.logs {
		out = append(out, l.Action)
	}
	return out
}

// Logs returns a copy of the recorded events.
func (s *Sink) Logs() []shared.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shared.AuditLog(nil), s.logs...)
}

// WithRole returns ctx carrying an active security context for a fresh actor
// holding role inside orgID, plus the sink receiving its audit events.
func WithRole(t testing.TB, ctx context.Context, orgID uuid.UUID, role rbac.Role) (context.Context, *Sink) {
	t.Helper()
	actor := uuid.New()
	sink := &Sink{}
	svc := rbac.NewService(fixedRoles{actor: {string(role)}}, rbac.NewAuditTrail(100, sink, nil), rbac.Options{}, nil)
	sc, err := svc.Establish(ctx, actor, orgID)
	if err != nil {
		t.Fatalf("establish security context: %v", err)
	}
	return rbac.WithSecurity(ctx, sc), sink
}
