package rbac

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

// RoleSource lists the role names assigned to an actor inside an
// organization. Assignments are stored as has_role relationships.
type RoleSource interface {
	RoleAssignments(ctx context.Context, orgID, actorID uuid.UUID) ([]string, error)
}

// Service resolves roles and issues security contexts.
type Service struct {
	roles  RoleSource
	trail  *AuditTrail
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the RBAC service.
func NewService(roles RoleSource, trail *AuditTrail, opts Options, logger *slog.Logger) *Service {
	return &Service{roles: roles, trail: trail, opts: opts.withDefaults(), logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Trail exposes the audit buffer.
func (s *Service) Trail() *AuditTrail {
	return s.trail
}

// Bind returns ctx carrying the service's audit trail, so a Require call
// that finds no security context is still audited.
func (s *Service) Bind(ctx context.Context) context.Context {
	return WithAuditTrail(ctx, s.trail)
}

// ResolveRole returns the highest-privilege role assigned to the actor in the
// organization, or viewer when there is none.
func (s *Service) ResolveRole(ctx context.Context, actorID, orgID uuid.UUID) (Role, error) {
	if s.roles == nil {
		return RoleViewer, nil
	}
	assigned, err := s.roles.RoleAssignments(ctx, orgID, actorID)
	if err != nil {
		return "", shared.WrapPersistence("rbac: role assignments", err)
	}
	return HighestRole(assigned), nil
}

// Establish resolves the actor's role and returns an Active context bound to
// the organization.
func (s *Service) Establish(ctx context.Context, actorID, orgID uuid.UUID) (*Context, error) {
	if actorID == uuid.Nil || orgID == uuid.Nil {
		return nil, shared.Errorf(shared.KindValidation, "actor and organization are required")
	}
	role, err := s.ResolveRole(ctx, actorID, orgID)
	if err != nil {
		return nil, err
	}
	issued := s.now()
	sc := &Context{
		actorID:     actorID,
		orgID:       orgID,
		role:        role,
		perms:       newPermissionSet(s.opts.PermissionTable[role]),
		masks:       s.opts.MaskTable[role],
		issuedAt:    issued,
		expiresAt:   issued.Add(s.opts.SessionTTL),
		maxLifetime: s.opts.MaxLifetime,
		state:       StateActive,
		trail:       s.trail,
		now:         s.now,
	}
	sc.Audit(ctx, "session.establish", "session", shared.AuditAllowed, "", map[string]any{"role": string(role)})
	if s.logger != nil {
		s.logger.Debug("security context established",
			slog.String("actor", actorID.String()),
			slog.String("organization", orgID.String()),
			slog.String("role", string(role)))
	}
	return sc, nil
}
