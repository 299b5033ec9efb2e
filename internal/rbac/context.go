package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

// Context is the per-session security context of one actor inside one
// organization. It is never shared across organizations.
type Context struct {
	mu          sync.Mutex
	actorID     uuid.UUID
	orgID       uuid.UUID
	role        Role
	perms       permissionSet
	masks       map[ResourceType][]string
	issuedAt    time.Time
	expiresAt   time.Time
	maxLifetime time.Duration
	state       State
	trail       *AuditTrail
	now         func() time.Time
}

// ActorID returns the acting principal.
func (c *Context) ActorID() uuid.UUID { return c.actorID }

// OrganizationID returns the tenant the context is bound to.
func (c *Context) OrganizationID() uuid.UUID { return c.orgID }

// Role returns the resolved role.
func (c *Context) Role() Role { return c.role }

// ExpiresAt returns the current session expiry.
func (c *Context) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiresAt
}

// Permissions returns the sorted permission names granted to the role.
func (c *Context) Permissions() []string {
	out := c.perms.list()
	sort.Strings(out)
	return out
}

// State reports the lifecycle state, moving Active to Expired once the
// expiry has passed.
func (c *Context) State() State {
	if c == nil {
		return StateUninitialized
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked()
}

func (c *Context) refreshLocked() State {
	if c.state == StateActive && c.now().After(c.expiresAt) {
		c.state = StateExpired
	}
	return c.state
}

// Active reports whether the context may authorize operations.
func (c *Context) Active() bool {
	return c.State() == StateActive
}

// HasPermission is true when the role grants perm or the wildcard "all".
func (c *Context) HasPermission(perm string) bool {
	return c.Active() && c.perms.has(perm)
}

// HasAny is true when at least one of perms is granted.
func (c *Context) HasAny(perms ...string) bool {
	return c.Active() && c.perms.hasAny(normalizePermissions(perms))
}

// HasAll is true when every perm is granted.
func (c *Context) HasAll(perms ...string) bool {
	return c.Active() && c.perms.hasAll(normalizePermissions(perms))
}

// Authorize checks session state, the organization boundary and the
// permission, in that order. Every denial is audited.
func (c *Context) Authorize(ctx context.Context, orgID uuid.UUID, perm, resource string) error {
	if err := c.checkSession(ctx, perm, resource); err != nil {
		return err
	}
	if err := c.EnsureOrganization(ctx, orgID, perm, resource); err != nil {
		return err
	}
	if !c.perms.has(perm) {
		reason := fmt.Sprintf("role %s lacks %s", c.role, perm)
		c.Audit(ctx, perm, resource, shared.AuditDenied, reason, nil)
		return &shared.Error{Kind: shared.KindPermissionDenied, Reason: reason}
	}
	return nil
}

// EnsureOrganization fails when orgID is not the context's organization. No
// role bypasses this check.
func (c *Context) EnsureOrganization(ctx context.Context, orgID uuid.UUID, action, resource string) error {
	if orgID == c.orgID {
		return nil
	}
	reason := fmt.Sprintf("organization %s is outside session organization %s", orgID, c.orgID)
	c.Audit(ctx, action, resource, shared.AuditDenied, reason, map[string]any{"requested_organization": orgID.String()})
	return &shared.Error{Kind: shared.KindOrganizationBoundaryViolation, Reason: reason}
}

func (c *Context) checkSession(ctx context.Context, action, resource string) error {
	state := c.State()
	if state == StateActive {
		return nil
	}
	reason := fmt.Sprintf("session is %s", state)
	c.Audit(ctx, action, resource, shared.AuditDenied, reason, nil)
	return &shared.Error{Kind: shared.KindSessionExpired, Reason: reason}
}

// AuthorizeView decides what the actor may do with a resource and which
// fields must be masked. A resource in another organization is denied with
// every field masked regardless of role.
func (c *Context) AuthorizeView(ctx context.Context, resourceOrgID uuid.UUID, cfg ResourceConfig) ViewDecision {
	resource := string(cfg.Type)
	if cfg.ResourceID != "" {
		resource += ":" + cfg.ResourceID
	}
	denied := ViewDecision{MaskedFields: []string{MaskAll}, AuditRequired: true}
	if err := c.checkSession(ctx, "view", resource); err != nil {
		return denied
	}
	if err := c.EnsureOrganization(ctx, resourceOrgID, "view", resource); err != nil {
		return denied
	}
	decision := ViewDecision{
		CanView:       c.perms.has(resourcePerm(cfg.Type, shared.ActionView)),
		CanEdit:       c.perms.has(resourcePerm(cfg.Type, shared.ActionEdit)),
		CanExport:     c.perms.has(resourcePerm(cfg.Type, shared.ActionExport)),
		CanDelete:     c.perms.has(resourcePerm(cfg.Type, shared.ActionDelete)),
		AuditRequired: cfg.Sensitive || cfg.Type == ResourceFinancial || cfg.Type == ResourceEmployee,
	}
	if !decision.CanView {
		decision.MaskedFields = []string{MaskAll}
		decision.AuditRequired = true
		c.Audit(ctx, "view", resource, shared.AuditDenied, fmt.Sprintf("role %s cannot view %s", c.role, cfg.Type), nil)
		return decision
	}
	masked := c.masks[cfg.Type]
	decision.MaskedFields = append(make([]string, 0, len(masked)), masked...)
	if decision.AuditRequired {
		c.Audit(ctx, "view", resource, shared.AuditAllowed, "", map[string]any{"masked_fields": decision.MaskedFields})
	}
	return decision
}

// Audit appends an event attributed to this context.
func (c *Context) Audit(ctx context.Context, action, resource, result, reason string, meta map[string]any) {
	if c == nil || c.trail == nil {
		return
	}
	c.trail.Append(ctx, shared.AuditLog{
		At:             c.now().UTC(),
		ActorID:        c.actorID,
		OrganizationID: c.orgID,
		Action:         action,
		Resource:       resource,
		Result:         result,
		Reason:         reason,
		Meta:           meta,
	})
}

// ExtendSession pushes the expiry out by d. The total session lifetime may
// never exceed the configured ceiling.
func (c *Context) ExtendSession(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return shared.Errorf(shared.KindValidation, "extension must be positive, got %s", d)
	}
	c.mu.Lock()
	state := c.refreshLocked()
	if state != StateActive {
		c.mu.Unlock()
		return shared.Errorf(shared.KindSessionExpired, "session is %s", state)
	}
	next := c.expiresAt.Add(d)
	if next.Sub(c.issuedAt) > c.maxLifetime {
		c.mu.Unlock()
		return shared.Errorf(shared.KindValidation, "session lifetime would exceed %s", c.maxLifetime)
	}
	c.expiresAt = next
	c.mu.Unlock()
	c.Audit(ctx, "session.extend", "session", shared.AuditAllowed, "", map[string]any{"expires_at": next})
	return nil
}

// Invalidate ends the session. Invalidated is terminal.
func (c *Context) Invalidate(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateInvalidated {
		c.mu.Unlock()
		return
	}
	c.state = StateInvalidated
	c.mu.Unlock()
	c.Audit(ctx, "session.invalidate", "session", shared.AuditAllowed, "", nil)
}

type (
	securityContextKey struct{}
	auditTrailKey      struct{}
)

// WithAuditTrail stores the trail that records denials raised before any
// security context exists.
func WithAuditTrail(ctx context.Context, trail *AuditTrail) context.Context {
	return context.WithValue(ctx, auditTrailKey{}, trail)
}

func trailFromContext(ctx context.Context) *AuditTrail {
	trail, _ := ctx.Value(auditTrailKey{}).(*AuditTrail)
	return trail
}

// WithSecurity stores the security context in ctx.
func WithSecurity(ctx context.Context, sc *Context) context.Context {
	return context.WithValue(ctx, securityContextKey{}, sc)
}

// FromContext extracts the security context from ctx.
func FromContext(ctx context.Context) *Context {
	sc, _ := ctx.Value(securityContextKey{}).(*Context)
	return sc
}

// Require loads the security context from ctx and authorizes perm against orgID.
func Require(ctx context.Context, orgID uuid.UUID, perm, resource string) (*Context, error) {
	sc := FromContext(ctx)
	if sc == nil {
		reason := "no security context"
		trailFromContext(ctx).Append(ctx, shared.AuditLog{
			OrganizationID: orgID,
			Action:         perm,
			Resource:       resource,
			Result:         shared.AuditDenied,
			Reason:         reason,
		})
		return nil, shared.Errorf(shared.KindPermissionDenied, "%s for %s", reason, perm)
	}
	if err := sc.Authorize(ctx, orgID, perm, resource); err != nil {
		return nil, err
	}
	return sc, nil
}
