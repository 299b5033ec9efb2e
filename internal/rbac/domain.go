package rbac

import (
	"strings"
	"time"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

// Role is a named permission grouping scoped to one organization.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleAnalyst Role = "analyst"
	RoleAuditor Role = "auditor"
	RoleViewer  Role = "viewer"
)

// precedence orders roles from highest to lowest privilege.
var precedence = []Role{RoleAdmin, RoleManager, RoleAnalyst, RoleAuditor, RoleViewer}

// Rank returns the privilege rank of a role; lower is more privileged. Unknown
// roles rank below viewer.
func (r Role) Rank() int {
	for i, p := range precedence {
		if p == r {
			return i
		}
	}
	return len(precedence)
}

// Valid reports whether the role is part of the fixed vocabulary.
func (r Role) Valid() bool {
	return r.Rank() < len(precedence)
}

// ParseRole normalises a stored role name.
func ParseRole(name string) Role {
	return Role(strings.ToLower(strings.TrimSpace(name)))
}

// HighestRole picks the most privileged valid role from the assigned names,
// defaulting to viewer when none is valid.
func HighestRole(assigned []string) Role {
	best := RoleViewer
	for _, name := range assigned {
		role := ParseRole(name)
		if role.Valid() && role.Rank() < best.Rank() {
			best = role
		}
	}
	return best
}

// ResourceType classifies resources for view authorization and masking.
type ResourceType string

const (
	ResourceFinancial   ResourceType = "financial"
	ResourceCustomer    ResourceType = "customer"
	ResourceEmployee    ResourceType = "employee"
	ResourceProduct     ResourceType = "product"
	ResourceOperational ResourceType = "operational"
)

// ResourceConfig describes the resource a view decision is made for.
type ResourceConfig struct {
	Type       ResourceType
	ResourceID string
	Sensitive  bool
}

// ViewDecision is the outcome of AuthorizeView.
type ViewDecision struct {
	CanView       bool     `json:"can_view"`
	CanEdit       bool     `json:"can_edit"`
	CanExport     bool     `json:"can_export"`
	CanDelete     bool     `json:"can_delete"`
	MaskedFields  []string `json:"masked_fields"`
	AuditRequired bool     `json:"audit_required"`
}

// MaskAll is the masked-field marker meaning every field is hidden.
const MaskAll = "*"

// State is the session lifecycle state of a security context.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateExpired
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateInvalidated:
		return "invalidated"
	default:
		return "uninitialized"
	}
}

// Options configures session lifetimes and the permission tables.
type Options struct {
	SessionTTL      time.Duration
	MaxLifetime     time.Duration
	PermissionTable map[Role][]string
	MaskTable       map[Role]map[ResourceType][]string
}

// Defaults for Options.
const (
	DefaultSessionTTL    = 8 * time.Hour
	DefaultMaxLifetime   = 24 * time.Hour
	DefaultAuditCapacity = 1000
)

func (o Options) withDefaults() Options {
	if o.SessionTTL <= 0 {
		o.SessionTTL = DefaultSessionTTL
	}
	if o.MaxLifetime <= 0 {
		o.MaxLifetime = DefaultMaxLifetime
	}
	if o.SessionTTL > o.MaxLifetime {
		o.SessionTTL = o.MaxLifetime
	}
	if o.PermissionTable == nil {
		o.PermissionTable = DefaultPermissions()
	}
	if o.MaskTable == nil {
		o.MaskTable = DefaultMasks()
	}
	return o
}

func resourcePerm(t ResourceType, action string) string {
	return shared.ResourcePermission(string(t), action)
}
