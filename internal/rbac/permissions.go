package rbac

import (
	"strings"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

// DefaultPermissions returns the static role → permission table.
func DefaultPermissions() map[Role][]string {
	readOnly := []string{
		shared.PermEntitiesRead,
		shared.PermRelationshipsRead,
		shared.PermTransactionsRead,
		shared.PermReportsView,
	}
	return map[Role][]string{
		RoleAdmin: {shared.PermAll},
		RoleManager: concat(
			readOnly,
			[]string{
				shared.PermEntitiesWrite,
				shared.PermEntitiesDelete,
				shared.PermRelationshipsWrite,
				shared.PermTransactionsPost,
				shared.PermTransactionsAmend,
				shared.PermCOAManage,
			},
			shared.ResourceScopes(string(ResourceFinancial)),
			shared.ResourceScopes(string(ResourceCustomer)),
			shared.ResourceScopes(string(ResourceProduct)),
			shared.ResourceScopes(string(ResourceOperational)),
			[]string{resourcePerm(ResourceEmployee, shared.ActionView), resourcePerm(ResourceEmployee, shared.ActionEdit)},
		),
		RoleAnalyst: concat(
			readOnly,
			viewExport(ResourceFinancial, ResourceProduct, ResourceOperational),
			[]string{resourcePerm(ResourceCustomer, shared.ActionView)},
		),
		RoleAuditor: concat(
			readOnly,
			[]string{shared.PermAuditView},
			viewExport(ResourceFinancial),
			views(ResourceCustomer, ResourceEmployee, ResourceProduct, ResourceOperational),
		),
		RoleViewer: concat(
			readOnly,
			views(ResourceFinancial, ResourceCustomer, ResourceProduct, ResourceOperational),
		),
	}
}

// DefaultMasks returns the static per-role, per-resource-type masking table.
func DefaultMasks() map[Role]map[ResourceType][]string {
	return map[Role]map[ResourceType][]string{
		RoleAdmin: {},
		RoleManager: {
			ResourceEmployee: {"national_id"},
		},
		RoleAnalyst: {
			ResourceFinancial: {"customer_specific_data"},
			ResourceCustomer:  {"email", "phone", "tax_id"},
			ResourceEmployee:  {"salary", "national_id", "bank_account"},
		},
		RoleAuditor: {
			ResourceFinancial: {"personal_identifiers"},
			ResourceCustomer:  {"personal_identifiers", "email", "phone", "address"},
			ResourceEmployee:  {"personal_identifiers", "national_id", "bank_account"},
		},
		RoleViewer: {
			ResourceFinancial: {"detailed_breakdown", "customer_specific_data", "cost_breakdown"},
			ResourceCustomer:  {"email", "phone", "address", "tax_id"},
			ResourceEmployee:  {"salary", "national_id", "bank_account"},
			ResourceProduct:   {"cost_price"},
		},
	}
}

func views(types ...ResourceType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, resourcePerm(t, shared.ActionView))
	}
	return out
}

func viewExport(types ...ResourceType) []string {
	out := make([]string, 0, 2*len(types))
	for _, t := range types {
		out = append(out, resourcePerm(t, shared.ActionView), resourcePerm(t, shared.ActionExport))
	}
	return out
}

func concat(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// permissionSet is a normalised, deduplicated set of permission names.
type permissionSet map[string]struct{}

func newPermissionSet(perms []string) permissionSet {
	set := make(permissionSet, len(perms))
	for _, p := range normalizePermissions(perms) {
		set[p] = struct{}{}
	}
	return set
}

func (s permissionSet) has(perm string) bool {
	if _, ok := s[shared.PermAll]; ok {
		return true
	}
	_, ok := s[strings.ToLower(strings.TrimSpace(perm))]
	return ok
}

func (s permissionSet) hasAny(required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if s.has(r) {
			return true
		}
	}
	return false
}

func (s permissionSet) hasAll(required []string) bool {
	for _, r := range required {
		if !s.has(r) {
			return false
		}
	}
	return true
}

func (s permissionSet) list() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
