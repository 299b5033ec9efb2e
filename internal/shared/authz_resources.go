package shared

// Resource actions used by view authorization. A resource permission is
// "<resource_type>.<action>", e.g. "financial.export".
const (
	ActionView   = "view"
	ActionEdit   = "edit"
	ActionExport = "export"
	ActionDelete = "delete"
)

// ResourcePermission composes the permission name for a resource action.
func ResourcePermission(resourceType, action string) string {
	return resourceType + "." + action
}

// ResourceScopes lists every action permission for a resource type.
func ResourceScopes(resourceType string) []string {
	return []string{
		ResourcePermission(resourceType, ActionView),
		ResourcePermission(resourceType, ActionEdit),
		ResourcePermission(resourceType, ActionExport),
		ResourcePermission(resourceType, ActionDelete),
	}
}
