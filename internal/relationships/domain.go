package relationships

import (
	"time"

	"github.com/google/uuid"
)

// Direction describes how an edge is read.
type Direction string

const (
	Directed      Direction = "directed"
	Bidirectional Direction = "bidirectional"
)

// Well-known relationship types.
const (
	TypeHasRole      = "has_role"
	TypeHasComponent = "has_component"
	TypeUsesProduct  = "uses_product"
)

// Relationship is one typed edge between two entities of one organization.
type Relationship struct {
	ID               uuid.UUID      `json:"id"`
	OrganizationID   uuid.UUID      `json:"organization_id"`
	FromEntityID     uuid.UUID      `json:"from_entity_id"`
	ToEntityID       uuid.UUID      `json:"to_entity_id"`
	RelationshipType string         `json:"relationship_type"`
	Direction        Direction      `json:"relationship_direction"`
	SmartCode        string         `json:"smart_code"`
	Data             map[string]any `json:"relationship_data,omitempty"`
	IsActive         bool           `json:"is_active"`
	CreatedBy        uuid.UUID      `json:"created_by"`
	UpdatedBy        uuid.UUID      `json:"updated_by"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// LinkInput carries the fields for Link.
type LinkInput struct {
	OrganizationID   uuid.UUID `validate:"required"`
	FromEntityID     uuid.UUID `validate:"required"`
	ToEntityID       uuid.UUID `validate:"required"`
	RelationshipType string    `validate:"required,max=100"`
	Direction        Direction `validate:"omitempty,oneof=directed bidirectional"`
	SmartCode        string    `validate:"required"`
	Data             map[string]any
}

// EdgeFilter narrows traversal. An empty type matches every type.
type EdgeFilter struct {
	RelationshipType string
	IncludeInactive  bool
}
