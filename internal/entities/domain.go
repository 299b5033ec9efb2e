package entities

import (
	"time"

	"github.com/google/uuid"
)

// Status enumerates entity lifecycle values.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// Entity is the fixed row of any business noun.
type Entity struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	EntityType     string         `json:"entity_type"`
	EntityName     string         `json:"entity_name"`
	EntityCode     *string        `json:"entity_code,omitempty"`
	SmartCode      string         `json:"smart_code"`
	Status         Status         `json:"status"`
	ParentEntityID *uuid.UUID     `json:"parent_entity_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedBy      uuid.UUID      `json:"created_by"`
	UpdatedBy      uuid.UUID      `json:"updated_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// DynamicField is one typed attribute row of an entity.
type DynamicField struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	EntityID       uuid.UUID  `json:"entity_id"`
	FieldName      string     `json:"field_name"`
	Value          FieldValue `json:"-"`
	SmartCode      string     `json:"smart_code"`
	UpdatedBy      uuid.UUID  `json:"updated_by"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RelationshipSummary is the slice of a relationship shown in entity views.
type RelationshipSummary struct {
	ID               uuid.UUID      `json:"id"`
	FromEntityID     uuid.UUID      `json:"from_entity_id"`
	ToEntityID       uuid.UUID      `json:"to_entity_id"`
	RelationshipType string         `json:"relationship_type"`
	Direction        string         `json:"relationship_direction"`
	SmartCode        string         `json:"smart_code"`
	Data             map[string]any `json:"relationship_data,omitempty"`
}

// EntityView merges the entity row with its flattened dynamic fields and,
// optionally, its relationships grouped by type.
type EntityView struct {
	Entity
	Fields        map[string]any                   `json:"dynamic_fields,omitempty"`
	Relationships map[string][]RelationshipSummary `json:"relationships,omitempty"`
}

// References counts rows that keep an entity from being hard-deleted.
type References struct {
	DynamicFields    int
	Relationships    int
	TransactionLines int
	Transactions     int
	Children         int
}

// Blocking reports whether any non-cascading reference exists.
func (r References) Blocking() bool {
	return r.Relationships > 0 || r.TransactionLines > 0 || r.Transactions > 0 || r.Children > 0
}

// CreateInput carries the fields for CreateEntity.
type CreateInput struct {
	OrganizationID uuid.UUID `validate:"required"`
	EntityType     string    `validate:"required,max=100"`
	EntityName     string    `validate:"required,max=500"`
	EntityCode     string    `validate:"max=200"`
	SmartCode      string    `validate:"required"`
	ParentEntityID *uuid.UUID
	Metadata       map[string]any
}

// UpdateInput carries optional changes for UpdateEntity.
type UpdateInput struct {
	OrganizationID uuid.UUID `validate:"required"`
	EntityID       uuid.UUID `validate:"required"`
	EntityName     *string
	Status         *Status
	SmartCode      *string
	ParentEntityID *uuid.UUID
	Metadata       map[string]any
}

// FieldInput carries one dynamic field write.
type FieldInput struct {
	FieldName string    `validate:"required,max=200"`
	FieldType FieldType `validate:"required"`
	Value     any
	SmartCode string `validate:"required"`
}

// GetOptions selects the optional parts of an entity view.
type GetOptions struct {
	IncludeDynamic       bool
	IncludeRelationships bool
}

// ListFilter narrows ListEntities.
type ListFilter struct {
	EntityType      string
	Status          Status
	SmartCodePrefix string
	Limit           int
	GetOptions
}

// DeleteOptions selects soft or hard deletion.
type DeleteOptions struct {
	Soft bool
}
