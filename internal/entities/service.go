package entities

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/heraerp/heraerp-prd-sub081/internal/rbac"
	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
	"github.com/heraerp/heraerp-prd-sub081/internal/smartcode"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntity(ctx context.Context, orgID, id uuid.UUID) (Entity, error)
	ListEntities(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]Entity, error)
	ListDynamicFields(ctx context.Context, orgID uuid.UUID, entityIDs []uuid.UUID) ([]DynamicField, error)
	ListRelationships(ctx context.Context, orgID uuid.UUID, entityIDs []uuid.UUID) ([]RelationshipSummary, error)
}

// Service implements the entity store operations.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the entity store service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateEntity validates and inserts a new entity.
func (s *Service) CreateEntity(ctx context.Context, in CreateInput) (Entity, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Entity{}, err
	}
	sc, err := rbac.Require(ctx, in.OrganizationID, shared.PermEntitiesWrite, "entity:"+in.EntityType)
	if err != nil {
		return Entity{}, err
	}
	if err := smartcode.Check(in.SmartCode); err != nil {
		return Entity{}, err
	}
	now := s.now().UTC()
	entity := Entity{
		ID:             uuid.New(),
		OrganizationID: in.OrganizationID,
		EntityType:     strings.TrimSpace(in.EntityType),
		EntityName:     strings.TrimSpace(in.EntityName),
		SmartCode:      in.SmartCode,
		Status:         StatusActive,
		ParentEntityID: in.ParentEntityID,
		Metadata:       in.Metadata,
		CreatedBy:      sc.ActorID(),
		UpdatedBy:      sc.ActorID(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if code := strings.TrimSpace(in.EntityCode); code != "" {
		entity.EntityCode = &code
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if entity.ParentEntityID != nil {
			if _, err := tx.LockEntity(ctx, in.OrganizationID, *entity.ParentEntityID); err != nil {
				return err
			}
		}
		return tx.InsertEntity(ctx, entity)
	})
	if err != nil {
		return Entity{}, shared.WrapPersistence("entities: create", err)
	}
	sc.Audit(ctx, "entity.create", "entity:"+entity.ID.String(), shared.AuditAllowed, "", map[string]any{
		"entity_type": entity.EntityType,
		"smart_code":  entity.SmartCode,
	})
	return entity, nil
}

// UpdateEntity applies the non-nil changes of in.
func (s *Service) UpdateEntity(ctx context.Context, in UpdateInput) (Entity, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Entity{}, err
	}
	sc, err := rbac.Require(ctx, in.OrganizationID, shared.PermEntitiesWrite, "entity:"+in.EntityID.String())
	if err != nil {
		return Entity{}, err
	}
	if in.SmartCode != nil {
		if err := smartcode.Check(*in.SmartCode); err != nil {
			return Entity{}, err
		}
	}
	if in.Status != nil && !validStatus(*in.Status) {
		return Entity{}, shared.Errorf(shared.KindValidation, "unknown entity status %q", *in.Status)
	}
	var updated Entity
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockEntity(ctx, in.OrganizationID, in.EntityID)
		if err != nil {
			return err
		}
		if in.EntityName != nil {
			current.EntityName = strings.TrimSpace(*in.EntityName)
		}
		if in.Status != nil {
			current.Status = *in.Status
		}
		if in.SmartCode != nil {
			current.SmartCode = *in.SmartCode
		}
		if in.ParentEntityID != nil {
			if *in.ParentEntityID == current.ID {
				return shared.Errorf(shared.KindValidation, "entity cannot be its own parent")
			}
			if _, err := tx.LockEntity(ctx, in.OrganizationID, *in.ParentEntityID); err != nil {
				return err
			}
			current.ParentEntityID = in.ParentEntityID
		}
		if in.Metadata != nil {
			if current.Metadata == nil {
				current.Metadata = map[string]any{}
			}
			for k, v := range in.Metadata {
				current.Metadata[k] = v
			}
		}
		current.UpdatedBy = sc.ActorID()
		current.UpdatedAt = s.now().UTC()
		if err := tx.UpdateEntity(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return Entity{}, shared.WrapPersistence("entities: update", err)
	}
	sc.Audit(ctx, "entity.update", "entity:"+updated.ID.String(), shared.AuditAllowed, "", nil)
	return updated, nil
}

// SetDynamicField upserts one field. The write is a single atomic
// insert-or-update keyed by (organization, entity, field name).
func (s *Service) SetDynamicField(ctx context.Context, orgID, entityID uuid.UUID, in FieldInput) error {
	return s.SetDynamicFields(ctx, orgID, entityID, []FieldInput{in})
}

// SetDynamicFields upserts several fields of one entity in one atomic unit.
func (s *Service) SetDynamicFields(ctx context.Context, orgID, entityID uuid.UUID, inputs []FieldInput) error {
	if len(inputs) == 0 {
		return nil
	}
	sc, err := rbac.Require(ctx, orgID, shared.PermEntitiesWrite, "entity:"+entityID.String())
	if err != nil {
		return err
	}
	fields := make([]DynamicField, 0, len(inputs))
	now := s.now().UTC()
	for _, in := range inputs {
		field, err := s.buildField(orgID, entityID, in, sc.ActorID(), now)
		if err != nil {
			return err
		}
		fields = append(fields, field)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, f := range fields {
			if err := tx.UpsertDynamicField(ctx, f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return shared.WrapPersistence("entities: set dynamic fields", err)
	}
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.FieldName)
	}
	sc.Audit(ctx, "entity.set_fields", "entity:"+entityID.String(), shared.AuditAllowed, "", map[string]any{"fields": names})
	return nil
}

func (s *Service) buildField(orgID, entityID uuid.UUID, in FieldInput, actor uuid.UUID, now time.Time) (DynamicField, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return DynamicField{}, err
	}
	if err := smartcode.Check(in.SmartCode); err != nil {
		return DynamicField{}, err
	}
	value, err := NewFieldValue(in.FieldType, in.Value)
	if err != nil {
		return DynamicField{}, fmt.Errorf("field %s: %w", in.FieldName, err)
	}
	return DynamicField{
		ID:             uuid.New(),
		OrganizationID: orgID,
		EntityID:       entityID,
		FieldName:      strings.TrimSpace(in.FieldName),
		Value:          value,
		SmartCode:      in.SmartCode,
		UpdatedBy:      actor,
		UpdatedAt:      now,
	}, nil
}

// GetDynamicFields returns the stored fields of one entity.
func (s *Service) GetDynamicFields(ctx context.Context, orgID, entityID uuid.UUID) ([]DynamicField, error) {
	if _, err := rbac.Require(ctx, orgID, shared.PermEntitiesRead, "entity:"+entityID.String()); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetEntity(ctx, orgID, entityID); err != nil {
		return nil, shared.WrapPersistence("entities: get", err)
	}
	fields, err := s.repo.ListDynamicFields(ctx, orgID, []uuid.UUID{entityID})
	if err != nil {
		return nil, shared.WrapPersistence("entities: list dynamic fields", err)
	}
	return fields, nil
}

// DeleteDynamicField removes one field; missing fields are not an error.
func (s *Service) DeleteDynamicField(ctx context.Context, orgID, entityID uuid.UUID, fieldName string) error {
	sc, err := rbac.Require(ctx, orgID, shared.PermEntitiesWrite, "entity:"+entityID.String())
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockEntity(ctx, orgID, entityID); err != nil {
			return err
		}
		return tx.DeleteDynamicField(ctx, orgID, entityID, fieldName)
	})
	if err != nil {
		return shared.WrapPersistence("entities: delete dynamic field", err)
	}
	sc.Audit(ctx, "entity.delete_field", "entity:"+entityID.String(), shared.AuditAllowed, "", map[string]any{"field": fieldName})
	return nil
}

// GetEntity returns the merged view of one entity.
func (s *Service) GetEntity(ctx context.Context, orgID, entityID uuid.UUID, opts GetOptions) (EntityView, error) {
	if _, err := rbac.Require(ctx, orgID, shared.PermEntitiesRead, "entity:"+entityID.String()); err != nil {
		return EntityView{}, err
	}
	entity, err := s.repo.GetEntity(ctx, orgID, entityID)
	if err != nil {
		return EntityView{}, shared.WrapPersistence("entities: get", err)
	}
	views, err := s.buildViews(ctx, orgID, []Entity{entity}, opts)
	if err != nil {
		return EntityView{}, err
	}
	return views[0], nil
}

// ListEntities returns merged views of the entities matching filter.
// Soft-deleted entities are excluded unless the filter asks for them.
func (s *Service) ListEntities(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]EntityView, error) {
	if _, err := rbac.Require(ctx, orgID, shared.PermEntitiesRead, "entity:"+filter.EntityType); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 1000
	}
	rows, err := s.repo.ListEntities(ctx, orgID, filter)
	if err != nil {
		return nil, shared.WrapPersistence("entities: list", err)
	}
	return s.buildViews(ctx, orgID, rows, filter.GetOptions)
}

func (s *Service) buildViews(ctx context.Context, orgID uuid.UUID, rows []Entity, opts GetOptions) ([]EntityView, error) {
	if len(rows) == 0 {
		return []EntityView{}, nil
	}
	ids := make([]uuid.UUID, len(rows))
	for i, e := range rows {
		ids[i] = e.ID
	}
	var (
		fields []DynamicField
		rels   []RelationshipSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	if opts.IncludeDynamic {
		g.Go(func() error {
			var err error
			fields, err = s.repo.ListDynamicFields(gctx, orgID, ids)
			return shared.WrapPersistence("entities: list dynamic fields", err)
		})
	}
	if opts.IncludeRelationships {
		g.Go(func() error {
			var err error
			rels, err = s.repo.ListRelationships(gctx, orgID, ids)
			return shared.WrapPersistence("entities: list relationships", err)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return MergeViews(rows, fields, rels, opts), nil
}

// MergeViews joins entity rows with their fields and relationships. Fields
// and relationships are grouped by entity id first, so the merge is linear
// in the number of rows rather than quadratic.
func MergeViews(rows []Entity, fields []DynamicField, rels []RelationshipSummary, opts GetOptions) []EntityView {
	fieldsByEntity := make(map[uuid.UUID][]DynamicField, len(rows))
	for _, f := range fields {
		fieldsByEntity[f.EntityID] = append(fieldsByEntity[f.EntityID], f)
	}
	relsByEntity := make(map[uuid.UUID][]RelationshipSummary, len(rows))
	for _, r := range rels {
		relsByEntity[r.FromEntityID] = append(relsByEntity[r.FromEntityID], r)
		if r.ToEntityID != r.FromEntityID {
			relsByEntity[r.ToEntityID] = append(relsByEntity[r.ToEntityID], r)
		}
	}
	views := make([]EntityView, len(rows))
	for i, e := range rows {
		view := EntityView{Entity: e}
		if opts.IncludeDynamic {
			view.Fields = make(map[string]any, len(fieldsByEntity[e.ID]))
			for _, f := range fieldsByEntity[e.ID] {
				if f.Value != nil {
					view.Fields[f.FieldName] = f.Value.Any()
				}
			}
		}
		if opts.IncludeRelationships {
			view.Relationships = make(map[string][]RelationshipSummary)
			for _, r := range relsByEntity[e.ID] {
				view.Relationships[r.RelationshipType] = append(view.Relationships[r.RelationshipType], r)
			}
		}
		views[i] = view
	}
	return views
}

// DeleteEntity soft-deletes by status, or hard-deletes when nothing but
// dynamic fields references the entity. Dynamic fields cascade; relationships
// and transaction lines never do.
func (s *Service) DeleteEntity(ctx context.Context, orgID, entityID uuid.UUID, opts DeleteOptions) error {
	sc, err := rbac.Require(ctx, orgID, shared.PermEntitiesDelete, "entity:"+entityID.String())
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockEntity(ctx, orgID, entityID)
		if err != nil {
			return err
		}
		if opts.Soft {
			current.Status = StatusDeleted
			current.UpdatedBy = sc.ActorID()
			current.UpdatedAt = s.now().UTC()
			return tx.UpdateEntity(ctx, current)
		}
		refs, err := tx.CountReferences(ctx, orgID, entityID)
		if err != nil {
			return err
		}
		if refs.Blocking() {
			return shared.Errorf(shared.KindEntityInUse,
				"entity %s is referenced by %d relationships, %d transaction lines, %d transactions, %d children",
				entityID, refs.Relationships, refs.TransactionLines, refs.Transactions, refs.Children)
		}
		if err := tx.DeleteDynamicFields(ctx, orgID, entityID); err != nil {
			return err
		}
		return tx.DeleteEntity(ctx, orgID, entityID)
	})
	if err != nil {
		return shared.WrapPersistence("entities: delete", err)
	}
	mode := "hard"
	if opts.Soft {
		mode = "soft"
	}
	sc.Audit(ctx, "entity.delete", "entity:"+entityID.String(), shared.AuditAllowed, "", map[string]any{"mode": mode})
	if s.logger != nil {
		s.logger.Info("entity deleted", slog.String("entity_id", entityID.String()), slog.String("mode", mode))
	}
	return nil
}

func validStatus(st Status) bool {
	switch st {
	case StatusActive, StatusArchived, StatusDeleted:
		return true
	}
	return false
}
