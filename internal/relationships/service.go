package relationships

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heraerp/heraerp-prd-sub081/internal/rbac"
	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
	"github.com/heraerp/heraerp-prd-sub081/internal/smartcode"
)

// RepositoryPort abstracts relationship persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	EdgesFrom(ctx context.Context, orgID, entityID uuid.UUID, filter EdgeFilter) ([]Relationship, error)
	EdgesTo(ctx context.Context, orgID, entityID uuid.UUID, filter EdgeFilter) ([]Relationship, error)
}

// TxRepository exposes the writes available inside a transaction.
type TxRepository interface {
	// EntityOrganizations maps each existing id to its owning organization.
	EntityOrganizations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
	// InsertIfAbsent inserts rel unless an active edge with the same
	// (organization, from, to, type) exists, returning the stored edge.
	InsertIfAbsent(ctx context.Context, rel Relationship) (Relationship, bool, error)
	Deactivate(ctx context.Context, orgID, id, actor uuid.UUID, at time.Time) error
}

// Service implements the relationship graph.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the graph service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Link creates an edge, or returns the existing active edge with the same
// endpoints and type. Both endpoints must belong to the organization.
func (s *Service) Link(ctx context.Context, in LinkInput) (Relationship, error) {
	if err := shared.ValidateStruct(in); err != nil {
		return Relationship{}, err
	}
	resource := "relationship:" + in.RelationshipType
	sc, err := rbac.Require(ctx, in.OrganizationID, shared.PermRelationshipsWrite, resource)
	if err != nil {
		return Relationship{}, err
	}
	if err := smartcode.Check(in.SmartCode); err != nil {
		return Relationship{}, err
	}
	direction := in.Direction
	if direction == "" {
		direction = Directed
	}
	now := s.now().UTC()
	rel := Relationship{
		ID:               uuid.New(),
		OrganizationID:   in.OrganizationID,
		FromEntityID:     in.FromEntityID,
		ToEntityID:       in.ToEntityID,
		RelationshipType: strings.TrimSpace(in.RelationshipType),
		Direction:        direction,
		SmartCode:        in.SmartCode,
		Data:             in.Data,
		IsActive:         true,
		CreatedBy:        sc.ActorID(),
		UpdatedBy:        sc.ActorID(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	var (
		stored  Relationship
		created bool
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		orgs, err := tx.EntityOrganizations(ctx, []uuid.UUID{in.FromEntityID, in.ToEntityID})
		if err != nil {
			return err
		}
		if err := checkEndpoints(in.OrganizationID, orgs, in.FromEntityID, in.ToEntityID); err != nil {
			return err
		}
		stored, created, err = tx.InsertIfAbsent(ctx, rel)
		return err
	})
	if err != nil {
		if shared.KindOf(err) == shared.KindCrossTenantEdge {
			sc.Audit(ctx, "relationship.link", resource, shared.AuditDenied, shared.Reason(err), nil)
		}
		return Relationship{}, shared.WrapPersistence("relationships: link", err)
	}
	if created {
		sc.Audit(ctx, "relationship.link", "relationship:"+stored.ID.String(), shared.AuditAllowed, "", map[string]any{
			"relationship_type": stored.RelationshipType,
			"from":              stored.FromEntityID.String(),
			"to":                stored.ToEntityID.String(),
		})
	}
	return stored, nil
}

func checkEndpoints(orgID uuid.UUID, orgs map[uuid.UUID]uuid.UUID, ids ...uuid.UUID) error {
	for _, id := range ids {
		owner, ok := orgs[id]
		if !ok {
			return shared.Errorf(shared.KindUnknownEntity, "entity %s not found", id)
		}
		if owner != orgID {
			return shared.Errorf(shared.KindCrossTenantEdge, "entity %s belongs to another organization", id)
		}
	}
	return nil
}

// EdgesFrom returns the outgoing edges of an entity.
func (s *Service) EdgesFrom(ctx context.Context, orgID, entityID uuid.UUID, filter EdgeFilter) ([]Relationship, error) {
	if _, err := rbac.Require(ctx, orgID, shared.PermRelationshipsRead, "entity:"+entityID.String()); err != nil {
		return nil, err
	}
	edges, err := s.repo.EdgesFrom(ctx, orgID, entityID, filter)
	return edges, shared.WrapPersistence("relationships: edges from", err)
}

// EdgesTo returns the incoming edges of an entity.
func (s *Service) EdgesTo(ctx context.Context, orgID, entityID uuid.UUID, filter EdgeFilter) ([]Relationship, error) {
	if _, err := rbac.Require(ctx, orgID, shared.PermRelationshipsRead, "entity:"+entityID.String()); err != nil {
		return nil, err
	}
	edges, err := s.repo.EdgesTo(ctx, orgID, entityID, filter)
	return edges, shared.WrapPersistence("relationships: edges to", err)
}

// Deactivate soft-removes an edge; the row is kept for history.
func (s *Service) Deactivate(ctx context.Context, orgID, relationshipID uuid.UUID) error {
	resource := "relationship:" + relationshipID.String()
	sc, err := rbac.Require(ctx, orgID, shared.PermRelationshipsWrite, resource)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Deactivate(ctx, orgID, relationshipID, sc.ActorID(), s.now().UTC())
	})
	if err != nil {
		return shared.WrapPersistence("relationships: deactivate", err)
	}
	sc.Audit(ctx, "relationship.deactivate", resource, shared.AuditAllowed, "", nil)
	return nil
}
