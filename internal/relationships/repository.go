package relationships

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heraerp/heraerp-prd-sub081/internal/platform/db"
	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

const relationshipColumns = `id, organization_id, from_entity_id, to_entity_id, relationship_type, relationship_direction,
smart_code, relationship_data, is_active, created_by, updated_by, created_at, updated_at`

// Repository is the pgx-backed relationship store. Hop-one traversal uses
// the (organization, from|to, type) indexes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// EdgesFrom lists edges leaving entityID.
func (r *Repository) EdgesFrom(ctx context.Context, orgID, entityID uuid.UUID, filter EdgeFilter) ([]Relationship, error) {
	return r.edges(ctx, "from_entity_id", orgID, entityID, filter)
}

// EdgesTo lists edges arriving at entityID.
func (r *Repository) EdgesTo(ctx context.Context, orgID, entityID uuid.UUID, filter EdgeFilter) ([]Relationship, error) {
	return r.edges(ctx, "to_entity_id", orgID, entityID, filter)
}

func (r *Repository) edges(ctx context.Context, column string, orgID, entityID uuid.UUID, filter EdgeFilter) ([]Relationship, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+relationshipColumns+` FROM core_relationships
WHERE organization_id=$1 AND `+column+`=$2 AND ($3='' OR relationship_type=$3) AND (is_active OR $4)
ORDER BY created_at, id`, orgID, entityID, filter.RelationshipType, filter.IncludeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

// RoleAssignments returns the role names attached to the actor through
// active has_role edges. The name comes from relationship_data.role, or the
// role entity's code when the edge carries none.
func (r *Repository) RoleAssignments(ctx context.Context, orgID, actorID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT COALESCE(NULLIF(rel.relationship_data->>'role', ''), role.entity_code, '')
FROM core_relationships rel
JOIN core_entities role ON role.id = rel.to_entity_id AND role.organization_id = rel.organization_id
WHERE rel.organization_id=$1 AND rel.from_entity_id=$2 AND rel.relationship_type=$3 AND rel.is_active`,
		orgID, actorID, TypeHasRole)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if name != "" {
			roles = append(roles, name)
		}
	}
	return roles, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) EntityOrganizations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, organization_id FROM core_entities WHERE id = ANY($1) FOR SHARE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]uuid.UUID, len(ids))
	for rows.Next() {
		var id, org uuid.UUID
		if err := rows.Scan(&id, &org); err != nil {
			return nil, err
		}
		out[id] = org
	}
	return out, rows.Err()
}

// InsertIfAbsent relies on the partial unique index over active edges, so
// concurrent links of the same edge converge on one row. A conflict with an
// edge committed after this snapshot aborts with a serialization failure and
// db.WithTx replays the unit, which then returns the committed edge.
func (r *txRepo) InsertIfAbsent(ctx context.Context, rel Relationship) (Relationship, bool, error) {
	data := rel.Data
	if data == nil {
		data = map[string]any{}
	}
	var id uuid.UUID
	err := r.tx.QueryRow(ctx, `INSERT INTO core_relationships (`+relationshipColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,TRUE,$9,$9,$10,$10)
ON CONFLICT (organization_id, from_entity_id, to_entity_id, relationship_type) WHERE is_active DO NOTHING
RETURNING id`,
		rel.ID, rel.OrganizationID, rel.FromEntityID, rel.ToEntityID, rel.RelationshipType, string(rel.Direction),
		rel.SmartCode, data, nullUUID(rel.CreatedBy), rel.CreatedAt).Scan(&id)
	if err == nil {
		return rel, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Relationship{}, false, err
	}
	row := r.tx.QueryRow(ctx, `SELECT `+relationshipColumns+` FROM core_relationships
WHERE organization_id=$1 AND from_entity_id=$2 AND to_entity_id=$3 AND relationship_type=$4 AND is_active`,
		rel.OrganizationID, rel.FromEntityID, rel.ToEntityID, rel.RelationshipType)
	existing, err := scanRelationship(row)
	if err != nil {
		return Relationship{}, false, err
	}
	return existing, false, nil
}

func (r *txRepo) Deactivate(ctx context.Context, orgID, id, actor uuid.UUID, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE core_relationships SET is_active=FALSE, updated_by=$3, updated_at=$4
WHERE organization_id=$1 AND id=$2`, orgID, id, nullUUID(actor), at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.KindNotFound, "relationship %s not found", id)
	}
	return nil
}

func scanRelationship(row pgx.Row) (Relationship, error) {
	var (
		rel       Relationship
		direction string
		createdBy *uuid.UUID
		updatedBy *uuid.UUID
	)
	if err := row.Scan(&rel.ID, &rel.OrganizationID, &rel.FromEntityID, &rel.ToEntityID, &rel.RelationshipType, &direction,
		&rel.SmartCode, &rel.Data, &rel.IsActive, &createdBy, &updatedBy, &rel.CreatedAt, &rel.UpdatedAt); err != nil {
		return Relationship{}, err
	}
	rel.Direction = Direction(direction)
	if createdBy != nil {
		rel.CreatedBy = *createdBy
	}
	if updatedBy != nil {
		rel.UpdatedBy = *updatedBy
	}
	return rel, nil
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
