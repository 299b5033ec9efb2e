package entities

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heraerp/heraerp-prd-sub081/internal/platform/db"
	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

const entityCodeIndex = "uq_core_entities_code"

// TxRepository exposes the writes available inside a transaction.
type TxRepository interface {
	InsertEntity(ctx context.Context, e Entity) error
	UpdateEntity(ctx context.Context, e Entity) error
	LockEntity(ctx context.Context, orgID, id uuid.UUID) (Entity, error)
	UpsertDynamicField(ctx context.Context, f DynamicField) error
	DeleteDynamicField(ctx context.Context, orgID, entityID uuid.UUID, fieldName string) error
	DeleteDynamicFields(ctx context.Context, orgID, entityID uuid.UUID) error
	CountReferences(ctx context.Context, orgID, entityID uuid.UUID) (References, error)
	DeleteEntity(ctx context.Context, orgID, entityID uuid.UUID) error
}

// Repository is the pgx-backed entity store.
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

const entityColumns = `id, organization_id, entity_type, entity_name, entity_code, smart_code, status,
parent_entity_id, metadata, created_by, updated_by, created_at, updated_at`

// GetEntity loads one entity scoped to the organization.
func (r *Repository) GetEntity(ctx context.Context, orgID, id uuid.UUID) (Entity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entityColumns+` FROM core_entities WHERE organization_id=$1 AND id=$2`, orgID, id)
	e, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entity{}, shared.Errorf(shared.KindUnknownEntity, "entity %s not found", id)
	}
	return e, err
}

// ListEntities returns entities matching filter ordered by name.
func (r *Repository) ListEntities(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]Entity, error) {
	var (
		clauses = []string{"organization_id=$1"}
		args    = []any{orgID}
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.EntityType != "" {
		add("entity_type=$%d", filter.EntityType)
	}
	if filter.Status != "" {
		add("status=$%d", string(filter.Status))
	} else {
		add("status<>$%d", string(StatusDeleted))
	}
	if filter.SmartCodePrefix != "" {
		clause, prefixArgs := db.SegmentPrefix("smart_code", filter.SmartCodePrefix, len(args)+1)
		args = append(args, prefixArgs...)
		clauses = append(clauses, clause)
	}
	args = append(args, filter.Limit)
	query := fmt.Sprintf(`SELECT %s FROM core_entities WHERE %s ORDER BY entity_name, id LIMIT $%d`,
		entityColumns, strings.Join(clauses, " AND "), len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListDynamicFields loads the fields of the given entities.
func (r *Repository) ListDynamicFields(ctx context.Context, orgID uuid.UUID, entityIDs []uuid.UUID) ([]DynamicField, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, organization_id, entity_id, field_name, field_type,
field_value_text, field_value_number, field_value_boolean, field_value_date, field_value_json,
smart_code, updated_by, updated_at
FROM core_dynamic_data WHERE organization_id=$1 AND entity_id = ANY($2) ORDER BY entity_id, field_name`, orgID, entityIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DynamicField
	for rows.Next() {
		var (
			f         DynamicField
			fieldType FieldType
			text      *string
			number    *float64
			boolean   *bool
			date      *time.Time
			doc       []byte
			updatedBy *uuid.UUID
		)
		if err := rows.Scan(&f.ID, &f.OrganizationID, &f.EntityID, &f.FieldName, &fieldType,
			&text, &number, &boolean, &date, &doc, &f.SmartCode, &updatedBy, &f.UpdatedAt); err != nil {
			return nil, err
		}
		switch fieldType {
		case FieldText:
			f.Value = TextValue(deref(text))
		case FieldNumber:
			f.Value = NumberValue(deref(number))
		case FieldBoolean:
			f.Value = BooleanValue(deref(boolean))
		case FieldDate:
			f.Value = DateValue(deref(date))
		case FieldJSON:
			f.Value = JSONValue(doc)
		default:
			return nil, fmt.Errorf("entities: unknown stored field type %q", fieldType)
		}
		f.UpdatedBy = deref(updatedBy)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListRelationships loads active relationships touching the given entities.
func (r *Repository) ListRelationships(ctx context.Context, orgID uuid.UUID, entityIDs []uuid.UUID) ([]RelationshipSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, from_entity_id, to_entity_id, relationship_type, relationship_direction, smart_code, relationship_data
FROM core_relationships
WHERE organization_id=$1 AND is_active AND (from_entity_id = ANY($2) OR to_entity_id = ANY($2))
ORDER BY relationship_type, created_at`, orgID, entityIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RelationshipSummary
	for rows.Next() {
		var s RelationshipSummary
		if err := rows.Scan(&s.ID, &s.FromEntityID, &s.ToEntityID, &s.RelationshipType, &s.Direction, &s.SmartCode, &s.Data); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (r *txRepo) InsertEntity(ctx context.Context, e Entity) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO core_entities (`+entityColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.ID, e.OrganizationID, e.EntityType, e.EntityName, e.EntityCode, e.SmartCode, string(e.Status),
		e.ParentEntityID, metadataOrEmpty(e.Metadata), nullUUID(e.CreatedBy), nullUUID(e.UpdatedBy), e.CreatedAt, e.UpdatedAt)
	if db.IsUniqueViolation(err, entityCodeIndex) {
		return shared.Errorf(shared.KindDuplicateCode, "entity code %q already used for %s", deref(e.EntityCode), e.EntityType)
	}
	return err
}

func (r *txRepo) UpdateEntity(ctx context.Context, e Entity) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE core_entities SET entity_name=$3, status=$4, smart_code=$5, parent_entity_id=$6,
metadata=$7, updated_by=$8, updated_at=$9 WHERE organization_id=$1 AND id=$2`,
		e.OrganizationID, e.ID, e.EntityName, string(e.Status), e.SmartCode, e.ParentEntityID,
		metadataOrEmpty(e.Metadata), nullUUID(e.UpdatedBy), e.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.KindUnknownEntity, "entity %s not found", e.ID)
	}
	return nil
}

func (r *txRepo) LockEntity(ctx context.Context, orgID, id uuid.UUID) (Entity, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+entityColumns+` FROM core_entities WHERE organization_id=$1 AND id=$2 FOR UPDATE`, orgID, id)
	e, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entity{}, shared.Errorf(shared.KindUnknownEntity, "entity %s not found", id)
	}
	return e, err
}

// UpsertDynamicField writes the field with a single statement. The SELECT
// guard makes the insert a no-op when the entity is not in the organization.
func (r *txRepo) UpsertDynamicField(ctx context.Context, f DynamicField) error {
	text, number, boolean, date, doc := columns(f.Value)
	cmd, err := r.tx.Exec(ctx, `INSERT INTO core_dynamic_data (id, organization_id, entity_id, field_name, field_type,
field_value_text, field_value_number, field_value_boolean, field_value_date, field_value_json,
smart_code, created_by, updated_by, created_at, updated_at)
SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12, $13, $13
WHERE EXISTS (SELECT 1 FROM core_entities WHERE organization_id=$2 AND id=$3)
ON CONFLICT (organization_id, entity_id, field_name) DO UPDATE SET
field_type=EXCLUDED.field_type,
field_value_text=EXCLUDED.field_value_text,
field_value_number=EXCLUDED.field_value_number,
field_value_boolean=EXCLUDED.field_value_boolean,
field_value_date=EXCLUDED.field_value_date,
field_value_json=EXCLUDED.field_value_json,
smart_code=EXCLUDED.smart_code,
updated_by=EXCLUDED.updated_by,
updated_at=EXCLUDED.updated_at`,
		f.ID, f.OrganizationID, f.EntityID, f.FieldName, string(f.Value.Type()),
		text, number, boolean, date, doc, f.SmartCode, nullUUID(f.UpdatedBy), f.UpdatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.KindUnknownEntity, "entity %s not found", f.EntityID)
	}
	return nil
}

func (r *txRepo) DeleteDynamicField(ctx context.Context, orgID, entityID uuid.UUID, fieldName string) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM core_dynamic_data WHERE organization_id=$1 AND entity_id=$2 AND field_name=$3`, orgID, entityID, fieldName)
	return err
}

func (r *txRepo) DeleteDynamicFields(ctx context.Context, orgID, entityID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM core_dynamic_data WHERE organization_id=$1 AND entity_id=$2`, orgID, entityID)
	return err
}

func (r *txRepo) CountReferences(ctx context.Context, orgID, entityID uuid.UUID) (References, error) {
	var refs References
	err := r.tx.QueryRow(ctx, `SELECT
(SELECT COUNT(*) FROM core_dynamic_data WHERE organization_id=$1 AND entity_id=$2),
(SELECT COUNT(*) FROM core_relationships WHERE organization_id=$1 AND (from_entity_id=$2 OR to_entity_id=$2)),
(SELECT COUNT(*) FROM universal_transaction_lines WHERE organization_id=$1 AND entity_id=$2),
(SELECT COUNT(*) FROM universal_transactions WHERE organization_id=$1 AND (source_entity_id=$2 OR target_entity_id=$2)),
(SELECT COUNT(*) FROM core_entities WHERE organization_id=$1 AND parent_entity_id=$2)`, orgID, entityID).
		Scan(&refs.DynamicFields, &refs.Relationships, &refs.TransactionLines, &refs.Transactions, &refs.Children)
	return refs, err
}

func (r *txRepo) DeleteEntity(ctx context.Context, orgID, entityID uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM core_entities WHERE organization_id=$1 AND id=$2`, orgID, entityID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Errorf(shared.KindUnknownEntity, "entity %s not found", entityID)
	}
	return nil
}

func scanEntity(row pgx.Row) (Entity, error) {
	var (
		e         Entity
		status    string
		createdBy *uuid.UUID
		updatedBy *uuid.UUID
	)
	if err := row.Scan(&e.ID, &e.OrganizationID, &e.EntityType, &e.EntityName, &e.EntityCode, &e.SmartCode, &status,
		&e.ParentEntityID, &e.Metadata, &createdBy, &updatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return Entity{}, err
	}
	e.Status = Status(status)
	e.CreatedBy = deref(createdBy)
	e.UpdatedBy = deref(updatedBy)
	return e, nil
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
