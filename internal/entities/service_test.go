package entities

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraerp/heraerp-prd-sub081/internal/platform/db"
	"github.com/heraerp/heraerp-prd-sub081/internal/rbac"
	"github.com/heraerp/heraerp-prd-sub081/internal/rbac/rbactest"
	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

type fieldKey struct {
	entity uuid.UUID
	name   string
}

// memoryRepo mimics a RepeatableRead store for dynamic fields: a unit reads
// its snapshot before it gets the lock, and upserting a field committed after
// that snapshot fails with a serialization error the way Postgres does.
type memoryRepo struct {
	mu       sync.Mutex
	entities map[uuid.UUID]Entity
	fields   map[fieldKey]DynamicField
	rels     []RelationshipSummary
	refs     map[uuid.UUID]References
	commits  atomic.Uint64
	fieldSeq map[fieldKey]uint64
	// beforeUpsert runs inside the unit before UpsertDynamicField writes.
	beforeUpsert func(m *memoryRepo, f DynamicField)
	conflicts    atomic.Int32
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		entities: map[uuid.UUID]Entity{},
		fields:   map[fieldKey]DynamicField{},
		refs:     map[uuid.UUID]References{},
		fieldSeq: map[fieldKey]uint64{},
	}
}

// commitField stores f as if another transaction had committed it.
func (m *memoryRepo) commitField(f DynamicField) {
	key := fieldKey{f.EntityID, f.FieldName}
	m.fields[key] = f
	m.fieldSeq[key] = m.commits.Add(1)
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.Retry(ctx, func() error {
		snapshot := m.commits.Load()
		m.mu.Lock()
		defer m.mu.Unlock()
		entities := make(map[uuid.UUID]Entity, len(m.entities))
		for k, v := range m.entities {
			entities[k] = v
		}
		fields := make(map[fieldKey]DynamicField, len(m.fields))
		for k, v := range m.fields {
			fields[k] = v
		}
		tx := &memoryTx{m: m, snapshot: snapshot}
		if err := fn(ctx, tx); err != nil {
			m.entities, m.fields = entities, fields
			return err
		}
		if len(tx.written) > 0 {
			seq := m.commits.Add(1)
			for _, k := range tx.written {
				m.fieldSeq[k] = seq
			}
		}
		return nil
	})
}

func (m *memoryRepo) GetEntity(ctx context.Context, orgID, id uuid.UUID) (Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entities[id]
	if !ok || e.OrganizationID != orgID {
		return Entity{}, shared.Errorf(shared.KindUnknownEntity, "entity %s not found", id)
	}
	return e, nil
}

func (m *memoryRepo) ListEntities(ctx context.Context, orgID uuid.UUID, filter ListFilter) ([]Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entity
	for _, e := range m.entities {
		if e.OrganizationID != orgID {
			continue
		}
		if filter.EntityType != "" && e.EntityType != filter.EntityType {
			continue
		}
		if filter.Status == "" && e.Status == StatusDeleted {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityName < out[j].EntityName })
	return out, nil
}

func (m *memoryRepo) ListDynamicFields(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]DynamicField, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []DynamicField
	for _, f := range m.fields {
		if f.OrganizationID == orgID && want[f.EntityID] {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FieldName < out[j].FieldName })
	return out, nil
}

func (m *memoryRepo) ListRelationships(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) ([]RelationshipSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RelationshipSummary(nil), m.rels...), nil
}

type memoryTx struct {
	m        *memoryRepo
	snapshot uint64
	written  []fieldKey
}

func (t *memoryTx) InsertEntity(ctx context.Context, e Entity) error {
	if e.EntityCode != nil {
		for _, other := range t.m.entities {
			if other.OrganizationID == e.OrganizationID && other.EntityType == e.EntityType &&
				other.EntityCode != nil && *other.EntityCode == *e.EntityCode {
				return shared.Errorf(shared.KindDuplicateCode, "entity code %q already used", *e.EntityCode)
			}
		}
	}
	t.m.entities[e.ID] = e
	return nil
}

func (t *memoryTx) UpdateEntity(ctx context.Context, e Entity) error {
	t.m.entities[e.ID] = e
	return nil
}

func (t *memoryTx) LockEntity(ctx context.Context, orgID, id uuid.UUID) (Entity, error) {
	e, ok := t.m.entities[id]
	if !ok || e.OrganizationID != orgID {
		return Entity{}, shared.Errorf(shared.KindUnknownEntity, "entity %s not found", id)
	}
	return e, nil
}

func (t *memoryTx) UpsertDynamicField(ctx context.Context, f DynamicField) error {
	e, ok := t.m.entities[f.EntityID]
	if !ok || e.OrganizationID != f.OrganizationID {
		return shared.Errorf(shared.KindUnknownEntity, "entity %s not found", f.EntityID)
	}
	if t.m.beforeUpsert != nil {
		t.m.beforeUpsert(t.m, f)
	}
	key := fieldKey{f.EntityID, f.FieldName}
	if existing, ok := t.m.fields[key]; ok {
		if t.m.fieldSeq[key] > t.snapshot {
			t.m.conflicts.Add(1)
			return &pgconn.PgError{Code: db.SerializationFailure}
		}
		f.ID = existing.ID
	}
	t.m.fields[key] = f
	t.written = append(t.written, key)
	return nil
}

func (t *memoryTx) DeleteDynamicField(ctx context.Context, orgID, entityID uuid.UUID, name string) error {
	delete(t.m.fields, fieldKey{entityID, name})
	return nil
}

func (t *memoryTx) DeleteDynamicFields(ctx context.Context, orgID, entityID uuid.UUID) error {
	for k := range t.m.fields {
		if k.entity == entityID {
			delete(t.m.fields, k)
		}
	}
	return nil
}

func (t *memoryTx) CountReferences(ctx context.Context, orgID, entityID uuid.UUID) (References, error) {
	return t.m.refs[entityID], nil
}

func (t *memoryTx) DeleteEntity(ctx context.Context, orgID, entityID uuid.UUID) error {
	delete(t.m.entities, entityID)
	return nil
}

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) })
	return svc
}

func createProduct(t *testing.T, ctx context.Context, svc *Service, orgID uuid.UUID, code string) Entity {
	t.Helper()
	e, err := svc.CreateEntity(ctx, CreateInput{
		OrganizationID: orgID,
		EntityType:     "product",
		EntityName:     "Product " + code,
		EntityCode:     code,
		SmartCode:      "HERA.RETAIL.INV.PRODUCT.ITEM.V1",
	})
	require.NoError(t, err)
	return e
}

func TestCreateEntityValidatesSmartCode(t *testing.T) {
	org := uuid.New()
	ctx, _ := rbactest.WithRole(t, context.Background(), org, rbac.RoleManager)
	svc := newTestService(newMemoryRepo())

	_, err := svc.CreateEntity(ctx, CreateInput{
		OrganizationID: org,
		EntityType:     "product",
		EntityName:     "Widget",
		SmartCode:      "HERA.RETAIL.INV.PRODUCT.V1",
	})
	assert.ErrorIs(t, err, shared.ErrMalformedCode)
}

func TestCreateEntityRejectsDuplicateCode(t *testing.T) {
	org := uuid.New()
	ctx, sink := rbactest.WithRole(t, context.Background(), org, rbac.RoleManager)
	svc := newTestService(newMemoryRepo())

	first := createProduct(t, ctx, svc, org, "PRODUCT-1")
	assert.Equal(t, StatusActive, first.Status)
	assert.Contains(t, sink.Actions(), "entity.create")

	_, err := svc.CreateEntity(ctx, CreateInput{
		OrganizationID: org,
		EntityType:     "product",
		EntityName:     "Other",
		EntityCode:     "PRODUCT-1",
		SmartCode:      "HERA.RETAIL.INV.PRODUCT.ITEM.V1",
	})
	assert.ErrorIs(t, err, shared.ErrDuplicateCode)
}

func TestCreateEntityRequiresWritePermission(t *testing.T) {
	org := uuid.New()
	ctx, _ := rbactest.WithRole(t, context.Background(), org, rbac.RoleViewer)
	svc := newTestService(newMemoryRepo())

	_, err := svc.CreateEntity(ctx, CreateInput{
		OrganizationID: org,
		EntityType:     "product",
		EntityName:     "Widget",
		SmartCode:      "HERA.RETAIL.INV.PRODUCT.ITEM.V1",
	})
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)

	_, err = svc.CreateEntity(context.Background(), CreateInput{
		OrganizationID: org,
		EntityType:     "product",
		EntityName:     "Widget",
		SmartCode:      "HERA.RETAIL.INV.PRODUCT.ITEM.V1",
	})
	assert.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestCreateEntityRejectsOtherOrganization(t *testing.T) {
	orgA, orgB := uuid.New(), uuid.New()
	ctx, _ := rbactest.WithRole(t, context.Background(), orgA, rbac.RoleAdmin)
	svc := newTestService(newMemoryRepo())

	_, err := svc.CreateEntity(ctx, CreateInput{
		OrganizationID: orgB,
		EntityType:     "product",
		EntityName:     "Widget",
		SmartCode:      "HERA.RETAIL.INV.PRODUCT.ITEM.V1",
	})
	assert.ErrorIs(t, err, shared.ErrOrganizationBoundaryViolation)
}

func TestSetDynamicFieldOverwritesValue(t *testing.T) {
	org := uuid.New()
	ctx, _ := rbactest.WithRole(t, context.Background(), org, rbac.RoleManager)
	repo := newMemoryRepo()
	svc := newTestService(repo)
	product := createProduct(t, ctx, svc, org, "PRODUCT-1")

	price := FieldInput{FieldName: "price", FieldType: FieldNumber, Value: 100, SmartCode: "HERA.RETAIL.INV.PRODUCT.PRICE.V1"}
	require.NoError(t, svc.SetDynamicField(ctx, org, product.ID, price))
	price.Value = 120.0
	require.NoError(t, svc.SetDynamicField(ctx, org, product.ID, price))

	view, err := svc.GetEntity(ctx, org, product.ID, GetOptions{IncludeDynamic: true})
	require.NoError(t, err)
	assert.Equal(t, 120.0, view.Fields["price"])

	fields, err := svc.GetDynamicFields(ctx, org, product.ID)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, NumberValue(120), fields[0].Value)
}

func TestSetDynamicFieldReplaysAfterConcurrentCommit(t *testing.T) {
	org := uuid.New()
	ctx, _ := rbactest.WithRole(t, context.Background(), org, rbac.RoleManager)
	repo := newMemoryRepo()
	svc := newTestService(repo)
	product := createProduct(t, ctx, svc, org, "PRODUCT-1")
	price := FieldInput{FieldName: "price", FieldType: FieldNumber, Value: 100, SmartCode: "HERA.RETAIL.INV.PRODUCT.PRICE.V1"}
	require.NoError(t, svc.SetDynamicField(ctx, org, product.ID, price))

	repo.beforeUpsert = func(m *memoryRepo, f DynamicField) {
		m.beforeUpsert = nil
		other := m.fields[fieldKey{f.EntityID, f.FieldName}]
		other.Value = NumberValue(110)
		m.commitField(other)
	}
	price.Value = 120
	require.NoError(t, svc.SetDynamicField(ctx, org, product.ID, price))
	assert.Equal(t, int32(1), repo.conflicts.Load())

	fields, err := svc.GetDynamicFields(ctx, org, product.ID)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, NumberValue(120), fields[0].Value)
}

func TestSetDynamicFieldConcurrentWritersAllSucceed(t *testing.T) {
	org := uuid.New()
	ctx, _ := rbactest.WithRole(t, context.Background(), org, rbac.RoleManager)
	repo := newMemoryRepo()
	svc := newTestService(repo)
	product := createProduct(t, ctx, svc, org, "PRODUCT-1")

	const writers = 8
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.SetDynamicField(ctx, org, product.ID, FieldInput{
				FieldName: "price",
				FieldType: FieldNumber,
				Value:     100 + i,
				SmartCode: "HERA.RETAIL.INV.PRODUCT.PRICE.V1",
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	fields, err := svc.GetDynamicFields(ctx, org, product.ID)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	got, ok := fields[0].Value.(NumberValue)
	require.True(t, ok)
	assert.GreaterOrEqual(t, float64(got), 100.0)
	assert.Less(t, float64(got), 100.0+writers)
}

func TestSetDynamicFieldRejectsTypeMismatch(t *testing.T) {
	org := uuid.New()
	ctx, _ := rbactest.WithRole(t, context.Background(), org, rbac.RoleManager)
	repo := newMemoryRepo()
	svc := newTestService(repo)
	product := createProduct(t, ctx, svc, org, "PRODUCT-1")

	err := svc.SetDynamicField(ctx, org, product.ID, FieldInput{
		FieldName: "price", FieldType: FieldNumber, Value: "expensive", SmartCode: "HERA.RETAIL.INV.PRODUCT.PRICE.V1",
	})
	assert.ErrorIs(t, err, shared.ErrInvalidFieldType)
	assert.Empty(t, repo.fields)
}

func TestSetDynamicFieldsIsAtomic(t *testing.T) {
	org := uuid.New()
	ctx, _ := rbactest.WithRole(t, context.Background(), org, rbac.RoleManager)
	repo := newMemoryRepo()
	svc := newTestService(repo)
	product := createProduct(t, ctx, svc, org, "PRODUCT-1")
	other := uuid.New()

	require.NoError(t, svc.SetDynamicFields(ctx, org, product.ID, []FieldInput{
		{FieldName: "colour", FieldType: FieldText, Value: "red", SmartCode: "HERA.RETAIL.INV.PRODUCT.ATTR.V1"},
		{FieldName: "launch", FieldType: FieldDate, Value: "2026-01-02", SmartCode: "HERA.RETAIL.INV.PRODUCT.ATTR.V1"},
	}))
	assert.Len(t, repo.fields, 2)

	err := svc.SetDynamicFields(ctx, org, other, []FieldInput{
		{FieldName: "colour", FieldType: FieldText, Value: "blue", SmartCode: "HERA.RETAIL.INV.PRODUCT.ATTR.V1"},
	})
	assert.ErrorIs(t, err, shared.ErrUnknownEntity)
	assert.Len(t, repo.fields, 2)
}

func TestDeleteDynamicField(t *testing.T) {
	org := uuid.New()
	ctx, _ := rbactest.WithRole(t, context.Background(), org, rbac.RoleManager)
	repo := newMemoryRepo()
	svc := newTestService(repo)
	product := createProduct(t, ctx, svc, org, "PRODUCT-1")
	require.NoError(t, svc.SetDynamicField(ctx, org, product.ID, FieldInput{
		FieldName: "active", FieldType: FieldBoolean, Value: true, SmartCode: "HERA.RETAIL.INV.PRODUCT.ATTR.V1",
	}))

	require.NoError(t, svc.DeleteDynamicField(ctx, org, product.ID, "active"))
	require.NoError(t, svc.DeleteDynamicField(ctx, org, product.ID, "missing"))
	assert.Empty(t, repo.fields)
}

func TestUpdateEntity(t *testing.T) {
	org := uuid.New()
	ctx, sink := rbactest.WithRole(t, context.Background(), org, rbac.RoleManager)
	svc := newTestService(newMemoryRepo())
	product := createProduct(t, ctx, svc, org, "PRODUCT-1")

	name := "Renamed"
	archived := StatusArchived
	updated, err := svc.UpdateEntity(ctx, UpdateInput{
		OrganizationID: org,
		EntityID:       product.ID,
		EntityName:     &name,
		Status:         &archived,
		Metadata:       map[string]any{"colour": "red"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.EntityName)
	assert.Equal(t, StatusArchived, updated.Status)
	assert.Equal(t, "red", updated.Metadata["colour"])
	assert.Contains(t, sink.Actions(), "entity.update")

	self := product.ID
	_, err = svc.UpdateEntity(ctx, UpdateInput{OrganizationID: org, EntityID: product.ID, ParentEntityID: &self})
	assert.ErrorIs(t, err, shared.ErrValidation)

	bogus := Status("gone")
	_, err = svc.UpdateEntity(ctx, UpdateInput{OrganizationID: org, EntityID: product.ID, Status: &bogus})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestGetEntityGroupsRelationships(t *testing.T) {
	org := uuid.New()
	ctx, _ := rbactest.WithRole(t, context.Background(), org, rbac.RoleViewer)
	writeCtx, _ := rbactest.WithRole(t, context.Background(), org, rbac.RoleManager)
	repo := newMemoryRepo()
	svc := newTestService(repo)
	product := createProduct(t, writeCtx, svc, org, "PRODUCT-1")
	repo.rels = []RelationshipSummary{
		{ID: uuid.New(), FromEntityID: product.ID, ToEntityID: uuid.New(), RelationshipType: "has_component"},
		{ID: uuid.New(), FromEntityID: product.ID, ToEntityID: uuid.New(), RelationshipType: "has_component"},
		{ID: uuid.New(), FromEntityID: uuid.New(), ToEntityID: product.ID, RelationshipType: "supplies"},
	}

	view, err := svc.GetEntity(ctx, org, product.ID, GetOptions{IncludeRelationships: true})
	require.NoError(t, err)
	assert.Len(t, view.Relationships["has_component"], 2)
	assert.Len(t, view.Relationships["supplies"], 1)
	assert.Nil(t, view.Fields)

	_, err = svc.GetEntity(ctx, org, uuid.New(), GetOptions{})
	assert.ErrorIs(t, err, shared.ErrUnknownEntity)
}

func TestListEntitiesHidesDeleted(t *testing.T) {
	org := uuid.New()
	ctx, _ := rbactest.WithRole(t, context.Background(), org, rbac.RoleAdmin)
	svc := newTestService(newMemoryRepo())
	keep := createProduct(t, ctx, svc, org, "A")
	gone := createProduct(t, ctx, svc, org, "B")
	require.NoError(t, svc.DeleteEntity(ctx, org, gone.ID, DeleteOptions{Soft: true}))

	views, err := svc.ListEntities(ctx, org, ListFilter{EntityType: "product"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, keep.ID, views[0].ID)

	views, err = svc.ListEntities(ctx, org, ListFilter{Status: StatusDeleted})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, gone.ID, views[0].ID)
}

func TestDeleteEntityBlockedByReferences(t *testing.T) {
	org := uuid.New()
	ctx, _ := rbactest.WithRole(t, context.Background(), org, rbac.RoleAdmin)
	repo := newMemoryRepo()
	svc := newTestService(repo)
	product := createProduct(t, ctx, svc, org, "PRODUCT-1")
	require.NoError(t, svc.SetDynamicField(ctx, org, product.ID, FieldInput{
		FieldName: "price", FieldType: FieldNumber, Value: 10, SmartCode: "HERA.RETAIL.INV.PRODUCT.PRICE.V1",
	}))

	repo.refs[product.ID] = References{DynamicFields: 1, Relationships: 2}
	err := svc.DeleteEntity(ctx, org, product.ID, DeleteOptions{})
	assert.ErrorIs(t, err, shared.ErrEntityInUse)
	assert.Contains(t, repo.entities, product.ID)

	repo.refs[product.ID] = References{DynamicFields: 1}
	require.NoError(t, svc.DeleteEntity(ctx, org, product.ID, DeleteOptions{}))
	assert.NotContains(t, repo.entities, product.ID)
	assert.Empty(t, repo.fields)
}

func TestDeleteEntityRequiresDeletePermission(t *testing.T) {
	org := uuid.New()
	adminCtx, _ := rbactest.WithRole(t, context.Background(), org, rbac.RoleAdmin)
	analystCtx, sink := rbactest.WithRole(t, context.Background(), org, rbac.RoleAnalyst)
	svc := newTestService(newMemoryRepo())
	product := createProduct(t, adminCtx, svc, org, "PRODUCT-1")

	err := svc.DeleteEntity(analystCtx, org, product.ID, DeleteOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrPermissionDenied))
	logs := sink.Logs()
	require.NotEmpty(t, logs)
	assert.Equal(t, shared.AuditDenied, logs[len(logs)-1].Result)
}

func TestMergeViewsIndexesByEntity(t *testing.T) {
	a, b := Entity{ID: uuid.New()}, Entity{ID: uuid.New()}
	fields := []DynamicField{
		{EntityID: a.ID, FieldName: "x", Value: TextValue("1")},
		{EntityID: b.ID, FieldName: "x", Value: TextValue("2")},
	}
	views := MergeViews([]Entity{a, b}, fields, nil, GetOptions{IncludeDynamic: true})
	require.Len(t, views, 2)
	assert.Equal(t, "1", views[0].Fields["x"])
	assert.Equal(t, "2", views[1].Fields["x"])
}
