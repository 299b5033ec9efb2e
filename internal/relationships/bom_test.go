package relationships

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

type staticGraph map[uuid.UUID][]Relationship

func (g staticGraph) EdgesFrom(ctx context.Context, orgID, entityID uuid.UUID, filter EdgeFilter) ([]Relationship, error) {
	return g[entityID], nil
}

func (g staticGraph) link(from, to uuid.UUID, qty float64) {
	g[from] = append(g[from], Relationship{FromEntityID: from, ToEntityID: to, RelationshipType: TypeHasComponent, Data: map[string]any{"quantity": qty}})
}

func TestWalkBOMMultipliesQuantities(t *testing.T) {
	service, kit, shampoo, towel := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	g := staticGraph{}
	g.link(service, kit, 2)
	g.link(kit, shampoo, 0.5)
	g.link(service, towel, 1)
	g.link(kit, towel, 3)

	bom, err := WalkBOM(context.Background(), g, uuid.New(), service, TypeHasComponent, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, bom.Leaves[shampoo], 1e-9)
	assert.InDelta(t, 7.0, bom.Leaves[towel], 1e-9)
	assert.NotContains(t, bom.Leaves, kit)
	assert.Len(t, bom.Lines, 4)
}

func TestWalkBOMDetectsCycle(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	g := staticGraph{}
	g.link(a, b, 1)
	g.link(b, a, 1)

	_, err := WalkBOM(context.Background(), g, uuid.New(), a, TypeHasComponent, 0)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestWalkBOMHonoursDepthAndDeadline(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	g := staticGraph{}
	g.link(a, b, 2)
	g.link(b, c, 2)

	bom, err := WalkBOM(context.Background(), g, uuid.New(), a, TypeHasComponent, 1)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]float64{b: 2}, bom.Leaves)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	_, err = WalkBOM(ctx, g, uuid.New(), a, TypeHasComponent, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQuantityDefaults(t *testing.T) {
	assert.Equal(t, 1.0, Quantity(nil))
	assert.Equal(t, 2.5, Quantity(map[string]any{"quantity": "2.5"}))
	assert.Equal(t, 3.0, Quantity(map[string]any{"quantity": 3}))
	assert.Equal(t, 1.0, Quantity(map[string]any{"quantity": true}))
}
