package relationships

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

// DefaultBOMDepth bounds WalkBOM when the caller passes no depth.
const DefaultBOMDepth = 16

// Traverser is the single-hop lookup WalkBOM builds on.
type Traverser interface {
	EdgesFrom(ctx context.Context, orgID, entityID uuid.UUID, filter EdgeFilter) ([]Relationship, error)
}

// BOMLine is one reached component with its cumulative per-unit quantity.
type BOMLine struct {
	EntityID uuid.UUID   `json:"entity_id"`
	Depth    int         `json:"depth"`
	Quantity float64     `json:"quantity"`
	Path     []uuid.UUID `json:"path"`
	Leaf     bool        `json:"leaf"`
}

// BOM is the expansion of a root entity.
type BOM struct {
	Root   uuid.UUID             `json:"root"`
	Lines  []BOMLine             `json:"lines"`
	Leaves map[uuid.UUID]float64 `json:"leaf_totals"`
}

// WalkBOM expands root depth-first along relType edges, multiplying the
// quantity carried in each edge's relationship_data. Leaf totals aggregate
// every path reaching the same component. A cycle on the current path fails
// with a validation error; ctx cancellation stops the walk between hops.
func WalkBOM(ctx context.Context, graph Traverser, orgID, root uuid.UUID, relType string, maxDepth int) (BOM, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultBOMDepth
	}
	bom := BOM{Root: root, Leaves: map[uuid.UUID]float64{}}
	onPath := map[uuid.UUID]bool{root: true}
	var walk func(id uuid.UUID, qty float64, path []uuid.UUID, depth int) error
	walk = func(id uuid.UUID, qty float64, path []uuid.UUID, depth int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		edges, err := graph.EdgesFrom(ctx, orgID, id, EdgeFilter{RelationshipType: relType})
		if err != nil {
			return err
		}
		for _, edge := range edges {
			child := edge.ToEntityID
			if onPath[child] {
				return shared.Errorf(shared.KindValidation, "bom cycle through entity %s", child)
			}
			childQty := qty * Quantity(edge.Data)
			childPath := append(append([]uuid.UUID(nil), path...), child)
			line := BOMLine{EntityID: child, Depth: depth, Quantity: childQty, Path: childPath}
			idx := len(bom.Lines)
			bom.Lines = append(bom.Lines, line)
			if depth >= maxDepth {
				bom.Lines[idx].Leaf = true
				bom.Leaves[child] += childQty
				continue
			}
			before := len(bom.Lines)
			onPath[child] = true
			if err := walk(child, childQty, childPath, depth+1); err != nil {
				return err
			}
			delete(onPath, child)
			if len(bom.Lines) == before {
				bom.Lines[idx].Leaf = true
				bom.Leaves[child] += childQty
			}
		}
		return nil
	}
	if err := walk(root, 1, []uuid.UUID{root}, 1); err != nil {
		return BOM{}, err
	}
	return bom, nil
}

// Quantity reads the per-unit multiplier of an edge, defaulting to 1.
func Quantity(data map[string]any) float64 {
	raw, ok := data["quantity"]
	if !ok {
		return 1
	}
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 1
}
