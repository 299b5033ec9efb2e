package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/heraerp/heraerp-prd-sub081/internal/relationships"
)

// NewBOMCommand expands a bill of materials along relationship edges.
func NewBOMCommand(opts *RootOptions) *cobra.Command {
	var (
		org     string
		relType string
		depth   int
	)
	cmd := &cobra.Command{
		Use:   "bom <root-entity-id>",
		Short: "Expand a bill of materials and total leaf quantities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireActor(opts); err != nil {
				return err
			}
			root, err := uuid.Parse(args[0])
			if err != nil {
				return usageError(fmt.Errorf("root entity id: %w", err))
			}
			core, _, err := opts.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer core.Close()
			ctx, sc, err := core.Session(cmd.Context(), opts.Actor, org)
			if err != nil {
				return err
			}
			bom, err := relationships.WalkBOM(ctx, core.Relationships, sc.OrganizationID(), root, relType, depth)
			if err != nil {
				return err
			}
			return newPrinter(opts, cmd).emit(bom, func(w io.Writer) {
				for _, line := range bom.Lines {
					fmt.Fprintf(w, "%*s%s x%g\n", 2*(line.Depth-1), "", line.EntityID, line.Quantity)
				}
				leaves := make([]uuid.UUID, 0, len(bom.Leaves))
				for id := range bom.Leaves {
					leaves = append(leaves, id)
				}
				sort.Slice(leaves, func(i, j int) bool { return leaves[i].String() < leaves[j].String() })
				fmt.Fprintln(w, "totals:")
				for _, id := range leaves {
					fmt.Fprintf(w, "  %s %g\n", id, bom.Leaves[id])
				}
			})
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "organization id")
	cmd.Flags().StringVar(&relType, "type", relationships.TypeHasComponent, "relationship type to follow")
	cmd.Flags().IntVar(&depth, "depth", relationships.DefaultBOMDepth, "maximum expansion depth")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}
