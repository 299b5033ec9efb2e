package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/heraerp/heraerp-prd-sub081/internal/platform/db"
)

// NewMigrateCommand applies the embedded schema.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the six core tables and their indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				_, err := io.WriteString(cmd.OutOrStdout(), db.Schema())
				return err
			}
			core, _, err := opts.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer core.Close()
			if err := db.Migrate(cmd.Context(), core.Pool); err != nil {
				return err
			}
			return newPrinter(opts, cmd).emit(map[string]string{"status": "migrated"}, func(w io.Writer) {
				fmt.Fprintln(w, "schema up to date")
			})
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the schema instead of applying it")
	return cmd
}
