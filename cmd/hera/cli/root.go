// Package cli implements the hera operator command line.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/heraerp/heraerp-prd-sub081/internal/app"
)

// RootOptions holds global flags and the lazily connected runtime.
type RootOptions struct {
	Format string
	Actor  string

	// Connect opens the core services. Commands that only work on smart codes
	// never call it.
	Connect func(ctx context.Context) (*app.Core, *app.Config, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the hera CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Connect: connect}

	cmd := &cobra.Command{
		Use:           "hera",
		Short:         "HERA core operator tooling",
		Long:          "Smart code tools, schema migration, chart checks, reconciliation and job control for the HERA core.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return usageError(fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", "", "actor entity id used to establish the security context")

	cmd.AddCommand(NewSmartCodeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewCOACommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewDocNumCommand(opts))
	cmd.AddCommand(NewBOMCommand(opts))
	cmd.AddCommand(NewJobsCommand(opts))

	return cmd
}

func connect(ctx context.Context) (*app.Core, *app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, usageError(err)
	}
	// Logs go to stderr so JSON output stays parseable.
	logger := app.NewLoggerTo(cfg, stderr)
	core, err := app.NewCore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return core, cfg, nil
}
