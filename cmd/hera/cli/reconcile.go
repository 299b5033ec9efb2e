package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/heraerp/heraerp-prd-sub081/internal/app"
	"github.com/heraerp/heraerp-prd-sub081/internal/ledger"
	"github.com/heraerp/heraerp-prd-sub081/internal/rbac"
)

// NewReconcileCommand runs the ledger reconcile for one or more organizations.
func NewReconcileCommand(opts *RootOptions) *cobra.Command {
	var (
		orgs   []string
		from   string
		to     string
		prefix string
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check that assets equal liabilities plus equity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireActor(opts); err != nil {
				return err
			}
			filter, err := reconcileFilter(from, to, prefix)
			if err != nil {
				return err
			}
			orgIDs, err := app.ParseIDs(orgs)
			if err != nil {
				return err
			}
			core, _, err := opts.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer core.Close()

			scopes := make([]*rbac.Context, 0, len(orgIDs))
			for _, org := range orgIDs {
				_, sc, err := core.Session(cmd.Context(), opts.Actor, org.String())
				if err != nil {
					return err
				}
				scopes = append(scopes, sc)
			}
			results, err := core.Ledger.ReconcileMany(cmd.Context(), scopes, filter)
			if err != nil {
				return err
			}
			unbalanced := 0
			for _, r := range results {
				if !r.Balanced {
					unbalanced++
				}
			}
			if err := newPrinter(opts, cmd).emit(results, func(w io.Writer) {
				for _, r := range results {
					state := "balanced"
					if !r.Balanced {
						state = "UNBALANCED"
					}
					fmt.Fprintf(w, "%s  %-10s  diff=%.2f  assets=%.2f liabilities=%.2f equity=%.2f revenue=%.2f expenses=%.2f\n",
						r.OrganizationID, state, r.Difference, r.Totals.Assets, r.Totals.Liabilities, r.Totals.Equity, r.Totals.Revenue, r.Totals.Expenses)
				}
			}); err != nil {
				return err
			}
			if unbalanced > 0 {
				return checkFailed("%d organization(s) unbalanced", unbalanced)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&orgs, "org", nil, "organization id (repeatable)")
	cmd.Flags().StringVar(&from, "from", "", "first transaction date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last transaction date, YYYY-MM-DD")
	cmd.Flags().StringVar(&prefix, "smart-code-prefix", "", "only count transactions under this smart code prefix")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func reconcileFilter(from, to, prefix string) (ledger.ReconcileFilter, error) {
	filter := ledger.ReconcileFilter{SmartCodePrefix: prefix}
	if from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return filter, usageError(fmt.Errorf("--from: %w", err))
		}
		filter.From = t
	}
	if to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return filter, usageError(fmt.Errorf("--to: %w", err))
		}
		// --to is inclusive; the ledger compares with an exclusive bound.
		filter.To = t.AddDate(0, 0, 1)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.To.After(filter.From) {
		return filter, usageError(fmt.Errorf("--to is before --from"))
	}
	return filter, nil
}
