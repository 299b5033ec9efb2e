package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/heraerp/heraerp-prd-sub081/internal/rbac"
	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

// NewCOACommand groups chart of accounts tooling.
func NewCOACommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coa",
		Short: "Chart of accounts checks",
	}
	cmd.AddCommand(newCOACheckCommand(opts))
	return cmd
}

func newCOACheckCommand(opts *RootOptions) *cobra.Command {
	var org string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report required account categories missing from an organization's chart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireActor(opts); err != nil {
				return err
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
			status, err := core.COA.ValidateChartExists(ctx, sc.OrganizationID())
			if err != nil {
				return err
			}
			if err := newPrinter(opts, cmd).emit(status, func(w io.Writer) {
				if status.Valid {
					fmt.Fprintf(w, "chart complete (%d accounts)\n", status.Accounts)
					return
				}
				fmt.Fprintf(w, "chart incomplete (%d accounts), missing: %s\n", status.Accounts, strings.Join(status.MissingAccountCategories, ", "))
			}); err != nil {
				return err
			}
			if !status.Valid {
				return checkFailed("chart of accounts incomplete")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "organization id")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

// NewDocNumCommand issues the next document number for a transaction type.
func NewDocNumCommand(opts *RootOptions) *cobra.Command {
	var (
		org   string
		txnTy string
		at    string
	)
	cmd := &cobra.Command{
		Use:   "docnum",
		Short: "Issue the next document number for a transaction type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var when time.Time
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return usageError(fmt.Errorf("--at: %w", err))
				}
				when = parsed
			}
			if err := requireActor(opts); err != nil {
				return err
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
			if _, err := rbac.Require(ctx, sc.OrganizationID(), shared.PermTransactionsPost, "coa:docnum"); err != nil {
				return err
			}
			num, err := core.COA.GenerateDocumentNumber(ctx, sc.OrganizationID(), txnTy, when)
			if err != nil {
				return err
			}
			return newPrinter(opts, cmd).emit(num, func(w io.Writer) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", num.TransactionCode, num.ReferenceNumber, num.ExternalReference)
			})
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "organization id")
	cmd.Flags().StringVar(&txnTy, "type", "", "transaction type (journal_entry, sales_invoice, purchase_order, payment, receipt, ...)")
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 timestamp to number for (default now)")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func requireActor(opts *RootOptions) error {
	if opts.Actor == "" {
		return usageError(errors.New("--actor is required"))
	}
	return nil
}
