package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heraerp/heraerp-prd-sub081/internal/smartcode"
)

// NewSmartCodeCommand groups the offline smart code tools.
func NewSmartCodeCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "smartcode",
		Aliases: []string{"sc"},
		Short:   "Validate, version and build smart codes",
	}
	cmd.AddCommand(newSmartCodeValidateCommand(opts))
	cmd.AddCommand(newSmartCodeNextCommand(opts))
	cmd.AddCommand(newSmartCodeCategoryCommand(opts))
	cmd.AddCommand(newSmartCodeTemplatesCommand(opts))
	cmd.AddCommand(newSmartCodeFillCommand(opts))
	return cmd
}

func newSmartCodeValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <code>...",
		Short: "Check codes against the grammar",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			type row struct {
				Code string `json:"code"`
				smartcode.Result
			}
			rows := make([]row, 0, len(args))
			invalid := 0
			for _, code := range args {
				res := smartcode.Validate(code)
				if !res.Valid {
					invalid++
				}
				rows = append(rows, row{Code: code, Result: res})
			}
			err := newPrinter(opts, cmd).emit(rows, func(w io.Writer) {
				for _, r := range rows {
					if r.Valid {
						fmt.Fprintf(w, "OK      %s (%s)\n", r.Code, r.Components.Category())
						continue
					}
					fmt.Fprintf(w, "INVALID %s: %s\n", r.Code, strings.Join(r.Errors, "; "))
				}
			})
			if err != nil {
				return err
			}
			if invalid > 0 {
				return checkFailed("%d of %d codes invalid", invalid, len(args))
			}
			return nil
		},
	}
}

func newSmartCodeNextCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "next <code>",
		Short: "Print the code with its version incremented",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			next, err := smartcode.NextVersion(args[0])
			if err != nil {
				return checkFailed("%v", err)
			}
			return newPrinter(opts, cmd).emit(map[string]string{"code": args[0], "next": next}, func(w io.Writer) {
				fmt.Fprintln(w, next)
			})
		},
	}
}

func newSmartCodeCategoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "category <code>",
		Short: "Print the INDUSTRY.MODULE.TYPE triad",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := smartcode.Category(args[0])
			if err != nil {
				return checkFailed("%v", err)
			}
			return newPrinter(opts, cmd).emit(map[string]string{"code": args[0], "category": category}, func(w io.Writer) {
				fmt.Fprintln(w, category)
			})
		},
	}
}

func newSmartCodeTemplatesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List curated code templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalogue := smartcode.Templates()
			list := make([]smartcode.Template, 0, len(catalogue))
			for _, name := range smartcode.TemplateNames() {
				list = append(list, catalogue[name])
			}
			return newPrinter(opts, cmd).emit(list, func(w io.Writer) {
				for _, t := range list {
					fmt.Fprintf(w, "%-22s %-40s %s\n", t.Name, t.Code, t.Description)
				}
			})
		},
	}
}

func newSmartCodeFillCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fill <template> key=value...",
		Short: "Build a code from a template",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, ok := smartcode.Templates()[args[0]]
			if !ok {
				return usageError(fmt.Errorf("unknown template %q (see: hera smartcode templates)", args[0]))
			}
			values := make(map[string]string, len(args)-1)
			for _, kv := range args[1:] {
				key, value, found := strings.Cut(kv, "=")
				if !found {
					return usageError(fmt.Errorf("expected key=value, got %q", kv))
				}
				values[key] = value
			}
			code, err := smartcode.Fill(tmpl.Code, values)
			if err != nil {
				return checkFailed("%v", err)
			}
			return newPrinter(opts, cmd).emit(map[string]string{"template": tmpl.Name, "code": code}, func(w io.Writer) {
				fmt.Fprintln(w, code)
			})
		},
	}
}
