package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // check failed: invalid code, unbalanced ledger, incomplete chart
	ExitCommandError = 2 // bad flags, config or connectivity
)

var stderr io.Writer = os.Stderr

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

func usageError(err error) error { return &ExitError{Code: ExitCommandError, Err: err} }

func checkFailed(format string, args ...any) error {
	return &ExitError{Code: ExitFailure, Err: fmt.Errorf(format, args...)}
}

// ExitCode maps an error returned by a command to a process exit code.
// Validation failures are the caller's fault; everything else is a failure.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if shared.KindOf(err) == shared.KindValidation {
		return ExitCommandError
	}
	return ExitFailure
}

type printer struct {
	format string
	out    io.Writer
}

func newPrinter(opts *RootOptions, cmd *cobra.Command) printer {
	return printer{format: opts.Format, out: cmd.OutOrStdout()}
}

// emit writes data as JSON, or calls text to render it for humans.
func (p printer) emit(data any, text func(w io.Writer)) error {
	if p.format == "json" {
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	text(p.out)
	return nil
}
