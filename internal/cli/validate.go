package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/storekit/internal/errs"
	"github.com/roach88/storekit/internal/optdoc"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool             `json:"valid"`
	Operation optdoc.Operation `json:"operation,omitempty"`
	Entity    string           `json:"entity,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <document>",
		Short: "Validate an option document",
		Long: `Validate an option document without touching a backend.

Checks the document against its schema, then checks the decoded filter,
update and pipeline the way the repository would before running them.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	doc, err := loadDocument(formatter, path)
	if err != nil {
		return err
	}

	formatter.VerboseLog("Document %s: operation %s on %q", path, doc.Operation, doc.Entity)

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Operation: doc.Operation, Entity: doc.Entity})
	}
	fmt.Fprintln(formatter.Writer, "✓ Document valid")
	return nil
}

// loadDocument reads, parses and validates the document at path. Read
// failures are command errors; invalid documents are failures.
func loadDocument(formatter *OutputFormatter, path string) (*optdoc.Document, error) {
	doc, err := optdoc.ReadFile(path)
	if err == nil {
		err = doc.Validate()
	}
	if err == nil {
		return doc, nil
	}
	if errs.CodeOf(err) == "" {
		return nil, commandError(formatter, ErrCodeReadFailed, err)
	}
	return nil, failure(formatter, err)
}

// commandError reports a failure to set up the command (exit code 2).
func commandError(formatter *OutputFormatter, code string, err error) error {
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, code, err)
}

// failure reports a rejected document or repository call (exit code 1).
func failure(formatter *OutputFormatter, err error) error {
	_ = formatter.Failure(err)
	return WrapExitError(ExitFailure, string(errs.CodeOf(err)), err)
}
