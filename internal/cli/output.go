package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/roach88/entql/internal/config"
	"github.com/roach88/entql/internal/expr"
	"github.com/roach88/entql/internal/orm"
	"github.com/roach88/entql/internal/schema"
	"github.com/roach88/entql/internal/sqlgen"
	"github.com/roach88/entql/internal/store"
	"github.com/roach88/entql/internal/tracker"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Schema invalid, query rejected, storage failure
	ExitCommandError = 2 // Command error (bad flags, missing files, bad config)
)

// Error codes reported in CLI output.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E002" // Path not found
	ErrCodeLoadFailed  = "E003" // CUE schema could not be loaded
	ErrCodeMetadata    = "E004" // Entity or context declaration rejected
	ErrCodeQuery       = "E005" // Expression tree rejected or not lowerable
	ErrCodeStorage     = "E006" // Storage collaborator failure
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeConfig      = "E008" // Config file invalid
	ErrCodeCardinality = "E009" // Single/First found the wrong number of rows
	ErrCodeEmptyEntity = "E010" // Insert with no populated field
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	reported bool // already written to the command's output
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// Reported reports whether err was already written to the command output
// by an OutputFormatter, so callers should not print it again.
func Reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.reported
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode classifies err into one of the ErrCode constants.
func ErrorCode(err error) string {
	var le *schema.LoadError
	switch {
	case errors.Is(err, config.ErrConfigInvalid), errors.Is(err, config.ErrConfigRead),
		errors.Is(err, config.ErrUnknownFormat):
		return ErrCodeConfig
	case schema.IsMetadataError(err):
		return ErrCodeMetadata
	case errors.As(err, &le):
		return ErrCodeLoadFailed
	case expr.IsChainError(err), expr.IsTypeMismatch(err), sqlgen.IsLoweringError(err):
		return ErrCodeQuery
	case sqlgen.IsEmptyEntity(err):
		return ErrCodeEmptyEntity
	case orm.IsCardinalityError(err):
		return ErrCodeCardinality
	case tracker.IsStateError(err):
		return ErrCodeQuery
	case store.IsStorageError(err):
		return ErrCodeStorage
	case errors.Is(err, os.ErrNotExist):
		return ErrCodeNotFound
	}
	return ErrCodeGeneric
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Table is tabular command output: a header plus rows of plain values.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// String renders the table as tab-aligned text with a header line.
func (t Table) String() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(t.Columns, "\t"))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	_ = w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err in the configured format and returns it as an
// ExitError carrying exitCode.
func (f *OutputFormatter) Fail(exitCode int, message string, err error) error {
	return f.FailWith(exitCode, ErrorCode(err), message, err, nil)
}

// FailWith is Fail with an explicit error code and details.
func (f *OutputFormatter) FailWith(exitCode int, code, message string, err error, details any) error {
	if outErr := f.Error(code, fmt.Sprintf("%s: %v", message, err), details); outErr != nil {
		return outErr
	}
	return &ExitError{Code: exitCode, Message: message, Err: err, reported: true}
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
