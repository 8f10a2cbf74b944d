package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jetrpay/streampay/internal/ledger"
	"github.com/jetrpay/streampay/internal/payroll"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected claim, failed audit or failed scenarios
	ExitCommandError = 2 // Command error (bad arguments, database or config problems)
)

// Error code constants, unified across all CLI commands.
const (
	ErrCodeGeneric    = "E001" // Generic/unknown error
	ErrCodeConfig     = "E002" // Config file invalid
	ErrCodeDatabase   = "E003" // Database open failed
	ErrCodeInvalidArg = "E004" // Bad flag or argument value
	ErrCodeNotFound   = "E005" // Record, payment or file not found

	// Ledger rejections
	ErrCodeSettlement = "E201" // Settlement rules rejected the operation
	ErrCodeConsumed   = "E202" // Record already consumed
	ErrCodeHeight     = "E203" // Height ahead, regressed or decreasing
	ErrCodeDuplicate  = "E204" // Stream key already issued
	ErrCodeAudit      = "E205" // Chain audit found problems
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// newFormatter builds the formatter for a command from the global flags.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`  // success payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "E001", "E201", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
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
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
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

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
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

// outputError prints an error and returns the matching ExitError.
func outputError(f *OutputFormatter, exitCode int, code, message string, details interface{}) error {
	_ = f.Error(code, message, details)
	return NewExitError(exitCode, fmt.Sprintf("%s: %s", code, message))
}

// outputLedgerError prints a failed ledger operation. Rejections by the
// settlement rules or the store exit with ExitFailure; anything unclassified
// is a command error.
func outputLedgerError(f *OutputFormatter, op string, err error) error {
	outcome := ledger.Outcome(err)
	code := outcomeErrorCode(outcome)

	details := map[string]string{"outcome": outcome}
	var se *payroll.SettlementError
	if errors.As(err, &se) {
		for k, v := range se.Details {
			details[k] = v
		}
	}

	_ = f.Error(code, fmt.Sprintf("%s: %v", op, err), details)

	exitCode := ExitFailure
	if outcome == ledger.OutcomeInternal {
		exitCode = ExitCommandError
	}
	return WrapExitError(exitCode, fmt.Sprintf("%s: %s %s", code, op, outcome), err)
}

// outcomeErrorCode maps a ledger outcome to a CLI error code.
func outcomeErrorCode(outcome string) string {
	switch outcome {
	case ledger.OutcomeRecordNotFound:
		return ErrCodeNotFound
	case ledger.OutcomeRecordConsumed:
		return ErrCodeConsumed
	case ledger.OutcomeHeightAhead, ledger.OutcomeHeightRegress,
		ledger.OutcomeHeightDecrease, ledger.OutcomeHeightFixed:
		return ErrCodeHeight
	case ledger.OutcomeDuplicate:
		return ErrCodeDuplicate
	case ledger.OutcomeInternal:
		return ErrCodeGeneric
	default:
		return ErrCodeSettlement
	}
}
