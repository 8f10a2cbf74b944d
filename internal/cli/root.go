package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jetrpay/streampay/internal/ir"
	"github.com/jetrpay/streampay/internal/payroll"
)

// DefaultDatabase is the ledger database used when neither --db nor the
// config file names one.
const DefaultDatabase = "streampay.db"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	Database   string
	ConfigPath string

	// Policy is filled from the config file. The zero value means defaults.
	Policy payroll.Policy
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the streampay CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "streampay",
		Version: ir.EngineVersion,
		Short:   "streampay - salary streams over single-use records",
		Long:    `Issue salary streams and settle claims against a local record ledger.

An employer opens a stream paying an employee a fixed rate per unit of
height up to a cap. Each claim consumes the presented record and emits a
payment plus a successor record carrying the remainder.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}

			cfg, err := LoadConfig(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			if !cmd.Flags().Changed("db") && cfg.DB != "" {
				opts.Database = cfg.DB
			}
			opts.Policy = cfg.Policy

			logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to configure logging", err)
			}
			slog.SetDefault(logger)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", DefaultDatabase, "path to SQLite ledger database")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to CUE config file")

	cmd.AddCommand(NewCreateStreamCommand(opts))
	cmd.AddCommand(NewClaimSalaryCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewRecordsCommand(opts))
	cmd.AddCommand(NewPaymentsCommand(opts))
	cmd.AddCommand(NewAccruedCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewHeightCommand(opts))
	cmd.AddCommand(NewAdvanceHeightCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
