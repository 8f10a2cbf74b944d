package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jetrpay/streampay/internal/ir"
)

// HeightView is the JSON form of the ledger height.
type HeightView struct {
	Height uint32 `json:"height"`
}

// NewHeightCommand creates the height command.
func NewHeightCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "height",
		Short:         "Print the current ledger height",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeight(rootOpts, cmd)
		},
	}
	return cmd
}

func runHeight(opts *RootOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts, cmd)

	l, closeLedger, err := openLedger(ctx, opts, f)
	if err != nil {
		return err
	}
	defer closeLedger()

	h, err := l.Height(ctx)
	if err != nil {
		return outputLedgerError(f, "height", err)
	}
	if f.Format == "json" {
		return f.Success(HeightView{Height: h})
	}
	fmt.Fprintln(f.Writer, h)
	return nil
}

// NewAdvanceHeightCommand creates the advance-height command.
func NewAdvanceHeightCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advance-height <height>",
		Short: "Move the ledger height forward",
		Long: `Move the ledger height forward. Heights never decrease; setting the
current height again is a no-op.

Examples:
  streampay advance-height 100
  streampay advance-height 250u32`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdvanceHeight(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runAdvanceHeight(opts *RootOptions, arg string, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts, cmd)

	h, err := ir.ParseU32(arg)
	if err != nil {
		return outputError(f, ExitCommandError, ErrCodeInvalidArg, fmt.Sprintf("height: %v", err), nil)
	}

	l, closeLedger, err := openLedger(ctx, opts, f)
	if err != nil {
		return err
	}
	defer closeLedger()

	if err := l.AdvanceHeight(ctx, h); err != nil {
		return outputLedgerError(f, "advance height", err)
	}
	if f.Format == "json" {
		return f.Success(HeightView{Height: h})
	}
	fmt.Fprintf(f.Writer, "✓ Height is now %d\n", h)
	return nil
}
