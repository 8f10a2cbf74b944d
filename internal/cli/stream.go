package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jetrpay/streampay/internal/ir"
	"github.com/jetrpay/streampay/internal/payroll"
	"github.com/jetrpay/streampay/internal/plaintext"
)

// CreateStreamOptions holds flags for the create-stream command.
type CreateStreamOptions struct {
	*RootOptions
	Caller    string
	Employee  string
	Rate      string
	MaxAmount string
	StartTime string
}

// NewCreateStreamCommand creates the create-stream command.
func NewCreateStreamCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateStreamOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create-stream",
		Short: "Open a salary stream",
		Long: `Open a salary stream from the caller (employer) to an employee.

The stream pays --rate per unit of height from --start-time on, up to
--max-amount in total. Amounts accept plain integers or typed literals
(10u64, 100u32). The issued version 0 record is printed in plaintext form.

Examples:
  streampay create-stream --caller acme --employee bob --rate 10 --max-amount 10000
  streampay create-stream --caller acme --employee bob --rate 10u64 --max-amount 500u64 --start-time 100u32
  streampay create-stream --caller acme --employee bob --rate 1 --max-amount 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateStream(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Caller, "caller", "", "employer address (required)")
	_ = cmd.MarkFlagRequired("caller")
	cmd.Flags().StringVar(&opts.Employee, "employee", "", "employee address (required)")
	_ = cmd.MarkFlagRequired("employee")
	cmd.Flags().StringVar(&opts.Rate, "rate", "", "amount accrued per unit of height (required)")
	_ = cmd.MarkFlagRequired("rate")
	cmd.Flags().StringVar(&opts.MaxAmount, "max-amount", "", "lifetime cap (required)")
	_ = cmd.MarkFlagRequired("max-amount")
	cmd.Flags().StringVar(&opts.StartTime, "start-time", "0", "height at which accrual begins")

	return cmd
}

func runCreateStream(opts *CreateStreamOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

	rate, err := ir.ParseU64(opts.Rate)
	if err != nil {
		return outputError(f, ExitCommandError, ErrCodeInvalidArg, fmt.Sprintf("--rate: %v", err), nil)
	}
	maxAmount, err := ir.ParseU64(opts.MaxAmount)
	if err != nil {
		return outputError(f, ExitCommandError, ErrCodeInvalidArg, fmt.Sprintf("--max-amount: %v", err), nil)
	}
	startTime, err := ir.ParseU32(opts.StartTime)
	if err != nil {
		return outputError(f, ExitCommandError, ErrCodeInvalidArg, fmt.Sprintf("--start-time: %v", err), nil)
	}

	l, closeLedger, err := openLedger(ctx, opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer closeLedger()

	rec, err := l.CreateStream(ctx, ir.Address(opts.Caller), ir.Address(opts.Employee), rate, maxAmount, startTime)
	if err != nil {
		return outputLedgerError(f, "create stream", err)
	}

	if f.Format == "json" {
		return f.Success(rec)
	}

	w := f.Writer
	fmt.Fprintf(w, "✓ Stream issued: %s\n\n", rec.StreamKey)
	fmt.Fprintln(w, plaintext.FormatRecord(rec))
	return nil
}

// ClaimSalaryOptions holds flags for the claim-salary command.
type ClaimSalaryOptions struct {
	*RootOptions
	Record   string // plaintext record, or "-" for stdin
	RecordID string
	Caller   string
	Amount   string
	Height   string
}

// NewClaimSalaryCommand creates the claim-salary command.
func NewClaimSalaryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClaimSalaryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "claim-salary",
		Short: "Claim accrued salary from a stream record",
		Long: `Consume a stream record and pay the claimed amount to the employee.

The record is given either as plaintext (--record, "-" reads stdin) or by
ID (--id). The claim is evaluated at --height, which defaults to the
ledger's current height. On success the payment and the successor record
are printed; the successor is the record to present for the next claim.

Exit codes:
  0 - Claim settled
  1 - Claim rejected (see the error code and outcome)
  2 - Command error (bad flags, database problems)

Examples:
  streampay claim-salary --id <record-id> --caller bob --amount 50
  streampay claim-salary --record "$(cat record.txt)" --caller bob --amount 50u64 --height 120u32
  streampay show <record-id> | streampay claim-salary --record - --caller bob --amount 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClaimSalary(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Record, "record", "", `plaintext record to consume ("-" reads stdin)`)
	cmd.Flags().StringVar(&opts.RecordID, "id", "", "ID of the stored record to consume")
	cmd.MarkFlagsMutuallyExclusive("record", "id")
	cmd.MarkFlagsOneRequired("record", "id")
	cmd.Flags().StringVar(&opts.Caller, "caller", "", "claiming address (required)")
	_ = cmd.MarkFlagRequired("caller")
	cmd.Flags().StringVar(&opts.Amount, "amount", "", "amount to claim (required)")
	_ = cmd.MarkFlagRequired("amount")
	cmd.Flags().StringVar(&opts.Height, "height", "", "claim height (default: current ledger height)")

	return cmd
}

func runClaimSalary(opts *ClaimSalaryOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

	amount, err := ir.ParseU64(opts.Amount)
	if err != nil {
		return outputError(f, ExitCommandError, ErrCodeInvalidArg, fmt.Sprintf("--amount: %v", err), nil)
	}

	var rec ir.StreamRecord
	if opts.Record != "" {
		text := opts.Record
		if text == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return outputError(f, ExitCommandError, ErrCodeInvalidArg, fmt.Sprintf("reading record from stdin: %v", err), nil)
			}
			text = string(data)
		}
		rec, err = plaintext.ParseRecord(text)
		if err != nil {
			return outputError(f, ExitCommandError, ErrCodeInvalidArg, err.Error(), nil)
		}
	}

	l, closeLedger, err := openLedger(ctx, opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer closeLedger()

	var height uint32
	if strings.TrimSpace(opts.Height) != "" {
		height, err = ir.ParseU32(opts.Height)
		if err != nil {
			return outputError(f, ExitCommandError, ErrCodeInvalidArg, fmt.Sprintf("--height: %v", err), nil)
		}
	} else {
		height, err = l.Height(ctx)
		if err != nil {
			return outputLedgerError(f, "claim salary", err)
		}
	}

	var res payroll.ClaimResult
	if opts.RecordID != "" {
		f.VerboseLog("Claiming %d from %s at height %d", amount, opts.RecordID, height)
		res, err = l.ClaimByID(ctx, ir.Address(opts.Caller), opts.RecordID, amount, height)
	} else {
		f.VerboseLog("Claiming %d from %s at height %d", amount, rec.ID, height)
		res, err = l.ClaimSalary(ctx, ir.Address(opts.Caller), rec, amount, height)
	}
	if err != nil {
		return outputLedgerError(f, "claim salary", err)
	}

	if f.Format == "json" {
		return f.Success(ClaimView{
			Consumed:  res.Consumed.ID,
			Payment:   res.Payment,
			Successor: res.Successor,
			Exhausted: res.Exhausted(),
			Accrual:   res.Accrual,
			Height:    height,
		})
	}

	w := f.Writer
	fmt.Fprintf(w, "✓ Claimed %d at height %d (available was %d)\n\n", res.Payment.Amount, height, res.Accrual.Available)
	fmt.Fprintln(w, "Payment:")
	fmt.Fprintln(w, plaintext.FormatPayment(res.Payment))
	fmt.Fprintln(w)
	switch {
	case res.Successor == nil:
		fmt.Fprintln(w, "Stream exhausted: no successor record.")
	case res.Successor.Exhausted():
		fmt.Fprintln(w, "Successor (exhausted):")
		fmt.Fprintln(w, plaintext.FormatRecord(*res.Successor))
	default:
		fmt.Fprintln(w, "Successor:")
		fmt.Fprintln(w, plaintext.FormatRecord(*res.Successor))
	}
	return nil
}
