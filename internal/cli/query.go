package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jetrpay/streampay/internal/ir"
	"github.com/jetrpay/streampay/internal/ledger"
	"github.com/jetrpay/streampay/internal/plaintext"
	"github.com/jetrpay/streampay/internal/store"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored record or payment",
		Long: `Show a stored stream record or payment by ID.

Records are printed in plaintext form followed by their lifecycle, so the
output can be piped into "claim-salary --record -".

Examples:
  streampay show <record-id>
  streampay show <payment-id> --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runShow(opts *RootOptions, id string, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts, cmd)

	l, closeLedger, err := openLedger(ctx, opts, f)
	if err != nil {
		return err
	}
	defer closeLedger()

	rec, err := l.Record(ctx, id)
	if err == nil {
		if f.Format == "json" {
			return f.Success(newRecordView(rec))
		}
		w := f.Writer
		fmt.Fprintln(w, plaintext.FormatRecord(rec.Record))
		fmt.Fprintln(w)
		fmt.Fprintf(w, "issued at height %d\n", rec.Height)
		switch {
		case !rec.Consumed:
			fmt.Fprintln(w, "status: unspent")
		case rec.SuccessorID == "":
			fmt.Fprintf(w, "status: consumed at height %d, payment %s, no successor\n", rec.ConsumedHeight, rec.PaymentID)
		default:
			fmt.Fprintf(w, "status: consumed at height %d, payment %s, successor %s\n", rec.ConsumedHeight, rec.PaymentID, rec.SuccessorID)
		}
		return nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return outputLedgerError(f, "show", err)
	}

	p, err := l.Payment(ctx, id)
	if err != nil {
		return outputLedgerError(f, "show", err)
	}
	if f.Format == "json" {
		return f.Success(PaymentView{Payment: p.Payment, Height: p.Height})
	}
	fmt.Fprintln(f.Writer, plaintext.FormatPayment(p.Payment))
	fmt.Fprintln(f.Writer)
	fmt.Fprintf(f.Writer, "emitted at height %d\n", p.Height)
	return nil
}

// ListOptions holds flags for the records and payments commands.
type ListOptions struct {
	*RootOptions
	Owner string
}

// NewRecordsCommand creates the records command.
func NewRecordsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List unspent stream records",
		Long: `List stream records that have not been consumed yet.

Examples:
  streampay records
  streampay records --owner bob --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecords(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "only records owned by this address")

	return cmd
}

func runRecords(opts *ListOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

	l, closeLedger, err := openLedger(ctx, opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer closeLedger()

	records, err := l.Unspent(ctx, ir.Address(opts.Owner))
	if err != nil {
		return outputLedgerError(f, "list records", err)
	}

	if f.Format == "json" {
		views := make([]RecordView, 0, len(records))
		for _, r := range records {
			views = append(views, newRecordView(r))
		}
		return f.Success(views)
	}

	if len(records) == 0 {
		fmt.Fprintln(f.Writer, "No unspent records.")
		return nil
	}
	for _, r := range records {
		rec := r.Record
		fmt.Fprintf(f.Writer, "%s  v%d  owner=%s  claimed=%d/%d  rate=%d  start=%d\n",
			rec.ID, rec.Version, rec.Owner, rec.ClaimedAmount, rec.MaxAmount, rec.Rate, rec.StartTime)
	}
	return nil
}

// NewPaymentsCommand creates the payments command.
func NewPaymentsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "payments",
		Short: "List payments",
		Long: `List payment outputs emitted by settled claims.

Examples:
  streampay payments
  streampay payments --owner bob`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPayments(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "only payments owned by this address")

	return cmd
}

func runPayments(opts *ListOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

	l, closeLedger, err := openLedger(ctx, opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer closeLedger()

	payments, err := l.Payments(ctx, ir.Address(opts.Owner))
	if err != nil {
		return outputLedgerError(f, "list payments", err)
	}

	if f.Format == "json" {
		views := make([]PaymentView, 0, len(payments))
		for _, p := range payments {
			views = append(views, PaymentView{Payment: p.Payment, Height: p.Height})
		}
		return f.Success(views)
	}

	if len(payments) == 0 {
		fmt.Fprintln(f.Writer, "No payments.")
		return nil
	}
	var total uint64
	for _, p := range payments {
		total += p.Payment.Amount
		fmt.Fprintf(f.Writer, "%s  owner=%s  amount=%d  height=%d  source=%s\n",
			p.Payment.ID, p.Payment.Owner, p.Payment.Amount, p.Height, p.Payment.Source)
	}
	fmt.Fprintf(f.Writer, "\nTotal: %d across %d payment(s)\n", total, len(payments))
	return nil
}

// AccruedOptions holds flags for the accrued command.
type AccruedOptions struct {
	*RootOptions
	Height string
}

// NewAccruedCommand creates the accrued command.
func NewAccruedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccruedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "accrued <record-id>",
		Short: "Show what a record could pay at a height",
		Long: `Compute the accrual of a stored record without claiming.

Reports the accrued total, what is still available to claim and what
remains under the cap. --height defaults to the current ledger height.

Examples:
  streampay accrued <record-id>
  streampay accrued <record-id> --height 500`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccrued(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Height, "height", "", "height to evaluate at (default: current ledger height)")

	return cmd
}

func runAccrued(opts *AccruedOptions, id string, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

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
	} else if height, err = l.Height(ctx); err != nil {
		return outputLedgerError(f, "accrued", err)
	}

	acc, err := l.Accrued(ctx, id, height)
	if err != nil {
		return outputLedgerError(f, "accrued", err)
	}

	if f.Format == "json" {
		return f.Success(acc)
	}

	w := f.Writer
	fmt.Fprintf(w, "height:        %d\n", acc.Height)
	fmt.Fprintf(w, "elapsed:       %d\n", acc.Elapsed)
	fmt.Fprintf(w, "accrued total: %d\n", acc.AccruedTotal)
	fmt.Fprintf(w, "claimed:       %d\n", acc.Claimed)
	fmt.Fprintf(w, "available:     %d\n", acc.Available)
	fmt.Fprintf(w, "remaining:     %d\n", acc.Remaining)
	if acc.Saturated {
		fmt.Fprintln(w, "(rate*elapsed overflowed; saturated at max_amount)")
	}
	return nil
}

// AuditResult holds the reports of an audit run.
type AuditResult struct {
	Reports []ledger.AuditReport `json:"reports"`
	Passed  int                  `json:"passed"`
	Failed  int                  `json:"failed"`
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit [stream-key...]",
		Short: "Replay and re-check stored stream chains",
		Long: `Replay the stored chain of each stream and re-check it.

Every record and payment must re-hash to its ID, versions must link to
their predecessors, claimed amounts must only grow, and payments must add
up to the claimed amount without exceeding the cap. With no arguments
every stream in the ledger is audited.

Exit codes:
  0 - All audited streams are consistent
  1 - One or more streams have problems
  2 - Command error

Examples:
  streampay audit
  streampay audit <stream-key> --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runAudit(opts *RootOptions, keys []string, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts, cmd)

	l, closeLedger, err := openLedger(ctx, opts, f)
	if err != nil {
		return err
	}
	defer closeLedger()

	if len(keys) == 0 {
		keys, err = l.Streams(ctx)
		if err != nil {
			return outputLedgerError(f, "audit", err)
		}
	}

	result := AuditResult{Reports: make([]ledger.AuditReport, 0, len(keys))}
	for _, key := range keys {
		f.VerboseLog("Auditing stream %s", key)
		report, err := l.Audit(ctx, key)
		if err != nil {
			return outputLedgerError(f, "audit", err)
		}
		result.Reports = append(result.Reports, report)
		if report.OK() {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if f.Format == "json" {
		return outputAuditJSON(f, result)
	}
	return outputAuditText(f, result)
}

func outputAuditJSON(f *OutputFormatter, result AuditResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeAudit,
			Message: fmt.Sprintf("%d stream(s) failed audit", result.Failed),
		}
	}

	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d stream(s) failed audit", result.Failed))
	}
	return nil
}

func outputAuditText(f *OutputFormatter, result AuditResult) error {
	w := f.Writer

	if len(result.Reports) == 0 {
		fmt.Fprintln(w, "No streams found.")
		return nil
	}

	for _, r := range result.Reports {
		mark := "✓"
		if !r.OK() {
			mark = "✗"
		}
		state := "open"
		if r.Exhausted {
			state = "exhausted"
		}
		fmt.Fprintf(w, "%s %s  versions=%d payments=%d paid=%d/%d %s\n",
			mark, r.StreamKey, r.Versions, r.Payments, r.Paid, r.MaxAmount, state)
		for _, p := range r.Problems {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Audit Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, len(result.Reports))
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d stream(s) failed audit", result.Failed))
	}
	return nil
}
