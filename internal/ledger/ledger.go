package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jetrpay/streampay/internal/ir"
	"github.com/jetrpay/streampay/internal/payroll"
	"github.com/jetrpay/streampay/internal/store"
)

var (
	// ErrHeightAhead is returned when a claim names a height the oracle has
	// not reached yet.
	ErrHeightAhead = errors.New("height is ahead of the chain")

	// ErrHeightRegressed is returned when a claim names a height below the
	// height at which the presented record was produced.
	ErrHeightRegressed = errors.New("height is below the record's settlement height")

	// ErrDuplicateStream is returned when issuance produced a stream key that
	// is already stored (the nonce generator repeated itself).
	ErrDuplicateStream = errors.New("stream already issued")

	// ErrHeightFixed is returned by AdvanceHeight when the oracle cannot move.
	ErrHeightFixed = errors.New("height oracle cannot be advanced")
)

// HeightAdvancer is implemented by oracles that can be moved forward.
type HeightAdvancer interface {
	AdvanceHeight(ctx context.Context, h uint32) error
}

// Ledger issues and settles salary streams against a record store.
//
// Ledger is safe for concurrent use. Concurrent claims on the same record are
// resolved by the store: exactly one succeeds.
type Ledger struct {
	store   *store.Store
	policy  payroll.Policy
	settler *payroll.Settler
	oracle  HeightOracle
	nonces  NonceGenerator
	clock   *Clock
	logger  *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPolicy sets the settlement policy. Invalid policies make New fail.
func WithPolicy(p payroll.Policy) Option {
	return func(l *Ledger) {
		l.policy = p
	}
}

// WithHeightOracle sets the height source. Default: the store itself.
func WithHeightOracle(o HeightOracle) Option {
	return func(l *Ledger) {
		l.oracle = o
	}
}

// WithNonces sets the issuance nonce generator. Default: UUIDv7Nonces.
func WithNonces(g NonceGenerator) Option {
	return func(l *Ledger) {
		l.nonces = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// New creates a Ledger over s. The logical clock resumes from the highest
// seq already in the store.
func New(ctx context.Context, s *store.Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:  s,
		policy: payroll.DefaultPolicy(),
		oracle: s,
		nonces: UUIDv7Nonces{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	settler, err := payroll.New(l.policy)
	if err != nil {
		return nil, fmt.Errorf("new ledger: %w", err)
	}
	l.settler = settler

	last, err := s.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("new ledger: %w", err)
	}
	l.clock = NewClockAt(last)

	return l, nil
}

// Policy returns the effective settlement policy.
func (l *Ledger) Policy() payroll.Policy {
	return l.settler.Policy()
}

// Height returns the oracle's current height.
func (l *Ledger) Height(ctx context.Context) (uint32, error) {
	h, err := l.oracle.CurrentHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("read height: %w", err)
	}
	return h, nil
}

// AdvanceHeight moves the oracle forward, if it supports that.
func (l *Ledger) AdvanceHeight(ctx context.Context, h uint32) error {
	adv, ok := l.oracle.(HeightAdvancer)
	if !ok {
		return ErrHeightFixed
	}
	if err := adv.AdvanceHeight(ctx, h); err != nil {
		return err
	}
	l.logger.Debug("height advanced", "height", h)
	return nil
}

// CreateStream issues and stores version 0 of a new stream.
func (l *Ledger) CreateStream(ctx context.Context, caller, employee ir.Address, rate, maxAmount uint64, startTime uint32) (ir.StreamRecord, error) {
	height, err := l.Height(ctx)
	if err != nil {
		return ir.StreamRecord{}, err
	}

	rec, err := l.settler.CreateStream(caller, employee, rate, maxAmount, startTime, l.nonces.Generate())
	if err != nil {
		l.logger.Warn("stream rejected",
			"employer", caller,
			"employee", employee,
			"code", payroll.CodeOf(err),
			"error", err,
		)
		return ir.StreamRecord{}, err
	}

	inserted, err := l.store.IssueStream(ctx, rec, height, l.clock.Next())
	if err != nil {
		return ir.StreamRecord{}, fmt.Errorf("create stream: %w", err)
	}
	if !inserted {
		return ir.StreamRecord{}, fmt.Errorf("create stream %s: %w", rec.StreamKey, ErrDuplicateStream)
	}

	l.logger.Info("stream issued",
		"stream_key", rec.StreamKey,
		"record_id", rec.ID,
		"employer", rec.Employer,
		"employee", rec.Employee,
		"rate", rec.Rate,
		"max_amount", rec.MaxAmount,
		"start_time", rec.StartTime,
		"height", height,
	)
	return rec, nil
}

// ClaimSalary settles a claim on rec at currentHeight.
//
// The presented record must be stored and unconsumed. Failures from the
// settlement rules are *payroll.SettlementError; store conditions surface as
// store.ErrRecordNotFound or store.ErrRecordConsumed; height checks as
// ErrHeightAhead or ErrHeightRegressed. On any failure nothing is written.
func (l *Ledger) ClaimSalary(ctx context.Context, caller ir.Address, rec ir.StreamRecord, claimAmount uint64, currentHeight uint32) (payroll.ClaimResult, error) {
	res, err := l.claim(ctx, caller, rec, claimAmount, currentHeight)
	if err != nil {
		l.logger.Warn("claim rejected",
			"record_id", rec.ID,
			"caller", caller,
			"amount", claimAmount,
			"height", currentHeight,
			"code", payroll.CodeOf(err),
			"error", err,
		)
		return payroll.ClaimResult{}, err
	}

	attrs := []any{
		"stream_key", rec.StreamKey,
		"consumed", rec.ID,
		"payment", res.Payment.ID,
		"amount", claimAmount,
		"height", currentHeight,
	}
	if res.Successor != nil {
		attrs = append(attrs, "successor", res.Successor.ID, "claimed_amount", res.Successor.ClaimedAmount)
	} else {
		attrs = append(attrs, "exhausted", true)
	}
	l.logger.Info("salary claimed", attrs...)

	return res, nil
}

func (l *Ledger) claim(ctx context.Context, caller ir.Address, rec ir.StreamRecord, claimAmount uint64, currentHeight uint32) (payroll.ClaimResult, error) {
	chainHeight, err := l.Height(ctx)
	if err != nil {
		return payroll.ClaimResult{}, err
	}
	if currentHeight > chainHeight {
		return payroll.ClaimResult{}, fmt.Errorf("claim at %d, chain at %d: %w", currentHeight, chainHeight, ErrHeightAhead)
	}

	stored, err := l.store.ReadRecord(ctx, rec.ID)
	if err != nil {
		return payroll.ClaimResult{}, fmt.Errorf("claim salary: %w", err)
	}
	if stored.Consumed {
		return payroll.ClaimResult{}, fmt.Errorf("claim salary: record %s: %w", rec.ID, store.ErrRecordConsumed)
	}
	if currentHeight < stored.Height {
		return payroll.ClaimResult{}, fmt.Errorf("claim at %d, record settled at %d: %w", currentHeight, stored.Height, ErrHeightRegressed)
	}

	res, err := l.settler.ClaimSalary(caller, rec, claimAmount, currentHeight)
	if err != nil {
		return payroll.ClaimResult{}, err
	}

	err = l.store.Settle(ctx, store.Settlement{
		Consumed:  res.Consumed,
		Payment:   res.Payment,
		Successor: res.Successor,
		Height:    currentHeight,
		Seq:       l.clock.Next(),
	})
	if err != nil {
		return payroll.ClaimResult{}, fmt.Errorf("claim salary: %w", err)
	}
	return res, nil
}

// ClaimByID loads the record with the given ID and claims from it.
func (l *Ledger) ClaimByID(ctx context.Context, caller ir.Address, recordID string, claimAmount uint64, currentHeight uint32) (payroll.ClaimResult, error) {
	stored, err := l.store.ReadRecord(ctx, recordID)
	if err != nil {
		return payroll.ClaimResult{}, fmt.Errorf("claim salary: %w", err)
	}
	return l.ClaimSalary(ctx, caller, stored.Record, claimAmount, currentHeight)
}

// Accrued reports what the record with the given ID could pay at height.
func (l *Ledger) Accrued(ctx context.Context, recordID string, height uint32) (payroll.Accrual, error) {
	stored, err := l.store.ReadRecord(ctx, recordID)
	if err != nil {
		return payroll.Accrual{}, fmt.Errorf("accrued: %w", err)
	}
	return l.settler.Accrue(stored.Record, height)
}

// Record returns a stored record and its lifecycle.
func (l *Ledger) Record(ctx context.Context, id string) (store.StoredRecord, error) {
	return l.store.ReadRecord(ctx, id)
}

// Latest returns the newest stored version of a stream.
func (l *Ledger) Latest(ctx context.Context, streamKey string) (store.StoredRecord, error) {
	chain, err := l.store.ReadChain(ctx, streamKey)
	if err != nil {
		return store.StoredRecord{}, err
	}
	if len(chain) == 0 {
		return store.StoredRecord{}, fmt.Errorf("stream %s: %w", streamKey, store.ErrRecordNotFound)
	}
	return chain[len(chain)-1], nil
}

// Payment returns a stored payment.
func (l *Ledger) Payment(ctx context.Context, id string) (store.StoredPayment, error) {
	return l.store.ReadPayment(ctx, id)
}

// Unspent lists records owned by owner that have not been consumed.
// An empty owner lists all unspent records.
func (l *Ledger) Unspent(ctx context.Context, owner ir.Address) ([]store.StoredRecord, error) {
	return l.store.ListUnspent(ctx, owner)
}

// Payments lists payments owned by owner. An empty owner lists all payments.
func (l *Ledger) Payments(ctx context.Context, owner ir.Address) ([]store.StoredPayment, error) {
	return l.store.ListPayments(ctx, owner)
}

// Streams lists every stream key in issuance order.
func (l *Ledger) Streams(ctx context.Context) ([]string, error) {
	return l.store.ListStreamKeys(ctx)
}
