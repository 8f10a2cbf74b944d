package cli

import (
	"context"
	"log/slog"

	"github.com/jetrpay/streampay/internal/ir"
	"github.com/jetrpay/streampay/internal/ledger"
	"github.com/jetrpay/streampay/internal/payroll"
	"github.com/jetrpay/streampay/internal/store"
)

// openLedger opens the database named by --db and builds a ledger over it
// using the configured policy. The height oracle is the store itself.
// The returned close function must be called when the command is done.
func openLedger(ctx context.Context, opts *RootOptions, f *OutputFormatter) (*ledger.Ledger, func(), error) {
	path := opts.Database
	if path == "" {
		path = DefaultDatabase
	}

	f.VerboseLog("Opening ledger %s", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, outputError(f, ExitCommandError, ErrCodeDatabase, "failed to open database: "+err.Error(), nil)
	}

	l, err := ledger.New(ctx, st,
		ledger.WithPolicy(opts.Policy),
		ledger.WithLogger(slog.Default()),
	)
	if err != nil {
		_ = st.Close()
		return nil, nil, outputError(f, ExitCommandError, ErrCodeConfig, "failed to open ledger: "+err.Error(), nil)
	}

	closeFn := func() {
		if err := st.Close(); err != nil {
			slog.Error("error closing database", "error", err)
		}
	}
	return l, closeFn, nil
}

// RecordView is the JSON form of a stored record.
type RecordView struct {
	Record         ir.StreamRecord `json:"record"`
	Height         uint32          `json:"height"`
	Consumed       bool            `json:"consumed"`
	ConsumedHeight uint32          `json:"consumed_height,omitempty"`
	PaymentID      string          `json:"payment_id,omitempty"`
	SuccessorID    string          `json:"successor_id,omitempty"`
}

func newRecordView(r store.StoredRecord) RecordView {
	return RecordView{
		Record:         r.Record,
		Height:         r.Height,
		Consumed:       r.Consumed,
		ConsumedHeight: r.ConsumedHeight,
		PaymentID:      r.PaymentID,
		SuccessorID:    r.SuccessorID,
	}
}

// PaymentView is the JSON form of a stored payment.
type PaymentView struct {
	Payment ir.PaymentOutput `json:"payment"`
	Height  uint32           `json:"height"`
}

// ClaimView is the JSON form of a successful claim.
type ClaimView struct {
	Consumed  string           `json:"consumed"`
	Payment   ir.PaymentOutput `json:"payment"`
	Successor *ir.StreamRecord `json:"successor,omitempty"`
	Exhausted bool             `json:"exhausted"`
	Accrual   payroll.Accrual  `json:"accrual"`
	Height    uint32           `json:"height"`
}
