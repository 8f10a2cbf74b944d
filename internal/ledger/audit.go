package ledger

import (
	"context"
	"fmt"

	"github.com/jetrpay/streampay/internal/store"
)

// AuditReport is the result of replaying one stream's stored chain.
type AuditReport struct {
	StreamKey string   `json:"stream_key"`
	Versions  int      `json:"versions"`
	Payments  int      `json:"payments"`
	MaxAmount uint64   `json:"max_amount"`
	Claimed   uint64   `json:"claimed"` // claimed_amount of the latest version
	Paid      uint64   `json:"paid"`    // sum of payment amounts
	Exhausted bool     `json:"exhausted"`
	Problems  []string `json:"problems"`
}

// OK reports whether the audit found no problems.
func (r AuditReport) OK() bool {
	return len(r.Problems) == 0
}

func (r *AuditReport) problem(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Audit replays the stored chain of a stream and re-checks it:
//   - every record and payment re-hashes to its ID
//   - versions run 0..n with each predecessor pointing at the previous ID
//   - immutable terms never change and claimed_amount strictly increases
//   - each consumed record has exactly one payment equal to the claimed delta
//   - the sum of payments equals the claimed amount and never exceeds max
//
// Audit only reads. A stream with no stored records is an error.
func (l *Ledger) Audit(ctx context.Context, streamKey string) (AuditReport, error) {
	chain, err := l.store.ReadChain(ctx, streamKey)
	if err != nil {
		return AuditReport{}, fmt.Errorf("audit: %w", err)
	}
	if len(chain) == 0 {
		return AuditReport{}, fmt.Errorf("audit stream %s: %w", streamKey, store.ErrRecordNotFound)
	}
	payments, err := l.store.ReadPayments(ctx, streamKey)
	if err != nil {
		return AuditReport{}, fmt.Errorf("audit: %w", err)
	}

	report := AuditReport{
		StreamKey: streamKey,
		Versions:  len(chain),
		Payments:  len(payments),
		MaxAmount: chain[0].Record.MaxAmount,
		Problems:  []string{},
	}

	bySource := make(map[string]store.StoredPayment, len(payments))
	for _, p := range payments {
		if err := p.Payment.Verify(); err != nil {
			report.problem("payment %s: %v", p.Payment.ID, err)
		}
		if _, dup := bySource[p.Payment.Source]; dup {
			report.problem("record %s paid more than once", p.Payment.Source)
		}
		bySource[p.Payment.Source] = p
		if report.Paid+p.Payment.Amount < report.Paid {
			report.problem("payment total overflows u64")
		}
		report.Paid += p.Payment.Amount
	}

	genesis := chain[0].Record
	for i, sr := range chain {
		rec := sr.Record
		if err := rec.Verify(); err != nil {
			report.problem("version %d: %v", rec.Version, err)
		}
		if rec.Version != uint32(i) {
			report.problem("version %d found at position %d", rec.Version, i)
		}
		if rec.Employer != genesis.Employer || rec.Employee != genesis.Employee ||
			rec.Rate != genesis.Rate || rec.MaxAmount != genesis.MaxAmount || rec.StartTime != genesis.StartTime {
			report.problem("version %d: terms differ from version 0", rec.Version)
		}
		if rec.ClaimedAmount > rec.MaxAmount {
			report.problem("version %d: claimed %d exceeds max %d", rec.Version, rec.ClaimedAmount, rec.MaxAmount)
		}

		if i > 0 {
			prev := chain[i-1]
			if rec.Predecessor != prev.Record.ID {
				report.problem("version %d: predecessor %s, want %s", rec.Version, rec.Predecessor, prev.Record.ID)
			}
			if rec.ClaimedAmount <= prev.Record.ClaimedAmount {
				report.problem("version %d: claimed amount did not increase", rec.Version)
			}
			if !prev.Consumed || prev.SuccessorID != rec.ID {
				report.problem("version %d: not recorded as successor of version %d", rec.Version, prev.Record.Version)
			}
		}

		if !sr.Consumed {
			if i != len(chain)-1 {
				report.problem("version %d: unconsumed but not the latest version", rec.Version)
			}
			continue
		}

		p, ok := bySource[rec.ID]
		if !ok {
			report.problem("version %d: consumed without a payment", rec.Version)
			continue
		}
		if p.Payment.ID != sr.PaymentID {
			report.problem("version %d: consumption names payment %s, found %s", rec.Version, sr.PaymentID, p.Payment.ID)
		}

		next := rec.MaxAmount // terminal claim pays out the rest
		if sr.SuccessorID != "" {
			if i+1 >= len(chain) {
				report.problem("version %d: successor %s missing", rec.Version, sr.SuccessorID)
				continue
			}
			next = chain[i+1].Record.ClaimedAmount
		}
		if next >= rec.ClaimedAmount && p.Payment.Amount != next-rec.ClaimedAmount {
			report.problem("version %d: payment %d does not match claimed delta %d", rec.Version, p.Payment.Amount, next-rec.ClaimedAmount)
		}
	}

	last := chain[len(chain)-1]
	report.Claimed = last.Record.ClaimedAmount
	if last.Consumed && last.SuccessorID == "" {
		report.Claimed = report.MaxAmount
	}
	report.Exhausted = report.Claimed == report.MaxAmount

	if report.Paid != report.Claimed {
		report.problem("payments total %d, claimed amount is %d", report.Paid, report.Claimed)
	}
	if report.Paid > report.MaxAmount {
		report.problem("payments total %d exceeds max %d", report.Paid, report.MaxAmount)
	}

	return report, nil
}
