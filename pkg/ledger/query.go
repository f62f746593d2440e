package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Account returns the account with the given id, or nil when it has never been observed.
func (l *Ledger) Account(ctx context.Context, id string) (*Account, error) {
	if id == "" {
		return nil, ErrInvalidAccountID
	}
	acc, err := l.store.GetAccount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return acc, nil
}

// Snapshots lists an account's snapshots with sequence greater than after, oldest first.
// A limit of zero means no limit.
func (l *Ledger) Snapshots(ctx context.Context, id string, after uint64, limit int) ([]Snapshot, error) {
	if id == "" {
		return nil, ErrInvalidAccountID
	}
	rows, err := l.store.ListSnapshots(ctx, SnapshotQuery{
		Filters: []Filter{
			{Field: FieldAccountID, Op: OpEq, Value: id},
			{Field: FieldSequence, Op: OpGt, Value: after},
		},
		OrderBy: FieldSequence,
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots %s: %w", id, err)
	}
	return rows, nil
}

// Bracket returns the snapshot with the greatest FilledAt <= t and the one
// preceding it in sequence. Either may be nil: s is nil when t predates the
// account's first event, p is nil when s is the first snapshot.
func (l *Ledger) Bracket(ctx context.Context, id string, t int64) (s, p *Snapshot, err error) {
	rows, err := l.store.ListSnapshots(ctx, SnapshotQuery{
		Filters: []Filter{
			{Field: FieldAccountID, Op: OpEq, Value: id},
			{Field: FieldFilledAt, Op: OpLte, Value: t},
		},
		OrderBy: FieldFilledAt,
		Desc:    true,
		Limit:   2,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("bracket %s at %d: %w", id, t, err)
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}

	s = &rows[0]
	if s.Sequence <= 1 {
		return s, nil, nil
	}
	if len(rows) > 1 && rows[1].Sequence == s.Sequence-1 {
		return s, &rows[1], nil
	}

	p, err = l.store.GetSnapshot(ctx, id, s.Sequence-1)
	if err != nil {
		return nil, nil, fmt.Errorf("get snapshot %s#%d: %w", id, s.Sequence-1, err)
	}
	if p == nil {
		return nil, nil, fmt.Errorf("%w: %s#%d", ErrSnapshotMissing, id, s.Sequence-1)
	}
	return s, p, nil
}

// CumulativeAt estimates an account's balance-seconds at t from its
// bracketing snapshots s and p (see Bracket).
//
// At or after s's last touch the value is extrapolated at s's balance.
// Inside s's window the growth between s's opening and its last touch is
// spread at a constant rate. With no snapshot the result is zero.
func CumulativeAt(t int64, s, p *Snapshot) (decimal.Decimal, error) {
	if s == nil {
		return decimal.Zero, nil
	}

	if t >= s.LastUpdateTime {
		ahead := decimal.NewFromUint64(s.Balance).Mul(span(s.LastUpdateTime, t))
		return s.CumulativeBalanceSeconds.Add(ahead), nil
	}

	if t < s.FilledAt {
		return decimal.Zero, fmt.Errorf("%w: %s#%d filled at %d, query at %d",
			ErrSnapshotSelection, s.AccountID, s.Sequence, s.FilledAt, t)
	}

	cumAtFilled := decimal.Zero
	if p != nil {
		gap := decimal.NewFromUint64(p.Balance).Mul(span(p.LastUpdateTime, s.FilledAt))
		cumAtFilled = p.CumulativeBalanceSeconds.Add(gap)
	}

	into := span(s.FilledAt, t)
	window := span(s.FilledAt, s.LastUpdateTime)
	if window.IsZero() {
		return cumAtFilled.Add(decimal.NewFromUint64(s.Balance).Mul(into)), nil
	}

	grown := s.CumulativeBalanceSeconds.Sub(cumAtFilled).Mul(into)
	return cumAtFilled.Add(grown.DivRound(window, InterpolationPrecision)), nil
}

// CumulativeAtTime returns the estimated balance-seconds of an account at t.
func (l *Ledger) CumulativeAtTime(ctx context.Context, id string, t int64) (decimal.Decimal, error) {
	if id == "" {
		return decimal.Zero, ErrInvalidAccountID
	}
	s, p, err := l.Bracket(ctx, id, t)
	if err != nil {
		return decimal.Zero, err
	}
	return CumulativeAt(t, s, p)
}

// AverageBalance returns the time-weighted average balance of an account over [t1, t2].
// Ranges before the account's first event count as zero balance.
func (l *Ledger) AverageBalance(ctx context.Context, id string, t1, t2 int64) (decimal.Decimal, error) {
	if t1 >= t2 {
		return decimal.Zero, fmt.Errorf("%w: from %d, to %d", ErrQueryRange, t1, t2)
	}
	c1, err := l.CumulativeAtTime(ctx, id, t1)
	if err != nil {
		return decimal.Zero, err
	}
	c2, err := l.CumulativeAtTime(ctx, id, t2)
	if err != nil {
		return decimal.Zero, err
	}
	return Average(c1, c2, t1, t2), nil
}

// Average divides the balance-seconds accrued between t1 and t2 by the elapsed time.
func Average(c1, c2 decimal.Decimal, t1, t2 int64) decimal.Decimal {
	return c2.Sub(c1).DivRound(span(t1, t2), AveragePrecision)
}
