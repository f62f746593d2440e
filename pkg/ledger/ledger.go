// Package ledger tracks time-weighted balances.
//
// Every balance change advances an account's running balance-seconds integral
// (Accumulate) and refreshes or rolls over the account's open snapshot (Roll).
// Snapshots live for LifetimeSeconds after they are opened; the resulting log
// answers "average balance between A and B" with two indexed lookups instead
// of replaying events (AverageBalance).
//
// Events for one account must be applied sequentially and in non-decreasing
// timestamp order. Different accounts are independent.
package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Ledger applies balance events and answers range queries against a Store.
type Ledger struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock used for UpdatedAt columns.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New returns a Ledger persisting into store.
func New(store Store, logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store returns the underlying entity store.
func (l *Ledger) Store() Store {
	return l.store
}

// Result is the outcome of applying one event.
type Result struct {
	Account        Account
	Snapshot       Snapshot
	Created        bool
	Clamped        bool
	SnapshotOpened bool
}

// Apply folds a balance change into the account and its snapshot log and
// returns the updated account.
func (l *Ledger) Apply(ctx context.Context, accountID string, timestamp, delta int64) (*Account, error) {
	res, err := l.ApplyEvent(ctx, BalanceEvent{AccountID: accountID, Timestamp: timestamp, Delta: delta})
	if err != nil {
		return nil, err
	}
	return &res.Account, nil
}

// ApplyEvent is Apply with the full event and a detailed result.
//
// An event older than the account's last observation fails with
// ErrOutOfOrderEvent before anything is written. Store errors are returned
// wrapped and are not retried. Stores implementing Transactor commit the
// snapshot and the account together; otherwise the snapshot is written first.
func (l *Ledger) ApplyEvent(ctx context.Context, ev BalanceEvent) (Result, error) {
	if ev.AccountID == "" {
		return Result{}, ErrInvalidAccountID
	}

	prev, err := l.store.GetAccount(ctx, ev.AccountID)
	if err != nil {
		return Result{}, fmt.Errorf("get account %s: %w", ev.AccountID, err)
	}

	acc, info, err := Accumulate(prev, ev.AccountID, ev.Timestamp, ev.Delta)
	if err != nil {
		return Result{}, err
	}

	var open *Snapshot
	if acc.SnapshotCount > 0 {
		open, err = l.store.GetSnapshot(ctx, acc.ID, acc.SnapshotCount)
		if err != nil {
			return Result{}, fmt.Errorf("get snapshot %s#%d: %w", acc.ID, acc.SnapshotCount, err)
		}
		if open == nil {
			return Result{}, fmt.Errorf("%w: %s#%d", ErrSnapshotMissing, acc.ID, acc.SnapshotCount)
		}
	}

	now := l.now().UTC()
	snap, opened := Roll(open, acc, ev.Timestamp, now)
	acc.SnapshotCount = snap.Sequence
	acc.UpdatedAt = now

	if err := l.persist(ctx, &acc, &snap); err != nil {
		return Result{}, err
	}

	if info.Clamped {
		l.logger.Debug("Withdrawal exceeded balance, clamped to zero",
			zap.String("accountId", acc.ID),
			zap.Int64("timestamp", ev.Timestamp),
			zap.Int64("delta", ev.Delta),
			zap.Uint64("height", ev.OrderingKey.Height),
			zap.Uint32("index", ev.OrderingKey.Index))
	}
	if opened && snap.Sequence > 1 {
		l.logger.Debug("Snapshot rolled over",
			zap.String("accountId", acc.ID),
			zap.Uint64("sequence", snap.Sequence),
			zap.Int64("filledAt", snap.FilledAt))
	}

	return Result{
		Account:        acc,
		Snapshot:       snap,
		Created:        info.Created,
		Clamped:        info.Clamped,
		SnapshotOpened: opened,
	}, nil
}

func (l *Ledger) persist(ctx context.Context, acc *Account, snap *Snapshot) error {
	write := func(s Store) error {
		if err := s.UpsertSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("upsert snapshot %s#%d: %w", snap.AccountID, snap.Sequence, err)
		}
		if err := s.UpsertAccount(ctx, acc); err != nil {
			return fmt.Errorf("upsert account %s: %w", acc.ID, err)
		}
		return nil
	}
	if tx, ok := l.store.(Transactor); ok {
		return tx.InTx(ctx, write)
	}
	return write(l.store)
}
