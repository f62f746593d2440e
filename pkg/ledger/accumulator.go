package ledger

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Accumulation describes what Accumulate did besides producing the new state.
type Accumulation struct {
	// Created is true when the account did not exist before this event.
	Created bool
	// Clamped is true when a withdrawal exceeded the balance and the balance was forced to zero.
	Clamped bool
	// Elapsed is the number of seconds accrued at the previous balance.
	Elapsed decimal.Decimal
}

// Accumulate folds one balance change into prev and returns the new account
// state. prev may be nil for an account that has never been seen, in which
// case the account starts at balance zero observed at timestamp.
//
// It performs no I/O and does not touch snapshot fields.
func Accumulate(prev *Account, id string, timestamp, delta int64) (Account, Accumulation, error) {
	var acc Account
	var info Accumulation
	if prev == nil {
		acc = Account{
			ID:                       id,
			FirstObservationTime:     timestamp,
			LastObservationTime:      timestamp,
			CumulativeBalanceSeconds: decimal.Zero,
		}
		info.Created = true
	} else {
		acc = *prev
	}

	if timestamp < acc.LastObservationTime {
		return Account{}, Accumulation{}, fmt.Errorf("%w: account %s at %d, last observed at %d",
			ErrOutOfOrderEvent, id, timestamp, acc.LastObservationTime)
	}

	info.Elapsed = span(acc.LastObservationTime, timestamp)
	if info.Elapsed.IsPositive() && acc.Balance > 0 {
		accrued := decimal.NewFromUint64(acc.Balance).Mul(info.Elapsed)
		acc.CumulativeBalanceSeconds = acc.CumulativeBalanceSeconds.Add(accrued)
	}

	acc.Balance, info.Clamped = applyDelta(acc.Balance, delta)
	acc.LastObservationTime = timestamp
	return acc, info, nil
}

// applyDelta adds a signed delta to balance, clamping at zero and saturating at MaxUint64.
func applyDelta(balance uint64, delta int64) (uint64, bool) {
	if delta >= 0 {
		d := uint64(delta)
		if balance > math.MaxUint64-d {
			return math.MaxUint64, false
		}
		return balance + d, false
	}
	// -(delta+1)+1 avoids overflowing on MinInt64.
	magnitude := uint64(-(delta + 1)) + 1
	if magnitude > balance {
		return 0, true
	}
	return balance - magnitude, false
}
