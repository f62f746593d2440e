package ledger

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// LifetimeSeconds is how long a snapshot stays open after it was filled.
	// An event strictly later than FilledAt+LifetimeSeconds rolls the log over.
	LifetimeSeconds int64 = 86400

	// InterpolationPrecision is the number of fractional digits kept when
	// interpolating balance-seconds inside an open snapshot window.
	InterpolationPrecision int32 = 18

	// AveragePrecision is the number of fractional digits of AverageBalance results.
	AveragePrecision int32 = 18
)

// Account is the running state of one tracked subject (a holding store, or a
// (user, asset) staking pair).
//
// CumulativeBalanceSeconds is the time-integral of Balance up to
// LastObservationTime. It is only ever advanced, never recomputed.
type Account struct {
	ID string `json:"id" ch:"account_id"`

	// Balance in the asset's base denomination. Clamped at zero.
	Balance uint64 `json:"balance" ch:"balance"`

	// Unix seconds of the first and last applied event.
	FirstObservationTime int64 `json:"firstObservationTime" ch:"first_observation_time"`
	LastObservationTime  int64 `json:"lastObservationTime" ch:"last_observation_time"`

	CumulativeBalanceSeconds decimal.Decimal `json:"cumulativeBalanceSeconds" ch:"cumulative_balance_seconds"`

	// SnapshotCount is the number of snapshots ever opened; it is also the
	// sequence of the currently open snapshot.
	SnapshotCount uint64 `json:"snapshotCount" ch:"snapshot_count"`

	// UpdatedAt is the wall-clock time of the last write (row version).
	UpdatedAt time.Time `json:"updatedAt" ch:"updated_at"`
}

// Snapshot is a bounded-lifetime checkpoint of an Account. While open it
// mirrors the account at its latest touch; once closed it never changes.
type Snapshot struct {
	AccountID string `json:"accountId" ch:"account_id"`
	Sequence  uint64 `json:"sequence" ch:"sequence"`

	// FilledAt is the unix second at which the snapshot was opened.
	FilledAt int64 `json:"filledAt" ch:"filled_at"`

	Balance                  uint64          `json:"balance" ch:"balance"`
	CumulativeBalanceSeconds decimal.Decimal `json:"cumulativeBalanceSeconds" ch:"cumulative_balance_seconds"`

	// LastUpdateTime is the unix second of the latest touch. FilledAt <= LastUpdateTime.
	LastUpdateTime int64 `json:"lastUpdateTime" ch:"last_update_time"`

	UpdatedAt time.Time `json:"updatedAt" ch:"updated_at"`
}

// Expired reports whether an event at ts falls outside this snapshot's window.
func (s *Snapshot) Expired(ts int64) bool {
	if s.FilledAt > math.MaxInt64-LifetimeSeconds {
		return false
	}
	return ts > s.FilledAt+LifetimeSeconds
}

// span returns to-from in seconds. Unix times may sit anywhere in int64,
// so the difference is taken in decimal where it cannot wrap.
func span(from, to int64) decimal.Decimal {
	return decimal.NewFromInt(to).Sub(decimal.NewFromInt(from))
}

// OrderingKey is a stable tie-break for events sharing a timestamp.
// The ledger never reads it; it travels with events for logging and audit.
type OrderingKey struct {
	Height uint64 `json:"height"`
	Index  uint32 `json:"index"`
}

// Less reports whether k sorts before other.
func (k OrderingKey) Less(other OrderingKey) bool {
	if k.Height != other.Height {
		return k.Height < other.Height
	}
	return k.Index < other.Index
}

// BalanceEvent is one signed balance change for an account.
type BalanceEvent struct {
	AccountID   string      `json:"accountId"`
	Timestamp   int64       `json:"timestamp"`
	Delta       int64       `json:"delta"`
	OrderingKey OrderingKey `json:"orderingKey"`
}
