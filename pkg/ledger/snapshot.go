package ledger

import "time"

// Roll records acc's post-event state into the snapshot log.
//
// open is the account's current open snapshot, or nil when the account has
// none yet. If open is nil or the event at ts falls outside its lifetime, a
// new snapshot with the next sequence is returned and opened is true.
// Otherwise a copy of open refreshed with acc's balance, cumulative value and
// ts is returned. open itself is never modified.
func Roll(open *Snapshot, acc Account, ts int64, now time.Time) (snap Snapshot, opened bool) {
	if open == nil || open.Expired(ts) {
		return Snapshot{
			AccountID:                acc.ID,
			Sequence:                 acc.SnapshotCount + 1,
			FilledAt:                 ts,
			Balance:                  acc.Balance,
			CumulativeBalanceSeconds: acc.CumulativeBalanceSeconds,
			LastUpdateTime:           ts,
			UpdatedAt:                now,
		}, true
	}

	snap = *open
	snap.Balance = acc.Balance
	snap.CumulativeBalanceSeconds = acc.CumulativeBalanceSeconds
	snap.LastUpdateTime = ts
	snap.UpdatedAt = now
	return snap, false
}
