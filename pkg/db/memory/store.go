// Package memory is an in-process ledger.Store backed by concurrent maps.
// It is used for local runs and tests; nothing survives a restart.
package memory

import (
	"context"
	"sort"

	"github.com/canopy-network/canopyx-points/pkg/ledger"
	"github.com/puzpuzpuz/xsync/v4"
)

// Store implements ledger.Store.
type Store struct {
	accounts  *xsync.Map[string, ledger.Account]
	snapshots *xsync.Map[string, *xsync.Map[uint64, ledger.Snapshot]]
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts:  xsync.NewMap[string, ledger.Account](),
		snapshots: xsync.NewMap[string, *xsync.Map[uint64, ledger.Snapshot]](),
	}
}

func (s *Store) GetAccount(_ context.Context, id string) (*ledger.Account, error) {
	acc, ok := s.accounts.Load(id)
	if !ok {
		return nil, nil
	}
	return &acc, nil
}

func (s *Store) UpsertAccount(_ context.Context, account *ledger.Account) error {
	s.accounts.Store(account.ID, *account)
	return nil
}

func (s *Store) GetSnapshot(_ context.Context, accountID string, sequence uint64) (*ledger.Snapshot, error) {
	log, ok := s.snapshots.Load(accountID)
	if !ok {
		return nil, nil
	}
	snap, ok := log.Load(sequence)
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (s *Store) UpsertSnapshot(_ context.Context, snapshot *ledger.Snapshot) error {
	log, _ := s.snapshots.LoadOrCompute(snapshot.AccountID, func() (*xsync.Map[uint64, ledger.Snapshot], bool) {
		return xsync.NewMap[uint64, ledger.Snapshot](), false
	})
	log.Store(snapshot.Sequence, *snapshot)
	return nil
}

// ListSnapshots evaluates q in memory. An account_id equality filter narrows
// the scan to that account's log.
func (s *Store) ListSnapshots(_ context.Context, q ledger.SnapshotQuery) ([]ledger.Snapshot, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var out []ledger.Snapshot
	collect := func(log *xsync.Map[uint64, ledger.Snapshot]) {
		log.Range(func(_ uint64, snap ledger.Snapshot) bool {
			if q.Match(&snap) {
				out = append(out, snap)
			}
			return true
		})
	}

	if id, ok := accountFilter(q); ok {
		if log, found := s.snapshots.Load(id); found {
			collect(log)
		}
	} else {
		s.snapshots.Range(func(_ string, log *xsync.Map[uint64, ledger.Snapshot]) bool {
			collect(log)
			return true
		})
	}

	sort.Slice(out, func(i, j int) bool { return q.Less(&out[i], &out[j]) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Len returns the number of accounts held.
func (s *Store) Len() int {
	return s.accounts.Size()
}

func accountFilter(q ledger.SnapshotQuery) (string, bool) {
	for _, f := range q.Filters {
		if f.Field == ledger.FieldAccountID && f.Op == ledger.OpEq {
			id, ok := f.Value.(string)
			return id, ok
		}
	}
	return "", false
}
