package ledger

import (
	"cmp"
	"context"
	"fmt"
)

// Store is the keyed entity store the ledger persists into.
// Get methods return (nil, nil) when the entity does not exist.
// Upserts are last-write-wins per key.
type Store interface {
	GetAccount(ctx context.Context, id string) (*Account, error)
	UpsertAccount(ctx context.Context, account *Account) error
	GetSnapshot(ctx context.Context, accountID string, sequence uint64) (*Snapshot, error)
	UpsertSnapshot(ctx context.Context, snapshot *Snapshot) error
	ListSnapshots(ctx context.Context, q SnapshotQuery) ([]Snapshot, error)
}

// Transactor is implemented by stores that can commit several writes atomically.
// The Store handed to fn must be used for every write inside the transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(tx Store) error) error
}

// Pinger is implemented by stores backed by a remote database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Field names a filterable snapshot column.
type Field string

const (
	FieldAccountID      Field = "account_id"
	FieldSequence       Field = "sequence"
	FieldFilledAt       Field = "filled_at"
	FieldLastUpdateTime Field = "last_update_time"
)

// Valid reports whether f is a known snapshot field.
func (f Field) Valid() bool {
	switch f {
	case FieldAccountID, FieldSequence, FieldFilledAt, FieldLastUpdateTime:
		return true
	}
	return false
}

// Op is a comparison operator.
type Op string

const (
	OpEq  Op = "="
	OpLte Op = "<="
	OpGte Op = ">="
	OpLt  Op = "<"
	OpGt  Op = ">"
)

// Valid reports whether o is a supported operator.
func (o Op) Valid() bool {
	switch o {
	case OpEq, OpLte, OpGte, OpLt, OpGt:
		return true
	}
	return false
}

// Filter is one (field, operator, value) triple. Value is a string for
// FieldAccountID, uint64 for FieldSequence and int64 for the time fields.
type Filter struct {
	Field Field
	Op    Op
	Value any
}

// SnapshotQuery is a conjunction of filters plus ordering and an optional limit.
type SnapshotQuery struct {
	Filters []Filter
	OrderBy Field
	Desc    bool
	Limit   int
}

// Validate checks fields, operators and value types.
func (q SnapshotQuery) Validate() error {
	for _, f := range q.Filters {
		if !f.Field.Valid() {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidQuery, f.Field)
		}
		if !f.Op.Valid() {
			return fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, f.Op)
		}
		var ok bool
		switch f.Field {
		case FieldAccountID:
			_, ok = f.Value.(string)
		case FieldSequence:
			_, ok = f.Value.(uint64)
		default:
			_, ok = f.Value.(int64)
		}
		if !ok {
			return fmt.Errorf("%w: value %v (%T) does not match field %q", ErrInvalidQuery, f.Value, f.Value, f.Field)
		}
	}
	if q.OrderBy != "" && !q.OrderBy.Valid() {
		return fmt.Errorf("%w: unknown order field %q", ErrInvalidQuery, q.OrderBy)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	return nil
}

// Match reports whether s satisfies every filter. Stores without a query
// engine use it to evaluate queries in memory.
func (q SnapshotQuery) Match(s *Snapshot) bool {
	for _, f := range q.Filters {
		if !f.match(s) {
			return false
		}
	}
	return true
}

func (f Filter) match(s *Snapshot) bool {
	var c int
	switch f.Field {
	case FieldAccountID:
		v, _ := f.Value.(string)
		c = cmp.Compare(s.AccountID, v)
	case FieldSequence:
		v, _ := f.Value.(uint64)
		c = cmp.Compare(s.Sequence, v)
	case FieldFilledAt:
		v, _ := f.Value.(int64)
		c = cmp.Compare(s.FilledAt, v)
	case FieldLastUpdateTime:
		v, _ := f.Value.(int64)
		c = cmp.Compare(s.LastUpdateTime, v)
	default:
		return false
	}
	switch f.Op {
	case OpEq:
		return c == 0
	case OpLte:
		return c <= 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpGt:
		return c > 0
	}
	return false
}

// Less orders a before b by the query's OrderBy field (sequence when unset).
func (q SnapshotQuery) Less(a, b *Snapshot) bool {
	var c int
	switch q.OrderBy {
	case FieldAccountID:
		c = cmp.Compare(a.AccountID, b.AccountID)
	case FieldFilledAt:
		c = cmp.Compare(a.FilledAt, b.FilledAt)
	case FieldLastUpdateTime:
		c = cmp.Compare(a.LastUpdateTime, b.LastUpdateTime)
	default:
		c = cmp.Compare(a.Sequence, b.Sequence)
	}
	if c == 0 {
		c = cmp.Compare(a.Sequence, b.Sequence)
	}
	if q.Desc {
		return c > 0
	}
	return c < 0
}
