package ledger

import "errors"

var (
	// ErrOutOfOrderEvent is returned by Apply when an event is older than the
	// account's last observation. Nothing is written.
	ErrOutOfOrderEvent = errors.New("event timestamp precedes last observation")

	// ErrQueryRange is returned when a range query has from >= to.
	ErrQueryRange = errors.New("query range start must be before end")

	// ErrSnapshotSelection means a bracketing snapshot was selected for a time
	// that precedes its window. It indicates a broken index or store filter.
	ErrSnapshotSelection = errors.New("selected snapshot starts after query time")

	// ErrSnapshotMissing means an account references an open snapshot that
	// the store does not have.
	ErrSnapshotMissing = errors.New("open snapshot not found")

	// ErrInvalidAccountID is returned for empty account ids.
	ErrInvalidAccountID = errors.New("account id is required")

	// ErrInvalidQuery is returned by stores for unsupported filters.
	ErrInvalidQuery = errors.New("invalid snapshot query")
)
