package processor

import "github.com/puzpuzpuz/xsync/v4"

// Stats counts message outcomes. It is safe for concurrent use.
type Stats struct {
	Received        *xsync.Counter
	Applied         *xsync.Counter
	Skipped         *xsync.Counter
	Malformed       *xsync.Counter
	OutOfOrder      *xsync.Counter
	Failed          *xsync.Counter
	SnapshotsOpened *xsync.Counter
	Clamped         *xsync.Counter
}

func NewStats() *Stats {
	return &Stats{
		Received:        xsync.NewCounter(),
		Applied:         xsync.NewCounter(),
		Skipped:         xsync.NewCounter(),
		Malformed:       xsync.NewCounter(),
		OutOfOrder:      xsync.NewCounter(),
		Failed:          xsync.NewCounter(),
		SnapshotsOpened: xsync.NewCounter(),
		Clamped:         xsync.NewCounter(),
	}
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Received        int64 `json:"received"`
	Applied         int64 `json:"applied"`
	Skipped         int64 `json:"skipped"`
	Malformed       int64 `json:"malformed"`
	OutOfOrder      int64 `json:"outOfOrder"`
	Failed          int64 `json:"failed"`
	SnapshotsOpened int64 `json:"snapshotsOpened"`
	Clamped         int64 `json:"clamped"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Received:        s.Received.Value(),
		Applied:         s.Applied.Value(),
		Skipped:         s.Skipped.Value(),
		Malformed:       s.Malformed.Value(),
		OutOfOrder:      s.OutOfOrder.Value(),
		Failed:          s.Failed.Value(),
		SnapshotsOpened: s.SnapshotsOpened.Value(),
		Clamped:         s.Clamped.Value(),
	}
}
