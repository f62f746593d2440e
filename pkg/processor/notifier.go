package processor

import (
	"context"
	"encoding/json"

	"github.com/canopy-network/canopyx-points/pkg/events"
	"github.com/canopy-network/canopyx-points/pkg/ledger"
	"github.com/canopy-network/canopyx-points/pkg/redis"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AccountUpdatedType is the type field of AccountUpdate payloads.
const AccountUpdatedType = "account.updated"

// AccountUpdate is published after an event has been applied.
type AccountUpdate struct {
	Type                     string          `json:"type"`
	AccountID                string          `json:"accountId"`
	Kind                     events.Kind     `json:"kind"`
	Asset                    string          `json:"asset"`
	Owner                    string          `json:"owner"`
	Timestamp                int64           `json:"timestamp"`
	Delta                    int64           `json:"delta"`
	Balance                  uint64          `json:"balance"`
	CumulativeBalanceSeconds decimal.Decimal `json:"cumulativeBalanceSeconds"`
	SnapshotSequence         uint64          `json:"snapshotSequence"`
	SnapshotOpened           bool            `json:"snapshotOpened"`
	Clamped                  bool            `json:"clamped"`
	Height                   uint64          `json:"height"`
	Index                    uint32          `json:"index"`
}

func newAccountUpdate(subject events.Subject, ev ledger.BalanceEvent, res ledger.Result) AccountUpdate {
	return AccountUpdate{
		Type:                     AccountUpdatedType,
		AccountID:                res.Account.ID,
		Kind:                     subject.Kind,
		Asset:                    subject.Asset,
		Owner:                    subject.Owner,
		Timestamp:                ev.Timestamp,
		Delta:                    ev.Delta,
		Balance:                  res.Account.Balance,
		CumulativeBalanceSeconds: res.Account.CumulativeBalanceSeconds,
		SnapshotSequence:         res.Snapshot.Sequence,
		SnapshotOpened:           res.SnapshotOpened,
		Clamped:                  res.Clamped,
		Height:                   ev.OrderingKey.Height,
		Index:                    ev.OrderingKey.Index,
	}
}

// Notifier receives applied updates. Implementations must not block for long;
// a failed notification never fails the event.
type Notifier interface {
	Notify(ctx context.Context, update AccountUpdate)
}

// AccountChannel is the pub/sub channel carrying updates of one account.
// Subscribers wanting every account use the pattern prefix+":*".
func AccountChannel(prefix, accountID string) string {
	return prefix + ":" + accountID
}

// RedisNotifier publishes updates as JSON on a per-account channel.
type RedisNotifier struct {
	Client *redis.Client
	Prefix string
	Logger *zap.Logger
}

func (n *RedisNotifier) Notify(ctx context.Context, update AccountUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		n.Logger.Warn("Failed to marshal account update",
			zap.String("accountId", update.AccountID),
			zap.Error(err))
		return
	}
	channel := AccountChannel(n.Prefix, update.AccountID)
	n.Client.Publish(ctx, channel, payload)
}
