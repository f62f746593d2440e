// Package processor applies batches of stream entries to the ledger.
//
// Entries are sharded by account id onto lanes. Lanes run concurrently and
// each lane applies its entries in stream order, so events of one account
// are never applied in parallel or reordered.
package processor

import (
	"context"
	"errors"
	"hash/fnv"

	"github.com/alitto/pond/v2"
	"github.com/canopy-network/canopyx-points/pkg/events"
	"github.com/canopy-network/canopyx-points/pkg/identity"
	"github.com/canopy-network/canopyx-points/pkg/ledger"
	"github.com/canopy-network/canopyx-points/pkg/redis"
	"go.uber.org/zap"
)

const DefaultLanes = 16

// Config sizes the processor. Workers defaults to Lanes.
type Config struct {
	Lanes   int
	Workers int
}

// Processor turns stream batches into ledger updates.
type Processor struct {
	Ledger   *ledger.Ledger
	Resolver identity.Resolver
	Notifier Notifier
	Stats    *Stats
	Logger   *zap.Logger

	lanes int
	pool  pond.Pool
}

// New builds a Processor. notifier may be nil.
func New(l *ledger.Ledger, resolver identity.Resolver, notifier Notifier, logger *zap.Logger, cfg Config) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = identity.All{}
	}
	if cfg.Lanes <= 0 {
		cfg.Lanes = DefaultLanes
	}
	if cfg.Workers <= 0 {
		cfg.Workers = cfg.Lanes
	}
	return &Processor{
		Ledger:   l,
		Resolver: resolver,
		Notifier: notifier,
		Stats:    NewStats(),
		Logger:   logger,
		lanes:    cfg.Lanes,
		pool:     pond.NewPool(cfg.Workers, pond.WithQueueSize(cfg.Lanes)),
	}
}

// Lane returns the lane an account is pinned to.
func (p *Processor) Lane(accountID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(accountID))
	return int(h.Sum32() % uint32(p.lanes))
}

// Stop waits for running lanes and releases the worker pool.
func (p *Processor) Stop() {
	p.pool.StopAndWait()
}

type item struct {
	msg     redis.Message
	event   ledger.BalanceEvent
	subject events.Subject
}

// HandleBatch processes msgs and returns the ids that may be acknowledged.
//
// Applied, untracked, malformed and out-of-order entries are acknowledged.
// When resolving or storing an entry fails, that entry and every later entry
// of its lane stay unacknowledged so they are redelivered in order.
func (p *Processor) HandleBatch(ctx context.Context, msgs []redis.Message) []string {
	ack := make([]string, 0, len(msgs))
	lanes := make([][]item, p.lanes)

	for _, msg := range msgs {
		p.Stats.Received.Inc()
		ev, subject, err := events.Decode(msg)
		if err != nil {
			p.Stats.Malformed.Inc()
			p.Logger.Warn("Dropping malformed balance event",
				zap.String("stream", msg.Stream),
				zap.String("messageId", msg.ID),
				zap.Error(err))
			ack = append(ack, msg.ID)
			continue
		}
		lane := p.Lane(ev.AccountID)
		lanes[lane] = append(lanes[lane], item{msg: msg, event: ev, subject: subject})
	}

	acked := make([][]string, p.lanes)
	// the group is not bound to ctx: Wait must not return while a lane still runs
	group := p.pool.NewGroup()
	for i, items := range lanes {
		if len(items) == 0 {
			continue
		}
		group.Submit(func() {
			acked[i] = p.runLane(ctx, items)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, pond.ErrGroupStopped) {
		p.Logger.Warn("Lane group finished with error", zap.Error(err))
	}

	for _, ids := range acked {
		ack = append(ack, ids...)
	}
	return ack
}

func (p *Processor) runLane(ctx context.Context, items []item) []string {
	ack := make([]string, 0, len(items))
	for _, it := range items {
		if ctx.Err() != nil {
			return ack
		}
		ok, halt := p.handle(ctx, it)
		if halt {
			return ack
		}
		if ok {
			ack = append(ack, it.msg.ID)
		}
	}
	return ack
}

// handle applies one entry. ok means the entry can be acknowledged; halt
// means the lane must stop.
func (p *Processor) handle(ctx context.Context, it item) (ok, halt bool) {
	// an entry that started is finished even if the batch is cancelled
	ctx = context.WithoutCancel(ctx)
	ev := it.event

	tracked, err := p.Resolver.IsTracked(ctx, it.subject)
	if err != nil {
		p.Stats.Failed.Inc()
		p.Logger.Error("Failed to resolve subject, leaving pending",
			zap.String("accountId", ev.AccountID),
			zap.String("messageId", it.msg.ID),
			zap.Error(err))
		return false, true
	}
	if !tracked {
		p.Stats.Skipped.Inc()
		p.Logger.Debug("Skipping untracked subject",
			zap.String("accountId", ev.AccountID),
			zap.String("messageId", it.msg.ID))
		return true, false
	}

	res, err := p.Ledger.ApplyEvent(ctx, ev)
	switch {
	case errors.Is(err, ledger.ErrOutOfOrderEvent):
		p.Stats.OutOfOrder.Inc()
		p.Logger.Warn("Dropping out-of-order balance event",
			zap.String("accountId", ev.AccountID),
			zap.String("messageId", it.msg.ID),
			zap.Int64("timestamp", ev.Timestamp),
			zap.Uint64("height", ev.OrderingKey.Height),
			zap.Error(err))
		return true, false
	case err != nil:
		p.Stats.Failed.Inc()
		p.Logger.Error("Failed to apply balance event, leaving pending",
			zap.String("accountId", ev.AccountID),
			zap.String("messageId", it.msg.ID),
			zap.Error(err))
		return false, true
	}

	p.Stats.Applied.Inc()
	if res.SnapshotOpened {
		p.Stats.SnapshotsOpened.Inc()
	}
	if res.Clamped {
		p.Stats.Clamped.Inc()
	}
	if p.Notifier != nil {
		p.Notifier.Notify(ctx, newAccountUpdate(it.subject, ev, res))
	}
	return true, false
}
