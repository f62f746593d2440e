// Package identity decides which subjects the ledger tracks.
package identity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/canopy-network/canopyx-points/pkg/events"
	"github.com/canopy-network/canopyx-points/pkg/rpc"
	"github.com/canopy-network/canopyx-points/pkg/utils"
	"github.com/puzpuzpuz/xsync/v4"
)

const (
	ModeAll    = "all"
	ModeStatic = "static"
	ModeRPC    = "rpc"
)

// Resolver reports whether a subject's balance changes should be recorded.
type Resolver interface {
	IsTracked(ctx context.Context, s events.Subject) (bool, error)
}

// All tracks every subject.
type All struct{}

func (All) IsTracked(context.Context, events.Subject) (bool, error) {
	return true, nil
}

// Static tracks an allowlist of "kind:asset" pairs. "kind:*" matches every
// asset of that kind.
type Static struct {
	allowed map[string]struct{}
}

// NewStatic builds a Static resolver from "kind:asset" entries.
func NewStatic(entries []string) (*Static, error) {
	s := &Static{allowed: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		kind, asset, ok := strings.Cut(strings.TrimSpace(e), ":")
		if !ok || !events.Kind(kind).Valid() || asset == "" {
			return nil, fmt.Errorf("invalid tracked asset %q, want kind:asset", e)
		}
		s.allowed[kind+":"+asset] = struct{}{}
	}
	return s, nil
}

func (s *Static) IsTracked(_ context.Context, subject events.Subject) (bool, error) {
	if _, ok := s.allowed[string(subject.Kind)+":*"]; ok {
		return true, nil
	}
	_, ok := s.allowed[string(subject.Kind)+":"+subject.Asset]
	return ok, nil
}

// PoolClient is the RPC surface the Pool resolver needs.
type PoolClient interface {
	PoolByID(ctx context.Context, id uint64) (*rpc.RpcPool, error)
}

// Pool tracks holdings in pools that exist on chain. Staking subjects are
// delegated to Staking.
type Pool struct {
	Client  PoolClient
	Staking Resolver
}

func (p *Pool) IsTracked(ctx context.Context, s events.Subject) (bool, error) {
	if s.Kind != events.KindHolding {
		if p.Staking == nil {
			return false, nil
		}
		return p.Staking.IsTracked(ctx, s)
	}

	id, err := strconv.ParseUint(s.Asset, 10, 64)
	if err != nil {
		return false, nil
	}
	pool, err := p.Client.PoolByID(ctx, id)
	if err != nil {
		if rpc.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return pool.ID == id, nil
}

type cacheEntry struct {
	tracked bool
	expires time.Time
}

// Cached memoizes another resolver's answers per (kind, asset) for a TTL.
// Errors are not cached.
type Cached struct {
	next    Resolver
	ttl     time.Duration
	now     func() time.Time
	entries *xsync.Map[string, cacheEntry]
}

func NewCached(next Resolver, ttl time.Duration) *Cached {
	return &Cached{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: xsync.NewMap[string, cacheEntry](),
	}
}

func (c *Cached) IsTracked(ctx context.Context, s events.Subject) (bool, error) {
	key := string(s.Kind) + ":" + s.Asset
	now := c.now()
	if e, ok := c.entries.Load(key); ok && now.Before(e.expires) {
		return e.tracked, nil
	}

	tracked, err := c.next.IsTracked(ctx, s)
	if err != nil {
		return false, err
	}
	c.entries.Store(key, cacheEntry{tracked: tracked, expires: now.Add(c.ttl)})
	return tracked, nil
}

// Len returns the number of cached answers, expired ones included.
func (c *Cached) Len() int {
	return c.entries.Size()
}

// NewFromEnv builds the resolver selected by IDENTITY_MODE.
func NewFromEnv() (Resolver, error) {
	mode := utils.Env("IDENTITY_MODE", ModeAll)
	switch mode {
	case ModeAll:
		return All{}, nil
	case ModeStatic:
		return NewStatic(utils.EnvList("TRACKED_ASSETS", nil))
	case ModeRPC:
		endpoints := utils.EnvList("RPC_ENDPOINTS", nil)
		if len(endpoints) == 0 {
			return nil, fmt.Errorf("IDENTITY_MODE=rpc requires RPC_ENDPOINTS")
		}
		staking, err := NewStatic(utils.EnvList("TRACKED_ASSETS", nil))
		if err != nil {
			return nil, err
		}
		client := rpc.NewHTTPWithOpts(rpc.Opts{
			Endpoints: endpoints,
			RPS:       utils.EnvInt("RPC_RPS", 20),
			Burst:     utils.EnvInt("RPC_BURST", 40),
		})
		pool := &Pool{Client: client, Staking: staking}
		return NewCached(pool, utils.EnvDuration("IDENTITY_CACHE_TTL", 5*time.Minute)), nil
	default:
		return nil, fmt.Errorf("unknown IDENTITY_MODE %q", mode)
	}
}
