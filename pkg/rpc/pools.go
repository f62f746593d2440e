package rpc

import (
	"context"
	"fmt"
	"net/http"
)

const poolByIDPath = "/v1/query/pool"

// PointsEntry represents a single address and points allocation in a pool.
type PointsEntry struct {
	Address string `json:"address"`
	Points  uint64 `json:"points"`
}

// RpcPool represents a pool response from the RPC.
type RpcPool struct {
	ID              uint64        `json:"id"`
	ChainID         uint64        `json:"chain_id"`
	Amount          uint64        `json:"amount"`
	Points          []PointsEntry `json:"points"`
	TotalPoolPoints uint64        `json:"total_pool_points"`
}

// HasMember reports whether address holds points in the pool.
func (p *RpcPool) HasMember(address string) bool {
	for _, e := range p.Points {
		if e.Address == address {
			return true
		}
	}
	return false
}

// PoolByID returns a single pool by ID at the current chain head.
func (c *HTTPClient) PoolByID(ctx context.Context, id uint64) (*RpcPool, error) {
	args := map[string]any{"id": id}

	var pool RpcPool
	if err := c.doJSON(ctx, http.MethodPost, poolByIDPath, args, &pool); err != nil {
		return nil, fmt.Errorf("fetch pool %d: %w", id, err)
	}

	return &pool, nil
}
