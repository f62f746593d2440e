package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_PoolByID(t *testing.T) {
	response := RpcPool{
		ID:              1,
		Amount:          5000000,
		Points:          []PointsEntry{{Address: "addr1", Points: 3000}},
		TotalPoolPoints: 5000,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/query/pool", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]uint64
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, uint64(1), body["id"])

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := NewHTTPWithOpts(Opts{Endpoints: []string{server.URL}})
	pool, err := client.PoolByID(context.Background(), 1)

	require.NoError(t, err)
	require.NotNil(t, pool)
	assert.Equal(t, response.ID, pool.ID)
	assert.Equal(t, response.Amount, pool.Amount)
	assert.True(t, pool.HasMember("addr1"))
	assert.False(t, pool.HasMember("addr2"))
}

func TestHTTPClient_NotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	a := httptest.NewServer(handler)
	defer a.Close()
	b := httptest.NewServer(handler)
	defer b.Close()

	client := NewHTTPWithOpts(Opts{Endpoints: []string{a.URL, b.URL}})
	_, err := client.PoolByID(context.Background(), 9)

	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPClient_FailsOverOnServerError(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(RpcPool{ID: 4})
	}))
	defer good.Close()

	client := NewHTTPWithOpts(Opts{Endpoints: []string{bad.URL, good.URL}})
	pool, err := client.PoolByID(context.Background(), 4)

	require.NoError(t, err)
	assert.Equal(t, uint64(4), pool.ID)
}

func TestHTTPClient_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPWithOpts(Opts{
		Endpoints:       []string{server.URL, server.URL},
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	})
	for i := 0; i < 2; i++ {
		_, err := client.PoolByID(context.Background(), 1)
		require.Error(t, err)
	}

	_, err := client.PoolByID(context.Background(), 1)
	require.ErrorIs(t, err, ErrNoEndpoints)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPClient_NoEndpoints(t *testing.T) {
	client := NewHTTPWithOpts(Opts{})
	_, err := client.PoolByID(context.Background(), 1)
	require.ErrorIs(t, err, ErrNoEndpoints)
}

func TestHTTPClient_AcquireHonoursContext(t *testing.T) {
	client := NewHTTPWithOpts(Opts{Endpoints: []string{"http://127.0.0.1:1"}, RPS: 1, Burst: 1})
	require.NoError(t, client.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, client.acquire(ctx), context.Canceled)
}
