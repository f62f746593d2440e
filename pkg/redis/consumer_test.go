package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClientWithOptions(context.Background(), zaptest.NewLogger(t), &redis.Options{Addr: mr.Addr()}, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func newTestConsumer(t *testing.T, c *Client) *StreamConsumer {
	t.Helper()
	sc, err := NewStreamConsumer(c, StreamConsumerConfig{
		Stream:           "events",
		Group:            "ledger",
		Consumer:         "c1",
		Count:            10,
		Block:            20 * time.Millisecond,
		RetryInterval:    5 * time.Millisecond,
		MaxRetryInterval: 20 * time.Millisecond,
		Logger:           zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return sc
}

func TestNewStreamConsumer_Validation(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := NewStreamConsumer(nil, StreamConsumerConfig{Stream: "s", Group: "g", Consumer: "c"})
	assert.Error(t, err)
	_, err = NewStreamConsumer(c, StreamConsumerConfig{Group: "g", Consumer: "c"})
	assert.Error(t, err)
	_, err = NewStreamConsumer(c, StreamConsumerConfig{Stream: "s", Group: "g"})
	assert.Error(t, err)

	sc, err := NewStreamConsumer(c, StreamConsumerConfig{Stream: "s", Group: "g", Consumer: "c"})
	require.NoError(t, err)
	assert.Equal(t, "0", sc.config.StartID)
	assert.Equal(t, int64(100), sc.config.Count)
	assert.Equal(t, 5*time.Second, sc.config.Block)
}

func TestRunBatch_AcksHandledEntries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, _ := newTestClient(t)

	for _, v := range []string{"a", "b", "c"} {
		_, err := c.XAdd(ctx, "events", map[string]interface{}{"data": v})
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen []string
	)
	sc := newTestConsumer(t, c)
	done := make(chan error, 1)
	go func() {
		done <- sc.RunBatch(ctx, func(_ context.Context, msgs []Message) []string {
			ids := make([]string, 0, len(msgs))
			mu.Lock()
			for _, m := range msgs {
				seen = append(seen, string(m.GetData()))
				ids = append(ids, m.ID)
			}
			mu.Unlock()
			return ids
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		n, err := c.XPendingCount(ctx, "events", "ledger")
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestRunBatch_RetriesUnackedEntriesFirst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, _ := newTestClient(t)

	for _, v := range []string{"a", "b"} {
		_, err := c.XAdd(ctx, "events", map[string]interface{}{"data": v})
		require.NoError(t, err)
	}

	var (
		mu       sync.Mutex
		attempts = map[string]int{}
		order    []string
	)
	sc := newTestConsumer(t, c)
	go func() {
		_ = sc.RunBatch(ctx, func(_ context.Context, msgs []Message) []string {
			mu.Lock()
			defer mu.Unlock()
			var ack []string
			for _, m := range msgs {
				v := string(m.GetData())
				attempts[v]++
				order = append(order, v)
				// "b" fails the first time
				if v == "b" && attempts[v] == 1 {
					break
				}
				ack = append(ack, m.ID)
			}
			return ack
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts["b"] == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		n, err := c.XPendingCount(ctx, "events", "ledger")
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts["a"])
	assert.Equal(t, []string{"a", "b", "b"}, order)
}

func TestMessageHelpers(t *testing.T) {
	m := Message{Values: map[string]interface{}{
		"data":   []byte(`{"x":1}`),
		"height": "1200",
		"index":  int64(7),
		"bad":    "12x",
	}}

	assert.Equal(t, []byte(`{"x":1}`), m.GetData())
	assert.Equal(t, uint64(1200), m.GetHeight())

	s, ok := m.GetString("index")
	assert.True(t, ok)
	assert.Equal(t, "7", s)

	_, ok = m.GetString("missing")
	assert.False(t, ok)

	m.Values["height"] = "12x"
	assert.Equal(t, uint64(0), m.GetHeight())
	assert.Nil(t, (&Message{Values: map[string]interface{}{}}).GetData())
}

func TestXGroupCreateMkStream_Idempotent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	require.NoError(t, c.XGroupCreateMkStream(ctx, "events", "ledger", "0"))
	require.NoError(t, c.XGroupCreateMkStream(ctx, "events", "ledger", "0"))

	n, err := c.XLen(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPublishAndPSubscribe(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	sub := c.PSubscribe(ctx, "canopy:points:*")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	c.Publish(ctx, "canopy:points:account.updated", `{"accountId":"a"}`)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "canopy:points:account.updated", msg.Channel)
	assert.Equal(t, `{"accountId":"a"}`, msg.Payload)
	assert.NoError(t, c.Health(ctx))
}
