package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientMessage represents messages sent by WebSocket clients.
type ClientMessage struct {
	Action    string `json:"action"`    // "subscribe" or "unsubscribe"
	AccountID string `json:"accountId"` // account to follow, or "*" for all accounts
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string      `json:"type"`    // "account.updated", "subscribed", "unsubscribed", "info", "error"
	Payload interface{} `json:"payload"` // Event-specific data
}

// clientSubscriptions tracks what accounts a client follows.
type clientSubscriptions struct {
	mu       sync.RWMutex
	accounts map[string]bool
}

func newClientSubscriptions() *clientSubscriptions {
	return &clientSubscriptions{
		accounts: make(map[string]bool),
	}
}

func (cs *clientSubscriptions) Subscribe(accountID string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.accounts[accountID] = true
}

func (cs *clientSubscriptions) Unsubscribe(accountID string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.accounts, accountID)
}

// IsSubscribed checks if an account is followed. Wildcard (*) matches all accounts.
func (cs *clientSubscriptions) IsSubscribed(accountID string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.accounts["*"] || cs.accounts[accountID]
}

// HandleWebSocket upgrades HTTP connection to WebSocket and streams account updates.
//
// Protocol:
// Client sends: {"action": "subscribe", "accountId": "holding:1:abc"}  // follow one account
// Client sends: {"action": "subscribe", "accountId": "*"}              // follow every account
// Client sends: {"action": "unsubscribe", "accountId": "holding:1:abc"}
//
// Server sends:
// - {"type": "account.updated", "payload": {...}}
// - {"type": "subscribed", "payload": {"accountId": "holding:1:abc"}}
// - {"type": "unsubscribed", "payload": {"accountId": "holding:1:abc"}}
// - {"type": "error", "payload": {"message": "..."}}
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	closeConn := sync.OnceFunc(func() {
		if err := conn.Close(); err != nil {
			c.App.Logger.Debug("Failed to close WebSocket connection", zap.Error(err))
		}
	})
	defer closeConn()

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := newClientSubscriptions()
	send := make(chan ServerMessage, 256)

	// producers write to send; the writer drains it until it is closed
	var producers, writer sync.WaitGroup

	producers.Add(2)
	go c.guard(cancel, r.RemoteAddr, "redis subscriber", func() {
		defer producers.Done()
		c.subscribeToRedis(ctx, send, subs)
	})
	go c.guard(cancel, r.RemoteAddr, "ping ticker", func() {
		defer producers.Done()
		c.sendPings(ctx, conn)
	})

	writer.Add(1)
	go c.guard(cancel, r.RemoteAddr, "message writer", func() {
		defer writer.Done()
		// a dead client must also unblock the reader, which only a close does
		c.writeMessages(conn, send, func() {
			cancel()
			closeConn()
		})
	})

	// blocks until the connection closes
	c.readClientMessages(ctx, conn, cancel, subs, send)

	cancel()
	producers.Wait()
	close(send)
	writer.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// guard runs fn and turns a panic into a logged connection shutdown.
func (c *Controller) guard(cancel context.CancelFunc, remoteAddr, name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			c.App.Logger.Error("Panic in websocket goroutine",
				zap.String("goroutine", name),
				zap.Any("panic", rec),
				zap.String("stack", string(debug.Stack())),
				zap.String("remote_addr", remoteAddr))
			cancel()
		}
	}()
	fn()
}

// subscribeToRedis pattern-subscribes to every account channel and forwards
// updates the client follows. It reconnects with exponential backoff until
// ctx is cancelled.
func (c *Controller) subscribeToRedis(ctx context.Context, send chan<- ServerMessage, subs *clientSubscriptions) {
	prefix := c.App.NotifyChannel
	pattern := prefix + ":*"

	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 30 * time.Second
		backoffFactor  = 2.0
		jitterFactor   = 0.1
	)

	backoff := initialBackoff
	attemptNum := 0

	for ctx.Err() == nil {
		attemptNum++

		subscriptionErr := c.attemptRedisSubscription(ctx, pattern, send, subs, attemptNum)
		if ctx.Err() != nil {
			return
		}

		if subscriptionErr != nil {
			c.App.Logger.Warn("Redis subscription failed, will retry",
				zap.Error(subscriptionErr),
				zap.Int("attempt", attemptNum),
				zap.Duration("backoff", backoff))
		} else {
			c.App.Logger.Warn("Redis subscription channel closed, will retry",
				zap.Int("attempt", attemptNum),
				zap.Duration("backoff", backoff))
		}

		if !trySend(ctx, send, ServerMessage{
			Type: "error",
			Payload: map[string]interface{}{
				"message":     "Redis connection lost, attempting to reconnect...",
				"retryIn":     backoff.Seconds(),
				"attempt":     attemptNum,
				"recoverable": true,
			},
		}) {
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}

		backoff = CalculateNextBackoff(backoff, maxBackoff, backoffFactor, jitterFactor)
	}
}

func (c *Controller) attemptRedisSubscription(
	ctx context.Context,
	pattern string,
	send chan<- ServerMessage,
	subs *clientSubscriptions,
	attemptNum int,
) error {
	pubsub := c.App.RedisClient.PSubscribe(ctx, pattern)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Debug("Error closing Redis subscription", zap.Error(err))
		}
	}()

	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()

	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return fmt.Errorf("failed to confirm Redis subscription: %w", err)
	}

	c.App.Logger.Debug("Subscribed to Redis pattern",
		zap.String("pattern", pattern),
		zap.Int("attempt", attemptNum))

	if attemptNum > 1 {
		if !trySend(ctx, send, ServerMessage{
			Type:    "info",
			Payload: map[string]interface{}{"message": "Redis connection established", "attempt": attemptNum},
		}) {
			return ctx.Err()
		}
	}

	return c.processRedisMessages(ctx, pubsub, send, subs)
}

func (c *Controller) processRedisMessages(
	ctx context.Context,
	pubsub *redis.PubSub,
	send chan<- ServerMessage,
	subs *clientSubscriptions,
) error {
	ch := pubsub.Channel()
	prefix := c.App.NotifyChannel + ":"

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			accountID := strings.TrimPrefix(msg.Channel, prefix)
			if accountID == msg.Channel || accountID == "" {
				c.App.Logger.Warn("Unexpected update channel", zap.String("channel", msg.Channel))
				continue
			}
			if !subs.IsSubscribed(accountID) {
				continue
			}

			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				c.App.Logger.Error("Failed to parse Redis message",
					zap.Error(err),
					zap.String("channel", msg.Channel))
				continue
			}

			if !trySend(ctx, send, ServerMessage{Type: "account.updated", Payload: payload}) {
				return ctx.Err()
			}
		}
	}
}

func trySend(ctx context.Context, send chan<- ServerMessage, msg ServerMessage) bool {
	select {
	case send <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// CalculateNextBackoff calculates the next backoff duration with exponential growth and jitter.
func CalculateNextBackoff(current, max time.Duration, factor, jitterFactor float64) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		next = max
	}

	jitter := float64(next) * jitterFactor * (2*rand.Float64() - 1)
	nextWithJitter := time.Duration(float64(next) + jitter)

	if nextWithJitter < current {
		nextWithJitter = current
	}
	if nextWithJitter > max {
		nextWithJitter = max
	}

	return nextWithJitter
}

// sendPings sends periodic WebSocket ping frames to keep the connection alive.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages writes messages from the send channel to the WebSocket connection.
// The first write error calls abort; after that it keeps draining so producers never block.
func (c *Controller) writeMessages(conn *websocket.Conn, send <-chan ServerMessage, abort func()) {
	failed := false
	for msg := range send {
		if failed {
			continue
		}
		if err := conn.WriteJSON(msg); err != nil {
			c.App.Logger.Debug("Failed to write WebSocket message", zap.Error(err))
			failed = true
			abort()
		}
	}
}

// readClientMessages handles subscription requests until the connection closes.
func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *clientSubscriptions, send chan<- ServerMessage) {
	if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.App.Logger.Error("Failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for ctx.Err() == nil {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.App.Logger.Warn("WebSocket read error", zap.Error(err))
			}
			cancel()
			return
		}

		if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.App.Logger.Error("Failed to reset read deadline", zap.Error(err))
			return
		}

		var reply ServerMessage
		switch {
		case msg.Action != "subscribe" && msg.Action != "unsubscribe":
			reply = ServerMessage{Type: "error", Payload: map[string]string{"message": "unknown action: " + msg.Action}}
		case msg.AccountID == "":
			reply = ServerMessage{Type: "error", Payload: map[string]string{"message": "accountId is required"}}
		case msg.Action == "subscribe":
			subs.Subscribe(msg.AccountID)
			c.App.Logger.Debug("Client subscribed", zap.String("accountId", msg.AccountID))
			reply = ServerMessage{Type: "subscribed", Payload: map[string]string{"accountId": msg.AccountID}}
		default:
			subs.Unsubscribe(msg.AccountID)
			c.App.Logger.Debug("Client unsubscribed", zap.String("accountId", msg.AccountID))
			reply = ServerMessage{Type: "unsubscribed", Payload: map[string]string{"accountId": msg.AccountID}}
		}
		if !trySend(ctx, send, reply) {
			return
		}
	}
}
