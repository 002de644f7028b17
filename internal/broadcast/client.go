package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jamnotes/jam-service/internal/metrics"
	"github.com/jamnotes/jam-service/pkg/errs"

	"github.com/go-redis/redis/v8"
)

// ErrNotSubscribed is returned by Publish when the client has no active
// channel subscription.
var ErrNotSubscribed = errors.New("broadcast: not subscribed to a channel")

// DefaultPrefix namespaces the Redis channels used for room fan-out.
const DefaultPrefix = "jam:"

func channelName(prefix, roomID string) string {
	return fmt.Sprintf("%sroom:%s", prefix, roomID)
}

// Publisher is the write-only half of the channel: fire-and-forget fan-out
// for server-side code that is not itself attached to a room.
type Publisher struct {
	rdb    *redis.Client
	prefix string
}

func NewPublisher(rdb *redis.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{rdb: rdb, prefix: prefix}
}

func (p *Publisher) Publish(ctx context.Context, env Envelope) error {
	data, err := Encode(env)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, channelName(p.prefix, env.RoomID), data).Err(); err != nil {
		return fmt.Errorf("%w: publish: %v", errs.ErrTransportUnavailable, err)
	}
	metrics.EnvelopesPublished.WithLabelValues(env.Type).Inc()
	return nil
}

// Client is one logical broadcast session: at most one channel subscription
// at a time, delivery in arrival order, no dedup and no reordering. Both
// duplicate and out-of-order delivery, if the transport produces them,
// reach the handler unchanged.
type Client struct {
	rdb     *redis.Client
	prefix  string
	userID  string
	handler func(Envelope)

	mu     sync.Mutex
	sub    *redis.PubSub
	roomID string
	done   chan struct{}
}

func NewClient(rdb *redis.Client, prefix, userID string) *Client {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Client{rdb: rdb, prefix: prefix, userID: userID}
}

func (c *Client) UserID() string { return c.userID }

// OnMessage registers the single delivery callback. Must be set before
// JoinChannel.
func (c *Client) OnMessage(fn func(Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = fn
}

// JoinChannel subscribes to the room's channel. An existing subscription is
// left first, sequentially, so a room switch can never double-deliver.
func (c *Client) JoinChannel(ctx context.Context, roomID string) error {
	if err := c.LeaveChannel(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sub := c.rdb.Subscribe(ctx, channelName(c.prefix, roomID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("%w: subscribe: %v", errs.ErrTransportUnavailable, err)
	}

	c.sub = sub
	c.roomID = roomID
	c.done = make(chan struct{})

	go c.readLoop(sub, c.done)
	return nil
}

// LeaveChannel drops the current subscription. Safe to call when already
// unsubscribed.
func (c *Client) LeaveChannel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub == nil {
		return nil
	}
	err := c.sub.Close()
	close(c.done)
	c.sub = nil
	c.roomID = ""
	c.done = nil
	if err != nil {
		return fmt.Errorf("%w: unsubscribe: %v", errs.ErrTransportUnavailable, err)
	}
	return nil
}

// Publish sends the envelope on the current channel. Failure means the event
// reached nobody; callers decide whether a store-backed write covers it.
func (c *Client) Publish(ctx context.Context, env Envelope) error {
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()

	if roomID == "" {
		return ErrNotSubscribed
	}
	env.RoomID = roomID

	data, err := Encode(env)
	if err != nil {
		return err
	}
	if err := c.rdb.Publish(ctx, channelName(c.prefix, roomID), data).Err(); err != nil {
		return fmt.Errorf("%w: publish: %v", errs.ErrTransportUnavailable, err)
	}
	metrics.EnvelopesPublished.WithLabelValues(env.Type).Inc()
	return nil
}

func (c *Client) readLoop(sub *redis.PubSub, done chan struct{}) {
	ch := sub.Channel()
	for {
		select {
		case <-done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			env, err := Decode([]byte(msg.Payload))
			if err != nil {
				slog.Debug("broadcast: dropping malformed envelope", "err", err)
				continue
			}
			c.mu.Lock()
			fn := c.handler
			c.mu.Unlock()
			if fn != nil {
				fn(env)
			}
		}
	}
}
