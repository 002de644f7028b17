package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jamnotes/jam-service/internal/broadcast"
	"github.com/jamnotes/jam-service/internal/domain"
	"github.com/jamnotes/jam-service/pkg/errs"
)

// Store is the authoritative side of the dual-path model.
type Store interface {
	Snapshot(ctx context.Context, roomID string) (*domain.RoomSnapshot, error)
}

// Channel is the best-effort side: the broadcast transport for one client.
type Channel interface {
	JoinChannel(ctx context.Context, roomID string) error
	LeaveChannel() error
	Publish(ctx context.Context, env broadcast.Envelope) error
	OnMessage(fn func(broadcast.Envelope))
}

// DefaultPollInterval is the snapshot fallback cadence. Broadcast delivery
// makes updates feel instant; polling is only the correctness backstop.
const DefaultPollInterval = 30 * time.Second

// Controller owns the lifecycle of "being in a room" for one client: it
// subscribes to the room channel, polls snapshots as the fallback, folds
// both sources through the RoomState reconciler and emits the merged state.
// When the channel is unavailable the controller degrades to polling only;
// it never fails the session over a broadcast outage.
type Controller struct {
	userID string
	store  Store
	ch     Channel

	pollEvery  time.Duration
	historyCap int

	mu       sync.Mutex
	phase    Phase
	roomID   string
	state    RoomState
	degraded bool

	events  chan broadcast.Envelope
	updates chan RoomState
	draws   chan broadcast.Envelope
}

type Option func(*Controller)

func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pollEvery = d
		}
	}
}

func WithHistoryCap(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.historyCap = n
		}
	}
}

func NewController(userID string, store Store, ch Channel, opts ...Option) *Controller {
	c := &Controller{
		userID:     userID,
		store:      store,
		ch:         ch,
		pollEvery:  DefaultPollInterval,
		historyCap: DefaultHistoryCap,
		phase:      PhaseDisconnected,
		events:     make(chan broadcast.Envelope, 256),
		updates:    make(chan RoomState, 1),
		draws:      make(chan broadcast.Envelope, 64),
	}
	for _, opt := range opts {
		opt(c)
	}
	ch.OnMessage(c.onEnvelope)
	return c
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Updates delivers reconciled room states. Only the latest state is kept;
// slow consumers see the newest view, not a backlog.
func (c *Controller) Updates() <-chan RoomState { return c.updates }

// Draws delivers ephemeral DRAW envelopes in arrival order. They bypass the
// reconciler because strokes are never part of authoritative room state.
func (c *Controller) Draws() <-chan broadcast.Envelope { return c.draws }

// Join moves Disconnected → Joining → InRoom: seed state from an
// authoritative snapshot, then attach to the broadcast channel. A transport
// failure downgrades to polling-only instead of failing the join.
func (c *Controller) Join(ctx context.Context, roomID string) error {
	if err := c.step(evJoin); err != nil {
		return err
	}

	snap, err := c.store.Snapshot(ctx, roomID)
	if err != nil {
		_ = c.step(evJoinFailed)
		return err
	}

	degraded := false
	if err := c.ch.JoinChannel(ctx, roomID); err != nil {
		if !errors.Is(err, errs.ErrTransportUnavailable) {
			_ = c.step(evJoinFailed)
			return err
		}
		degraded = true
		slog.Warn("broadcast channel unavailable, polling only", "room", roomID, "user", c.userID, "err", err)
	}

	c.mu.Lock()
	c.roomID = roomID
	c.degraded = degraded
	c.state = NewRoomState(c.historyCap).ApplySnapshot(snap)
	st := c.state
	c.mu.Unlock()

	if err := c.step(evJoined); err != nil {
		return err
	}
	c.emit(st)
	return nil
}

// Leave unsubscribes and returns to Disconnected. In-flight store writes
// issued earlier are not cancelled; their effects simply stop being
// observed.
func (c *Controller) Leave() error {
	if err := c.step(evLeave); err != nil {
		return err
	}
	err := c.ch.LeaveChannel()
	c.mu.Lock()
	c.roomID = ""
	c.mu.Unlock()
	if stepErr := c.step(evLeft); stepErr != nil {
		return stepErr
	}
	return err
}

// Send publishes a client-originated envelope, stamping sender identity.
func (c *Controller) Send(ctx context.Context, env broadcast.Envelope) error {
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	if roomID == "" {
		return broadcast.ErrNotSubscribed
	}
	env.RoomID = roomID
	env.SenderID = c.userID
	if env.SentAtMs == 0 {
		env.SentAtMs = time.Now().UnixMilli()
	}
	return c.ch.Publish(ctx, env)
}

// Run processes both event sources until the context ends. Callers run it in
// its own goroutine after a successful Join.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.events:
			c.apply(func(s RoomState) RoomState { return s.ApplyEnvelope(env) })
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

// Poll forces one snapshot refresh outside the ticker cadence.
func (c *Controller) Poll(ctx context.Context) { c.poll(ctx) }

func (c *Controller) poll(ctx context.Context) {
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	if roomID == "" {
		return
	}

	snap, err := c.store.Snapshot(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			c.apply(func(s RoomState) RoomState {
				out := s.clone()
				out.Deleted = true
				return out
			})
			return
		}
		slog.Warn("snapshot poll failed", "room", roomID, "err", err)
		return
	}
	c.apply(func(s RoomState) RoomState { return s.ApplySnapshot(snap) })
}

func (c *Controller) apply(fn func(RoomState) RoomState) {
	c.mu.Lock()
	c.state = fn(c.state)
	st := c.state
	c.mu.Unlock()
	c.emit(st)
}

// emit keeps only the freshest state in the updates channel.
func (c *Controller) emit(st RoomState) {
	for {
		select {
		case c.updates <- st:
			return
		default:
			select {
			case <-c.updates:
			default:
			}
		}
	}
}

// onEnvelope is the transport delivery callback: discard self-echoes, route
// draws around the reconciler, queue the rest. A full queue drops the event;
// the next poll repairs whatever was missed.
func (c *Controller) onEnvelope(env broadcast.Envelope) {
	if env.FromSelf(c.userID) {
		return
	}
	if env.Type == broadcast.TypeDraw {
		select {
		case c.draws <- env:
		default:
		}
		return
	}
	select {
	case c.events <- env:
	default:
		slog.Debug("session event queue full, dropping envelope", "type", env.Type)
	}
}

func (c *Controller) step(ev phaseEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := transition(c.phase, ev)
	if err != nil {
		return err
	}
	c.phase = next
	return nil
}
