package worker

import (
	"context"
	"testing"
	"time"

	"github.com/jamnotes/jam-service/internal/broadcast"
	"github.com/jamnotes/jam-service/internal/domain"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeParts struct {
	stale []domain.Participant
}

func (f *fakeParts) DeactivateStale(ctx context.Context, olderThan time.Duration) ([]domain.Participant, error) {
	out := f.stale
	f.stale = nil
	return out, nil
}

type fakeRooms struct {
	idle    []string
	deleted []string
}

func (f *fakeRooms) ListIdle(ctx context.Context, olderThan time.Duration) ([]string, error) {
	return f.idle, nil
}

func (f *fakeRooms) DeleteCascade(ctx context.Context, roomID string) error {
	f.deleted = append(f.deleted, roomID)
	return nil
}

type fakeChat struct {
	posted []string
}

func (f *fakeChat) PostSystem(ctx context.Context, roomID, content string) (*domain.Message, error) {
	f.posted = append(f.posted, content)
	return &domain.Message{ID: uuid.NewString(), RoomID: roomID, SenderID: domain.SystemSender, Content: content, Type: domain.MessageSystem, CreatedAt: time.Now()}, nil
}

type fakeBus struct {
	envs []broadcast.Envelope
}

func (f *fakeBus) Publish(ctx context.Context, env broadcast.Envelope) error {
	f.envs = append(f.envs, env)
	return nil
}

func TestSweep(t *testing.T) {
	parts := &fakeParts{stale: []domain.Participant{
		{RoomID: "r1", UserID: "alice", DisplayName: "Alice"},
		{RoomID: "r2", UserID: "bob", DisplayName: "Bob"},
	}}
	rooms := &fakeRooms{idle: []string{"r3"}}
	chat := &fakeChat{}
	bus := &fakeBus{}

	h := NewSweepHandler(parts, rooms, chat, bus)
	task, err := NewRoomSweepTask(2*time.Minute, 10*time.Minute)
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), task))

	// each stale participant got a departure message and a broadcast
	require.Len(t, chat.posted, 2)
	assert.Contains(t, chat.posted[0], "Alice")

	var left, deletedRooms int
	for _, env := range bus.envs {
		require.Equal(t, broadcast.TypeParticipantUpdate, env.Type)
		switch env.Participant.Event {
		case broadcast.PeerLeft:
			left++
		case broadcast.PeerRoomDeleted:
			deletedRooms++
		}
	}
	assert.Equal(t, 2, left)
	assert.Equal(t, 1, deletedRooms)
	assert.Equal(t, []string{"r3"}, rooms.deleted)
}

// A second run right after the first finds nothing; the sweep is idempotent.
func TestSweepIdempotent(t *testing.T) {
	parts := &fakeParts{stale: []domain.Participant{{RoomID: "r1", UserID: "alice", DisplayName: "Alice"}}}
	rooms := &fakeRooms{}
	chat := &fakeChat{}
	bus := &fakeBus{}

	h := NewSweepHandler(parts, rooms, chat, bus)
	task, err := NewRoomSweepTask(2*time.Minute, 10*time.Minute)
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), task))
	require.NoError(t, h.ProcessTask(context.Background(), task))
	assert.Len(t, chat.posted, 1)
}

func TestSweepRejectsBadPayload(t *testing.T) {
	h := NewSweepHandler(&fakeParts{}, &fakeRooms{}, &fakeChat{}, &fakeBus{})
	bad := asynq.NewTask(TypeRoomSweep, []byte("{not json"))
	err := h.ProcessTask(context.Background(), bad)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
