package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jamnotes/jam-service/internal/broadcast"
	"github.com/jamnotes/jam-service/internal/domain"
	"github.com/jamnotes/jam-service/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotStore struct {
	mu   sync.Mutex
	snap *domain.RoomSnapshot
	err  error
}

func (f *fakeSnapshotStore) Snapshot(ctx context.Context, roomID string) (*domain.RoomSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.snap
	return &cp, nil
}

type fakeChannel struct {
	mu        sync.Mutex
	joined    string
	left      bool
	joinErr   error
	published []broadcast.Envelope
	handler   func(broadcast.Envelope)
}

func (f *fakeChannel) JoinChannel(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	f.joined = roomID
	return nil
}

func (f *fakeChannel) LeaveChannel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = true
	f.joined = ""
	return nil
}

func (f *fakeChannel) Publish(ctx context.Context, env broadcast.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, env)
	return nil
}

func (f *fakeChannel) OnMessage(fn func(broadcast.Envelope)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = fn
}

// deliver simulates an envelope arriving from the transport.
func (f *fakeChannel) deliver(env broadcast.Envelope) {
	f.mu.Lock()
	fn := f.handler
	f.mu.Unlock()
	fn(env)
}

func controllerFixture() (*fakeSnapshotStore, *fakeChannel, *Controller) {
	store := &fakeSnapshotStore{snap: testSnapshot(testBase)}
	ch := &fakeChannel{}
	ctrl := NewController("bob", store, ch, WithPollInterval(time.Hour))
	return store, ch, ctrl
}

func awaitUpdate(t *testing.T, ctrl *Controller) RoomState {
	t.Helper()
	select {
	case st := <-ctrl.Updates():
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("no state update")
		return RoomState{}
	}
}

func TestControllerJoin(t *testing.T) {
	_, ch, ctrl := controllerFixture()

	require.NoError(t, ctrl.Join(context.Background(), "room-1"))
	assert.Equal(t, PhaseInRoom, ctrl.Phase())
	assert.Equal(t, "room-1", ch.joined)

	st := awaitUpdate(t, ctrl)
	assert.Equal(t, "room-1", st.RoomID)
	assert.Len(t, st.Participants, 2)
}

func TestControllerJoinDegradesWithoutChannel(t *testing.T) {
	_, ch, ctrl := controllerFixture()
	ch.joinErr = errs.ErrTransportUnavailable

	// a dead broadcast transport downgrades to polling, it does not fail
	require.NoError(t, ctrl.Join(context.Background(), "room-1"))
	assert.Equal(t, PhaseInRoom, ctrl.Phase())
}

func TestControllerJoinFailsOnStoreError(t *testing.T) {
	store, _, ctrl := controllerFixture()
	store.err = domain.ErrRoomNotFound

	err := ctrl.Join(context.Background(), "room-1")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.Equal(t, PhaseDisconnected, ctrl.Phase())
}

func TestControllerDoubleJoinRejected(t *testing.T) {
	_, _, ctrl := controllerFixture()
	require.NoError(t, ctrl.Join(context.Background(), "room-1"))
	assert.Error(t, ctrl.Join(context.Background(), "room-1"))
}

func TestControllerLeave(t *testing.T) {
	_, ch, ctrl := controllerFixture()
	require.NoError(t, ctrl.Join(context.Background(), "room-1"))

	require.NoError(t, ctrl.Leave())
	assert.Equal(t, PhaseDisconnected, ctrl.Phase())
	assert.True(t, ch.left)
}

func TestControllerSendStampsIdentity(t *testing.T) {
	_, ch, ctrl := controllerFixture()
	require.NoError(t, ctrl.Join(context.Background(), "room-1"))

	err := ctrl.Send(context.Background(), broadcast.Envelope{
		Type: broadcast.TypeDraw,
		Draw: &broadcast.DrawPayload{Clear: true},
	})
	require.NoError(t, err)

	require.Len(t, ch.published, 1)
	assert.Equal(t, "room-1", ch.published[0].RoomID)
	assert.Equal(t, "bob", ch.published[0].SenderID)
	assert.NotZero(t, ch.published[0].SentAtMs)
}

func TestControllerSendBeforeJoin(t *testing.T) {
	_, _, ctrl := controllerFixture()
	err := ctrl.Send(context.Background(), broadcast.Envelope{Type: broadcast.TypeDraw, Draw: &broadcast.DrawPayload{Clear: true}})
	assert.ErrorIs(t, err, broadcast.ErrNotSubscribed)
}

func TestControllerAppliesDeliveredEnvelopes(t *testing.T) {
	_, ch, ctrl := controllerFixture()
	require.NoError(t, ctrl.Join(context.Background(), "room-1"))
	awaitUpdate(t, ctrl) // drain the join emit

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	ch.deliver(messageEnvelope("m9", "alice", "hi bob", testBase.Add(time.Minute)))

	st := awaitUpdate(t, ctrl)
	require.NotEmpty(t, st.Messages)
	assert.Equal(t, "m9", st.Messages[len(st.Messages)-1].ID)
}

func TestControllerDiscardsSelfEcho(t *testing.T) {
	_, ch, ctrl := controllerFixture()
	require.NoError(t, ctrl.Join(context.Background(), "room-1"))
	awaitUpdate(t, ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	ch.deliver(messageEnvelope("own", "bob", "my own echo", testBase.Add(time.Minute)))
	ch.deliver(messageEnvelope("other", "alice", "second", testBase.Add(2*time.Minute)))

	st := awaitUpdate(t, ctrl)
	for _, m := range st.Messages {
		assert.NotEqual(t, "own", m.ID, "self echo must be discarded")
	}
}

func TestControllerRoutesDraws(t *testing.T) {
	_, ch, ctrl := controllerFixture()
	require.NoError(t, ctrl.Join(context.Background(), "room-1"))

	ch.deliver(broadcast.Envelope{
		Type:     broadcast.TypeDraw,
		RoomID:   "room-1",
		SenderID: "alice",
		SentAtMs: testBase.UnixMilli(),
		Draw:     &broadcast.DrawPayload{Stroke: []broadcast.Point{{X: 1, Y: 1}}},
	})

	select {
	case env := <-ctrl.Draws():
		assert.Equal(t, broadcast.TypeDraw, env.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("draw not forwarded")
	}
}

func TestControllerPollMarksDeletedRoom(t *testing.T) {
	store, _, ctrl := controllerFixture()
	require.NoError(t, ctrl.Join(context.Background(), "room-1"))
	awaitUpdate(t, ctrl)

	store.mu.Lock()
	store.err = domain.ErrRoomNotFound
	store.mu.Unlock()

	ctrl.Poll(context.Background())

	st := awaitUpdate(t, ctrl)
	assert.True(t, st.Deleted)
}
