package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/jamnotes/jam-service/internal/broadcast"
	"github.com/jamnotes/jam-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testSnapshot(takenAt time.Time) *domain.RoomSnapshot {
	trackID := "track-1"
	startedAt := testBase
	return &domain.RoomSnapshot{
		Room: domain.Room{
			ID:                "room-1",
			Name:              "Friday Jam",
			Code:              "AB12CD",
			BannerID:          2,
			CurrentTrackID:    &trackID,
			IsPlaying:         true,
			TrackStartedAt:    &startedAt,
			PlaybackUpdatedAt: testBase,
		},
		Participants: []domain.Participant{
			{RoomID: "room-1", UserID: "alice", DisplayName: "Alice", IsActive: true, IsCreator: true, JoinedAt: testBase},
			{RoomID: "room-1", UserID: "bob", DisplayName: "Bob", IsActive: true, JoinedAt: testBase.Add(time.Minute)},
		},
		Messages: []domain.Message{
			{ID: "m1", SenderID: domain.SystemSender, Content: "Welcome", Type: domain.MessageSystem, CreatedAt: testBase},
			{ID: "m2", SenderID: "alice", Content: "hey", Type: domain.MessageUser, CreatedAt: testBase.Add(time.Second)},
		},
		TakenAt: takenAt,
	}
}

func messageEnvelope(id, sender, content string, at time.Time) broadcast.Envelope {
	return broadcast.Envelope{
		Type:     broadcast.TypeUserMessage,
		RoomID:   "room-1",
		SenderID: sender,
		SentAtMs: at.UnixMilli(),
		Message:  &broadcast.MessagePayload{ID: id, Content: content},
	}
}

func TestApplySnapshotSeedsState(t *testing.T) {
	st := NewRoomState(0).ApplySnapshot(testSnapshot(testBase.Add(time.Minute)))

	assert.Equal(t, "room-1", st.RoomID)
	assert.Equal(t, "AB12CD", st.Code)
	assert.Len(t, st.Participants, 2)
	assert.True(t, st.Participants["alice"].IsCreator)
	require.Len(t, st.Messages, 2)
	assert.Equal(t, "m1", st.Messages[0].ID)
	assert.True(t, st.Playback.IsPlaying)
	assert.Equal(t, "track-1", st.Playback.TrackID)
}

func TestApplyEnvelopeMessageDedup(t *testing.T) {
	st := NewRoomState(0)
	env := messageEnvelope("m1", "bob", "hello", testBase)

	st = st.ApplyEnvelope(env)
	st = st.ApplyEnvelope(env) // duplicate delivery
	require.Len(t, st.Messages, 1)

	// snapshot replaying the same message must not duplicate it either
	snap := testSnapshot(testBase.Add(time.Minute))
	snap.Messages = []domain.Message{{ID: "m1", SenderID: "bob", Content: "hello", Type: domain.MessageUser, CreatedAt: testBase}}
	st = st.ApplySnapshot(snap)
	assert.Len(t, st.Messages, 1)
}

func TestMessagesOrderedAndCapped(t *testing.T) {
	st := NewRoomState(10)
	for i := 0; i < 25; i++ {
		st = st.ApplyEnvelope(messageEnvelope(
			fmt.Sprintf("m%02d", i), "bob", "x", testBase.Add(time.Duration(i)*time.Second)))
	}
	require.Len(t, st.Messages, 10)
	assert.Equal(t, "m15", st.Messages[0].ID, "oldest kept message")
	assert.Equal(t, "m24", st.Messages[9].ID, "newest message last")
	for i := 1; i < len(st.Messages); i++ {
		assert.False(t, st.Messages[i].At.Before(st.Messages[i-1].At))
	}
}

func TestSameTimestampOrderedByID(t *testing.T) {
	st := NewRoomState(0)
	st = st.ApplyEnvelope(messageEnvelope("mb", "bob", "second", testBase))
	st = st.ApplyEnvelope(messageEnvelope("ma", "alice", "first", testBase))

	require.Len(t, st.Messages, 2)
	assert.Equal(t, "ma", st.Messages[0].ID)
	assert.Equal(t, "mb", st.Messages[1].ID)
}

func TestPlaybackNewerEnvelopeWins(t *testing.T) {
	st := NewRoomState(0).ApplySnapshot(testSnapshot(testBase))

	trackID := "track-2"
	st = st.ApplyEnvelope(broadcast.Envelope{
		Type:     broadcast.TypePlaybackCommand,
		RoomID:   "room-1",
		SenderID: "bob",
		SentAtMs: testBase.Add(time.Minute).UnixMilli(),
		Playback: &broadcast.PlaybackPayload{
			Action:      broadcast.ActionChangeTrack,
			TrackID:     &trackID,
			IsPlaying:   true,
			StartedAtMs: testBase.Add(time.Minute).UnixMilli(),
		},
	})
	assert.Equal(t, "track-2", st.Playback.TrackID)

	// a stale snapshot must not roll the playback state back
	st = st.ApplySnapshot(testSnapshot(testBase.Add(30 * time.Second)))
	assert.Equal(t, "track-2", st.Playback.TrackID)
}

func TestPlaybackTieBreak(t *testing.T) {
	at := testBase.Add(time.Minute)
	mk := func(sender, trackID string) broadcast.Envelope {
		return broadcast.Envelope{
			Type:     broadcast.TypePlaybackCommand,
			RoomID:   "room-1",
			SenderID: sender,
			SentAtMs: at.UnixMilli(),
			Playback: &broadcast.PlaybackPayload{
				Action:      broadcast.ActionChangeTrack,
				TrackID:     &trackID,
				IsPlaying:   true,
				StartedAtMs: at.UnixMilli(),
			},
		}
	}
	envA := mk("alice", "track-a")
	envB := mk("zoe", "track-z")

	// both delivery orders must converge on the same winner
	one := NewRoomState(0).ApplyEnvelope(envA).ApplyEnvelope(envB)
	two := NewRoomState(0).ApplyEnvelope(envB).ApplyEnvelope(envA)
	assert.Equal(t, one.Playback.TrackID, two.Playback.TrackID)
	assert.Equal(t, "track-z", one.Playback.TrackID)
}

func TestPlaybackSnapshotWinsExactTie(t *testing.T) {
	at := testBase.Add(time.Minute)

	snapTrack := "track-snap"
	snap := testSnapshot(at)
	snap.Room.CurrentTrackID = &snapTrack
	snap.Room.PlaybackUpdatedAt = at

	envTrack := "track-env"
	env := broadcast.Envelope{
		Type:     broadcast.TypePlaybackCommand,
		RoomID:   "room-1",
		SenderID: "zoe",
		SentAtMs: at.UnixMilli(),
		Playback: &broadcast.PlaybackPayload{
			Action:      broadcast.ActionChangeTrack,
			TrackID:     &envTrack,
			IsPlaying:   true,
			StartedAtMs: at.UnixMilli(),
		},
	}

	// the store is authoritative on an exact timestamp tie, in either order
	one := NewRoomState(0).ApplyEnvelope(env).ApplySnapshot(snap)
	two := NewRoomState(0).ApplySnapshot(snap).ApplyEnvelope(env)
	assert.Equal(t, "track-snap", one.Playback.TrackID)
	assert.Equal(t, "track-snap", two.Playback.TrackID)

	// a strictly newer envelope still supersedes the snapshot
	later := env
	later.SentAtMs = at.Add(time.Second).UnixMilli()
	later.Playback = &broadcast.PlaybackPayload{
		Action:      broadcast.ActionChangeTrack,
		TrackID:     &envTrack,
		IsPlaying:   true,
		StartedAtMs: later.SentAtMs,
	}
	assert.Equal(t, "track-env", two.ApplyEnvelope(later).Playback.TrackID)
}

func TestParticipantEnvelopes(t *testing.T) {
	st := NewRoomState(0).ApplySnapshot(testSnapshot(testBase))

	st = st.ApplyEnvelope(broadcast.Envelope{
		Type:        broadcast.TypeParticipantUpdate,
		RoomID:      "room-1",
		SenderID:    domain.SystemSender,
		SentAtMs:    testBase.Add(time.Minute).UnixMilli(),
		Participant: &broadcast.ParticipantPayload{Event: broadcast.PeerJoined, UserID: "carol", DisplayName: "Carol"},
	})
	require.Contains(t, st.Participants, "carol")
	assert.True(t, st.Participants["carol"].IsActive)

	st = st.ApplyEnvelope(broadcast.Envelope{
		Type:        broadcast.TypeParticipantUpdate,
		RoomID:      "room-1",
		SenderID:    domain.SystemSender,
		SentAtMs:    testBase.Add(2 * time.Minute).UnixMilli(),
		Participant: &broadcast.ParticipantPayload{Event: broadcast.PeerLeft, UserID: "alice"},
	})
	assert.False(t, st.Participants["alice"].IsActive)
	assert.False(t, st.Participants["alice"].IsCreator)

	st = st.ApplyEnvelope(broadcast.Envelope{
		Type:        broadcast.TypeParticipantUpdate,
		RoomID:      "room-1",
		SenderID:    domain.SystemSender,
		SentAtMs:    testBase.Add(3 * time.Minute).UnixMilli(),
		Participant: &broadcast.ParticipantPayload{Event: broadcast.PeerCreatorChanged, UserID: "bob"},
	})
	assert.True(t, st.Participants["bob"].IsCreator)
}

func TestRoomDeletedEnvelope(t *testing.T) {
	st := NewRoomState(0).ApplySnapshot(testSnapshot(testBase))
	st = st.ApplyEnvelope(broadcast.Envelope{
		Type:        broadcast.TypeParticipantUpdate,
		RoomID:      "room-1",
		SenderID:    domain.SystemSender,
		SentAtMs:    testBase.Add(time.Minute).UnixMilli(),
		Participant: &broadcast.ParticipantPayload{Event: broadcast.PeerRoomDeleted},
	})
	assert.True(t, st.Deleted)
}

// Applying returns a new value; the input state must stay untouched.
func TestApplyDoesNotMutateReceiver(t *testing.T) {
	st := NewRoomState(0).ApplySnapshot(testSnapshot(testBase))
	before := len(st.Messages)

	_ = st.ApplyEnvelope(messageEnvelope("m9", "bob", "later", testBase.Add(time.Hour)))
	assert.Len(t, st.Messages, before)
}

func TestPlaybackResolve(t *testing.T) {
	track := &domain.Track{ID: "track-1", DurationSec: 180}

	cases := []struct {
		name       string
		view       PlaybackView
		now        time.Time
		wantOffset time.Duration
		wantPlay   bool
	}{
		{
			name:       "mid track while playing",
			view:       PlaybackView{TrackID: "track-1", Track: track, IsPlaying: true, StartedAt: testBase},
			now:        testBase.Add(42 * time.Second),
			wantOffset: 42 * time.Second,
			wantPlay:   true,
		},
		{
			name:       "paused keeps the offset but not play",
			view:       PlaybackView{TrackID: "track-1", Track: track, StartedAt: testBase},
			now:        testBase.Add(10 * time.Second),
			wantOffset: 10 * time.Second,
		},
		{
			name:     "past the end wraps to zero",
			view:     PlaybackView{TrackID: "track-1", Track: track, IsPlaying: true, StartedAt: testBase},
			now:      testBase.Add(10 * time.Minute),
			wantPlay: true,
		},
		{
			name: "nothing ever played",
			view: PlaybackView{},
			now:  testBase,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			offset, play := tc.view.Resolve(tc.now)
			assert.Equal(t, tc.wantOffset, offset)
			assert.Equal(t, tc.wantPlay, play)
		})
	}
}
