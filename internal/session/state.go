package session

import (
	"sort"
	"time"

	"github.com/jamnotes/jam-service/internal/broadcast"
	"github.com/jamnotes/jam-service/internal/domain"
	"github.com/jamnotes/jam-service/internal/playback"
)

// DefaultHistoryCap bounds the in-memory chat history per session.
const DefaultHistoryCap = 100

type ParticipantView struct {
	UserID      string
	DisplayName string
	IsActive    bool
	IsCreator   bool
	JoinedAt    time.Time
}

type MessageView struct {
	ID         string
	SenderID   string
	SenderName string
	Content    string
	Type       domain.MessageType
	At         time.Time
}

type PlaybackView struct {
	TrackID   string
	Track     *domain.Track
	IsPlaying bool
	StartedAt time.Time
}

// Resolve turns the shared playback facts into the instruction a client
// should apply right now: where to seek and whether to press play. Duration
// comes from the resolved track; without one the offset is unbounded.
func (v PlaybackView) Resolve(now time.Time) (offset time.Duration, play bool) {
	var d time.Duration
	if v.Track != nil {
		d = time.Duration(v.Track.DurationSec) * time.Second
	}
	return playback.Seek(playback.State{
		TrackID:   v.TrackID,
		IsPlaying: v.IsPlaying,
		StartedAt: v.StartedAt,
	}, d, now)
}

// RoomState is the reconciled view of one room, fed by two independent
// event sources: broadcast envelopes and authoritative store snapshots.
// Merging is most-recent-write-wins per field group; on an exact timestamp
// tie the snapshot wins over an envelope (the store is authoritative) and
// between two envelopes the lexicographically larger sender id wins, so
// every client resolves the race identically regardless of arrival order.
type RoomState struct {
	RoomID   string
	Name     string
	Code     string
	BannerID int
	Deleted  bool

	Participants map[string]ParticipantView
	Playback     PlaybackView
	Messages     []MessageView

	HistoryCap int

	playbackAt     time.Time
	playbackBy     string
	playbackSnap   bool
	participantsAt time.Time
}

func NewRoomState(historyCap int) RoomState {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return RoomState{
		Participants: map[string]ParticipantView{},
		HistoryCap:   historyCap,
	}
}

func (s RoomState) clone() RoomState {
	out := s
	out.Participants = make(map[string]ParticipantView, len(s.Participants))
	for k, v := range s.Participants {
		out.Participants[k] = v
	}
	out.Messages = append([]MessageView(nil), s.Messages...)
	return out
}

// newerThan reports whether an event stamped (at, by) supersedes the state's
// current playback fields. On an exact timestamp tie the store stays
// authoritative in either delivery order: a snapshot beats whatever is held,
// and an envelope never displaces snapshot-sourced fields.
func (s RoomState) newerThan(at time.Time, by string, fromSnapshot bool) bool {
	switch {
	case at.After(s.playbackAt):
		return true
	case at.Before(s.playbackAt):
		return false
	case fromSnapshot:
		return true
	case s.playbackSnap:
		return false
	default:
		return by > s.playbackBy
	}
}

// ApplySnapshot merges an authoritative store read. Snapshot data replaces a
// field group only when it is at least as fresh as what broadcast delivery
// already applied; chat history is a union, deduplicated by message id.
func (s RoomState) ApplySnapshot(snap *domain.RoomSnapshot) RoomState {
	out := s.clone()

	out.RoomID = snap.Room.ID
	out.Name = snap.Room.Name
	out.Code = snap.Room.Code
	out.BannerID = snap.Room.BannerID

	if s.newerThan(snap.Room.PlaybackUpdatedAt, "", true) {
		pv := PlaybackView{IsPlaying: snap.Room.IsPlaying, Track: snap.CurrentTrack}
		if snap.Room.CurrentTrackID != nil {
			pv.TrackID = *snap.Room.CurrentTrackID
		}
		if snap.Room.TrackStartedAt != nil {
			pv.StartedAt = *snap.Room.TrackStartedAt
		}
		out.Playback = pv
		out.playbackAt = snap.Room.PlaybackUpdatedAt
		out.playbackBy = ""
		out.playbackSnap = true
	}

	if !snap.TakenAt.Before(s.participantsAt) {
		out.Participants = make(map[string]ParticipantView, len(snap.Participants))
		for _, p := range snap.Participants {
			out.Participants[p.UserID] = ParticipantView{
				UserID:      p.UserID,
				DisplayName: p.DisplayName,
				IsActive:    p.IsActive,
				IsCreator:   p.IsCreator,
				JoinedAt:    p.JoinedAt,
			}
		}
		out.participantsAt = snap.TakenAt
	}

	for _, m := range snap.Messages {
		out.Messages = appendMessage(out.Messages, MessageView{
			ID:         m.ID,
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Content:    m.Content,
			Type:       m.Type,
			At:         m.CreatedAt,
		})
	}
	out.Messages = trimMessages(out.Messages, out.HistoryCap)

	return out
}

// ApplyEnvelope folds one broadcast event into the state. DRAW envelopes do
// not touch room state; the controller forwards them separately.
func (s RoomState) ApplyEnvelope(env broadcast.Envelope) RoomState {
	out := s.clone()

	switch env.Type {
	case broadcast.TypeUserMessage, broadcast.TypeSystemMessage:
		mt := domain.MessageUser
		if env.Type == broadcast.TypeSystemMessage {
			mt = domain.MessageSystem
		}
		out.Messages = appendMessage(out.Messages, MessageView{
			ID:         env.Message.ID,
			SenderID:   env.SenderID,
			SenderName: env.SenderName,
			Content:    env.Message.Content,
			Type:       mt,
			At:         env.SentAt(),
		})
		out.Messages = trimMessages(out.Messages, out.HistoryCap)

	case broadcast.TypePlaybackCommand:
		at := env.SentAt()
		if s.newerThan(at, env.SenderID, false) {
			pv := PlaybackView{IsPlaying: env.Playback.IsPlaying}
			if env.Playback.TrackID != nil {
				pv.TrackID = *env.Playback.TrackID
			} else {
				pv.TrackID = s.Playback.TrackID
			}
			// resolved track metadata survives as long as the id is unchanged
			if pv.TrackID == s.Playback.TrackID {
				pv.Track = s.Playback.Track
			}
			pv.StartedAt = time.UnixMilli(env.Playback.StartedAtMs)
			out.Playback = pv
			out.playbackAt = at
			out.playbackBy = env.SenderID
			out.playbackSnap = false
		}

	case broadcast.TypeParticipantUpdate:
		p := env.Participant
		switch p.Event {
		case broadcast.PeerJoined, broadcast.PeerRejoined:
			view, ok := out.Participants[p.UserID]
			if !ok {
				view = ParticipantView{UserID: p.UserID, JoinedAt: env.SentAt()}
			}
			view.DisplayName = p.DisplayName
			view.IsActive = true
			out.Participants[p.UserID] = view
		case broadcast.PeerLeft:
			if view, ok := out.Participants[p.UserID]; ok {
				view.IsActive = false
				view.IsCreator = false
				out.Participants[p.UserID] = view
			}
		case broadcast.PeerCreatorChanged:
			for id, view := range out.Participants {
				view.IsCreator = id == p.UserID
				out.Participants[id] = view
			}
		case broadcast.PeerRoomDeleted:
			out.Deleted = true
		}
		out.participantsAt = env.SentAt()
	}

	return out
}

// appendMessage inserts while deduplicating by id.
func appendMessage(msgs []MessageView, m MessageView) []MessageView {
	for _, existing := range msgs {
		if existing.ID == m.ID {
			return msgs
		}
	}
	return append(msgs, m)
}

// trimMessages sorts by (At, ID) and keeps the most recent limit entries.
func trimMessages(msgs []MessageView, limit int) []MessageView {
	sort.Slice(msgs, func(i, j int) bool {
		if !msgs[i].At.Equal(msgs[j].At) {
			return msgs[i].At.Before(msgs[j].At)
		}
		return msgs[i].ID < msgs[j].ID
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}
