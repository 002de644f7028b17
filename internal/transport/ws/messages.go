package ws

import (
	"time"

	"github.com/jamnotes/jam-service/internal/broadcast"
	"github.com/jamnotes/jam-service/internal/session"
)

// Outbound frame types. Inbound traffic is raw broadcast envelopes; the
// server answers with reconciled state frames, forwarded draw strokes and
// terminal errors.
const (
	FrameState = "STATE"
	FrameDraw  = "DRAW"
	FrameError = "ERROR"
)

type Frame struct {
	Type     string              `json:"type"`
	State    *StateView          `json:"state,omitempty"`
	Envelope *broadcast.Envelope `json:"envelope,omitempty"`
	Error    string              `json:"error,omitempty"`
}

type StateView struct {
	RoomID       string            `json:"roomId"`
	Name         string            `json:"name"`
	Code         string            `json:"code"`
	BannerID     int               `json:"bannerId"`
	Deleted      bool              `json:"deleted"`
	Participants []ParticipantView `json:"participants"`
	Playback     PlaybackView      `json:"playback"`
	Messages     []MessageView     `json:"messages"`
}

type ParticipantView struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	IsActive    bool      `json:"isActive"`
	IsCreator   bool      `json:"isCreator"`
	JoinedAt    time.Time `json:"joinedAt"`
}

type PlaybackView struct {
	TrackID   string     `json:"trackId,omitempty"`
	IsPlaying bool       `json:"isPlaying"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	// Seek instruction resolved at frame time so a just-loaded client can
	// position its audio element without redoing the clock math.
	PositionSec float64 `json:"positionSec"`
	Play        bool    `json:"play"`
}

type MessageView struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	At         time.Time `json:"at"`
}

func stateFrame(st session.RoomState) Frame {
	view := &StateView{
		RoomID:       st.RoomID,
		Name:         st.Name,
		Code:         st.Code,
		BannerID:     st.BannerID,
		Deleted:      st.Deleted,
		Participants: make([]ParticipantView, 0, len(st.Participants)),
		Messages:     make([]MessageView, 0, len(st.Messages)),
		Playback: PlaybackView{
			TrackID:   st.Playback.TrackID,
			IsPlaying: st.Playback.IsPlaying,
		},
	}
	if !st.Playback.StartedAt.IsZero() {
		t := st.Playback.StartedAt
		view.Playback.StartedAt = &t
	}
	offset, play := st.Playback.Resolve(time.Now())
	view.Playback.PositionSec = offset.Seconds()
	view.Playback.Play = play
	for _, p := range st.Participants {
		view.Participants = append(view.Participants, ParticipantView{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			IsActive:    p.IsActive,
			IsCreator:   p.IsCreator,
			JoinedAt:    p.JoinedAt,
		})
	}
	for _, m := range st.Messages {
		view.Messages = append(view.Messages, MessageView{
			ID:         m.ID,
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Content:    m.Content,
			Type:       string(m.Type),
			At:         m.At,
		})
	}
	return Frame{Type: FrameState, State: view}
}
