package broadcast

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope types. One envelope carries exactly one payload, selected by Type.
const (
	TypeUserMessage       = "USER_MESSAGE"
	TypeSystemMessage     = "SYSTEM_MESSAGE"
	TypePlaybackCommand   = "PLAYBACK_COMMAND"
	TypeParticipantUpdate = "PARTICIPANT_UPDATE"
	TypeDraw              = "DRAW"
)

// Playback actions carried by a PLAYBACK_COMMAND envelope.
const (
	ActionPlay        = "PLAY"
	ActionPause       = "PAUSE"
	ActionChangeTrack = "CHANGE_TRACK"
)

// Participant events carried by a PARTICIPANT_UPDATE envelope.
const (
	PeerJoined         = "joined"
	PeerRejoined       = "rejoined"
	PeerLeft           = "left"
	PeerCreatorChanged = "creator_changed"
	PeerRoomDeleted    = "room_deleted"
)

// Envelope is the wire event fanned out on a room channel. It is never
// persisted; everything that matters for correctness also reaches the store.
type Envelope struct {
	Type       string `json:"type"`
	RoomID     string `json:"room_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
	SentAtMs   int64  `json:"sent_at_ms"`

	Message     *MessagePayload     `json:"message,omitempty"`
	Playback    *PlaybackPayload    `json:"playback,omitempty"`
	Participant *ParticipantPayload `json:"participant,omitempty"`
	Draw        *DrawPayload        `json:"draw,omitempty"`
}

type MessagePayload struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type PlaybackPayload struct {
	Action      string  `json:"action"`
	TrackID     *string `json:"track_id,omitempty"`
	IsPlaying   bool    `json:"is_playing"`
	StartedAtMs int64   `json:"started_at_ms"`
}

type ParticipantPayload struct {
	Event       string `json:"event"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type DrawPayload struct {
	Stroke []Point `json:"stroke,omitempty"`
	Color  string  `json:"color,omitempty"`
	Width  int     `json:"width,omitempty"`
	Clear  bool    `json:"clear,omitempty"`
}

// SentAt converts the embedded millisecond timestamp.
func (e Envelope) SentAt() time.Time {
	return time.UnixMilli(e.SentAtMs)
}

// FromSelf reports whether the envelope is the local user's own echo.
// Handlers use it to discard self-originated events.
func (e Envelope) FromSelf(userID string) bool {
	return e.SenderID == userID
}

// Validate checks the tag/payload pairing. Exactly the payload named by the
// tag must be present.
func (e Envelope) Validate() error {
	if e.RoomID == "" {
		return fmt.Errorf("envelope: missing room_id")
	}
	if e.SenderID == "" {
		return fmt.Errorf("envelope: missing sender_id")
	}

	var want, got int
	has := func(p bool) {
		if p {
			got++
		}
	}
	has(e.Message != nil)
	has(e.Playback != nil)
	has(e.Participant != nil)
	has(e.Draw != nil)

	switch e.Type {
	case TypeUserMessage, TypeSystemMessage:
		want = 1
		if e.Message == nil {
			return fmt.Errorf("envelope: %s requires message payload", e.Type)
		}
	case TypePlaybackCommand:
		want = 1
		if e.Playback == nil {
			return fmt.Errorf("envelope: %s requires playback payload", e.Type)
		}
	case TypeParticipantUpdate:
		want = 1
		if e.Participant == nil {
			return fmt.Errorf("envelope: %s requires participant payload", e.Type)
		}
	case TypeDraw:
		want = 1
		if e.Draw == nil {
			return fmt.Errorf("envelope: %s requires draw payload", e.Type)
		}
	default:
		return fmt.Errorf("envelope: unknown type %q", e.Type)
	}

	if got != want {
		return fmt.Errorf("envelope: %s carries %d payloads, want %d", e.Type, got, want)
	}
	return nil
}

func Encode(e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("envelope: decode: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
