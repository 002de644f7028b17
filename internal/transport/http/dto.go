package http

import (
	"time"

	"github.com/jamnotes/jam-service/internal/domain"
)

type CreateRoomRequest struct {
	Name     string `json:"name"`
	BannerID int    `json:"bannerId"`
}

type JoinRoomRequest struct {
	RoomCode string `json:"roomCode"`
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

type PlaybackRequest struct {
	Action  string  `json:"action"`
	TrackID *string `json:"trackId,omitempty"`
}

type RoomItem struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Code           string     `json:"code"`
	BannerID       int        `json:"bannerId"`
	CreatedAt      time.Time  `json:"createdAt"`
	CreatedBy      string     `json:"createdBy"`
	CreatedByName  string     `json:"createdByName"`
	CurrentTrackID *string    `json:"currentTrackId,omitempty"`
	IsPlaying      bool       `json:"isPlaying"`
	TrackStartedAt *time.Time `json:"trackStartedAt,omitempty"`
}

type RoomListItem struct {
	RoomItem
	ActiveParticipants int `json:"activeParticipants"`
}

type RoomsListResponse struct {
	Items []RoomListItem `json:"items"`
}

type ParticipantItem struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	IsActive    bool      `json:"isActive"`
	IsCreator   bool      `json:"isCreator"`
	JoinedAt    time.Time `json:"joinedAt"`
	LastActive  time.Time `json:"lastActive"`
}

type MessageItem struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Type       string `json:"type"`
	Timestamp  string `json:"timestamp"` // ISO-8601
}

type TrackItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	URL         string `json:"url"`
	DurationSec int    `json:"durationSec"`
	Attribution string `json:"attribution,omitempty"`
}

type SnapshotResponse struct {
	Room         RoomItem          `json:"room"`
	Participants []ParticipantItem `json:"participants"`
	Messages     []MessageItem     `json:"messages"`
	CurrentTrack *TrackItem        `json:"currentTrack,omitempty"`
}

type LeaveRoomResponse struct {
	RoomDeleted bool `json:"roomDeleted"`
}

type PlaybackResponse struct {
	Room    RoomItem    `json:"room"`
	Message MessageItem `json:"message"`
}

type TracksResponse struct {
	Items []TrackItem `json:"items"`
}

type RTMTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func mapRoom(r *domain.Room) RoomItem {
	return RoomItem{
		ID:             r.ID,
		Name:           r.Name,
		Code:           r.Code,
		BannerID:       r.BannerID,
		CreatedAt:      r.CreatedAt,
		CreatedBy:      r.CreatedBy,
		CreatedByName:  r.CreatedByName,
		CurrentTrackID: r.CurrentTrackID,
		IsPlaying:      r.IsPlaying,
		TrackStartedAt: r.TrackStartedAt,
	}
}

func mapMessage(m *domain.Message) MessageItem {
	return MessageItem{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Content:    m.Content,
		Type:       string(m.Type),
		Timestamp:  m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func mapTrack(t *domain.Track) TrackItem {
	return TrackItem{
		ID:          t.ID,
		Title:       t.Title,
		Artist:      t.Artist,
		URL:         t.URL,
		DurationSec: t.DurationSec,
		Attribution: t.Attribution,
	}
}
