package domain

import "time"

// CodeLength is the length of the human-facing join code.
const CodeLength = 6

type Room struct {
	ID                string     `db:"id"`
	Name              string     `db:"name"`
	Code              string     `db:"code"`
	BannerID          int        `db:"banner_id"`
	CreatedAt         time.Time  `db:"created_at"`
	CreatedBy         string     `db:"created_by"`
	CreatedByName     string     `db:"created_by_name"`
	CurrentTrackID    *string    `db:"current_track_id"`
	IsPlaying         bool       `db:"is_playing"`
	TrackStartedAt    *time.Time `db:"track_started_at"`
	PlaybackUpdatedAt time.Time  `db:"playback_updated_at"`
}

// RoomListItem is a room plus its live active-participant count.
type RoomListItem struct {
	Room
	ActiveParticipants int
}

// RoomSnapshot is the authoritative read used both for room entry and as the
// polling fallback: metadata, the full participant list, the most recent
// messages in chronological order and the resolved current track.
type RoomSnapshot struct {
	Room         Room
	Participants []Participant
	Messages     []Message
	CurrentTrack *Track
	TakenAt      time.Time
}
