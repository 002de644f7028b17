package domain

import "time"

// Participant is one (room, user) membership record. A user keeps a single
// record per room for their whole history with it; leaving flips IsActive
// instead of deleting, so a later join is a reactivation.
type Participant struct {
	RoomID      string    `db:"room_id"`
	UserID      string    `db:"user_id"`
	DisplayName string    `db:"display_name"`
	IsActive    bool      `db:"is_active"`
	IsCreator   bool      `db:"is_creator"`
	JoinedAt    time.Time `db:"joined_at"`
	LastActive  time.Time `db:"last_active"`
}
