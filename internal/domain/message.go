package domain

import "time"

// SystemSender is the sender id carried by server-generated messages.
const SystemSender = "SYSTEM"

// RecentMessageLimit is how much history snapshot and message reads return.
const RecentMessageLimit = 50

type MessageType string

const (
	MessageUser   MessageType = "user"
	MessageSystem MessageType = "system"
)

// Message ordering is (CreatedAt, ID) so same-millisecond messages still
// sort stably.
type Message struct {
	ID         string      `db:"id"`
	RoomID     string      `db:"room_id"`
	SenderID   string      `db:"sender_id"`
	SenderName string      `db:"sender_name"`
	Content    string      `db:"content"`
	Type       MessageType `db:"type"`
	CreatedAt  time.Time   `db:"created_at"`
}
