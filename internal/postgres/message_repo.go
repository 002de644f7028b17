package postgres

import (
	"context"

	"github.com/jamnotes/jam-service/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Save(ctx context.Context, m *domain.Message) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO room_messages (id, room_id, sender_id, sender_name, content, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.RoomID, m.SenderID, m.SenderName, m.Content, m.Type, m.CreatedAt)
	return err
}

// Recent returns the latest messages in chronological order. The query walks
// (created_at, id) DESC for the cutoff and the result is reversed, which
// keeps same-millisecond messages stably ordered.
func (r *MessageRepository) Recent(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, room_id, sender_id, sender_name, content, type, created_at
		FROM room_messages
		WHERE room_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.Content, &m.Type, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
