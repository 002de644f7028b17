package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jamnotes/jam-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ParticipantRepository struct {
	db *pgxpool.Pool
}

func NewParticipantRepository(db *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

const participantColumns = `room_id, user_id, display_name, is_active, is_creator, joined_at, last_active`

func scanParticipant(row pgx.Row) (*domain.Participant, error) {
	var p domain.Participant
	err := row.Scan(&p.RoomID, &p.UserID, &p.DisplayName, &p.IsActive, &p.IsCreator, &p.JoinedAt, &p.LastActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotInRoom
		}
		return nil, err
	}
	return &p, nil
}

func (r *ParticipantRepository) Get(ctx context.Context, roomID, userID string) (*domain.Participant, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM room_participants WHERE room_id=$1 AND user_id=$2`,
		roomID, userID)
	return scanParticipant(row)
}

func (r *ParticipantRepository) Create(ctx context.Context, p *domain.Participant) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO room_participants (room_id, user_id, display_name, is_active, is_creator, joined_at, last_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`, p.RoomID, p.UserID, p.DisplayName, p.IsActive, p.IsCreator, p.JoinedAt, p.LastActive)
	return err
}

// Reactivate flips an inactive record back to active and refreshes its
// display name, which may have changed since the first join.
func (r *ParticipantRepository) Reactivate(ctx context.Context, roomID, userID, displayName string, now time.Time) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE room_participants
		SET is_active = true, display_name = $3, last_active = $4
		WHERE room_id = $1 AND user_id = $2
	`, roomID, userID, displayName, now)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotInRoom
	}
	return nil
}

func (r *ParticipantRepository) Touch(ctx context.Context, roomID, userID string) error {
	cmd, err := r.db.Exec(ctx,
		`UPDATE room_participants SET last_active=now() WHERE room_id=$1 AND user_id=$2 AND is_active`,
		roomID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotInRoom
	}
	return nil
}

func (r *ParticipantRepository) ListByRoom(ctx context.Context, roomID string) ([]domain.Participant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+participantColumns+` FROM room_participants WHERE room_id=$1 ORDER BY joined_at ASC, user_id ASC`,
		roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.RoomID, &p.UserID, &p.DisplayName, &p.IsActive, &p.IsCreator, &p.JoinedAt, &p.LastActive); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *ParticipantRepository) CountActive(ctx context.Context, roomID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM room_participants WHERE room_id=$1 AND is_active`, roomID).Scan(&count)
	return count, err
}

// LeaveResult reports what the departure did to the room.
type LeaveResult struct {
	RoomDeleted bool
	WasCreator  bool
	NewCreator  *domain.Participant
}

// Leave deactivates the caller and resolves ownership inside one
// transaction. The room row is locked FOR UPDATE so two concurrent
// departures cannot both decide they were the last one out, and creator
// reassignment picks the earliest-joined remaining active participant.
// When nobody active remains, every record under the room is deleted.
func (r *ParticipantRepository) Leave(ctx context.Context, roomID, userID string) (*LeaveResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var lockedID string
	if err := tx.QueryRow(ctx, `SELECT id FROM rooms WHERE id=$1 FOR UPDATE`, roomID).Scan(&lockedID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}

	var wasCreator bool
	err = tx.QueryRow(ctx,
		`SELECT is_creator FROM room_participants WHERE room_id=$1 AND user_id=$2 AND is_active`,
		roomID, userID).Scan(&wasCreator)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotInRoom
		}
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE room_participants
		SET is_active = false, is_creator = false, last_active = now()
		WHERE room_id = $1 AND user_id = $2
	`, roomID, userID); err != nil {
		return nil, err
	}

	res := &LeaveResult{WasCreator: wasCreator}

	row := tx.QueryRow(ctx, `
		SELECT `+participantColumns+`
		FROM room_participants
		WHERE room_id = $1 AND is_active AND user_id <> $2
		ORDER BY joined_at ASC, user_id ASC
		LIMIT 1
	`, roomID, userID)
	next, err := scanParticipant(row)
	switch {
	case errors.Is(err, domain.ErrNotInRoom):
		// nobody active remains: drop the room and everything under it
		res.RoomDeleted = true
		if _, err := tx.Exec(ctx, `DELETE FROM room_messages WHERE room_id=$1`, roomID); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM room_participants WHERE room_id=$1`, roomID); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM rooms WHERE id=$1`, roomID); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if wasCreator {
			if _, err := tx.Exec(ctx, `
				UPDATE room_participants SET is_creator = (user_id = $2)
				WHERE room_id = $1 AND is_active
			`, roomID, next.UserID); err != nil {
				return nil, err
			}
			next.IsCreator = true
			res.NewCreator = next
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

// DeactivateStale flips participants whose last_active is older than the
// window. Returns the affected (room, user) pairs so callers can post the
// matching system messages.
func (r *ParticipantRepository) DeactivateStale(ctx context.Context, olderThan time.Duration) ([]domain.Participant, error) {
	secs := int64(olderThan / time.Second)
	rows, err := r.db.Query(ctx, `
		UPDATE room_participants
		SET is_active = false
		WHERE is_active AND last_active < NOW() - ($1::bigint * INTERVAL '1 second')
		RETURNING `+participantColumns+`
	`, secs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.RoomID, &p.UserID, &p.DisplayName, &p.IsActive, &p.IsCreator, &p.JoinedAt, &p.LastActive); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
