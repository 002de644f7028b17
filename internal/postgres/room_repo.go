package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jamnotes/jam-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

const roomColumns = `id, name, code, banner_id, created_at, created_by, created_by_name,
	current_track_id, is_playing, track_started_at, playback_updated_at`

func scanRoom(row pgx.Row) (*domain.Room, error) {
	var rm domain.Room
	err := row.Scan(&rm.ID, &rm.Name, &rm.Code, &rm.BannerID, &rm.CreatedAt,
		&rm.CreatedBy, &rm.CreatedByName, &rm.CurrentTrackID, &rm.IsPlaying,
		&rm.TrackStartedAt, &rm.PlaybackUpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return &rm, nil
}

// CreateWithCreator writes the room, its creator participant and the welcome
// system message in a single transaction, so a crash cannot leave a dangling
// code entry or an ownerless room.
func (r *RoomRepository) CreateWithCreator(ctx context.Context, room *domain.Room, creator *domain.Participant, welcome *domain.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO rooms (id, name, code, banner_id, created_at, created_by, created_by_name,
		                   current_track_id, is_playing, track_started_at, playback_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, false, NULL, $5)
	`, room.ID, room.Name, room.Code, room.BannerID, room.CreatedAt, room.CreatedBy, room.CreatedByName); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO room_participants (room_id, user_id, display_name, is_active, is_creator, joined_at, last_active)
		VALUES ($1, $2, $3, true, true, $4, $4)
	`, creator.RoomID, creator.UserID, creator.DisplayName, creator.JoinedAt); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO room_messages (id, room_id, sender_id, sender_name, content, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, welcome.ID, welcome.RoomID, welcome.SenderID, welcome.SenderName, welcome.Content, welcome.Type, welcome.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *RoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	row := r.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id=$1`, id)
	return scanRoom(row)
}

func (r *RoomRepository) GetByCode(ctx context.Context, code string) (*domain.Room, error) {
	row := r.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE code=$1`, code)
	rm, err := scanRoom(row)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil, domain.ErrCodeNotFound
	}
	return rm, err
}

func (r *RoomRepository) CodeInUse(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rooms WHERE code=$1)`, code).Scan(&exists)
	return exists, err
}

func (r *RoomRepository) List(ctx context.Context) ([]domain.RoomListItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+roomColumns+`,
		       (SELECT COUNT(*) FROM room_participants p WHERE p.room_id = rooms.id AND p.is_active) AS active
		FROM rooms
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RoomListItem
	for rows.Next() {
		var it domain.RoomListItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Code, &it.BannerID, &it.CreatedAt,
			&it.CreatedBy, &it.CreatedByName, &it.CurrentTrackID, &it.IsPlaying,
			&it.TrackStartedAt, &it.PlaybackUpdatedAt, &it.ActiveParticipants); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdatePlayback is an unconditional last-write-wins overwrite of the
// playback fields. Concurrent track changes race here on purpose.
func (r *RoomRepository) UpdatePlayback(ctx context.Context, roomID string, trackID *string, isPlaying bool, startedAt time.Time) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE rooms
		SET current_track_id = COALESCE($2, current_track_id),
		    is_playing = $3,
		    track_started_at = $4,
		    playback_updated_at = $4
		WHERE id = $1
	`, roomID, trackID, isPlaying, startedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

// DeleteCascade removes everything scoped to the room in one transaction:
// messages, participants, then the room row itself (which also retires the
// join code).
func (r *RoomRepository) DeleteCascade(ctx context.Context, roomID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM room_messages WHERE room_id=$1`, roomID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM room_participants WHERE room_id=$1`, roomID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM rooms WHERE id=$1`, roomID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListIdle returns ids of rooms that have no active participants and whose
// playback state has not moved within the given window. Used by the janitor.
func (r *RoomRepository) ListIdle(ctx context.Context, olderThan time.Duration) ([]string, error) {
	secs := int64(olderThan / time.Second)
	rows, err := r.db.Query(ctx, `
		SELECT id FROM rooms
		WHERE playback_updated_at < NOW() - ($1::bigint * INTERVAL '1 second')
		  AND NOT EXISTS (
		      SELECT 1 FROM room_participants p
		      WHERE p.room_id = rooms.id AND p.is_active
		  )
	`, secs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
