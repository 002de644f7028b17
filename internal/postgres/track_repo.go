package postgres

import (
	"context"
	"errors"

	"github.com/jamnotes/jam-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TrackRepository struct {
	db *pgxpool.Pool
}

func NewTrackRepository(db *pgxpool.Pool) *TrackRepository {
	return &TrackRepository{db: db}
}

func (r *TrackRepository) GetByID(ctx context.Context, id string) (*domain.Track, error) {
	var t domain.Track
	err := r.db.QueryRow(ctx, `
		SELECT id, title, artist, url, duration_sec, attribution, is_public
		FROM tracks WHERE id=$1
	`, id).Scan(&t.ID, &t.Title, &t.Artist, &t.URL, &t.DurationSec, &t.Attribution, &t.IsPublic)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTrackNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TrackRepository) ListPublic(ctx context.Context) ([]domain.Track, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, title, artist, url, duration_sec, attribution, is_public
		FROM tracks WHERE is_public
		ORDER BY artist ASC, title ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Track
	for rows.Next() {
		var t domain.Track
		if err := rows.Scan(&t.ID, &t.Title, &t.Artist, &t.URL, &t.DurationSec, &t.Attribution, &t.IsPublic); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
