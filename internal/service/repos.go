package service

import (
	"context"
	"time"

	"github.com/jamnotes/jam-service/internal/broadcast"
	"github.com/jamnotes/jam-service/internal/domain"
	"github.com/jamnotes/jam-service/internal/postgres"
)

// Repository seams, satisfied by internal/postgres. Kept as interfaces so the
// services can be exercised against fakes.

type RoomRepo interface {
	CreateWithCreator(ctx context.Context, room *domain.Room, creator *domain.Participant, welcome *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	GetByCode(ctx context.Context, code string) (*domain.Room, error)
	CodeInUse(ctx context.Context, code string) (bool, error)
	List(ctx context.Context) ([]domain.RoomListItem, error)
	UpdatePlayback(ctx context.Context, roomID string, trackID *string, isPlaying bool, startedAt time.Time) error
	DeleteCascade(ctx context.Context, roomID string) error
	ListIdle(ctx context.Context, olderThan time.Duration) ([]string, error)
}

type ParticipantRepo interface {
	Get(ctx context.Context, roomID, userID string) (*domain.Participant, error)
	Create(ctx context.Context, p *domain.Participant) error
	Reactivate(ctx context.Context, roomID, userID, displayName string, now time.Time) error
	Touch(ctx context.Context, roomID, userID string) error
	ListByRoom(ctx context.Context, roomID string) ([]domain.Participant, error)
	CountActive(ctx context.Context, roomID string) (int, error)
	Leave(ctx context.Context, roomID, userID string) (*postgres.LeaveResult, error)
	DeactivateStale(ctx context.Context, olderThan time.Duration) ([]domain.Participant, error)
}

type MessageRepo interface {
	Save(ctx context.Context, m *domain.Message) error
	Recent(ctx context.Context, roomID string, limit int) ([]domain.Message, error)
}

type TrackRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Track, error)
	ListPublic(ctx context.Context) ([]domain.Track, error)
}

// Broadcaster is the best-effort fan-out half of the dual-write pattern.
type Broadcaster interface {
	Publish(ctx context.Context, env broadcast.Envelope) error
}
