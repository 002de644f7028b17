package service

import (
	"context"

	"github.com/jamnotes/jam-service/internal/domain"
)

type TrackService struct {
	trackRepo TrackRepo
}

func NewTrackService(trackRepo TrackRepo) *TrackService {
	return &TrackService{trackRepo: trackRepo}
}

func (s *TrackService) ListPublic(ctx context.Context) ([]domain.Track, error) {
	return s.trackRepo.ListPublic(ctx)
}

func (s *TrackService) Get(ctx context.Context, id string) (*domain.Track, error) {
	return s.trackRepo.GetByID(ctx, id)
}
