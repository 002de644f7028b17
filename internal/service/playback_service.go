package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jamnotes/jam-service/internal/broadcast"
	"github.com/jamnotes/jam-service/internal/domain"
)

type PlaybackService struct {
	roomRepo  RoomRepo
	partRepo  ParticipantRepo
	msgRepo   MessageRepo
	trackRepo TrackRepo
	bus       Broadcaster
}

func NewPlaybackService(roomRepo RoomRepo, partRepo ParticipantRepo, msgRepo MessageRepo, trackRepo TrackRepo, bus Broadcaster) *PlaybackService {
	return &PlaybackService{
		roomRepo:  roomRepo,
		partRepo:  partRepo,
		msgRepo:   msgRepo,
		trackRepo: trackRepo,
		bus:       bus,
	}
}

// Apply executes PLAY, PAUSE or CHANGE_TRACK for an active participant.
// The new state is written to the store first, then mirrored on the
// broadcast channel; failure of the second path is absorbed because polling
// clients converge from the store. Redundant PLAY/PAUSE commands are
// accepted and simply re-write the same value with a fresh start timestamp.
func (s *PlaybackService) Apply(ctx context.Context, roomID, userID, action string, trackID *string) (*domain.Room, *domain.Message, error) {
	p, err := s.partRepo.Get(ctx, roomID, userID)
	if err != nil {
		return nil, nil, err
	}
	if !p.IsActive {
		return nil, nil, domain.ErrNotInRoom
	}

	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}

	var (
		isPlaying bool
		newTrack  *string
		text      string
	)
	switch action {
	case broadcast.ActionPlay:
		if trackID != nil {
			if _, err := s.trackRepo.GetByID(ctx, *trackID); err != nil {
				return nil, nil, err
			}
		} else if room.CurrentTrackID == nil {
			return nil, nil, fmt.Errorf("%w: no track selected", domain.ErrInvalidInput)
		}
		isPlaying = true
		newTrack = trackID
		text = fmt.Sprintf("%s started playback", p.DisplayName)
	case broadcast.ActionPause:
		isPlaying = false
		text = fmt.Sprintf("%s paused playback", p.DisplayName)
	case broadcast.ActionChangeTrack:
		if trackID == nil {
			return nil, nil, fmt.Errorf("%w: track_id is required for CHANGE_TRACK", domain.ErrInvalidInput)
		}
		track, err := s.trackRepo.GetByID(ctx, *trackID)
		if err != nil {
			return nil, nil, err
		}
		// changing track while paused is fine; it just re-anchors the clock
		isPlaying = room.IsPlaying
		newTrack = trackID
		text = fmt.Sprintf("%s put on %s by %s", p.DisplayName, track.Title, track.Artist)
	default:
		return nil, nil, fmt.Errorf("%w: unknown playback action %q", domain.ErrInvalidInput, action)
	}

	now := time.Now()
	if err := s.roomRepo.UpdatePlayback(ctx, roomID, newTrack, isPlaying, now); err != nil {
		return nil, nil, err
	}

	msg := systemMessage(roomID, text)
	if err := s.msgRepo.Save(ctx, msg); err != nil {
		slog.Warn("playback system message save failed", "room", roomID, "err", err)
	}

	room.IsPlaying = isPlaying
	if newTrack != nil {
		room.CurrentTrackID = newTrack
	}
	room.TrackStartedAt = &now
	room.PlaybackUpdatedAt = now

	env := broadcast.Envelope{
		Type:       broadcast.TypePlaybackCommand,
		RoomID:     roomID,
		SenderID:   userID,
		SenderName: p.DisplayName,
		SentAtMs:   now.UnixMilli(),
		Playback: &broadcast.PlaybackPayload{
			Action:      action,
			TrackID:     room.CurrentTrackID,
			IsPlaying:   isPlaying,
			StartedAtMs: now.UnixMilli(),
		},
	}
	if s.bus != nil {
		if err := s.bus.Publish(ctx, env); err != nil {
			slog.Warn("playback broadcast failed", "room", roomID, "action", action, "err", err)
		}
		if err := s.bus.Publish(ctx, broadcast.Envelope{
			Type:     broadcast.TypeSystemMessage,
			RoomID:   roomID,
			SenderID: domain.SystemSender,
			SentAtMs: now.UnixMilli(),
			Message:  &broadcast.MessagePayload{ID: msg.ID, Content: msg.Content},
		}); err != nil {
			slog.Warn("playback broadcast failed", "room", roomID, "action", action, "err", err)
		}
	}

	return room, msg, nil
}
