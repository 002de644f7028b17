package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jamnotes/jam-service/internal/broadcast"
	"github.com/jamnotes/jam-service/internal/domain"

	"github.com/google/uuid"
)

const (
	maxRoomNameLen = 80
	maxBannerID    = 8
)

type RoomService struct {
	roomRepo  RoomRepo
	partRepo  ParticipantRepo
	msgRepo   MessageRepo
	trackRepo TrackRepo
	bus       Broadcaster
}

func NewRoomService(roomRepo RoomRepo, partRepo ParticipantRepo, msgRepo MessageRepo, trackRepo TrackRepo, bus Broadcaster) *RoomService {
	return &RoomService{
		roomRepo:  roomRepo,
		partRepo:  partRepo,
		msgRepo:   msgRepo,
		trackRepo: trackRepo,
		bus:       bus,
	}
}

func systemMessage(roomID, content string) *domain.Message {
	return &domain.Message{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		SenderID:   domain.SystemSender,
		SenderName: domain.SystemSender,
		Content:    content,
		Type:       domain.MessageSystem,
		CreatedAt:  time.Now(),
	}
}

// publish is the fire-and-forget half of the dual path: a failed broadcast
// never fails the operation, the store write already happened and polling
// clients converge from it.
func (s *RoomService) publish(ctx context.Context, env broadcast.Envelope) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, env); err != nil {
		slog.Warn("room broadcast failed", "room", env.RoomID, "type", env.Type, "err", err)
	}
}

// CreateRoom persists the room, its creator participant and a welcome message
// as one batch. The join code is redrawn until it misses the code index;
// with 36^6 codes against a handful of live rooms this terminates almost
// surely on the first draw.
func (s *RoomService) CreateRoom(ctx context.Context, userID, displayName, name string, bannerID int) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: room name is required", domain.ErrInvalidInput)
	}
	if len(name) > maxRoomNameLen {
		return nil, fmt.Errorf("%w: room name exceeds %d characters", domain.ErrInvalidInput, maxRoomNameLen)
	}
	if bannerID < 1 || bannerID > maxBannerID {
		bannerID = 1
	}

	var code string
	for {
		code = newRoomCode()
		used, err := s.roomRepo.CodeInUse(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("roomRepo.CodeInUse: %w", err)
		}
		if !used {
			break
		}
	}

	now := time.Now()
	room := &domain.Room{
		ID:                uuid.NewString(),
		Name:              name,
		Code:              code,
		BannerID:          bannerID,
		CreatedAt:         now,
		CreatedBy:         userID,
		CreatedByName:     displayName,
		PlaybackUpdatedAt: now,
	}
	creator := &domain.Participant{
		RoomID:      room.ID,
		UserID:      userID,
		DisplayName: displayName,
		IsActive:    true,
		IsCreator:   true,
		JoinedAt:    now,
		LastActive:  now,
	}
	welcome := systemMessage(room.ID, fmt.Sprintf("Welcome to %s! Share code %s to invite others.", name, code))

	if err := s.roomRepo.CreateWithCreator(ctx, room, creator, welcome); err != nil {
		return nil, fmt.Errorf("roomRepo.CreateWithCreator: %w", err)
	}
	return room, nil
}

// JoinRoom resolves the code and attaches the user. A previous, inactive
// membership is reactivated; an already-active membership only gets its
// lastActive refreshed, with no duplicate record and no duplicate message.
func (s *RoomService) JoinRoom(ctx context.Context, code, userID, displayName string) (*domain.Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != domain.CodeLength {
		return nil, fmt.Errorf("%w: room code must be %d characters", domain.ErrInvalidInput, domain.CodeLength)
	}

	room, err := s.roomRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	existing, err := s.partRepo.Get(ctx, room.ID, userID)
	switch {
	case errors.Is(err, domain.ErrNotInRoom):
		p := &domain.Participant{
			RoomID:      room.ID,
			UserID:      userID,
			DisplayName: displayName,
			IsActive:    true,
			JoinedAt:    now,
			LastActive:  now,
		}
		if err := s.partRepo.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("partRepo.Create: %w", err)
		}
		s.announce(ctx, room.ID, userID, displayName, broadcast.PeerJoined,
			fmt.Sprintf("%s joined the room", displayName))
	case err != nil:
		return nil, fmt.Errorf("partRepo.Get: %w", err)
	case !existing.IsActive:
		if err := s.partRepo.Reactivate(ctx, room.ID, userID, displayName, now); err != nil {
			return nil, fmt.Errorf("partRepo.Reactivate: %w", err)
		}
		s.announce(ctx, room.ID, userID, displayName, broadcast.PeerRejoined,
			fmt.Sprintf("%s rejoined the room", displayName))
	default:
		// already active: idempotent no-op beyond the timestamp refresh
		if err := s.partRepo.Touch(ctx, room.ID, userID); err != nil {
			return nil, fmt.Errorf("partRepo.Touch: %w", err)
		}
	}

	return room, nil
}

// announce persists a system message and mirrors it on the broadcast channel
// alongside the participant event.
func (s *RoomService) announce(ctx context.Context, roomID, userID, displayName, event, text string) {
	msg := systemMessage(roomID, text)
	if err := s.msgRepo.Save(ctx, msg); err != nil {
		slog.Warn("system message save failed", "room", roomID, "err", err)
	}
	now := time.Now().UnixMilli()
	s.publish(ctx, broadcast.Envelope{
		Type:        broadcast.TypeParticipantUpdate,
		RoomID:      roomID,
		SenderID:    domain.SystemSender,
		SentAtMs:    now,
		Participant: &broadcast.ParticipantPayload{Event: event, UserID: userID, DisplayName: displayName},
	})
	s.publish(ctx, broadcast.Envelope{
		Type:     broadcast.TypeSystemMessage,
		RoomID:   roomID,
		SenderID: domain.SystemSender,
		SentAtMs: now,
		Message:  &broadcast.MessagePayload{ID: msg.ID, Content: msg.Content},
	})
}

// LeaveRoom deactivates the caller. A departing creator hands the room to
// the earliest-joined remaining active participant; the last one out deletes
// the room and everything scoped to it.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID string) (roomDeleted bool, err error) {
	leaver, err := s.partRepo.Get(ctx, roomID, userID)
	if err != nil {
		return false, err
	}
	if !leaver.IsActive {
		return false, domain.ErrNotInRoom
	}

	res, err := s.partRepo.Leave(ctx, roomID, userID)
	if err != nil {
		return false, err
	}

	if res.RoomDeleted {
		s.publish(ctx, broadcast.Envelope{
			Type:        broadcast.TypeParticipantUpdate,
			RoomID:      roomID,
			SenderID:    domain.SystemSender,
			SentAtMs:    time.Now().UnixMilli(),
			Participant: &broadcast.ParticipantPayload{Event: broadcast.PeerRoomDeleted, UserID: userID},
		})
		return true, nil
	}

	s.announce(ctx, roomID, userID, leaver.DisplayName, broadcast.PeerLeft,
		fmt.Sprintf("%s left the room", leaver.DisplayName))
	if res.NewCreator != nil {
		s.announce(ctx, roomID, res.NewCreator.UserID, res.NewCreator.DisplayName, broadcast.PeerCreatorChanged,
			fmt.Sprintf("%s is now the room host", res.NewCreator.DisplayName))
	}
	return false, nil
}

// Snapshot is the authoritative read used for room entry and the polling
// fallback: metadata, full participant list, last messages chronological and
// the resolved current track.
func (s *RoomService) Snapshot(ctx context.Context, roomID string) (*domain.RoomSnapshot, error) {
	room, err := s.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	parts, err := s.partRepo.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("partRepo.ListByRoom: %w", err)
	}

	msgs, err := s.msgRepo.Recent(ctx, roomID, domain.RecentMessageLimit)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Recent: %w", err)
	}

	var track *domain.Track
	if room.CurrentTrackID != nil {
		track, err = s.trackRepo.GetByID(ctx, *room.CurrentTrackID)
		if err != nil && !errors.Is(err, domain.ErrTrackNotFound) {
			return nil, fmt.Errorf("trackRepo.GetByID: %w", err)
		}
	}

	return &domain.RoomSnapshot{
		Room:         *room,
		Participants: parts,
		Messages:     msgs,
		CurrentTrack: track,
		TakenAt:      time.Now(),
	}, nil
}

func (s *RoomService) ListRooms(ctx context.Context) ([]domain.RoomListItem, error) {
	return s.roomRepo.List(ctx)
}

// GetRoom resolves a room by id, ErrRoomNotFound when it no longer exists.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	return s.roomRepo.GetByID(ctx, roomID)
}

// IsActiveMember reports whether the user currently holds active membership.
func (s *RoomService) IsActiveMember(ctx context.Context, roomID, userID string) (bool, error) {
	p, err := s.partRepo.Get(ctx, roomID, userID)
	if errors.Is(err, domain.ErrNotInRoom) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.IsActive, nil
}
