package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jamnotes/jam-service/internal/broadcast"
	"github.com/jamnotes/jam-service/internal/domain"

	"github.com/google/uuid"
)

const maxMessageLen = 2000

type ChatService struct {
	msgRepo  MessageRepo
	partRepo ParticipantRepo
	bus      Broadcaster
}

func NewChatService(msgRepo MessageRepo, partRepo ParticipantRepo, bus Broadcaster) *ChatService {
	return &ChatService{msgRepo: msgRepo, partRepo: partRepo, bus: bus}
}

// Post persists one user message, then mirrors it on the broadcast channel.
// The store write is the source of truth; a failed broadcast is logged and
// swallowed, polling clients converge from the store.
func (s *ChatService) Post(ctx context.Context, roomID, userID, displayName, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty message", domain.ErrInvalidInput)
	}
	if len(content) > maxMessageLen {
		return nil, fmt.Errorf("%w: message exceeds %d characters", domain.ErrInvalidInput, maxMessageLen)
	}

	p, err := s.partRepo.Get(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, domain.ErrNotInRoom
	}

	msg := &domain.Message{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		SenderID:   userID,
		SenderName: displayName,
		Content:    content,
		Type:       domain.MessageUser,
		CreatedAt:  time.Now(),
	}
	if err := s.msgRepo.Save(ctx, msg); err != nil {
		return nil, fmt.Errorf("msgRepo.Save: %w", err)
	}

	s.mirror(ctx, broadcast.Envelope{
		Type:       broadcast.TypeUserMessage,
		RoomID:     roomID,
		SenderID:   userID,
		SenderName: displayName,
		SentAtMs:   msg.CreatedAt.UnixMilli(),
		Message:    &broadcast.MessagePayload{ID: msg.ID, Content: msg.Content},
	})
	return msg, nil
}

// PostSystem appends a server-generated message and mirrors it.
func (s *ChatService) PostSystem(ctx context.Context, roomID, content string) (*domain.Message, error) {
	msg := systemMessage(roomID, content)
	if err := s.msgRepo.Save(ctx, msg); err != nil {
		return nil, fmt.Errorf("msgRepo.Save: %w", err)
	}
	s.mirror(ctx, broadcast.Envelope{
		Type:     broadcast.TypeSystemMessage,
		RoomID:   roomID,
		SenderID: domain.SystemSender,
		SentAtMs: msg.CreatedAt.UnixMilli(),
		Message:  &broadcast.MessagePayload{ID: msg.ID, Content: msg.Content},
	})
	return msg, nil
}

func (s *ChatService) History(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	return s.msgRepo.Recent(ctx, roomID, limit)
}

func (s *ChatService) mirror(ctx context.Context, env broadcast.Envelope) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, env); err != nil {
		slog.Warn("chat broadcast failed", "room", env.RoomID, "type", env.Type, "err", err)
	}
}
