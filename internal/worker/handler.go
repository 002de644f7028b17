package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jamnotes/jam-service/internal/broadcast"
	"github.com/jamnotes/jam-service/internal/domain"

	"github.com/hibiken/asynq"
)

type ParticipantStore interface {
	DeactivateStale(ctx context.Context, olderThan time.Duration) ([]domain.Participant, error)
}

type RoomStore interface {
	ListIdle(ctx context.Context, olderThan time.Duration) ([]string, error)
	DeleteCascade(ctx context.Context, roomID string) error
}

type Announcer interface {
	PostSystem(ctx context.Context, roomID, content string) (*domain.Message, error)
}

type Broadcaster interface {
	Publish(ctx context.Context, env broadcast.Envelope) error
}

// SweepHandler runs the room maintenance pass. It is idempotent: a retried
// sweep finds nothing left to deactivate or delete.
type SweepHandler struct {
	parts ParticipantStore
	rooms RoomStore
	chat  Announcer
	bus   Broadcaster
}

func NewSweepHandler(parts ParticipantStore, rooms RoomStore, chat Announcer, bus Broadcaster) *SweepHandler {
	return &SweepHandler{parts: parts, rooms: rooms, chat: chat, bus: bus}
}

func (h *SweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload RoomSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	gone, err := h.parts.DeactivateStale(ctx, payload.StaleAfter)
	if err != nil {
		return fmt.Errorf("deactivate stale: %w", err)
	}
	for _, p := range gone {
		if _, err := h.chat.PostSystem(ctx, p.RoomID, fmt.Sprintf("%s left the room", p.DisplayName)); err != nil {
			slog.Warn("sweep: system message failed", "room", p.RoomID, "user", p.UserID, "err", err)
		}
		if err := h.bus.Publish(ctx, broadcast.Envelope{
			Type:        broadcast.TypeParticipantUpdate,
			RoomID:      p.RoomID,
			SenderID:    domain.SystemSender,
			SentAtMs:    time.Now().UnixMilli(),
			Participant: &broadcast.ParticipantPayload{Event: broadcast.PeerLeft, UserID: p.UserID, DisplayName: p.DisplayName},
		}); err != nil {
			slog.Debug("sweep: participant broadcast failed", "room", p.RoomID, "err", err)
		}
	}

	idle, err := h.rooms.ListIdle(ctx, payload.EmptyRoomAfter)
	if err != nil {
		return fmt.Errorf("list idle rooms: %w", err)
	}
	for _, roomID := range idle {
		if err := h.rooms.DeleteCascade(ctx, roomID); err != nil {
			slog.Error("sweep: room delete failed", "room", roomID, "err", err)
			continue
		}
		if err := h.bus.Publish(ctx, broadcast.Envelope{
			Type:        broadcast.TypeParticipantUpdate,
			RoomID:      roomID,
			SenderID:    domain.SystemSender,
			SentAtMs:    time.Now().UnixMilli(),
			Participant: &broadcast.ParticipantPayload{Event: broadcast.PeerRoomDeleted},
		}); err != nil {
			slog.Debug("sweep: room deleted broadcast failed", "room", roomID, "err", err)
		}
	}

	if len(gone) > 0 || len(idle) > 0 {
		slog.Info("room sweep done", "deactivated", len(gone), "deleted_rooms", len(idle))
	}
	return nil
}
