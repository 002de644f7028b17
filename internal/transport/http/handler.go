package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jamnotes/jam-service/internal/domain"
	"github.com/jamnotes/jam-service/internal/security"
	"github.com/jamnotes/jam-service/internal/service"
	httpmw "github.com/jamnotes/jam-service/internal/transport/http/middleware"
	"github.com/jamnotes/jam-service/pkg/httputil"
	"github.com/jamnotes/jam-service/pkg/logger"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	roomSvc     *service.RoomService
	chatSvc     *service.ChatService
	playbackSvc *service.PlaybackService
	trackSvc    *service.TrackService
	tokens      *security.Tokens
}

func NewHandler(room *service.RoomService, chat *service.ChatService, playback *service.PlaybackService, tracks *service.TrackService, tokens *security.Tokens) *Handler {
	return &Handler{
		roomSvc:     room,
		chatSvc:     chat,
		playbackSvc: playback,
		trackSvc:    tracks,
		tokens:      tokens,
	}
}

// writeDomainError maps domain sentinels onto the wire taxonomy. Anything
// unrecognized is a 500 with the detail withheld from the client.
func writeDomainError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		httputil.Error(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, domain.ErrCodeNotFound):
		httputil.Error(w, http.StatusNotFound, "code_not_found", "no room with that code")
	case errors.Is(err, domain.ErrRoomNotFound):
		httputil.Error(w, http.StatusNotFound, "room_not_found", "room not found")
	case errors.Is(err, domain.ErrTrackNotFound):
		httputil.Error(w, http.StatusNotFound, "track_not_found", "track not found")
	case errors.Is(err, domain.ErrNotInRoom):
		httputil.Error(w, http.StatusForbidden, "not_in_room", "user is not an active participant")
	default:
		reqID, _ := httputil.RequestIDFromContext(ctx)
		attrs := append([]slog.Attr{slog.Any("err", err), slog.String("req_id", reqID)}, logger.AttrsFromCtx(ctx)...)
		slog.LogAttrs(ctx, slog.LevelError, "handler."+op+":", attrs...)
		httputil.Error(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// POST /rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "validation_error", "invalid json")
		return
	}
	userID := httpmw.UserIDFromCtx(r.Context())
	name := httpmw.UserNameFromCtx(r.Context())

	room, err := h.roomSvc.CreateRoom(r.Context(), userID, name, req.Name, req.BannerID)
	if err != nil {
		writeDomainError(r.Context(), w, "CreateRoom", err)
		return
	}
	httputil.JSON(w, http.StatusCreated, mapRoom(room))
}

// GET /rooms
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	items, err := h.roomSvc.ListRooms(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, "ListRooms", err)
		return
	}
	resp := RoomsListResponse{Items: make([]RoomListItem, 0, len(items))}
	for i := range items {
		resp.Items = append(resp.Items, RoomListItem{
			RoomItem:           mapRoom(&items[i].Room),
			ActiveParticipants: items[i].ActiveParticipants,
		})
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// POST /rooms/join
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "validation_error", "invalid json")
		return
	}
	userID := httpmw.UserIDFromCtx(r.Context())
	name := httpmw.UserNameFromCtx(r.Context())

	room, err := h.roomSvc.JoinRoom(r.Context(), req.RoomCode, userID, name)
	if err != nil {
		writeDomainError(r.Context(), w, "JoinRoom", err)
		return
	}
	httputil.JSON(w, http.StatusOK, mapRoom(room))
}

// POST /rooms/{roomId}/leave
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	userID := httpmw.UserIDFromCtx(r.Context())

	deleted, err := h.roomSvc.LeaveRoom(r.Context(), roomID, userID)
	if err != nil {
		writeDomainError(r.Context(), w, "LeaveRoom", err)
		return
	}
	httputil.JSON(w, http.StatusOK, LeaveRoomResponse{RoomDeleted: deleted})
}

// GET /rooms/{roomId}
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	userID := httpmw.UserIDFromCtx(r.Context())

	if err := h.requireMember(r, roomID, userID); err != nil {
		writeDomainError(r.Context(), w, "GetSnapshot", err)
		return
	}

	snap, err := h.roomSvc.Snapshot(r.Context(), roomID)
	if err != nil {
		writeDomainError(r.Context(), w, "GetSnapshot", err)
		return
	}
	httputil.JSON(w, http.StatusOK, mapSnapshot(snap))
}

// POST /rooms/{roomId}/messages
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	userID := httpmw.UserIDFromCtx(r.Context())
	name := httpmw.UserNameFromCtx(r.Context())

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "validation_error", "invalid json")
		return
	}

	msg, err := h.chatSvc.Post(r.Context(), roomID, userID, name, req.Content)
	if err != nil {
		writeDomainError(r.Context(), w, "PostMessage", err)
		return
	}
	httputil.JSON(w, http.StatusCreated, mapMessage(msg))
}

// GET /rooms/{roomId}/messages
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	userID := httpmw.UserIDFromCtx(r.Context())

	if err := h.requireMember(r, roomID, userID); err != nil {
		writeDomainError(r.Context(), w, "GetMessages", err)
		return
	}

	msgs, err := h.chatSvc.History(r.Context(), roomID, domain.RecentMessageLimit)
	if err != nil {
		writeDomainError(r.Context(), w, "GetMessages", err)
		return
	}
	items := make([]MessageItem, 0, len(msgs))
	for i := range msgs {
		items = append(items, mapMessage(&msgs[i]))
	}
	httputil.JSON(w, http.StatusOK, map[string][]MessageItem{"items": items})
}

// POST /rooms/{roomId}/playback
func (h *Handler) UpdatePlayback(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	userID := httpmw.UserIDFromCtx(r.Context())

	var req PlaybackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "validation_error", "invalid json")
		return
	}

	room, msg, err := h.playbackSvc.Apply(r.Context(), roomID, userID, req.Action, req.TrackID)
	if err != nil {
		writeDomainError(r.Context(), w, "UpdatePlayback", err)
		return
	}
	httputil.JSON(w, http.StatusOK, PlaybackResponse{
		Room:    mapRoom(room),
		Message: mapMessage(msg),
	})
}

// GET /tracks
func (h *Handler) ListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.trackSvc.ListPublic(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, "ListTracks", err)
		return
	}
	resp := TracksResponse{Items: make([]TrackItem, 0, len(tracks))}
	for i := range tracks {
		resp.Items = append(resp.Items, mapTrack(&tracks[i]))
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// GET /rtm/token
func (h *Handler) RTMToken(w http.ResponseWriter, r *http.Request) {
	userID := httpmw.UserIDFromCtx(r.Context())
	name := httpmw.UserNameFromCtx(r.Context())

	token, exp, err := h.tokens.MintRTM(userID, name)
	if err != nil {
		slog.Error("handler.RTMToken:", slog.Any("err", err))
		httputil.Error(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	httputil.JSON(w, http.StatusOK, RTMTokenResponse{Token: token, ExpiresAt: exp})
}

// requireMember resolves the room before checking membership so a deleted
// room reads as 404, not as a membership failure.
func (h *Handler) requireMember(r *http.Request, roomID, userID string) error {
	if _, err := h.roomSvc.GetRoom(r.Context(), roomID); err != nil {
		return err
	}
	ok, err := h.roomSvc.IsActiveMember(r.Context(), roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotInRoom
	}
	return nil
}

func mapSnapshot(s *domain.RoomSnapshot) SnapshotResponse {
	resp := SnapshotResponse{
		Room:         mapRoom(&s.Room),
		Participants: make([]ParticipantItem, 0, len(s.Participants)),
		Messages:     make([]MessageItem, 0, len(s.Messages)),
	}
	for i := range s.Participants {
		p := &s.Participants[i]
		resp.Participants = append(resp.Participants, ParticipantItem{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			IsActive:    p.IsActive,
			IsCreator:   p.IsCreator,
			JoinedAt:    p.JoinedAt,
			LastActive:  p.LastActive,
		})
	}
	for i := range s.Messages {
		resp.Messages = append(resp.Messages, mapMessage(&s.Messages[i]))
	}
	if s.CurrentTrack != nil {
		t := mapTrack(s.CurrentTrack)
		resp.CurrentTrack = &t
	}
	return resp
}
