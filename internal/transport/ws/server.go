package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jamnotes/jam-service/internal/broadcast"
	"github.com/jamnotes/jam-service/internal/domain"
	"github.com/jamnotes/jam-service/internal/metrics"
	"github.com/jamnotes/jam-service/internal/security"
	"github.com/jamnotes/jam-service/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

type RoomSvc interface {
	Snapshot(ctx context.Context, roomID string) (*domain.RoomSnapshot, error)
	IsActiveMember(ctx context.Context, roomID, userID string) (bool, error)
}

type ChatSvc interface {
	Post(ctx context.Context, roomID, userID, displayName, content string) (*domain.Message, error)
}

type PlaybackSvc interface {
	Apply(ctx context.Context, roomID, userID, action string, trackID *string) (*domain.Room, *domain.Message, error)
}

type Toucher interface {
	Touch(ctx context.Context, roomID, userID string) error
}

type Server struct {
	upgrader websocket.Upgrader

	hub    *Hub
	tokens *security.Tokens
	rdb    *redis.Client
	prefix string

	roomSvc     RoomSvc
	chatSvc     ChatSvc
	playbackSvc PlaybackSvc
	toucher     Toucher

	pingEvery  time.Duration
	pollEvery  time.Duration
	historyCap int
}

func NewServer(hub *Hub, tokens *security.Tokens, rdb *redis.Client, prefix string, room RoomSvc, chat ChatSvc, playback PlaybackSvc, toucher Toucher, pollEvery time.Duration, historyCap int) *Server {
	return &Server{
		hub:         hub,
		tokens:      tokens,
		rdb:         rdb,
		prefix:      prefix,
		roomSvc:     room,
		chatSvc:     chat,
		playbackSvc: playback,
		toucher:     toucher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery:  15 * time.Second,
		pollEvery:  pollEvery,
		historyCap: historyCap,
	}
}

// WS endpoint: GET /ws/rooms/{roomId}?token=<rtm token>
//
// The token comes from GET /rtm/token; browsers cannot set an Authorization
// header on a websocket handshake.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := s.tokens.ParseRTM(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userID := claims.Subject
	roomID := chi.URLParam(r, "roomId")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	ok, err := s.roomSvc.IsActiveMember(r.Context(), roomID, userID)
	if err != nil && !errors.Is(err, domain.ErrNotInRoom) {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not a participant", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newWsConn(conn, roomID, userID)
	metrics.WsConnections.Inc()
	defer metrics.WsConnections.Dec()

	client := broadcast.NewClient(s.rdb, s.prefix, userID)
	ctrl := session.NewController(userID, s.roomSvc, client,
		session.WithPollInterval(s.pollEvery), session.WithHistoryCap(s.historyCap))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := ctrl.Join(ctx, roomID); err != nil {
		slog.Warn("ws session join failed", "room", roomID, "user", userID, "err", err)
		_ = c.Send(Frame{Type: FrameError, Error: "session join failed"})
		_ = c.Close()
		return
	}

	s.hub.Add(c)
	slog.Debug("ws attached", "room", roomID, "user", userID, "room_conns", s.hub.CountRoom(roomID))

	go ctrl.Run(ctx)
	go s.writeLoop(ctx, c, ctrl)
	s.readLoop(ctx, c, ctrl, claims.DisplayName)

	cancel()
	s.hub.Remove(c)
	if err := ctrl.Leave(); err != nil {
		slog.Debug("ws session leave failed", "room", roomID, "user", userID, "err", err)
	}
	_ = c.Close()
}

// readLoop consumes client envelopes. Durable kinds go through their service,
// which writes the store first and mirrors to the channel; draws are
// ephemeral and only published. Disconnecting does not leave the room, the
// participant stays active until an explicit leave or the stale sweep.
func (s *Server) readLoop(ctx context.Context, c *wsConn, ctrl *session.Controller, displayName string) {
	defer func() { _ = c.Close() }()

	_ = s.toucher.Touch(ctx, c.roomID, c.userID)

	c.conn.SetReadLimit(1 << 20)
	c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
		_ = s.toucher.Touch(ctx, c.roomID, c.userID)
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		// Client frames carry only type and payload; identity and room are
		// stamped server-side before validation.
		var env broadcast.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		env.RoomID = c.roomID
		env.SenderID = c.userID
		if err := env.Validate(); err != nil {
			continue
		}

		switch env.Type {
		case broadcast.TypeUserMessage:
			if env.Message == nil {
				continue
			}
			if _, err := s.chatSvc.Post(ctx, c.roomID, c.userID, displayName, env.Message.Content); err != nil {
				if errors.Is(err, domain.ErrInvalidInput) {
					_ = c.Send(Frame{Type: FrameError, Error: "invalid message"})
					continue
				}
				slog.Warn("ws chat post failed", "room", c.roomID, "user", c.userID, "err", err)
			}

		case broadcast.TypePlaybackCommand:
			if env.Playback == nil {
				continue
			}
			if _, _, err := s.playbackSvc.Apply(ctx, c.roomID, c.userID, env.Playback.Action, env.Playback.TrackID); err != nil {
				if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrTrackNotFound) {
					_ = c.Send(Frame{Type: FrameError, Error: "invalid playback command"})
					continue
				}
				slog.Warn("ws playback apply failed", "room", c.roomID, "user", c.userID, "err", err)
			}

		case broadcast.TypeDraw:
			if env.Draw == nil {
				continue
			}
			env.SenderName = displayName
			if err := ctrl.Send(ctx, env); err != nil {
				slog.Debug("ws draw publish failed", "room", c.roomID, "user", c.userID, "err", err)
			}

		default:
			// ignore
		}
	}
}

// writeLoop pushes reconciled state, draw strokes and pings. A deleted room
// terminates the session after the final state frame reaches the client.
func (s *Server) writeLoop(ctx context.Context, c *wsConn, ctrl *session.Controller) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case st := <-ctrl.Updates():
			if err := c.Send(stateFrame(st)); err != nil {
				return
			}
			if st.Deleted {
				_ = c.Close()
				return
			}
		case env := <-ctrl.Draws():
			if err := c.Send(Frame{Type: FrameDraw, Envelope: &env}); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		}
	}
}

type wsConn struct {
	conn   *websocket.Conn
	roomID string
	userID string
	sendMu chan struct{}
	closed chan struct{}
}

func newWsConn(c *websocket.Conn, roomID, userID string) *wsConn {
	return &wsConn{
		conn:   c,
		roomID: roomID,
		userID: userID,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) Send(f Frame) error {
	c.sendMu <- struct{}{}
	defer func() { <-c.sendMu }()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	return c.conn.WriteJSON(f)
}

func (c *wsConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}

	return c.conn.Close()
}

func (c *wsConn) UserID() string { return c.userID }
func (c *wsConn) RoomID() string { return c.roomID }
