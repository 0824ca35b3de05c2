package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cwrk-planet/watchparty/internal/auth"
	"github.com/cwrk-planet/watchparty/internal/domain"
	"github.com/cwrk-planet/watchparty/internal/service"
	"github.com/cwrk-planet/watchparty/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type RoomSvc interface {
	GetRoom(ctx context.Context, code string) (*domain.Room, error)
	EndRoom(ctx context.Context, code, actorID string) error
}

type MemberSvc interface {
	Join(ctx context.Context, code string, id domain.Identity, c service.Conn) (*domain.Participant, error)
	Leave(ctx context.Context, code, userID string) error
	Kick(ctx context.Context, code, actorID, targetID string) error
	Disconnect(ctx context.Context, code string, c service.Conn)
}

type PlaybackSvc interface {
	Play(ctx context.Context, code, actorID string, t float64, origin service.Conn) error
	Pause(ctx context.Context, code, actorID string, t float64, origin service.Conn) error
	Seek(ctx context.Context, code, actorID string, t float64, origin service.Conn) error
	RequestSync(ctx context.Context, code, userID string) (*service.SyncState, error)
}

type ChatSvc interface {
	Send(ctx context.Context, code, userID, text string, origin service.Conn) (*domain.ChatMessage, error)
}

type Options struct {
	PingInterval   time.Duration
	SendQueue      int
	AllowedOrigins []string
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	resolver auth.Resolver

	rooms    RoomSvc
	members  MemberSvc
	playback PlaybackSvc
	chat     ChatSvc

	pingEvery time.Duration
	sendQueue int
}

func NewServer(hub *Hub, resolver auth.Resolver, rooms RoomSvc, members MemberSvc, playback PlaybackSvc, chat ChatSvc, opts Options) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.SendQueue <= 0 {
		opts.SendQueue = 64
	}
	origins := opts.AllowedOrigins
	return &Server{
		hub:      hub,
		resolver: resolver,
		rooms:    rooms,
		members:  members,
		playback: playback,
		chat:     chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || lo.Contains(origins, "*") || lo.Contains(origins, origin)
			},
		},
		pingEvery: opts.PingInterval,
		sendQueue: opts.SendQueue,
	}
}

// WS endpoint: GET /ws/rooms/{code}?access_token=...&user_id=...&display_name=...
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	creds := auth.Credentials{
		Token:       strings.TrimSpace(q.Get("access_token")),
		UserID:      strings.TrimSpace(q.Get("user_id")),
		DisplayName: q.Get("display_name"),
	}
	if creds.Token == "" {
		creds.Token = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	}
	id, err := s.resolver.ResolveIdentity(r.Context(), creds)
	if err != nil || id.Anonymous() {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	reqCtx := logger.WithContext(r.Context(), "room", domain.NormalizeCode(chi.URLParam(r, "code")), "user", id.ID)
	room, err := s.rooms.GetRoom(reqCtx, chi.URLParam(r, "code"))
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		http.Error(w, "room not found", http.StatusNotFound)
		return
	case err != nil:
		logger.FromContext(reqCtx).Error("ws room lookup failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	case room.Ended():
		http.Error(w, "room ended", http.StatusGone)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		logger.FromContext(reqCtx).Warn("ws upgrade failed", "err", err)
		return
	}

	// отмена запроса не должна обрывать сохранение выхода участника
	ctx := context.WithoutCancel(reqCtx)
	log := logger.FromContext(ctx)

	c := newWsConn(conn, room.Code, id, s.sendQueue)
	go c.writePump(s.pingEvery)

	if _, err := s.members.Join(ctx, room.Code, id, c); err != nil {
		log.Info("ws join rejected", "err", err)
		_ = c.Send(errorEventFor(TypeJoin, err))
		_ = c.Close()
		<-c.done
		return
	}
	log.Debug("ws connected")

	s.readLoop(ctx, c)

	s.members.Disconnect(ctx, room.Code, c)
	_ = c.Close()
	<-c.done
	log.Debug("ws disconnected")
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.FromContext(ctx).Debug("ws read failed", "err", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.hub.Unicast(c, errorEvent("", CodeBadRequest, "malformed message"))
			continue
		}
		s.dispatch(ctx, c, msg)
	}
}

func (s *Server) dispatch(ctx context.Context, c *wsConn, msg Message) {
	var p CommandPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			s.hub.Unicast(c, errorEvent(msg.Type, CodeBadRequest, "malformed payload"))
			return
		}
	}
	if p.RoomCode != "" && domain.NormalizeCode(p.RoomCode) != c.roomCode {
		s.hub.Unicast(c, errorEvent(msg.Type, CodeRoomMismatch, "connection is bound to room "+c.roomCode))
		return
	}

	code, uid := c.roomCode, c.identity.ID
	var err error
	switch msg.Type {
	case TypeJoin:
		_, err = s.members.Join(ctx, code, c.identity, c)
	case TypeLeave:
		err = s.members.Leave(ctx, code, uid)
	case TypePlay, TypePause, TypeSeek:
		if p.T == nil {
			s.hub.Unicast(c, errorEvent(msg.Type, CodeBadRequest, "t is required"))
			return
		}
		err = s.control(ctx, msg.Type, code, uid, *p.T, c)
	case TypeRequestSync:
		var st *service.SyncState
		if st, err = s.playback.RequestSync(ctx, code, uid); err == nil {
			s.hub.Unicast(c, st.Event())
		}
	case TypeChat:
		_, err = s.chat.Send(ctx, code, uid, p.Text, c)
	case TypeKick:
		err = s.members.Kick(ctx, code, uid, strings.TrimSpace(p.TargetIdentity))
	case TypeEndRoom:
		err = s.rooms.EndRoom(ctx, code, uid)
	default:
		s.hub.Unicast(c, errorEvent(msg.Type, CodeUnknownEvent, "unknown event type"))
		return
	}

	if err != nil {
		if errorCode(err) == CodeInternal {
			logger.FromContext(ctx).Error("ws command failed", "event", msg.Type, "err", err)
		}
		s.hub.Unicast(c, errorEventFor(msg.Type, err))
	}
}

func (s *Server) control(ctx context.Context, typ, code, uid string, t float64, c *wsConn) error {
	switch typ {
	case TypePlay:
		return s.playback.Play(ctx, code, uid, t, c)
	case TypePause:
		return s.playback.Pause(ctx, code, uid, t, c)
	default:
		return s.playback.Seek(ctx, code, uid, t, c)
	}
}
