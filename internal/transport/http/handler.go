package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/cwrk-planet/watchparty/internal/domain"
	"github.com/cwrk-planet/watchparty/internal/service"
	httpmw "github.com/cwrk-planet/watchparty/internal/transport/http/middleware"
	"github.com/cwrk-planet/watchparty/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

type Handler struct {
	rooms    *service.Registry
	members  *service.MemberService
	playback *service.PlaybackService
	chat     *service.ChatService
}

func NewHandler(rooms *service.Registry, members *service.MemberService, playback *service.PlaybackService, chat *service.ChatService) *Handler {
	return &Handler{
		rooms:    rooms,
		members:  members,
		playback: playback,
		chat:     chat,
	}
}

func queryInt(r *http.Request, key string, def int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

func roomItem(rm domain.Room) RoomItem {
	return RoomItem{
		ID:              rm.ID,
		Code:            rm.Code,
		VideoID:         rm.VideoID,
		HostID:          rm.HostID,
		MaxParticipants: rm.MaxParticipants,
		Status:          string(rm.Status),
		CreatedAt:       rm.CreatedAt,
		EndedAt:         rm.EndedAt,
	}
}

func participantItems(room domain.Room, parts []domain.Participant) []ParticipantItem {
	return lo.Map(parts, func(p domain.Participant, _ int) ParticipantItem {
		return ParticipantItem{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			IsHost:      room.IsHost(p.UserID),
			JoinedAt:    p.JoinedAt,
		}
	})
}

// POST /rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}
	req.VideoID = strings.TrimSpace(req.VideoID)
	if req.VideoID == "" {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "bad_request", "video_id is required")
		return
	}
	if req.MaxParticipants < 0 {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "bad_request", "max_participants must be positive")
		return
	}

	id := httpmw.IdentityFromCtx(r.Context())
	room, err := h.rooms.CreateRoom(r.Context(), req.VideoID, id.ID, req.MaxParticipants)
	if err != nil {
		writeError(r.Context(), w, "create room", err)
		return
	}
	httputil.Created(w, roomItem(*room))
}

// GET /rooms?limit=&cursor=
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, next, err := h.rooms.ListRooms(r.Context(), queryInt(r, "limit", 20), r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(r.Context(), w, "list rooms", err)
		return
	}
	httputil.OK(w, RoomsListResponse{
		Items:      lo.Map(rooms, func(rm domain.Room, _ int) RoomItem { return roomItem(rm) }),
		NextCursor: next,
	})
}

// GET /rooms/{code}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	snap, err := h.rooms.Snapshot(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(r.Context(), w, "get room", err)
		return
	}

	resp := RoomSnapshotResponse{
		Room:         roomItem(snap.Room),
		Position:     snap.Position,
		IsPlaying:    snap.Playing,
		Participants: participantItems(snap.Room, snap.Participants),
	}
	if v := snap.Video; v != nil {
		resp.Video = &VideoItem{
			ID:              v.ID,
			Title:           v.Title,
			ThumbnailURL:    v.ThumbnailURL,
			DurationSeconds: v.DurationSeconds,
			PlaybackURL:     v.PlaybackURL,
		}
	}
	httputil.OK(w, resp)
}

// POST /rooms/{code}/end
func (h *Handler) EndRoom(w http.ResponseWriter, r *http.Request) {
	id := httpmw.IdentityFromCtx(r.Context())
	if err := h.rooms.EndRoom(r.Context(), chi.URLParam(r, "code"), id.ID); err != nil {
		writeError(r.Context(), w, "end room", err)
		return
	}
	httputil.OK(w, map[string]string{"status": string(domain.RoomEnded)})
}

// POST /rooms/{code}/leave
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	id := httpmw.IdentityFromCtx(r.Context())
	if err := h.members.Leave(r.Context(), chi.URLParam(r, "code"), id.ID); err != nil {
		writeError(r.Context(), w, "leave room", err)
		return
	}
	httputil.OK(w, map[string]string{"status": "left"})
}

// POST /rooms/{code}/kick
func (h *Handler) Kick(w http.ResponseWriter, r *http.Request) {
	var req KickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "bad_request", "user_id is required")
		return
	}
	id := httpmw.IdentityFromCtx(r.Context())
	if err := h.members.Kick(r.Context(), chi.URLParam(r, "code"), id.ID, strings.TrimSpace(req.UserID)); err != nil {
		writeError(r.Context(), w, "kick", err)
		return
	}
	httputil.OK(w, map[string]string{"status": "kicked"})
}

// GET /rooms/{code}/participants
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.GetRoom(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(r.Context(), w, "list participants", err)
		return
	}
	parts, err := h.members.ListParticipants(r.Context(), room.Code)
	if err != nil {
		writeError(r.Context(), w, "list participants", err)
		return
	}
	httputil.OK(w, ParticipantsResponse{Items: participantItems(*room, parts)})
}

// GET /rooms/{code}/sync
func (h *Handler) GetSync(w http.ResponseWriter, r *http.Request) {
	id := httpmw.IdentityFromCtx(r.Context())
	st, err := h.playback.RequestSync(r.Context(), chi.URLParam(r, "code"), id.ID)
	if err != nil {
		writeError(r.Context(), w, "sync", err)
		return
	}
	httputil.OK(w, SyncResponse{
		RoomCode:   st.RoomCode,
		T:          st.T,
		IsPlaying:  st.IsPlaying,
		ServerTime: st.ServerTime.UnixMilli(),
	})
}

// GET /rooms/{code}/chat?after=&limit=
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	items, next, err := h.chat.History(r.Context(), chi.URLParam(r, "code"), r.URL.Query().Get("after"), queryInt(r, "limit", 50))
	if err != nil {
		writeError(r.Context(), w, "chat history", err)
		return
	}
	httputil.OK(w, ChatHistoryResponse{
		Items: lo.Map(items, func(m domain.ChatMessage, _ int) ChatMessageItem {
			return ChatMessageItem{
				ID:        m.ID,
				RoomCode:  m.RoomCode,
				UserID:    m.UserID,
				Text:      m.Text,
				CreatedAt: m.CreatedAt,
			}
		}),
		NextCursor: next,
	})
}
