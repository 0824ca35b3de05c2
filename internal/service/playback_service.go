package service

import (
	"context"
	"time"

	"github.com/cwrk-planet/watchparty/internal/domain"
	"github.com/cwrk-planet/watchparty/pkg/logger"
)

type SyncState struct {
	RoomCode   string
	T          float64
	IsPlaying  bool
	ServerTime time.Time
}

// PlaybackService применяет команды хоста к таймлайну комнаты в порядке прихода.
type PlaybackService struct {
	reg *Registry
}

func NewPlaybackService(reg *Registry) *PlaybackService {
	return &PlaybackService{reg: reg}
}

func (s *PlaybackService) Play(ctx context.Context, code, actorID string, t float64, origin Conn) error {
	return s.apply(ctx, code, actorID, t, origin, EventPlay, func(_ domain.Playback, now time.Time) domain.Playback {
		return domain.PlayingAt(t, now)
	})
}

func (s *PlaybackService) Pause(ctx context.Context, code, actorID string, t float64, origin Conn) error {
	return s.apply(ctx, code, actorID, t, origin, EventPause, func(domain.Playback, time.Time) domain.Playback {
		return domain.PausedAt(t)
	})
}

func (s *PlaybackService) Seek(ctx context.Context, code, actorID string, t float64, origin Conn) error {
	return s.apply(ctx, code, actorID, t, origin, EventSeek, func(pb domain.Playback, now time.Time) domain.Playback {
		return pb.Seek(t, now)
	})
}

func (s *PlaybackService) apply(
	ctx context.Context,
	code, actorID string,
	t float64,
	origin Conn,
	eventType string,
	next func(pb domain.Playback, now time.Time) domain.Playback,
) error {
	if !domain.ValidPosition(t) {
		return domain.ErrInvalidPosition
	}
	r := s.reg
	return r.withRoom(ctx, code, func(e *roomEntry) error {
		if e.room.Ended() {
			return domain.ErrRoomEnded
		}
		if !e.room.IsHost(actorID) {
			if origin != nil {
				r.hub.Unicast(origin, Event{Type: EventHostOnly, Payload: NoticePayload{
					RoomCode: e.room.Code,
					Message:  "only the host can control playback",
				}})
			}
			return domain.ErrHostOnly
		}

		e.room.Playback = next(e.room.Playback, r.now())
		r.hub.Broadcast(e.room.Code, Event{Type: eventType, Payload: PositionPayload{
			RoomCode: e.room.Code,
			T:        t,
			UserID:   actorID,
		}}, origin)
		r.savePlayback(ctx, e.room.Code, e.room.Playback)

		logger.FromContext(ctx).Debug("playback applied", "event", eventType, "t", t)
		return nil
	})
}

// RequestSync возвращает текущую эффективную позицию. Доступно любому активному участнику.
func (s *PlaybackService) RequestSync(ctx context.Context, code, userID string) (*SyncState, error) {
	r := s.reg
	var out SyncState
	err := r.withRoom(ctx, code, func(e *roomEntry) error {
		if e.room.Ended() {
			return domain.ErrRoomEnded
		}
		if _, ok := e.members[userID]; !ok {
			return domain.ErrNotMember
		}
		now := r.now()
		out = SyncState{
			RoomCode:   e.room.Code,
			T:          e.room.Playback.Position(now),
			IsPlaying:  e.room.Playback.Playing,
			ServerTime: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (st *SyncState) Event() Event {
	return Event{Type: EventSync, Payload: SyncPayload{
		RoomCode:     st.RoomCode,
		T:            st.T,
		IsPlaying:    st.IsPlaying,
		ServerTimeMs: st.ServerTime.UnixMilli(),
	}}
}
