package service

import (
	"context"

	"github.com/cwrk-planet/watchparty/internal/domain"
	"github.com/cwrk-planet/watchparty/pkg/logger"
)

type MemberService struct {
	reg *Registry
}

func NewMemberService(reg *Registry) *MemberService {
	return &MemberService{reg: reg}
}

// Join добавляет пользователя в комнату и привязывает conn (может быть nil).
// Повторный вход активного участника идемпотентен: вернётся существующая запись.
func (s *MemberService) Join(ctx context.Context, code string, id domain.Identity, c Conn) (*domain.Participant, error) {
	if id.Anonymous() {
		return nil, domain.ErrForbidden
	}
	r := s.reg
	var out domain.Participant
	err := r.withRoom(ctx, code, func(e *roomEntry) error {
		if e.room.Ended() {
			return domain.ErrRoomEnded
		}

		if p, ok := e.members[id.ID]; ok {
			if c != nil {
				r.hub.Add(c)
				r.hub.Unicast(c, participantList(&e.room, e.members))
				r.hub.Unicast(c, r.syncEvent(&e.room))
			}
			out = *p
			return nil
		}

		if !e.room.IsHost(id.ID) && len(e.members) >= e.room.MaxParticipants {
			return domain.ErrRoomFull
		}

		p := &domain.Participant{
			RoomCode:    e.room.Code,
			UserID:      id.ID,
			DisplayName: id.DisplayName,
			JoinedAt:    r.now(),
		}
		e.members[id.ID] = p
		record := *p
		_ = r.persist.run(ctx, "create membership", func(ctx context.Context) error {
			return r.participants.CreateMembership(ctx, &record)
		})

		if c != nil {
			r.hub.Add(c)
		}
		r.hub.Broadcast(e.room.Code, Event{Type: EventUserJoined, Payload: UserPayload{
			RoomCode:    e.room.Code,
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
		}}, nil)
		r.hub.Broadcast(e.room.Code, participantList(&e.room, e.members), nil)
		if c != nil {
			r.hub.Unicast(c, r.syncEvent(&e.room))
		}

		logger.FromContext(ctx).Info("participant joined", "count", len(e.members))
		out = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Leave — добровольный выход. Без активного членства ничего не делает.
func (s *MemberService) Leave(ctx context.Context, code, userID string) error {
	r := s.reg
	return r.withRoom(ctx, code, func(e *roomEntry) error {
		if e.room.IsHost(userID) {
			return domain.ErrHostCannotLeave
		}
		p := r.removeMember(ctx, e, userID)
		if p == nil {
			return nil
		}

		conns := r.hub.ConnsOf(e.room.Code, userID)
		for _, c := range conns {
			r.hub.Remove(c)
		}
		r.announceLeft(e, p)
		for _, c := range conns {
			_ = c.Close()
		}

		logger.FromContext(ctx).Info("participant left", "count", len(e.members))
		return nil
	})
}

func (s *MemberService) Kick(ctx context.Context, code, actorID, targetID string) error {
	r := s.reg
	return r.withRoom(ctx, code, func(e *roomEntry) error {
		if e.room.Ended() {
			return domain.ErrRoomEnded
		}
		if !e.room.IsHost(actorID) {
			return domain.ErrForbidden
		}
		if e.room.IsHost(targetID) {
			return domain.ErrCannotKickHost
		}
		if _, ok := e.members[targetID]; !ok {
			return domain.ErrNotMember
		}

		p := r.removeMember(ctx, e, targetID)
		kicked := Event{Type: EventKicked, Payload: NoticePayload{RoomCode: e.room.Code, Message: "removed by host"}}
		for _, c := range r.hub.ConnsOf(e.room.Code, targetID) {
			r.hub.Remove(c)
			r.hub.Unicast(c, kicked)
			_ = c.Close()
		}
		r.announceLeft(e, p)

		logger.FromContext(ctx).Info("participant kicked", "target", targetID)
		return nil
	})
}

// Disconnect снимает привязку соединения. Если у пользователя не осталось соединений
// и он не хост, выполняется выход. Хост после обрыва остаётся участником.
func (s *MemberService) Disconnect(ctx context.Context, code string, c Conn) {
	r := s.reg
	e := r.peek(code)
	if e == nil {
		r.hub.Remove(c)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		r.hub.Remove(c)
		return
	}

	if remaining := r.hub.Remove(c); remaining > 0 {
		return
	}
	userID := c.UserID()
	if e.room.IsHost(userID) {
		return
	}
	p := r.removeMember(ctx, e, userID)
	if p == nil {
		return
	}
	r.announceLeft(e, p)
	logger.FromContext(ctx).Info("participant disconnected", "count", len(e.members))
}

func (s *MemberService) ListParticipants(ctx context.Context, code string) ([]domain.Participant, error) {
	var out []domain.Participant
	err := s.reg.withRoom(ctx, code, func(e *roomEntry) error {
		out = sortedParticipants(e.members)
		return nil
	})
	return out, err
}
