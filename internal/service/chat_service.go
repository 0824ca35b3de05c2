package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/cwrk-planet/watchparty/internal/domain"
	"github.com/cwrk-planet/watchparty/pkg/logger"
)

const (
	MaxMessageLen       = 4000
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

type ChatService struct {
	reg   *Registry
	store ChatStore
}

func NewChatService(reg *Registry, store ChatStore) *ChatService {
	return &ChatService{reg: reg, store: store}
}

// Send рассылает сообщение всем соединениям комнаты, включая отправителя.
// Сбой записи в хранилище логируется, сообщение всё равно доставляется.
func (s *ChatService) Send(ctx context.Context, code, userID, text string, origin Conn) (*domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLen {
		return nil, domain.ErrMessageTooLong
	}

	r := s.reg
	var out domain.ChatMessage
	err := r.withRoom(ctx, code, func(e *roomEntry) error {
		if e.room.Ended() {
			return domain.ErrRoomEnded
		}
		if _, ok := e.members[userID]; !ok {
			return domain.ErrNotMember
		}

		out = domain.ChatMessage{RoomCode: e.room.Code, UserID: userID, Text: text, CreatedAt: r.now()}
		_ = r.persist.run(ctx, "save chat message", func(ctx context.Context) error {
			saved, err := s.store.Save(ctx, e.room.Code, userID, text)
			if err != nil {
				// вставка могла успеть закоммититься: повтор дал бы дубль
				if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
					return permanent(err)
				}
				return err
			}
			out.ID = saved.ID
			out.CreatedAt = saved.CreatedAt
			return nil
		})

		r.hub.Broadcast(e.room.Code, Event{Type: EventChatMessage, Payload: ChatPayload{
			RoomCode: e.room.Code,
			UserID:   userID,
			Message:  text,
			MsgID:    out.ID,
			TSUnix:   out.CreatedAt.Unix(),
		}}, nil)
		if origin != nil && out.ID != "" {
			r.hub.Unicast(origin, Event{Type: EventChatAck, Payload: ChatAckPayload{MsgID: out.ID}})
		}

		logger.FromContext(ctx).Debug("chat message", "len", len(text))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *ChatService) History(ctx context.Context, code, after string, limit int) ([]domain.ChatMessage, string, error) {
	room, err := s.reg.GetRoom(ctx, code)
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.store.History(ctx, room.Code, after, limit)
}
