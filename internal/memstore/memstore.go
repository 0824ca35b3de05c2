// Package memstore содержит хранилища в памяти процесса. Используются в dev-режиме
// без PostgreSQL и в тестах транспорта.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cwrk-planet/watchparty/internal/domain"

	"github.com/google/uuid"
)

func page[T any](items []T, limit int, cursor string) ([]T, string) {
	off, _ := strconv.Atoi(cursor)
	if off < 0 || off > len(items) {
		off = len(items)
	}
	end := off + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	next := ""
	if end < len(items) {
		next = strconv.Itoa(end)
	}
	return items[off:end], next
}

type Rooms struct {
	mu    sync.Mutex
	rooms map[string]domain.Room
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]domain.Room)}
}

func (s *Rooms) CreateRoom(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return domain.ErrCodeTaken
	}
	room.ID = uuid.NewString()
	room.Status = domain.RoomActive
	s.rooms[room.Code] = *room
	return nil
}

func (s *Rooms) GetRoomByCode(_ context.Context, code string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[code]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return &rm, nil
}

func (s *Rooms) EndRoom(_ context.Context, code string, endedAt time.Time, position float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[code]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if rm.Ended() {
		return nil
	}
	rm.Status = domain.RoomEnded
	rm.EndedAt = &endedAt
	rm.Playback = domain.PausedAt(position)
	s.rooms[code] = rm
	return nil
}

func (s *Rooms) ListActive(_ context.Context, limit int, cursor string) ([]domain.Room, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Room
	for _, rm := range s.rooms {
		if !rm.Ended() {
			out = append(out, rm)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Code > out[j].Code
	})
	items, next := page(out, limit, cursor)
	return items, next, nil
}

type Participants struct {
	mu      sync.Mutex
	records []domain.Participant
}

func NewParticipants() *Participants {
	return &Participants{}
}

func (s *Participants) CreateMembership(_ context.Context, p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.RoomCode == p.RoomCode && r.UserID == p.UserID && r.LeftAt == nil {
			return nil
		}
	}
	s.records = append(s.records, *p)
	return nil
}

func (s *Participants) CloseMembership(_ context.Context, roomCode, userID string, leftAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		r := &s.records[i]
		if r.RoomCode == roomCode && r.UserID == userID && r.LeftAt == nil {
			r.LeftAt = &leftAt
		}
	}
	return nil
}

func (s *Participants) CloseAllMemberships(_ context.Context, roomCode string, leftAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		r := &s.records[i]
		if r.RoomCode == roomCode && r.LeftAt == nil {
			r.LeftAt = &leftAt
		}
	}
	return nil
}

func (s *Participants) ListActiveMemberships(_ context.Context, roomCode string) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Participant
	for _, r := range s.records {
		if r.RoomCode == roomCode && r.LeftAt == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// Videos — каталог видео. При AllowAny любой id считается существующим.
type Videos struct {
	mu       sync.RWMutex
	videos   map[string]domain.Video
	AllowAny bool
}

func NewVideos(allowAny bool, videos ...domain.Video) *Videos {
	s := &Videos{videos: make(map[string]domain.Video), AllowAny: allowAny}
	for _, v := range videos {
		s.videos[v.ID] = v
	}
	return s
}

func (s *Videos) GetVideo(_ context.Context, id string) (*domain.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.videos[id]; ok {
		return &v, nil
	}
	if s.AllowAny && id != "" {
		return &domain.Video{ID: id, Title: id}, nil
	}
	return nil, domain.ErrVideoNotFound
}

type Chat struct {
	mu   sync.Mutex
	msgs map[string][]domain.ChatMessage
	now  func() time.Time
}

func NewChat() *Chat {
	return &Chat{msgs: make(map[string][]domain.ChatMessage), now: time.Now}
}

func (s *Chat) Save(_ context.Context, roomCode, userID, text string) (*domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := domain.ChatMessage{
		ID:        uuid.NewString(),
		RoomCode:  roomCode,
		UserID:    userID,
		Text:      text,
		CreatedAt: s.now(),
	}
	s.msgs[roomCode] = append(s.msgs[roomCode], m)
	return &m, nil
}

// History отдаёт сообщения от новых к старым, как и PostgreSQL-реализация.
func (s *Chat) History(_ context.Context, roomCode, after string, limit int) ([]domain.ChatMessage, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.msgs[roomCode]
	out := make([]domain.ChatMessage, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	items, next := page(out, limit, after)
	return items, next, nil
}
