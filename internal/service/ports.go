package service

import (
	"context"
	"time"

	"github.com/cwrk-planet/watchparty/internal/domain"
)

type RoomStore interface {
	CreateRoom(ctx context.Context, room *domain.Room) error
	GetRoomByCode(ctx context.Context, code string) (*domain.Room, error)
	EndRoom(ctx context.Context, code string, endedAt time.Time, position float64) error
	ListActive(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error)
}

type ParticipantStore interface {
	CreateMembership(ctx context.Context, p *domain.Participant) error
	CloseMembership(ctx context.Context, roomCode, userID string, leftAt time.Time) error
	CloseAllMemberships(ctx context.Context, roomCode string, leftAt time.Time) error
	ListActiveMemberships(ctx context.Context, roomCode string) ([]domain.Participant, error)
}

type VideoStore interface {
	GetVideo(ctx context.Context, id string) (*domain.Video, error)
}

type ChatStore interface {
	Save(ctx context.Context, roomCode, userID, text string) (*domain.ChatMessage, error)
	History(ctx context.Context, roomCode, after string, limit int) ([]domain.ChatMessage, string, error)
}

// PlaybackCache переживает рестарт процесса; может отсутствовать (nil).
type PlaybackCache interface {
	Save(ctx context.Context, code string, pb domain.Playback) error
	Load(ctx context.Context, code string) (*domain.Playback, error)
	Delete(ctx context.Context, code string) error
}

// Conn — живое соединение, привязанное к одной комнате и одному пользователю.
type Conn interface {
	Send(ev Event) error
	Close() error
	UserID() string
	RoomCode() string
}

// Dispatcher доставляет события привязанным соединениям. Доставка best-effort:
// сбой одного соединения закрывает только его.
type Dispatcher interface {
	Add(c Conn)
	// Remove возвращает, сколько соединений этого пользователя осталось в комнате.
	Remove(c Conn) int
	Broadcast(code string, ev Event, exclude Conn)
	Unicast(c Conn, ev Event)
	ConnsOf(code, userID string) []Conn
	CloseRoom(code string)
}
