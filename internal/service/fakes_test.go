package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cwrk-planet/watchparty/internal/domain"
)

var errStoreDown = errors.New("store down")

type fakeRooms struct {
	mu      sync.Mutex
	rooms   map[string]domain.Room
	taken   map[string]bool
	fail    bool
	creates int
	ends    int
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{rooms: map[string]domain.Room{}, taken: map[string]bool{}}
}

func (f *fakeRooms) CreateRoom(_ context.Context, room *domain.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.fail {
		return errStoreDown
	}
	if _, ok := f.rooms[room.Code]; ok || f.taken[room.Code] {
		return domain.ErrCodeTaken
	}
	room.ID = "id-" + room.Code
	f.rooms[room.Code] = *room
	return nil
}

func (f *fakeRooms) GetRoomByCode(_ context.Context, code string) (*domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[code]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return &r, nil
}

func (f *fakeRooms) EndRoom(_ context.Context, code string, endedAt time.Time, position float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends++
	if f.fail {
		return errStoreDown
	}
	r, ok := f.rooms[code]
	if !ok {
		return domain.ErrRoomNotFound
	}
	r.Status = domain.RoomEnded
	r.EndedAt = &endedAt
	r.Playback = domain.PausedAt(position)
	f.rooms[code] = r
	return nil
}

func (f *fakeRooms) ListActive(_ context.Context, limit int, _ string) ([]domain.Room, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Room
	for _, r := range f.rooms {
		if !r.Ended() && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, "", nil
}

type fakeParticipants struct {
	mu       sync.Mutex
	records  []domain.Participant
	fail     bool
	closeAll int
}

func (f *fakeParticipants) CreateMembership(_ context.Context, p *domain.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errStoreDown
	}
	f.records = append(f.records, *p)
	return nil
}

func (f *fakeParticipants) CloseMembership(_ context.Context, roomCode, userID string, leftAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errStoreDown
	}
	for i := range f.records {
		p := &f.records[i]
		if p.RoomCode == roomCode && p.UserID == userID && p.LeftAt == nil {
			p.LeftAt = &leftAt
		}
	}
	return nil
}

func (f *fakeParticipants) CloseAllMemberships(_ context.Context, roomCode string, leftAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeAll++
	if f.fail {
		return errStoreDown
	}
	for i := range f.records {
		p := &f.records[i]
		if p.RoomCode == roomCode && p.LeftAt == nil {
			p.LeftAt = &leftAt
		}
	}
	return nil
}

func (f *fakeParticipants) ListActiveMemberships(_ context.Context, roomCode string) ([]domain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Participant
	for _, p := range f.records {
		if p.RoomCode == roomCode && p.LeftAt == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeParticipants) all(roomCode, userID string) []domain.Participant {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Participant
	for _, p := range f.records {
		if p.RoomCode == roomCode && p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

type fakeVideos struct{}

func (fakeVideos) GetVideo(_ context.Context, id string) (*domain.Video, error) {
	if id == "missing" {
		return nil, domain.ErrVideoNotFound
	}
	return &domain.Video{ID: id, Title: "Video " + id, DurationSeconds: 600}, nil
}

type fakeChat struct {
	mu    sync.Mutex
	msgs  []domain.ChatMessage
	fail  bool
	hang  bool // ждать истечения ctx, как зависший insert
	saves int
}

func (f *fakeChat) Save(ctx context.Context, roomCode, userID, text string) (*domain.ChatMessage, error) {
	f.mu.Lock()
	f.saves++
	hang := f.hang
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errStoreDown
	}
	m := domain.ChatMessage{
		ID:        "m" + string(rune('a'+len(f.msgs))),
		RoomCode:  roomCode,
		UserID:    userID,
		Text:      text,
		CreatedAt: time.Unix(1700000000, 0),
	}
	f.msgs = append(f.msgs, m)
	return &m, nil
}

func (f *fakeChat) History(_ context.Context, roomCode, _ string, limit int) ([]domain.ChatMessage, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ChatMessage
	for _, m := range f.msgs {
		if m.RoomCode == roomCode && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, "", nil
}

type fakeCache struct {
	mu sync.Mutex
	pb map[string]domain.Playback
}

func newFakeCache() *fakeCache { return &fakeCache{pb: map[string]domain.Playback{}} }

func (f *fakeCache) Save(_ context.Context, code string, pb domain.Playback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pb[code] = pb
	return nil
}

func (f *fakeCache) Load(_ context.Context, code string) (*domain.Playback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pb, ok := f.pb[code]
	if !ok {
		return nil, nil
	}
	return &pb, nil
}

func (f *fakeCache) Delete(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pb, code)
	return nil
}

// recConn записывает всё, что ему отправили.
type recConn struct {
	mu     sync.Mutex
	room   string
	user   string
	events []Event
	closed bool
	broken bool
}

func newConn(room, user string) *recConn { return &recConn{room: room, user: user} }

func (c *recConn) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.broken {
		return domain.ErrTransportFailure
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *recConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recConn) UserID() string   { return c.user }
func (c *recConn) RoomCode() string { return c.room }

func (c *recConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

func (c *recConn) last(eventType string) (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Type == eventType {
			return c.events[i], true
		}
	}
	return Event{}, false
}

func (c *recConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *recConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// recHub — минимальный Dispatcher для тестов сервиса.
type recHub struct {
	mu    sync.Mutex
	conns map[string][]Conn
}

func newRecHub() *recHub { return &recHub{conns: map[string][]Conn{}} }

func (h *recHub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, x := range h.conns[c.RoomCode()] {
		if x == c {
			return
		}
	}
	h.conns[c.RoomCode()] = append(h.conns[c.RoomCode()], c)
}

func (h *recHub) Remove(c Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.conns[c.RoomCode()]
	remaining := 0
	out := list[:0]
	for _, x := range list {
		if x == c {
			continue
		}
		out = append(out, x)
		if x.UserID() == c.UserID() {
			remaining++
		}
	}
	h.conns[c.RoomCode()] = out
	return remaining
}

func (h *recHub) snapshot(code string) []Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Conn(nil), h.conns[code]...)
}

func (h *recHub) Broadcast(code string, ev Event, exclude Conn) {
	for _, c := range h.snapshot(code) {
		if c == exclude {
			continue
		}
		h.Unicast(c, ev)
	}
}

func (h *recHub) Unicast(c Conn, ev Event) {
	if err := c.Send(ev); err != nil {
		_ = c.Close()
	}
}

func (h *recHub) ConnsOf(code, userID string) []Conn {
	var out []Conn
	for _, c := range h.snapshot(code) {
		if c.UserID() == userID {
			out = append(out, c)
		}
	}
	return out
}

func (h *recHub) CloseRoom(code string) {
	conns := h.snapshot(code)
	h.mu.Lock()
	delete(h.conns, code)
	h.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// fakeClock — управляемое время.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type env struct {
	rooms    *fakeRooms
	parts    *fakeParticipants
	chat     *fakeChat
	cache    *fakeCache
	hub      *recHub
	clock    *fakeClock
	reg      *Registry
	members  *MemberService
	playback *PlaybackService
	chats    *ChatService
}

func newEnv(codes ...string) *env {
	e := &env{
		rooms: newFakeRooms(),
		parts: &fakeParticipants{},
		chat:  &fakeChat{},
		cache: newFakeCache(),
		hub:   newRecHub(),
		clock: newClock(),
	}
	opts := Options{
		PersistTimeout: 100 * time.Millisecond,
		PersistRetries: 1,
		PersistPause:   time.Millisecond,
		Now:            e.clock.Now,
	}
	if len(codes) > 0 {
		var mu sync.Mutex
		i := 0
		opts.NewCode = func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			c := codes[i%len(codes)]
			i++
			return c, nil
		}
	}
	e.reg = NewRegistry(e.rooms, e.parts, fakeVideos{}, e.cache, e.hub, opts)
	e.members = NewMemberService(e.reg)
	e.playback = NewPlaybackService(e.reg)
	e.chats = NewChatService(e.reg, e.chat)
	return e
}

func id(userID string) domain.Identity {
	return domain.Identity{ID: userID, DisplayName: "name-" + userID}
}
