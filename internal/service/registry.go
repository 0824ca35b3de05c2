package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cwrk-planet/watchparty/internal/domain"
	"github.com/cwrk-planet/watchparty/pkg/logger"

	"github.com/samber/lo"
)

const (
	minParticipants  = 2
	defaultListLimit = 20
	maxListLimit     = 50
)

type Options struct {
	DefaultMaxParticipants int
	MaxParticipantsLimit   int
	CodeAttempts           int
	PersistTimeout         time.Duration
	PersistRetries         int
	PersistPause           time.Duration

	// Для тестов
	Now     func() time.Time
	NewCode func() (string, error)
}

func (o Options) withDefaults() Options {
	if o.DefaultMaxParticipants <= 0 {
		o.DefaultMaxParticipants = 10
	}
	if o.MaxParticipantsLimit < minParticipants {
		o.MaxParticipantsLimit = 50
	}
	if o.CodeAttempts <= 0 {
		o.CodeAttempts = 8
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 2 * time.Second
	}
	if o.PersistRetries <= 0 {
		o.PersistRetries = 1
	}
	if o.PersistPause <= 0 {
		o.PersistPause = 50 * time.Millisecond
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewCode == nil {
		o.NewCode = NewRoomCode
	}
	return o
}

// roomEntry — состояние одной комнаты в памяти. mu сериализует все мутации комнаты.
type roomEntry struct {
	mu      sync.Mutex
	room    domain.Room
	members map[string]*domain.Participant // только активные, по UserID

	touched  time.Time // последнее обращение, для выгрузки простаивающих
	endSaved bool      // завершение записано в хранилище
	evicted  bool      // запись выгружена из реестра, нужен новый lookup
}

func newEntry(room domain.Room, now time.Time) *roomEntry {
	return &roomEntry{room: room, members: make(map[string]*domain.Participant), touched: now}
}

// Registry владеет всеми комнатами процесса и их авторитетным состоянием.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]*roomEntry
	reserved map[string]struct{}

	store        RoomStore
	participants ParticipantStore
	videos       VideoStore
	cache        PlaybackCache
	hub          Dispatcher

	opts    Options
	persist persister
}

func NewRegistry(store RoomStore, participants ParticipantStore, videos VideoStore, cache PlaybackCache, hub Dispatcher, opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		rooms:        make(map[string]*roomEntry),
		reserved:     make(map[string]struct{}),
		store:        store,
		participants: participants,
		videos:       videos,
		cache:        cache,
		hub:          hub,
		opts:         opts,
		persist:      persister{timeout: opts.PersistTimeout, retries: opts.PersistRetries, pause: opts.PersistPause},
	}
}

func (r *Registry) now() time.Time { return r.opts.Now() }

func (r *Registry) clampMax(n int) int {
	if n <= 0 {
		n = r.opts.DefaultMaxParticipants
	}
	if n < minParticipants {
		n = minParticipants
	}
	if n > r.opts.MaxParticipantsLimit {
		n = r.opts.MaxParticipantsLimit
	}
	return n
}

func (r *Registry) CreateRoom(ctx context.Context, videoID, hostID string, maxParticipants int) (*domain.Room, error) {
	if hostID == "" {
		return nil, domain.ErrForbidden
	}
	if _, err := r.videos.GetVideo(ctx, videoID); err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}

	for attempt := 0; attempt < r.opts.CodeAttempts; attempt++ {
		code, err := r.opts.NewCode()
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		code = domain.NormalizeCode(code)
		if !r.reserve(code) {
			continue
		}

		room := domain.Room{
			Code:            code,
			VideoID:         videoID,
			HostID:          hostID,
			MaxParticipants: r.clampMax(maxParticipants),
			Status:          domain.RoomActive,
			CreatedAt:       r.now(),
		}
		err = r.persist.run(ctx, "create room", func(ctx context.Context) error {
			err := r.store.CreateRoom(ctx, &room)
			if errors.Is(err, domain.ErrCodeTaken) {
				return permanent(err)
			}
			return err
		})
		if errors.Is(err, domain.ErrCodeTaken) {
			r.release(code, nil)
			continue
		}
		if err != nil {
			r.release(code, nil)
			return nil, fmt.Errorf("create room: %w", err)
		}

		r.release(code, newEntry(room, r.now()))
		logger.FromContext(ctx).Info("room created", "room", code, "video", videoID)
		out := room
		return &out, nil
	}
	return nil, domain.ErrCodeExhausted
}

// reserve занимает код, пока комната сохраняется.
func (r *Registry) reserve(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[code]; ok {
		return false
	}
	if _, ok := r.reserved[code]; ok {
		return false
	}
	r.reserved[code] = struct{}{}
	return true
}

func (r *Registry) release(code string, e *roomEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reserved, code)
	if e != nil {
		r.rooms[code] = e
	}
}

// peek ищет комнату только в памяти.
func (r *Registry) peek(code string) *roomEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[domain.NormalizeCode(code)]
}

// lookup ищет комнату в памяти, а при промахе поднимает её из хранилища.
// Восстановление выполняет только тот вызов, который вставил запись в реестр;
// остальные ждут его на замке комнаты.
func (r *Registry) lookup(ctx context.Context, code string) (*roomEntry, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return nil, domain.ErrRoomNotFound
	}
	if e := r.peek(code); e != nil {
		return e, nil
	}

	room, err := r.store.GetRoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if e, ok := r.rooms[code]; ok {
		r.mu.Unlock()
		return e, nil
	}
	e := newEntry(*room, r.now())
	// запись новая, замок свободен
	e.mu.Lock()
	r.rooms[code] = e
	r.mu.Unlock()

	defer e.mu.Unlock()
	if !e.room.Ended() {
		r.rehydrate(ctx, &e.room)
	}
	return e, nil
}

// rehydrate восстанавливает таймлайн из кеша. Соединения до рестарта потеряны,
// поэтому открытые членства закрываются: клиенты войдут заново.
// Вызывается под замком комнаты.
func (r *Registry) rehydrate(ctx context.Context, room *domain.Room) {
	log := logger.FromContext(ctx)
	if r.cache != nil {
		pb, err := r.cache.Load(ctx, room.Code)
		switch {
		case err != nil:
			log.Warn("playback cache load failed", "err", err)
		case pb != nil:
			room.Playback = *pb
		}
	}

	now := r.now()
	stale, err := r.participants.ListActiveMemberships(ctx, room.Code)
	if err != nil {
		log.Warn("list stale memberships failed", "err", err)
	}
	if err != nil || len(stale) > 0 {
		_ = r.persist.run(ctx, "close stale memberships", func(ctx context.Context) error {
			return r.participants.CloseAllMemberships(ctx, room.Code, now)
		})
	}
	log.Info("room restored from store",
		"playing", room.Playback.Playing,
		"t", room.Playback.Position(now),
		"stale", lo.Map(stale, func(p domain.Participant, _ int) string { return p.UserID }))
}

// withRoom выполняет fn под замком комнаты.
func (r *Registry) withRoom(ctx context.Context, code string, fn func(e *roomEntry) error) error {
	for {
		e, err := r.lookup(ctx, code)
		if err != nil {
			return err
		}
		if done, err := r.locked(e, fn); done {
			return err
		}
		// запись выгрузили, пока ждали замок
	}
}

func (r *Registry) locked(e *roomEntry, fn func(e *roomEntry) error) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return false, nil
	}
	e.touched = r.now()
	return true, fn(e)
}

func (r *Registry) GetRoom(ctx context.Context, code string) (*domain.Room, error) {
	var out domain.Room
	err := r.withRoom(ctx, code, func(e *roomEntry) error {
		out = e.room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Registry) EndRoom(ctx context.Context, code, actorID string) error {
	return r.withRoom(ctx, code, func(e *roomEntry) error {
		if !e.room.IsHost(actorID) {
			return domain.ErrForbidden
		}
		if e.room.Ended() {
			return domain.ErrRoomEnded
		}

		now := r.now()
		pos := e.room.Playback.Position(now)
		e.room.Status = domain.RoomEnded
		e.room.EndedAt = &now
		e.room.Playback = domain.PausedAt(pos)
		for id, p := range e.members {
			p.LeftAt = &now
			delete(e.members, id)
		}

		err := r.persist.run(ctx, "end room", func(ctx context.Context) error {
			return r.store.EndRoom(ctx, e.room.Code, now, pos)
		})
		e.endSaved = err == nil
		_ = r.persist.run(ctx, "close memberships", func(ctx context.Context) error {
			return r.participants.CloseAllMemberships(ctx, e.room.Code, now)
		})
		r.dropPlayback(ctx, e.room.Code)

		r.hub.Broadcast(e.room.Code, Event{Type: EventEnded, Payload: NoticePayload{RoomCode: e.room.Code}}, nil)
		r.hub.CloseRoom(e.room.Code)

		logger.FromContext(ctx).Info("room ended", "t", pos)
		return nil
	})
}

// Sweep выгружает из памяти завершённые комнаты, чьё завершение сохранено, старше endedTTL,
// и пустые активные комнаты без обращений дольше idleTTL. Активные выгружаются только
// при настроенном кеше: без него таймлайн после повторной загрузки не восстановить.
// Занятые комнаты пропускаются до следующего прохода.
func (r *Registry) Sweep(ctx context.Context, endedTTL, idleTTL time.Duration) int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for code, e := range r.rooms {
		if !e.mu.TryLock() {
			continue
		}
		if r.evictable(e, now, endedTTL, idleTTL) {
			e.evicted = true
			delete(r.rooms, code)
			evicted++
		}
		e.mu.Unlock()
	}
	if evicted > 0 {
		logger.FromContext(ctx).Info("rooms evicted", "count", evicted, "resident", len(r.rooms))
	}
	return evicted
}

func (r *Registry) evictable(e *roomEntry, now time.Time, endedTTL, idleTTL time.Duration) bool {
	if e.room.Ended() {
		return e.endSaved && endedTTL > 0 && e.room.EndedAt != nil && now.Sub(*e.room.EndedAt) >= endedTTL
	}
	return r.cache != nil && idleTTL > 0 && len(e.members) == 0 && now.Sub(e.touched) >= idleTTL
}

// RunSweeper вызывает Sweep каждые every до отмены ctx.
func (r *Registry) RunSweeper(ctx context.Context, every, endedTTL, idleTTL time.Duration) error {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(ctx, endedTTL, idleTTL)
		}
	}
}

func (r *Registry) ListRooms(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	rooms, next, err := r.store.ListActive(ctx, limit, cursor)
	if err != nil {
		return nil, "", fmt.Errorf("list rooms: %w", err)
	}
	return rooms, next, nil
}

type RoomSnapshot struct {
	Room         domain.Room
	Video        *domain.Video
	Position     float64
	Playing      bool
	Participants []domain.Participant
}

func (r *Registry) Snapshot(ctx context.Context, code string) (*RoomSnapshot, error) {
	var snap RoomSnapshot
	err := r.withRoom(ctx, code, func(e *roomEntry) error {
		snap.Room = e.room
		snap.Position = e.room.Playback.Position(r.now())
		snap.Playing = e.room.Playback.Playing
		snap.Participants = sortedParticipants(e.members)
		return nil
	})
	if err != nil {
		return nil, err
	}

	video, err := r.videos.GetVideo(ctx, snap.Room.VideoID)
	if err != nil {
		logger.FromContext(ctx).Warn("video metadata unavailable", "video", snap.Room.VideoID, "err", err)
	} else {
		snap.Video = video
	}
	return &snap, nil
}

// savePlayback пишет таймлайн в кеш. Одна попытка: следующая команда всё равно перезапишет состояние.
func (r *Registry) savePlayback(ctx context.Context, code string, pb domain.Playback) {
	if r.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.PersistTimeout)
	defer cancel()
	if err := r.cache.Save(ctx, code, pb); err != nil {
		logger.FromContext(ctx).Warn("playback cache save failed", "err", err)
	}
}

func (r *Registry) dropPlayback(ctx context.Context, code string) {
	if r.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.PersistTimeout)
	defer cancel()
	if err := r.cache.Delete(ctx, code); err != nil {
		logger.FromContext(ctx).Warn("playback cache delete failed", "err", err)
	}
}

func (r *Registry) syncEvent(room *domain.Room) Event {
	now := r.now()
	return Event{Type: EventSync, Payload: SyncPayload{
		RoomCode:     room.Code,
		T:            room.Playback.Position(now),
		IsPlaying:    room.Playback.Playing,
		ServerTimeMs: now.UnixMilli(),
	}}
}

// removeMember закрывает активное окно участника. Вызывается под замком комнаты.
func (r *Registry) removeMember(ctx context.Context, e *roomEntry, userID string) *domain.Participant {
	p, ok := e.members[userID]
	if !ok {
		return nil
	}
	now := r.now()
	p.LeftAt = &now
	delete(e.members, userID)

	_ = r.persist.run(ctx, "close membership", func(ctx context.Context) error {
		return r.participants.CloseMembership(ctx, e.room.Code, userID, now)
	})
	return p
}

func (r *Registry) announceLeft(e *roomEntry, p *domain.Participant) {
	r.hub.Broadcast(e.room.Code, Event{Type: EventUserLeft, Payload: UserPayload{
		RoomCode:    e.room.Code,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
	}}, nil)
	r.hub.Broadcast(e.room.Code, participantList(&e.room, e.members), nil)
}
