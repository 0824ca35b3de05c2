package redisstate

import (
	"context"
	"fmt"
	"time"

	"github.com/cwrk-planet/watchparty/internal/domain"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// New подключается к Redis и проверяет соединение.
func New(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// PlaybackRepository хранит последний якорь таймлайна каждой комнаты, чтобы после
// рестарта процесса комната продолжила с того же места.
type PlaybackRepository struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewPlaybackRepository(client *redis.Client, keyPrefix string, ttl time.Duration) *PlaybackRepository {
	if client == nil {
		panic("redis client cannot be nil for PlaybackRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "wp:"
	}
	return &PlaybackRepository{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (r *PlaybackRepository) key(code string) string {
	return fmt.Sprintf("%sroom:%s:playback", r.keyPrefix, code)
}

// playbackHash — раскладка таймлайна по полям хеша комнаты.
type playbackHash struct {
	Anchor      float64 `redis:"anchor"`
	Playing     bool    `redis:"playing"`
	StartedAtMs int64   `redis:"started_at_ms"`
}

func (r *PlaybackRepository) Save(ctx context.Context, code string, pb domain.Playback) error {
	key := r.key(code)
	h := playbackHash{Anchor: pb.Anchor, Playing: pb.Playing}
	if pb.Playing {
		h.StartedAtMs = pb.StartedAt.UnixMilli()
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, h)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: save playback for room %s: %w", code, err)
	}
	return nil
}

// Load возвращает nil, nil если для комнаты ничего не сохранено.
func (r *PlaybackRepository) Load(ctx context.Context, code string) (*domain.Playback, error) {
	cmd := r.client.HGetAll(ctx, r.key(code))
	m, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load playback for room %s: %w", code, err)
	}
	if len(m) == 0 {
		return nil, nil
	}

	var h playbackHash
	if err := cmd.Scan(&h); err != nil {
		return nil, fmt.Errorf("redis: decode playback for room %s: %w", code, err)
	}
	if !h.Playing {
		return &domain.Playback{Anchor: h.Anchor}, nil
	}
	if h.StartedAtMs <= 0 {
		// без времени старта позицию не восстановить, откатываемся к паузе на якоре
		return &domain.Playback{Anchor: h.Anchor}, nil
	}
	pb := domain.PlayingAt(h.Anchor, time.UnixMilli(h.StartedAtMs))
	return &pb, nil
}

func (r *PlaybackRepository) Delete(ctx context.Context, code string) error {
	if err := r.client.Del(ctx, r.key(code)).Err(); err != nil {
		return fmt.Errorf("redis: delete playback for room %s: %w", code, err)
	}
	return nil
}
