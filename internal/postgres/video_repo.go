package postgres

import (
	"context"
	"errors"

	"github.com/cwrk-planet/watchparty/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VideoRepository только читает, таблицей videos владеет сервис каталога.
type VideoRepository struct {
	db *pgxpool.Pool
}

func NewVideoRepository(db *pgxpool.Pool) *VideoRepository {
	return &VideoRepository{db: db}
}

func (r *VideoRepository) GetVideo(ctx context.Context, id string) (*domain.Video, error) {
	var v domain.Video
	err := r.db.QueryRow(ctx, `
		SELECT id, title, thumbnail_url, duration_seconds, playback_url
		FROM videos WHERE id=$1`, id).
		Scan(&v.ID, &v.Title, &v.ThumbnailURL, &v.DurationSeconds, &v.PlaybackURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVideoNotFound
		}
		return nil, err
	}
	return &v, nil
}
