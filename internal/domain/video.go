package domain

type Video struct {
	ID              string  `db:"id"`
	Title           string  `db:"title"`
	ThumbnailURL    *string `db:"thumbnail_url"`
	DurationSeconds float64 `db:"duration_seconds"`
	PlaybackURL     string  `db:"playback_url"`
}
