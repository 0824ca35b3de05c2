package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cwrk-planet/watchparty/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const roomColumns = `id, code, video_id, host_id, max_participants, status, created_at, ended_at, playback_position, is_playing`

type RoomRepository struct {
	db *pgxpool.Pool
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{db: db}
}

func scanRoom(row pgx.Row) (*domain.Room, error) {
	var (
		rm     domain.Room
		status string
	)
	err := row.Scan(
		&rm.ID,
		&rm.Code,
		&rm.VideoID,
		&rm.HostID,
		&rm.MaxParticipants,
		&status,
		&rm.CreatedAt,
		&rm.EndedAt,
		&rm.Playback.Anchor,
		&rm.Playback.Playing,
	)
	if err != nil {
		return nil, err
	}
	rm.Status = domain.RoomStatus(status)
	// после рестарта «играющий» якорь без времени старта бессмысленен, считаем паузой
	rm.Playback.Playing = false
	return &rm, nil
}

// CreateRoom возвращает domain.ErrCodeTaken, если код уже занят.
func (r *RoomRepository) CreateRoom(ctx context.Context, room *domain.Room) error {
	const q = `
		INSERT INTO watch_parties (code, video_id, host_id, max_participants, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	err := r.db.QueryRow(ctx, q, room.Code, room.VideoID, room.HostID, room.MaxParticipants, string(domain.RoomActive)).
		Scan(&room.ID, &room.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCodeTaken
		}
		return err
	}
	room.Status = domain.RoomActive
	return nil
}

func (r *RoomRepository) GetRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	q := `SELECT ` + roomColumns + ` FROM watch_parties WHERE code=$1`
	rm, err := scanRoom(r.db.QueryRow(ctx, q, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	return rm, nil
}

// EndRoom: переход Active → Ended выполняется один раз; повторный вызов ничего не меняет.
func (r *RoomRepository) EndRoom(ctx context.Context, code string, endedAt time.Time, position float64) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE watch_parties
		SET status=$2, ended_at=$3, playback_position=$4, is_playing=false
		WHERE code=$1 AND status=$5`,
		code, string(domain.RoomEnded), endedAt, position, string(domain.RoomActive))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetRoomByCode(ctx, code); err != nil {
			return err
		}
	}
	return nil
}

// ListActive возвращает активные комнаты с курсорной пагинацией (created_at,id DESC).
func (r *RoomRepository) ListActive(ctx context.Context, limit int, cursorStr string) ([]domain.Room, string, error) {
	cur, err := DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}

	q := `
		SELECT ` + roomColumns + `
		FROM watch_parties
		WHERE status = 'active'
		  AND ($1::timestamptz IS NULL OR created_at < $1
		       OR (created_at = $1 AND id < $2))
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	createdAt, id := keysetArgs(cur)
	rows, err := r.db.Query(ctx, q, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, "", err
		}
		rooms = append(rooms, *rm)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := nextCursor(rooms, limit, func(rm domain.Room) Cursor {
		return Cursor{CreatedAt: rm.CreatedAt, ID: rm.ID}
	})
	return rooms, next, nil
}
