package postgres

import (
	"context"
	"fmt"

	"github.com/cwrk-planet/watchparty/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ChatRepository struct {
	db *pgxpool.Pool
}

func NewChatRepository(db *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Save(ctx context.Context, roomCode, userID, text string) (*domain.ChatMessage, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO watch_party_messages (room_code, user_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, room_code, user_id, text, created_at
	`, roomCode, userID, text)

	var m domain.ChatMessage
	if err := row.Scan(&m.ID, &m.RoomCode, &m.UserID, &m.Text, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// History возвращает историю сообщений комнаты с курсорной пагинацией (created_at,id DESC).
func (r *ChatRepository) History(ctx context.Context, roomCode, after string, limit int) ([]domain.ChatMessage, string, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	cur, err := DecodeCursor(after)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}

	const q = `
		SELECT id, room_code, user_id, text, created_at
		FROM watch_party_messages
		WHERE room_code = $1
		  AND (
		    $2::timestamptz IS NULL
		    OR created_at < $2
		    OR (created_at = $2 AND id < $3)
		  )
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`

	createdAt, id := keysetArgs(cur)
	rows, err := r.db.Query(ctx, q, roomCode, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.RoomCode, &m.UserID, &m.Text, &m.CreatedAt); err != nil {
			return nil, "", err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := nextCursor(out, limit, func(m domain.ChatMessage) Cursor {
		return Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return out, next, nil
}
