package postgres

import (
	"context"
	"time"

	"github.com/cwrk-planet/watchparty/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Строки участников никогда не удаляются: уход закрывает окно (left_at), повторный вход
// создаёт новую строку. Уникальность активного членства держит частичный индекс
// watch_party_participants_active_uq (см. schema.sql).
type ParticipantRepository struct {
	db *pgxpool.Pool
}

func NewParticipantRepository(db *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// CreateMembership идемпотентен: если активное окно уже есть, новая строка не появится.
func (r *ParticipantRepository) CreateMembership(ctx context.Context, p *domain.Participant) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO watch_party_participants (room_code, user_id, display_name, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`,
		p.RoomCode, p.UserID, p.DisplayName, p.JoinedAt)
	return err
}

// CloseMembership закрывает только активное окно; повторный вызов ничего не делает.
func (r *ParticipantRepository) CloseMembership(ctx context.Context, roomCode, userID string, leftAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE watch_party_participants
		SET left_at=$3
		WHERE room_code=$1 AND user_id=$2 AND left_at IS NULL`,
		roomCode, userID, leftAt)
	return err
}

func (r *ParticipantRepository) CloseAllMemberships(ctx context.Context, roomCode string, leftAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE watch_party_participants
		SET left_at=$2
		WHERE room_code=$1 AND left_at IS NULL`,
		roomCode, leftAt)
	return err
}

func (r *ParticipantRepository) ListActiveMemberships(ctx context.Context, roomCode string) ([]domain.Participant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT room_code, user_id, display_name, joined_at, left_at
		FROM watch_party_participants
		WHERE room_code=$1 AND left_at IS NULL
		ORDER BY joined_at ASC`,
		roomCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.RoomCode, &p.UserID, &p.DisplayName, &p.JoinedAt, &p.LeftAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
