package domain

import "time"

type ChatMessage struct {
	ID        string    `db:"id"`
	RoomCode  string    `db:"room_code"`
	UserID    string    `db:"user_id"`
	Text      string    `db:"text"`
	CreatedAt time.Time `db:"created_at"`
}
