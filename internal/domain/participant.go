package domain

import "time"

type Participant struct {
	RoomCode    string     `db:"room_code"`
	UserID      string     `db:"user_id"`
	DisplayName string     `db:"display_name"`
	JoinedAt    time.Time  `db:"joined_at"`
	LeftAt      *time.Time `db:"left_at"`
}

func (p *Participant) Active() bool {
	return p.LeftAt == nil
}

// Identity — кто подключился. Нулевое значение означает анонима.
type Identity struct {
	ID          string
	DisplayName string
}

func (i Identity) Anonymous() bool {
	return i.ID == ""
}
