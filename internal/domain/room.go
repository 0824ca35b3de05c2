package domain

import (
	"strings"
	"time"
)

type RoomStatus string

const (
	RoomActive RoomStatus = "active"
	RoomEnded  RoomStatus = "ended"
)

type Room struct {
	ID              string     `db:"id"`
	Code            string     `db:"code"`
	VideoID         string     `db:"video_id"`
	HostID          string     `db:"host_id"`
	MaxParticipants int        `db:"max_participants"`
	Status          RoomStatus `db:"status"`
	CreatedAt       time.Time  `db:"created_at"`
	EndedAt         *time.Time `db:"ended_at"`

	Playback Playback `db:"-"`
}

func (r *Room) IsHost(userID string) bool {
	return userID != "" && r.HostID == userID
}

func (r *Room) Ended() bool {
	return r.Status == RoomEnded
}

// NormalizeCode приводит код комнаты к каноничному виду (коды регистронезависимы).
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
