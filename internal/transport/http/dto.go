package http

import "time"

type CreateRoomRequest struct {
	VideoID         string `json:"video_id"`
	MaxParticipants int    `json:"max_participants,omitempty"`
}

type KickRequest struct {
	UserID string `json:"user_id"`
}

type RoomItem struct {
	ID              string     `json:"id"`
	Code            string     `json:"code"`
	VideoID         string     `json:"video_id"`
	HostID          string     `json:"host_id"`
	MaxParticipants int        `json:"max_participants"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

type RoomsListResponse struct {
	Items      []RoomItem `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

type VideoItem struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	ThumbnailURL    *string `json:"thumbnail_url,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	PlaybackURL     string  `json:"playback_url"`
}

type ParticipantItem struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	IsHost      bool      `json:"is_host"`
	JoinedAt    time.Time `json:"joined_at"`
}

type ParticipantsResponse struct {
	Items []ParticipantItem `json:"items"`
}

type RoomSnapshotResponse struct {
	Room         RoomItem          `json:"room"`
	Video        *VideoItem        `json:"video,omitempty"`
	Position     float64           `json:"position"`
	IsPlaying    bool              `json:"is_playing"`
	Participants []ParticipantItem `json:"participants"`
}

type SyncResponse struct {
	RoomCode   string  `json:"room_code"`
	T          float64 `json:"t"`
	IsPlaying  bool    `json:"is_playing"`
	ServerTime int64   `json:"server_time_ms"`
}

type ChatMessageItem struct {
	ID        string    `json:"id"`
	RoomCode  string    `json:"room_code"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatHistoryResponse struct {
	Items      []ChatMessageItem `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}
