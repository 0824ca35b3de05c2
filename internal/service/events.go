package service

import (
	"sort"

	"github.com/cwrk-planet/watchparty/internal/domain"

	"github.com/samber/lo"
)

// Типы исходящих событий
const (
	EventUserJoined      = "userJoined"
	EventUserLeft        = "userLeft"
	EventParticipantList = "participantList"
	EventPlay            = "play"
	EventPause           = "pause"
	EventSeek            = "seek"
	EventSync            = "sync"
	EventChatMessage     = "chatMessage"
	EventChatAck         = "chatAck"
	EventKicked          = "kicked"
	EventEnded           = "ended"
	EventHostOnly        = "hostOnly"
	EventError           = "error"
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type UserPayload struct {
	RoomCode    string `json:"roomCode"`
	UserID      string `json:"identity"`
	DisplayName string `json:"displayName,omitempty"`
}

type ParticipantItem struct {
	UserID       string `json:"identity"`
	DisplayName  string `json:"displayName"`
	IsHost       bool   `json:"isHost"`
	JoinedAtUnix int64  `json:"joinedAt"`
}

type ParticipantListPayload struct {
	RoomCode     string            `json:"roomCode"`
	Participants []ParticipantItem `json:"participants"`
}

type PositionPayload struct {
	RoomCode string  `json:"roomCode"`
	T        float64 `json:"t"`
	UserID   string  `json:"identity"`
}

type SyncPayload struct {
	RoomCode     string  `json:"roomCode"`
	T            float64 `json:"t"`
	IsPlaying    bool    `json:"isPlaying"`
	ServerTimeMs int64   `json:"serverTime"`
}

type ChatPayload struct {
	RoomCode string `json:"roomCode"`
	UserID   string `json:"identity"`
	Message  string `json:"text"`

	MsgID  string `json:"msgId,omitempty"`
	TSUnix int64  `json:"ts,omitempty"`
}

type ChatAckPayload struct {
	MsgID string `json:"msgId"`
}

type NoticePayload struct {
	RoomCode string `json:"roomCode"`
	Message  string `json:"message,omitempty"`
}

type ErrorPayload struct {
	Request string `json:"request,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func participantList(room *domain.Room, members map[string]*domain.Participant) Event {
	return Event{
		Type: EventParticipantList,
		Payload: ParticipantListPayload{
			RoomCode: room.Code,
			Participants: lo.Map(sortedParticipants(members), func(p domain.Participant, _ int) ParticipantItem {
				return ParticipantItem{
					UserID:       p.UserID,
					DisplayName:  p.DisplayName,
					IsHost:       room.IsHost(p.UserID),
					JoinedAtUnix: p.JoinedAt.Unix(),
				}
			}),
		},
	}
}

// sortedParticipants — активные участники в порядке входа.
func sortedParticipants(members map[string]*domain.Participant) []domain.Participant {
	out := make([]domain.Participant, 0, len(members))
	for _, p := range members {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
