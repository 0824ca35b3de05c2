package ws

import "encoding/json"

// Типы команд от клиента
const (
	TypeJoin        = "join"
	TypeLeave       = "leave"
	TypePlay        = "play"
	TypePause       = "pause"
	TypeSeek        = "seek"
	TypeRequestSync = "requestSync"
	TypeChat        = "chatMessage"
	TypeKick        = "kick"
	TypeEndRoom     = "endRoom"
)

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CommandPayload — общий формат полезной нагрузки команд.
// Заявленная клиентом identity игнорируется: действует аутентифицированная.
type CommandPayload struct {
	RoomCode       string   `json:"roomCode"`
	Identity       string   `json:"identity,omitempty"`
	T              *float64 `json:"t,omitempty"`
	Text           string   `json:"text,omitempty"`
	TargetIdentity string   `json:"targetIdentity,omitempty"`
}
