package domain

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrRoomEnded       = errors.New("room has ended")
	ErrNotMember       = errors.New("user not in the room")
	ErrForbidden       = errors.New("forbidden")
	ErrHostOnly        = errors.New("only the host can control playback")
	ErrHostCannotLeave = errors.New("host cannot leave the room, end it instead")
	ErrCannotKickHost  = errors.New("host cannot be kicked")

	ErrVideoNotFound   = errors.New("video not found")
	ErrCodeTaken       = errors.New("room code already taken")
	ErrCodeExhausted   = errors.New("could not allocate a free room code")
	ErrInvalidPosition = errors.New("invalid playback position")

	ErrEmptyMessage   = errors.New("empty message")
	ErrMessageTooLong = errors.New("message too long")

	// доставка до одного соединения не удалась; наружу не пробрасывается
	ErrTransportFailure = errors.New("transport failure")
)
