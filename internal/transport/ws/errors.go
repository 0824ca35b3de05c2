package ws

import (
	"errors"

	"github.com/cwrk-planet/watchparty/internal/domain"
	"github.com/cwrk-planet/watchparty/internal/service"
)

// Коды ошибок, которые видит клиент
const (
	CodeBadRequest   = "bad_request"
	CodeRoomMismatch = "room_mismatch"
	CodeUnknownEvent = "unknown_event"
	CodeInternal     = "internal"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, domain.ErrRoomEnded):
		return "room_ended"
	case errors.Is(err, domain.ErrRoomFull):
		return "room_full"
	case errors.Is(err, domain.ErrNotMember):
		return "not_found"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrHostOnly):
		return "host_only"
	case errors.Is(err, domain.ErrHostCannotLeave):
		return "host_cannot_leave"
	case errors.Is(err, domain.ErrCannotKickHost):
		return "cannot_kick_host"
	case errors.Is(err, domain.ErrInvalidPosition):
		return "invalid_position"
	case errors.Is(err, domain.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, domain.ErrMessageTooLong):
		return "message_too_long"
	default:
		return CodeInternal
	}
}

func errorEvent(request, code, message string) service.Event {
	return service.Event{Type: service.EventError, Payload: service.ErrorPayload{
		Request: request,
		Code:    code,
		Message: message,
	}}
}

func errorEventFor(request string, err error) service.Event {
	code := errorCode(err)
	msg := err.Error()
	if code == CodeInternal {
		msg = "internal error"
	}
	return errorEvent(request, code, msg)
}
