package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/cwrk-planet/watchparty/internal/domain"
	"github.com/cwrk-planet/watchparty/internal/postgres"
	"github.com/cwrk-planet/watchparty/pkg/httputil"
	"github.com/cwrk-planet/watchparty/pkg/logger"
)

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound, "room_not_found"
	case errors.Is(err, domain.ErrNotMember):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrVideoNotFound):
		return http.StatusNotFound, "video_not_found"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrHostOnly):
		return http.StatusForbidden, "host_only"
	case errors.Is(err, domain.ErrRoomEnded):
		return http.StatusGone, "room_ended"
	case errors.Is(err, domain.ErrRoomFull):
		return http.StatusConflict, "room_full"
	case errors.Is(err, domain.ErrHostCannotLeave):
		return http.StatusConflict, "host_cannot_leave"
	case errors.Is(err, domain.ErrCannotKickHost):
		return http.StatusConflict, "cannot_kick_host"
	case errors.Is(err, domain.ErrInvalidPosition),
		errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrMessageTooLong):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, postgres.ErrInvalidCursor):
		return http.StatusBadRequest, "invalid_cursor"
	case errors.Is(err, domain.ErrCodeExhausted):
		return http.StatusServiceUnavailable, "code_exhausted"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.FromContext(ctx).Error("handler failed", "op", op, "err", err)
		msg = "internal error"
	}
	httputil.Error(ctx, w, status, code, msg)
}
