package httputil

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cwrk-planet/watchparty/pkg/logger"
)

type envelope map[string]any

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Error("write json response failed", "err", err)
	}
}

// OK — успешный ответ с обёрткой.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, envelope{"data": data})
}

func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, envelope{"data": data})
}

// Error — унифицированная ошибка (message + code).
func Error(ctx context.Context, w http.ResponseWriter, status int, code, msg string) {
	body := envelope{"message": msg, "code": code}
	if reqID, ok := RequestIDFromContext(ctx); ok {
		body["request_id"] = reqID
	}
	JSON(w, status, envelope{"error": body})
}
