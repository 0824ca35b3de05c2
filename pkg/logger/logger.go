// Package logger настраивает общий slog-логгер сервиса: text-бекенд для dev
// и zap JSON для stage/prod, с общими атрибутами и trace id из контекста.
package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu  sync.RWMutex
	def *slog.Logger
)

// New собирает логгер, пишущий в w, не трогая slog.Default.
func New(w io.Writer, cfg Config) *slog.Logger {
	cfg = cfg.withDefaults()

	var h slog.Handler
	switch cfg.Backend {
	case BackendZap:
		h = newZapHandler(w, cfg)
	default:
		h = newStdHandler(w, cfg)
	}

	return slog.New(h.WithAttrs(cfg.attrs()))
}

// Init настраивает логгер в stdout и делает его slog.Default.
func Init(cfg Config) *slog.Logger {
	l := New(os.Stdout, cfg)
	slog.SetDefault(l)

	mu.Lock()
	def = l
	mu.Unlock()
	return l
}

func L() *slog.Logger {
	mu.RLock()
	l := def
	mu.RUnlock()
	if l != nil {
		return l
	}
	return Init(Config{})
}
