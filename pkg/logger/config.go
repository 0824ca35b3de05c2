package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

type Backend string

const (
	BackendStd Backend = "std" // text, для dev
	BackendZap Backend = "zap" // JSON через slog-zap
)

type Config struct {
	Service    string
	Version    string
	InstanceID string

	Level   slog.Level
	Env     Env
	Backend Backend // по умолчанию: std в dev, zap в stage/prod
	Debug   bool

	// семплирование zap: первые SampleInitial записей в секунду, затем каждая SampleThereafter
	SampleInitial    int
	SampleThereafter int

	AddSource bool
}

// ParseLevel понимает debug|info|warn|error, всё остальное считается info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c Config) level() slog.Level {
	if c.Debug && c.Level == 0 {
		return slog.LevelDebug
	}
	return c.Level
}

// withDefaults заполняет пропуски: окружение, имя сервиса, instance id и бекенд.
func (c Config) withDefaults() Config {
	if c.Env == "" {
		c.Env = DetectEnv()
	}
	if c.Service == "" {
		c.Service = "app"
	}
	if c.InstanceID == "" {
		c.InstanceID = newInstanceID()
	}
	if c.Backend == "" {
		if c.Env == EnvDev {
			c.Backend = BackendStd
		} else {
			c.Backend = BackendZap
		}
	}
	return c
}

// attrs пишутся в каждую запись процесса. Пустая версия опускается.
func (c Config) attrs() []slog.Attr {
	out := []slog.Attr{
		slog.String("service", c.Service),
		slog.String("env", string(c.Env)),
		slog.String("instance_id", c.InstanceID),
		slog.Int("pid", os.Getpid()),
	}
	if c.Version != "" {
		out = append(out, slog.String("version", c.Version))
	}
	return out
}

// newInstanceID: имя пода (HOSTNAME) или хоста плюс короткий случайный суффикс,
// чтобы различать рестарты одного пода.
func newInstanceID() string {
	host := os.Getenv("HOSTNAME")
	if host == "" {
		host, _ = os.Hostname()
	}
	if host == "" {
		host = "unknown"
	}
	return host + "-" + uuid.NewString()[:8]
}
