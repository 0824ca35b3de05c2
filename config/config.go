package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type GRPC struct {
	Addr string `yaml:"addr"`
}

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // watchparty
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	Level     string `yaml:"level"`     // debug|info|warn|error
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
}

// Redis опционален: пустой addr отключает кэш состояния плеера.
type Redis struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"keyPrefix"`
	TTL       time.Duration `yaml:"ttl"`
}

type Auth struct {
	Mode          string        `yaml:"mode"` // jwt|trust
	PublicKeyPath string        `yaml:"publicKeyPath"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clockSkew"`
}

type Party struct {
	DefaultMaxParticipants int           `yaml:"defaultMaxParticipants"`
	MaxParticipantsLimit   int           `yaml:"maxParticipantsLimit"`
	PingInterval           time.Duration `yaml:"pingInterval"`
	PersistTimeout         time.Duration `yaml:"persistTimeout"`
	PersistRetries         int           `yaml:"persistRetries"`
	CodeAttempts           int           `yaml:"codeAttempts"`
	SendQueue              int           `yaml:"sendQueue"`
	SweepInterval          time.Duration `yaml:"sweepInterval"`
	EndedRoomTTL           time.Duration `yaml:"endedRoomTTL"`
	IdleRoomTTL            time.Duration `yaml:"idleRoomTTL"`
}

type Config struct {
	// postgres|memory; memory только для локальной разработки
	Storage string `yaml:"storage"`

	HTTP     HTTP     `yaml:"http"`
	GRPC     GRPC     `yaml:"grpc"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Auth     Auth     `yaml:"auth"`
	Party    Party    `yaml:"party"`
}

// LoadConfig читает .env (если есть), затем YAML из CONFIG_PATH
// (по умолчанию ./config/config.yaml). Секреты можно переопределить через env.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	return LoadFile(path)
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("POSTGRES_DSN")); v != "" {
		c.Postgres.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	switch c.Storage {
	case "":
		c.Storage = "postgres"
		fallthrough
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
	case "memory":
	default:
		return fmt.Errorf("storage %q is not supported", c.Storage)
	}

	switch c.Auth.Mode {
	case "":
		c.Auth.Mode = "jwt"
		fallthrough
	case "jwt":
		if c.Auth.PublicKeyPath == "" {
			return errors.New("auth.publicKeyPath is required in jwt mode")
		}
		if c.Auth.Issuer == "" {
			return errors.New("auth.issuer is required in jwt mode")
		}
	case "trust":
	default:
		return fmt.Errorf("auth.mode %q is not supported", c.Auth.Mode)
	}
	if c.Auth.ClockSkew < 0 || c.Auth.ClockSkew > time.Minute {
		return errors.New("auth.clockSkew must be in [0..1m]")
	}

	// установка дефолтов, если значения не указаны
	if c.Logging.Service == "" {
		c.Logging.Service = "watchparty"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}

	c.HTTP.ReadTimeout = durationOr(c.HTTP.ReadTimeout, 10*time.Second)
	c.HTTP.WriteTimeout = durationOr(c.HTTP.WriteTimeout, 15*time.Second)
	c.HTTP.IdleTimeout = durationOr(c.HTTP.IdleTimeout, 60*time.Second)
	c.HTTP.ShutdownTimeout = durationOr(c.HTTP.ShutdownTimeout, 10*time.Second)

	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "wp:"
	}
	c.Redis.TTL = durationOr(c.Redis.TTL, 24*time.Hour)

	p := &c.Party
	if p.MaxParticipantsLimit <= 0 {
		p.MaxParticipantsLimit = 50
	}
	if p.DefaultMaxParticipants <= 0 {
		p.DefaultMaxParticipants = 10
	}
	if p.DefaultMaxParticipants > p.MaxParticipantsLimit {
		return errors.New("party.defaultMaxParticipants must not exceed party.maxParticipantsLimit")
	}
	p.PingInterval = durationOr(p.PingInterval, 30*time.Second)
	p.PersistTimeout = durationOr(p.PersistTimeout, 2*time.Second)
	if p.PersistRetries <= 0 {
		p.PersistRetries = 1
	}
	if p.CodeAttempts <= 0 {
		p.CodeAttempts = 8
	}
	if p.SendQueue <= 0 {
		p.SendQueue = 64
	}
	p.SweepInterval = durationOr(p.SweepInterval, time.Minute)
	p.EndedRoomTTL = durationOr(p.EndedRoomTTL, 10*time.Minute)
	p.IdleRoomTTL = durationOr(p.IdleRoomTTL, 30*time.Minute)
	return nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
