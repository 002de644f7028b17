package config

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // jam-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Auth struct {
	// Secret verifies session tokens minted by the identity provider and
	// signs the short-lived RTM credentials.
	Secret      string `yaml:"secret"`
	RTMTokenTTL string `yaml:"rtmTokenTTL"` // e.g. "10m"
}

type Session struct {
	PollInterval   string `yaml:"pollInterval"`   // snapshot fallback poll, e.g. "30s"
	MessageHistory int    `yaml:"messageHistory"` // in-memory chat cap per session
}

type Worker struct {
	Enabled        bool   `yaml:"enabled"`
	SweepEvery     string `yaml:"sweepEvery"`     // e.g. "@every 5m"
	StaleAfter     string `yaml:"staleAfter"`     // deactivate participants idle longer than this
	EmptyRoomAfter string `yaml:"emptyRoomAfter"` // delete rooms with no active participants after this
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Auth     Auth     `yaml:"auth"`
	Session  Session  `yaml:"session"`
	Worker   Worker   `yaml:"worker"`
}

func LoadConfig() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.Auth.Secret == "" {
		return errors.New("auth.secret is required")
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "jam-service"
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
	if c.Auth.RTMTokenTTL == "" {
		c.Auth.RTMTokenTTL = "10m"
	}
	if c.Session.PollInterval == "" {
		c.Session.PollInterval = "30s"
	}
	if c.Session.MessageHistory <= 0 {
		c.Session.MessageHistory = 100
	}
	if c.Worker.SweepEvery == "" {
		c.Worker.SweepEvery = "@every 5m"
	}
	if c.Worker.StaleAfter == "" {
		c.Worker.StaleAfter = "2m"
	}
	if c.Worker.EmptyRoomAfter == "" {
		c.Worker.EmptyRoomAfter = "10m"
	}
	return nil
}

func (c *Config) RTMTokenTTL() time.Duration   { return parseDurationOr(10*time.Minute, c.Auth.RTMTokenTTL) }
func (c *Config) PollInterval() time.Duration  { return parseDurationOr(30*time.Second, c.Session.PollInterval) }
func (c *Config) StaleAfter() time.Duration    { return parseDurationOr(2*time.Minute, c.Worker.StaleAfter) }
func (c *Config) EmptyRoomAfter() time.Duration {
	return parseDurationOr(10*time.Minute, c.Worker.EmptyRoomAfter)
}

func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
