package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/minbar-live/translation-service/internal/provider"
)

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|prod
	Service   string `yaml:"service"`   // translation-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN string `yaml:"dsn"`
}

type Session struct {
	IdleTimeout string `yaml:"idleTimeout"` // e.g. "10m"
	QueueSize   int    `yaml:"queueSize"`
}

type Provider struct {
	Name           string  `yaml:"name"`
	Endpoint       string  `yaml:"endpoint"`
	APIKey         string  `yaml:"apiKey"`
	Timeout        string  `yaml:"timeout"`
	CharsPerWindow int64   `yaml:"charsPerWindow"`
	Window         string  `yaml:"window"`
	CostPerChar    float64 `yaml:"costPerChar"`
}

type Fallback struct {
	GraceWindow string     `yaml:"graceWindow"` // "0" disables machine fallback
	Preferred   string     `yaml:"preferred"`
	Providers   []Provider `yaml:"providers"`
}

type Config struct {
	HTTP     HTTP     `yaml:"http"`
	Logging  Logging  `yaml:"logging"`
	Postgres Postgres `yaml:"postgres"`
	Session  Session  `yaml:"session"`
	Fallback Fallback `yaml:"fallback"`
}

func LoadConfig() (*Config, error) {
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
	// defaults for anything not set
	if c.Logging.Service == "" {
		c.Logging.Service = "translation-service"
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
	return nil
}

func (s Session) IdleTimeoutOr(def time.Duration) time.Duration {
	return parseDurationOr(def, s.IdleTimeout)
}

// GraceWindowOr returns the human-translator grace window; "0" or "0s"
// explicitly disables the machine fallback.
func (f Fallback) GraceWindowOr(def time.Duration) time.Duration {
	if f.GraceWindow == "0" || f.GraceWindow == "0s" {
		return 0
	}
	return parseDurationOr(def, f.GraceWindow)
}

func (p Provider) AdapterConfig() provider.Config {
	return provider.Config{
		Name:           p.Name,
		Endpoint:       p.Endpoint,
		APIKey:         p.APIKey,
		Timeout:        parseDurationOr(8*time.Second, p.Timeout),
		CharsPerWindow: p.CharsPerWindow,
		Window:         parseDurationOr(time.Hour, p.Window),
		CostPerChar:    p.CostPerChar,
	}
}

// helper for parsing timeouts
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
