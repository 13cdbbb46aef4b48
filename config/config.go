package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"` // REST handler timeout; websockets are exempt
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

type GRPC struct {
	Addr string `yaml:"addr"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // chat-service
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
	Migrate           bool          `yaml:"migrate"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Storage struct {
	Driver string `yaml:"driver"` // postgres|memory
}

type WebSocket struct {
	PingInterval   time.Duration `yaml:"pingInterval"`
	PongWait       time.Duration `yaml:"pongWait"`
	WriteWait      time.Duration `yaml:"writeWait"`
	MaxMessageSize int64         `yaml:"maxMessageSize"`
	SendBuffer     int           `yaml:"sendBuffer"`
	AllowedOrigins []string      `yaml:"allowedOrigins"` // empty: any origin
}

type Chat struct {
	MaxMessageLength int `yaml:"maxMessageLength"`
}

type Security struct {
	JWTSecret         string        `yaml:"jwtSecret"`
	JWTIssuer         string        `yaml:"jwtIssuer"`
	AccessTTL         time.Duration `yaml:"accessTTL"`
	BcryptCost        int           `yaml:"bcryptCost"`
	MinPasswordLength int           `yaml:"minPasswordLength"`
	RequireAuth       bool          `yaml:"requireAuth"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type Redis struct {
	Addr     string `yaml:"addr"` // empty: presence mirror disabled
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	GRPC      GRPC      `yaml:"grpc"`
	Logging   Logging   `yaml:"logging"`
	Postgres  Postgres  `yaml:"postgres"`
	Storage   Storage   `yaml:"storage"`
	WebSocket WebSocket `yaml:"websocket"`
	Chat      Chat      `yaml:"chat"`
	Security  Security  `yaml:"security"`
	CORS      CORS      `yaml:"cors"`
	Redis     Redis     `yaml:"redis"`
}

// LoadConfig reads the YAML file at $CONFIG_PATH (default ./config/config.yaml).
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	return LoadFile(path)
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
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
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverPostgres
	}
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if c.Security.JWTSecret == "" {
		return errors.New("security.jwtSecret is required")
	}
	if c.Security.BcryptCost != 0 && (c.Security.BcryptCost < 4 || c.Security.BcryptCost > 18) {
		return errors.New("security.bcryptCost must be in [4..18]")
	}

	// defaults
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "chat-service"
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
	if c.WebSocket.PingInterval <= 0 {
		c.WebSocket.PingInterval = 15 * time.Second
	}
	if c.WebSocket.PongWait <= c.WebSocket.PingInterval {
		c.WebSocket.PongWait = 2 * c.WebSocket.PingInterval
	}
	if c.WebSocket.WriteWait <= 0 {
		c.WebSocket.WriteWait = 5 * time.Second
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		c.WebSocket.MaxMessageSize = 1 << 20
	}
	if c.WebSocket.SendBuffer <= 0 {
		c.WebSocket.SendBuffer = 256
	}
	if c.Chat.MaxMessageLength <= 0 {
		c.Chat.MaxMessageLength = 4000
	}
	if c.Security.JWTIssuer == "" {
		c.Security.JWTIssuer = "chat-service"
	}
	if c.Security.AccessTTL <= 0 {
		c.Security.AccessTTL = time.Hour
	}
	if c.Security.MinPasswordLength <= 0 {
		c.Security.MinPasswordLength = 4
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "chat"
	}
	return nil
}
