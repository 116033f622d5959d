package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ErrMissingEndpoint = errors.New("config: client endpoint is required")
	ErrMissingSocket   = errors.New("config: client socket_url is required")
)

// Client configures the presence channel client.
type Client struct {
	// Endpoint is the base URL of the broadcasting HTTP API, e.g. http://localhost:8080/api.
	Endpoint string `mapstructure:"endpoint"`
	// SocketURL is the websocket URL of the pub/sub connection.
	SocketURL string `mapstructure:"socket_url"`
	// CSRFToken is sent as X-CSRF-TOKEN. If empty it is fetched from CSRFURL.
	CSRFToken string            `mapstructure:"csrf_token"`
	CSRFURL   string            `mapstructure:"csrf_url"`
	Namespace string            `mapstructure:"namespace"`
	Headers   map[string]string `mapstructure:"headers"`
	// Channel is the presence channel the CLI joins, without prefix.
	Channel string `mapstructure:"channel"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BeaconTimeout  time.Duration `mapstructure:"beacon_timeout"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	ReconnectMax   time.Duration `mapstructure:"reconnect_max"`
}

// Server configures the reference presence server.
type Server struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	Secret       string        `mapstructure:"secret"`
	WhisperRate  float64       `mapstructure:"whisper_rate"`
	WhisperBurst int           `mapstructure:"whisper_burst"`
}

type Config struct {
	LogLevel string `mapstructure:"log_level"`
	Client   Client `mapstructure:"client"`
	Server   Server `mapstructure:"server"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("client.endpoint", "http://localhost:8080/api")
	v.SetDefault("client.socket_url", "ws://localhost:8080/api/ws")
	v.SetDefault("client.csrf_url", "http://localhost:8080/api/csrf")
	v.SetDefault("client.namespace", "App.Events")
	v.SetDefault("client.channel", "lobby")
	v.SetDefault("client.request_timeout", "10s")
	v.SetDefault("client.beacon_timeout", "2s")
	v.SetDefault("client.ping_period", "54s")
	v.SetDefault("client.send_buffer", 64)
	v.SetDefault("client.reconnect_max", "30s")

	v.SetDefault("server.mode", "release")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_limit", 32768)
	v.SetDefault("server.ping_period", "54s")
	v.SetDefault("server.secret", "change-me")
	v.SetDefault("server.whisper_rate", 10)
	v.SetDefault("server.whisper_burst", 20)
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default), then applies
// WAVE_* environment overrides.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("wave")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Client.Endpoint == "" {
		return ErrMissingEndpoint
	}
	if c.Client.SocketURL == "" {
		return ErrMissingSocket
	}
	c.Client.Endpoint = strings.TrimRight(c.Client.Endpoint, "/")
	return nil
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
