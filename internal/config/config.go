package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	InferenceWasm   = "wasm"
	InferenceServer = "server"
)

type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	Dir         string `mapstructure:"dir"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	InferenceMode string `mapstructure:"inference_mode"`
	InferenceURL  string `mapstructure:"inference_url"`

	HTTPS    bool   `mapstructure:"https"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	HostIP   string `mapstructure:"host_ip"`

	SendBuffer      int           `mapstructure:"send_buffer"`
	Backpressure    string        `mapstructure:"backpressure"`
	NotifyPeerLeave bool          `mapstructure:"notify_peer_leave"`
	RoomGCInterval  time.Duration `mapstructure:"room_gc_interval"`

	Store StoreConfig `mapstructure:"store"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8000)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "detectbench-dev-secret")
	v.SetDefault("inference_mode", InferenceWasm)
	v.SetDefault("inference_url", "ws://127.0.0.1:8001/ws")
	v.SetDefault("https", false)
	v.SetDefault("host_ip", "")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("backpressure", "drop")
	v.SetDefault("notify_peer_leave", false)
	v.SetDefault("room_gc_interval", "0s")
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.dir", "data")
	v.SetDefault("store.redis_addr", "127.0.0.1:6379")
	v.SetDefault("store.redis_prefix", "detectbench")
	v.SetDefault("store.postgres_dsn", "")
}

// Load reads config/config.<CONFIG_ENV>.yaml, falling back to defaults.
// DETECTBENCH_* environment variables override both.
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
	v.SetEnvPrefix("detectbench")
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
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Str("inference", cfg.InferenceMode).
		Str("store", cfg.Store.Driver).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.InferenceMode {
	case InferenceWasm, InferenceServer:
	default:
		return fmt.Errorf("invalid inference_mode %q", c.InferenceMode)
	}
	switch c.Backpressure {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid backpressure %q", c.Backpressure)
	}
	if c.HTTPS && (c.CertFile == "" || c.KeyFile == "") {
		return fmt.Errorf("https requires cert_file and key_file")
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	return nil
}

// Scheme is the URL scheme clients reach this server with when no tunnel is involved.
func (c *Config) Scheme() string {
	if c.HTTPS {
		return "https"
	}
	return "http"
}
