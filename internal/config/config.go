package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	LogLevel       string        `mapstructure:"log_level"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	CallRate       float64       `mapstructure:"call_rate"`
	CallBurst      int           `mapstructure:"call_burst"`
	MaxClientIDLen int           `mapstructure:"max_client_id_len"`
}

type ClientConfig struct {
	ServerURL     string `mapstructure:"server_url"`
	ClientID      string `mapstructure:"client_id"`
	Call          string `mapstructure:"call"`
	AutoAnswer    bool   `mapstructure:"auto_answer"`
	CaptureBlock  int    `mapstructure:"capture_block"`
	PlaybackRate  int    `mapstructure:"playback_rate"`
	AudioEncoding string `mapstructure:"audio_encoding"`
	LogLevel      string `mapstructure:"log_level"`
}

const envPrefix = "VOICECALL"

func newViper(name string) (*viper.Viper, string) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/%s.%s.yaml", name, env)
	v.SetConfigFile(fileName)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v, fileName
}

func read(v *viper.Viper, fileName string) {
	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
		return
	}
	log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
}

// Load reads the relay server configuration.
func Load() (*Config, error) {
	v, fileName := newViper("config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("call_rate", 1.0)
	v.SetDefault("call_burst", 5)
	v.SetDefault("max_client_id_len", 64)

	read(v, fileName)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Msg("server config")
	return &cfg, nil
}

// LoadClient reads the call client configuration. Flags that were set on the
// command line win over the file and the environment.
func LoadClient(flags *pflag.FlagSet) (*ClientConfig, error) {
	v, fileName := newViper("client")

	v.SetDefault("server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("client_id", "")
	v.SetDefault("call", "")
	v.SetDefault("auto_answer", false)
	v.SetDefault("capture_block", 512)
	v.SetDefault("playback_rate", 44100)
	v.SetDefault("audio_encoding", "json")
	v.SetDefault("log_level", "info")

	if flags != nil {
		for key, name := range map[string]string{
			"server_url":     "server",
			"client_id":      "id",
			"call":           "call",
			"auto_answer":    "auto-answer",
			"audio_encoding": "encoding",
			"log_level":      "log-level",
		} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	read(v, fileName)

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	switch cfg.AudioEncoding {
	case "json", "rtp":
	default:
		return nil, fmt.Errorf("unknown audio_encoding %q", cfg.AudioEncoding)
	}
	if cfg.CaptureBlock <= 0 {
		return nil, fmt.Errorf("capture_block must be positive, got %d", cfg.CaptureBlock)
	}
	return &cfg, nil
}

// SetupLogging installs the console logger at the configured level.
func SetupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
