package wrpc

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig selects the zap level; empty means info.
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// ListenConfig names the endpoints a server binds.
type ListenConfig struct {
	// WebSocket is an http address such as "127.0.0.1:8080".
	WebSocket     string `toml:"websocket"`
	WebSocketPath string `toml:"websocketPath"`
	// Stream is a "tcp" address or a "unix" socket path.
	Stream  string `toml:"stream"`
	Network string `toml:"network"`
}

// Config is the file form of every knob in the package.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Client    ClientConfig    `toml:"client"`
	Transport TransportConfig `toml:"transport"`
	Server    ServerConfig    `toml:"server"`
	Listen    ListenConfig    `toml:"listen"`
}

// LoadConfig reads a TOML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes TOML data and fills defaults.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Client.SweepInterval < 0 || cfg.Client.Timeout < 0 {
		return fmt.Errorf("client.sweepInterval and client.timeout must not be negative")
	}
	if cfg.Transport.WriteTimeout < 0 || cfg.Server.WriteTimeout < 0 {
		return fmt.Errorf("writeTimeout must not be negative")
	}
	if _, err := cfg.Log.level(); err != nil {
		return err
	}
	switch cfg.Listen.Network {
	case "":
		cfg.Listen.Network = "tcp"
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return fmt.Errorf("listen.network %q not supported", cfg.Listen.Network)
	}
	if cfg.Listen.WebSocketPath == "" {
		cfg.Listen.WebSocketPath = "/"
	}
	return nil
}

func (cfg LogConfig) level() (lvl zapcore.Level, err error) {
	if cfg.Level == "" {
		return zapcore.InfoLevel, nil
	}
	if err = lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		err = fmt.Errorf("log.level: %w", err)
	}
	return
}

// Logger builds a zap logger for cfg.
func (cfg LogConfig) Logger() (*zap.Logger, error) {
	lvl, err := cfg.level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
