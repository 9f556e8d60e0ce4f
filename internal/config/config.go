package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	SSH     SSHConfig     `toml:"ssh"`
	Web     WebConfig     `toml:"web"`
	Logging LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Name      string `toml:"name"`
	DataDir   string `toml:"data_dir"`
	QueueSize int    `toml:"queue_size"` // core loop task queue depth
}

type SSHConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
	KeyDir   string `toml:"key_dir"`  // host key directory override
	UserDB   string `toml:"user_db"`  // user key database override
}

type WebConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

// Load reads the TOML config at path over the built-in defaults. A missing
// file is fine when allowMissing is set, so the server runs without any
// config file at all.
func Load(path string, allowMissing bool) (*Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name:      "onwgo",
			DataDir:   "data",
			QueueSize: 256,
		},
		SSH: SSHConfig{
			Enabled:  true,
			Endpoint: ":2022",
		},
		Web: WebConfig{
			Enabled:  true,
			Endpoint: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
