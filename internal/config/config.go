// Package config holds the complete host configuration, loaded once at
// startup from a YAML file with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Plugins  PluginConfig   `yaml:"plugins"`
	Chat     ChatConfig     `yaml:"chat"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Type     string `yaml:"type"` // sqlite or postgres
	Path     string `yaml:"path"` // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// PluginConfig holds plugin system configuration
type PluginConfig struct {
	PluginDir       string `yaml:"plugin_dir"`
	ScratchDir      string `yaml:"scratch_dir"` // embedded native payloads are unpacked here
	EnableHotReload bool   `yaml:"enable_hot_reload"`
	// Precedence orders plugin sources for identifier collisions; the first
	// matching source wins. Valid entries: static, disk, embedded.
	Precedence []string `yaml:"precedence"`
}

// ChatConfig holds chat transport configuration
type ChatConfig struct {
	Enabled   bool     `yaml:"enabled"`
	ServerURL string   `yaml:"server_url"`
	Nick      string   `yaml:"nick"`
	Token     string   `yaml:"token"`
	Channels  []string `yaml:"channels"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
}

var (
	mu     sync.RWMutex
	global *Config
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "./data/castbot.db",
			Host: "localhost",
			Port: 5432,
		},
		Plugins: PluginConfig{
			PluginDir:       "./data/plugins",
			ScratchDir:      "./data/plugins/.unpacked",
			EnableHotReload: true,
			Precedence:      []string{"static", "disk", "embedded"},
		},
		Chat: ChatConfig{
			ServerURL: "wss://irc-ws.chat.twitch.tv:443",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path and applies environment overrides. An
// empty path skips the file and loads defaults plus environment.
func Load(path string) error {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	mu.Lock()
	global = cfg
	mu.Unlock()
	return nil
}

// Get returns the active configuration, loading defaults if Load has not run.
func Get() *Config {
	mu.RLock()
	cfg := global
	mu.RUnlock()
	if cfg != nil {
		return cfg
	}

	cfg = Default()
	applyEnvOverrides(cfg)
	mu.Lock()
	global = cfg
	mu.Unlock()
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CASTBOT_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CASTBOT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_TYPE"); v != "" {
		cfg.Database.Type = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PLUGIN_DIR"); v != "" {
		cfg.Plugins.PluginDir = v
	}
	if v := os.Getenv("CASTBOT_CHAT_TOKEN"); v != "" {
		cfg.Chat.Token = v
	}
	if v := os.Getenv("CASTBOT_CHAT_NICK"); v != "" {
		cfg.Chat.Nick = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
