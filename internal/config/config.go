// pattern: Functional Core

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TransportSSE = "sse"
	TransportWS  = "ws"

	BackendLocal = "local"
	BackendMinIO = "minio"

	GeneratorGemini   = "gemini"
	GeneratorScripted = "scripted"
)

type Config struct {
	Theme    string         `yaml:"theme"`
	LogLevel string         `yaml:"log_level"`
	Server   ServerConfig   `yaml:"server"`
	Client   ClientConfig   `yaml:"client"`
	Storage  StorageConfig  `yaml:"storage"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

type ServerConfig struct {
	Bind         string `yaml:"bind"`
	Port         int    `yaml:"port"`
	UploadDir    string `yaml:"upload_dir"`
	InboxDir     string `yaml:"inbox_dir"`
	HistorySize  int    `yaml:"history_size"`
	DefaultStyle string `yaml:"default_style"`
}

type ClientConfig struct {
	// BaseURL of the backend. Empty means discover a local instance.
	BaseURL        string        `yaml:"base_url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	Transport      string        `yaml:"transport"`
}

type StorageConfig struct {
	Backend string      `yaml:"backend"`
	MinIO   MinIOConfig `yaml:"minio"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type PipelineConfig struct {
	Generator  string `yaml:"generator"`
	APIKeyEnv  string `yaml:"api_key_env"`
	TextModel  string `yaml:"text_model"`
	ImageModel string `yaml:"image_model"`
}

func DefaultConfig() Config {
	return Config{
		Theme:    "mocha",
		LogLevel: "info",
		Server: ServerConfig{
			Bind:         "127.0.0.1",
			Port:         8000,
			UploadDir:    "uploads",
			HistorySize:  256,
			DefaultStyle: "modern minimalist",
		},
		Client: ClientConfig{
			ReconnectDelay: 1500 * time.Millisecond,
			Transport:      TransportSSE,
		},
		Storage: StorageConfig{
			Backend: BackendLocal,
			MinIO: MinIOConfig{
				Bucket: "floorcast",
			},
		},
		Pipeline: PipelineConfig{
			Generator:  GeneratorGemini,
			APIKeyEnv:  "API_KEY",
			TextModel:  "gemini-2.5-flash",
			ImageModel: "gemini-2.5-flash-image-preview",
		},
	}
}

func Load() (Config, error) {
	return LoadFrom(getConfigPath())
}

// LoadFromDir loads config.yaml from dir.
func LoadFromDir(dir string) (Config, error) {
	return LoadFrom(filepath.Join(dir, "config.yaml"))
}

// LoadFrom reads the file at configPath over DefaultConfig. A missing file
// yields the defaults.
func LoadFrom(configPath string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse %s: %w", configPath, err)
	}

	if cfg.Theme == "" {
		cfg.Theme = "mocha"
	}

	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Client.Transport {
	case TransportSSE, TransportWS:
	default:
		return fmt.Errorf("client.transport: unknown transport %q", c.Client.Transport)
	}
	if c.Client.ReconnectDelay <= 0 {
		return fmt.Errorf("client.reconnect_delay must be positive, got %v", c.Client.ReconnectDelay)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.HistorySize < 0 {
		return fmt.Errorf("server.history_size must not be negative")
	}

	switch c.Storage.Backend {
	case BackendLocal:
		if c.Server.UploadDir == "" {
			return fmt.Errorf("server.upload_dir is required for local storage")
		}
	case BackendMinIO:
		if c.Storage.MinIO.Endpoint == "" || c.Storage.MinIO.Bucket == "" {
			return fmt.Errorf("storage.minio: endpoint and bucket are required")
		}
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend)
	}

	switch c.Pipeline.Generator {
	case GeneratorGemini, GeneratorScripted:
	default:
		return fmt.Errorf("pipeline.generator: unknown generator %q", c.Pipeline.Generator)
	}
	return nil
}

// ListenAddr is the backend's bind address.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// DataDir holds the instance lock, port file and logs.
func DataDir() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, "floorcast")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".local", "state", "floorcast")
	}
	return filepath.Join(home, ".local", "state", "floorcast")
}

func getConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "floorcast", "config.yaml")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "floorcast", "config.yaml")
	}

	return filepath.Join(home, ".config", "floorcast", "config.yaml")
}
