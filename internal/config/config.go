package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	LiveKit LiveKitConfig `yaml:"livekit"`
	Client  ClientConfig  `yaml:"client"`
}

type ServerConfig struct {
	Port              int           `yaml:"port"`
	Host              string        `yaml:"host"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
}

// LiveKitConfig carries the media-room connection settings. The URL is opaque
// to this service; it is returned to joiners so they can attach to the room.
type LiveKitConfig struct {
	URL       string        `yaml:"url"`
	APIKey    string        `yaml:"api_key"`
	APISecret string        `yaml:"api_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type ClientConfig struct {
	BaseURL      string        `yaml:"base_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	EndedGrace   time.Duration `yaml:"ended_grace"`
}

// envOverrides holds raw environment values applied on top of the file.
type envOverrides struct {
	Port             int           `env:"PORT"`
	Host             string        `env:"HOST"`
	APIBaseURL       string        `env:"API_BASE_URL"`
	LiveKitURL       string        `env:"LIVEKIT_URL"`
	LiveKitAPIKey    string        `env:"LIVEKIT_API_KEY"`
	LiveKitAPISecret string        `env:"LIVEKIT_API_SECRET"`
	PollInterval     time.Duration `env:"POLL_INTERVAL"`
}

// Load reads the YAML config at path, fills defaults, and applies
// environment overrides. A missing file is not an error; the environment
// alone is enough to run.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              4000,
			Host:              "0.0.0.0",
			BroadcastThrottle: 100 * time.Millisecond,
			SnapshotInterval:  5 * time.Second,
		},
		LiveKit: LiveKitConfig{
			URL:      "ws://localhost:7880",
			TokenTTL: 6 * time.Hour,
		},
		Client: ClientConfig{
			BaseURL:      "http://localhost:4000",
			PollInterval: 2 * time.Second,
			EndedGrace:   10 * time.Second,
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	var raw envOverrides
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if raw.Port > 0 {
		cfg.Server.Port = raw.Port
	}
	if raw.Host != "" {
		cfg.Server.Host = raw.Host
	}
	if raw.APIBaseURL != "" {
		cfg.Client.BaseURL = raw.APIBaseURL
	}
	if raw.LiveKitURL != "" {
		cfg.LiveKit.URL = raw.LiveKitURL
	}
	if raw.LiveKitAPIKey != "" {
		cfg.LiveKit.APIKey = raw.LiveKitAPIKey
	}
	if raw.LiveKitAPISecret != "" {
		cfg.LiveKit.APISecret = raw.LiveKitAPISecret
	}
	if raw.PollInterval > 0 {
		cfg.Client.PollInterval = raw.PollInterval
	}

	return cfg, nil
}
