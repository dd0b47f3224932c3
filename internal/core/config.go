package core

import (
	"time"
)

type Config struct {
	API       APIConfig
	AltSource AltSourceConfig
	Server    ServerConfig
	Storage   StorageConfig
	Cache     CacheConfig
	Log       LogConfig
	Player    PlayerConfig
	// Language selects the message catalog for user-facing text.
	Language string
}

// APIConfig configures the remote catalog/streaming client.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
	// MaxTransportRetries bounds transient transport-level retries. Domain
	// errors in the result envelope are never retried.
	MaxTransportRetries int
}

// AltSourceConfig configures the secondary provider consulted for
// region-restricted, subscription-gated or delisted tracks.
type AltSourceConfig struct {
	ClientID     string
	ClientSecret string
	LookupTTL    time.Duration
	// MinScore is the match-confidence floor below which a search result is
	// treated as a different recording.
	MinScore float64
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type StorageConfig struct {
	Path string
}

type CacheConfig struct {
	PlaylistCapacity  int
	FalsePositiveRate float64
}

type LogConfig struct {
	Level string
}

type PlayerConfig struct {
	Volume float64
	// AudioStatePerSecond throttles audioState pushes toward the UI.
	AudioStatePerSecond int
}

func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:             "http://localhost:3000",
			Timeout:             15 * time.Second,
			MaxTransportRetries: 3,
		},
		AltSource: AltSourceConfig{
			LookupTTL: time.Hour,
			MinScore:  0.6,
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         7478,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Path: "./cloudamp.db",
		},
		Cache: CacheConfig{
			PlaylistCapacity:  64,
			FalsePositiveRate: 0.001,
		},
		Log: LogConfig{
			Level: "info",
		},
		Player: PlayerConfig{
			Volume:              1.0,
			AudioStatePerSecond: 4,
		},
		Language: "en",
	}
}
