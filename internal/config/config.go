// Package config reads service settings from SHINGO_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds settings for the event stream server.
type Config struct {
	HTTPAddr    string // SHINGO_HTTP_ADDR (default ":8080")
	GRPCAddr    string // SHINGO_GRPC_ADDR (default ":9090"; empty = no gRPC health)
	DatabaseURL string // SHINGO_DATABASE_URL (optional, empty = memory-only replay)
	NATSURL     string // SHINGO_NATS_URL (optional, empty = no bus bridge)
	AuthToken   string // SHINGO_AUTH_TOKEN (optional, empty = auth disabled)

	KeepaliveInterval time.Duration // SHINGO_KEEPALIVE_INTERVAL (default 15s)
	RingBufferSize    int           // SHINGO_RING_BUFFER_SIZE (default 1000)

	// Sync settings
	SyncInterval   time.Duration // SHINGO_SYNC_INTERVAL (default 5m; 0 = disabled)
	SyncRetention  time.Duration // SHINGO_SYNC_RETENTION (default 0 = keep everything)
	SyncS3Bucket   string        // SHINGO_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // SHINGO_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // SHINGO_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // SHINGO_SYNC_S3_KEY (default "shingolive/{date}/events.jsonl")
	SyncGitRepo    string        // SHINGO_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // SHINGO_SYNC_GIT_FILE (default "events.jsonl")
	SyncGitBranch  string        // SHINGO_SYNC_GIT_BRANCH (default "main")
}

// SyncEnabled reports whether any export destination is configured.
func (c *Config) SyncEnabled() bool {
	return c.SyncInterval > 0 && c.DatabaseURL != "" && (c.SyncS3Bucket != "" || c.SyncGitRepo != "")
}

// Load reads the server configuration from the environment.
func Load() (*Config, error) {
	c := &Config{
		HTTPAddr:       envOrDefault("SHINGO_HTTP_ADDR", ":8080"),
		GRPCAddr:       envOrDefault("SHINGO_GRPC_ADDR", ":9090"),
		DatabaseURL:    os.Getenv("SHINGO_DATABASE_URL"),
		NATSURL:        os.Getenv("SHINGO_NATS_URL"),
		AuthToken:      os.Getenv("SHINGO_AUTH_TOKEN"),
		SyncS3Bucket:   os.Getenv("SHINGO_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("SHINGO_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("SHINGO_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("SHINGO_SYNC_S3_KEY", "shingolive/{date}/events.jsonl"),
		SyncGitRepo:    os.Getenv("SHINGO_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("SHINGO_SYNC_GIT_FILE", "events.jsonl"),
		SyncGitBranch:  envOrDefault("SHINGO_SYNC_GIT_BRANCH", "main"),
	}

	var err error
	if c.KeepaliveInterval, err = envDuration("SHINGO_KEEPALIVE_INTERVAL", "15s"); err != nil {
		return nil, err
	}
	if c.KeepaliveInterval <= 0 {
		return nil, fmt.Errorf("SHINGO_KEEPALIVE_INTERVAL must be positive")
	}
	if c.SyncInterval, err = envDuration("SHINGO_SYNC_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if c.SyncRetention, err = envDuration("SHINGO_SYNC_RETENTION", "0s"); err != nil {
		return nil, err
	}
	if c.RingBufferSize, err = envInt("SHINGO_RING_BUFFER_SIZE", 1000); err != nil {
		return nil, err
	}
	if c.RingBufferSize < 1 {
		return nil, fmt.Errorf("SHINGO_RING_BUFFER_SIZE must be at least 1")
	}

	return c, nil
}

// ListenerConfig holds settings for the listen command.
type ListenerConfig struct {
	URL        string        // SHINGO_EVENTS_URL (default "http://localhost:8080/events")
	Token      string        // SHINGO_AUTH_TOKEN
	RetryDelay time.Duration // SHINGO_RETRY_DELAY (default 3s)
	Layout     string        // SHINGO_LAYOUT (TOML page layout; empty = built-in dashboard)
	Resume     bool          // SHINGO_RESUME (send Last-Event-ID on reconnect)
}

// LoadListener reads the listener configuration from the environment.
func LoadListener() (*ListenerConfig, error) {
	c := &ListenerConfig{
		URL:    envOrDefault("SHINGO_EVENTS_URL", "http://localhost:8080/events"),
		Token:  os.Getenv("SHINGO_AUTH_TOKEN"),
		Layout: os.Getenv("SHINGO_LAYOUT"),
	}
	var err error
	if c.RetryDelay, err = envDuration("SHINGO_RETRY_DELAY", "3s"); err != nil {
		return nil, err
	}
	if c.RetryDelay <= 0 {
		return nil, fmt.Errorf("SHINGO_RETRY_DELAY must be positive")
	}
	if v := os.Getenv("SHINGO_RESUME"); v != "" {
		if c.Resume, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("SHINGO_RESUME: %w", err)
		}
	}
	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
