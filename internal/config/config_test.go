package config

import (
	"testing"
	"time"
)

// allEnvVars lists every variable read by this package; they are cleared between tests.
var allEnvVars = []string{
	"SHINGO_HTTP_ADDR", "SHINGO_GRPC_ADDR", "SHINGO_DATABASE_URL", "SHINGO_NATS_URL",
	"SHINGO_AUTH_TOKEN", "SHINGO_KEEPALIVE_INTERVAL", "SHINGO_RING_BUFFER_SIZE",
	"SHINGO_SYNC_INTERVAL", "SHINGO_SYNC_RETENTION", "SHINGO_SYNC_S3_BUCKET",
	"SHINGO_SYNC_S3_ENDPOINT", "SHINGO_SYNC_S3_REGION", "SHINGO_SYNC_S3_KEY",
	"SHINGO_SYNC_GIT_REPO", "SHINGO_SYNC_GIT_FILE", "SHINGO_SYNC_GIT_BRANCH",
	"SHINGO_EVENTS_URL", "SHINGO_RETRY_DELAY", "SHINGO_LAYOUT", "SHINGO_RESUME",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name         string
		env          map[string]string
		wantErr      bool
		wantGRPCAddr string
		wantHTTPAddr string
		wantNATSURL  string
	}{
		{
			name:         "Defaults",
			env:          map[string]string{},
			wantGRPCAddr: ":9090",
			wantHTTPAddr: ":8080",
		},
		{
			name: "CustomAddresses",
			env: map[string]string{
				"SHINGO_DATABASE_URL": "postgres://db:5432/shingo",
				"SHINGO_GRPC_ADDR":    ":5050",
				"SHINGO_HTTP_ADDR":    ":3000",
				"SHINGO_NATS_URL":     "nats://localhost:4222",
			},
			wantGRPCAddr: ":5050",
			wantHTTPAddr: ":3000",
			wantNATSURL:  "nats://localhost:4222",
		},
		{
			name:    "BadKeepalive",
			env:     map[string]string{"SHINGO_KEEPALIVE_INTERVAL": "soon"},
			wantErr: true,
		},
		{
			name:    "ZeroKeepalive",
			env:     map[string]string{"SHINGO_KEEPALIVE_INTERVAL": "0s"},
			wantErr: true,
		},
		{
			name:    "BadRingSize",
			env:     map[string]string{"SHINGO_RING_BUFFER_SIZE": "lots"},
			wantErr: true,
		},
		{
			name:    "ZeroRingSize",
			env:     map[string]string{"SHINGO_RING_BUFFER_SIZE": "0"},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.DatabaseURL != tc.env["SHINGO_DATABASE_URL"] {
				t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, tc.env["SHINGO_DATABASE_URL"])
			}
			if cfg.GRPCAddr != tc.wantGRPCAddr {
				t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, tc.wantGRPCAddr)
			}
			if cfg.HTTPAddr != tc.wantHTTPAddr {
				t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, tc.wantHTTPAddr)
			}
			if cfg.NATSURL != tc.wantNATSURL {
				t.Errorf("NATSURL = %q, want %q", cfg.NATSURL, tc.wantNATSURL)
			}
		})
	}
}

func TestLoadStreamDefaults(t *testing.T) {
	clearAllEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.KeepaliveInterval != 15*time.Second {
		t.Errorf("KeepaliveInterval = %v, want 15s", cfg.KeepaliveInterval)
	}
	if cfg.RingBufferSize != 1000 {
		t.Errorf("RingBufferSize = %d, want 1000", cfg.RingBufferSize)
	}
}

func TestLoadSyncDefaults(t *testing.T) {
	clearAllEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncInterval != 5*time.Minute {
		t.Errorf("SyncInterval = %v, want 5m", cfg.SyncInterval)
	}
	if cfg.SyncRetention != 0 {
		t.Errorf("SyncRetention = %v, want 0", cfg.SyncRetention)
	}
	if cfg.SyncS3Region != "us-east-1" {
		t.Errorf("SyncS3Region = %q, want %q", cfg.SyncS3Region, "us-east-1")
	}
	if cfg.SyncS3Key != "shingolive/{date}/events.jsonl" {
		t.Errorf("SyncS3Key = %q", cfg.SyncS3Key)
	}
	if cfg.SyncGitFile != "events.jsonl" {
		t.Errorf("SyncGitFile = %q, want %q", cfg.SyncGitFile, "events.jsonl")
	}
	if cfg.SyncGitBranch != "main" {
		t.Errorf("SyncGitBranch = %q, want %q", cfg.SyncGitBranch, "main")
	}
	if cfg.SyncEnabled() {
		t.Error("sync should be disabled without a database and destination")
	}
}

func TestLoadSyncCustom(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("SHINGO_DATABASE_URL", "postgres://localhost/shingo")
	t.Setenv("SHINGO_SYNC_INTERVAL", "10m")
	t.Setenv("SHINGO_SYNC_RETENTION", "168h")
	t.Setenv("SHINGO_SYNC_S3_BUCKET", "my-bucket")
	t.Setenv("SHINGO_SYNC_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("SHINGO_SYNC_S3_REGION", "eu-west-1")
	t.Setenv("SHINGO_SYNC_S3_KEY", "custom/key.jsonl")
	t.Setenv("SHINGO_SYNC_GIT_REPO", "/tmp/repo")
	t.Setenv("SHINGO_SYNC_GIT_FILE", "custom.jsonl")
	t.Setenv("SHINGO_SYNC_GIT_BRANCH", "backup")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncInterval != 10*time.Minute {
		t.Errorf("SyncInterval = %v, want 10m", cfg.SyncInterval)
	}
	if cfg.SyncRetention != 168*time.Hour {
		t.Errorf("SyncRetention = %v", cfg.SyncRetention)
	}
	if cfg.SyncS3Bucket != "my-bucket" || cfg.SyncS3Endpoint != "http://minio:9000" || cfg.SyncS3Region != "eu-west-1" || cfg.SyncS3Key != "custom/key.jsonl" {
		t.Errorf("S3 settings = %q %q %q %q", cfg.SyncS3Bucket, cfg.SyncS3Endpoint, cfg.SyncS3Region, cfg.SyncS3Key)
	}
	if cfg.SyncGitRepo != "/tmp/repo" || cfg.SyncGitFile != "custom.jsonl" || cfg.SyncGitBranch != "backup" {
		t.Errorf("git settings = %q %q %q", cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch)
	}
	if !cfg.SyncEnabled() {
		t.Error("sync should be enabled")
	}
}

func TestLoadSyncInvalidInterval(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("SHINGO_SYNC_INTERVAL", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid SHINGO_SYNC_INTERVAL")
	}
}

func TestLoadSyncDisabled(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("SHINGO_DATABASE_URL", "postgres://localhost/shingo")
	t.Setenv("SHINGO_SYNC_S3_BUCKET", "b")
	t.Setenv("SHINGO_SYNC_INTERVAL", "0s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncInterval != 0 || cfg.SyncEnabled() {
		t.Errorf("SyncInterval = %v, enabled = %v; want disabled", cfg.SyncInterval, cfg.SyncEnabled())
	}
}

func TestLoadListener(t *testing.T) {
	clearAllEnv(t)
	cfg, err := LoadListener()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.URL != "http://localhost:8080/events" || cfg.RetryDelay != 3*time.Second || cfg.Resume {
		t.Errorf("defaults = %+v", cfg)
	}

	t.Setenv("SHINGO_EVENTS_URL", "http://core:9000/events")
	t.Setenv("SHINGO_RETRY_DELAY", "500ms")
	t.Setenv("SHINGO_RESUME", "true")
	t.Setenv("SHINGO_LAYOUT", "/etc/shingo/layout.toml")
	cfg, err = LoadListener()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.URL != "http://core:9000/events" || cfg.RetryDelay != 500*time.Millisecond || !cfg.Resume || cfg.Layout != "/etc/shingo/layout.toml" {
		t.Errorf("custom = %+v", cfg)
	}
}

func TestLoadListener_Invalid(t *testing.T) {
	for _, tc := range []struct {
		key, val string
	}{
		{"SHINGO_RETRY_DELAY", "never"},
		{"SHINGO_RETRY_DELAY", "0s"},
		{"SHINGO_RESUME", "sometimes"},
	} {
		t.Run(tc.key+"="+tc.val, func(t *testing.T) {
			clearAllEnv(t)
			t.Setenv(tc.key, tc.val)
			if _, err := LoadListener(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEnvOrDefault(t *testing.T) {
	for _, tc := range []struct {
		name     string
		key      string
		envVal   string
		fallback string
		want     string
	}{
		{"EmptyUsesDefault", "TEST_ENVDEFAULT_EMPTY", "", "default-val", "default-val"},
		{"SetUsesEnv", "TEST_ENVDEFAULT_SET", "custom", "default-val", "custom"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envVal)
			got := envOrDefault(tc.key, tc.fallback)
			if got != tc.want {
				t.Errorf("envOrDefault(%q, %q) = %q, want %q", tc.key, tc.fallback, got, tc.want)
			}
		})
	}
}
