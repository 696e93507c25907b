package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q, want :9090", cfg.MetricsAddr)
	}
	if cfg.StorageBackend != "local" || cfg.LocalStoragePath != "./files" {
		t.Errorf("storage = %s %s", cfg.StorageBackend, cfg.LocalStoragePath)
	}
	if cfg.Watch {
		t.Error("Watch should default to false")
	}
}

func TestLoadServerEnv(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":7000")
	t.Setenv("WATCH", "true")
	t.Setenv("LOCAL_STORAGE_PATH", "/srv/files")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.ListenAddr != ":7000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if !cfg.Watch {
		t.Error("Watch should be true")
	}
	if cfg.LocalStoragePath != "/srv/files" {
		t.Errorf("LocalStoragePath = %q", cfg.LocalStoragePath)
	}
}

func TestLoadServerValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"STORAGE_BACKEND": "ftp"}},
		{"s3 without bucket", map[string]string{"STORAGE_BACKEND": "s3"}},
		{"s3 with watch", map[string]string{"STORAGE_BACKEND": "s3", "S3_BUCKET": "b", "WATCH": "true"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadServer(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadClientDefaults(t *testing.T) {
	cfg, err := LoadClient(nil)
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.StartDelay != time.Second {
		t.Errorf("StartDelay = %v", cfg.StartDelay)
	}
	if cfg.DirYield != 200*time.Millisecond {
		t.Errorf("DirYield = %v", cfg.DirYield)
	}
	if cfg.LevelDelay != 500*time.Millisecond {
		t.Errorf("LevelDelay = %v", cfg.LevelDelay)
	}
	if cfg.ErrorBackoff != 5*time.Second {
		t.Errorf("ErrorBackoff = %v", cfg.ErrorBackoff)
	}
	if cfg.MaxConcurrentFetches != 4 {
		t.Errorf("MaxConcurrentFetches = %d", cfg.MaxConcurrentFetches)
	}
	if cfg.RequestsPerSecond != 20 {
		t.Errorf("RequestsPerSecond = %v", cfg.RequestsPerSecond)
	}
	if cfg.RootPath != "/" {
		t.Errorf("RootPath = %q", cfg.RootPath)
	}
}

func TestLoadClientFlagOverridesEnv(t *testing.T) {
	t.Setenv("SERVER_URL", "http://env:8080")
	t.Setenv("DIR_YIELD", "1s")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("server", "", "")
	fs.Duration("dir-yield", 0, "")
	if err := fs.Parse([]string{"--server", "http://flag:8080"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadClient(map[string]*pflag.Flag{
		"SERVER_URL": fs.Lookup("server"),
		"DIR_YIELD":  fs.Lookup("dir-yield"),
	})
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.ServerURL != "http://flag:8080" {
		t.Errorf("ServerURL = %q, want flag value", cfg.ServerURL)
	}
	// Unset flags leave the environment in charge.
	if cfg.DirYield != time.Second {
		t.Errorf("DirYield = %v, want 1s", cfg.DirYield)
	}
}

func TestLoadClientConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	data := "SERVER_URL: http://file:9000\nMAX_CONCURRENT_FETCHES: 2\nLEVEL_DELAY: 2s\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := LoadClient(nil)
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.ServerURL != "http://file:9000" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.MaxConcurrentFetches != 2 {
		t.Errorf("MaxConcurrentFetches = %d", cfg.MaxConcurrentFetches)
	}
	if cfg.LevelDelay != 2*time.Second {
		t.Errorf("LevelDelay = %v", cfg.LevelDelay)
	}
}

func TestLoadClientMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	if _, err := LoadClient(nil); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadClientRejectsZeroConcurrency(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_FETCHES", "0")
	if _, err := LoadClient(nil); err == nil {
		t.Error("expected error")
	}
}
