package config

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GridWidth != 100 || cfg.GridHeight != 100 {
		t.Fatalf("expected default 100x100 grid, got %dx%d", cfg.GridWidth, cfg.GridHeight)
	}
	if cfg.Endpoints.BrokerFrontend != "127.0.0.1:5559" {
		t.Fatalf("expected default broker frontend endpoint, got %q", cfg.Endpoints.BrokerFrontend)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	yaml := "grid_width: 10\ngrid_height: 10\nendpoints:\n  primary_rider: \"127.0.0.1:9999\"\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GridWidth != 10 || cfg.GridHeight != 10 {
		t.Fatalf("expected overridden grid, got %dx%d", cfg.GridWidth, cfg.GridHeight)
	}
	if cfg.Endpoints.PrimaryRider != "127.0.0.1:9999" {
		t.Fatalf("expected overridden primary rider endpoint, got %q", cfg.Endpoints.PrimaryRider)
	}
	// Unspecified endpoints should keep their defaults.
	if cfg.Endpoints.BrokerFrontend != "127.0.0.1:5559" {
		t.Fatalf("expected untouched endpoint to keep default, got %q", cfg.Endpoints.BrokerFrontend)
	}
}

func TestWatcherReloadsOnFileChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatch.yaml")
	if err := os.WriteFile(path, []byte("log_verbose: false\n"), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *DispatchConfig, 1)
	w, err := NewWatcher(ctx, path, func(cfg *DispatchConfig) {
		reloaded <- cfg
	}, log.New(os.Stderr, "", 0))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if w.Current().LogVerbose {
		t.Fatalf("expected initial config to have log_verbose=false")
	}

	if err := os.WriteFile(path, []byte("log_verbose: true\n"), 0644); err != nil {
		t.Fatalf("rewriting fixture: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if !cfg.LogVerbose {
			t.Fatalf("expected reloaded config to have log_verbose=true")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher to observe the file change")
	}

	if !w.Current().LogVerbose {
		t.Fatalf("expected Current() to reflect the reload")
	}
}
