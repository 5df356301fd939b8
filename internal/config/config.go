package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Endpoints holds every socket address the system's roles bind or
// dial, all overridable from their §6.3 defaults.
type Endpoints struct {
	BrokerFrontend string `yaml:"broker_frontend"`
	BrokerBackend  string `yaml:"broker_backend"`
	PrimaryRider   string `yaml:"primary_rider"`
	StandbyRider   string `yaml:"standby_rider"`
	HealthProbe    string `yaml:"health_probe"`  // health monitor -> primary
	Activation     string `yaml:"activation"`    // health monitor -> standby
}

// DispatchConfig is the YAML-driven configuration shared by every
// role. A zero-value DispatchConfig is invalid; use Default() or LoadConfig.
type DispatchConfig struct {
	GridWidth  int       `yaml:"grid_width"`
	GridHeight int       `yaml:"grid_height"`
	Endpoints  Endpoints `yaml:"endpoints"`
	LogVerbose bool      `yaml:"log_verbose"`
}

// Default returns the §6.3/§6.4 default configuration.
func Default() *DispatchConfig {
	return &DispatchConfig{
		GridWidth:  100,
		GridHeight: 100,
		Endpoints: Endpoints{
			BrokerFrontend: "127.0.0.1:5559",
			BrokerBackend:  "127.0.0.1:5560",
			PrimaryRider:   "127.0.0.1:5555",
			StandbyRider:   "127.0.0.1:5556",
			HealthProbe:    "127.0.0.1:5558",
			Activation:     "127.0.0.1:5557",
		},
	}
}

// LoadConfig reads and parses the YAML file at path, falling back to
// Default() if the file does not exist, since every endpoint already
// has a sane value.
func LoadConfig(path string) (*DispatchConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Watcher reloads a DispatchConfig whenever the underlying file
// changes, calling onReload with the newly parsed config. It is used
// only for non-critical live settings (e.g. LogVerbose); endpoint
// changes still require a process restart since listeners are already
// bound.
type Watcher struct {
	path     string
	mu       sync.RWMutex
	current  *DispatchConfig
	onReload func(*DispatchConfig)
	logger   *log.Logger
}

// NewWatcher loads path once and starts watching it for changes in the
// background until ctx is cancelled.
func NewWatcher(ctx context.Context, path string, onReload func(*DispatchConfig), logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, current: cfg, onReload: onReload, logger: logger}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("starting config watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("watching config %s: %w", path, err)
		}
		// Config file does not exist yet; nothing to watch, defaults stand.
		return w, nil
	}

	go func() {
		defer fw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					w.reload()
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.logger.Printf("config: watcher error: %v", err)
			}
		}
	}()

	return w, nil
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Printf("config: reload failed, keeping previous config: %v", err)
		return
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

func (w *Watcher) Current() *DispatchConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}
