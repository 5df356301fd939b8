package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"taxidispatch/internal/config"
	"taxidispatch/internal/dispatcher"
	"taxidispatch/internal/fleet"
	"taxidispatch/internal/store"
)

var (
	dispatcherRole    string
	dispatcherDBPath  string
	dispatcherNoStore bool
)

var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Run a primary or standby dispatcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgPath)
		if err != nil {
			return err
		}

		var primary bool
		switch dispatcherRole {
		case "primary":
			primary = true
		case "standby":
			primary = false
		default:
			return fmt.Errorf("--role must be %q or %q, got %q", "primary", "standby", dispatcherRole)
		}

		logger, logFile, err := roleLogger("dispatcher-" + dispatcherRole)
		if err != nil {
			return err
		}
		defer logFile.Close()

		ctx, cancel := rootContext()
		defer cancel()

		d := dispatcher.New(fleet.New(), primary, cfg.Endpoints.BrokerFrontend, logger)
		d.Verbose.Store(cfg.LogVerbose)

		if _, err := config.NewWatcher(ctx, cfgPath, func(newCfg *config.DispatchConfig) {
			d.Verbose.Store(newCfg.LogVerbose)
			logger.Printf("dispatcher: reloaded config, log_verbose=%v", newCfg.LogVerbose)
		}, logger); err != nil {
			logger.Printf("dispatcher: config watcher unavailable, live reload disabled: %v", err)
		}

		if !dispatcherNoStore {
			dbPath := dispatcherDBPath
			if dbPath == "" {
				dbPath, err = config.GetDatabasePath()
				if err != nil {
					return err
				}
			}
			st, err := store.Open(dbPath, logger)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()
			d.Store = st
		}

		go d.IngestLoop(ctx, cfg.Endpoints.BrokerBackend)

		if primary {
			riderAddr := cfg.Endpoints.PrimaryRider
			go func() {
				if err := d.ServeProbeReplies(ctx, cfg.Endpoints.HealthProbe); err != nil {
					logger.Printf("probe reply endpoint: %v", err)
				}
			}()
			logger.Printf("serving riders on %s", riderAddr)
			return d.ServeRiderRequests(ctx, riderAddr)
		}

		logger.Printf("standby armed, awaiting activation on %s", cfg.Endpoints.Activation)
		return d.ServeActivation(ctx, cfg.Endpoints.Activation, cfg.Endpoints.StandbyRider)
	},
}

func init() {
	dispatcherCmd.Flags().StringVar(&dispatcherRole, "role", "primary", `dispatcher role: "primary" or "standby"`)
	dispatcherCmd.Flags().StringVar(&dispatcherDBPath, "db", "", "sqlite database path (default: standard config dir)")
	dispatcherCmd.Flags().BoolVar(&dispatcherNoStore, "no-store", false, "disable ride history/statistics persistence")
}
