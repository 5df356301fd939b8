package main

import (
	"github.com/spf13/cobra"

	"taxidispatch/internal/config"
	"taxidispatch/internal/healthmonitor"
)

var healthMonitorCmd = &cobra.Command{
	Use:   "healthmonitor",
	Short: "Probe the primary dispatcher and activate the standby on failure",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		logger, logFile, err := roleLogger("healthmonitor")
		if err != nil {
			return err
		}
		defer logFile.Close()

		ctx, cancel := rootContext()
		defer cancel()

		primaryProber := healthmonitor.NewNetProber(cfg.Endpoints.HealthProbe)
		standbyNotify := healthmonitor.NewNetProber(cfg.Endpoints.Activation)
		mon := healthmonitor.New(primaryProber, standbyNotify, logger)

		logger.Printf("probing primary=%s standby=%s every %s", cfg.Endpoints.HealthProbe, cfg.Endpoints.Activation, healthmonitor.ProbeInterval)
		mon.Run(ctx.Done())
		return nil
	},
}
