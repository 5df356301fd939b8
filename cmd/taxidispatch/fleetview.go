package main

import (
	"github.com/spf13/cobra"

	"taxidispatch/internal/config"
	"taxidispatch/internal/fleetview"
)

var fleetViewCmd = &cobra.Command{
	Use:   "fleet-view",
	Short: "Live read-only dashboard of fleet state",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		logger, logFile, err := roleLogger("fleetview")
		if err != nil {
			return err
		}
		defer logFile.Close()
		return fleetview.Run(cfg.Endpoints.BrokerBackend, logger)
	},
}
