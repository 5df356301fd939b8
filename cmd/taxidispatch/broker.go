package main

import (
	"github.com/spf13/cobra"

	"taxidispatch/internal/broker"
	"taxidispatch/internal/config"
)

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Run the pub/sub message broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		logger, logFile, err := roleLogger("broker")
		if err != nil {
			return err
		}
		defer logFile.Close()

		ctx, cancel := rootContext()
		defer cancel()

		srv := broker.NewServer(cfg.Endpoints.BrokerFrontend, cfg.Endpoints.BrokerBackend, logger)
		logger.Printf("listening frontend=%s backend=%s", cfg.Endpoints.BrokerFrontend, cfg.Endpoints.BrokerBackend)
		return srv.Run(ctx)
	},
}
