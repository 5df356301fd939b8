package main

import (
	"github.com/spf13/cobra"

	"taxidispatch/internal/clients"
	"taxidispatch/internal/config"
	"taxidispatch/internal/wire"
)

var (
	taxiID    int
	taxiX     int
	taxiY     int
	taxiSpeed int
)

var taxiCmd = &cobra.Command{
	Use:   "taxi",
	Short: "Run a reference taxi client: register, then wait for assignments",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		logger, logFile, err := roleLogger("taxi")
		if err != nil {
			return err
		}
		defer logFile.Close()

		ctx, cancel := rootContext()
		defer cancel()

		t := clients.NewTaxi(taxiID, [2]int{taxiX, taxiY}, taxiSpeed, cfg.Endpoints.BrokerFrontend, cfg.Endpoints.BrokerBackend, logger)
		if err := t.Register(ctx); err != nil {
			return err
		}
		logger.Printf("taxi %d registered at (%d,%d)", t.ID, taxiX, taxiY)

		return t.ListenForAssignments(ctx, func(asn wire.Assignment) {
			logger.Printf("taxi %d assigned rider %d at %v", t.ID, asn.IDUsuario, asn.PosUsuario)
			if err := t.AcceptAssignment(); err != nil {
				logger.Printf("taxi %d: publishing acceptance: %v", t.ID, err)
				return
			}
			go func(dest [2]int) {
				if err := t.CompleteService(dest); err != nil {
					logger.Printf("taxi %d: publishing completion: %v", t.ID, err)
				}
			}(asn.PosUsuario)
		})
	},
}

func init() {
	taxiCmd.Flags().IntVar(&taxiID, "id", 1, "taxi id")
	taxiCmd.Flags().IntVar(&taxiX, "x", 0, "starting x position")
	taxiCmd.Flags().IntVar(&taxiY, "y", 0, "starting y position")
	taxiCmd.Flags().IntVar(&taxiSpeed, "speed", 1, "taxi speed (sent at registration; not used for matching)")
}
