package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taxidispatch/internal/clients"
	"taxidispatch/internal/config"
)

var (
	riderID int
	riderX  int
	riderY  int
	riderTo string
)

var riderCmd = &cobra.Command{
	Use:   "rider",
	Short: "Issue a single ride request and print the reply",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgPath)
		if err != nil {
			return err
		}

		addr := riderTo
		if addr == "" {
			addr = cfg.Endpoints.PrimaryRider
		}

		reply, err := clients.RequestRide(addr, riderID, [2]int{riderX, riderY}, 5*time.Second)
		if err != nil {
			return fmt.Errorf("requesting ride: %w", err)
		}
		if !reply.Exito {
			fmt.Printf("rejected: %s\n", reply.Error)
			return nil
		}
		fmt.Printf("matched taxi %d at %v\n", reply.TaxiID, reply.PosTaxi)
		return nil
	},
}

func init() {
	riderCmd.Flags().IntVar(&riderID, "id", 0, "rider id")
	riderCmd.Flags().IntVar(&riderX, "x", 0, "rider x position")
	riderCmd.Flags().IntVar(&riderY, "y", 0, "rider y position")
	riderCmd.Flags().StringVar(&riderTo, "dispatcher", "", "dispatcher rider address (default: configured primary_rider)")
}
