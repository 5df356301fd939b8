// Command taxidispatch runs any of the roles that make up the
// distributed taxi-dispatch service: the broker, a primary or standby
// dispatcher, the health monitor, and the taxi/rider reference
// clients.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"taxidispatch/internal/config"
	"taxidispatch/version"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "taxidispatch",
	Short: "Distributed taxi dispatch service",
}

func init() {
	defaultCfgPath, _ := config.GetConfigFile()
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultCfgPath, "path to dispatch.yaml")

	rootCmd.AddCommand(brokerCmd)
	rootCmd.AddCommand(dispatcherCmd)
	rootCmd.AddCommand(healthMonitorCmd)
	rootCmd.AddCommand(taxiCmd)
	rootCmd.AddCommand(riderCmd)
	rootCmd.AddCommand(fleetViewCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}

// rootContext returns a context cancelled on SIGINT/SIGTERM, the
// shutdown trigger every long-running role loop respects.
func rootContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// roleLogger opens config.GetLogsDir()/<role>.log and returns a Logger
// writing to it, plus the file for the caller to close on shutdown.
func roleLogger(role string) (*log.Logger, *os.File, error) {
	dir, err := config.GetLogsDir()
	if err != nil {
		return nil, nil, fmt.Errorf("resolving logs directory: %w", err)
	}
	path := filepath.Join(dir, role+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	return log.New(f, role+": ", log.LstdFlags|log.Lshortfile), f, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
