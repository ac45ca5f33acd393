package main

import (
	"os"

	"github.com/gofiber/fiber/v2/log"
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "saaskit",
		Short: "Data-source chat dashboard with subscription billing",
		Long: `saaskit serves the web application: accounts, Stripe billing,
data-source dashboards with AI agents and realtime notifications.`,
		RunE: runServe,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the background job queue",
		RunE:  runServe,
	}
	syncPricesCmd = &cobra.Command{
		Use:   "sync-prices",
		Short: "Mirror the Stripe product and price catalog into the database",
		RunE:  runSyncPrices,
	}
	noWorkers bool
)

func init() {
	serveCmd.Flags().BoolVar(&noWorkers, "no-workers", false, "serve HTTP only, do not start the job queue")
	rootCmd.AddCommand(serveCmd, syncPricesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
