package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "opm-gateway",
	Short: "OPM stats ingestion gateway",
	Long: `opm-gateway receives gameplay event batches from game servers,
normalizes them, and writes them to the analytics store.

Producers authenticate with a server token and may submit batches in
either the JSON array format or the legacy URL-encoded line format.`,
	Version: "0.1.0",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
}
