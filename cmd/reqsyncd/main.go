// Command reqsyncd keeps development requests and GitHub issues in sync:
// it serves the inbound webhook endpoint, runs the periodic reconciler,
// and pushes local changes out through the GitHub REST API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version is overridden by ldflags at build time.
	Version = "0.3.0"
	// Build can be set via ldflags at compile time.
	Build = "dev"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "reqsyncd",
	Short: "reqsyncd - development request / GitHub issue synchronizer",
	Long: `reqsyncd links club development requests to GitHub issues and keeps the
two sides converged through webhooks, outbound pushes, and periodic
reconciliation.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("reqsyncd version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ./reqsync.yaml)")
	rootCmd.Flags().Bool("version", false, "print version and exit")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resyncCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
