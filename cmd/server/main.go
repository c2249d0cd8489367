package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "dashboard-auth",
	Short: "Session authentication front for the bot dashboard",
	Long: `dashboard-auth serves the bot dashboard behind an OAuth session layer.

Every request is matched to its session cookie, expired access tokens are
refreshed against the provider, and routes under the protected prefix
require a resolved identity.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
