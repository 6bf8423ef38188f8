package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "devicekey",
	Short: "Device-bound credential issuance service",
	Long: `Registers accounts bound to a client device fingerprint and issues
short-lived, single-use tokens that a plugin or client can redeem.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// load .env file if present so os.Getenv picks values from it
		// this is best-effort: if no .env exists, continue (use defaults or real env)
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
