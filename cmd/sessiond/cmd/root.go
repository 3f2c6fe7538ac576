package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sessiond",
	Short: "sessiond serves cookie-backed sessions with a pluggable store",
	Long: `A reference server for goSession. Clients hold a signed session token in a
cookie; session attributes live in Redis, PostgreSQL or a local bbolt file.

Configuration is read from the environment (JWT_SECRET_KEY, SESSION_*, REDIS_DSN, ...)
and may be overridden with flags.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
