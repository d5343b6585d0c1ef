package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zakkycrypt01/spenednsave-sub002/cmd/cert"
	"github.com/zakkycrypt01/spenednsave-sub002/cmd/db"
	"github.com/zakkycrypt01/spenednsave-sub002/cmd/keys"
	"github.com/zakkycrypt01/spenednsave-sub002/cmd/server"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "guardian",
	Short: "Guardian consensus and withdrawal authorization service",
	Long: `guardian collects EIP-712 guardian signatures for vault withdrawals,
tracks single requests and batches through their approval lifecycle and
hands quorum-approved withdrawals to the execution gateway.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// a missing .env is fine, the environment may be set by the orchestrator
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("file", envFile).Msg("Failed to load env file")
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Env file loaded before the command runs")

	rootCmd.AddCommand(
		server.New(),
		db.New(),
		cert.New(),
		keys.New(),
	)
}
