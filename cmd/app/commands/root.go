package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"InvSight/pkg/config"
)

var (
	// Global flags
	configFile string
	envFile    string

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "invsight",
	Short: "InvSight - inventory analytics and prediction service",
	Long: `InvSight reconciles inventory entities into one feature frame and serves
demand forecasts, anomaly scores and price estimates from registered artifacts.

Usage:
  go run ./cmd/app [command]

Examples:
  go run ./cmd/app serve
  go run ./cmd/app reconcile
  go run ./cmd/app export-training demand
  go run ./cmd/app forecast demand --subject 42 --horizon 14
  go run ./cmd/app artifacts list`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if _, err := os.Stat(envFile); err == nil {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("load %s: %w", envFile, err)
				}
			}
		}
		if cmd.Annotations["config"] == "none" {
			return nil
		}
		c, err := config.LoadWithEnv(configFile)
		if err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
		cfg = c
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config/config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
}
