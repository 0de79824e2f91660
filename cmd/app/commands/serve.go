package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"InvSight/internal/di"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, stream, consumers and scheduled refreshes",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := di.InitializeApp(cfg)
		if err != nil {
			return fmt.Errorf("app initialization failed: %w", err)
		}
		return app.Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
