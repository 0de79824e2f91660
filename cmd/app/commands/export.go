package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"InvSight/internal/di"
	"InvSight/internal/domain/models"
)

var exportCmd = &cobra.Command{
	Use:     "export-training <demand|anomaly|pricing>",
	Aliases: []string{"export"},
	Short:   "Write the training table for one role",
	Long: `Aligns the current snapshot against the role's contract and writes the
training rows to the training_<role> collection. With snapshot.queue enabled
the export is enqueued and the job id is printed.

Example:
  go run ./cmd/app export-training pricing`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := di.InitializeApp(cfg)
		if err != nil {
			return fmt.Errorf("app initialization failed: %w", err)
		}
		defer app.Close()

		id, res, err := app.Dispatcher().SubmitExport(cmd.Context(), models.Role(args[0]))
		if err != nil {
			return err
		}
		if id != "" {
			fmt.Printf("export queued: job_id=%s\n", id)
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
