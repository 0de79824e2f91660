package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"InvSight/internal/di"
)

var showColumns bool

var reconcileCmd = &cobra.Command{
	Use:     "reconcile",
	Aliases: []string{"snapshot"},
	Short:   "Build a reconciled snapshot once and print its summary",
	Long: `Fetches every collection named by the reconcile plan, builds the
reconciled frame and prints the snapshot info.

Example:
  go run ./cmd/app reconcile --columns`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := di.InitializeApp(cfg)
		if err != nil {
			return fmt.Errorf("app initialization failed: %w", err)
		}
		defer app.Close()

		snap, err := app.Snapshots().Refresh(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap.Info()); err != nil {
			return err
		}
		if showColumns {
			cols := append([]string(nil), snap.Frame.Columns...)
			sort.Strings(cols)
			for _, c := range cols {
				fmt.Println(c)
			}
		}
		return nil
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&showColumns, "columns", false, "also list the reconciled columns")
	rootCmd.AddCommand(reconcileCmd)
}
