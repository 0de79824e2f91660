package commands

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"InvSight/internal/di"
	"InvSight/internal/repository"
	applogger "InvSight/pkg/logger"
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Inspect and publish artifact manifests and contracts",
}

var artifactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Load the manifest and print every registered artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := di.ProvideArtifactSource(cfg)
		if err != nil {
			return err
		}
		reg, err := di.ProvideRegistry(cfg, src, applogger.Nop())
		if err != nil {
			return err
		}
		fmt.Printf("manifest: %s\n", reg.Location())
		for _, a := range reg.List() {
			def := ""
			if a.Default {
				def = " (default)"
			}
			fmt.Printf("%-20s %-8s %-12s %s@%s%s\n", a.ID, a.Role, a.Kind, a.Contract, a.ContractVersion, def)
			fmt.Printf("    features: %s\n", strings.Join(a.Features, ", "))
		}
		return nil
	},
}

var artifactsPushCmd = &cobra.Command{
	Use:   "push [dir]",
	Short: "Upload a local artifact directory to the configured bucket",
	Long: `Uploads every YAML document under dir (default registry.dir) to
registry.minio, keeping relative paths, and then verifies that the uploaded
manifest loads.

Example:
  go run ./cmd/app artifacts push ./artifacts`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Registry.Dir
		if len(args) == 1 {
			dir = args[0]
		}
		if cfg.Registry.Minio.Endpoint == "" || cfg.Registry.Minio.Bucket == "" {
			return fmt.Errorf("registry.minio.endpoint and registry.minio.bucket are required")
		}
		dst, err := repository.NewMinioArtifactSource(di.MinioConfig(cfg))
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()
		if err := dst.EnsureBucket(ctx); err != nil {
			return err
		}

		n := 0
		err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if ext := filepath.Ext(p); ext != ".yaml" && ext != ".yml" {
				return nil
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			st, err := f.Stat()
			if err != nil {
				return err
			}
			if err := dst.PutObject(ctx, filepath.ToSlash(rel), f, st.Size()); err != nil {
				return err
			}
			fmt.Printf("uploaded %s\n", filepath.ToSlash(rel))
			n++
			return nil
		})
		if err != nil {
			return err
		}

		reg, err := di.ProvideRegistry(cfg, dst, applogger.Nop())
		if err != nil {
			return fmt.Errorf("uploaded %d documents but the manifest does not load: %w", n, err)
		}
		fmt.Printf("uploaded %d documents, %d artifacts at %s\n", n, len(reg.List()), reg.Location())
		return nil
	},
}

func init() {
	artifactsCmd.AddCommand(artifactsListCmd, artifactsPushCmd)
	rootCmd.AddCommand(artifactsCmd)
}
