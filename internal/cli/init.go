package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schererja/drovah/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration and create the data directories",
		Long: `Write a default drovah.yaml (or the file named by --config) and create the
projects, archive and database directories it refers to. An existing
configuration file is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = config.FileName
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			cfgFile = path
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirs(); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "✅ Wrote %s\n", path)
			fmt.Fprintf(out(cmd), "📁 Projects: %s\n📦 Archive:  %s\n", cfg.ProjectsDir, cfg.ArchiveDir)
			fmt.Fprintln(out(cmd), "💡 Set webhook.secret (or GITHUB_SECRET) before running 'drovah serve'")
			return nil
		},
	}
}
