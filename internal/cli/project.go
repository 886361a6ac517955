package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/schererja/drovah/internal/manifest"
	"github.com/schererja/drovah/internal/source"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage project working copies",
		Long: `Clone, remove and list the git working copies drovah builds.

A project is named after the last segment of its repository URL, without
a trailing .git. GitHub webhooks for a repository of that name build it.`,
	}
	cmd.AddCommand(newProjectAddCmd())
	cmd.AddCommand(newProjectRemoveCmd())
	cmd.AddCommand(newProjectListCmd())
	return cmd
}

func newProjectAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <git-url>",
		Short: "Clone a repository into the projects directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStack(cfg, GetLogger())
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := st.fetcher.Clone(args[0])
			if err != nil {
				return err
			}
			if _, err := st.store.EnsureProject(res.Project); err != nil {
				return fmt.Errorf("failed to register %s: %w", res.Project, err)
			}
			fmt.Fprintf(out(cmd), "✅ Added %s at %s\n", res.Project, res.Path)
			return nil
		},
	}
}

func newProjectRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete the working copy of a project",
		Long: `Delete the working copy of a project. Its build history and archived
artifacts are kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fetcher := source.NewFetcher(cfg.ProjectsDir, GetLogger())
			if err := fetcher.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "🗑️  Removed %s\n", args[0])
			return nil
		},
	}
}

func newProjectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List project working copies with their latest status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStack(cfg, GetLogger())
			if err != nil {
				return err
			}
			defer st.Close()

			names, err := st.fetcher.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(out(cmd), "No projects. Add one with 'drovah project add <git-url>'")
				return nil
			}

			tw := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROJECT\tSTATUS\tMANIFEST")
			for _, name := range names {
				status, err := latestStatus(st.store, name)
				if err != nil {
					return err
				}
				hasFile := "yes"
				if !hasManifest(st.fetcher.Path(name)) {
					hasFile = "missing"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, status, hasFile)
			}
			return tw.Flush()
		},
	}
}

// hasManifest reports whether dir carries a readable manifest
func hasManifest(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, manifest.FileName))
	return err == nil
}
