package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/schererja/drovah/internal/artifacts"
)

func newArtifactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Manage archived build artifacts",
		Long: `List or clean up the files archived by passing builds. Cleaning removes
archive directories only, the recorded build history is kept.`,
	}
	cmd.AddCommand(newArtifactsListCmd())
	cmd.AddCommand(newArtifactsCleanCmd())
	return cmd
}

func newArtifactsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <project>",
		Short: "List archived builds of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mgr, err := artifacts.NewManager(cfg.ArchiveDir, GetLogger())
			if err != nil {
				return err
			}
			builds, err := mgr.ListBuilds(args[0])
			if err != nil {
				return err
			}
			if len(builds) == 0 {
				fmt.Fprintf(out(cmd), "🔍 No artifacts found for %s\n", args[0])
				return nil
			}

			tw := tabwriter.NewWriter(out(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "BUILD\tFILE\tSIZE\tARCHIVED")
			for _, b := range builds {
				for _, f := range b.Files {
					fmt.Fprintf(tw, "#%d\t%s\t%s\t%s\n", b.Number, f.Name, artifacts.FormatSize(f.Size), b.ModTime.Format("2006-01-02 15:04"))
				}
				fmt.Fprintf(tw, "#%d\t(total)\t%s\t\n", b.Number, artifacts.FormatSize(b.Size))
			}
			return tw.Flush()
		},
	}
}

func newArtifactsCleanCmd() *cobra.Command {
	var (
		keepLast int
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "clean [project]",
		Short: "Apply the retention policy to archived builds",
		Long: `Remove archived builds outside the retention policy of the configuration:
beyond retention.keep_last, older than retention.max_age, or, oldest first,
over retention.max_size in total.

Examples:
  drovah artifacts clean
  drovah artifacts clean myapp --keep-last 3
  drovah artifacts clean --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			policy, err := cfg.RetentionPolicy()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("keep-last") {
				policy.KeepLast = keepLast
			}
			if policy.IsZero() {
				fmt.Fprintln(out(cmd), "Retention policy is empty, nothing to clean")
				return nil
			}

			mgr, err := artifacts.NewManager(cfg.ArchiveDir, GetLogger())
			if err != nil {
				return err
			}

			var removed []artifacts.BuildDir
			switch {
			case dryRun:
				removed, err = planCleanup(mgr, args, policy)
			case len(args) == 1:
				removed, err = mgr.Cleanup(args[0], policy)
			default:
				removed, err = mgr.CleanupAll(policy)
			}
			if err != nil {
				return err
			}

			var freed int64
			for _, b := range removed {
				freed += b.Size
				if dryRun {
					fmt.Fprintf(out(cmd), "would remove %s #%d (%s)\n", b.Project, b.Number, artifacts.FormatSize(b.Size))
				}
			}
			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			fmt.Fprintf(out(cmd), "🧹 %s %d build(s), %s\n", verb, len(removed), artifacts.FormatSize(freed))
			return nil
		},
	}

	cmd.Flags().IntVar(&keepLast, "keep-last", 0, "keep only the newest N builds, overrides retention.keep_last")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be removed")
	return cmd
}

func planCleanup(mgr *artifacts.Manager, args []string, policy artifacts.RetentionPolicy) ([]artifacts.BuildDir, error) {
	projects := args
	if len(projects) == 0 {
		all, err := mgr.Projects()
		if err != nil {
			return nil, err
		}
		projects = all
	}
	var planned []artifacts.BuildDir
	for _, p := range projects {
		builds, err := mgr.Plan(p, policy)
		if err != nil {
			return nil, err
		}
		planned = append(planned, builds...)
	}
	return planned, nil
}
