package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/schererja/drovah/internal/build"
	"github.com/schererja/drovah/internal/db"
)

func newBuildCmd() *cobra.Command {
	var pull bool

	cmd := &cobra.Command{
		Use:   "build <project>",
		Short: "Build a project now, without a webhook",
		Long: `Run the build of a project in the foreground, exactly as a webhook would:
the build commands of its .drovah manifest run, configured files are archived
and the outcome is recorded.

The command exits with an error when the build is failing.

Examples:
  drovah build myapp
  drovah build myapp --pull`,
		Args: cobra.ExactArgs(1),
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

			w := out(cmd)
			fmt.Fprintf(w, "🔨 Building %s...\n", args[0])
			result, err := st.orch.Run(cmd.Context(), build.BuildOptions{Project: args[0], Pull: pull})
			if err != nil {
				return err
			}

			fmt.Fprintf(w, "Build #%d: %s (%s)\n", result.BuildNumber, result.Status, result.Duration.Round(time.Millisecond))
			if len(result.Files) > 0 {
				fmt.Fprintf(w, "📦 Archived: %s\n", strings.Join(result.Files, ", "))
			}
			if result.PostArchive != nil && !*result.PostArchive {
				fmt.Fprintln(w, "⚠️  Post-archive commands failed")
			}
			if result.Status != db.StatusPassing {
				return fmt.Errorf("build of %s is %s", args[0], result.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&pull, "pull", false, "run git pull in the project before building")
	return cmd
}
