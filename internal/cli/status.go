package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/schererja/drovah/internal/db"
)

type projectStatus struct {
	Project string        `yaml:"project"`
	Status  db.Status     `yaml:"status"`
	Builds  []buildStatus `yaml:"builds"`
}

type buildStatus struct {
	Number    int       `yaml:"number"`
	Status    db.Status `yaml:"status"`
	Branch    string    `yaml:"branch"`
	Files     []string  `yaml:"files"`
	CreatedAt time.Time `yaml:"created_at"`
}

func newStatusCmd() *cobra.Command {
	var (
		output string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "status [project]",
		Short: "Show recorded build history",
		Long: `Display the recorded builds of one project, or of every project known
to the build store, newest first.

Examples:
  drovah status
  drovah status myapp --limit 20
  drovah status -o yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "table" && output != "yaml" {
				return fmt.Errorf("unknown output format %q (table or yaml)", output)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirs(); err != nil {
				return err
			}
			store, err := db.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			statuses, err := collectStatus(store, args, limit)
			if err != nil {
				return err
			}
			if output == "yaml" {
				return yaml.NewEncoder(out(cmd)).Encode(statuses)
			}
			return printStatus(out(cmd), statuses)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table or yaml")
	cmd.Flags().IntVar(&limit, "limit", 5, "builds shown per project")
	return cmd
}

func collectStatus(store db.Store, args []string, limit int) ([]projectStatus, error) {
	var projects []db.Project
	if len(args) == 1 {
		id, err := store.ProjectID(args[0])
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", args[0], err)
		}
		projects = []db.Project{{ID: id, Name: args[0]}}
	} else {
		all, err := store.Projects()
		if err != nil {
			return nil, err
		}
		projects = all
	}

	statuses := make([]projectStatus, 0, len(projects))
	for _, p := range projects {
		latest, err := store.LatestStatus(p.ID)
		if err != nil {
			return nil, err
		}
		builds, err := store.RecentBuilds(p.ID, limit)
		if err != nil {
			return nil, err
		}
		ps := projectStatus{Project: p.Name, Status: latest, Builds: make([]buildStatus, 0, len(builds))}
		for _, b := range builds {
			ps.Builds = append(ps.Builds, buildStatus{
				Number:    b.Number,
				Status:    b.Status,
				Branch:    b.Branch,
				Files:     b.Files,
				CreatedAt: b.CreatedAt,
			})
		}
		statuses = append(statuses, ps)
	}
	return statuses, nil
}

func printStatus(w io.Writer, statuses []projectStatus) error {
	if len(statuses) == 0 {
		fmt.Fprintln(w, "No builds recorded yet")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECT\tBUILD\tSTATUS\tBRANCH\tFILES")
	for _, ps := range statuses {
		if len(ps.Builds) == 0 {
			fmt.Fprintf(tw, "%s\t-\t%s\t-\t-\n", ps.Project, ps.Status)
			continue
		}
		for _, b := range ps.Builds {
			files := strings.Join(b.Files, ", ")
			if files == "" {
				files = "-"
			}
			fmt.Fprintf(tw, "%s\t#%d\t%s\t%s\t%s\n", ps.Project, b.Number, b.Status, b.Branch, files)
		}
	}
	return tw.Flush()
}
