package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/schererja/drovah/internal/client"
	"github.com/schererja/drovah/internal/config"
)

const requestTimeout = 10 * time.Second

var createFile = func(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// ConfigLoader returns the configuration of the local installation
type ConfigLoader func() (*config.Config, error)

type clientFlags struct {
	address string
	secret  string
}

// New creates and returns the client command with all subcommands
func New(load ConfigLoader) *cobra.Command {
	flags := &clientFlags{}

	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Interact with a running drovah server",
		Long: `The client commands talk to a running drovah server over HTTP.

The server address and webhook secret default to bind_address and
webhook.secret of the local configuration.

Examples:
  drovah client trigger myapp
  drovah client projects
  drovah client active
  drovah client download myapp --build 4 --file app-b4.zip
  drovah client projects --address https://ci.example.com`,
	}

	clientCmd.PersistentFlags().StringVar(&flags.address, "address", "", "server address (default is bind_address)")
	clientCmd.PersistentFlags().StringVar(&flags.secret, "secret", "", "webhook secret (default is webhook.secret)")

	clientCmd.AddCommand(newTriggerCmd(load, flags))
	clientCmd.AddCommand(newProjectsCmd(load, flags))
	clientCmd.AddCommand(newActiveCmd(load, flags))
	clientCmd.AddCommand(newDownloadCmd(load, flags))

	return clientCmd
}

func connect(load ConfigLoader, flags *clientFlags) (*client.Client, error) {
	address, secret := flags.address, flags.secret
	if address == "" || secret == "" {
		cfg, err := load()
		if err != nil {
			return nil, err
		}
		if address == "" {
			address = cfg.BindAddress
		}
		if secret == "" {
			secret = cfg.Webhook.Secret
		}
	}
	return client.NewClient(address, []byte(secret))
}

func newTriggerCmd(load ConfigLoader, flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <project>",
		Short: "Send a signed push webhook for a project",
		Long: `Send a push webhook for a project, signed with the webhook secret, exactly
as GitHub would. The server answers before the build runs; follow it with
'drovah client active' or 'drovah client projects'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(load, flags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			if err := c.Trigger(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to trigger %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🚀 Build of %s triggered\n", args[0])
			return nil
		},
	}
}

func newProjectsCmd(load ConfigLoader, flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List projects and their recent builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(load, flags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			resp, err := c.Projects(ctx)
			if err != nil {
				return fmt.Errorf("failed to list projects: %w", err)
			}
			if len(resp.Projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects found")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROJECT\tBUILD\tSTATUS\tFILES")
			for _, p := range resp.Projects {
				if len(p.Builds) == 0 {
					fmt.Fprintf(tw, "%s\t-\t-\t-\n", p.Project)
					continue
				}
				for _, b := range p.Builds {
					fmt.Fprintf(tw, "%s\t#%d\t%s\t%s\n", p.Project, b.BuildNumber, b.BuildStatus, strings.Join(b.ArchivedFiles, ", "))
				}
			}
			return tw.Flush()
		},
	}
}

func newActiveCmd(load ConfigLoader, flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show builds currently running on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(load, flags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()

			resp, err := c.Active(ctx)
			if err != nil {
				return fmt.Errorf("failed to list active builds: %w", err)
			}
			if len(resp.Builds) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "🚧 No active builds")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "BUILD ID\tPROJECT\tSTATE\tRUNNING")
			for _, b := range resp.Builds {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.BuildID, b.Project, b.State, time.Since(b.StartedAt).Round(time.Second))
			}
			return tw.Flush()
		},
	}
}

func newDownloadCmd(load ConfigLoader, flags *clientFlags) *cobra.Command {
	var (
		buildNumber int
		file        string
		output      string
	)

	cmd := &cobra.Command{
		Use:   "download <project>",
		Short: "Download an archived artifact",
		Long: `Download an archived artifact. Without --build the latest artifact of the
project is fetched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if buildNumber > 0 && file == "" {
				return fmt.Errorf("--file is required with --build")
			}
			c, err := connect(load, flags)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return c.Download(cmd.Context(), args[0], buildNumber, file, cmd.OutOrStdout())
			}
			return downloadFile(cmd.Context(), c, args[0], buildNumber, file, output)
		},
	}

	cmd.Flags().IntVar(&buildNumber, "build", 0, "build number (default is the latest build)")
	cmd.Flags().StringVar(&file, "file", "", "archived file name, required with --build")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "write to this file instead of stdout")
	return cmd
}

// downloadFile writes an artifact to path, reporting a failed close as well
func downloadFile(ctx context.Context, c *client.Client, project string, buildNumber int, file, path string) (err error) {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to write %s: %w", path, cerr)
		}
	}()
	return c.Download(ctx, project, buildNumber, file, f)
}
