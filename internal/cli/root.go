package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	clientcmd "github.com/schererja/drovah/internal/cli/client"
	"github.com/schererja/drovah/internal/config"
	"github.com/schererja/drovah/pkg/logger"
)

var (
	cfgFile string
	envFile string
	verbose bool
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drovah",
		Short: "A small self-hosted continuous integration server",
		Long: `Drovah receives GitHub push webhooks, runs the build commands of the
pushed project's .drovah manifest, archives the configured files and serves
status badges and artifacts over HTTP.

Get started:
  drovah init
  drovah project add https://github.com/you/project.git
  drovah serve`,
		Version:       "0.1.0-dev",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+config.FileName+")")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file of KEY=VALUE pairs loaded into the environment")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newProjectCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newArtifactsCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(clientcmd.New(loadConfig))
	return cmd
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("drovah: %w", err)
	}
	return nil
}

// loadConfig reads the env file, the config file and DROVAH_* variables
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	v, err := config.NewViper(cfgFile)
	if err != nil {
		return nil, err
	}
	if verbose && v.ConfigFileUsed() != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
	}
	return config.Load(v)
}

// GetLogger returns the process logger, at debug level with --verbose
func GetLogger() *logger.Logger {
	if verbose {
		return logger.New(os.Stderr, slog.LevelDebug)
	}
	return logger.NewLogger()
}

// out is where commands print their results
func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
