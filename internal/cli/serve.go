package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/schererja/drovah/internal/artifacts"
	"github.com/schererja/drovah/internal/daemon"
	"github.com/schererja/drovah/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var (
		address         string
		cleanupInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the drovah HTTP server",
		Long: `Start the HTTP server that accepts GitHub push webhooks and serves
badges, build history and archived artifacts.

Example usage:
  drovah serve
  drovah serve --address 0.0.0.0:8000
  drovah serve --cleanup-interval 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if address != "" {
				cfg.BindAddress = address
			}
			log := GetLogger()

			st, err := openStack(cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()

			policy, err := cfg.RetentionPolicy()
			if err != nil {
				return err
			}
			if cfg.Webhook.Secret == "" {
				log.Warn("webhook secret is empty, only unsigned deliveries will verify")
			}

			server := daemon.NewServer(daemon.Options{
				Address:         cfg.BindAddress,
				Secret:          []byte(cfg.Webhook.Secret),
				AllowedOrigin:   cfg.AllowedOrigin,
				PullBeforeBuild: cfg.Build.PullBeforeBuild,
			}, st.orch, st.store, st.archive, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, server, st.archive, policy, cleanupInterval, log)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "address to listen on, overrides bind_address")
	cmd.Flags().DurationVar(&cleanupInterval, "cleanup-interval", 0, "apply the retention policy this often (0 disables)")
	return cmd
}

// serve runs server until ctx is cancelled or it fails, applying the
// retention policy every interval alongside
func serve(ctx context.Context, server *daemon.Server, archive *artifacts.Manager, policy artifacts.RetentionPolicy, interval time.Duration, log *logger.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	g.Go(func() error {
		<-gctx.Done()
		log.Info("received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	if interval > 0 && !policy.IsZero() {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					removed, err := archive.CleanupAll(policy)
					if err != nil {
						log.Error("retention cleanup failed", err)
						continue
					}
					if len(removed) > 0 {
						log.Info("retention cleanup finished", slog.Int("removed", len(removed)))
					}
				}
			}
		})
	}

	return g.Wait()
}
