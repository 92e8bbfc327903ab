package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/japi/internal/blog"
	"github.com/conduit-lang/japi/internal/web/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON:API server",
		Long: `Start the HTTP server. It shuts down gracefully on SIGINT or SIGTERM,
waiting for active requests up to server.shutdown_timeout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, err := opts.logger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			if migrate {
				if err := blog.Migrate(ctx, db, "up", logger); err != nil {
					_ = db.Close()
					return err
				}
			}

			st, err := buildStack(ctx, cfg, db, logger)
			if err != nil {
				_ = db.Close()
				return err
			}

			srvConfig := server.DefaultConfig(st.handler)
			srvConfig.Address = cfg.Server.Address()
			srvConfig.ReadTimeout = cfg.Server.ReadTimeout
			srvConfig.WriteTimeout = cfg.Server.WriteTimeout
			srvConfig.IdleTimeout = cfg.Server.IdleTimeout
			srvConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
			srvConfig.Logger = logger

			srv, err := server.New(srvConfig)
			if err != nil {
				_ = st.close(ctx)
				_ = db.Close()
				return err
			}
			srv.OnShutdown(st.close)
			srv.OnShutdown(func(context.Context) error { return db.Close() })

			logger.Info("starting japi",
				zap.String("version", Version),
				zap.String("addr", srvConfig.Address),
				zap.String("database", cfg.Database.Driver),
				zap.String("cache", cfg.Cache.Backend),
				zap.Bool("auth", cfg.Auth.Enabled()),
			)
			if err := srv.Run(ctx); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}
