package commands

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/japi/internal/blog"
	"github.com/conduit-lang/japi/internal/cli/ui"
)

// categorizeDatabaseError returns a short message unless verbose is set.
func categorizeDatabaseError(err error, verbose bool) string {
	if verbose {
		return err.Error()
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "syntax"):
		return "SQL syntax error - use --verbose for details"
	case strings.Contains(errStr, "constraint") || strings.Contains(errStr, "violates"):
		return "constraint violation - use --verbose for details"
	case strings.Contains(errStr, "does not exist") || strings.Contains(errStr, "no such"):
		return "referenced object does not exist - use --verbose for details"
	case strings.Contains(errStr, "already exists"):
		return "object already exists - use --verbose for details"
	case strings.Contains(errStr, "permission denied") || strings.Contains(errStr, "access denied"):
		return "permission denied - check database user privileges"
	default:
		return "migration failed - use --verbose for details"
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [" + strings.Join(blog.MigrateCommands, "|") + "]",
		Short: "Run database migrations",
		Long: `Run the embedded schema migrations against the configured database.

  up       apply all pending migrations
  down     roll back the latest migration
  status   list applied and pending migrations
  version  print the current schema version
  reset    roll back every migration`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: blog.MigrateCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := args[0]

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, err := opts.logger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			ui.Info(out, "Running migrate %s on %s", command, cfg.Database.Driver)
			if err := blog.Migrate(cmd.Context(), db, command, logger); err != nil {
				return errors.New(categorizeDatabaseError(err, opts.verbose))
			}
			ui.Success(out, "migrate %s complete", command)
			return nil
		},
	}
}
