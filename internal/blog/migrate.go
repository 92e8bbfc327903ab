package blog

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationTable records applied migrations.
const MigrationTable = "schema_migrations"

// MigrateCommands lists the commands Migrate understands.
var MigrateCommands = []string{"up", "down", "status", "version", "reset"}

type gooseLogger struct {
	log *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Infof(format, v...)
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Fatalf(format, v...)
}

// Migrate runs a goose command against the embedded migrations.
func Migrate(ctx context.Context, db *DB, command string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log: logger.Sugar()})
	goose.SetTableName(MigrationTable)
	if err := goose.SetDialect(db.Dialect()); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	var err error
	switch command {
	case "up":
		err = goose.UpContext(ctx, db.DB, "migrations")
	case "down":
		err = goose.DownContext(ctx, db.DB, "migrations")
	case "status":
		err = goose.StatusContext(ctx, db.DB, "migrations")
	case "version":
		err = goose.VersionContext(ctx, db.DB, "migrations")
	case "reset":
		err = goose.ResetContext(ctx, db.DB, "migrations")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	return nil
}
