package blog

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/conduit-lang/japi/pkg/japi"
)

// Postgres SQLSTATE codes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// convertDBError turns constraint violations of every supported driver
// into JSON:API errors. Other errors are returned unchanged.
func convertDBError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return constraintError(pgErr.Code, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return constraintError(string(pqErr.Code), err)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return constraintError(pgUniqueViolation, err)
		case sqlite3.ErrConstraintForeignKey:
			return constraintError(pgForeignKeyViolation, err)
		}
	}

	return err
}

func constraintError(code string, err error) error {
	switch code {
	case pgUniqueViolation:
		return japi.Conflict("A resource with the same unique value already exists.")
	case pgForeignKeyViolation:
		return japi.Conflict("A related resource does not exist.")
	default:
		return err
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
