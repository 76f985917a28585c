package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"seqnum/internal/core/apperror"
)

// SQLSTATE codes the write path reacts to.
const (
	codeUniqueViolation      = "23505"
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
)

// mapError converts driver errors into application errors:
// unique violations become duplicates (driving optimistic retry), lock
// timeouts, deadlocks and serialization failures become contention.
// Other errors are returned unchanged.
func mapError(err error, table string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	if table == "" {
		table = pgErr.TableName
	}

	switch pgErr.Code {
	case codeUniqueViolation:
		return apperror.NewDuplicate(table, pgErr.ConstraintName, pgErr.Detail).WithCause(err)
	case codeLockNotAvailable, codeDeadlockDetected, codeSerializationFailure:
		return apperror.NewContention(table).
			WithDetail("sqlstate", pgErr.Code).
			WithCause(err)
	}
	return err
}
