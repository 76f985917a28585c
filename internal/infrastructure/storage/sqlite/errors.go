package sqlite

import (
	"errors"
	"strings"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"seqnum/internal/core/apperror"
)

// mapError converts driver errors into application errors: unique
// violations become duplicates, busy and locked databases contention.
func mapError(err error, table string) error {
	if err == nil {
		return nil
	}

	var drvErr *sqlitedrv.Error
	if errors.As(err, &drvErr) {
		code := drvErr.Code()
		switch {
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return apperror.NewDuplicate(table, "", "").WithCause(err)
		case code&0xff == sqlite3.SQLITE_BUSY || code&0xff == sqlite3.SQLITE_LOCKED:
			return apperror.NewContention(table).WithCause(err)
		}
	}

	// Drivers without extended result codes only report the message.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return apperror.NewDuplicate(table, "", "").WithCause(err)
	case strings.Contains(msg, "database is locked"):
		return apperror.NewContention(table).WithCause(err)
	}
	return err
}
