package store

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrDuplicate is returned when an insert collides with an existing key.
	ErrDuplicate = errors.New("duplicate key")
	// ErrMissingReference is returned when a row references a product or
	// plate that does not exist.
	ErrMissingReference = errors.New("referenced row does not exist")
	// ErrNotFound is returned by updates and deletes that matched no row.
	ErrNotFound = errors.New("not found")
)

// constraintError maps SQLite constraint violations onto the store's
// sentinel errors. Any other error is returned unchanged.
func constraintError(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) || se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return err
	}

	msg := se.Error()
	switch {
	case se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY || strings.Contains(msg, "FOREIGN KEY"):
		return fmt.Errorf("%w: %v", ErrMissingReference, err)
	case se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
		se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE,
		strings.Contains(msg, "UNIQUE"):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

type closer interface{ Close() error }

func closeRows(rows closer) {
	if err := rows.Close(); err != nil {
		slog.Error("failed to close rows", "error", err)
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
