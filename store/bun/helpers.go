package bunstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/xraph/postmaster"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey reports a unique violation from PostgreSQL (23505) or
// SQLite.
func isDuplicateKey(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func unavailable(op string, err error) error {
	return fmt.Errorf("postmaster/bun: %s: %w: %w", op, postmaster.ErrPersistenceUnavailable, err)
}
