package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sagarc03/burndrop"
)

const uniqueViolation = "23505"

// classifyError maps pgx errors onto burndrop sentinels.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == uniqueViolation && isPrimaryKey(pgErr.ConstraintName):
			return fmt.Errorf("%w: %w", burndrop.ErrConflict, err)
		case isTransientCode(pgErr.Code):
			return fmt.Errorf("%w: %w", burndrop.ErrStoreUnavailable, err)
		}
		return err
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", burndrop.ErrStoreUnavailable, err)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return fmt.Errorf("%w: %w", burndrop.ErrStoreUnavailable, err)
	}

	return err
}

// isPrimaryKey matches the default name of a primary key constraint,
// <table>_pkey. Only an id clash can be fixed by trying another id.
func isPrimaryKey(constraint string) bool {
	return strings.HasSuffix(constraint, "_pkey")
}

// isTransientCode covers connection exceptions, serialization failures,
// deadlocks and server shutdown.
func isTransientCode(code string) bool {
	if len(code) < 2 {
		return false
	}
	switch code[:2] {
	case "08", "53":
		return true
	case "40":
		return code == "40001" || code == "40P01"
	case "57":
		return code == "57P01" || code == "57P02" || code == "57P03"
	}
	return false
}
