package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConflict signals a unique-constraint violation. Orchestration code
// treats it as "another caller won the race" and re-runs its lookup instead
// of surfacing the failure.
var ErrConflict = errors.New("store: unique constraint violation")

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
