package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// UniqueViolation reports the violated constraint name when err is a
// Postgres 23505. Commit-time unique indexes are the dedup mechanism for
// idempotency keys and third-party transaction ids.
func UniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// IsRetryable reports whether err is a transient storage conflict worth
// retrying: serialization failure, deadlock, lock timeout or a timed-out
// transaction. Business-rule failures never satisfy this.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	return errors.Is(err, context.DeadlineExceeded)
}
