package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MapError translates database errors to domain errors.
// sql.ErrNoRows maps to notFoundErr and a unique violation maps to duplicateErr.
// Other errors are returned unchanged.
func MapError(err error, notFoundErr, duplicateErr error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return notFoundErr
	}

	if IsCode(err, pgUniqueViolation) {
		return duplicateErr
	}

	return err
}

// MapConstraint translates foreign key and check violations to invalidErr.
// Errors that are not constraint violations are returned unchanged.
func MapConstraint(err error, invalidErr error) error {
	if IsCode(err, pgForeignKeyViolation) || IsCode(err, pgCheckViolation) {
		return invalidErr
	}
	return err
}

// IsCode reports whether err wraps a PostgreSQL error with the given SQLSTATE code.
func IsCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
