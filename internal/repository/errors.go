package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store-level facts. Services translate these into domain errors.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// uniqueViolation is the SQLSTATE Postgres reports when an insert or update
// violates a uniqueness constraint.
const uniqueViolation = "23505"

// invalidTextRepresentation is reported when an id is not a valid UUID; such
// an id cannot match any row.
const invalidTextRepresentation = "22P02"

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return errors.Join(ErrDuplicate, err)
		case invalidTextRepresentation:
			return ErrNotFound
		}
	}
	return err
}
