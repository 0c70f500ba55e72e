package store

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert collides with a unique key.
	ErrConflict = errors.New("conflict")

	// ErrInvalidReference is returned when a row references a user that
	// does not exist.
	ErrInvalidReference = errors.New("invalid reference")
)

// PostgreSQL error codes the repositories translate.
const (
	codeUniqueViolation     = pq.ErrorCode("23505")
	codeForeignKeyViolation = pq.ErrorCode("23503")
)

func translate(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeUniqueViolation:
		return ErrConflict
	case codeForeignKeyViolation:
		return ErrInvalidReference
	default:
		return err
	}
}
