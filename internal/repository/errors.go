package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrUniqueViolation is returned when an insert trips a unique index.
var ErrUniqueViolation = errors.New("unique constraint violation")

// ErrInvalidID is returned when an identifier is not a well-formed uuid.
var ErrInvalidID = errors.New("malformed identifier")

const (
	pqUniqueViolation           = "23505"
	pqInvalidTextRepresentation = "22P02"
)

func isUniqueViolation(err error) bool {
	return hasPQCode(err, pqUniqueViolation)
}

// isInvalidID reports Postgres rejecting a uuid literal.
func isInvalidID(err error) bool {
	return hasPQCode(err, pqInvalidTextRepresentation)
}

func hasPQCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == code
	}
	return false
}
