package postgres

import (
	"database/sql"
	"errors"

	"toolshare-backend/internal/domain"

	"github.com/lib/pq"
)

const (
	uniqueViolation      pq.ErrorCode = "23505"
	exclusionViolation   pq.ErrorCode = "23P01"
	serializationFailure pq.ErrorCode = "40001"
	deadlockDetected     pq.ErrorCode = "40P01"
)

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func isRetryable(err error) bool {
	code := pqCode(err)
	return code == serializationFailure || code == deadlockDetected
}

// notFound turns sql.ErrNoRows into a domain not-found error.
func notFound(err error, what string, id interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewError(domain.KindNotFound, "%s %v not found", what, id)
	}
	return err
}

// overlapConflict maps the commitment constraints to a Conflict error.
func overlapConflict(err error) error {
	switch pqCode(err) {
	case exclusionViolation, uniqueViolation:
		return &domain.Error{Kind: domain.KindConflict, Message: "tool is already committed in that window", Err: err}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}
