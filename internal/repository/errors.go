package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Common repository errors
var (
	ErrTaskNotFound     = errors.New("task not found")
	ErrEventNotFound    = errors.New("event not found")
	ErrTemplateNotFound = errors.New("recurring template not found")
	ErrActorNotFound    = errors.New("actor not found")
	ErrAuditNotFound    = errors.New("audit entry not found")
	ErrBookingNotFound  = errors.New("booking not found")

	// ErrDuplicateKey is returned when a unique key (idempotency key,
	// request id, primary key) already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrStaleRecord is returned by optimistic updates when the stored
	// version no longer matches the one that was read.
	ErrStaleRecord = errors.New("record was modified concurrently")

	// ErrUnavailable wraps connectivity failures and timeouts.
	ErrUnavailable = errors.New("store unavailable")
)

const pgUniqueViolation = "23505"

// translate maps driver and gorm errors onto the repository sentinels.
func translate(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if notFound != nil && errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateKey
	}
	var connErr *pgconn.ConnectError
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) ||
		errors.As(err, &connErr) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
