package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"templeops/internal/model"
	"templeops/internal/repository"
)

// ValidationError reports malformed input. Field uses the wire (json) name.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IllegalTransitionError is a state machine violation. The entity is left unchanged.
type IllegalTransitionError struct {
	Entity model.EntityType
	ID     string
	From   string
	To     string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("%s %s cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

// Conflict is one clashing booking or task found by the publish gate.
type Conflict struct {
	Kind     string `json:"kind"`
	ID       string `json:"id"`
	Resource string `json:"resource,omitempty"`
	Detail   string `json:"detail"`
}

type ConflictError struct {
	EventID   uuid.UUID
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	ids := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		ids = append(ids, c.Kind+":"+c.ID)
	}
	return fmt.Sprintf("event %s has %d unresolved conflicts: %s", e.EventID, len(e.Conflicts), strings.Join(ids, ", "))
}

// ReadOnlyError rejects a mutation of a frozen entity or field. An empty
// Field means the whole entity is frozen.
type ReadOnlyError struct {
	Entity model.EntityType
	ID     string
	Field  string
	Status string
}

func (e *ReadOnlyError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s %s is %s and read-only", e.Entity, e.ID, e.Status)
	}
	return fmt.Sprintf("%s %s: %s cannot change once %s", e.Entity, e.ID, e.Field, e.Status)
}

// StoreUnavailableError wraps infrastructure failures. Callers may retry.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// Warning is advisory. It accompanies a successful result and never blocks it.
type Warning struct {
	Message     string      `json:"message"`
	OpenTaskIDs []uuid.UUID `json:"open_task_ids,omitempty"`
}

// storeErr keeps the repository's domain sentinels and wraps everything
// else as StoreUnavailableError.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		repository.ErrTaskNotFound,
		repository.ErrEventNotFound,
		repository.ErrTemplateNotFound,
		repository.ErrActorNotFound,
		repository.ErrAuditNotFound,
		repository.ErrBookingNotFound,
		repository.ErrDuplicateKey,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return &StoreUnavailableError{Op: op, Err: err}
}

// IsNotFound reports whether err is one of the repository not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrTaskNotFound) ||
		errors.Is(err, repository.ErrEventNotFound) ||
		errors.Is(err, repository.ErrTemplateNotFound) ||
		errors.Is(err, repository.ErrActorNotFound) ||
		errors.Is(err, repository.ErrBookingNotFound)
}
