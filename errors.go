package es

import (
	"errors"
	"fmt"
)

// ErrSequenceConflict signals that an append's expected sequence was stale.
// The entity service retries the whole load-dispatch-append cycle on it; once
// attempts are exhausted it is returned to the caller, who may retry.
var ErrSequenceConflict = errors.New("sequence-conflict")

// ErrStoreUnavailable signals that the durability medium could not be reached.
// Nothing was written; the operation is safe to retry.
var ErrStoreUnavailable = errors.New("event-store-unavailable")

// ErrNotFound is returned by query handlers when no read model row matches.
var ErrNotFound = errors.New("not-found")

// ValidationError reports a business invariant violated during command
// handling. No events were produced and the command is never retried
// automatically.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func Invalid(reason string) error {
	return ValidationError{Reason: reason}
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

type AggregateNotFoundError struct {
	Id AggregateId
}

func (e AggregateNotFoundError) Error() string {
	return fmt.Sprintf("aggregate not found: %s", e.Id.Encode())
}

func AggregateNotFound(id AggregateId) error {
	return AggregateNotFoundError{Id: id}
}

// DeserializationError reports a recorded event whose payload no longer
// decodes into its declared event type. It is fatal for replay of that
// aggregate and indicates a schema evolution bug; it is never skipped.
type DeserializationError struct {
	EventID   EventID
	EventType EventType
	Cause     error
}

func (e DeserializationError) Error() string {
	return fmt.Sprintf("failed to decode event %s as %s: %v", e.EventID, e.EventType, e.Cause)
}

func (e DeserializationError) Unwrap() error {
	return e.Cause
}

// UnknownEventTypeError reports a recorded event type with no registered
// reducer. The reducer set is closed; an unknown type during replay means the
// service descriptor is incomplete.
type UnknownEventTypeError struct {
	EventType EventType
}

func (e UnknownEventTypeError) Error() string {
	return fmt.Sprintf("no reducer registered for event type %s", e.EventType)
}

func UnexpectedCommand(command Command) error {
	return fmt.Errorf("unexpected command %s", CommandNameOf(command))
}
