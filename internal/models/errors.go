package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation.
var (
	ErrMissingID         = errors.New("entity_id is required")
	ErrMissingPayload    = errors.New("payload is required for create and update")
	ErrInvalidEntityType = errors.New("invalid entity type")
	ErrInvalidOperation  = errors.New("invalid operation")
)

// ErrNotFound is returned when a root entity is absent from the store being
// queried. For mirrors it means "not yet synced", not "no results".
var ErrNotFound = errors.New("not found")

// ErrLeaseHeld is returned when another sync task holds the lease for an entity type.
var ErrLeaseHeld = errors.New("sync lease held by another task")

// ErrFieldTooLong returns an error indicating a field exceeds its maximum length.
func ErrFieldTooLong(field string, maxLen int) error {
	return fmt.Errorf("%s exceeds maximum length of %d", field, maxLen)
}

// TransientIOError marks a connectivity or timeout failure against an external
// store. The sync path retries these with backoff.
type TransientIOError struct {
	Op  string
	Err error
}

func (e *TransientIOError) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientIOError. A nil err stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}

	return &TransientIOError{Op: op, Err: err}
}

// IsTransient reports whether err (or anything it wraps) is a TransientIOError.
func IsTransient(err error) bool {
	var t *TransientIOError
	return errors.As(err, &t)
}

// MalformedRecordError describes a canonical record or ledger entry that
// cannot be projected into the mirrors.
type MalformedRecordError struct {
	EntityType EntityType
	EntityID   string
	Reason     string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s record %q: %s", e.EntityType, e.EntityID, e.Reason)
}

// IsMalformed reports whether err is a MalformedRecordError.
func IsMalformed(err error) bool {
	var m *MalformedRecordError
	return errors.As(err, &m)
}

// OrderingViolationError signals ledger corruption or cursor misuse. It is
// fatal for the entity type until an operator intervenes.
type OrderingViolationError struct {
	EntityType EntityType
	Cursor     int64
	Sequence   int64
	Detail     string
}

func (e *OrderingViolationError) Error() string {
	return fmt.Sprintf("ordering violation for %s at cursor %d (sequence %d): %s",
		e.EntityType, e.Cursor, e.Sequence, e.Detail)
}

// SyncError is the envelope for every failure surfaced by a sync job. It
// always names the entity type and the cursor in effect so callers can resume.
type SyncError struct {
	EntityType EntityType
	Mirror     string
	Cursor     int64
	Err        error
}

func (e *SyncError) Error() string {
	if e.Mirror != "" {
		return fmt.Sprintf("sync %s (mirror %s, cursor %d): %v", e.EntityType, e.Mirror, e.Cursor, e.Err)
	}

	return fmt.Sprintf("sync %s (cursor %d): %v", e.EntityType, e.Cursor, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
