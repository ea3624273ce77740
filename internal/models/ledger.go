package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Operation is the closed set of mutations recorded in the change ledger.
type Operation uint8

// Ledger operations. The zero value is invalid so an unset field is caught.
const (
	OpCreate Operation = iota + 1
	OpUpdate
	OpDelete
)

// ParseOperation parses CREATE, UPDATE or DELETE (case-insensitive).
func ParseOperation(s string) (Operation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CREATE":
		return OpCreate, nil
	case "UPDATE":
		return OpUpdate, nil
	case "DELETE":
		return OpDelete, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidOperation, s)
}

func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "CREATE"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	}

	return fmt.Sprintf("Operation(%d)", uint8(o))
}

// Valid reports whether o is one of the three ledger operations.
func (o Operation) Valid() bool { return o >= OpCreate && o <= OpDelete }

// MarshalText encodes the operation by name.
func (o Operation) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOperation, uint8(o))
	}

	return []byte(o.String()), nil
}

// UnmarshalText decodes an operation name.
func (o *Operation) UnmarshalText(b []byte) error {
	op, err := ParseOperation(string(b))
	if err != nil {
		return err
	}

	*o = op

	return nil
}

// CanonicalRecord is a document read from the canonical store.
type CanonicalRecord struct {
	EntityType EntityType     `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
	Version    int64          `json:"version"`
}

// ChangeLogEntry is one immutable ledger row. Sequence is the global replay order.
type ChangeLogEntry struct {
	Sequence   int64          `json:"sequence"`
	EntityType EntityType     `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Operation  Operation      `json:"operation"`
	Payload    map[string]any `json:"payload,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Validate checks an entry before it is appended.
func (e *ChangeLogEntry) Validate() error {
	if !e.EntityType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEntityType, e.EntityType)
	}

	if e.EntityID == "" {
		return ErrMissingID
	}

	if len(e.EntityID) > 255 {
		return ErrFieldTooLong("entity_id", 255)
	}

	if !e.Operation.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidOperation, uint8(e.Operation))
	}

	if e.Operation != OpDelete && e.Payload == nil {
		return ErrMissingPayload
	}

	return nil
}

// Record converts a create or update entry into the canonical shape it
// snapshots. The ledger sequence becomes the record version.
func (e *ChangeLogEntry) Record() CanonicalRecord {
	return CanonicalRecord{
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Payload:    e.Payload,
		Version:    e.Sequence,
	}
}

// PayloadJSON returns the payload encoded for storage, or nil for deletes.
func (e *ChangeLogEntry) PayloadJSON() ([]byte, error) {
	if e.Operation == OpDelete || e.Payload == nil {
		return nil, nil
	}

	b, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	return b, nil
}

// LedgerQuery filters ledger entries for browsing.
type LedgerQuery struct {
	EntityType EntityType
	Operation  Operation
	From       *time.Time
	To         *time.Time
	Limit      int
}
