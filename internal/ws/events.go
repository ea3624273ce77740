package ws

import (
	"encoding/json"
	"time"

	"github.com/persistorai/tracksync/internal/models"
)

// Event types pushed to subscribers.
const (
	EventLedgerAppended = "ledger.appended"
	EventSyncCompleted  = "sync.completed"
	EventSyncFailed     = "sync.failed"
	EventDivergence     = "audit.divergence"
)

// Event is the structured message sent to WebSocket clients.
type Event struct {
	Type       string            `json:"type"`
	ID         uint64            `json:"id"`
	EntityType models.EntityType `json:"entity_type"`
	Data       json.RawMessage   `json:"data"`
	Time       time.Time         `json:"time"`
}

// SubscribeMsg is sent by the client to pick entity types and request replay.
// An empty EntityTypes list subscribes to every type.
type SubscribeMsg struct {
	Type        string              `json:"type"`
	LastEventID uint64              `json:"last_event_id"`
	EntityTypes []models.EntityType `json:"entity_types"`
}

// ResetMsg tells the client to do a full refresh (requested events too old).
type ResetMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type ledgerAppendedData struct {
	Sequence int64 `json:"sequence"`
}

type syncFailedData struct {
	Error string `json:"error"`
}
