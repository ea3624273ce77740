// Package ws streams sync activity to WebSocket subscribers: ledger appends,
// incremental sync outcomes and audit divergence signals.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/metrics"
	"github.com/persistorai/tracksync/internal/models"
)

// Hub channel buffer sizes.
const (
	broadcastBuffer = 256
	opsBuffer       = 64
)

// maxClients caps concurrent subscribers.
const maxClients = 1000

// maxBroadcastPayload is the maximum allowed event size (16 KB).
const maxBroadcastPayload = 16 << 10

var resetMsg, _ = json.Marshal(ResetMsg{
	Type:   "reset",
	Reason: "requested events no longer available, perform full refresh",
})

// drainTimeout is how long the hub waits for clients to flush after shutdown.
const drainTimeout = 3 * time.Second

type broadcast struct {
	entityType models.EntityType
	msg        []byte
}

type opKind int

const (
	opRegister opKind = iota
	opUnregister
	opReplay
)

// clientOp travels on one channel so a client's register, replay and
// unregister reach Run in the order they were sent.
type clientOp struct {
	kind        opKind
	client      *Client
	lastEventID uint64
}

// Hub manages active WebSocket clients and broadcasts events.
// All client map mutations happen exclusively in the Run goroutine.
type Hub struct {
	clients   map[*Client]bool
	ops       chan clientOp
	broadcast chan broadcast
	shutdown  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	count     atomic.Int64
	log       *logrus.Logger

	// pubMu keeps IDs and buffer order in step.
	pubMu  sync.Mutex
	seq    uint64
	buffer *EventBuffer
	now    func() time.Time
}

// NewHub creates a new Hub instance.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients:   make(map[*Client]bool),
		ops:       make(chan clientOp, opsBuffer),
		broadcast: make(chan broadcast, broadcastBuffer),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		log:       log,
		buffer:    NewEventBuffer(defaultBufferMaxLen, defaultBufferMaxAge),
		now:       time.Now,
	}
}

// Run starts the hub event loop. It should be run as a goroutine.
// It exits when Shutdown is called or the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.drainClients()

			return
		case <-h.shutdown:
			h.drainClients()

			return

		case op := <-h.ops:
			h.apply(op)

		case b := <-h.broadcast:
			for client := range h.clients {
				if !client.wants(b.entityType) {
					continue
				}
				select {
				case client.send <- b.msg:
				default:
					// Slow reader; it reconnects and replays from its last ID.
					client.closeSend()
					delete(h.clients, client)
				}
			}
			h.setCount()
		}
	}
}

func (h *Hub) apply(op clientOp) {
	client := op.client

	switch op.kind {
	case opRegister:
		if len(h.clients) >= maxClients {
			h.log.Warn("connection limit reached, dropping client")
			client.closeSend()
			return
		}
		h.clients[client] = true
		h.setCount()
		h.log.WithField("total", len(h.clients)).Info("event subscriber registered")

	case opUnregister:
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			client.closeSend()
		}
		h.setCount()
		h.log.WithField("total", len(h.clients)).Info("event subscriber unregistered")

	case opReplay:
		if h.clients[client] {
			h.replayTo(client, op.lastEventID)
		}
	}
}

func (h *Hub) setCount() {
	h.count.Store(int64(len(h.clients)))
	metrics.EventSubscribers.Set(float64(len(h.clients)))
}

// Publish assigns the next event ID, buffers the event for replay and
// broadcasts it to every client subscribed to et.
func (h *Hub) Publish(eventType string, et models.EntityType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.log.WithError(err).WithField("event", eventType).Error("failed to marshal event data")
		return
	}

	h.pubMu.Lock()
	h.seq++
	evt := Event{Type: eventType, ID: h.seq, EntityType: et, Data: raw, Time: h.now()}
	msg, err := json.Marshal(evt)
	if err == nil && len(msg) <= maxBroadcastPayload {
		h.buffer.Append(&evt)
	}
	h.pubMu.Unlock()

	if err != nil {
		h.log.WithError(err).Error("failed to marshal event")
		return
	}

	if len(msg) > maxBroadcastPayload {
		h.log.WithFields(logrus.Fields{
			"event":        eventType,
			"payload_size": len(msg),
			"max_size":     maxBroadcastPayload,
		}).Warn("dropping oversized event")
		return
	}

	metrics.EventsPublished.WithLabelValues(eventType).Inc()

	select {
	case h.broadcast <- broadcast{entityType: et, msg: msg}:
	default:
		h.log.Warn("broadcast channel full, dropping event")
	}
}

// LedgerAppended publishes a committed ledger append.
func (h *Hub) LedgerAppended(et models.EntityType, sequence int64) {
	h.Publish(EventLedgerAppended, et, ledgerAppendedData{Sequence: sequence})
}

// SyncCompleted publishes the outcome of an incremental sync that moved a cursor
// or skipped entries.
func (h *Hub) SyncCompleted(res *models.IncrementalResult) {
	h.Publish(EventSyncCompleted, res.EntityType, syncSummary{
		Applied:      res.Applied,
		Skipped:      res.Skipped,
		Failed:       res.Failed,
		CursorBefore: res.CursorBefore,
		CursorAfter:  res.CursorAfter,
	})
}

// SyncFailed publishes an incremental sync that returned an error.
func (h *Hub) SyncFailed(et models.EntityType, err error) {
	h.Publish(EventSyncFailed, et, syncFailedData{Error: err.Error()})
}

// DivergenceDetected publishes a flagged audit report.
func (h *Hub) DivergenceDetected(d models.DivergenceDetected) {
	h.Publish(EventDivergence, d.Report.EntityType, d.Report)
}

type syncSummary struct {
	Applied      int   `json:"applied"`
	Skipped      int   `json:"skipped"`
	Failed       int   `json:"failed"`
	CursorBefore int64 `json:"cursor_before"`
	CursorAfter  int64 `json:"cursor_after"`
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.ops <- clientOp{kind: opRegister, client: c}:
	default:
		h.log.Warn("ops channel full, dropping client")
		c.closeSend()
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.ops <- clientOp{kind: opUnregister, client: c}:
	default:
		// Run loop already exited; client cleanup happened in Run shutdown.
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Shutdown sends a shutdown frame to every connected client, waits for their
// write pumps to flush, then closes all connections. It blocks until the
// drain completes or the timeout expires.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() { close(h.shutdown) })
	<-h.done
}

func (h *Hub) drainClients() {
	if len(h.clients) == 0 {
		return
	}

	h.log.WithField("clients", len(h.clients)).Info("draining event subscribers")

	shutdownMsg := []byte(`{"type":"shutdown","message":"server shutting down"}`)
	for client := range h.clients {
		select {
		case client.send <- shutdownMsg:
		default:
		}
	}

	deadline := time.After(drainTimeout)
	ticker := time.NewTicker(50 * time.Millisecond) //nolint:mnd // poll interval
	defer ticker.Stop()

wait:
	for {
		drained := true
		for client := range h.clients {
			if len(client.send) > 0 {
				drained = false
				break
			}
		}
		if drained {
			break
		}

		select {
		case <-deadline:
			h.log.Warn("event drain timeout, closing remaining clients")
			break wait
		case <-ticker.C:
		}
	}

	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}

	h.setCount()
}

// RequestReplay asks the Run goroutine to resend buffered events after
// lastEventID to c. Only Run writes to or closes a client's send channel.
func (h *Hub) RequestReplay(c *Client, lastEventID uint64) {
	select {
	case h.ops <- clientOp{kind: opReplay, client: c, lastEventID: lastEventID}:
	default:
		h.log.Warn("ops channel full, dropping replay request")
	}
}

// replayTo sends buffered events after lastEventID, or a reset message when
// the requested ID is older than the buffer.
func (h *Hub) replayTo(client *Client, lastEventID uint64) {
	oldest := h.buffer.OldestID()
	if oldest > 0 && lastEventID > 0 && lastEventID < oldest-1 {
		select {
		case client.send <- resetMsg:
		default:
		}
		return
	}

	for _, evt := range h.buffer.Since(lastEventID) {
		if !client.wants(evt.EntityType) {
			continue
		}
		msg, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		select {
		case client.send <- msg:
		default:
			return // channel full, stop replay
		}
	}
}
