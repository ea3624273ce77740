package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
)

// Event is one message from the sync event stream. Reset and shutdown
// control messages carry only Type and Reason.
type Event struct {
	Type       string          `json:"type"`
	ID         uint64          `json:"id"`
	EntityType string          `json:"entity_type"`
	Data       json.RawMessage `json:"data"`
	Time       time.Time       `json:"time"`
	Reason     string          `json:"reason,omitempty"`
}

// Event stream message types.
const (
	EventLedgerAppended = "ledger.appended"
	EventSyncCompleted  = "sync.completed"
	EventSyncFailed     = "sync.failed"
	EventDivergence     = "audit.divergence"
	EventReset          = "reset"
	EventShutdown       = "shutdown"
)

// WatchOptions selects what the event stream delivers.
type WatchOptions struct {
	EntityTypes []string
	// LastEventID replays buffered events after this ID. A reset event means
	// the server no longer holds them.
	LastEventID uint64
}

// EventsService streams sync activity over a WebSocket.
type EventsService struct {
	c *Client
}

// Watch subscribes to the event stream and calls fn for each event until ctx
// is done, the server closes the stream or fn returns an error. Events
// delivered twice around a replay are passed to fn once.
func (s *EventsService) Watch(ctx context.Context, opts *WatchOptions, fn func(Event) error) error {
	if opts == nil {
		opts = &WatchOptions{}
	}

	conn, _, err := websocket.Dial(ctx, wsURL(s.c.baseURL)+"/api/v1/events", &websocket.DialOptions{
		HTTPClient: s.c.streamClient(),
		HTTPHeader: map[string][]string{"User-Agent": {userAgent}},
	})
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.CloseNow() //nolint:errcheck // best-effort close on teardown

	sub, err := json.Marshal(map[string]any{
		"type":          "subscribe",
		"last_event_id": opts.LastEventID,
		"entity_types":  opts.EntityTypes,
	})
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	last := opts.LastEventID
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}

		var evt Event
		if err := json.Unmarshal(msg, &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if evt.ID != 0 && evt.ID <= last {
			continue
		}
		if evt.ID > last {
			last = evt.ID
		}

		if err := fn(evt); err != nil {
			conn.Close(websocket.StatusNormalClosure, "") //nolint:errcheck // best-effort
			return err
		}
		if evt.Type == EventShutdown {
			return nil
		}
	}
}

// streamClient is the HTTP client without the request timeout, which would
// cut a long-lived stream.
func (c *Client) streamClient() *http.Client {
	hc := *c.httpClient
	hc.Timeout = 0
	return &hc
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
