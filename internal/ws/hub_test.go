package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal("condition not met before deadline")
}

// fakeClient is a hub client with no connection; tests read its send channel.
func fakeClient(h *Hub) *Client {
	return &Client{hub: h, send: make(chan []byte, clientSendBuffer), log: h.log}
}

func recv(t *testing.T, c *Client) Event {
	t.Helper()

	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var evt Event
		if err := json.Unmarshal(msg, &evt); err != nil {
			t.Fatalf("bad event %s: %v", msg, err)
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	return Event{}
}

// settle waits until Run has taken every pending broadcast, so clients
// registered afterwards only see later events live.
func settle(t *testing.T, h *Hub) {
	t.Helper()
	waitFor(t, func() bool { return len(h.broadcast) == 0 })
}

func startHub(t *testing.T) *Hub {
	t.Helper()

	h := NewHub(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.done
	})

	return h
}

func TestHub_BroadcastFiltersByEntityType(t *testing.T) {
	h := startHub(t)

	all := fakeClient(h)
	songs := fakeClient(h)
	songs.subscribe([]models.EntityType{models.EntitySong})

	h.Register(all)
	h.Register(songs)
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	h.LedgerAppended(models.EntityAlbum, 10)
	h.SyncCompleted(&models.IncrementalResult{EntityType: models.EntitySong, Applied: 3, CursorAfter: 11})

	if evt := recv(t, all); evt.Type != EventLedgerAppended || evt.ID != 1 {
		t.Errorf("first event to all = %+v", evt)
	}
	if evt := recv(t, all); evt.Type != EventSyncCompleted {
		t.Errorf("second event to all = %+v", evt)
	}

	evt := recv(t, songs)
	if evt.Type != EventSyncCompleted || evt.EntityType != models.EntitySong || evt.ID != 2 {
		t.Fatalf("song subscriber got %+v", evt)
	}

	var summary syncSummary
	if err := json.Unmarshal(evt.Data, &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Applied != 3 || summary.CursorAfter != 11 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestHub_ReplayAfterLastEventID(t *testing.T) {
	h := startHub(t)

	h.LedgerAppended(models.EntitySong, 1)
	h.SyncFailed(models.EntityAlbum, errors.New("neo4j down"))
	h.DivergenceDetected(models.DivergenceDetected{Report: models.AuditReport{EntityType: models.EntitySong, Divergence: 4}})
	settle(t, h)

	c := fakeClient(h)
	c.subscribe([]models.EntityType{models.EntitySong})
	h.Register(c)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	h.RequestReplay(c, 1)

	evt := recv(t, c)
	if evt.ID != 3 || evt.Type != EventDivergence {
		t.Errorf("replayed %+v, want divergence event 3", evt)
	}
}

func TestHub_ReplayTooOldSendsReset(t *testing.T) {
	h := startHub(t)
	h.buffer = NewEventBuffer(2, time.Hour)

	for seq := int64(1); seq <= 5; seq++ {
		h.LedgerAppended(models.EntitySong, seq)
	}
	settle(t, h)

	c := fakeClient(h)
	h.Register(c)
	h.RequestReplay(c, 1)

	select {
	case msg := <-c.send:
		var reset ResetMsg
		if err := json.Unmarshal(msg, &reset); err != nil || reset.Type != "reset" {
			t.Errorf("got %s, want reset", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reset received")
	}
}

func TestHub_OversizedEventDropped(t *testing.T) {
	h := startHub(t)

	c := fakeClient(h)
	h.Register(c)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	big := make([]byte, maxBroadcastPayload)
	for i := range big {
		big[i] = 'x'
	}
	h.Publish(EventSyncFailed, models.EntitySong, syncFailedData{Error: string(big)})
	h.LedgerAppended(models.EntitySong, 9)

	if evt := recv(t, c); evt.Type != EventLedgerAppended {
		t.Errorf("got %+v, want the ledger event only", evt)
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	h := NewHub(testLogger())
	go h.Run(context.Background())

	c := fakeClient(h)
	h.Register(c)
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	go func() {
		for range c.send {
		}
	}()

	h.Shutdown()
	h.Shutdown()

	if h.ClientCount() != 0 {
		t.Errorf("ClientCount = %d after shutdown", h.ClientCount())
	}
}

func TestClient_SubscribeIgnoresUnknownTypes(t *testing.T) {
	c := fakeClient(NewHub(testLogger()))

	c.subscribe([]models.EntityType{"podcast"})
	if !c.wants(models.EntityAlbum) {
		t.Error("all-unknown subscription should receive everything")
	}

	c.subscribe([]models.EntityType{models.EntityUser, "podcast"})
	if c.wants(models.EntityAlbum) || !c.wants(models.EntityUser) {
		t.Error("filter not applied")
	}
}

func TestEventStream_EndToEnd(t *testing.T) {
	h := startHub(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(h, conn)
		h.Register(client)

		go client.WritePump(r.Context())
		client.ReadPump(r.Context())
	}))
	defer srv.Close()

	h.LedgerAppended(models.EntityAlbum, 1)
	h.LedgerAppended(models.EntitySong, 2)
	h.LedgerAppended(models.EntitySong, 3)
	settle(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow() //nolint:errcheck

	sub, _ := json.Marshal(SubscribeMsg{Type: "subscribe", LastEventID: 1, EntityTypes: []models.EntityType{models.EntitySong}})
	if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	read := func() Event {
		t.Helper()
		_, msg, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var evt Event
		if err := json.Unmarshal(msg, &evt); err != nil {
			t.Fatalf("bad event %s: %v", msg, err)
		}
		return evt
	}

	if evt := read(); evt.ID != 2 {
		t.Errorf("first replayed id = %d, want 2", evt.ID)
	}
	if evt := read(); evt.ID != 3 {
		t.Errorf("second replayed id = %d, want 3", evt.ID)
	}

	h.LedgerAppended(models.EntityAlbum, 4)
	h.LedgerAppended(models.EntitySong, 5)

	if evt := read(); evt.ID != 5 || evt.EntityType != models.EntitySong {
		t.Errorf("live event = %+v, want song id 5", evt)
	}
}
