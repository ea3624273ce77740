package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/persistorai/tracksync/internal/models"
)

func TestUpsertEdgeQuery(t *testing.T) {
	q, err := upsertEdgeQuery(models.GraphEdge{
		Type: models.EdgeContains,
		From: models.NodeRef{Type: models.NodePlaylist, ID: "p1"},
		To:   models.NodeRef{Type: models.NodeSong, ID: "s1"},
	})
	if err != nil {
		t.Fatalf("upsertEdgeQuery: %v", err)
	}

	for _, want := range []string{"(a:Playlist {external_id: $from})", "(b:Song {external_id: $to})", "[r:CONTAINS]"} {
		if !strings.Contains(q, want) {
			t.Errorf("query missing %q:\n%s", want, q)
		}
	}
}

func TestUpsertEdgeQuery_RejectsUnknownTypes(t *testing.T) {
	tests := []struct {
		name string
		edge models.GraphEdge
	}{
		{"edge type", models.GraphEdge{
			Type: "DROP", From: models.NodeRef{Type: models.NodeSong}, To: models.NodeRef{Type: models.NodeAlbum},
		}},
		{"label", models.GraphEdge{
			Type: models.EdgeBelongsTo, From: models.NodeRef{Type: "Song) DETACH DELETE (x"}, To: models.NodeRef{Type: models.NodeAlbum},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := upsertEdgeQuery(tt.edge); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNeighborsQuery_Direction(t *testing.T) {
	out, err := neighborsQuery(models.NodeSong, models.EdgeBelongsTo, models.Outgoing)
	if err != nil {
		t.Fatalf("neighborsQuery: %v", err)
	}

	if !strings.Contains(out, "-[r:BELONGS_TO]->(n)") {
		t.Errorf("outgoing query = %s", out)
	}

	in, err := neighborsQuery(models.NodeArtist, models.EdgeBelongsTo, models.Incoming)
	if err != nil {
		t.Fatalf("neighborsQuery: %v", err)
	}

	if !strings.Contains(in, "(s:Artist {external_id: $id})<-[r:BELONGS_TO]-(n)") {
		t.Errorf("incoming query = %s", in)
	}
}

func TestNodeProps_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	node := models.GraphNode{
		Type:       models.NodeSong,
		ExternalID: "s1",
		Attributes: map[string]any{"name": "Blue Train", "external_id": "spoof", "skip": nil},
		UpdatedAt:  ts,
	}

	props := nodeProps(node)
	if props[propID] != "s1" {
		t.Errorf("external_id = %v, want s1", props[propID])
	}

	if _, ok := props["skip"]; ok {
		t.Error("nil attribute written as property")
	}

	got := nodeFromProps(models.NodeSong, props)
	if got.ExternalID != "s1" || !got.UpdatedAt.Equal(ts) {
		t.Errorf("nodeFromProps = %+v", got)
	}

	if len(got.Attributes) != 1 || got.Attributes["name"] != "Blue Train" {
		t.Errorf("attributes = %v, want only name", got.Attributes)
	}
}

func TestUpdatedAt_DefaultsToNow(t *testing.T) {
	before := time.Now().Add(-time.Second)
	if got := updatedAt(time.Time{}); got.Before(before) {
		t.Errorf("updatedAt(zero) = %v, want about now", got)
	}
}

func TestClassify(t *testing.T) {
	if classify("op", nil) != nil {
		t.Error("classify(nil) != nil")
	}

	err := classify("reading", fmt.Errorf("wrapped: %w", context.DeadlineExceeded))
	if !models.IsTransient(err) {
		t.Errorf("deadline not transient: %v", err)
	}

	err = classify("reading", errors.New("syntax error"))
	if models.IsTransient(err) {
		t.Errorf("syntax error classified transient: %v", err)
	}
}

func TestDeferredProps_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	user := models.NodeRef{Type: models.NodeUser, ID: "u1"}
	song := models.NodeRef{Type: models.NodeSong, ID: "s1"}
	w := 3.0

	in := models.DeferredEdge{
		Owner: user,
		Edge:  models.GraphEdge{Type: models.EdgeListenedTo, From: user, To: song, Weight: &w, UpdatedAt: ts},
	}

	props := deferredProps(in)
	if props["awaiting_type"] != "Song" || props["awaiting_id"] != "s1" {
		t.Errorf("awaiting = %v/%v, want Song/s1", props["awaiting_type"], props["awaiting_id"])
	}

	if props["key"] != "LISTENED_TO User:u1->Song:s1" {
		t.Errorf("key = %v", props["key"])
	}

	out := deferredFromProps(props)
	if out.Owner != user || out.Edge.From != user || out.Edge.To != song || !out.Edge.UpdatedAt.Equal(ts) {
		t.Errorf("deferredFromProps = %+v", out)
	}

	if out.Edge.Weight == nil || *out.Edge.Weight != 3 {
		t.Errorf("weight = %v, want 3", out.Edge.Weight)
	}

	unweighted := deferredProps(models.DeferredEdge{
		Owner: models.NodeRef{Type: models.NodePlaylist, ID: "p1"},
		Edge:  models.GraphEdge{Type: models.EdgeContains, From: models.NodeRef{Type: models.NodePlaylist, ID: "p1"}, To: song},
	})
	if _, ok := unweighted["weight"]; ok {
		t.Error("nil weight written as property")
	}

	if got := deferredFromProps(unweighted); got.Edge.Weight != nil {
		t.Errorf("weight = %v, want nil", *got.Edge.Weight)
	}
}
