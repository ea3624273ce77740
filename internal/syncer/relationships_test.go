package syncer

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/persistorai/tracksync/internal/models"
)

func containsEdges(h *harness) []string {
	_, edges := h.graph.Snapshot()

	var out []string
	for _, e := range edges {
		if len(e) > 8 && e[:8] == "CONTAINS" {
			out = append(out, e)
		}
	}

	return out
}

func TestSyncRelationships_SetDifference(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, harnessOpts{})

	h.put(models.EntitySong, "S1", songPayload("So What", "Miles Davis", "jazz"))
	h.put(models.EntitySong, "S2", songPayload("Naima", "John Coltrane", "jazz"))
	h.put(models.EntityPlaylist, "P1", map[string]any{"playlistname": "late night", "song_ID": []any{"S1", "S2"}})

	res, err := h.orch.SyncRelationships(ctx, "P1")
	if err != nil {
		t.Fatalf("SyncRelationships: %v", err)
	}

	want := []string{
		"CONTAINS Playlist:P1->Song:S1 0",
		"CONTAINS Playlist:P1->Song:S2 0",
	}
	if got := containsEdges(h); !reflect.DeepEqual(got, want) {
		t.Fatalf("edges = %v, want %v", got, want)
	}

	if res.Added < 2 || res.Removed != 0 || len(res.Unresolved) != 0 {
		t.Errorf("first run = %+v", res)
	}

	// S1 leaves the playlist, S9 joins but was never written canonically.
	h.put(models.EntityPlaylist, "P1", map[string]any{"playlistname": "late night", "song_ID": []any{"S2", "S9"}})

	res, err = h.orch.SyncRelationships(ctx, "P1")
	if err != nil {
		t.Fatalf("SyncRelationships: %v", err)
	}

	if got := containsEdges(h); !reflect.DeepEqual(got, []string{"CONTAINS Playlist:P1->Song:S2 0"}) {
		t.Errorf("edges after edit = %v", got)
	}

	if res.Removed != 1 {
		t.Errorf("removed = %d, want 1", res.Removed)
	}

	if !slices.Equal(res.Unresolved, []string{"S9"}) {
		t.Errorf("unresolved = %v, want [S9]", res.Unresolved)
	}

	before := h.state()

	res, err = h.orch.SyncRelationships(ctx, "P1")
	if err != nil {
		t.Fatalf("SyncRelationships: %v", err)
	}

	if res.Added != 0 || res.Removed != 0 || res.Unchanged == 0 {
		t.Errorf("rerun = %+v, want only unchanged edges", res)
	}

	if after := h.state(); !reflect.DeepEqual(before, after) {
		t.Error("rerun changed the graph")
	}
}

func TestSyncRelationships_UnknownPlaylist(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	if _, err := h.orch.SyncRelationships(context.Background(), "ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSyncRelationships_WaitsForSongSync(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, harnessOpts{})

	h.put(models.EntitySong, "S1", songPayload("So What", "Miles Davis", "jazz"))
	h.put(models.EntityPlaylist, "P1", map[string]any{"playlistname": "late night", "song_ID": []any{"S1"}})

	release, err := h.leases.Acquire(ctx, models.EntitySong)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if _, err := h.orch.SyncRelationships(ctx, "P1"); !errors.Is(err, models.ErrLeaseHeld) {
		t.Fatalf("err = %v, want ErrLeaseHeld", err)
	}

	if nodes, _ := h.graph.Snapshot(); len(nodes) != 0 {
		t.Errorf("graph written while song sync held the lease: %v", nodes)
	}

	release()

	if _, err := h.orch.SyncRelationships(ctx, "P1"); err != nil {
		t.Fatalf("SyncRelationships after release: %v", err)
	}

	// Both leases are free again.
	for _, et := range []models.EntityType{models.EntityPlaylist, models.EntitySong} {
		r, err := h.leases.Acquire(ctx, et)
		if err != nil {
			t.Fatalf("Acquire %s: %v", et, err)
		}
		r()
	}
}
