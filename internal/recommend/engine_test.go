package recommend_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/memstore"
	"github.com/persistorai/tracksync/internal/mirror"
	"github.com/persistorai/tracksync/internal/models"
	"github.com/persistorai/tracksync/internal/recommend"
	"github.com/persistorai/tracksync/internal/syncer"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func songIDs(recs []models.Recommendation) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.SongID
	}

	return out
}

func TestFromPlaylist_CoOccurrence(t *testing.T) {
	ctx := context.Background()
	log := testLogger()
	canonical := memstore.NewCanonical()
	graph := memstore.NewGraph()

	for _, id := range []string{"S1", "S2", "S3"} {
		canonical.Put(models.CanonicalRecord{EntityType: models.EntitySong, EntityID: id, Payload: map[string]any{"name": "song " + id}})
	}

	canonical.Put(models.CanonicalRecord{EntityType: models.EntityPlaylist, EntityID: "P1", Payload: map[string]any{
		"playlistname": "one", "song_ID": []any{"S1", "S2"},
	}})
	canonical.Put(models.CanonicalRecord{EntityType: models.EntityPlaylist, EntityID: "P2", Payload: map[string]any{
		"playlistname": "two", "song_ID": []any{"S2", "S3"},
	}})

	orch := syncer.New(syncer.Deps{
		Canonical: canonical,
		Ledger:    memstore.NewLedger(),
		Cursors:   memstore.NewCursors(),
		Leases:    memstore.NewLeaser(),
		Graph:     mirror.NewGraphMirror(graph, log),
		Search:    mirror.NewSearchMirror(memstore.NewSearch(), log),
		Log:       log,
	}, syncer.Config{})

	for _, id := range []string{"P1", "P2"} {
		if _, err := orch.SyncRelationships(ctx, id); err != nil {
			t.Fatalf("SyncRelationships(%s): %v", id, err)
		}
	}

	_, edges := graph.Snapshot()
	want := []string{
		"CONTAINS Playlist:P1->Song:S1 0",
		"CONTAINS Playlist:P1->Song:S2 0",
		"CONTAINS Playlist:P2->Song:S2 0",
		"CONTAINS Playlist:P2->Song:S3 0",
	}
	if !reflect.DeepEqual(edges, want) {
		t.Errorf("edges = %v, want %v", edges, want)
	}

	engine := recommend.New(graph, recommend.DefaultWeights(), log)

	recs, err := engine.FromPlaylist(ctx, "P1", 5)
	if err != nil {
		t.Fatalf("FromPlaylist: %v", err)
	}

	if got := songIDs(recs); !reflect.DeepEqual(got, []string{"S3"}) {
		t.Errorf("recommendations = %v, want [S3]", got)
	}

	if recs[0].Name != "song S3" || recs[0].Score != 1 {
		t.Errorf("recommendation = %+v", recs[0])
	}

	again, _ := engine.FromPlaylist(ctx, "P1", 5)
	if !reflect.DeepEqual(recs, again) {
		t.Error("repeated call returned different ranking")
	}
}

// buildGraph projects entities straight into an in-memory graph.
func buildGraph(t *testing.T, ents ...models.Entity) *memstore.Graph {
	t.Helper()

	graph := memstore.NewGraph()
	m := mirror.NewGraphMirror(graph, testLogger())

	for _, ent := range ents {
		if err := m.Upsert(context.Background(), ent); err != nil {
			t.Fatalf("Upsert %s: %v", ent.EntityID(), err)
		}
	}

	return graph
}

func TestFromPlaylist_RankingAndLimit(t *testing.T) {
	graph := buildGraph(t,
		&models.Song{ID: "a", Name: "a"}, &models.Song{ID: "b", Name: "b"},
		&models.Song{ID: "c", Name: "c"}, &models.Song{ID: "d", Name: "d"},
		&models.Playlist{ID: "root", Name: "root", SongIDs: []string{"a"}},
		&models.Playlist{ID: "p1", Name: "p1", SongIDs: []string{"a", "b", "c"}},
		&models.Playlist{ID: "p2", Name: "p2", SongIDs: []string{"a", "c", "d"}},
	)
	engine := recommend.New(graph, recommend.DefaultWeights(), testLogger())

	recs, err := engine.FromPlaylist(context.Background(), "root", 10)
	if err != nil {
		t.Fatalf("FromPlaylist: %v", err)
	}

	if got := songIDs(recs); !reflect.DeepEqual(got, []string{"c", "b", "d"}) {
		t.Errorf("ranking = %v", got)
	}

	recs, _ = engine.FromPlaylist(context.Background(), "root", 1)
	if len(recs) != 1 || recs[0].SongID != "c" {
		t.Errorf("limited = %v", songIDs(recs))
	}
}

func TestFromPlaylist_EmptyAndNotFound(t *testing.T) {
	graph := buildGraph(t, &models.Playlist{ID: "empty", Name: "empty"})
	engine := recommend.New(graph, recommend.DefaultWeights(), testLogger())

	recs, err := engine.FromPlaylist(context.Background(), "empty", 5)
	if err != nil || len(recs) != 0 {
		t.Errorf("empty playlist = %v, %v", recs, err)
	}

	if _, err := engine.FromPlaylist(context.Background(), "ghost", 5); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeep_WeightedScore(t *testing.T) {
	graph := buildGraph(t,
		&models.Song{ID: "s1", Name: "s1", Artist: "Miles", Genre: "Jazz"},
		&models.Song{ID: "s2", Name: "s2", Artist: "Miles", Genre: "Jazz"},
		&models.Song{ID: "s3", Name: "s3", Artist: "Nina", Genre: "Jazz"},
		&models.Song{ID: "s4", Name: "s4", Artist: "Nina", Genre: "Soul"},
		&models.Song{ID: "s5", Name: "s5", Artist: "Other", Genre: "Rock"},
		&models.User{ID: "u1", Username: "ann", Listens: []models.Listen{{SongID: "s1", Count: 3}}},
	)
	w := recommend.DefaultWeights()
	engine := recommend.New(graph, w, testLogger())

	recs, err := engine.Deep(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("Deep: %v", err)
	}

	if got := songIDs(recs); !reflect.DeepEqual(got, []string{"s2", "s3"}) {
		t.Fatalf("recommendations = %v", got)
	}

	listen := w.Listen * math.Log1p(3)
	if want := w.Genre + w.Artist + listen; math.Abs(recs[0].Score-want) > 1e-9 {
		t.Errorf("s2 score = %v, want %v", recs[0].Score, want)
	}

	if want := w.Genre + listen; math.Abs(recs[1].Score-want) > 1e-9 {
		t.Errorf("s3 score = %v, want %v", recs[1].Score, want)
	}
}

func TestDeep_ExcludesListenedAndTiesById(t *testing.T) {
	graph := buildGraph(t,
		&models.Song{ID: "s1", Name: "s1", Genre: "Pop"},
		&models.Song{ID: "s2", Name: "s2", Genre: "Pop"},
		&models.Song{ID: "s3", Name: "s3", Genre: "Pop"},
		&models.Song{ID: "s0", Name: "s0", Genre: "Pop"},
		&models.User{ID: "u1", Username: "ann", Listens: []models.Listen{{SongID: "s1", Count: 1}, {SongID: "s2", Count: 1}}},
	)
	engine := recommend.New(graph, recommend.DefaultWeights(), testLogger())

	recs, err := engine.Deep(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("Deep: %v", err)
	}

	if got := songIDs(recs); !reflect.DeepEqual(got, []string{"s0", "s3"}) {
		t.Errorf("recommendations = %v", got)
	}
}

func TestDeep_NotFoundAndNoHistory(t *testing.T) {
	graph := buildGraph(t, &models.User{ID: "u1", Username: "ann"})
	engine := recommend.New(graph, recommend.DefaultWeights(), testLogger())

	if _, err := engine.Deep(context.Background(), "ghost", 5); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	recs, err := engine.Deep(context.Background(), "u1", 5)
	if err != nil || len(recs) != 0 {
		t.Errorf("no history = %v, %v", recs, err)
	}
}

func TestWithMaxFanOut(t *testing.T) {
	graph := buildGraph(t,
		&models.Song{ID: "a", Name: "a"}, &models.Song{ID: "b", Name: "b"}, &models.Song{ID: "c", Name: "c"},
		&models.Playlist{ID: "root", Name: "root", SongIDs: []string{"a"}},
		&models.Playlist{ID: "p1", Name: "p1", SongIDs: []string{"a", "b", "c"}},
	)
	engine := recommend.New(graph, recommend.DefaultWeights(), testLogger(), recommend.WithMaxFanOut(2))

	recs, err := engine.FromPlaylist(context.Background(), "root", 10)
	if err != nil {
		t.Fatalf("FromPlaylist: %v", err)
	}

	if got := songIDs(recs); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("capped = %v", got)
	}
}

func TestFromPlaylist_CapDoesNotLeakOwnSongs(t *testing.T) {
	graph := buildGraph(t,
		&models.Song{ID: "a", Name: "a"}, &models.Song{ID: "b", Name: "b"},
		&models.Song{ID: "m", Name: "m"}, &models.Song{ID: "n", Name: "n"},
		&models.Playlist{ID: "root", Name: "root", SongIDs: []string{"a", "m", "n"}},
		&models.Playlist{ID: "p1", Name: "p1", SongIDs: []string{"a", "b"}},
		&models.Playlist{ID: "p2", Name: "p2", SongIDs: []string{"a", "n"}},
	)
	engine := recommend.New(graph, recommend.DefaultWeights(), testLogger(), recommend.WithMaxFanOut(2))

	recs, err := engine.FromPlaylist(context.Background(), "root", 10)
	if err != nil {
		t.Fatalf("FromPlaylist: %v", err)
	}

	if got := songIDs(recs); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("recommendations = %v, want [b]", got)
	}
}

func TestDeep_CapDoesNotLeakHeardSongs(t *testing.T) {
	graph := buildGraph(t,
		&models.Song{ID: "a", Name: "a", Genre: "Folk"},
		&models.Song{ID: "b", Name: "b", Genre: "Soul"},
		&models.Song{ID: "c", Name: "c", Genre: "Soul"},
		&models.Song{ID: "d", Name: "d", Genre: "Folk"},
		&models.User{ID: "u1", Username: "ann", Listens: []models.Listen{
			{SongID: "a", Count: 1}, {SongID: "b", Count: 1}, {SongID: "c", Count: 1},
		}},
	)
	engine := recommend.New(graph, recommend.DefaultWeights(), testLogger(), recommend.WithMaxFanOut(2))

	recs, err := engine.Deep(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("Deep: %v", err)
	}

	if got := songIDs(recs); !reflect.DeepEqual(got, []string{"d"}) {
		t.Errorf("recommendations = %v, want [d]", got)
	}
}
