package mirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/tracksync/internal/domain"
	"github.com/persistorai/tracksync/internal/memstore"
	"github.com/persistorai/tracksync/internal/models"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func song(id, name, artist, genre, albumID string) *models.Song {
	return &models.Song{ID: id, Name: name, Artist: artist, Genre: genre, AlbumID: albumID}
}

func TestProject_Song(t *testing.T) {
	g := project(song("s1", "Blue", "Miles Davis", "Jazz", "a1"))

	if g.node.Ref() != (models.NodeRef{Type: models.NodeSong, ID: "s1"}) {
		t.Errorf("node = %v", g.node.Ref())
	}

	if len(g.derived) != 2 {
		t.Fatalf("derived = %+v", g.derived)
	}

	edges := g.edges[edgeSlot{typ: models.EdgeBelongsTo, dir: models.Outgoing}]
	if len(edges) != 3 {
		t.Fatalf("belongs_to edges = %+v", edges)
	}

	if edges[0].To != (models.NodeRef{Type: models.NodeAlbum, ID: "a1"}) {
		t.Errorf("first edge target = %v", edges[0].To)
	}
}

func TestProject_EmptySlotsPresent(t *testing.T) {
	g := project(&models.Playlist{ID: "p1", Name: "Mix"})

	for _, slot := range []edgeSlot{
		{typ: models.EdgeContains, dir: models.Outgoing},
		{typ: models.EdgeCreated, dir: models.Incoming},
	} {
		if _, ok := g.edges[slot]; !ok {
			t.Errorf("slot %v missing", slot)
		}
	}
}

func TestDocument_DropsEmptyFields(t *testing.T) {
	doc := Document(&models.Album{ID: "a1", Name: "Kind of Blue", ReleaseYear: 1959})

	if doc.Name != "Kind of Blue" || doc.Fields["release_year"] != "1959" {
		t.Errorf("doc = %+v", doc)
	}

	if _, ok := doc.Fields["artist_name"]; ok {
		t.Error("empty artist_name kept")
	}
}

func TestGraphMirror_ReconcilePlaylist(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewGraph()
	m := NewGraphMirror(store, testLogger())

	for _, s := range []*models.Song{song("s1", "A", "", "", ""), song("s2", "B", "", "", ""), song("s3", "C", "", "", "")} {
		if err := m.Upsert(ctx, s); err != nil {
			t.Fatalf("Upsert song: %v", err)
		}
	}

	delta, err := m.Reconcile(ctx, &models.Playlist{ID: "p1", Name: "Mix", UserID: "u1", SongIDs: []string{"s1", "s2", "s9"}})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if delta.Added != 2 || len(delta.Missing) != 2 {
		t.Errorf("delta = %+v", delta)
	}

	delta, err = m.Reconcile(ctx, &models.Playlist{ID: "p1", Name: "Mix", SongIDs: []string{"s2", "s3"}})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if delta.Added != 1 || delta.Removed != 1 || delta.Unchanged != 1 {
		t.Errorf("delta = %+v", delta)
	}

	got, _ := store.Neighbors(ctx, models.NodeRef{Type: models.NodePlaylist, ID: "p1"}, models.EdgeContains, models.Outgoing)
	if len(got) != 2 || got[0].Node.ExternalID != "s2" || got[1].Node.ExternalID != "s3" {
		t.Errorf("contains = %+v", got)
	}
}

func TestGraphMirror_ListenWeights(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewGraph()
	m := NewGraphMirror(store, testLogger())

	if err := m.Upsert(ctx, song("s1", "A", "", "", "")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	user := &models.User{ID: "u1", Username: "ann", Listens: []models.Listen{{SongID: "s1", Count: 3}}}
	if _, err := m.Reconcile(ctx, user); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	user.Listens[0].Count = 7

	delta, err := m.Reconcile(ctx, user)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if delta.Added != 1 || delta.Unchanged != 0 {
		t.Errorf("weight change not rewritten: %+v", delta)
	}

	got, _ := store.Neighbors(ctx, models.NodeRef{Type: models.NodeUser, ID: "u1"}, models.EdgeListenedTo, models.Outgoing)
	if len(got) != 1 || got[0].Weight != 7 {
		t.Errorf("listened_to = %+v", got)
	}
}

func TestGraphMirror_DeleteDropsOrphanedDerivedNodes(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewGraph()
	m := NewGraphMirror(store, testLogger())

	_ = m.Upsert(ctx, song("s1", "A", "Miles", "Jazz", ""))
	_ = m.Upsert(ctx, song("s2", "B", "Miles", "Soul", ""))

	if err := m.Delete(ctx, models.EntitySong, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if ok, _ := store.NodeExists(ctx, models.NodeRef{Type: models.NodeGenre, ID: models.DerivedKey("Jazz")}); ok {
		t.Error("orphaned genre survived")
	}

	if ok, _ := store.NodeExists(ctx, models.NodeRef{Type: models.NodeArtist, ID: models.DerivedKey("Miles")}); !ok {
		t.Error("shared artist removed")
	}
}

func containsOf(t *testing.T, store *memstore.Graph, playlistID string) []string {
	t.Helper()

	got, err := store.Neighbors(context.Background(), models.NodeRef{Type: models.NodePlaylist, ID: playlistID}, models.EdgeContains, models.Outgoing)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}

	ids := make([]string, len(got))
	for i, n := range got {
		ids[i] = n.Node.ExternalID
	}

	return ids
}

func TestGraphMirror_DeferredEdgeWrittenWhenEndpointArrives(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewGraph()
	m := NewGraphMirror(store, testLogger())

	if _, err := m.Reconcile(ctx, &models.Playlist{ID: "p1", Name: "Mix", SongIDs: []string{"s1", "s2"}}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if got := containsOf(t, store, "p1"); len(got) != 0 {
		t.Fatalf("contains before songs = %v", got)
	}

	delta, err := m.Reconcile(ctx, song("s1", "A", "", "", ""))
	if err != nil {
		t.Fatalf("Reconcile song: %v", err)
	}

	if delta.Added != 1 {
		t.Errorf("song delta = %+v, want the replayed edge counted", delta)
	}

	if got := containsOf(t, store, "p1"); len(got) != 1 || got[0] != "s1" {
		t.Errorf("contains = %v, want [s1]", got)
	}

	if n := store.DeferredCount(); n != 1 {
		t.Errorf("deferred = %d, want 1 (s2)", n)
	}
}

func TestGraphMirror_StaleDeferralNotReplayed(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewGraph()
	m := NewGraphMirror(store, testLogger())

	_, _ = m.Reconcile(ctx, &models.Playlist{ID: "p1", Name: "Mix", SongIDs: []string{"s9"}})
	_, _ = m.Reconcile(ctx, &models.Playlist{ID: "p1", Name: "Mix"})

	if err := m.Upsert(ctx, song("s9", "Z", "", "", "")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if got := containsOf(t, store, "p1"); len(got) != 0 {
		t.Errorf("contains = %v, want none", got)
	}
}

func TestGraphMirror_DeleteKeepsForeignEdgesForRecreation(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewGraph()
	m := NewGraphMirror(store, testLogger())

	_ = m.Upsert(ctx, song("s1", "A", "Miles", "Jazz", ""))
	_ = m.Upsert(ctx, &models.Playlist{ID: "p1", Name: "Mix", SongIDs: []string{"s1"}})
	_ = m.Upsert(ctx, &models.User{ID: "u1", Username: "ann", Listens: []models.Listen{{SongID: "s1", Count: 3}}})

	if err := m.Delete(ctx, models.EntitySong, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if got := containsOf(t, store, "p1"); len(got) != 0 {
		t.Fatalf("contains after delete = %v", got)
	}

	if err := m.Upsert(ctx, song("s1", "A", "Miles", "Jazz", "")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if got := containsOf(t, store, "p1"); len(got) != 1 || got[0] != "s1" {
		t.Errorf("contains after re-create = %v, want [s1]", got)
	}

	listens, _ := store.Neighbors(ctx, models.NodeRef{Type: models.NodeUser, ID: "u1"}, models.EdgeListenedTo, models.Outgoing)
	if len(listens) != 1 || listens[0].Weight != 3 {
		t.Errorf("listened_to after re-create = %+v, want weight 3", listens)
	}

	if n := store.DeferredCount(); n != 0 {
		t.Errorf("deferred = %d, want 0", n)
	}
}

func TestGraphMirror_DeleteOwnerClearsItsDeferrals(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewGraph()
	m := NewGraphMirror(store, testLogger())

	_ = m.Upsert(ctx, &models.Playlist{ID: "p1", Name: "Mix", UserID: "u1", SongIDs: []string{"s1"}})

	if n := store.DeferredCount(); n != 2 {
		t.Fatalf("deferred = %d, want CONTAINS and CREATED", n)
	}

	if err := m.Delete(ctx, models.EntityPlaylist, "p1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if n := store.DeferredCount(); n != 0 {
		t.Errorf("deferred after owner delete = %d, want 0", n)
	}
}

func TestGraphMirror_Prune(t *testing.T) {
	ctx := context.Background()
	m := NewGraphMirror(memstore.NewGraph(), testLogger())

	_ = m.BulkUpsert(ctx, models.EntitySong, []models.Entity{song("s1", "A", "", "", ""), song("s2", "B", "", "", "")})

	n, err := m.Prune(ctx, models.EntitySong, map[string]struct{}{"s1": {}})
	if err != nil || n != 1 {
		t.Fatalf("Prune = %d, %v", n, err)
	}

	if c, _ := m.Count(ctx, models.EntitySong); c != 1 {
		t.Errorf("count = %d", c)
	}
}

func TestSearchMirror_FanOutMerge(t *testing.T) {
	ctx := context.Background()
	idx := memstore.NewSearch()
	m := NewSearchMirror(idx, testLogger())

	_ = m.Upsert(ctx, &models.Playlist{ID: "p1", Name: "blue"})
	_ = m.Upsert(ctx, &models.Album{ID: "a1", Name: "blue"})
	_ = m.Upsert(ctx, song("s2", "blue", "", "", ""))
	_ = m.Upsert(ctx, song("s1", "blue", "", "", ""))

	hits, err := m.Search(ctx, models.EntityAll, "blue", nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	want := []string{"song:s1", "song:s2", "album:a1", "playlist:p1"}
	if len(hits) != len(want) {
		t.Fatalf("hits = %+v", hits)
	}

	for i, h := range hits {
		if got := string(h.EntityType) + ":" + h.EntityID; got != want[i] {
			t.Errorf("hit %d = %s, want %s", i, got, want[i])
		}
	}

	hits, _ = m.Search(ctx, models.EntityAll, "blue", nil, 2)
	if len(hits) != 2 {
		t.Errorf("limit not applied: %d hits", len(hits))
	}
}

func TestSearchMirror_AutocompleteShortPrefix(t *testing.T) {
	m := NewSearchMirror(memstore.NewSearch(), testLogger())
	_ = m.Upsert(context.Background(), song("s1", "Blue", "", "", ""))

	got, err := m.Autocomplete(context.Background(), models.EntitySong, "b", 10)
	if err != nil || len(got) != 0 {
		t.Errorf("Autocomplete(b) = %v, %v", got, err)
	}

	got, _ = m.Autocomplete(context.Background(), models.EntitySong, "bl", 10)
	if len(got) != 1 || got[0].EntityID != "s1" {
		t.Errorf("Autocomplete(bl) = %v", got)
	}
}

// failingMirror fails every call with err.
type failingMirror struct {
	domain.Mirror
	err   error
	calls int
}

func (f *failingMirror) Name() string { return "search" }

func (f *failingMirror) Upsert(context.Context, models.Entity) error {
	f.calls++
	return f.err
}

func TestGuarded_OpensOnTransientFailures(t *testing.T) {
	inner := &failingMirror{err: models.Transient("index", errors.New("refused"))}
	g := NewGuarded(inner, BreakerConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute, HalfOpenRequests: 1}, testLogger())
	ctx := context.Background()
	s := song("s1", "A", "", "", "")

	for range 2 {
		if err := g.Upsert(ctx, s); !models.IsTransient(err) {
			t.Fatalf("err = %v", err)
		}
	}

	err := g.Upsert(ctx, s)
	if !models.IsTransient(err) {
		t.Fatalf("open breaker err = %v, want transient", err)
	}

	if inner.calls != 2 {
		t.Errorf("calls = %d, open breaker should short-circuit", inner.calls)
	}
}

func TestGuarded_PermanentErrorsDoNotTrip(t *testing.T) {
	inner := &failingMirror{err: errors.New("bad document")}
	g := NewGuarded(inner, BreakerConfig{ConsecutiveFailures: 1, OpenTimeout: time.Minute, HalfOpenRequests: 1}, testLogger())

	for range 3 {
		_ = g.Upsert(context.Background(), song("s1", "A", "", "", ""))
	}

	if inner.calls != 3 {
		t.Errorf("calls = %d, breaker tripped on permanent errors", inner.calls)
	}
}

func TestSortHits(t *testing.T) {
	hits := []models.SearchHit{
		{EntityType: models.EntityUser, EntityID: "u1", Score: 2},
		{EntityType: models.EntitySong, EntityID: "s2", Score: 1},
		{EntityType: models.EntitySong, EntityID: "s1", Score: 1},
		{EntityType: models.EntityAlbum, EntityID: "a1", Score: 1},
	}

	SortHits(hits)

	want := []string{"u1", "s1", "s2", "a1"}
	for i, h := range hits {
		if h.EntityID != want[i] {
			t.Errorf("hits[%d] = %s, want %s", i, h.EntityID, want[i])
		}
	}
}
