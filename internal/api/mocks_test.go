package api_test

import (
	"context"

	"github.com/persistorai/tracksync/internal/models"
)

// mockSync implements api.SyncRunner for testing.
type mockSync struct {
	fullFn    func(ctx context.Context, et models.EntityType) (*models.FullSyncResult, error)
	incFn     func(ctx context.Context, et models.EntityType) (*models.IncrementalResult, error)
	relFn     func(ctx context.Context, playlistID string) (*models.RelationshipResult, error)
	cursorsFn func(ctx context.Context) ([]models.SyncCursor, error)
}

func (m *mockSync) FullSync(ctx context.Context, et models.EntityType) (*models.FullSyncResult, error) {
	return m.fullFn(ctx, et)
}

func (m *mockSync) IncrementalSync(ctx context.Context, et models.EntityType) (*models.IncrementalResult, error) {
	return m.incFn(ctx, et)
}

func (m *mockSync) SyncRelationships(ctx context.Context, playlistID string) (*models.RelationshipResult, error) {
	return m.relFn(ctx, playlistID)
}

func (m *mockSync) Cursors(ctx context.Context) ([]models.SyncCursor, error) {
	return m.cursorsFn(ctx)
}

// mockRecommender implements api.Recommender for testing.
type mockRecommender struct {
	playlistFn func(ctx context.Context, playlistID string, limit int) ([]models.Recommendation, error)
	deepFn     func(ctx context.Context, userID string, limit int) ([]models.Recommendation, error)
	similarFn  func(ctx context.Context, userID string, limit int) ([]models.Recommendation, error)
	pathFn     func(ctx context.Context, fromSong, toSong string, maxDepth int) (*models.SongPath, error)
	statsFn    func(ctx context.Context, userID string) (*models.ListenerStats, error)
}

func (m *mockRecommender) FromPlaylist(ctx context.Context, playlistID string, limit int) ([]models.Recommendation, error) {
	return m.playlistFn(ctx, playlistID, limit)
}

func (m *mockRecommender) Deep(ctx context.Context, userID string, limit int) ([]models.Recommendation, error) {
	return m.deepFn(ctx, userID, limit)
}

func (m *mockRecommender) SimilarListeners(ctx context.Context, userID string, limit int) ([]models.Recommendation, error) {
	return m.similarFn(ctx, userID, limit)
}

func (m *mockRecommender) ShortestPath(ctx context.Context, fromSong, toSong string, maxDepth int) (*models.SongPath, error) {
	return m.pathFn(ctx, fromSong, toSong, maxDepth)
}

func (m *mockRecommender) Stats(ctx context.Context, userID string) (*models.ListenerStats, error) {
	return m.statsFn(ctx, userID)
}

// mockGraph implements api.GraphBrowser for testing.
type mockGraph struct {
	neighborsFn func(ctx context.Context, ref models.NodeRef, et models.EdgeType, dir models.Direction) ([]models.Neighbor, error)
	overviewFn  func(ctx context.Context) (*models.GraphOverview, error)
}

func (m *mockGraph) Neighbors(ctx context.Context, ref models.NodeRef, et models.EdgeType, dir models.Direction) ([]models.Neighbor, error) {
	return m.neighborsFn(ctx, ref, et, dir)
}

func (m *mockGraph) Overview(ctx context.Context) (*models.GraphOverview, error) {
	return m.overviewFn(ctx)
}

// mockSearch implements api.SearchRepository for testing.
type mockSearch struct {
	searchFn       func(ctx context.Context, et models.EntityType, text string, filters map[string]string, limit int) ([]models.SearchHit, error)
	autocompleteFn func(ctx context.Context, et models.EntityType, prefix string, limit int) ([]models.Suggestion, error)
}

func (m *mockSearch) Search(ctx context.Context, et models.EntityType, text string, filters map[string]string, limit int) ([]models.SearchHit, error) {
	return m.searchFn(ctx, et, text, filters, limit)
}

func (m *mockSearch) Autocomplete(ctx context.Context, et models.EntityType, prefix string, limit int) ([]models.Suggestion, error) {
	return m.autocompleteFn(ctx, et, prefix, limit)
}

// mockAuditor implements api.AuditRunner for testing.
type mockAuditor struct {
	auditFn    func(ctx context.Context, et models.EntityType) (*models.AuditReport, error)
	auditAllFn func(ctx context.Context) ([]models.AuditReport, error)
}

func (m *mockAuditor) Audit(ctx context.Context, et models.EntityType) (*models.AuditReport, error) {
	return m.auditFn(ctx, et)
}

func (m *mockAuditor) AuditAll(ctx context.Context) ([]models.AuditReport, error) {
	return m.auditAllFn(ctx)
}

// mockLedger implements api.LedgerRepository for testing.
type mockLedger struct {
	appendFn   func(ctx context.Context, entry models.ChangeLogEntry) (*models.ChangeLogEntry, error)
	readFromFn func(ctx context.Context, et models.EntityType, after int64, limit int) ([]models.ChangeLogEntry, error)
	historyFn  func(ctx context.Context, et models.EntityType, id string) ([]models.ChangeLogEntry, error)
	queryFn    func(ctx context.Context, q models.LedgerQuery) ([]models.ChangeLogEntry, error)
}

func (m *mockLedger) Append(ctx context.Context, entry models.ChangeLogEntry) (*models.ChangeLogEntry, error) {
	return m.appendFn(ctx, entry)
}

func (m *mockLedger) ReadFrom(ctx context.Context, et models.EntityType, after int64, limit int) ([]models.ChangeLogEntry, error) {
	return m.readFromFn(ctx, et, after, limit)
}

func (m *mockLedger) History(ctx context.Context, et models.EntityType, id string) ([]models.ChangeLogEntry, error) {
	return m.historyFn(ctx, et, id)
}

func (m *mockLedger) Query(ctx context.Context, q models.LedgerQuery) ([]models.ChangeLogEntry, error) {
	return m.queryFn(ctx, q)
}

// mockJournal implements api.JournalRepository for testing.
type mockJournal struct {
	queryFn func(ctx context.Context, opts models.JournalQueryOpts) ([]models.JournalEntry, bool, error)
	purgeFn func(ctx context.Context, retentionDays int) (int, error)
}

func (m *mockJournal) Query(ctx context.Context, opts models.JournalQueryOpts) ([]models.JournalEntry, bool, error) {
	return m.queryFn(ctx, opts)
}

func (m *mockJournal) PurgeOldEntries(ctx context.Context, retentionDays int) (int, error) {
	return m.purgeFn(ctx, retentionDays)
}
