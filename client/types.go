package client

import "time"

// Entity types accepted by the sync, search, audit and ledger endpoints.
const (
	EntitySong     = "song"
	EntityAlbum    = "album"
	EntityPlaylist = "playlist"
	EntityUser     = "user"
)

// Ledger operations.
const (
	OpCreate = "CREATE"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// ReadyResponse is returned by the readiness endpoint. Checks maps each
// backend to "ok", "degraded" or "error".
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// SkippedEntry is a record a sync could not apply.
type SkippedEntry struct {
	Sequence int64  `json:"sequence,omitempty"`
	EntityID string `json:"entity_id"`
	Reason   string `json:"reason"`
}

// FullSyncResult summarizes a full sync of one entity type.
type FullSyncResult struct {
	EntityType string         `json:"entity_type"`
	Migrated   int            `json:"migrated"`
	Skipped    []SkippedEntry `json:"skipped"`
	Pruned     map[string]int `json:"pruned"`
	Cursor     int64          `json:"cursor"`
	ElapsedMS  int64          `json:"elapsed_ms"`
}

// IncrementalResult summarizes an incremental sync of one entity type.
type IncrementalResult struct {
	EntityType    string         `json:"entity_type"`
	Applied       int            `json:"applied"`
	Skipped       int            `json:"skipped"`
	Failed        int            `json:"failed"`
	Batches       int            `json:"batches"`
	CursorBefore  int64          `json:"cursor_before"`
	CursorAfter   int64          `json:"cursor_after"`
	SkippedDetail []SkippedEntry `json:"skipped_detail,omitempty"`
	ElapsedMS     int64          `json:"elapsed_ms"`
}

// SyncCursor is the last ledger sequence a mirror applied for an entity type.
type SyncCursor struct {
	Mirror              string    `json:"mirror"`
	EntityType          string    `json:"entity_type"`
	LastAppliedSequence int64     `json:"last_applied_sequence"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// RelationshipResult summarizes a playlist relationship sync.
type RelationshipResult struct {
	PlaylistID string   `json:"playlist_id"`
	Added      int      `json:"added"`
	Removed    int      `json:"removed"`
	Unchanged  int      `json:"unchanged"`
	Unresolved []string `json:"unresolved,omitempty"`
}

// Recommendation is one scored song.
type Recommendation struct {
	SongID string         `json:"song_id"`
	Name   string         `json:"name,omitempty"`
	Score  float64        `json:"score"`
	Reason map[string]any `json:"reason,omitempty"`
}

// NameCount is a genre or artist with the plays that reached it.
type NameCount struct {
	Name  string  `json:"name"`
	Plays float64 `json:"plays"`
}

// ListenerStats summarizes a user's listening history.
type ListenerStats struct {
	UserID        string      `json:"user_id"`
	SongsListened int         `json:"songs_listened"`
	TotalPlays    float64     `json:"total_plays"`
	TopGenres     []NameCount `json:"top_genres"`
	TopArtists    []NameCount `json:"top_artists"`
}

// PathNode is one step of a song path.
type PathNode struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// SongPath links two songs through shared artists and genres.
type SongPath struct {
	From      string     `json:"from_song"`
	To        string     `json:"to_song"`
	Connected bool       `json:"connected"`
	Length    int        `json:"path_length"`
	Nodes     []PathNode `json:"path_nodes,omitempty"`
}

// NodeRef identifies a graph node by label and external id.
type NodeRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// GraphNode is a node in the graph mirror.
type GraphNode struct {
	Type       string         `json:"type"`
	ExternalID string         `json:"external_id"`
	Attributes map[string]any `json:"attributes,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Neighbor is a node adjacent to another over one edge.
type Neighbor struct {
	Node      GraphNode `json:"node"`
	Weight    float64   `json:"weight"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GraphOverview counts graph nodes per label and edges per type.
type GraphOverview struct {
	Nodes      map[string]int64 `json:"nodes"`
	Edges      map[string]int64 `json:"edges"`
	TotalNodes int64            `json:"total_nodes"`
	TotalEdges int64            `json:"total_edges"`
}

// SearchHit is one ranked search result.
type SearchHit struct {
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Name       string            `json:"name"`
	Score      float64           `json:"score"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Suggestion is one autocomplete completion.
type Suggestion struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Text       string `json:"text"`
}

// AuditReport compares canonical and mirror counts for one entity type.
type AuditReport struct {
	EntityType     string    `json:"entity_type"`
	CanonicalCount int64     `json:"canonical_count"`
	GraphCount     int64     `json:"graph_count"`
	SearchCount    int64     `json:"search_count"`
	Divergence     int64     `json:"divergence"`
	Threshold      int64     `json:"threshold"`
	Diverged       bool      `json:"diverged"`
	CheckedAt      time.Time `json:"checked_at"`
}

// ChangeLogEntry is one ledger record.
type ChangeLogEntry struct {
	Sequence   int64          `json:"sequence"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Operation  string         `json:"operation"`
	Payload    map[string]any `json:"payload,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// AppendRequest is the body of a ledger append.
type AppendRequest struct {
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Operation  string         `json:"operation"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// LedgerSearchOptions filters Ledger.Search.
type LedgerSearchOptions struct {
	EntityType string
	Operation  string
	From       *time.Time
	To         *time.Time
	Limit      int
}

// JournalEntry is one sync journal record.
type JournalEntry struct {
	ID         int64          `json:"id"`
	RunID      string         `json:"run_id,omitempty"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type,omitempty"`
	EntityID   string         `json:"entity_id,omitempty"`
	Mirror     string         `json:"mirror,omitempty"`
	Sequence   int64          `json:"sequence,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// JournalQueryOptions filters Journal.Query.
type JournalQueryOptions struct {
	Action     string
	EntityType string
	RunID      string
	Since      *time.Time
	Limit      int
	Offset     int
}
