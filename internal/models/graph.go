package models

import (
	"fmt"
	"strings"
	"time"
)

// NodeType is a graph node label.
type NodeType string

// Graph node types.
const (
	NodeUser     NodeType = "User"
	NodeSong     NodeType = "Song"
	NodeAlbum    NodeType = "Album"
	NodePlaylist NodeType = "Playlist"
	NodeArtist   NodeType = "Artist"
	NodeGenre    NodeType = "Genre"
)

// NodeTypes lists every node type in a stable order.
var NodeTypes = []NodeType{NodeUser, NodeSong, NodeAlbum, NodePlaylist, NodeArtist, NodeGenre}

// ParseNodeType matches a node type case-insensitively.
func ParseNodeType(s string) (NodeType, error) {
	for _, nt := range NodeTypes {
		if strings.EqualFold(string(nt), s) {
			return nt, nil
		}
	}

	return "", fmt.Errorf("invalid node type %q", s)
}

// EdgeType is a graph relationship type.
type EdgeType string

// Graph edge types.
const (
	EdgeCreated    EdgeType = "CREATED"
	EdgeContains   EdgeType = "CONTAINS"
	EdgeListenedTo EdgeType = "LISTENED_TO"
	EdgeBelongsTo  EdgeType = "BELONGS_TO"
)

// EdgeTypes lists every edge type in a stable order.
var EdgeTypes = []EdgeType{EdgeCreated, EdgeContains, EdgeListenedTo, EdgeBelongsTo}

// ParseEdgeType matches an edge type case-insensitively.
func ParseEdgeType(s string) (EdgeType, error) {
	for _, et := range EdgeTypes {
		if strings.EqualFold(string(et), s) {
			return et, nil
		}
	}

	return "", fmt.Errorf("invalid edge type %q", s)
}

// Direction selects which side of an edge a neighbor lookup follows.
type Direction string

// Edge directions.
const (
	Outgoing Direction = "out"
	Incoming Direction = "in"
)

// NodeRef identifies a node by type and external id.
type NodeRef struct {
	Type NodeType `json:"type"`
	ID   string   `json:"id"`
}

func (r NodeRef) String() string { return string(r.Type) + ":" + r.ID }

// GraphNode is a mirrored node.
type GraphNode struct {
	Type       NodeType       `json:"type"`
	ExternalID string         `json:"external_id"`
	Attributes map[string]any `json:"attributes,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Ref returns the node's key.
func (n *GraphNode) Ref() NodeRef { return NodeRef{Type: n.Type, ID: n.ExternalID} }

// GraphEdge is a mirrored relationship. Weight is nil when the edge type
// carries no score.
type GraphEdge struct {
	Type      EdgeType  `json:"type"`
	From      NodeRef   `json:"from"`
	To        NodeRef   `json:"to"`
	Weight    *float64  `json:"weight,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key identifies the edge by type and endpoints.
func (e *GraphEdge) Key() string {
	return string(e.Type) + " " + e.From.String() + "->" + e.To.String()
}

// DeferredEdge is an edge held back until its missing endpoint is mirrored.
// Owner is the node whose entity derives the edge.
type DeferredEdge struct {
	Owner NodeRef   `json:"owner"`
	Edge  GraphEdge `json:"edge"`
}

// Awaiting returns the endpoint the edge waits on.
func (d *DeferredEdge) Awaiting() NodeRef {
	if d.Edge.From == d.Owner {
		return d.Edge.To
	}

	return d.Edge.From
}

// Neighbor is a node reached over one edge, with that edge's attributes.
type Neighbor struct {
	Node      GraphNode `json:"node"`
	Weight    float64   `json:"weight"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GraphOverview holds counts per node and edge type.
type GraphOverview struct {
	Nodes      map[NodeType]int64 `json:"nodes"`
	Edges      map[EdgeType]int64 `json:"edges"`
	TotalNodes int64              `json:"total_nodes"`
	TotalEdges int64              `json:"total_edges"`
}

// NameCount is a derived node name with the plays that reached it.
type NameCount struct {
	Name  string  `json:"name"`
	Plays float64 `json:"plays"`
}

// ListenerStats summarizes a user's listening history in the graph.
type ListenerStats struct {
	UserID        string      `json:"user_id"`
	SongsListened int         `json:"songs_listened"`
	TotalPlays    float64     `json:"total_plays"`
	TopGenres     []NameCount `json:"top_genres"`
	TopArtists    []NameCount `json:"top_artists"`
}

// PathNode is one step of a song path.
type PathNode struct {
	Type NodeType `json:"type"`
	ID   string   `json:"id"`
	Name string   `json:"name,omitempty"`
}

// SongPath is the shortest connection between two songs through shared
// artists and genres. Length counts edges and is zero when not Connected.
type SongPath struct {
	From      string     `json:"from_song"`
	To        string     `json:"to_song"`
	Connected bool       `json:"connected"`
	Length    int        `json:"path_length"`
	Nodes     []PathNode `json:"path_nodes,omitempty"`
}

// DerivedKey normalizes an artist or genre name into a node id.
func DerivedKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// EdgeDelta summarizes one edge reconciliation.
type EdgeDelta struct {
	Added     int
	Removed   int
	Unchanged int
	// Missing lists endpoints that do not exist yet, so their edges were deferred.
	Missing []NodeRef
}

// Merge accumulates other into d.
func (d *EdgeDelta) Merge(other EdgeDelta) {
	d.Added += other.Added
	d.Removed += other.Removed
	d.Unchanged += other.Unchanged
	d.Missing = append(d.Missing, other.Missing...)
}
