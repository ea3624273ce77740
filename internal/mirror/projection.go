// Package mirror adapts graph and search backends to the single mirror
// capability the sync core drives, and owns the projection of canonical
// entities into nodes, edges and documents.
package mirror

import (
	"strconv"
	"strings"

	"github.com/persistorai/tracksync/internal/models"
)

// edgeSlot names a group of edges owned by one node: every edge of typ on
// the dir side of that node is derived from the node's own entity.
type edgeSlot struct {
	typ models.EdgeType
	dir models.Direction
}

// ownedSlots lists the slots each node type derives from its own entity.
var ownedSlots = map[models.NodeType][]edgeSlot{
	models.NodeSong:     {{typ: models.EdgeBelongsTo, dir: models.Outgoing}},
	models.NodeAlbum:    {{typ: models.EdgeBelongsTo, dir: models.Outgoing}},
	models.NodePlaylist: {{typ: models.EdgeContains, dir: models.Outgoing}, {typ: models.EdgeCreated, dir: models.Incoming}},
	models.NodeUser:     {{typ: models.EdgeListenedTo, dir: models.Outgoing}},
}

// foreignSlots lists the edges of a node type that other nodes own.
var foreignSlots = map[models.NodeType][]edgeSlot{
	models.NodeSong:  {{typ: models.EdgeContains, dir: models.Incoming}, {typ: models.EdgeListenedTo, dir: models.Incoming}},
	models.NodeAlbum: {{typ: models.EdgeBelongsTo, dir: models.Incoming}},
	models.NodeUser:  {{typ: models.EdgeCreated, dir: models.Outgoing}},
}

// subgraph is the part of the graph one entity determines.
type subgraph struct {
	node    models.GraphNode
	derived []models.GraphNode
	edges   map[edgeSlot][]models.GraphEdge
}

func weight(v float64) *float64 { return &v }

// project maps an entity onto its subgraph. Every owned slot is present in
// the map, even when empty, so stale edges get removed.
func project(ent models.Entity) subgraph {
	meta := ent.Meta()
	ref := models.NodeRef{Type: ent.EntityType().NodeType(), ID: ent.EntityID()}
	g := subgraph{
		node:  models.GraphNode{Type: ref.Type, ExternalID: ref.ID, UpdatedAt: meta.ModifiedAt},
		edges: make(map[edgeSlot][]models.GraphEdge),
	}

	out := func(typ models.EdgeType, to models.NodeRef, w *float64) models.GraphEdge {
		return models.GraphEdge{Type: typ, From: ref, To: to, Weight: w, UpdatedAt: meta.ModifiedAt}
	}

	belongs := edgeSlot{typ: models.EdgeBelongsTo, dir: models.Outgoing}

	switch e := ent.(type) {
	case *models.Song:
		g.node.Attributes = map[string]any{
			"name": e.Name, "artist": e.Artist, "genre": e.Genre, "album_name": e.AlbumName,
			"release_year": e.ReleaseYear, "duration": e.Duration,
		}
		g.edges[belongs] = nil

		if e.AlbumID != "" {
			g.edges[belongs] = append(g.edges[belongs], out(models.EdgeBelongsTo, models.NodeRef{Type: models.NodeAlbum, ID: e.AlbumID}, nil))
		}

		for _, d := range []struct {
			typ  models.NodeType
			name string
		}{{models.NodeArtist, e.Artist}, {models.NodeGenre, e.Genre}} {
			key := models.DerivedKey(d.name)
			if key == "" {
				continue
			}

			g.derived = append(g.derived, models.GraphNode{
				Type: d.typ, ExternalID: key, Attributes: map[string]any{"name": d.name}, UpdatedAt: meta.ModifiedAt,
			})
			g.edges[belongs] = append(g.edges[belongs], out(models.EdgeBelongsTo, models.NodeRef{Type: d.typ, ID: key}, nil))
		}
	case *models.Album:
		g.node.Attributes = map[string]any{"album_name": e.Name, "artist_name": e.Artist, "release_year": e.ReleaseYear}
		g.edges[belongs] = nil

		if key := models.DerivedKey(e.Artist); key != "" {
			g.derived = append(g.derived, models.GraphNode{
				Type: models.NodeArtist, ExternalID: key, Attributes: map[string]any{"name": e.Artist}, UpdatedAt: meta.ModifiedAt,
			})
			g.edges[belongs] = append(g.edges[belongs], out(models.EdgeBelongsTo, models.NodeRef{Type: models.NodeArtist, ID: key}, nil))
		}
	case *models.Playlist:
		g.node.Attributes = map[string]any{"playlistname": e.Name, "user_id": e.UserID, "song_count": len(e.SongIDs)}

		contains := edgeSlot{typ: models.EdgeContains, dir: models.Outgoing}
		g.edges[contains] = make([]models.GraphEdge, 0, len(e.SongIDs))

		for _, id := range e.SongIDs {
			g.edges[contains] = append(g.edges[contains], out(models.EdgeContains, models.NodeRef{Type: models.NodeSong, ID: id}, nil))
		}

		created := edgeSlot{typ: models.EdgeCreated, dir: models.Incoming}
		g.edges[created] = nil

		if e.UserID != "" {
			g.edges[created] = append(g.edges[created], models.GraphEdge{
				Type: models.EdgeCreated, From: models.NodeRef{Type: models.NodeUser, ID: e.UserID}, To: ref, UpdatedAt: meta.ModifiedAt,
			})
		}
	case *models.User:
		g.node.Attributes = map[string]any{"username": e.Username, "name": e.Name, "surname": e.Surname}

		listened := edgeSlot{typ: models.EdgeListenedTo, dir: models.Outgoing}
		g.edges[listened] = make([]models.GraphEdge, 0, len(e.Listens))

		for _, l := range e.Listens {
			g.edges[listened] = append(g.edges[listened], out(models.EdgeListenedTo, models.NodeRef{Type: models.NodeSong, ID: l.SongID}, weight(float64(l.Count))))
		}
	}

	return g
}

// Document projects an entity onto its search document.
func Document(ent models.Entity) models.SearchDocument {
	doc := models.SearchDocument{
		EntityType: ent.EntityType(),
		EntityID:   ent.EntityID(),
		Sequence:   ent.Meta().Sequence,
	}

	switch e := ent.(type) {
	case *models.Song:
		doc.Name = e.Name
		doc.Fields = map[string]string{"name": e.Name, "artist": e.Artist, "genre": e.Genre, "album_name": e.AlbumName}
		if e.ReleaseYear > 0 {
			doc.Fields["release_year"] = strconv.Itoa(e.ReleaseYear)
		}
	case *models.Album:
		doc.Name = e.Name
		doc.Fields = map[string]string{"album_name": e.Name, "artist_name": e.Artist}
		if e.ReleaseYear > 0 {
			doc.Fields["release_year"] = strconv.Itoa(e.ReleaseYear)
		}
	case *models.Playlist:
		doc.Name = e.Name
		doc.Fields = map[string]string{
			"playlistname": e.Name,
			"song_name":    strings.Join(e.SongNames, " "),
			"artist_name":  strings.Join(e.ArtistNames, " "),
			"user_id":      e.UserID,
		}
	case *models.User:
		doc.Name = e.Username
		doc.Fields = map[string]string{"username": e.Username, "name": e.Name, "surname": e.Surname, "email": e.Email}
	}

	for k, v := range doc.Fields {
		if v == "" {
			delete(doc.Fields, k)
		}
	}

	return doc
}
