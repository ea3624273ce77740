package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Entity is a canonical record parsed into its typed form.
type Entity interface {
	EntityType() EntityType
	EntityID() string
	// Meta carries the replay position the entity was read at.
	Meta() SourceMeta
}

// SourceMeta records where a parsed entity came from.
type SourceMeta struct {
	Sequence   int64     `json:"sequence"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Song is the typed projection of a song document.
type Song struct {
	ID          string
	Name        string
	Artist      string
	Genre       string
	AlbumID     string
	AlbumName   string
	ReleaseYear int
	Duration    float64
	Source      SourceMeta
}

// Album is the typed projection of an album document.
type Album struct {
	ID          string
	Name        string
	Artist      string
	ReleaseYear int
	Source      SourceMeta
}

// Playlist is the typed projection of a playlist document.
type Playlist struct {
	ID          string
	Name        string
	UserID      string
	SongIDs     []string
	SongNames   []string
	ArtistNames []string
	Source      SourceMeta
}

// Listen is one entry of a user's listening history.
type Listen struct {
	SongID string
	Count  int
}

// User is the typed projection of a user document.
type User struct {
	ID       string
	Username string
	Name     string
	Surname  string
	Email    string
	Listens  []Listen
	Source   SourceMeta
}

func (s *Song) EntityType() EntityType     { return EntitySong }
func (s *Song) EntityID() string           { return s.ID }
func (s *Song) Meta() SourceMeta           { return s.Source }
func (a *Album) EntityType() EntityType    { return EntityAlbum }
func (a *Album) EntityID() string          { return a.ID }
func (a *Album) Meta() SourceMeta          { return a.Source }
func (p *Playlist) EntityType() EntityType { return EntityPlaylist }
func (p *Playlist) EntityID() string       { return p.ID }
func (p *Playlist) Meta() SourceMeta       { return p.Source }
func (u *User) EntityType() EntityType     { return EntityUser }
func (u *User) EntityID() string           { return u.ID }
func (u *User) Meta() SourceMeta           { return u.Source }

// Parse converts a canonical record into its typed entity. Records missing a
// required field produce a MalformedRecordError.
func Parse(rec CanonicalRecord, meta SourceMeta) (Entity, error) {
	if rec.EntityID == "" {
		return nil, &MalformedRecordError{EntityType: rec.EntityType, Reason: "missing entity_id"}
	}

	if rec.Payload == nil {
		return nil, &MalformedRecordError{EntityType: rec.EntityType, EntityID: rec.EntityID, Reason: "missing payload"}
	}

	p := payload(rec.Payload)

	var (
		ent      Entity
		required string
	)

	switch rec.EntityType {
	case EntitySong:
		required = "name"
		ent = &Song{
			ID:          rec.EntityID,
			Name:        p.str("name"),
			Artist:      p.str("artist"),
			Genre:       p.str("genre"),
			AlbumID:     p.str("album_ID"),
			AlbumName:   p.str("album_name"),
			ReleaseYear: p.int("release_year"),
			Duration:    p.float("duration"),
			Source:      meta,
		}
	case EntityAlbum:
		required = "album_name"
		ent = &Album{
			ID:          rec.EntityID,
			Name:        p.str("album_name"),
			Artist:      p.str("artist_name"),
			ReleaseYear: p.int("release_year"),
			Source:      meta,
		}
	case EntityPlaylist:
		required = "playlistname"
		ent = &Playlist{
			ID:          rec.EntityID,
			Name:        p.str("playlistname"),
			UserID:      p.str("user_id"),
			SongIDs:     dedupe(p.strs("song_ID")),
			SongNames:   p.strs("song_name"),
			ArtistNames: p.strs("artist_name"),
			Source:      meta,
		}
	case EntityUser:
		required = "username"
		ent = &User{
			ID:       rec.EntityID,
			Username: p.str("username"),
			Name:     p.str("name"),
			Surname:  p.str("surname"),
			Email:    p.str("email"),
			Listens:  p.listens("listening_history"),
			Source:   meta,
		}
	default:
		return nil, &MalformedRecordError{EntityType: rec.EntityType, EntityID: rec.EntityID, Reason: "unknown entity type"}
	}

	if p.str(required) == "" {
		return nil, &MalformedRecordError{
			EntityType: rec.EntityType,
			EntityID:   rec.EntityID,
			Reason:     fmt.Sprintf("missing required field %q", required),
		}
	}

	return ent, nil
}

// payload reads loosely typed JSON/BSON-derived values.
type payload map[string]any

func (p payload) str(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int, int32, int64:
		return fmt.Sprint(v)
	}

	return ""
}

func (p payload) float(key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f
		}
	}

	return 0
}

func (p payload) int(key string) int {
	f := p.float(key)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}

	return int(f)
}

func (p payload) strs(key string) []string {
	raw, ok := p[key].([]any)
	if !ok {
		if ss, ok := p[key].([]string); ok {
			return ss
		}

		return nil
	}

	out := make([]string, 0, len(raw))

	for _, v := range raw {
		if s := (payload{"v": v}).str("v"); s != "" {
			out = append(out, s)
		}
	}

	return out
}

func (p payload) listens(key string) []Listen {
	raw, ok := p[key].([]any)
	if !ok {
		return nil
	}

	counts := make(map[string]int, len(raw))
	order := make([]string, 0, len(raw))

	for _, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}

		item := payload(m)
		id := item.str("song_id")
		if id == "" {
			continue
		}

		n := item.int("count")
		if n <= 0 {
			n = 1
		}

		if _, seen := counts[id]; !seen {
			order = append(order, id)
		}

		counts[id] += n
	}

	out := make([]Listen, 0, len(order))
	for _, id := range order {
		out = append(out, Listen{SongID: id, Count: counts[id]})
	}

	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}
