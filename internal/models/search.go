package models

// SearchDocument is the denormalized, fully replaceable index projection of
// a canonical record.
type SearchDocument struct {
	EntityType EntityType        `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Name       string            `json:"name"`
	Fields     map[string]string `json:"fields"`
	Sequence   int64             `json:"sequence"`
}

// FieldBoosts holds per-field ranking weights for each entity type.
var FieldBoosts = map[EntityType]map[string]float64{
	EntitySong:     {"name": 3, "artist": 2, "genre": 2, "album_name": 1},
	EntityAlbum:    {"album_name": 3, "artist_name": 2},
	EntityPlaylist: {"playlistname": 2, "song_name": 1, "artist_name": 1},
	EntityUser:     {"username": 3, "name": 4, "surname": 4, "email": 1},
}

// SearchQuery is a single-type search request.
type SearchQuery struct {
	EntityType EntityType
	Text       string
	Filters    map[string]string
	Limit      int
}

// MinFuzzyLength is the shortest query that enables edit-distance tolerance.
const MinFuzzyLength = 3

// MinPrefixLength is the shortest prefix autocomplete answers.
const MinPrefixLength = 2

// FuzzyDistance returns the edit distance tolerated for a term of n runes.
func FuzzyDistance(n int) int {
	switch {
	case n < MinFuzzyLength:
		return 0
	case n < 6:
		return 1
	default:
		return 2
	}
}

// SearchHit is one ranked search result.
type SearchHit struct {
	EntityType EntityType        `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Name       string            `json:"name"`
	Score      float64           `json:"score"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// Suggestion is one autocomplete result.
type Suggestion struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Text       string     `json:"text"`
}
