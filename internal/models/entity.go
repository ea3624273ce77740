// Package models defines the data types shared by the ledger, the mirrors
// and the sync core.
package models

import (
	"fmt"
	"strings"
)

// EntityType is one of the canonical entity kinds.
type EntityType string

// Canonical entity types.
const (
	EntityUser     EntityType = "user"
	EntitySong     EntityType = "song"
	EntityAlbum    EntityType = "album"
	EntityPlaylist EntityType = "playlist"
)

// EntityAll selects every entity type in search fan-out.
const EntityAll EntityType = "all"

// EntityTypes lists the canonical types in merge priority order.
var EntityTypes = []EntityType{EntitySong, EntityAlbum, EntityPlaylist, EntityUser}

// ParseEntityType accepts singular or plural, case-insensitive names.
func ParseEntityType(s string) (EntityType, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s") {
	case "user":
		return EntityUser, nil
	case "song":
		return EntitySong, nil
	case "album":
		return EntityAlbum, nil
	case "playlist":
		return EntityPlaylist, nil
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidEntityType, s)
}

// Valid reports whether t is a canonical entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityUser, EntitySong, EntityAlbum, EntityPlaylist:
		return true
	}

	return false
}

// Priority returns the tie-break rank of t in merged search results. Lower
// ranks come first.
func (t EntityType) Priority() int {
	for i, et := range EntityTypes {
		if et == t {
			return i
		}
	}

	return len(EntityTypes)
}

// NodeType maps an entity type to its graph node type.
func (t EntityType) NodeType() NodeType {
	switch t {
	case EntityUser:
		return NodeUser
	case EntitySong:
		return NodeSong
	case EntityAlbum:
		return NodeAlbum
	case EntityPlaylist:
		return NodePlaylist
	}

	return ""
}
