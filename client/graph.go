package client

import (
	"context"
	"net/url"
	"strconv"
)

// GraphService handles graph relationship syncs, recommendations and browsing.
type GraphService struct {
	c *Client
}

type recommendationsResponse struct {
	Recommendations []Recommendation `json:"recommendations"`
}

// SyncPlaylist reconciles a playlist's CONTAINS and CREATED edges.
func (s *GraphService) SyncPlaylist(ctx context.Context, playlistID string) (*RelationshipResult, error) {
	var resp RelationshipResult
	if err := s.c.post(ctx, "/api/v1/graph/sync-playlist/"+escape(playlistID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FromPlaylist recommends songs that co-occur with the playlist's songs in other playlists.
// A limit of zero uses the server default.
func (s *GraphService) FromPlaylist(ctx context.Context, playlistID string, limit int) ([]Recommendation, error) {
	var resp recommendationsResponse
	if err := s.c.get(ctx, "/api/v1/graph/recommendations/playlist/"+escape(playlistID), limitParams(limit), &resp); err != nil {
		return nil, err
	}
	return resp.Recommendations, nil
}

// Deep recommends songs for a user from listening history.
func (s *GraphService) Deep(ctx context.Context, userID string, limit int) ([]Recommendation, error) {
	var resp recommendationsResponse
	if err := s.c.get(ctx, "/api/v1/graph/recommendations/deep/"+escape(userID), limitParams(limit), &resp); err != nil {
		return nil, err
	}
	return resp.Recommendations, nil
}

// SimilarListeners recommends songs played by users with overlapping history.
func (s *GraphService) SimilarListeners(ctx context.Context, userID string, limit int) ([]Recommendation, error) {
	var resp recommendationsResponse
	if err := s.c.get(ctx, "/api/v1/graph/recommendations/similar-listeners/"+escape(userID), limitParams(limit), &resp); err != nil {
		return nil, err
	}
	return resp.Recommendations, nil
}

// ShortestPath links two songs through shared artists and genres. A maxDepth
// of zero uses the server default.
func (s *GraphService) ShortestPath(ctx context.Context, fromSong, toSong string, maxDepth int) (*SongPath, error) {
	params := url.Values{"from_song_id": {fromSong}, "to_song_id": {toSong}}
	if maxDepth > 0 {
		params.Set("max_depth", strconv.Itoa(maxDepth))
	}
	var resp SongPath
	if err := s.c.get(ctx, "/api/v1/graph/recommendations/shortest-path", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats returns a user's listening summary.
func (s *GraphService) Stats(ctx context.Context, userID string) (*ListenerStats, error) {
	var resp ListenerStats
	if err := s.c.get(ctx, "/api/v1/graph/stats/"+escape(userID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Overview returns node and edge counts.
func (s *GraphService) Overview(ctx context.Context) (*GraphOverview, error) {
	var resp GraphOverview
	if err := s.c.get(ctx, "/api/v1/graph/overview", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Neighbors lists nodes adjacent to (nodeType, id) over edge. direction is
// "out" or "in"; empty means "out".
func (s *GraphService) Neighbors(ctx context.Context, nodeType, id, edge, direction string) ([]Neighbor, error) {
	params := url.Values{"edge": {edge}}
	if direction != "" {
		params.Set("direction", direction)
	}
	var resp struct {
		Neighbors []Neighbor `json:"neighbors"`
	}
	if err := s.c.get(ctx, "/api/v1/graph/neighbors/"+escape(nodeType)+"/"+escape(id), params, &resp); err != nil {
		return nil, err
	}
	return resp.Neighbors, nil
}

func limitParams(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": {strconv.Itoa(limit)}}
}
