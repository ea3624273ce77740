package client

import (
	"context"
	"net/url"
	"strconv"
)

// SearchService handles full-text search and autocomplete.
type SearchService struct {
	c *Client
}

type searchResponse struct {
	Hits  []SearchHit `json:"hits"`
	Total int         `json:"total"`
}

// All searches every entity type.
func (s *SearchService) All(ctx context.Context, query string, size int) ([]SearchHit, error) {
	params := url.Values{"q": {query}}
	if size > 0 {
		params.Set("size", strconv.Itoa(size))
	}
	var resp searchResponse
	if err := s.c.get(ctx, "/api/v1/search/all", params, &resp); err != nil {
		return nil, err
	}
	return resp.Hits, nil
}

// ByType searches one entity type. filters are exact-match field filters
// such as {"genre": "jazz"}.
func (s *SearchService) ByType(ctx context.Context, entityType, query string, filters map[string]string, size int) ([]SearchHit, error) {
	params := url.Values{"q": {query}}
	for k, v := range filters {
		params.Set(k, v)
	}
	if size > 0 {
		params.Set("size", strconv.Itoa(size))
	}
	var resp searchResponse
	if err := s.c.get(ctx, "/api/v1/search/"+escape(entityType), params, &resp); err != nil {
		return nil, err
	}
	return resp.Hits, nil
}

// Autocomplete returns name completions for prefix.
func (s *SearchService) Autocomplete(ctx context.Context, entityType, prefix string, size int) ([]Suggestion, error) {
	params := url.Values{"q": {prefix}}
	if size > 0 {
		params.Set("size", strconv.Itoa(size))
	}
	var resp struct {
		Suggestions []Suggestion `json:"suggestions"`
	}
	if err := s.c.get(ctx, "/api/v1/search/"+escape(entityType)+"/autocomplete", params, &resp); err != nil {
		return nil, err
	}
	return resp.Suggestions, nil
}
