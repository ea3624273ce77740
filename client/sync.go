package client

import (
	"context"
	"encoding/json"
	"errors"
)

// SyncService triggers syncs and reads cursors.
type SyncService struct {
	c *Client
}

// Full rebuilds both mirrors of entityType from the canonical store.
func (s *SyncService) Full(ctx context.Context, entityType string) (*FullSyncResult, error) {
	var resp FullSyncResult
	if err := s.c.post(ctx, "/api/v1/sync/"+escape(entityType)+"/full", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Incremental applies pending ledger entries of entityType to both mirrors.
// When the run fails after committing some batches, the counts so far are
// returned together with the error.
func (s *SyncService) Incremental(ctx context.Context, entityType string) (*IncrementalResult, error) {
	var resp IncrementalResult
	if err := s.c.post(ctx, "/api/v1/sync/"+escape(entityType)+"/incremental", nil, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && len(apiErr.Detail) > 0 {
			var partial IncrementalResult
			if json.Unmarshal(apiErr.Detail, &partial) == nil {
				return &partial, err
			}
		}
		return nil, err
	}
	return &resp, nil
}

// Cursors lists every (mirror, entity type) cursor.
func (s *SyncService) Cursors(ctx context.Context) ([]SyncCursor, error) {
	var resp struct {
		Cursors []SyncCursor `json:"cursors"`
	}
	if err := s.c.get(ctx, "/api/v1/sync/cursors", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Cursors, nil
}
