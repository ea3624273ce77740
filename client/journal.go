package client

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// JournalService reads and purges the sync journal.
type JournalService struct {
	c *Client
}

// Query returns journal entries matching the given options.
func (s *JournalService) Query(ctx context.Context, opts *JournalQueryOptions) ([]JournalEntry, bool, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Action != "" {
			params.Set("action", opts.Action)
		}
		if opts.EntityType != "" {
			params.Set("entity_type", opts.EntityType)
		}
		if opts.RunID != "" {
			params.Set("run_id", opts.RunID)
		}
		if opts.Since != nil {
			params.Set("since", opts.Since.Format(time.RFC3339))
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			params.Set("offset", strconv.Itoa(opts.Offset))
		}
	}
	var resp struct {
		Data    []JournalEntry `json:"data"`
		HasMore bool           `json:"has_more"`
	}
	if err := s.c.get(ctx, "/api/v1/journal", params, &resp); err != nil {
		return nil, false, err
	}
	return resp.Data, resp.HasMore, nil
}

// Purge deletes entries older than retentionDays. Returns count deleted.
func (s *JournalService) Purge(ctx context.Context, retentionDays int) (int, error) {
	params := url.Values{}
	if retentionDays > 0 {
		params.Set("retention_days", strconv.Itoa(retentionDays))
	}
	var resp struct {
		Deleted       int `json:"deleted"`
		RetentionDays int `json:"retention_days"`
	}
	if err := s.c.del(ctx, "/api/v1/journal", params, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}
