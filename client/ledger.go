package client

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// LedgerService appends to and reads the change ledger.
type LedgerService struct {
	c *Client
}

type entriesResponse struct {
	Entries []ChangeLogEntry `json:"entries"`
	Next    int64            `json:"next"`
	HasMore bool             `json:"has_more"`
}

// Append records one canonical mutation and returns the stored entry with
// its sequence.
func (s *LedgerService) Append(ctx context.Context, req *AppendRequest) (*ChangeLogEntry, error) {
	var resp ChangeLogEntry
	if err := s.c.post(ctx, "/api/v1/ledger", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Entries pages through entries of entityType with sequence above after.
// It returns the cursor for the next page and whether more may follow.
func (s *LedgerService) Entries(ctx context.Context, entityType string, after int64, limit int) ([]ChangeLogEntry, int64, bool, error) {
	params := url.Values{"entity_type": {entityType}}
	if after > 0 {
		params.Set("after", strconv.FormatInt(after, 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var resp entriesResponse
	if err := s.c.get(ctx, "/api/v1/ledger/entries", params, &resp); err != nil {
		return nil, 0, false, err
	}
	return resp.Entries, resp.Next, resp.HasMore, nil
}

// History returns every entry for one entity in sequence order.
func (s *LedgerService) History(ctx context.Context, entityType, entityID string) ([]ChangeLogEntry, error) {
	var resp entriesResponse
	if err := s.c.get(ctx, "/api/v1/ledger/entity/"+escape(entityType)+"/"+escape(entityID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Search filters ledger entries by type, operation and time range.
func (s *LedgerService) Search(ctx context.Context, opts *LedgerSearchOptions) ([]ChangeLogEntry, error) {
	params := url.Values{}
	if opts != nil {
		if opts.EntityType != "" {
			params.Set("entity_type", opts.EntityType)
		}
		if opts.Operation != "" {
			params.Set("operation", opts.Operation)
		}
		if opts.From != nil {
			params.Set("from", opts.From.Format(time.RFC3339))
		}
		if opts.To != nil {
			params.Set("to", opts.To.Format(time.RFC3339))
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
	}
	var resp entriesResponse
	if err := s.c.get(ctx, "/api/v1/ledger/search", params, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}
