package client

import "context"

// AuditService runs consistency audits. Audits only report; repair is a full sync.
type AuditService struct {
	c *Client
}

// One audits a single entity type.
func (s *AuditService) One(ctx context.Context, entityType string) (*AuditReport, error) {
	var resp AuditReport
	if err := s.c.get(ctx, "/api/v1/audit/"+escape(entityType), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// All audits every entity type and returns the reports plus how many diverged.
func (s *AuditService) All(ctx context.Context) ([]AuditReport, int, error) {
	var resp struct {
		Reports  []AuditReport `json:"reports"`
		Diverged int           `json:"diverged"`
	}
	if err := s.c.get(ctx, "/api/v1/audit", nil, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Reports, resp.Diverged, nil
}
