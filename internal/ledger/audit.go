package ledger

import (
	"context"
	"fmt"

	"tcl-go/internal/model"
)

// QueryAudit returns audit entries matching the filter, newest first. This
// is the only read path over the audit log; no update or delete exists.
func (s *Service) QueryAudit(ctx context.Context, filter AuditFilter) ([]model.AuditLogEntry, error) {
	if filter.TenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, &ValidationError{Field: "pagination", Reason: "limit and offset must not be negative"}
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}

	entries, err := s.store.QueryAudit(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	return entries, nil
}

// VerifyAuditChain replays the tenant's audit chain with the same algorithm
// as the timecard chain, so silent deletion or reordering of audit history
// is detectable too.
func (s *Service) VerifyAuditChain(ctx context.Context, tenantID string) (*model.IntegrityCheckResult, error) {
	if tenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}

	entries, err := s.store.QueryAudit(ctx, AuditFilter{TenantID: tenantID, Limit: -1})
	if err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}

	head, err := s.store.ChainHead(ctx, tenantID, model.ScopeAudit)
	if err != nil {
		return nil, fmt.Errorf("reading audit chain head: %w", err)
	}

	result := &model.IntegrityCheckResult{
		TenantID:  tenantID,
		IsValid:   true,
		LastNSR:   head.LastNSR,
		CheckedAt: s.clock.Now().UTC(),
	}

	// QueryAudit returns newest first; replay oldest first.
	running := model.GenesisHash
	expected := int64(0)
	for i := len(entries) - 1; i >= 0; i-- {
		a := &entries[i]
		expected++
		if a.Seq != expected {
			result.Errors = append(result.Errors, model.IntegrityError{
				NSR:    a.Seq,
				Kind:   model.IntegritySequenceGap,
				Detail: fmt.Sprintf("expected seq %d, found %d", expected, a.Seq),
			})
			expected = a.Seq
		}
		if a.PrevHash != running {
			result.Errors = append(result.Errors, model.IntegrityError{
				NSR:    a.Seq,
				Kind:   model.IntegrityBrokenLink,
				Detail: "stored previous hash does not match predecessor",
			})
		}
		computed := AuditHash(running, a)
		if computed != a.AuditHash {
			result.Errors = append(result.Errors, model.IntegrityError{
				NSR:    a.Seq,
				Kind:   model.IntegrityHashMismatch,
				Detail: fmt.Sprintf("stored hash %.12s, recomputed %.12s", a.AuditHash, computed),
			})
		}
		running = computed
	}

	result.IsValid = len(result.Errors) == 0
	return result, nil
}
