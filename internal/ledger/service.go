package ledger

import (
	"context"
	"fmt"

	"tcl-go/internal/model"
)

// Service is the integrity ledger: it owns the timecard hash chain, the
// audit chain, signing keys, backups and compliance reports. Business
// modules never write to chain tables directly; every mutation goes through
// here so the per-tenant ordering and audit invariants hold.
type Service struct {
	store  Store
	vault  Vault
	logger Logger
	clock  Clock
	idgen  IDGenerator
	locks  *tenantLocks
}

// NewService creates a Service with the provided dependencies.
func NewService(store Store, vault Vault, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		store:  store,
		vault:  vault,
		logger: logger,
		clock:  clock,
		idgen:  idgen,
		locks:  newTenantLocks(),
	}
}

// Actor identifies who performed an operation, for the audit trail.
type Actor struct {
	Name     string
	SourceIP string
}

func (a Actor) validate() error {
	if a.Name == "" {
		return &ValidationError{Field: "actor", Reason: "must not be empty"}
	}
	return nil
}

// newAudit builds a hash-chained audit entry against the current audit head.
// Callers must hold the tenant lock so the head cannot move between read
// and write.
func (s *Service) newAudit(ctx context.Context, tenantID, action string, actor Actor, nsr *int64, reason string) (*model.AuditLogEntry, error) {
	head, err := s.store.ChainHead(ctx, tenantID, model.ScopeAudit)
	if err != nil {
		return nil, fmt.Errorf("reading audit chain head: %w", err)
	}

	a := &model.AuditLogEntry{
		ID:          s.idgen.New(),
		TenantID:    tenantID,
		Seq:         head.LastNSR + 1,
		Action:      action,
		PerformedBy: actor.Name,
		PerformedAt: s.clock.Now().UTC(),
		NSR:         nsr,
		Reason:      reason,
		SourceIP:    actor.SourceIP,
		PrevHash:    head.LastHash,
	}
	a.AuditHash = AuditHash(a.PrevHash, a)
	return a, nil
}

// recordFailure audit-logs a failed mutation attempt. A rejected operation
// is itself part of the record, so this is called on the error path while
// the tenant lock is still held.
func (s *Service) recordFailure(ctx context.Context, tenantID, action string, actor Actor, nsr *int64, reason string) {
	a, err := s.newAudit(ctx, tenantID, action, actor, nsr, reason)
	if err == nil {
		err = s.store.AppendAudit(ctx, a)
	}
	if err != nil {
		s.logger.Error("recording failure audit entry", "tenant", tenantID, "action", action, "error", err)
	}
}
