package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tcl-go/internal/model"
)

// rebuildBatchSize bounds one hash-rewrite transaction. Each batch leaves a
// progress checkpoint in the audit log, so a rebuild interrupted mid-way is
// detectable and a resumed run does not redo fixed ranges silently.
const rebuildBatchSize = 500

// RebuildResult reports the outcome of a chain repair.
type RebuildResult struct {
	CorrectedNSRs []int64
	Result        *model.IntegrityCheckResult
}

// Rebuild repairs a broken chain by recomputing every hash from NSR 1
// forward using the stored payload fields. Payloads and ordering are never
// altered; only the hash columns are rewritten. If any payload itself
// appears corrupted the rebuild fails closed with IrrecoverableChainError,
// surfacing the affected NSR for manual or legal escalation. Running a
// rebuild on an intact chain corrects nothing and is safe to repeat.
func (s *Service) Rebuild(ctx context.Context, tenantID string, actor Actor, reason string) (*RebuildResult, error) {
	if tenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	if err := actor.validate(); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Reason: "required for corrective actions"}
	}

	lock := s.locks.get(tenantID)
	lock.Lock()
	defer lock.Unlock()

	entries, head, err := s.store.SnapshotEntries(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("reading entries: %w", err)
	}

	if err := checkPayloads(entries); err != nil {
		s.recordFailure(ctx, tenantID, model.ActionRebuild, actor, nil,
			fmt.Sprintf("rebuild aborted: %v", err))
		return nil, err
	}

	// Recompute the whole chain deterministically from the payloads and
	// collect every entry whose stored hash columns differ.
	var fixes []HashFix
	var corrected []int64
	running := model.GenesisHash
	for i := range entries {
		e := &entries[i]
		computed := EntryHash(running, e)
		if e.PreviousHash != running || e.CurrentHash != computed {
			fixes = append(fixes, HashFix{NSR: e.NSR, PreviousHash: running, CurrentHash: computed})
			corrected = append(corrected, e.NSR)
		}
		running = computed
	}

	lastNSR := int64(len(entries))
	var newHead *model.ChainHead
	if head.LastNSR != lastNSR || head.LastHash != running {
		newHead = &model.ChainHead{
			TenantID:  tenantID,
			Scope:     model.ScopeLedger,
			LastNSR:   lastNSR,
			LastHash:  running,
			UpdatedAt: s.clock.Now().UTC(),
		}
	}

	if err := s.applyRebuild(ctx, tenantID, actor, reason, fixes, newHead); err != nil {
		return nil, err
	}

	entries, head, err = s.store.SnapshotEntries(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("re-reading entries: %w", err)
	}
	result := replayChain(tenantID, entries, head, s.clock.Now().UTC())

	s.logger.Info("chain rebuilt", "tenant", tenantID, "corrected", len(corrected), "valid", result.IsValid)
	return &RebuildResult{CorrectedNSRs: corrected, Result: result}, nil
}

// applyRebuild writes the fixes in batches, each with its own audit entry.
// The final batch carries the REBUILD entry and the head update.
func (s *Service) applyRebuild(ctx context.Context, tenantID string, actor Actor, reason string, fixes []HashFix, newHead *model.ChainHead) error {
	finalReason := fmt.Sprintf("%s; corrected NSRs: %s", reason, formatNSRs(nsrsOf(fixes)))

	if len(fixes) == 0 {
		audit, err := s.newAudit(ctx, tenantID, model.ActionRebuild, actor, nil, finalReason)
		if err != nil {
			return err
		}
		if err := s.store.RewriteHashes(ctx, tenantID, nil, newHead, audit); err != nil {
			return fmt.Errorf("writing rebuild record: %w", err)
		}
		return nil
	}

	for start := 0; start < len(fixes); start += rebuildBatchSize {
		end := start + rebuildBatchSize
		if end > len(fixes) {
			end = len(fixes)
		}
		batch := fixes[start:end]
		last := end == len(fixes)

		var audit *model.AuditLogEntry
		var err error
		var head *model.ChainHead
		if last {
			audit, err = s.newAudit(ctx, tenantID, model.ActionRebuild, actor, nil, finalReason)
			head = newHead
		} else {
			progress := fmt.Sprintf("rebuild progress: NSR %d-%d, %d corrected",
				batch[0].NSR, batch[len(batch)-1].NSR, len(batch))
			audit, err = s.newAudit(ctx, tenantID, model.ActionRebuildProgress, actor, nil, progress)
		}
		if err != nil {
			return err
		}
		if err := s.store.RewriteHashes(ctx, tenantID, batch, head, audit); err != nil {
			return fmt.Errorf("rewriting hashes (NSR %d-%d): %w", batch[0].NSR, batch[len(batch)-1].NSR, err)
		}
	}
	return nil
}

// checkPayloads verifies that every payload can be recomputed
// deterministically. A rebuild never patches payload-level damage.
func checkPayloads(entries []model.TimecardEntry) error {
	for i := range entries {
		e := &entries[i]
		want := int64(i + 1)
		if e.NSR != want {
			return &IrrecoverableChainError{NSR: e.NSR, Reason: fmt.Sprintf("NSR sequence broken: expected %d", want)}
		}
		switch e.EventType {
		case model.EventCheckIn, model.EventCheckOut, model.EventBreakStart, model.EventBreakEnd:
		default:
			return &IrrecoverableChainError{NSR: e.NSR, Reason: fmt.Sprintf("unknown event type %q", e.EventType)}
		}
		switch e.Source {
		case model.SourceManual, model.SourceAutomatic:
		default:
			return &IrrecoverableChainError{NSR: e.NSR, Reason: fmt.Sprintf("unknown source %q", e.Source)}
		}
		if e.Timestamp.IsZero() {
			return &IrrecoverableChainError{NSR: e.NSR, Reason: "timestamp missing"}
		}
		if e.EmployeeID == "" {
			return &IrrecoverableChainError{NSR: e.NSR, Reason: "employee id missing"}
		}
	}
	return nil
}

func nsrsOf(fixes []HashFix) []int64 {
	out := make([]int64, len(fixes))
	for i, f := range fixes {
		out[i] = f.NSR
	}
	return out
}

// formatNSRs renders an NSR list for an audit reason, capped so a huge
// rebuild does not produce an unbounded audit row.
func formatNSRs(nsrs []int64) string {
	const maxListed = 50
	if len(nsrs) == 0 {
		return "none"
	}
	n := len(nsrs)
	listed := nsrs
	if n > maxListed {
		listed = nsrs[:maxListed]
	}
	parts := make([]string, len(listed))
	for i, v := range listed {
		parts[i] = strconv.FormatInt(v, 10)
	}
	out := strings.Join(parts, ",")
	if n > maxListed {
		out += fmt.Sprintf(" (+%d more)", n-maxListed)
	}
	return out
}
