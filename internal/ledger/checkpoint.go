package ledger

import (
	"context"
	"fmt"

	"tcl-go/internal/model"
)

// Checkpoint signs the tenant's current chain head with the active key,
// producing an externally verifiable digest of ledger state. The digest is
// the canonical "tenant|nsr|hash" string; anyone holding the public key can
// confirm the ledger stood at that head when the checkpoint was produced.
func (s *Service) Checkpoint(ctx context.Context, tenantID, passphrase string) (*model.Checkpoint, error) {
	if tenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}

	head, err := s.store.ChainHead(ctx, tenantID, model.ScopeLedger)
	if err != nil {
		return nil, fmt.Errorf("reading chain head: %w", err)
	}

	digest := CheckpointDigest(tenantID, head.LastNSR, head.LastHash)
	sig, keyID, err := s.Sign(ctx, tenantID, digest, passphrase)
	if err != nil {
		return nil, err
	}

	return &model.Checkpoint{
		TenantID:  tenantID,
		NSR:       head.LastNSR,
		Hash:      head.LastHash,
		KeyID:     keyID,
		Signature: sig,
		SignedAt:  s.clock.Now().UTC(),
	}, nil
}

// CheckpointDigest is the byte string signed for a checkpoint.
func CheckpointDigest(tenantID string, nsr int64, hash string) []byte {
	return []byte(fmt.Sprintf("%s|%s|%d|%s", canonicalVersion, tenantID, nsr, hash))
}

// VerifyCheckpoint confirms a checkpoint signature against its key,
// regardless of the key's current status.
func (s *Service) VerifyCheckpoint(ctx context.Context, cp *model.Checkpoint) (bool, error) {
	digest := CheckpointDigest(cp.TenantID, cp.NSR, cp.Hash)
	return s.VerifySignature(ctx, cp.KeyID, digest, cp.Signature)
}
