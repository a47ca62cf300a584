package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tcl-go/internal/keys"
	"tcl-go/internal/model"
)

// keyValidity is the mandatory lifetime of a signing key. An expired key is
// surfaced distinctly from a revoked one: expiry is routine, revocation is
// an incident.
const keyValidity = 365 * 24 * time.Hour

// IssueKey generates a new RSA-2048 keypair for the tenant, stores the
// public key and the passphrase-encrypted private key, and marks it active.
// Any prior active key is demoted to expired in the same transaction, so
// exactly one key is ever active per tenant. Past signatures stay
// verifiable against demoted keys.
func (s *Service) IssueKey(ctx context.Context, tenantID, name, passphrase string, actor Actor) (*model.DigitalKey, error) {
	if tenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if passphrase == "" {
		return nil, &ValidationError{Field: "passphrase", Reason: "must not be empty"}
	}
	if err := actor.validate(); err != nil {
		return nil, err
	}

	// Rotation is serialized per tenant: two concurrent rotations must not
	// race to decide which key is "the" active one.
	lock := s.locks.get(tenantID)
	lock.Lock()
	defer lock.Unlock()

	priv, err := keys.Generate()
	if err != nil {
		return nil, err
	}
	pubPEM, err := keys.EncodePublic(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	privEnc, err := keys.EncryptPrivate(priv, passphrase)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	key := &model.DigitalKey{
		ID:            s.idgen.New(),
		TenantID:      tenantID,
		Name:          name,
		Algorithm:     keys.Algorithm,
		PublicKeyPEM:  pubPEM,
		PrivateKeyEnc: privEnc,
		Status:        model.KeyActive,
		CreatedAt:     now,
		ExpiresAt:     now.Add(keyValidity),
	}

	audit, err := s.newAudit(ctx, tenantID, model.ActionKeyIssue, actor, nil,
		fmt.Sprintf("issued key %q (%s)", name, key.Algorithm))
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertKey(ctx, key, audit); err != nil {
		return nil, fmt.Errorf("storing key: %w", err)
	}

	s.logger.Info("signing key issued", "tenant", tenantID, "key", key.ID, "expires", key.ExpiresAt)
	return key, nil
}

// Sign signs a checkpoint digest with the tenant's active key. It fails
// with ErrNoActiveKey when none exists and with KeyExpiredError when the
// active key has passed its expiry.
func (s *Service) Sign(ctx context.Context, tenantID string, digest []byte, passphrase string) ([]byte, string, error) {
	key, err := s.store.ActiveKey(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", ErrNoActiveKey
		}
		return nil, "", fmt.Errorf("loading active key: %w", err)
	}
	if s.clock.Now().After(key.ExpiresAt) {
		return nil, "", &KeyExpiredError{KeyID: key.ID, ExpiredAt: key.ExpiresAt}
	}

	priv, err := keys.DecryptPrivate(key.PrivateKeyEnc, passphrase)
	if err != nil {
		return nil, "", fmt.Errorf("unlocking private key: %w", err)
	}
	sig, err := keys.SignDigest(priv, digest)
	if err != nil {
		return nil, "", err
	}
	return sig, key.ID, nil
}

// VerifySignature verifies a signature against the named key regardless of
// its current status. Retiring or revoking a key only removes its signing
// capability; verification of previously produced signatures is never
// revoked.
func (s *Service) VerifySignature(ctx context.Context, keyID string, digest, sig []byte) (bool, error) {
	key, err := s.store.KeyByID(ctx, keyID)
	if err != nil {
		return false, fmt.Errorf("loading key: %w", err)
	}
	return keys.VerifyDigest(key.PublicKeyPEM, digest, sig)
}

// RevokeKey marks a key permanently unusable for new signatures. Past
// signatures remain valid. A reason is mandatory: revocation is
// incident-based and the incident belongs in the audit trail.
func (s *Service) RevokeKey(ctx context.Context, keyID, reason string, actor Actor) error {
	if reason == "" {
		return &ValidationError{Field: "reason", Reason: "required for corrective actions"}
	}
	if err := actor.validate(); err != nil {
		return err
	}

	key, err := s.store.KeyByID(ctx, keyID)
	if err != nil {
		return fmt.Errorf("loading key: %w", err)
	}

	lock := s.locks.get(key.TenantID)
	lock.Lock()
	defer lock.Unlock()

	now := s.clock.Now().UTC()
	audit, err := s.newAudit(ctx, key.TenantID, model.ActionKeyRevoke, actor, nil,
		fmt.Sprintf("revoked key %s: %s", keyID, reason))
	if err != nil {
		return err
	}
	if err := s.store.RevokeKey(ctx, keyID, reason, now, audit); err != nil {
		return fmt.Errorf("revoking key: %w", err)
	}

	s.logger.Warn("signing key revoked", "tenant", key.TenantID, "key", keyID, "reason", reason)
	return nil
}

// ListKeys returns the tenant's keys with private material stripped.
// Private key bytes never leave the service.
func (s *Service) ListKeys(ctx context.Context, tenantID string) ([]model.DigitalKey, error) {
	if tenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	list, err := s.store.ListKeys(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	for i := range list {
		list[i].PrivateKeyEnc = nil
	}
	return list, nil
}
