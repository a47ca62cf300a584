package ledger

import (
	"errors"
	"fmt"
	"time"

	"tcl-go/internal/model"
)

// Sentinel errors checked with errors.Is.
var (
	// ErrChainHeadConflict signals that a concurrent writer advanced the
	// chain head between read and write. The caller may retry after
	// re-reading the head.
	ErrChainHeadConflict = errors.New("chain head conflict: concurrent writer detected")

	// ErrNoActiveKey signals that signing is blocked until a key is issued.
	ErrNoActiveKey = errors.New("no active signing key for tenant")

	// ErrNotFound is returned by lookups for records that do not exist.
	ErrNotFound = errors.New("record not found")
)

// ValidationError reports malformed input. Recoverable by the caller
// retrying with corrected data.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ChainBrokenError reports detected tamper or corruption. It is never
// auto-recovered: report generation is blocked until a rebuild or manual
// remediation.
type ChainBrokenError struct {
	Result *model.IntegrityCheckResult
}

func (e *ChainBrokenError) Error() string {
	if len(e.Result.Errors) == 0 {
		return fmt.Sprintf("chain broken for tenant %s", e.Result.TenantID)
	}
	first := e.Result.Errors[0]
	return fmt.Sprintf("chain broken for tenant %s: first break at NSR %d (%s), %d finding(s) total",
		e.Result.TenantID, first.NSR, first.Kind, len(e.Result.Errors))
}

// IrrecoverableChainError reports payload-level corruption that a hash-only
// rebuild must not paper over. Requires manual or legal escalation.
type IrrecoverableChainError struct {
	NSR    int64
	Reason string
}

func (e *IrrecoverableChainError) Error() string {
	return fmt.Sprintf("irrecoverable chain corruption at NSR %d: %s", e.NSR, e.Reason)
}

// KeyExpiredError reports that the active key has passed its expiry.
// Distinct from revocation: expiry is time-based, revocation incident-based.
type KeyExpiredError struct {
	KeyID     string
	ExpiredAt time.Time
}

func (e *KeyExpiredError) Error() string {
	return fmt.Sprintf("signing key %s expired at %s", e.KeyID, e.ExpiredAt.UTC().Format(time.RFC3339))
}

// BackupIntegrityError reports that a snapshot failed its independent
// replay. The backup record is kept so the failure remains evidence.
type BackupIntegrityError struct {
	TenantID   string
	BackupDate string
	Reason     string
}

func (e *BackupIntegrityError) Error() string {
	return fmt.Sprintf("backup %s/%s failed verification: %s", e.TenantID, e.BackupDate, e.Reason)
}
