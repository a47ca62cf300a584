package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"tcl-go/internal/model"
)

// canonicalVersion prefixes every serialization so the hashing scheme can
// evolve without breaking verification of existing chains.
const canonicalVersion = "v1"

// absent is the fixed sentinel for optional fields in canonical form.
const absent = "-"

// CanonicalEntry returns the order-stable serialization of a timecard entry,
// excluding its hash columns. Identical on the write and verify paths:
// field order is fixed, optional fields use a sentinel, and timestamps are
// normalized to UTC RFC 3339. Hashing is never sensitive to how upstream
// collaborators happened to represent the data.
func CanonicalEntry(e *model.TimecardEntry) string {
	parts := []string{
		canonicalVersion,
		e.TenantID,
		strconv.FormatInt(e.NSR, 10),
		e.EmployeeID,
		e.EventType,
		e.Timestamp.UTC().Format(time.RFC3339),
		canonicalCoord(e.Latitude),
		canonicalCoord(e.Longitude),
		e.Source,
		e.Status,
	}
	return strings.Join(parts, "|")
}

// CanonicalAudit returns the order-stable serialization of an audit entry,
// excluding its hash columns. Same scheme as CanonicalEntry, separate chain.
func CanonicalAudit(a *model.AuditLogEntry) string {
	nsr := absent
	if a.NSR != nil {
		nsr = strconv.FormatInt(*a.NSR, 10)
	}
	reason := a.Reason
	if reason == "" {
		reason = absent
	}
	ip := a.SourceIP
	if ip == "" {
		ip = absent
	}
	parts := []string{
		canonicalVersion,
		a.TenantID,
		strconv.FormatInt(a.Seq, 10),
		a.Action,
		a.PerformedBy,
		a.PerformedAt.UTC().Format(time.RFC3339),
		nsr,
		reason,
		ip,
	}
	return strings.Join(parts, "|")
}

func canonicalCoord(f *float64) string {
	if f == nil {
		return absent
	}
	return strconv.FormatFloat(*f, 'f', 6, 64)
}

// ChainHash computes hex(SHA-256(prevHash | canonical)). Every record's hash
// depends on its predecessor, so modifying any record invalidates the chain
// from that point forward.
func ChainHash(prevHash, canonical string) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte("|"))
	h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// EntryHash computes the chain hash for a timecard entry from its canonical
// form and the given previous hash.
func EntryHash(prevHash string, e *model.TimecardEntry) string {
	return ChainHash(prevHash, CanonicalEntry(e))
}

// AuditHash computes the chain hash for an audit entry.
func AuditHash(prevHash string, a *model.AuditLogEntry) string {
	return ChainHash(prevHash, CanonicalAudit(a))
}
