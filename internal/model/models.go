package model

import "time"

// Event types for a timecard punch.
const (
	EventCheckIn    = "check_in"
	EventCheckOut   = "check_out"
	EventBreakStart = "break_start"
	EventBreakEnd   = "break_end"
)

// Entry sources.
const (
	SourceManual    = "manual"
	SourceAutomatic = "automatic"
)

// Entry statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Chain scopes stored in chain_state. The timecard ledger and the audit log
// are chained independently with the same algorithm.
const (
	ScopeLedger = "ledger"
	ScopeAudit  = "audit"
)

// GenesisHash anchors the first record of every chain: 64 hex zeros.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// TimecardEntry is one real-world punch. Entries are write-once: corrections
// are new entries plus an audit record, never edits to historical rows.
// Only the hash columns may be rewritten, and only by a chain rebuild.
type TimecardEntry struct {
	ID           string // UUID
	TenantID     string
	EmployeeID   string
	EventType    string // check_in, check_out, break_start, break_end
	Timestamp    time.Time
	Latitude     *float64 // optional geolocation
	Longitude    *float64
	Source       string // manual or automatic
	NSR          int64  // sequential record number, gapless per tenant
	PreviousHash string
	CurrentHash  string
	Status       string
	CreatedAt    time.Time
}

// ChainHead is the per-tenant, per-scope anchor for the next append.
type ChainHead struct {
	TenantID  string
	Scope     string // ledger or audit
	LastNSR   int64  // 0 before the first record
	LastHash  string // GenesisHash before the first record
	UpdatedAt time.Time
}

// Audit actions.
const (
	ActionCreate          = "CREATE"
	ActionAppendRejected  = "APPEND_REJECTED"
	ActionRebuild         = "REBUILD"
	ActionRebuildProgress = "REBUILD_PROGRESS"
	ActionBackup          = "BACKUP"
	ActionBackupVerify    = "BACKUP_VERIFY"
	ActionKeyIssue        = "KEY_ISSUE"
	ActionKeyRevoke       = "KEY_REVOKE"
	ActionReportGenerate  = "REPORT_GENERATE"
	ActionReportSubmit    = "REPORT_SUBMIT"
)

// AuditLogEntry is an immutable record of a ledger-mutating operation.
// Entries are hash-chained per tenant with the same algorithm as the
// timecard chain and are never updated or deleted.
type AuditLogEntry struct {
	ID          string // UUID
	TenantID    string
	Seq         int64 // per-tenant audit sequence, gapless
	Action      string
	PerformedBy string
	PerformedAt time.Time
	NSR         *int64 // affected timecard NSR, if any
	Reason      string // required for corrective actions
	SourceIP    string
	PrevHash    string
	AuditHash   string
}

// Key statuses. Expired is time-based demotion, revoked is incident-based.
const (
	KeyActive  = "active"
	KeyExpired = "expired"
	KeyRevoked = "revoked"
)

// DigitalKey is a signing key record. At most one key is active per tenant.
// Retired keys keep their public material so past signatures stay verifiable.
type DigitalKey struct {
	ID            string // UUID
	TenantID      string
	Name          string
	Algorithm     string // e.g. "rsa-2048"
	PublicKeyPEM  string
	PrivateKeyEnc []byte // age-encrypted PKCS#8 PEM; never exposed
	Status        string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	RevokedAt     *time.Time
	RevokedReason string
}

// BackupRecord describes one daily ledger snapshot stored in the vault.
// IsVerified flips to true only after an independent chain replay over the
// snapshot contents succeeds.
type BackupRecord struct {
	ID            string // UUID
	TenantID      string
	BackupDate    string // YYYY-MM-DD, unique per tenant
	RecordCount   int64
	SizeBytes     int64  // compressed artifact size
	Compression   string // "gzip"
	Checksum      string // SHA-256 of the compressed artifact; vault key
	ChainHeadNSR  int64  // live chain head at capture time
	ChainHeadHash string
	IsVerified    bool
	VerifiedAt    *time.Time
	CreatedAt     time.Time
}

// Report types.
const (
	ReportMonthly = "MONTHLY"
	ReportAnnual  = "ANNUAL"
	ReportAudit   = "AUDIT"
)

// ComplianceReport is a regulator-facing aggregate over verified ledger data.
// Reports are immutable; regenerating the same period+type creates a new
// version rather than overwriting what may already have been submitted.
type ComplianceReport struct {
	ID                     string // UUID
	TenantID               string
	ReportType             string
	PeriodStart            time.Time
	PeriodEnd              time.Time
	Version                int
	TotalRecords           int64
	TotalEmployees         int64
	TotalHours             float64
	Anomalies              int64 // punches without a matching pair
	GeneratedAt            time.Time
	SubmittedToAuthorities bool
	SubmittedAt            *time.Time
}

// Integrity finding kinds reported by a chain verification.
const (
	IntegrityHashMismatch = "hash_mismatch"
	IntegrityBrokenLink   = "broken_link"
	IntegritySequenceGap  = "sequence_gap"
	IntegrityHeadMismatch = "head_mismatch"
)

// IntegrityError is one finding from a chain verification, anchored to the
// NSR where it was detected.
type IntegrityError struct {
	NSR    int64
	Kind   string
	Detail string
}

// IntegrityCheckResult is the outcome of a full chain replay.
type IntegrityCheckResult struct {
	TenantID  string
	IsValid   bool
	Errors    []IntegrityError
	LastNSR   int64
	CheckedAt time.Time
}

// Checkpoint is a signed digest of the chain head, for external verifiability.
type Checkpoint struct {
	TenantID  string
	NSR       int64
	Hash      string
	KeyID     string
	Signature []byte
	SignedAt  time.Time
}
