package ledger

import (
	"context"
	"time"

	"tcl-go/internal/model"
)

// HashFix is one entry hash rewrite produced by a chain rebuild. Only the
// hash columns change; payload fields are never touched.
type HashFix struct {
	NSR          int64
	PreviousHash string
	CurrentHash  string
}

// AuditFilter narrows an audit log query. Zero values mean "no filter".
type AuditFilter struct {
	TenantID string
	NSR      *int64
	Action   string
	From     time.Time
	To       time.Time
	Limit    int // defaults to 100
	Offset   int
}

// Store provides persistence for the ledger. Implementations must make each
// composite operation atomic: a ledger mutation and its audit entry either
// both persist or neither does, and chain heads advance in the same
// transaction as the record they anchor.
type Store interface {
	// ChainHead returns the head for a tenant and scope. Before the first
	// record it returns LastNSR 0 and the genesis hash, not ErrNotFound.
	ChainHead(ctx context.Context, tenantID, scope string) (*model.ChainHead, error)

	// AppendEntry atomically inserts a timecard entry, its CREATE audit
	// entry, and advances both chain heads. Returns ErrChainHeadConflict
	// if the stored ledger head no longer matches entry.PreviousHash.
	AppendEntry(ctx context.Context, entry *model.TimecardEntry, audit *model.AuditLogEntry) error

	// AppendAudit inserts an audit entry and advances the audit head, for
	// mutations that are not timecard appends (rebuilds, backups, keys,
	// reports) and for recording failed attempts.
	AppendAudit(ctx context.Context, audit *model.AuditLogEntry) error

	// SnapshotEntries returns every entry for a tenant ordered by NSR,
	// together with the ledger head, read in a single transaction.
	SnapshotEntries(ctx context.Context, tenantID string) ([]model.TimecardEntry, *model.ChainHead, error)

	// EntriesInPeriod returns entries whose timestamp falls in
	// [from, to], ordered by NSR, read in a single transaction.
	EntriesInPeriod(ctx context.Context, tenantID string, from, to time.Time) ([]model.TimecardEntry, error)

	// RewriteHashes applies one rebuild batch: rewrites the hash columns of
	// the fixed entries and inserts the batch's audit entry. When head is
	// non-nil the ledger head is set to it in the same transaction.
	RewriteHashes(ctx context.Context, tenantID string, fixes []HashFix, head *model.ChainHead, audit *model.AuditLogEntry) error

	// QueryAudit returns audit entries matching the filter, newest first.
	QueryAudit(ctx context.Context, filter AuditFilter) ([]model.AuditLogEntry, error)

	// InsertKey inserts a new active key, demoting any prior active key for
	// the tenant to expired in the same transaction.
	InsertKey(ctx context.Context, key *model.DigitalKey, audit *model.AuditLogEntry) error

	// KeyByID returns a key regardless of status, or ErrNotFound.
	KeyByID(ctx context.Context, keyID string) (*model.DigitalKey, error)

	// ActiveKey returns the tenant's active key, or ErrNotFound.
	ActiveKey(ctx context.Context, tenantID string) (*model.DigitalKey, error)

	// ListKeys returns every key for a tenant, newest first.
	ListKeys(ctx context.Context, tenantID string) ([]model.DigitalKey, error)

	// RevokeKey marks a key revoked with the given reason and time.
	RevokeKey(ctx context.Context, keyID, reason string, at time.Time, audit *model.AuditLogEntry) error

	// InsertBackup inserts a backup record with its audit entry.
	InsertBackup(ctx context.Context, b *model.BackupRecord, audit *model.AuditLogEntry) error

	// BackupByDate returns the backup for a tenant and date, or ErrNotFound.
	BackupByDate(ctx context.Context, tenantID, date string) (*model.BackupRecord, error)

	// ListBackups returns backups for a tenant, newest first.
	ListBackups(ctx context.Context, tenantID string) ([]model.BackupRecord, error)

	// SetBackupVerified records the outcome of an independent replay. The
	// record is never deleted: a failed verification stays as evidence.
	SetBackupVerified(ctx context.Context, backupID string, verified bool, at time.Time, audit *model.AuditLogEntry) error

	// InsertReport persists a generated report with its audit entry.
	InsertReport(ctx context.Context, r *model.ComplianceReport, audit *model.AuditLogEntry) error

	// LatestReportVersion returns the highest version for a tenant, type
	// and period, or 0 when none exists.
	LatestReportVersion(ctx context.Context, tenantID, reportType string, periodStart, periodEnd time.Time) (int, error)

	// ListReports returns reports for a tenant, newest first.
	ListReports(ctx context.Context, tenantID string) ([]model.ComplianceReport, error)

	// MarkReportSubmitted sets the submission flag. The aggregate columns
	// stay frozen; submission is the only mutable bit on a report.
	MarkReportSubmitted(ctx context.Context, reportID string, at time.Time, audit *model.AuditLogEntry) error

	// Close releases the underlying connection.
	Close() error
}
