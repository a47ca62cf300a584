package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tcl-go/internal/ledger"
	"tcl-go/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// timeLayout is the storage format for timestamps: UTC with fixed-width
// nanoseconds, so lexicographic order in SQL matches temporal order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements ledger.Store on SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ ledger.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens a SQLite-backed store. path can be a file path or
// ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing connection. The caller is
// responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens and configures a SQLite connection with the PRAGMAs
// the ledger needs. Exported for tools and tests.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps in-memory databases coherent (each pool
	// connection would otherwise see its own empty ":memory:" database)
	// and serializes writers, which SQLite does anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return db, nil
}

// DB exposes the underlying connection for migration management.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Chain heads

func (s *SQLiteStore) ChainHead(ctx context.Context, tenantID, scope string) (*model.ChainHead, error) {
	return chainHeadTx(ctx, s.db, tenantID, scope)
}

// querier covers *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func chainHeadTx(ctx context.Context, q querier, tenantID, scope string) (*model.ChainHead, error) {
	row := q.QueryRowContext(ctx,
		`SELECT last_nsr, last_hash, updated_at FROM chain_state WHERE tenant_id = ? AND scope = ?`,
		tenantID, scope)

	head := &model.ChainHead{TenantID: tenantID, Scope: scope}
	var updatedAt string
	err := row.Scan(&head.LastNSR, &head.LastHash, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// No record yet: the chain starts at the genesis hash.
		head.LastHash = model.GenesisHash
		return head, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading chain head: %w", err)
	}
	if head.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return head, nil
}

func setChainHeadTx(ctx context.Context, q querier, head *model.ChainHead) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO chain_state (tenant_id, scope, last_nsr, last_hash, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, scope) DO UPDATE SET
		   last_nsr = excluded.last_nsr, last_hash = excluded.last_hash, updated_at = excluded.updated_at`,
		head.TenantID, head.Scope, head.LastNSR, head.LastHash, fmtTime(head.UpdatedAt))
	if err != nil {
		return fmt.Errorf("writing chain head: %w", err)
	}
	return nil
}

// Appends

func (s *SQLiteStore) AppendEntry(ctx context.Context, entry *model.TimecardEntry, audit *model.AuditLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	head, err := chainHeadTx(ctx, tx, entry.TenantID, model.ScopeLedger)
	if err != nil {
		return err
	}
	// The entry was computed against a chain head read earlier. If the
	// stored head moved since, a concurrent writer won; committing would
	// fork the chain.
	if head.LastNSR+1 != entry.NSR || head.LastHash != entry.PreviousHash {
		return ledger.ErrChainHeadConflict
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO timecard_entries
		   (id, tenant_id, employee_id, event_type, timestamp, latitude, longitude,
		    source, nsr, previous_hash, current_hash, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.TenantID, entry.EmployeeID, entry.EventType, fmtTime(entry.Timestamp),
		entry.Latitude, entry.Longitude, entry.Source, entry.NSR,
		entry.PreviousHash, entry.CurrentHash, entry.Status, fmtTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}

	if err := setChainHeadTx(ctx, tx, &model.ChainHead{
		TenantID: entry.TenantID, Scope: model.ScopeLedger,
		LastNSR: entry.NSR, LastHash: entry.CurrentHash, UpdatedAt: entry.CreatedAt,
	}); err != nil {
		return err
	}

	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, audit *model.AuditLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// insertAuditTx inserts an audit entry and advances the audit chain head in
// the surrounding transaction. No ledger mutation commits without its audit
// record: callers include this in the same transaction as the mutation.
func insertAuditTx(ctx context.Context, tx *sql.Tx, audit *model.AuditLogEntry) error {
	head, err := chainHeadTx(ctx, tx, audit.TenantID, model.ScopeAudit)
	if err != nil {
		return err
	}
	if head.LastNSR+1 != audit.Seq || head.LastHash != audit.PrevHash {
		return ledger.ErrChainHeadConflict
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_log
		   (id, tenant_id, seq, action, performed_by, performed_at, nsr, reason, source_ip, prev_hash, audit_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		audit.ID, audit.TenantID, audit.Seq, audit.Action, audit.PerformedBy,
		fmtTime(audit.PerformedAt), audit.NSR, audit.Reason, audit.SourceIP,
		audit.PrevHash, audit.AuditHash)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	return setChainHeadTx(ctx, tx, &model.ChainHead{
		TenantID: audit.TenantID, Scope: model.ScopeAudit,
		LastNSR: audit.Seq, LastHash: audit.AuditHash, UpdatedAt: audit.PerformedAt,
	})
}

// Entry reads

const entryColumns = `id, tenant_id, employee_id, event_type, timestamp, latitude, longitude,
	source, nsr, previous_hash, current_hash, status, created_at`

func scanEntry(rows *sql.Rows) (model.TimecardEntry, error) {
	var e model.TimecardEntry
	var ts, createdAt string
	err := rows.Scan(&e.ID, &e.TenantID, &e.EmployeeID, &e.EventType, &ts,
		&e.Latitude, &e.Longitude, &e.Source, &e.NSR,
		&e.PreviousHash, &e.CurrentHash, &e.Status, &createdAt)
	if err != nil {
		return e, fmt.Errorf("scanning entry: %w", err)
	}
	if e.Timestamp, err = parseTime(ts); err != nil {
		return e, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return e, err
	}
	return e, nil
}

func (s *SQLiteStore) SnapshotEntries(ctx context.Context, tenantID string) ([]model.TimecardEntry, *model.ChainHead, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("starting read transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM timecard_entries WHERE tenant_id = ? ORDER BY nsr`, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []model.TimecardEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating entries: %w", err)
	}

	head, err := chainHeadTx(ctx, tx, tenantID, model.ScopeLedger)
	if err != nil {
		return nil, nil, err
	}
	return entries, head, nil
}

func (s *SQLiteStore) EntriesInPeriod(ctx context.Context, tenantID string, from, to time.Time) ([]model.TimecardEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM timecard_entries
		 WHERE tenant_id = ? AND timestamp >= ? AND timestamp <= ?
		 ORDER BY nsr`,
		tenantID, fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, fmt.Errorf("querying period entries: %w", err)
	}
	defer rows.Close()

	var entries []model.TimecardEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating period entries: %w", err)
	}
	return entries, nil
}

// Rebuild

func (s *SQLiteStore) RewriteHashes(ctx context.Context, tenantID string, fixes []ledger.HashFix, head *model.ChainHead, audit *model.AuditLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, fix := range fixes {
		res, err := tx.ExecContext(ctx,
			`UPDATE timecard_entries SET previous_hash = ?, current_hash = ?
			 WHERE tenant_id = ? AND nsr = ?`,
			fix.PreviousHash, fix.CurrentHash, tenantID, fix.NSR)
		if err != nil {
			return fmt.Errorf("rewriting hashes for NSR %d: %w", fix.NSR, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("checking rewrite for NSR %d: %w", fix.NSR, err)
		}
		if n != 1 {
			return fmt.Errorf("rewriting hashes for NSR %d: %w", fix.NSR, ledger.ErrNotFound)
		}
	}

	if head != nil {
		if err := setChainHeadTx(ctx, tx, head); err != nil {
			return err
		}
	}
	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Audit queries

func (s *SQLiteStore) QueryAudit(ctx context.Context, filter ledger.AuditFilter) ([]model.AuditLogEntry, error) {
	var conds []string
	var args []any

	conds = append(conds, "tenant_id = ?")
	args = append(args, filter.TenantID)
	if filter.NSR != nil {
		conds = append(conds, "nsr = ?")
		args = append(args, *filter.NSR)
	}
	if filter.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, filter.Action)
	}
	if !filter.From.IsZero() {
		conds = append(conds, "performed_at >= ?")
		args = append(args, fmtTime(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "performed_at <= ?")
		args = append(args, fmtTime(filter.To))
	}

	// Newest first. A negative limit means unlimited (SQLite's LIMIT -1).
	limit := filter.Limit
	if limit == 0 {
		limit = 100
	}
	query := `SELECT id, tenant_id, seq, action, performed_by, performed_at, nsr, reason, source_ip, prev_hash, audit_hash
		 FROM audit_log WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY seq DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditLogEntry
	for rows.Next() {
		var a model.AuditLogEntry
		var performedAt string
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Seq, &a.Action, &a.PerformedBy,
			&performedAt, &a.NSR, &a.Reason, &a.SourceIP, &a.PrevHash, &a.AuditHash); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if a.PerformedAt, err = parseTime(performedAt); err != nil {
			return nil, err
		}
		entries = append(entries, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}

// Keys

func (s *SQLiteStore) InsertKey(ctx context.Context, key *model.DigitalKey, audit *model.AuditLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	// Demote the prior active key in the same transaction: exactly one
	// active key per tenant, ever.
	_, err = tx.ExecContext(ctx,
		`UPDATE digital_keys SET status = ? WHERE tenant_id = ? AND status = ?`,
		model.KeyExpired, key.TenantID, model.KeyActive)
	if err != nil {
		return fmt.Errorf("demoting prior active key: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO digital_keys
		   (id, tenant_id, name, algorithm, public_key_pem, private_key_enc, status, created_at, expires_at, revoked_at, revoked_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, '')`,
		key.ID, key.TenantID, key.Name, key.Algorithm, key.PublicKeyPEM, key.PrivateKeyEnc,
		key.Status, fmtTime(key.CreatedAt), fmtTime(key.ExpiresAt))
	if err != nil {
		return fmt.Errorf("inserting key: %w", err)
	}

	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

const keyColumns = `id, tenant_id, name, algorithm, public_key_pem, private_key_enc,
	status, created_at, expires_at, revoked_at, revoked_reason`

func scanKey(row interface{ Scan(...any) error }) (*model.DigitalKey, error) {
	var k model.DigitalKey
	var createdAt, expiresAt string
	var revokedAt sql.NullString
	err := row.Scan(&k.ID, &k.TenantID, &k.Name, &k.Algorithm, &k.PublicKeyPEM, &k.PrivateKeyEnc,
		&k.Status, &createdAt, &expiresAt, &revokedAt, &k.RevokedReason)
	if err != nil {
		return nil, err
	}
	if k.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if k.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		t, err := parseTime(revokedAt.String)
		if err != nil {
			return nil, err
		}
		k.RevokedAt = &t
	}
	return &k, nil
}

func (s *SQLiteStore) KeyByID(ctx context.Context, keyID string) (*model.DigitalKey, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM digital_keys WHERE id = ?`, keyID)
	k, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading key: %w", err)
	}
	return k, nil
}

func (s *SQLiteStore) ActiveKey(ctx context.Context, tenantID string) (*model.DigitalKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM digital_keys WHERE tenant_id = ? AND status = ?`,
		tenantID, model.KeyActive)
	k, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading active key: %w", err)
	}
	return k, nil
}

func (s *SQLiteStore) ListKeys(ctx context.Context, tenantID string) ([]model.DigitalKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM digital_keys WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying keys: %w", err)
	}
	defer rows.Close()

	var keys []model.DigitalKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keys: %w", err)
	}
	return keys, nil
}

func (s *SQLiteStore) RevokeKey(ctx context.Context, keyID, reason string, at time.Time, audit *model.AuditLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE digital_keys SET status = ?, revoked_at = ?, revoked_reason = ? WHERE id = ?`,
		model.KeyRevoked, fmtTime(at), reason, keyID)
	if err != nil {
		return fmt.Errorf("revoking key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking revocation: %w", err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}

	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Backups

func (s *SQLiteStore) InsertBackup(ctx context.Context, b *model.BackupRecord, audit *model.AuditLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO backups
		   (id, tenant_id, backup_date, record_count, size_bytes, compression, checksum,
		    chain_head_nsr, chain_head_hash, is_verified, verified_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?)`,
		b.ID, b.TenantID, b.BackupDate, b.RecordCount, b.SizeBytes, b.Compression, b.Checksum,
		b.ChainHeadNSR, b.ChainHeadHash, fmtTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting backup record: %w", err)
	}

	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

const backupColumns = `id, tenant_id, backup_date, record_count, size_bytes, compression, checksum,
	chain_head_nsr, chain_head_hash, is_verified, verified_at, created_at`

func scanBackup(row interface{ Scan(...any) error }) (*model.BackupRecord, error) {
	var b model.BackupRecord
	var createdAt string
	var verifiedAt sql.NullString
	err := row.Scan(&b.ID, &b.TenantID, &b.BackupDate, &b.RecordCount, &b.SizeBytes,
		&b.Compression, &b.Checksum, &b.ChainHeadNSR, &b.ChainHeadHash,
		&b.IsVerified, &verifiedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		t, err := parseTime(verifiedAt.String)
		if err != nil {
			return nil, err
		}
		b.VerifiedAt = &t
	}
	return &b, nil
}

func (s *SQLiteStore) BackupByDate(ctx context.Context, tenantID, date string) (*model.BackupRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+backupColumns+` FROM backups WHERE tenant_id = ? AND backup_date = ?`,
		tenantID, date)
	b, err := scanBackup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup record: %w", err)
	}
	return b, nil
}

func (s *SQLiteStore) ListBackups(ctx context.Context, tenantID string) ([]model.BackupRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+backupColumns+` FROM backups WHERE tenant_id = ? ORDER BY backup_date DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying backups: %w", err)
	}
	defer rows.Close()

	var backups []model.BackupRecord
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning backup record: %w", err)
		}
		backups = append(backups, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating backup records: %w", err)
	}
	return backups, nil
}

func (s *SQLiteStore) SetBackupVerified(ctx context.Context, backupID string, verified bool, at time.Time, audit *model.AuditLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE backups SET is_verified = ?, verified_at = ? WHERE id = ?`,
		verified, fmtTime(at), backupID)
	if err != nil {
		return fmt.Errorf("updating backup verification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking backup update: %w", err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}

	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Reports

func (s *SQLiteStore) InsertReport(ctx context.Context, r *model.ComplianceReport, audit *model.AuditLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO compliance_reports
		   (id, tenant_id, report_type, period_start, period_end, version, total_records,
		    total_employees, total_hours, anomalies, generated_at, is_submitted, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL)`,
		r.ID, r.TenantID, r.ReportType, fmtTime(r.PeriodStart), fmtTime(r.PeriodEnd), r.Version,
		r.TotalRecords, r.TotalEmployees, r.TotalHours, r.Anomalies, fmtTime(r.GeneratedAt))
	if err != nil {
		return fmt.Errorf("inserting report: %w", err)
	}

	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LatestReportVersion(ctx context.Context, tenantID, reportType string, periodStart, periodEnd time.Time) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM compliance_reports
		 WHERE tenant_id = ? AND report_type = ? AND period_start = ? AND period_end = ?`,
		tenantID, reportType, fmtTime(periodStart), fmtTime(periodEnd))
	var version int
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("reading latest report version: %w", err)
	}
	return version, nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, tenantID string) ([]model.ComplianceReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, report_type, period_start, period_end, version, total_records,
		        total_employees, total_hours, anomalies, generated_at, is_submitted, submitted_at
		 FROM compliance_reports WHERE tenant_id = ? ORDER BY generated_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	var reports []model.ComplianceReport
	for rows.Next() {
		var r model.ComplianceReport
		var periodStart, periodEnd, generatedAt string
		var submittedAt sql.NullString
		if err := rows.Scan(&r.ID, &r.TenantID, &r.ReportType, &periodStart, &periodEnd, &r.Version,
			&r.TotalRecords, &r.TotalEmployees, &r.TotalHours, &r.Anomalies, &generatedAt,
			&r.SubmittedToAuthorities, &submittedAt); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		if r.PeriodStart, err = parseTime(periodStart); err != nil {
			return nil, err
		}
		if r.PeriodEnd, err = parseTime(periodEnd); err != nil {
			return nil, err
		}
		if r.GeneratedAt, err = parseTime(generatedAt); err != nil {
			return nil, err
		}
		if submittedAt.Valid {
			t, err := parseTime(submittedAt.String)
			if err != nil {
				return nil, err
			}
			r.SubmittedAt = &t
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reports: %w", err)
	}
	return reports, nil
}

func (s *SQLiteStore) MarkReportSubmitted(ctx context.Context, reportID string, at time.Time, audit *model.AuditLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE compliance_reports SET is_submitted = 1, submitted_at = ? WHERE id = ?`,
		fmtTime(at), reportID)
	if err != nil {
		return fmt.Errorf("marking report submitted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking report update: %w", err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}

	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Time helpers

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}
