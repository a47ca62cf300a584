package ledger

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"tcl-go/internal/model"
)

// compressionGzip is the only compression scheme currently produced.
const compressionGzip = "gzip"

// snapshotHeader is the first JSON line of a backup artifact. It pins the
// chain head observed at capture time so a replay can detect artifacts that
// silently dropped trailing records.
type snapshotHeader struct {
	TenantID    string    `json:"tenant_id"`
	CapturedAt  time.Time `json:"captured_at"`
	RecordCount int64     `json:"record_count"`
	HeadNSR     int64     `json:"head_nsr"`
	HeadHash    string    `json:"head_hash"`
}

// snapshotEntry mirrors model.TimecardEntry with explicit JSON tags. All
// fields are concrete (no maps), so serialization order is deterministic.
type snapshotEntry struct {
	ID           string    `json:"id"`
	EmployeeID   string    `json:"employee_id"`
	EventType    string    `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
	Latitude     *float64  `json:"latitude"`
	Longitude    *float64  `json:"longitude"`
	Source       string    `json:"source"`
	NSR          int64     `json:"nsr"`
	PreviousHash string    `json:"previous_hash"`
	CurrentHash  string    `json:"current_hash"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Snapshot captures the tenant's full ordered entry set plus chain head into
// a gzip-compressed JSON-lines artifact and stores it in the vault under the
// artifact's SHA-256 checksum. The read happens under the tenant lock so a
// concurrent append cannot produce a torn backup; appends for other tenants
// are unaffected. Snapshots are daily and idempotent: a date that already
// has a backup returns the existing record.
func (s *Service) Snapshot(ctx context.Context, tenantID string, actor Actor) (*model.BackupRecord, error) {
	if tenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	if err := actor.validate(); err != nil {
		return nil, err
	}

	lock := s.locks.get(tenantID)
	lock.Lock()
	defer lock.Unlock()

	date := s.clock.Now().UTC().Format("2006-01-02")
	existing, err := s.store.BackupByDate(ctx, tenantID, date)
	if err == nil {
		s.logger.Info("backup already exists for date", "tenant", tenantID, "date", date, "verified", existing.IsVerified)
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("checking existing backup: %w", err)
	}

	entries, head, err := s.store.SnapshotEntries(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("reading entries: %w", err)
	}

	artifact, err := encodeSnapshot(tenantID, entries, head, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(artifact)
	checksum := hex.EncodeToString(sum[:])
	if err := s.vault.PutArtifact(checksum, bytes.NewReader(artifact), int64(len(artifact))); err != nil {
		return nil, fmt.Errorf("storing artifact: %w", err)
	}

	record := &model.BackupRecord{
		ID:            s.idgen.New(),
		TenantID:      tenantID,
		BackupDate:    date,
		RecordCount:   int64(len(entries)),
		SizeBytes:     int64(len(artifact)),
		Compression:   compressionGzip,
		Checksum:      checksum,
		ChainHeadNSR:  head.LastNSR,
		ChainHeadHash: head.LastHash,
		CreatedAt:     s.clock.Now().UTC(),
	}

	audit, err := s.newAudit(ctx, tenantID, model.ActionBackup, actor, nil,
		fmt.Sprintf("snapshot %s: %d records, %d bytes", date, record.RecordCount, record.SizeBytes))
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertBackup(ctx, record, audit); err != nil {
		return nil, fmt.Errorf("recording backup: %w", err)
	}

	s.logger.Info("backup captured", "tenant", tenantID, "date", date,
		"records", record.RecordCount, "bytes", record.SizeBytes, "checksum", checksum)
	return record, nil
}

// VerifyBackup fetches the artifact for a tenant and date, confirms its
// checksum, decompresses it, and replays the chain verification algorithm
// over the snapshot contents alone. It separately confirms the snapshot's
// final head matches the live head captured at snapshot time. The outcome is
// recorded either way: a failed backup stays on file as evidence.
func (s *Service) VerifyBackup(ctx context.Context, tenantID, date string, actor Actor) (*model.BackupRecord, error) {
	if tenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	if err := actor.validate(); err != nil {
		return nil, err
	}

	record, err := s.store.BackupByDate(ctx, tenantID, date)
	if err != nil {
		return nil, fmt.Errorf("loading backup record: %w", err)
	}

	lock := s.locks.get(tenantID)
	lock.Lock()
	defer lock.Unlock()

	verr := s.replayBackup(record)
	now := s.clock.Now().UTC()

	reason := "independent replay succeeded"
	verified := true
	if verr != nil {
		reason = fmt.Sprintf("independent replay failed: %v", verr)
		verified = false
	}
	audit, err := s.newAudit(ctx, tenantID, model.ActionBackupVerify, actor, nil, reason)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetBackupVerified(ctx, record.ID, verified, now, audit); err != nil {
		return nil, fmt.Errorf("recording verification outcome: %w", err)
	}

	record.IsVerified = verified
	record.VerifiedAt = &now
	if verr != nil {
		s.logger.Error("backup verification failed", "tenant", tenantID, "date", date, "error", verr)
		return record, &BackupIntegrityError{TenantID: tenantID, BackupDate: date, Reason: verr.Error()}
	}
	s.logger.Info("backup verified", "tenant", tenantID, "date", date, "records", record.RecordCount)
	return record, nil
}

// replayBackup performs the independent verification of one artifact.
func (s *Service) replayBackup(record *model.BackupRecord) error {
	var buf bytes.Buffer
	if err := s.vault.GetArtifact(record.Checksum, &buf); err != nil {
		return fmt.Errorf("fetching artifact: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	if hex.EncodeToString(sum[:]) != record.Checksum {
		return fmt.Errorf("artifact checksum mismatch")
	}

	header, entries, err := decodeSnapshot(buf.Bytes())
	if err != nil {
		return err
	}
	if header.TenantID != record.TenantID {
		return fmt.Errorf("artifact belongs to tenant %s", header.TenantID)
	}
	if int64(len(entries)) != record.RecordCount || header.RecordCount != record.RecordCount {
		return fmt.Errorf("record count mismatch: artifact has %d, record says %d", len(entries), record.RecordCount)
	}
	if header.HeadNSR != record.ChainHeadNSR || header.HeadHash != record.ChainHeadHash {
		return fmt.Errorf("artifact head does not match head captured at snapshot time")
	}

	head := &model.ChainHead{
		TenantID: record.TenantID,
		Scope:    model.ScopeLedger,
		LastNSR:  record.ChainHeadNSR,
		LastHash: record.ChainHeadHash,
	}
	result := replayChain(record.TenantID, entries, head, s.clock.Now().UTC())
	if !result.IsValid {
		first := result.Errors[0]
		return fmt.Errorf("chain replay found %d issue(s), first at NSR %d (%s)", len(result.Errors), first.NSR, first.Kind)
	}
	return nil
}

// ListBackups returns the tenant's backup records, newest first.
func (s *Service) ListBackups(ctx context.Context, tenantID string) ([]model.BackupRecord, error) {
	if tenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	list, err := s.store.ListBackups(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	return list, nil
}

func encodeSnapshot(tenantID string, entries []model.TimecardEntry, head *model.ChainHead, at time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)

	header := snapshotHeader{
		TenantID:    tenantID,
		CapturedAt:  at,
		RecordCount: int64(len(entries)),
		HeadNSR:     head.LastNSR,
		HeadHash:    head.LastHash,
	}
	if err := enc.Encode(header); err != nil {
		return nil, fmt.Errorf("encoding snapshot header: %w", err)
	}
	for i := range entries {
		e := &entries[i]
		se := snapshotEntry{
			ID:           e.ID,
			EmployeeID:   e.EmployeeID,
			EventType:    e.EventType,
			Timestamp:    e.Timestamp,
			Latitude:     e.Latitude,
			Longitude:    e.Longitude,
			Source:       e.Source,
			NSR:          e.NSR,
			PreviousHash: e.PreviousHash,
			CurrentHash:  e.CurrentHash,
			Status:       e.Status,
			CreatedAt:    e.CreatedAt,
		}
		if err := enc.Encode(se); err != nil {
			return nil, fmt.Errorf("encoding snapshot entry NSR %d: %w", e.NSR, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing artifact: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(artifact []byte) (*snapshotHeader, []model.TimecardEntry, error) {
	zr, err := gzip.NewReader(bytes.NewReader(artifact))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing artifact: %w", err)
	}
	defer zr.Close()

	dec := json.NewDecoder(zr)
	var header snapshotHeader
	if err := dec.Decode(&header); err != nil {
		return nil, nil, fmt.Errorf("decoding snapshot header: %w", err)
	}

	var entries []model.TimecardEntry
	for {
		var se snapshotEntry
		if err := dec.Decode(&se); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, fmt.Errorf("decoding snapshot entry: %w", err)
		}
		entries = append(entries, model.TimecardEntry{
			ID:           se.ID,
			TenantID:     header.TenantID,
			EmployeeID:   se.EmployeeID,
			EventType:    se.EventType,
			Timestamp:    se.Timestamp,
			Latitude:     se.Latitude,
			Longitude:    se.Longitude,
			Source:       se.Source,
			NSR:          se.NSR,
			PreviousHash: se.PreviousHash,
			CurrentHash:  se.CurrentHash,
			Status:       se.Status,
			CreatedAt:    se.CreatedAt,
		})
	}
	return &header, entries, nil
}
