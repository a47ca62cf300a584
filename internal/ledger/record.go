package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tcl-go/internal/model"
)

// EventInput is a punch submitted by a business module.
type EventInput struct {
	TenantID   string
	EmployeeID string
	EventType  string
	Timestamp  time.Time
	Latitude   *float64
	Longitude  *float64
	Source     string
}

func (in *EventInput) validate() error {
	if in.TenantID == "" {
		return &ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	if in.EmployeeID == "" {
		return &ValidationError{Field: "employee_id", Reason: "must not be empty"}
	}
	switch in.EventType {
	case model.EventCheckIn, model.EventCheckOut, model.EventBreakStart, model.EventBreakEnd:
	default:
		return &ValidationError{Field: "event_type", Reason: fmt.Sprintf("unknown value %q", in.EventType)}
	}
	if in.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "must be set"}
	}
	switch in.Source {
	case model.SourceManual, model.SourceAutomatic:
	default:
		return &ValidationError{Field: "source", Reason: fmt.Sprintf("unknown value %q", in.Source)}
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return &ValidationError{Field: "location", Reason: "latitude and longitude must be set together"}
	}
	if in.Latitude != nil {
		if *in.Latitude < -90 || *in.Latitude > 90 {
			return &ValidationError{Field: "latitude", Reason: "out of range"}
		}
		if *in.Longitude < -180 || *in.Longitude > 180 {
			return &ValidationError{Field: "longitude", Reason: "out of range"}
		}
	}
	return nil
}

// RecordEvent appends a punch to the tenant's chain. It assigns the next
// NSR, computes the entry hash against the chain head, and persists the
// entry together with its CREATE audit record as one atomic unit. A
// concurrent writer that advanced the head first surfaces as
// ErrChainHeadConflict; the rejection itself is audit-logged.
func (s *Service) RecordEvent(ctx context.Context, in EventInput, actor Actor) (*model.TimecardEntry, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := actor.validate(); err != nil {
		return nil, err
	}

	lock := s.locks.get(in.TenantID)
	lock.Lock()
	defer lock.Unlock()

	head, err := s.store.ChainHead(ctx, in.TenantID, model.ScopeLedger)
	if err != nil {
		return nil, fmt.Errorf("reading chain head: %w", err)
	}

	entry := &model.TimecardEntry{
		ID:           s.idgen.New(),
		TenantID:     in.TenantID,
		EmployeeID:   in.EmployeeID,
		EventType:    in.EventType,
		Timestamp:    in.Timestamp.UTC(),
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		Source:       in.Source,
		NSR:          head.LastNSR + 1,
		PreviousHash: head.LastHash,
		Status:       model.StatusPending,
		CreatedAt:    s.clock.Now().UTC(),
	}
	entry.CurrentHash = EntryHash(entry.PreviousHash, entry)

	audit, err := s.newAudit(ctx, in.TenantID, model.ActionCreate, actor, &entry.NSR, "")
	if err != nil {
		return nil, err
	}

	if err := s.store.AppendEntry(ctx, entry, audit); err != nil {
		if errors.Is(err, ErrChainHeadConflict) {
			s.recordFailure(ctx, in.TenantID, model.ActionAppendRejected, actor, nil,
				fmt.Sprintf("append at NSR %d rejected: %v", entry.NSR, err))
		}
		return nil, fmt.Errorf("appending entry: %w", err)
	}

	s.logger.Info("timecard entry appended",
		"tenant", in.TenantID, "nsr", entry.NSR, "employee", in.EmployeeID, "type", in.EventType)
	return entry, nil
}
