package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tcl-go/internal/model"
)

// GenerateReport aggregates verified ledger data for a period into a
// regulator-facing report. The tenant's chain is verified first; a report is
// never produced over unverified data, so a broken chain fails with
// ChainBrokenError and no report row. Regeneration for the same period and
// type creates a new version; what was already submitted to authorities is
// never overwritten.
func (s *Service) GenerateReport(ctx context.Context, tenantID, reportType string, periodStart, periodEnd time.Time, actor Actor) (*model.ComplianceReport, error) {
	if tenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	switch reportType {
	case model.ReportMonthly, model.ReportAnnual, model.ReportAudit:
	default:
		return nil, &ValidationError{Field: "report_type", Reason: fmt.Sprintf("unknown value %q", reportType)}
	}
	if periodStart.IsZero() || periodEnd.IsZero() || periodEnd.Before(periodStart) {
		return nil, &ValidationError{Field: "period", Reason: "start must precede end"}
	}
	if err := actor.validate(); err != nil {
		return nil, err
	}

	check, err := s.Verify(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !check.IsValid {
		return nil, &ChainBrokenError{Result: check}
	}

	entries, err := s.store.EntriesInPeriod(ctx, tenantID, periodStart.UTC(), periodEnd.UTC())
	if err != nil {
		return nil, fmt.Errorf("reading period entries: %w", err)
	}

	hours, anomalies := workedHours(entries)

	lock := s.locks.get(tenantID)
	lock.Lock()
	defer lock.Unlock()

	version, err := s.store.LatestReportVersion(ctx, tenantID, reportType, periodStart.UTC(), periodEnd.UTC())
	if err != nil {
		return nil, fmt.Errorf("reading latest report version: %w", err)
	}

	report := &model.ComplianceReport{
		ID:             s.idgen.New(),
		TenantID:       tenantID,
		ReportType:     reportType,
		PeriodStart:    periodStart.UTC(),
		PeriodEnd:      periodEnd.UTC(),
		Version:        version + 1,
		TotalRecords:   int64(len(entries)),
		TotalEmployees: int64(distinctEmployees(entries)),
		TotalHours:     hours,
		Anomalies:      anomalies,
		GeneratedAt:    s.clock.Now().UTC(),
	}

	audit, err := s.newAudit(ctx, tenantID, model.ActionReportGenerate, actor, nil,
		fmt.Sprintf("%s report v%d for %s..%s", reportType, report.Version,
			report.PeriodStart.Format("2006-01-02"), report.PeriodEnd.Format("2006-01-02")))
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertReport(ctx, report, audit); err != nil {
		return nil, fmt.Errorf("storing report: %w", err)
	}

	s.logger.Info("compliance report generated", "tenant", tenantID, "type", reportType,
		"version", report.Version, "records", report.TotalRecords, "hours", report.TotalHours)
	return report, nil
}

// SubmitReport flags a report as submitted to the authorities. The
// aggregates stay frozen; only the submission flag changes.
func (s *Service) SubmitReport(ctx context.Context, tenantID, reportID string, actor Actor) error {
	if err := actor.validate(); err != nil {
		return err
	}

	lock := s.locks.get(tenantID)
	lock.Lock()
	defer lock.Unlock()

	audit, err := s.newAudit(ctx, tenantID, model.ActionReportSubmit, actor, nil,
		fmt.Sprintf("report %s submitted to authorities", reportID))
	if err != nil {
		return err
	}
	if err := s.store.MarkReportSubmitted(ctx, reportID, s.clock.Now().UTC(), audit); err != nil {
		return fmt.Errorf("marking report submitted: %w", err)
	}
	return nil
}

// ListReports returns the tenant's reports, newest first.
func (s *Service) ListReports(ctx context.Context, tenantID string) ([]model.ComplianceReport, error) {
	if tenantID == "" {
		return nil, &ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	list, err := s.store.ListReports(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	return list, nil
}

// workedHours sums completed check-in/check-out pairs per employee.
// Punches without a matching counterpart are excluded from the total and
// counted as anomalies. Breaks do not reduce worked time here; they are
// informational punches.
func workedHours(entries []model.TimecardEntry) (float64, int64) {
	type punch struct {
		at  time.Time
		typ string
	}
	byEmployee := make(map[string][]punch)
	for i := range entries {
		e := &entries[i]
		if e.EventType != model.EventCheckIn && e.EventType != model.EventCheckOut {
			continue
		}
		byEmployee[e.EmployeeID] = append(byEmployee[e.EmployeeID], punch{at: e.Timestamp, typ: e.EventType})
	}

	var total time.Duration
	var anomalies int64
	for _, punches := range byEmployee {
		sort.Slice(punches, func(i, j int) bool { return punches[i].at.Before(punches[j].at) })
		var open *time.Time
		for _, p := range punches {
			switch p.typ {
			case model.EventCheckIn:
				if open != nil {
					// Check-in while already checked in: the earlier
					// punch has no matching check-out.
					anomalies++
				}
				at := p.at
				open = &at
			case model.EventCheckOut:
				if open == nil {
					anomalies++
					continue
				}
				total += p.at.Sub(*open)
				open = nil
			}
		}
		if open != nil {
			anomalies++
		}
	}
	return total.Hours(), anomalies
}

func distinctEmployees(entries []model.TimecardEntry) int {
	seen := make(map[string]struct{})
	for i := range entries {
		seen[entries[i].EmployeeID] = struct{}{}
	}
	return len(seen)
}
