package engine

import (
	"context"
	"time"

	"ouvidor/internal/capability"
	"ouvidor/internal/domain"
	"ouvidor/internal/sla"
)

// ReportSummary is the office-wide aggregate view.
type ReportSummary struct {
	Total    int                   `json:"total"`
	ByStatus map[domain.Status]int `json:"by_status"`
	ByType   map[domain.Type]int   `json:"by_type"`
	ByDay    map[string]int        `json:"by_day"`
	Overdue  int                   `json:"overdue"`
}

// Report assembles the summary over the given creation window in days.
func (e Engine) Report(ctx context.Context, actor domain.Actor, days int) (ReportSummary, error) {
	if err := capability.For(actor.Role).Require(capability.ViewReports); err != nil {
		return ReportSummary{}, err
	}
	if days <= 0 {
		days = 30
	}
	now := e.now()
	byStatus, err := e.Repo.CountManifestationsByStatus(ctx)
	if err != nil {
		return ReportSummary{}, err
	}
	byType, err := e.Repo.CountManifestationsByType(ctx)
	if err != nil {
		return ReportSummary{}, err
	}
	byDay, err := e.Repo.CountManifestationsByDay(ctx, days, now)
	if err != nil {
		return ReportSummary{}, err
	}
	overdue, err := e.Repo.CountOverdue(ctx, now)
	if err != nil {
		return ReportSummary{}, err
	}
	total := 0
	for _, n := range byStatus {
		total += n
	}
	return ReportSummary{
		Total:    total,
		ByStatus: byStatus,
		ByType:   byType,
		ByDay:    byDay,
		Overdue:  overdue,
	}, nil
}

// ClassifyDeadline computes the urgency bucket for one manifestation.
func (e Engine) ClassifyDeadline(m domain.Manifestation) sla.Classification {
	var deadline *time.Time
	if m.ResponseDeadline != nil {
		if t, err := time.Parse(time.RFC3339, *m.ResponseDeadline); err == nil {
			deadline = &t
		}
	}
	return sla.Classify(deadline, m.Status, e.now())
}
