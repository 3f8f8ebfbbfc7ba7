// Package sla classifies response deadlines into urgency buckets. The
// classification is stateless and recomputed on every read; it is never
// persisted.
package sla

import (
	"time"

	"ouvidor/internal/domain"
)

// Bucket is the urgency classification of a deadline.
type Bucket string

const (
	Complete   Bucket = "complete"
	NoDeadline Bucket = "no_deadline"
	Overdue    Bucket = "overdue"
	Urgent     Bucket = "urgent"
	Upcoming   Bucket = "upcoming"
	OnTrack    Bucket = "on_track"
)

// Classification carries the bucket plus whichever distance applies:
// DaysLate for overdue, HoursLeft for urgent, DaysLeft otherwise.
type Classification struct {
	Bucket    Bucket `json:"bucket" enum:"complete,no_deadline,overdue,urgent,upcoming,on_track"`
	DaysLate  int    `json:"days_late,omitempty"`
	HoursLeft int    `json:"hours_left,omitempty"`
	DaysLeft  int    `json:"days_left,omitempty"`
}

// Classify maps a deadline and lifecycle status to an urgency bucket.
// Responded and closed records are complete regardless of deadline.
// Distances truncate toward zero, so one minute past due is overdue with
// zero whole days late.
func Classify(deadline *time.Time, status domain.Status, now time.Time) Classification {
	if status == domain.StatusResponded || status == domain.StatusClosed {
		return Classification{Bucket: Complete}
	}
	if deadline == nil {
		return Classification{Bucket: NoDeadline}
	}
	hoursLeft := deadline.Sub(now).Hours()
	switch {
	case hoursLeft < 0:
		return Classification{Bucket: Overdue, DaysLate: int(-hoursLeft / 24)}
	case hoursLeft < 24:
		return Classification{Bucket: Urgent, HoursLeft: int(hoursLeft)}
	default:
		daysLeft := int(hoursLeft / 24)
		if daysLeft <= 3 {
			return Classification{Bucket: Upcoming, DaysLeft: daysLeft}
		}
		return Classification{Bucket: OnTrack, DaysLeft: daysLeft}
	}
}
