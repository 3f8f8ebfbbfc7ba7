package sla

import (
	"testing"
	"time"

	"ouvidor/internal/domain"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func TestClassifyBuckets(t *testing.T) {
	cases := []struct {
		name     string
		deadline *time.Time
		status   domain.Status
		want     Classification
	}{
		{"no deadline", nil, domain.StatusNew, Classification{Bucket: NoDeadline}},
		{"responded is complete", at(-48 * time.Hour), domain.StatusResponded, Classification{Bucket: Complete}},
		{"closed is complete", at(24 * time.Hour), domain.StatusClosed, Classification{Bucket: Complete}},
		{"seven days out", at(7 * 24 * time.Hour), domain.StatusForwarded, Classification{Bucket: OnTrack, DaysLeft: 7}},
		{"exactly three days", at(3 * 24 * time.Hour), domain.StatusForwarded, Classification{Bucket: Upcoming, DaysLeft: 3}},
		{"just over a day", at(25 * time.Hour), domain.StatusForwarded, Classification{Bucket: Upcoming, DaysLeft: 1}},
		{"under a day", at(23 * time.Hour), domain.StatusForwarded, Classification{Bucket: Urgent, HoursLeft: 23}},
		{"one minute late", at(-time.Minute), domain.StatusForwarded, Classification{Bucket: Overdue, DaysLate: 0}},
		{"two days late", at(-49 * time.Hour), domain.StatusForwarded, Classification{Bucket: Overdue, DaysLate: 2}},
	}
	for _, tc := range cases {
		if got := Classify(tc.deadline, tc.status, now); got != tc.want {
			t.Errorf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestCanceledKeepsDeadlineBucket(t *testing.T) {
	// canceled is terminal but not complete: the record was never answered
	got := Classify(at(-24*time.Hour), domain.StatusCanceled, now)
	if got.Bucket != Overdue {
		t.Fatalf("bucket = %s", got.Bucket)
	}
}
