// Package notify fans lifecycle events out to in-app notifications.
// Rows are inserted inside the caller's transaction so a notification can
// never outlive a rolled-back state change. Wording is privacy-aware:
// confidential and anonymized records are referenced by protocol only.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ouvidor/internal/domain"
	"ouvidor/internal/repo"
)

const (
	KindForwarded    = "manifestation.forwarded"
	KindResponded    = "manifestation.responded"
	KindReturned     = "forwarding.returned"
	KindPlanAssigned = "plan.assigned"
)

type Dispatcher struct {
	Repo repo.Repo
	Now  func() time.Time
}

func (d Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Dispatcher) insert(ctx context.Context, tx *sql.Tx, userID, kind, title, message, link string) error {
	return d.Repo.InsertNotificationTx(ctx, tx, domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Message:   message,
		Link:      link,
		CreatedAt: d.now().UTC().Format(time.RFC3339),
	})
}

// subject returns the wording fragment identifying a manifestation. For
// protected records only the protocol leaks into the notification body.
func subject(m domain.Manifestation) string {
	if m.Confidential || m.Anonymous {
		return fmt.Sprintf("protocol %s", m.Protocol)
	}
	return fmt.Sprintf("%s %s (%s)", m.Type, m.Protocol, snippet(m.Description, 60))
}

func snippet(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// ForwardedTx notifies the destination of a new routing leg: the named
// destination user when set, otherwise every user of the destination sector.
func (d Dispatcher) ForwardedTx(ctx context.Context, tx *sql.Tx, m domain.Manifestation, fwd domain.ForwardingRecord) error {
	message := fmt.Sprintf("You received %s for handling.", subject(m))
	link := "/manifestations/" + m.ID
	if fwd.DestinationUserID != nil {
		return d.insert(ctx, tx, *fwd.DestinationUserID, KindForwarded, "Manifestation forwarded to you", message, link)
	}
	users, err := d.Repo.ListSectorUsersTx(ctx, tx, fwd.DestinationSector)
	if err != nil {
		return err
	}
	for _, u := range users {
		if err := d.insert(ctx, tx, u.ID, KindForwarded, "Manifestation forwarded to your sector", message, link); err != nil {
			return err
		}
	}
	return nil
}

// ReturnedTx notifies the forwarding's origin user that the destination
// recorded its return.
func (d Dispatcher) ReturnedTx(ctx context.Context, tx *sql.Tx, m domain.Manifestation, fwd domain.ForwardingRecord) error {
	message := fmt.Sprintf("Sector %s returned %s: %s.", fwd.DestinationSector, subject(m), fwd.Status)
	return d.insert(ctx, tx, fwd.OriginUserID, KindReturned, "Forwarding returned", message, "/manifestations/"+m.ID)
}

// RespondedTx notifies the assigned user, if any, that a final response
// was recorded by someone else.
func (d Dispatcher) RespondedTx(ctx context.Context, tx *sql.Tx, m domain.Manifestation, responderID string) error {
	if m.ResponsibleUserID == nil || *m.ResponsibleUserID == responderID {
		return nil
	}
	message := fmt.Sprintf("A final response was recorded for %s.", subject(m))
	return d.insert(ctx, tx, *m.ResponsibleUserID, KindResponded, "Manifestation responded", message, "/manifestations/"+m.ID)
}

// PlanAssignedTx notifies the user made responsible for a new action plan.
func (d Dispatcher) PlanAssignedTx(ctx context.Context, tx *sql.Tx, m domain.Manifestation, plan domain.ActionPlan) error {
	if plan.ResponsibleUserID == nil {
		return nil
	}
	message := fmt.Sprintf("Action plan %q was assigned to you for %s.", plan.Title, subject(m))
	return d.insert(ctx, tx, *plan.ResponsibleUserID, KindPlanAssigned, "Action plan assigned", message, "/manifestations/"+m.ID)
}
