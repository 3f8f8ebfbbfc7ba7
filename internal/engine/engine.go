// Package engine orchestrates every mutating operation: capability check,
// lifecycle transition, persistence and side effects run inside one
// transaction so a state change, its audit entry and its notifications
// commit or roll back together.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ouvidor/internal/audit"
	"ouvidor/internal/capability"
	"ouvidor/internal/config"
	"ouvidor/internal/domain"
	"ouvidor/internal/lifecycle"
	"ouvidor/internal/mail"
	"ouvidor/internal/notify"
	"ouvidor/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Audit  audit.Recorder
	Notify notify.Dispatcher
	Mail   mail.Sender
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	e := Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
	e.Audit = audit.Recorder{DB: db, Now: e.Now}
	e.Notify = notify.Dispatcher{Repo: e.Repo, Now: e.Now}
	e.Mail = mail.Disabled{}
	if cfg != nil {
		e.Mail = mail.FromConfig(cfg.Mail.WebhookURL, cfg.Mail.Sender, cfg.Mail.TimeoutSeconds)
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// stamp renders the clock at nanosecond resolution. UpdatedAt doubles as
// the optimistic-concurrency token, so two writes inside the same second
// must still produce distinct values.
func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339Nano)
}

// ValidationError marks malformed or contradictory input, distinct from a
// lifecycle violation.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// requireAssigned enforces the assigned-only restriction: roles carrying it
// may only mutate records they are responsible for.
func requireAssigned(caps capability.Capabilities, m domain.Manifestation, actorID string) error {
	if !caps.Has(capability.AssignedOnly) {
		return nil
	}
	if m.ResponsibleUserID != nil && *m.ResponsibleUserID == actorID {
		return nil
	}
	return capability.ForbiddenError{Capability: capability.AssignedOnly}
}

func parseDeadline(v *string) (*string, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *v)
	if err != nil {
		return nil, validationf("deadline %q is not RFC 3339", *v)
	}
	s := t.UTC().Format(time.RFC3339)
	return &s, nil
}

// CreateOptions are parameters for intake.
type CreateOptions struct {
	Type             domain.Type
	Priority         domain.Priority
	Description      string
	Anonymous        bool
	Confidential     bool
	Channel          domain.Channel
	ResponseDeadline *string
	Complainant      *ComplainantInput
}

type ComplainantInput struct {
	Name    string
	Email   string
	Phone   string
	Consent bool
}

// CreateManifestation registers a new manifestation. Citizens submit with a
// zero-role actor; internal actors need the create capability. The protocol
// number is allocated inside the transaction.
func (e Engine) CreateManifestation(ctx context.Context, actor domain.Actor, opts CreateOptions) (domain.Manifestation, error) {
	if actor.Role != "" {
		if err := capability.For(actor.Role).Require(capability.CreateManifestation); err != nil {
			return domain.Manifestation{}, err
		}
	}
	if !opts.Type.Valid() {
		return domain.Manifestation{}, validationf("unknown manifestation type %q", opts.Type)
	}
	if !opts.Channel.Valid() {
		return domain.Manifestation{}, validationf("unknown channel %q", opts.Channel)
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !opts.Priority.Valid() {
		return domain.Manifestation{}, validationf("unknown priority %q", opts.Priority)
	}
	if opts.Description == "" {
		return domain.Manifestation{}, validationf("description is required")
	}
	if opts.Anonymous && opts.Complainant != nil {
		return domain.Manifestation{}, validationf("anonymous manifestation cannot carry complainant identity")
	}
	if opts.Complainant != nil && !opts.Complainant.Consent {
		return domain.Manifestation{}, validationf("complainant consent is required to store identity")
	}
	deadline, err := parseDeadline(opts.ResponseDeadline)
	if err != nil {
		return domain.Manifestation{}, err
	}
	now := e.now().UTC()
	if deadline == nil && e.Config != nil {
		if days := e.Config.DefaultDeadlineDays(opts.Type); days > 0 {
			d := now.AddDate(0, 0, days).Format(time.RFC3339)
			deadline = &d
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Manifestation{}, err
	}
	defer tx.Rollback()

	protocol, err := e.Repo.NextProtocol(ctx, tx, now.Year())
	if err != nil {
		return domain.Manifestation{}, fmt.Errorf("allocate protocol: %w", err)
	}
	m := domain.Manifestation{
		ID:               uuid.NewString(),
		Protocol:         protocol,
		Type:             opts.Type,
		Status:           domain.StatusNew,
		Priority:         opts.Priority,
		Description:      opts.Description,
		Anonymous:        opts.Anonymous,
		Confidential:     opts.Confidential,
		Channel:          opts.Channel,
		ResponseDeadline: deadline,
		CreatedAt:        now.Format(time.RFC3339Nano),
		UpdatedAt:        now.Format(time.RFC3339Nano),
	}
	if opts.Complainant != nil {
		c := domain.Complainant{
			ID:        uuid.NewString(),
			Name:      opts.Complainant.Name,
			Email:     opts.Complainant.Email,
			Phone:     opts.Complainant.Phone,
			Consent:   opts.Complainant.Consent,
			CreatedAt: m.CreatedAt,
		}
		if c.Name == "" {
			return domain.Manifestation{}, validationf("complainant name is required")
		}
		if err := e.Repo.InsertComplainantTx(ctx, tx, c); err != nil {
			return domain.Manifestation{}, fmt.Errorf("insert complainant: %w", err)
		}
		m.ComplainantID = &c.ID
	}
	if err := e.Repo.InsertManifestationTx(ctx, tx, m); err != nil {
		return domain.Manifestation{}, fmt.Errorf("insert manifestation: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, "manifestation.created", "manifestation", m.ID, actorID(actor), nil, m); err != nil {
		return domain.Manifestation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Manifestation{}, err
	}
	return m, nil
}

func actorID(actor domain.Actor) string {
	if actor.ID == "" {
		return "citizen"
	}
	return actor.ID
}

// ForwardOptions are parameters for routing a manifestation to a sector.
type ForwardOptions struct {
	DestinationSectorID string
	DestinationUserID   *string
	Instructions        string
	Deadline            *string
}

// Forward routes the manifestation to a destination sector. If the record
// requires protection (confidential, anonymous or a denunciation), the
// complainant link is scrubbed before the record crosses the sector
// boundary; the scrub is irreversible.
func (e Engine) Forward(ctx context.Context, actor domain.Actor, id string, opts ForwardOptions) (domain.Manifestation, domain.ForwardingRecord, error) {
	caps := capability.For(actor.Role)
	if err := caps.Require(capability.ForwardManifestation); err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	if opts.DestinationSectorID == "" {
		return domain.Manifestation{}, domain.ForwardingRecord{}, validationf("destination sector is required")
	}
	deadline, err := parseDeadline(opts.Deadline)
	if err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetManifestationTx(ctx, tx, id)
	if err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	if err := requireAssigned(caps, m, actor.ID); err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	ok, err := e.Repo.SectorExistsTx(ctx, tx, opts.DestinationSectorID)
	if err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	if !ok {
		return domain.Manifestation{}, domain.ForwardingRecord{}, validationf("destination sector %s does not exist", opts.DestinationSectorID)
	}
	next, err := lifecycle.Transition(m.Status, lifecycle.ActionForward)
	if err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}

	before := m
	now := e.stamp()
	fwd := domain.ForwardingRecord{
		ID:                uuid.NewString(),
		ManifestationID:   m.ID,
		OriginSectorID:    m.ResponsibleSector,
		DestinationSector: opts.DestinationSectorID,
		OriginUserID:      actor.ID,
		DestinationUserID: opts.DestinationUserID,
		Instructions:      opts.Instructions,
		Deadline:          deadline,
		Status:            domain.ForwardingPending,
		CreatedAt:         now,
	}
	if lifecycle.RequiresAnonymization(m.Type, m.Confidential, m.Anonymous) {
		m.ComplainantID = nil
		m.Anonymous = true
	}
	m.Status = next
	m.ResponsibleSector = &fwd.DestinationSector
	if opts.DestinationUserID != nil {
		m.ResponsibleUserID = opts.DestinationUserID
	}
	if deadline != nil {
		m.ResponseDeadline = deadline
	}
	m.UpdatedAt = now

	if err := e.Repo.InsertForwardingTx(ctx, tx, fwd); err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, fmt.Errorf("insert forwarding: %w", err)
	}
	if err := e.Repo.UpdateManifestationTx(ctx, tx, m, before.UpdatedAt); err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	if err := e.Notify.ForwardedTx(ctx, tx, m, fwd); err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, fmt.Errorf("notify forward: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, "manifestation.forwarded", "manifestation", m.ID, actor.ID, before, m); err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	return m, fwd, nil
}

// applyAction runs a plain status transition with no extra writes.
func (e Engine) applyAction(ctx context.Context, actor domain.Actor, id string, action lifecycle.Action, capa capability.Capability, mutate func(m *domain.Manifestation, now string)) (domain.Manifestation, error) {
	caps := capability.For(actor.Role)
	if err := caps.Require(capa); err != nil {
		return domain.Manifestation{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Manifestation{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetManifestationTx(ctx, tx, id)
	if err != nil {
		return domain.Manifestation{}, err
	}
	if err := requireAssigned(caps, m, actor.ID); err != nil {
		return domain.Manifestation{}, err
	}
	next, err := lifecycle.Transition(m.Status, action)
	if err != nil {
		return domain.Manifestation{}, err
	}
	before := m
	now := e.stamp()
	m.Status = next
	m.UpdatedAt = now
	if mutate != nil {
		mutate(&m, now)
	}
	if err := e.Repo.UpdateManifestationTx(ctx, tx, m, before.UpdatedAt); err != nil {
		return domain.Manifestation{}, err
	}
	if err := e.Audit.Append(ctx, tx, "manifestation."+string(action), "manifestation", m.ID, actor.ID, before, m); err != nil {
		return domain.Manifestation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Manifestation{}, err
	}
	return m, nil
}

// Analyze moves a fresh manifestation into triage.
func (e Engine) Analyze(ctx context.Context, actor domain.Actor, id string) (domain.Manifestation, error) {
	return e.applyAction(ctx, actor, id, lifecycle.ActionAnalyze, capability.EditManifestation, nil)
}

// StartService marks the destination sector as actively handling the record.
func (e Engine) StartService(ctx context.Context, actor domain.Actor, id string) (domain.Manifestation, error) {
	return e.applyAction(ctx, actor, id, lifecycle.ActionStartService, capability.EditManifestation, nil)
}

// AwaitReturn parks an in-service record until the sector reports back.
func (e Engine) AwaitReturn(ctx context.Context, actor domain.Actor, id string) (domain.Manifestation, error) {
	return e.applyAction(ctx, actor, id, lifecycle.ActionAwaitReturn, capability.EditManifestation, nil)
}

// Respond records the final answer to the citizen.
func (e Engine) Respond(ctx context.Context, actor domain.Actor, id, response string) (domain.Manifestation, error) {
	if response == "" {
		return domain.Manifestation{}, validationf("response text is required")
	}
	caps := capability.For(actor.Role)
	if err := caps.Require(capability.RespondManifestation); err != nil {
		return domain.Manifestation{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Manifestation{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetManifestationTx(ctx, tx, id)
	if err != nil {
		return domain.Manifestation{}, err
	}
	if err := requireAssigned(caps, m, actor.ID); err != nil {
		return domain.Manifestation{}, err
	}
	next, err := lifecycle.Transition(m.Status, lifecycle.ActionRespond)
	if err != nil {
		return domain.Manifestation{}, err
	}
	before := m
	now := e.stamp()
	m.Status = next
	m.Response = &response
	m.RespondedAt = &now
	m.UpdatedAt = now
	if err := e.Repo.UpdateManifestationTx(ctx, tx, m, before.UpdatedAt); err != nil {
		return domain.Manifestation{}, err
	}
	if err := e.Notify.RespondedTx(ctx, tx, m, actor.ID); err != nil {
		return domain.Manifestation{}, err
	}
	if err := e.Audit.Append(ctx, tx, "manifestation.responded", "manifestation", m.ID, actor.ID, before, m); err != nil {
		return domain.Manifestation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Manifestation{}, err
	}
	return m, nil
}

// Close archives a responded manifestation.
func (e Engine) Close(ctx context.Context, actor domain.Actor, id string) (domain.Manifestation, error) {
	return e.applyAction(ctx, actor, id, lifecycle.ActionClose, capability.CloseManifestation, func(m *domain.Manifestation, now string) {
		m.ClosedAt = &now
	})
}

// Cancel aborts a manifestation at any non-terminal point.
func (e Engine) Cancel(ctx context.Context, actor domain.Actor, id, reason string) (domain.Manifestation, error) {
	caps := capability.For(actor.Role)
	if err := caps.Require(capability.CancelManifestation); err != nil {
		return domain.Manifestation{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Manifestation{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetManifestationTx(ctx, tx, id)
	if err != nil {
		return domain.Manifestation{}, err
	}
	if err := requireAssigned(caps, m, actor.ID); err != nil {
		return domain.Manifestation{}, err
	}
	next, err := lifecycle.Transition(m.Status, lifecycle.ActionCancel)
	if err != nil {
		return domain.Manifestation{}, err
	}
	before := m
	now := e.stamp()
	m.Status = next
	m.ClosedAt = &now
	m.UpdatedAt = now
	if err := e.Repo.UpdateManifestationTx(ctx, tx, m, before.UpdatedAt); err != nil {
		return domain.Manifestation{}, err
	}
	after := struct {
		Reason        string               `json:"reason,omitempty"`
		Manifestation domain.Manifestation `json:"manifestation"`
	}{Reason: reason, Manifestation: m}
	if err := e.Audit.Append(ctx, tx, "manifestation.canceled", "manifestation", m.ID, actor.ID, before, after); err != nil {
		return domain.Manifestation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Manifestation{}, err
	}
	return m, nil
}

// EditOptions carries the content fields an edit may change. Nil means keep.
type EditOptions struct {
	Description  *string
	Priority     *domain.Priority
	Confidential *bool
}

// EditContent changes content fields without a status transition. Who may
// edit at which status is decided by the lifecycle rules; confidentiality
// can be raised but never cleared.
func (e Engine) EditContent(ctx context.Context, actor domain.Actor, id string, opts EditOptions) (domain.Manifestation, error) {
	caps := capability.For(actor.Role)
	if err := caps.Require(capability.EditManifestation); err != nil {
		return domain.Manifestation{}, err
	}
	if opts.Priority != nil && !opts.Priority.Valid() {
		return domain.Manifestation{}, validationf("unknown priority %q", *opts.Priority)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Manifestation{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetManifestationTx(ctx, tx, id)
	if err != nil {
		return domain.Manifestation{}, err
	}
	if err := requireAssigned(caps, m, actor.ID); err != nil {
		return domain.Manifestation{}, err
	}
	if !lifecycle.EditAllowed(m.Status, caps.Has(capability.ManageManifestations)) {
		return domain.Manifestation{}, lifecycle.InvalidTransitionError{From: m.Status, Action: "edit"}
	}
	before := m
	if opts.Description != nil {
		if *opts.Description == "" {
			return domain.Manifestation{}, validationf("description cannot be emptied")
		}
		m.Description = *opts.Description
	}
	if opts.Priority != nil {
		m.Priority = *opts.Priority
	}
	if opts.Confidential != nil {
		if m.Confidential && !*opts.Confidential {
			return domain.Manifestation{}, validationf("confidentiality cannot be cleared once set")
		}
		m.Confidential = *opts.Confidential
	}
	m.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateManifestationTx(ctx, tx, m, before.UpdatedAt); err != nil {
		return domain.Manifestation{}, err
	}
	if err := e.Audit.Append(ctx, tx, "manifestation.edited", "manifestation", m.ID, actor.ID, before, m); err != nil {
		return domain.Manifestation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Manifestation{}, err
	}
	return m, nil
}

// DeletePermanently removes the manifestation and its dependents. The audit
// trail keeps the final snapshot; nothing else survives.
func (e Engine) DeletePermanently(ctx context.Context, actor domain.Actor, id string) error {
	if err := capability.For(actor.Role).Require(capability.DeleteManifestation); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetManifestationTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteManifestationTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, "manifestation.deleted", "manifestation", id, actor.ID, m, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// ReturnOptions carries the destination sector's reply for the open
// forwarding leg.
type ReturnOptions struct {
	Status domain.ForwardingStatus
	Note   string
}

// RecordReturn closes the latest open forwarding with the destination's
// reply and applies the configured return transition when it is legal from
// the current status.
func (e Engine) RecordReturn(ctx context.Context, actor domain.Actor, manifestationID string, opts ReturnOptions) (domain.Manifestation, domain.ForwardingRecord, error) {
	caps := capability.For(actor.Role)
	if err := caps.Require(capability.RespondManifestation); err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	if opts.Status != domain.ForwardingResponded && opts.Status != domain.ForwardingLate {
		return domain.Manifestation{}, domain.ForwardingRecord{}, validationf("return status must be responded or late, got %q", opts.Status)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetManifestationTx(ctx, tx, manifestationID)
	if err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	if err := requireAssigned(caps, m, actor.ID); err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	fwd, err := e.Repo.LatestOpenForwardingTx(ctx, tx, manifestationID)
	if err == repo.ErrNotFound {
		return domain.Manifestation{}, domain.ForwardingRecord{}, validationf("no open forwarding for manifestation %s", manifestationID)
	}
	if err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	now := e.stamp()
	if err := e.Repo.SetForwardingReturnTx(ctx, tx, fwd.ID, opts.Status, opts.Note, now); err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	fwd.Status = opts.Status
	fwd.ReturnNote = opts.Note
	fwd.ReturnedAt = &now

	before := m
	if action, ok := e.returnAction(); ok {
		if next, err := lifecycle.Transition(m.Status, action); err == nil {
			m.Status = next
			m.UpdatedAt = now
			if err := e.Repo.UpdateManifestationTx(ctx, tx, m, before.UpdatedAt); err != nil {
				return domain.Manifestation{}, domain.ForwardingRecord{}, err
			}
		}
	}
	if err := e.Notify.ReturnedTx(ctx, tx, m, fwd); err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	if err := e.Audit.Append(ctx, tx, "forwarding.returned", "forwarding", fwd.ID, actor.ID, before, fwd); err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Manifestation{}, domain.ForwardingRecord{}, err
	}
	return m, fwd, nil
}

func (e Engine) returnAction() (lifecycle.Action, bool) {
	if e.Config == nil {
		return "", false
	}
	switch e.Config.OnReturnStatus() {
	case config.OnReturnAwaitingReturn:
		return lifecycle.ActionAwaitReturn, true
	case config.OnReturnInService:
		return lifecycle.ActionStartService, true
	}
	return "", false
}

// SendResponseEmail delivers the recorded response to the given address
// through the mail relay. The attempt is recorded either way; a relay
// failure is surfaced but never undoes the response.
func (e Engine) SendResponseEmail(ctx context.Context, actor domain.Actor, id, recipient string) (domain.Communication, error) {
	if err := capability.For(actor.Role).Require(capability.RespondManifestation); err != nil {
		return domain.Communication{}, err
	}
	if recipient == "" {
		return domain.Communication{}, validationf("recipient is required")
	}
	m, err := e.Repo.GetManifestation(ctx, id)
	if err != nil {
		return domain.Communication{}, err
	}
	if m.Response == nil {
		return domain.Communication{}, validationf("manifestation %s has no recorded response", m.Protocol)
	}
	msg := mail.Message{
		To:       recipient,
		Subject:  fmt.Sprintf("Response to manifestation %s", m.Protocol),
		Body:     *m.Response,
		Protocol: m.Protocol,
	}
	sendErr := e.Mail.Send(ctx, msg)
	comm := domain.Communication{
		ID:              uuid.NewString(),
		ManifestationID: m.ID,
		Recipient:       recipient,
		Subject:         msg.Subject,
		Body:            msg.Body,
		Protocol:        m.Protocol,
		Status:          domain.CommunicationSent,
		CreatedAt:       e.stamp(),
	}
	if sendErr != nil {
		comm.Status = domain.CommunicationFailed
		comm.Error = sendErr.Error()
	}
	if err := e.Repo.InsertCommunication(ctx, comm); err != nil {
		return domain.Communication{}, err
	}
	return comm, sendErr
}

// MarkNotificationRead marks one of the actor's notifications as read.
func (e Engine) MarkNotificationRead(ctx context.Context, actor domain.Actor, id string) (domain.Notification, error) {
	return e.Repo.MarkNotificationRead(ctx, id, actor.ID, e.stamp())
}

// ListManifestations applies the assigned-only scope before delegating to
// the repository.
func (e Engine) ListManifestations(ctx context.Context, actor domain.Actor, filters repo.ManifestationFilters) ([]domain.Manifestation, error) {
	if capability.For(actor.Role).Has(capability.AssignedOnly) {
		filters.UserID = actor.ID
	}
	return e.Repo.ListManifestations(ctx, filters)
}
