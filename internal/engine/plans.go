package engine

import (
	"context"

	"github.com/google/uuid"

	"ouvidor/internal/capability"
	"ouvidor/internal/domain"
	"ouvidor/internal/lifecycle"
)

// PlanOptions are parameters for attaching an action plan.
type PlanOptions struct {
	Title             string
	Description       string
	SectorID          string
	ResponsibleUserID *string
	Deadline          *string
	Notes             string
}

// CreatePlan attaches a remediation plan to a live manifestation.
func (e Engine) CreatePlan(ctx context.Context, actor domain.Actor, manifestationID string, opts PlanOptions) (domain.ActionPlan, error) {
	caps := capability.For(actor.Role)
	if err := caps.Require(capability.ManagePlans); err != nil {
		return domain.ActionPlan{}, err
	}
	if opts.Title == "" {
		return domain.ActionPlan{}, validationf("plan title is required")
	}
	if opts.SectorID == "" {
		return domain.ActionPlan{}, validationf("plan sector is required")
	}
	deadline, err := parseDeadline(opts.Deadline)
	if err != nil {
		return domain.ActionPlan{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActionPlan{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetManifestationTx(ctx, tx, manifestationID)
	if err != nil {
		return domain.ActionPlan{}, err
	}
	if err := requireAssigned(caps, m, actor.ID); err != nil {
		return domain.ActionPlan{}, err
	}
	if m.Status.Terminal() {
		return domain.ActionPlan{}, validationf("manifestation %s is %s; plans can only attach to live records", m.Protocol, m.Status)
	}
	ok, err := e.Repo.SectorExistsTx(ctx, tx, opts.SectorID)
	if err != nil {
		return domain.ActionPlan{}, err
	}
	if !ok {
		return domain.ActionPlan{}, validationf("sector %s does not exist", opts.SectorID)
	}
	now := e.stamp()
	plan := domain.ActionPlan{
		ID:                uuid.NewString(),
		ManifestationID:   m.ID,
		Title:             opts.Title,
		Description:       opts.Description,
		SectorID:          opts.SectorID,
		ResponsibleUserID: opts.ResponsibleUserID,
		Status:            domain.PlanPending,
		Deadline:          deadline,
		Notes:             opts.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.Repo.InsertPlanTx(ctx, tx, plan); err != nil {
		return domain.ActionPlan{}, err
	}
	if err := e.Notify.PlanAssignedTx(ctx, tx, m, plan); err != nil {
		return domain.ActionPlan{}, err
	}
	if err := e.Audit.Append(ctx, tx, "plan.created", "plan", plan.ID, actor.ID, nil, plan); err != nil {
		return domain.ActionPlan{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ActionPlan{}, err
	}
	return plan, nil
}

// AdvancePlan moves a plan along its status machine, stamping start and
// completion times as the edges are crossed.
func (e Engine) AdvancePlan(ctx context.Context, actor domain.Actor, planID string, next domain.PlanStatus) (domain.ActionPlan, error) {
	caps := capability.For(actor.Role)
	if err := caps.Require(capability.ManagePlans); err != nil {
		return domain.ActionPlan{}, err
	}
	if !next.Valid() {
		return domain.ActionPlan{}, validationf("unknown plan status %q", next)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActionPlan{}, err
	}
	defer tx.Rollback()

	plan, err := e.Repo.GetPlanTx(ctx, tx, planID)
	if err != nil {
		return domain.ActionPlan{}, err
	}
	m, err := e.Repo.GetManifestationTx(ctx, tx, plan.ManifestationID)
	if err != nil {
		return domain.ActionPlan{}, err
	}
	if err := requireAssigned(caps, m, actor.ID); err != nil {
		return domain.ActionPlan{}, err
	}
	if err := lifecycle.AdvancePlan(plan.Status, next); err != nil {
		return domain.ActionPlan{}, err
	}
	before := plan
	now := e.stamp()
	plan.Status = next
	plan.UpdatedAt = now
	switch next {
	case domain.PlanInProgress:
		plan.StartedAt = &now
	case domain.PlanDone:
		plan.CompletedAt = &now
	}
	if err := e.Repo.UpdatePlanTx(ctx, tx, plan, before.UpdatedAt); err != nil {
		return domain.ActionPlan{}, err
	}
	if err := e.Audit.Append(ctx, tx, "plan.advanced", "plan", plan.ID, actor.ID, before, plan); err != nil {
		return domain.ActionPlan{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ActionPlan{}, err
	}
	return plan, nil
}

// UpdatePlanNotes replaces the free-form notes on a plan.
func (e Engine) UpdatePlanNotes(ctx context.Context, actor domain.Actor, planID, notes string) (domain.ActionPlan, error) {
	caps := capability.For(actor.Role)
	if err := caps.Require(capability.ManagePlans); err != nil {
		return domain.ActionPlan{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActionPlan{}, err
	}
	defer tx.Rollback()

	plan, err := e.Repo.GetPlanTx(ctx, tx, planID)
	if err != nil {
		return domain.ActionPlan{}, err
	}
	m, err := e.Repo.GetManifestationTx(ctx, tx, plan.ManifestationID)
	if err != nil {
		return domain.ActionPlan{}, err
	}
	if err := requireAssigned(caps, m, actor.ID); err != nil {
		return domain.ActionPlan{}, err
	}
	if plan.Status.Terminal() {
		return domain.ActionPlan{}, validationf("plan %s is %s and can no longer be edited", plan.ID, plan.Status)
	}
	before := plan
	plan.Notes = notes
	plan.UpdatedAt = e.stamp()
	if err := e.Repo.UpdatePlanTx(ctx, tx, plan, before.UpdatedAt); err != nil {
		return domain.ActionPlan{}, err
	}
	if err := e.Audit.Append(ctx, tx, "plan.updated", "plan", plan.ID, actor.ID, before, plan); err != nil {
		return domain.ActionPlan{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ActionPlan{}, err
	}
	return plan, nil
}
