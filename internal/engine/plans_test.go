package engine_test

import (
	"errors"
	"testing"

	"ouvidor/internal/domain"
	"ouvidor/internal/engine"
	"ouvidor/internal/lifecycle"
)

func TestPlanLifecycle(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeComplaint})
	rui := "rui"
	plan, err := env.Engine.CreatePlan(env.Ctx, ouvidor, m.ID, engine.PlanOptions{
		Title:             "retrain counter staff",
		SectorID:          "HR",
		ResponsibleUserID: &rui,
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if plan.Status != domain.PlanPending {
		t.Fatalf("status = %s", plan.Status)
	}
	notes, err := env.Engine.Repo.ListNotifications(env.Ctx, "rui", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 {
		t.Fatalf("assignment notifications = %d", len(notes))
	}

	plan, err = env.Engine.AdvancePlan(env.Ctx, ouvidor, plan.ID, domain.PlanInProgress)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if plan.StartedAt == nil {
		t.Fatal("started_at not stamped")
	}
	// repeating the same advance is a violation, not a no-op
	var perr lifecycle.InvalidPlanTransitionError
	if _, err := env.Engine.AdvancePlan(env.Ctx, ouvidor, plan.ID, domain.PlanInProgress); !errors.As(err, &perr) {
		t.Fatalf("repeat advance: %v", err)
	}
	plan, err = env.Engine.AdvancePlan(env.Ctx, ouvidor, plan.ID, domain.PlanDone)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if plan.CompletedAt == nil {
		t.Fatal("completed_at not stamped")
	}
	if _, err := env.Engine.AdvancePlan(env.Ctx, ouvidor, plan.ID, domain.PlanCanceled); !errors.As(err, &perr) {
		t.Fatalf("cancel after done: %v", err)
	}
}

func TestPlanRejectedOnTerminalManifestation(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeComplaint})
	if _, err := env.Engine.Cancel(env.Ctx, ouvidor, m.ID, ""); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.CreatePlan(env.Ctx, ouvidor, m.ID, engine.PlanOptions{Title: "x", SectorID: "HR"})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("plan on canceled record: %v", err)
	}
}

func TestPlanNotes(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeComplaint})
	plan, err := env.Engine.CreatePlan(env.Ctx, ouvidor, m.ID, engine.PlanOptions{Title: "audit process", SectorID: "HR"})
	if err != nil {
		t.Fatal(err)
	}
	plan, err = env.Engine.UpdatePlanNotes(env.Ctx, ouvidor, plan.ID, "waiting on supplier quote")
	if err != nil {
		t.Fatal(err)
	}
	if plan.Notes != "waiting on supplier quote" {
		t.Fatalf("notes = %q", plan.Notes)
	}
}

func TestPlanNotesLockedOnceTerminal(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeComplaint})
	plan, err := env.Engine.CreatePlan(env.Ctx, ouvidor, m.ID, engine.PlanOptions{Title: "replace signage", SectorID: "HR"})
	if err != nil {
		t.Fatal(err)
	}
	if plan, err = env.Engine.AdvancePlan(env.Ctx, ouvidor, plan.ID, domain.PlanInProgress); err != nil {
		t.Fatal(err)
	}
	if plan, err = env.Engine.AdvancePlan(env.Ctx, ouvidor, plan.ID, domain.PlanDone); err != nil {
		t.Fatal(err)
	}
	var verr engine.ValidationError
	if _, err := env.Engine.UpdatePlanNotes(env.Ctx, ouvidor, plan.ID, "rewritten after the fact"); !errors.As(err, &verr) {
		t.Fatalf("notes on done plan: %v", err)
	}
	got, err := env.Engine.Repo.GetPlan(env.Ctx, plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Notes != "" {
		t.Fatalf("notes = %q", got.Notes)
	}
}
