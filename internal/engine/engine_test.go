package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ouvidor/internal/capability"
	"ouvidor/internal/config"
	"ouvidor/internal/db"
	"ouvidor/internal/domain"
	"ouvidor/internal/engine"
	"ouvidor/internal/lifecycle"
	"ouvidor/internal/migrate"
	"ouvidor/internal/repo"
	"ouvidor/internal/sla"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

var (
	ouvidor  = domain.Actor{ID: "ana", Role: domain.RoleOuvidor}
	analista = domain.Actor{ID: "rui", Role: domain.RoleAnalista}
	viewer   = domain.Actor{ID: "eva", Role: domain.RoleConsulta}
)

// newTestEnv opens a throwaway database with a ticking clock, so every
// write gets a distinct optimistic token.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("office-1")
	eng := engine.New(conn, cfg)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	eng.Now = clock
	eng.Audit.Now = clock
	eng.Notify.Now = clock
	ctx := context.Background()
	seed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	for _, s := range []domain.Sector{
		{ID: "HR", Name: "Human Resources", CreatedAt: seed},
		{ID: "LEGAL", Name: "Legal Affairs", CreatedAt: seed},
	} {
		if err := eng.Repo.UpsertSector(ctx, s); err != nil {
			t.Fatalf("seed sector: %v", err)
		}
	}
	hr := "HR"
	for _, u := range []domain.User{
		{ID: "ana", Role: domain.RoleOuvidor, CreatedAt: seed},
		{ID: "rui", Role: domain.RoleAnalista, SectorID: &hr, CreatedAt: seed},
		{ID: "eva", Role: domain.RoleConsulta, CreatedAt: seed},
	} {
		if err := eng.Repo.UpsertUser(ctx, u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func mustCreate(t *testing.T, env testEnv, opts engine.CreateOptions) domain.Manifestation {
	t.Helper()
	if opts.Channel == "" {
		opts.Channel = domain.ChannelWeb
	}
	if opts.Description == "" {
		opts.Description = "something happened"
	}
	m, err := env.Engine.CreateManifestation(env.Ctx, ouvidor, opts)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return m
}

func TestCreateAssignsProtocolAndDefaultDeadline(t *testing.T) {
	env := newTestEnv(t)
	first := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeComplaint})
	if first.Protocol != "OUV-2024-000001" {
		t.Fatalf("protocol = %s", first.Protocol)
	}
	if first.Status != domain.StatusNew {
		t.Fatalf("status = %s", first.Status)
	}
	if first.ResponseDeadline == nil {
		t.Fatal("expected default deadline for complaint")
	}
	deadline, err := time.Parse(time.RFC3339, *first.ResponseDeadline)
	if err != nil {
		t.Fatal(err)
	}
	created, _ := time.Parse(time.RFC3339, first.CreatedAt)
	if got := deadline.Sub(created); got != 30*24*time.Hour {
		t.Fatalf("deadline offset = %v", got)
	}
	second := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeRequest})
	if second.Protocol != "OUV-2024-000002" {
		t.Fatalf("second protocol = %s", second.Protocol)
	}
}

func TestCitizenIntakeNeedsNoRole(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.CreateManifestation(env.Ctx, domain.Actor{}, engine.CreateOptions{
		Type:        domain.TypePraise,
		Channel:     domain.ChannelWeb,
		Description: "great service at the counter",
	})
	if err != nil {
		t.Fatalf("citizen intake: %v", err)
	}
	if m.ResponseDeadline != nil {
		t.Fatal("praise should get no default deadline")
	}
	var ferr capability.ForbiddenError
	if _, err := env.Engine.CreateManifestation(env.Ctx, viewer, engine.CreateOptions{
		Type: domain.TypePraise, Channel: domain.ChannelWeb, Description: "x",
	}); !errors.As(err, &ferr) {
		t.Fatalf("consulta create should be forbidden, got %v", err)
	}
}

func TestForwardRoutesAndNotifiesSector(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeComplaint})
	m, fwd, err := env.Engine.Forward(env.Ctx, ouvidor, m.ID, engine.ForwardOptions{
		DestinationSectorID: "HR",
		Instructions:        "verify the attendance records",
	})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if m.Status != domain.StatusForwarded {
		t.Fatalf("status = %s", m.Status)
	}
	if m.ResponsibleSector == nil || *m.ResponsibleSector != "HR" {
		t.Fatalf("responsible sector = %v", m.ResponsibleSector)
	}
	if fwd.Status != domain.ForwardingPending || fwd.DestinationSector != "HR" {
		t.Fatalf("forwarding = %+v", fwd)
	}
	// rui is HR's only user and should hold the sector notification
	notes, err := env.Engine.Repo.ListNotifications(env.Ctx, "rui", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 {
		t.Fatalf("notifications = %d", len(notes))
	}
	if c := env.Engine.ClassifyDeadline(m); c.Bucket != sla.OnTrack {
		t.Fatalf("bucket = %s", c.Bucket)
	}
}

func TestForwardDeadlineBecomesResponseDeadline(t *testing.T) {
	env := newTestEnv(t)
	// praise gets no deadline at intake, so the one set here is the only one
	m := mustCreate(t, env, engine.CreateOptions{Type: domain.TypePraise})
	if m.ResponseDeadline != nil {
		t.Fatalf("unexpected intake deadline %v", *m.ResponseDeadline)
	}
	due := "2024-01-08T00:00:00Z"
	m, fwd, err := env.Engine.Forward(env.Ctx, ouvidor, m.ID, engine.ForwardOptions{
		DestinationSectorID: "HR",
		Deadline:            &due,
	})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if fwd.Deadline == nil || *fwd.Deadline != due {
		t.Fatalf("forwarding deadline = %v", fwd.Deadline)
	}
	if m.ResponseDeadline == nil || *m.ResponseDeadline != due {
		t.Fatalf("response deadline = %v", m.ResponseDeadline)
	}
	if c := env.Engine.ClassifyDeadline(m); c.Bucket != sla.OnTrack {
		t.Fatalf("bucket = %s", c.Bucket)
	}
}

func TestForwardWithoutAssigneeKeepsResponsibleUser(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeComplaint})
	rui := "rui"
	m, _, err := env.Engine.Forward(env.Ctx, ouvidor, m.ID, engine.ForwardOptions{
		DestinationSectorID: "HR",
		DestinationUserID:   &rui,
	})
	if err != nil {
		t.Fatal(err)
	}
	m, _, err = env.Engine.Forward(env.Ctx, ouvidor, m.ID, engine.ForwardOptions{
		DestinationSectorID: "LEGAL",
	})
	if err != nil {
		t.Fatalf("second forward: %v", err)
	}
	if m.ResponsibleUserID == nil || *m.ResponsibleUserID != "rui" {
		t.Fatalf("responsible user = %v", m.ResponsibleUserID)
	}
	if m.ResponsibleSector == nil || *m.ResponsibleSector != "LEGAL" {
		t.Fatalf("responsible sector = %v", m.ResponsibleSector)
	}
}

func TestForwardToUnknownSectorFailsValidation(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeComplaint})
	_, _, err := env.Engine.Forward(env.Ctx, ouvidor, m.ID, engine.ForwardOptions{DestinationSectorID: "NOPE"})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want validation error, got %v", err)
	}
	got, err := env.Engine.Repo.GetManifestation(env.Ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusNew {
		t.Fatalf("failed forward must not move status, got %s", got.Status)
	}
}

func TestDenunciationForwardAnonymizesIrreversibly(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, engine.CreateOptions{
		Type: domain.TypeDenunciation,
		Complainant: &engine.ComplainantInput{
			Name: "Carlos", Email: "carlos@example.org", Consent: true,
		},
	})
	if m.ComplainantID == nil {
		t.Fatal("complainant should be linked at intake")
	}
	complainantID := *m.ComplainantID
	m, _, err := env.Engine.Forward(env.Ctx, ouvidor, m.ID, engine.ForwardOptions{DestinationSectorID: "LEGAL"})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if m.ComplainantID != nil || !m.Anonymous {
		t.Fatalf("expected scrubbed record, got %+v", m)
	}
	// the identity record itself survives, only the link is gone
	if _, err := env.Engine.Repo.GetComplainant(env.Ctx, complainantID); err != nil {
		t.Fatalf("complainant record: %v", err)
	}
	m, _, err = env.Engine.Forward(env.Ctx, ouvidor, m.ID, engine.ForwardOptions{DestinationSectorID: "HR"})
	if err != nil {
		t.Fatalf("second forward: %v", err)
	}
	if m.ComplainantID != nil || !m.Anonymous {
		t.Fatal("anonymization must survive further routing")
	}
}

func TestRespondCloseFlow(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeComplaint})
	m, _, err := env.Engine.Forward(env.Ctx, ouvidor, m.ID, engine.ForwardOptions{DestinationSectorID: "HR"})
	if err != nil {
		t.Fatal(err)
	}
	m, err = env.Engine.Respond(env.Ctx, ouvidor, m.ID, "issue confirmed and fixed")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if m.Status != domain.StatusResponded || m.Response == nil || m.RespondedAt == nil {
		t.Fatalf("responded record = %+v", m)
	}
	if c := env.Engine.ClassifyDeadline(m); c.Bucket != sla.Complete {
		t.Fatalf("responded bucket = %s", c.Bucket)
	}
	m, err = env.Engine.Close(env.Ctx, ouvidor, m.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if m.Status != domain.StatusClosed || m.ClosedAt == nil {
		t.Fatalf("closed record = %+v", m)
	}
}

func TestTerminalStatusAbsorbs(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeSuggestion})
	m, err := env.Engine.Cancel(env.Ctx, ouvidor, m.ID, "duplicate of OUV-2024-000001")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	var terr lifecycle.InvalidTransitionError
	if _, _, err := env.Engine.Forward(env.Ctx, ouvidor, m.ID, engine.ForwardOptions{DestinationSectorID: "HR"}); !errors.As(err, &terr) {
		t.Fatalf("forward after cancel: %v", err)
	}
	if _, err := env.Engine.Respond(env.Ctx, ouvidor, m.ID, "too late"); !errors.As(err, &terr) {
		t.Fatalf("respond after cancel: %v", err)
	}
	if _, err := env.Engine.Cancel(env.Ctx, ouvidor, m.ID, "again"); !errors.As(err, &terr) {
		t.Fatalf("cancel after cancel: %v", err)
	}
}

func TestEditContentRules(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeComplaint})
	desc := "corrected description"
	m, err := env.Engine.EditContent(env.Ctx, ouvidor, m.ID, engine.EditOptions{Description: &desc})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if m.Description != desc {
		t.Fatalf("description = %s", m.Description)
	}
	confidential := true
	if m, err = env.Engine.EditContent(env.Ctx, ouvidor, m.ID, engine.EditOptions{Confidential: &confidential}); err != nil {
		t.Fatal(err)
	}
	clear := false
	if _, err = env.Engine.EditContent(env.Ctx, ouvidor, m.ID, engine.EditOptions{Confidential: &clear}); err == nil {
		t.Fatal("clearing confidentiality must fail")
	}
	m, err = env.Engine.Cancel(env.Ctx, ouvidor, m.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	var terr lifecycle.InvalidTransitionError
	if _, err := env.Engine.EditContent(env.Ctx, ouvidor, m.ID, engine.EditOptions{Description: &desc}); !errors.As(err, &terr) {
		t.Fatalf("edit after cancel: %v", err)
	}
}

func TestAssignedOnlyScope(t *testing.T) {
	env := newTestEnv(t)
	mine := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeComplaint})
	rui := "rui"
	mine, _, err := env.Engine.Forward(env.Ctx, ouvidor, mine.ID, engine.ForwardOptions{
		DestinationSectorID: "HR", DestinationUserID: &rui,
	})
	if err != nil {
		t.Fatal(err)
	}
	other := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeComplaint})
	var ferr capability.ForbiddenError
	if _, err := env.Engine.Respond(env.Ctx, analista, other.ID, "not mine"); !errors.As(err, &ferr) {
		t.Fatalf("unassigned respond: %v", err)
	}
	if _, err := env.Engine.Respond(env.Ctx, analista, mine.ID, "handled"); err != nil {
		t.Fatalf("assigned respond: %v", err)
	}
	// list for the analista only shows assigned records
	list, err := env.Engine.ListManifestations(env.Ctx, analista, repo.ManifestationFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != mine.ID {
		t.Fatalf("scoped list = %+v", list)
	}
}

func TestConcurrentWriteConflict(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeComplaint})
	stale := m
	if _, _, err := env.Engine.Forward(env.Ctx, ouvidor, m.ID, engine.ForwardOptions{DestinationSectorID: "HR"}); err != nil {
		t.Fatal(err)
	}
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	stale.Description = "lost update"
	err = env.Engine.Repo.UpdateManifestationTx(env.Ctx, tx, stale, stale.UpdatedAt)
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestOptimisticTokenDistinctWithinOneSecond(t *testing.T) {
	env := newTestEnv(t)
	// real clock: back-to-back writes land in the same wall-clock second
	env.Engine.Now = time.Now
	m := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeComplaint})
	stale := m
	desc := "first revision"
	m, err := env.Engine.EditContent(env.Ctx, ouvidor, m.ID, engine.EditOptions{Description: &desc})
	if err != nil {
		t.Fatal(err)
	}
	if m.UpdatedAt == stale.UpdatedAt {
		t.Fatalf("updated_at did not change: %s", m.UpdatedAt)
	}
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	stale.Description = "lost update"
	err = env.Engine.Repo.UpdateManifestationTx(env.Ctx, tx, stale, stale.UpdatedAt)
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestRecordReturnClosesForwarding(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeComplaint})
	m, _, err := env.Engine.Forward(env.Ctx, ouvidor, m.ID, engine.ForwardOptions{DestinationSectorID: "HR"})
	if err != nil {
		t.Fatal(err)
	}
	m, fwd, err := env.Engine.RecordReturn(env.Ctx, ouvidor, m.ID, engine.ReturnOptions{
		Status: domain.ForwardingResponded,
		Note:   "attendance records corrected",
	})
	if err != nil {
		t.Fatalf("record return: %v", err)
	}
	if fwd.Status != domain.ForwardingResponded || fwd.ReturnedAt == nil {
		t.Fatalf("forwarding = %+v", fwd)
	}
	// default routing policy leaves the manifestation status untouched
	if m.Status != domain.StatusForwarded {
		t.Fatalf("status = %s", m.Status)
	}
	// origin user gets notified
	notes, err := env.Engine.Repo.ListNotifications(env.Ctx, "ana", true)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 {
		t.Fatalf("notifications = %d", len(notes))
	}
	var verr engine.ValidationError
	if _, _, err := env.Engine.RecordReturn(env.Ctx, ouvidor, m.ID, engine.ReturnOptions{Status: domain.ForwardingLate}); !errors.As(err, &verr) {
		t.Fatalf("second return: %v", err)
	}
}

func TestDeletePermanentlyKeepsAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	m := mustCreate(t, env, engine.CreateOptions{Type: domain.TypeComplaint})
	var ferr capability.ForbiddenError
	if err := env.Engine.DeletePermanently(env.Ctx, analista, m.ID); !errors.As(err, &ferr) {
		t.Fatalf("analista delete: %v", err)
	}
	if err := env.Engine.DeletePermanently(env.Ctx, ouvidor, m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetManifestation(env.Ctx, m.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	entries, err := env.Engine.Repo.LatestAuditEntries(env.Ctx, 10, "manifestation.deleted", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].EntityID != m.ID {
		t.Fatalf("audit entries = %+v", entries)
	}
}
