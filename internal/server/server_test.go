package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"ouvidor/internal/config"
	"ouvidor/internal/db"
	"ouvidor/internal/domain"
	"ouvidor/internal/engine"
	"ouvidor/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

var (
	adminHeaders    = map[string]string{"X-Actor-Id": "bea", "X-Actor-Role": "admin"}
	ouvidorHeaders  = map[string]string{"X-Actor-Id": "ana", "X-Actor-Role": "ouvidor"}
	analistaHeaders = map[string]string{"X-Actor-Id": "rui", "X-Actor-Role": "analista"}
	viewerHeaders   = map[string]string{"X-Actor-Id": "eva", "X-Actor-Role": "consulta"}
)

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default("ouvidoria-geral")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	ctx := context.Background()
	if err := e.Repo.UpsertOfficeConfig(ctx, cfg.Office.ID, cfg); err != nil {
		t.Fatalf("seed office config: %v", err)
	}
	seedDirectory(t, e)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func seedDirectory(t *testing.T, e engine.Engine) {
	t.Helper()
	ctx := context.Background()
	hr := "HR"
	for _, s := range []domain.Sector{
		{ID: "HR", Name: "Human Resources", CreatedAt: "2026-01-01T00:00:00Z"},
		{ID: "LEGAL", Name: "Legal", CreatedAt: "2026-01-01T00:00:00Z"},
	} {
		if err := e.Repo.UpsertSector(ctx, s); err != nil {
			t.Fatalf("seed sector %s: %v", s.ID, err)
		}
	}
	for _, u := range []domain.User{
		{ID: "bea", Name: "Bea", Role: domain.RoleAdmin, CreatedAt: "2026-01-01T00:00:00Z"},
		{ID: "ana", Name: "Ana", Role: domain.RoleOuvidor, CreatedAt: "2026-01-01T00:00:00Z"},
		{ID: "rui", Name: "Rui", Role: domain.RoleAnalista, SectorID: &hr, CreatedAt: "2026-01-01T00:00:00Z"},
		{ID: "eva", Name: "Eva", Role: domain.RoleConsulta, CreatedAt: "2026-01-01T00:00:00Z"},
	} {
		if err := e.Repo.UpsertUser(ctx, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createComplaint(t *testing.T, srv *testServer) ManifestationResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/manifestations", map[string]any{
		"type":        "complaint",
		"description": "Broken elevator at building B",
		"channel":     "web",
		"complainant": map[string]any{
			"name":    "Joana",
			"email":   "joana@example.org",
			"consent": true,
		},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created ManifestationResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal manifestation: %v", err)
	}
	return created
}

func TestCitizenIntakeAndPublicLookup(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	created := createComplaint(t, srv)
	if created.Protocol == "" {
		t.Fatal("expected protocol")
	}
	if created.Status != domain.StatusNew {
		t.Fatalf("status = %s", created.Status)
	}
	if created.SLA.Bucket == "" {
		t.Fatal("expected deadline classification")
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/public/manifestations/"+created.Protocol, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("public lookup status %d: %s", res.StatusCode, string(data))
	}
	var public PublicManifestationResponse
	if err := json.Unmarshal(data, &public); err != nil {
		t.Fatalf("unmarshal public view: %v", err)
	}
	if public.Protocol != created.Protocol {
		t.Fatalf("protocol = %s", public.Protocol)
	}
	if bytes.Contains(data, []byte("complainant")) || bytes.Contains(data, []byte("responsible")) {
		t.Fatalf("public view leaks internal fields: %s", string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/public/manifestations/OUV-2099-000001", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown protocol status %d: %s", res.StatusCode, string(data))
	}
}

func TestAuthRequiredOnStaffSurface(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/manifestations", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("code = %s", envelope.Error.Code)
	}
}

func TestForwardRespondFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	created := createComplaint(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/manifestations/"+created.ID+"/forward", map[string]any{
		"destination_sector_id": "HR",
		"instructions":          "Verify maintenance contract",
	}, ouvidorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("forward status %d: %s", res.StatusCode, string(data))
	}
	var fwd ForwardResponse
	if err := json.Unmarshal(data, &fwd); err != nil {
		t.Fatalf("unmarshal forward: %v", err)
	}
	if fwd.Manifestation.Status != domain.StatusForwarded {
		t.Fatalf("status after forward = %s", fwd.Manifestation.Status)
	}
	if fwd.Forwarding.DestinationSector != "HR" {
		t.Fatalf("destination = %s", fwd.Forwarding.DestinationSector)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/manifestations/"+created.ID+"/respond", map[string]any{
		"response": "Contractor scheduled for next week.",
	}, ouvidorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("respond status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/manifestations/"+created.ID+"/close", nil, ouvidorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("close status %d: %s", res.StatusCode, string(data))
	}
	var closed ManifestationResponse
	if err := json.Unmarshal(data, &closed); err != nil {
		t.Fatalf("unmarshal closed: %v", err)
	}
	if closed.Status != domain.StatusClosed {
		t.Fatalf("status after close = %s", closed.Status)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/manifestations/"+created.ID+"/forwardings", nil, ouvidorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("forwardings status %d: %s", res.StatusCode, string(data))
	}
	var history []domain.ForwardingRecord
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatalf("unmarshal forwardings: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("forwardings = %d", len(history))
	}
}

func TestErrorEnvelopeTaxonomy(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	created := createComplaint(t, srv)

	type envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}

	// close from new is not a legal transition
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/manifestations/"+created.ID+"/close", nil, ouvidorHeaders)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("close from new status %d: %s", res.StatusCode, string(data))
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Error.Code != "invalid_transition" {
		t.Fatalf("code = %s", env.Error.Code)
	}

	// read-only role cannot forward
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/manifestations/"+created.ID+"/forward", map[string]any{
		"destination_sector_id": "HR",
	}, viewerHeaders)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer forward status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Error.Code != "forbidden" {
		t.Fatalf("code = %s", env.Error.Code)
	}
	if env.Error.Details["capability"] == nil {
		t.Fatalf("missing capability detail: %s", string(data))
	}

	// unknown destination sector is a validation error, not a 404
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/manifestations/"+created.ID+"/forward", map[string]any{
		"destination_sector_id": "NOPE",
	}, ouvidorHeaders)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown sector status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/manifestations/missing", nil, ouvidorHeaders)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing manifestation status %d: %s", res.StatusCode, string(data))
	}
}

func TestAssignedScopeOnList(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	created := createComplaint(t, srv)
	other := createComplaint(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/manifestations/"+created.ID+"/forward", map[string]any{
		"destination_sector_id": "HR",
		"destination_user_id":   "rui",
	}, ouvidorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("forward status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/manifestations", nil, analistaHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("analista list status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedManifestations
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != created.ID {
		t.Fatalf("analista sees %d items: %s", len(page.Items), string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/manifestations", nil, ouvidorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ouvidor list status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("ouvidor sees %d items", len(page.Items))
	}
	_ = other
}

func TestPlanEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	created := createComplaint(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/manifestations/"+created.ID+"/plans", map[string]any{
		"title":     "Replace elevator motor",
		"sector_id": "HR",
	}, ouvidorHeaders)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create plan status %d: %s", res.StatusCode, string(data))
	}
	var plan domain.ActionPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		t.Fatalf("unmarshal plan: %v", err)
	}
	if plan.Status != domain.PlanPending {
		t.Fatalf("plan status = %s", plan.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/plans/"+plan.ID+"/advance", map[string]any{
		"status": "in_progress",
	}, ouvidorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("advance status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &plan); err != nil {
		t.Fatalf("unmarshal plan: %v", err)
	}
	if plan.StartedAt == nil {
		t.Fatal("expected started_at")
	}

	// pending -> done skips in_progress and must be rejected
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/plans/"+plan.ID+"/advance", map[string]any{
		"status": "in_progress",
	}, ouvidorHeaders)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("repeat advance status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/manifestations/"+created.ID+"/plans", nil, ouvidorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list plans status %d: %s", res.StatusCode, string(data))
	}
	var plans []domain.ActionPlan
	if err := json.Unmarshal(data, &plans); err != nil {
		t.Fatalf("unmarshal plans: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("plans = %d", len(plans))
	}
}

func TestNotificationsAndReports(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	created := createComplaint(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/manifestations/"+created.ID+"/forward", map[string]any{
		"destination_sector_id": "HR",
		"destination_user_id":   "rui",
	}, ouvidorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("forward status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/notifications?unread=true", nil, analistaHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("notifications status %d: %s", res.StatusCode, string(data))
	}
	var notes []domain.Notification
	if err := json.Unmarshal(data, &notes); err != nil {
		t.Fatalf("unmarshal notifications: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("notifications = %d: %s", len(notes), string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/notifications/"+notes[0].ID+"/read", nil, analistaHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("mark read status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/notifications?unread=true", nil, analistaHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("notifications status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &notes); err != nil {
		t.Fatalf("unmarshal notifications: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("unread after read = %d", len(notes))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/reports/summary", nil, ouvidorHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("report status %d: %s", res.StatusCode, string(data))
	}
	var summary engine.ReportSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary.Total != 1 {
		t.Fatalf("total = %d", summary.Total)
	}
	if summary.ByStatus["forwarded"] != 1 {
		t.Fatalf("by_status = %v", summary.ByStatus)
	}
}

func TestDirectoryEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v1/sectors/IT", map[string]any{
		"id":   "IT",
		"name": "Information Technology",
	}, adminHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("upsert sector status %d: %s", res.StatusCode, string(data))
	}

	// directory management is admin-only
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/sectors/OPS", map[string]any{
		"id":   "OPS",
		"name": "Operations",
	}, ouvidorHeaders)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("ouvidor upsert status %d: %s", res.StatusCode, string(data))
	}

	// viewer cannot manage the directory
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/sectors/OPS", map[string]any{
		"id":   "OPS",
		"name": "Operations",
	}, viewerHeaders)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("viewer upsert status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/sectors", nil, viewerHeaders)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list sectors status %d: %s", res.StatusCode, string(data))
	}
	var sectors []domain.Sector
	if err := json.Unmarshal(data, &sectors); err != nil {
		t.Fatalf("unmarshal sectors: %v", err)
	}
	if len(sectors) != 3 {
		t.Fatalf("sectors = %d", len(sectors))
	}
}
