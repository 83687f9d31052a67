package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"teamline/internal/app"
	"teamline/internal/db"
	"teamline/internal/domain"
	"teamline/internal/engine"
	"teamline/internal/migrate"
	"teamline/internal/repo"
	"teamline/internal/routing"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	ctx := context.Background()
	portalID, cfg, err := app.ResolvePortalAndConfig(ctx, "portal-1", r)
	if err != nil {
		t.Fatalf("resolve portal: %v", err)
	}
	cfg.Admins = []string{"admin"}
	router := routing.NewRosterResolver(r, portalID, 0)
	e := engine.New(conn, cfg, portalID, router)
	e.Now = func() time.Time { return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC) }

	members := []domain.Member{
		{ActorID: "client-1", PortalID: portalID, Role: domain.RoleClient, DisplayName: "Carol Client"},
		{ActorID: "sup-1", PortalID: portalID, Role: domain.RoleSupervisor, DisplayName: "Sam Supervisor"},
		{ActorID: "tm-1", PortalID: portalID, Role: domain.RoleTeammate, DisplayName: "Alice Cooper"},
	}
	for _, m := range members {
		if err := r.UpsertMember(ctx, m); err != nil {
			t.Fatalf("seed member: %v", err)
		}
	}
	if err := r.InsertRosterEntry(ctx, domain.RosterEntry{
		ID: "entry-1", PortalID: portalID, TeammateName: "Alice Cooper", SupervisorID: "sup-1",
	}); err != nil {
		t.Fatalf("seed roster: %v", err)
	}

	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{AllowLegacyActorHeader: true}})
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

func doJSON(t *testing.T, client *http.Client, method, url string, body any, actor string) (*http.Response, []byte) {
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
	if actor != "" {
		req.Header.Set("X-Actor-Id", actor)
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

type errEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestAssignmentLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments", map[string]any{
		"title":     "Ship report",
		"due_date":  "2026-02-01",
		"teammates": []string{"Alice Cooper"},
	}, "client-1")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created AssignmentResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal assignment: %v", err)
	}
	if created.Status != "pending_review" {
		t.Fatalf("status = %s, want pending_review", created.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments/"+created.ID+"/supervisor", map[string]any{
		"action": "approve",
	}, "sup-1")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments/"+created.ID+"/teammate", map[string]any{
		"action": "deliver",
		"note":   "done",
	}, "tm-1")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("deliver status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments/"+created.ID+"/complete", map[string]any{}, "admin")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/assignments/"+created.ID, nil, "client-1")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var detail AssignmentDetailResponse
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if detail.Status != "completed" {
		t.Fatalf("detail status = %s, want completed", detail.Status)
	}
	if len(detail.Activity) != 4 {
		t.Fatalf("activity = %d events, want 4", len(detail.Activity))
	}
	if len(detail.Deliveries) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(detail.Deliveries))
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	// Past due date is a domain validation failure.
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments", map[string]any{
		"title":     "Late",
		"due_date":  "2026-01-01",
		"teammates": []string{"Alice Cooper"},
	}, "client-1")
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("past due status %d: %s", res.StatusCode, string(data))
	}
	var env errEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if env.Error.Code != "validation_failed" {
		t.Fatalf("code = %s, want validation_failed", env.Error.Code)
	}

	// No roster entry for the teammate.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments", map[string]any{
		"title":     "Unrouted",
		"due_date":  "2026-02-01",
		"teammates": []string{"Nobody Known"},
	}, "client-1")
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unrouted status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Error.Code != "routing_failure" {
		t.Fatalf("code = %s, want routing_failure", env.Error.Code)
	}

	// Illegal transition.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments", map[string]any{
		"title":     "Conflict",
		"due_date":  "2026-02-01",
		"teammates": []string{"Alice Cooper"},
	}, "client-1")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var created AssignmentResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatal(err)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments/"+created.ID+"/complete", map[string]any{}, "admin")
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Error.Code != "invalid_transition" {
		t.Fatalf("code = %s, want invalid_transition", env.Error.Code)
	}

	// Forbidden.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments/"+created.ID+"/supervisor", map[string]any{
		"action": "approve",
	}, "client-1")
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("forbidden status %d: %s", res.StatusCode, string(data))
	}

	// Unknown assignment.
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/assignments/missing", nil, "client-1")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status %d", res.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/assignments", nil, "")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no auth status %d, want 401", res.StatusCode)
	}
	// Health stays open.
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d, want 200", res.StatusCode)
	}
}

func TestOpenAPISpecConcurrentFetch(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	const fetchers = 4
	bodies := make([][]byte, fetchers)
	var wg sync.WaitGroup
	for i := 0; i < fetchers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := client.Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				t.Errorf("fetch spec: %v", err)
				return
			}
			defer res.Body.Close()
			if res.StatusCode != http.StatusOK {
				t.Errorf("spec status %d", res.StatusCode)
				return
			}
			bodies[i], err = io.ReadAll(res.Body)
			if err != nil {
				t.Errorf("read spec: %v", err)
			}
		}(i)
	}
	wg.Wait()
	for i := 1; i < fetchers; i++ {
		if !bytes.Equal(bodies[0], bodies[i]) {
			t.Fatalf("spec body %d differs from first fetch", i)
		}
	}
	if len(bodies[0]) == 0 {
		t.Fatal("spec body empty")
	}
}

func TestRoleScopedListing(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/assignments", map[string]any{
		"title":     "Scoped",
		"due_date":  "2026-02-01",
		"teammates": []string{"Alice Cooper"},
	}, "client-1")
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}

	// Teammate sees nothing before approval.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/assignments", nil, "tm-1")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("teammate list status %d", res.StatusCode)
	}
	var list []AssignmentResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("teammate sees %d assignments before approval", len(list))
	}

	// Supervisor sees the pending assignment.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/assignments", nil, "sup-1")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("supervisor list status %d", res.StatusCode)
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("supervisor sees %d assignments, want 1", len(list))
	}
}
