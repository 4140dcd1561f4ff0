package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"deskline/internal/config"
	"deskline/internal/db"
	"deskline/internal/engine"
	"deskline/internal/engine/auth"
	"deskline/internal/migrate"
	"deskline/internal/storage"
)

const (
	testJWTSecret     = "test-jwt-secret"
	testAdminPassword = "test-admin-password"
	testCronSecret    = "test-cron-secret"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Close() { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(workspace)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Auth.JWTSecret = testJWTSecret
	cfg.Auth.AdminPassword = testAdminPassword
	cfg.Cron.Secret = testCronSecret
	store, err := storage.Open(cfg, conn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	e := engine.New(conn, cfg, store)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:     testJWTSecret,
			AdminPassword: testAdminPassword,
			CronSecret:    testCronSecret,
		},
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
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func (s *testServer) doJSON(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func (s *testServer) adminHeaders(t *testing.T) map[string]string {
	t.Helper()
	token, err := auth.ComputeAdminToken(testAdminPassword)
	if err != nil {
		t.Fatalf("admin token: %v", err)
	}
	return map[string]string{AdminHeader: token}
}

// registerAndLogin creates an account over the API and returns bearer headers.
func (s *testServer) registerAndLogin(t *testing.T, email string) map[string]string {
	t.Helper()
	resp, body := s.doJSON(t, http.MethodPost, "/v0/auth/register", map[string]any{
		"name": "Tester", "email": email, "password": "password123",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d body %s", resp.StatusCode, body)
	}
	resp, body = s.doJSON(t, http.MethodPost, "/v0/auth/login", map[string]any{
		"email": email, "password": "password123",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d body %s", resp.StatusCode, body)
	}
	var session SessionResponse
	if err := json.Unmarshal(body, &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + session.Token}
}

func (s *testServer) createSubmission(t *testing.T, userHeaders map[string]string) SubmissionResponse {
	t.Helper()
	resp, body := s.doJSON(t, http.MethodPost, "/v0/submissions", map[string]any{
		"title": "Report", "type": "UPDATE", "content": "all good",
	}, userHeaders)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create submission: status %d body %s", resp.StatusCode, body)
	}
	var sub SubmissionResponse
	if err := json.Unmarshal(body, &sub); err != nil {
		t.Fatalf("decode submission: %v", err)
	}
	return sub
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.doJSON(t, http.MethodGet, "/v0/health", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: status %d", resp.StatusCode)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t, "user@example.com")
	resp, _ := s.doJSON(t, http.MethodPost, "/v0/auth/login", map[string]any{
		"email": "user@example.com", "password": "wrong-password",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login: status %d, want 401", resp.StatusCode)
	}
}

func TestSubmissionLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	user := s.registerAndLogin(t, "author@example.com")
	admin := s.adminHeaders(t)
	sub := s.createSubmission(t, user)

	// Anonymous create is refused.
	resp, _ := s.doJSON(t, http.MethodPost, "/v0/submissions", map[string]any{
		"title": "x", "type": "UPDATE", "content": "y",
	}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous create: status %d, want 401", resp.StatusCode)
	}

	// Non-enum status is a schema-level reject.
	resp, _ = s.doJSON(t, http.MethodPut, "/v0/admin/submissions/"+sub.ID+"/status",
		map[string]any{"status": "DONE"}, admin)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bogus status: status %d, want 400", resp.StatusCode)
	}

	// A user cannot use the admin surface.
	resp, _ = s.doJSON(t, http.MethodPut, "/v0/admin/submissions/"+sub.ID+"/status",
		map[string]any{"status": "REVIEWED"}, user)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user on admin surface: status %d, want 403", resp.StatusCode)
	}

	resp, body := s.doJSON(t, http.MethodPut, "/v0/admin/submissions/"+sub.ID+"/status",
		map[string]any{"status": "ACKNOWLEDGED"}, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set status: status %d body %s", resp.StatusCode, body)
	}

	// Author reply flips the status back to PENDING.
	resp, body = s.doJSON(t, http.MethodPost, "/v0/submissions/"+sub.ID+"/messages",
		map[string]any{"content": "one more thing"}, user)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("post message: status %d body %s", resp.StatusCode, body)
	}
	resp, body = s.doJSON(t, http.MethodGet, "/v0/submissions/"+sub.ID, nil, user)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: status %d", resp.StatusCode)
	}
	var got SubmissionResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != "PENDING" {
		t.Fatalf("status after author reply = %s, want PENDING", got.Status)
	}
}

func TestClosedThreadForbidsPosting(t *testing.T) {
	s := newTestServer(t)
	user := s.registerAndLogin(t, "author@example.com")
	admin := s.adminHeaders(t)
	sub := s.createSubmission(t, user)

	resp, body := s.doJSON(t, http.MethodPut, "/v0/admin/submissions/"+sub.ID+"/thread",
		map[string]any{"closed": true}, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close thread: status %d body %s", resp.StatusCode, body)
	}
	resp, _ = s.doJSON(t, http.MethodPost, "/v0/submissions/"+sub.ID+"/messages",
		map[string]any{"content": "hello?"}, user)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("post on closed thread: status %d, want 403", resp.StatusCode)
	}
}

func TestForeignSubmissionIs404(t *testing.T) {
	s := newTestServer(t)
	owner := s.registerAndLogin(t, "owner@example.com")
	stranger := s.registerAndLogin(t, "stranger@example.com")
	sub := s.createSubmission(t, owner)

	resp, _ := s.doJSON(t, http.MethodGet, "/v0/submissions/"+sub.ID, nil, stranger)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("stranger get: status %d, want 404", resp.StatusCode)
	}
	resp, _ = s.doJSON(t, http.MethodGet, "/v0/submissions/"+sub.ID, nil, s.adminHeaders(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin get: status %d, want 200", resp.StatusCode)
	}
}

func TestTodoAuthorizationOverHTTP(t *testing.T) {
	s := newTestServer(t)
	user := s.registerAndLogin(t, "author@example.com")
	admin := s.adminHeaders(t)
	sub := s.createSubmission(t, user)

	// Admin defines the checklist.
	resp, body := s.doJSON(t, http.MethodPost, "/v0/admin/submissions/"+sub.ID+"/todos",
		map[string]any{"text": "send signed copy"}, admin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add todo: status %d body %s", resp.StatusCode, body)
	}
	var todo TodoResponse
	if err := json.Unmarshal(body, &todo); err != nil {
		t.Fatalf("decode todo: %v", err)
	}

	// A user cannot add items.
	resp, _ = s.doJSON(t, http.MethodPost, "/v0/admin/submissions/"+sub.ID+"/todos",
		map[string]any{"text": "nope"}, user)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user add todo: status %d, want 403", resp.StatusCode)
	}

	// The admin cannot set completion; the author can.
	resp, _ = s.doJSON(t, http.MethodPatch, "/v0/submissions/"+sub.ID+"/todos/"+todo.ID,
		map[string]any{"completed": true}, admin)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("admin set completion: status %d, want 403", resp.StatusCode)
	}
	resp, body = s.doJSON(t, http.MethodPatch, "/v0/submissions/"+sub.ID+"/todos/"+todo.ID,
		map[string]any{"completed": true}, user)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("author set completion: status %d body %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &todo); err != nil {
		t.Fatalf("decode todo: %v", err)
	}
	if !todo.Completed {
		t.Fatal("item was not marked completed")
	}

	// The state is requested, not flipped, so repeating the call holds.
	resp, body = s.doJSON(t, http.MethodPatch, "/v0/submissions/"+sub.ID+"/todos/"+todo.ID,
		map[string]any{"completed": true}, user)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("repeat set completion: status %d body %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &todo); err != nil {
		t.Fatalf("decode todo: %v", err)
	}
	if !todo.Completed {
		t.Fatal("repeated request cleared the item")
	}
}

func TestCronEndpointNeedsSecret(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.doJSON(t, http.MethodPost, "/v0/cron/cleanup", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous cleanup: status %d, want 401", resp.StatusCode)
	}
	resp, body := s.doJSON(t, http.MethodPost, "/v0/cron/cleanup", nil, map[string]string{
		"Authorization": "Bearer " + testCronSecret,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cron cleanup: status %d body %s", resp.StatusCode, body)
	}
	// The admin token also works.
	resp, _ = s.doJSON(t, http.MethodPost, "/v0/cron/cleanup", nil, s.adminHeaders(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin cleanup: status %d", resp.StatusCode)
	}
}

func TestInvalidAdminTokenRejected(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.doJSON(t, http.MethodGet, "/v0/admin/submissions", nil, map[string]string{
		AdminHeader: "forged-token",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("forged admin token: status %d, want 401", resp.StatusCode)
	}
}

func TestPublishedPostRendering(t *testing.T) {
	s := newTestServer(t)
	writer := s.registerAndLogin(t, "writer@example.com")

	resp, body := s.doJSON(t, http.MethodPost, "/v0/posts", map[string]any{
		"title": "Hello World", "body": "# Heading\n\nSome *text*.", "published": true,
	}, writer)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create post: status %d body %s", resp.StatusCode, body)
	}

	resp, body = s.doJSON(t, http.MethodGet, "/v0/posts/hello-world", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get post: status %d body %s", resp.StatusCode, body)
	}
	var post PostResponse
	if err := json.Unmarshal(body, &post); err != nil {
		t.Fatalf("decode post: %v", err)
	}
	if !bytes.Contains([]byte(post.HTML), []byte("<h1")) {
		t.Fatalf("post HTML not rendered: %q", post.HTML)
	}

	// Unpublished posts stay invisible on the public surface.
	resp, _ = s.doJSON(t, http.MethodPost, "/v0/posts", map[string]any{
		"title": "Draft", "body": "wip", "published": false,
	}, writer)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create draft: status %d", resp.StatusCode)
	}
	resp, _ = s.doJSON(t, http.MethodGet, "/v0/posts/draft", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("draft visible: status %d, want 404", resp.StatusCode)
	}
}

func TestLeadIntake(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.doJSON(t, http.MethodPost, "/v0/leads", map[string]any{
		"name": "Prospect", "email": "lead@example.com", "message": "call me",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create lead: status %d body %s", resp.StatusCode, body)
	}
	var lead LeadResponse
	if err := json.Unmarshal(body, &lead); err != nil {
		t.Fatalf("decode lead: %v", err)
	}
	if lead.Status != "NEW" {
		t.Fatalf("lead status = %s, want NEW", lead.Status)
	}

	resp, _ = s.doJSON(t, http.MethodGet, "/v0/admin/leads", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous lead list: status %d, want 401", resp.StatusCode)
	}
	resp, body = s.doJSON(t, http.MethodPut, "/v0/admin/leads/"+lead.ID+"/status",
		map[string]any{"status": "CONTACTED"}, s.adminHeaders(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set lead status: status %d body %s", resp.StatusCode, body)
	}
}

func TestAttachmentUploadDownload(t *testing.T) {
	s := newTestServer(t)
	user := s.registerAndLogin(t, "author@example.com")
	sub := s.createSubmission(t, user)

	payload := []byte("quarterly report contents")
	req, err := http.NewRequest(http.MethodPut,
		s.URL+"/v0/submissions/"+sub.ID+"/file?filename=report.txt", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Authorization", user["Authorization"])
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: status %d body %s", resp.StatusCode, body)
	}
	var att AttachmentResponse
	if err := json.Unmarshal(body, &att); err != nil {
		t.Fatalf("decode attachment: %v", err)
	}
	if att.FileName != "report.txt" || att.Size != int64(len(payload)) {
		t.Fatalf("attachment = %+v", att)
	}

	resp, body = s.doJSON(t, http.MethodGet, "/v0/submissions/"+sub.ID+"/file", nil, s.adminHeaders(t))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download: status %d body %s", resp.StatusCode, body)
	}
	if !bytes.Equal(body, payload) {
		t.Fatalf("download body = %q, want %q", body, payload)
	}

	stranger := s.registerAndLogin(t, "stranger@example.com")
	resp, _ = s.doJSON(t, http.MethodGet, "/v0/submissions/"+sub.ID+"/file", nil, stranger)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign download: status %d, want 404", resp.StatusCode)
	}
}

func TestWebhookDispatcherStopsOnCancel(t *testing.T) {
	s := newTestServer(t)
	s.registerAndLogin(t, "hooked@example.com")

	received := make(chan struct{}, 1)
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case received <- struct{}{}:
		default:
		}
	}))
	defer sink.Close()

	d := newHookDeliverer(s.Engine, config.WebhookConfig{URL: sink.URL})
	d.cursor = 0 // replay from the start of the log
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.run(ctx)
		close(done)
	}()

	select {
	case <-received:
	case <-time.After(10 * time.Second):
		t.Fatal("no delivery arrived")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("delivery loop kept running after cancellation")
	}
}

func TestOpenAPISpecServedConcurrently(t *testing.T) {
	s := newTestServer(t)

	bodies := make([][]byte, 8)
	var wg sync.WaitGroup
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := s.client.Get(s.URL + "/v0/openapi.json")
			if err != nil {
				t.Errorf("get spec: %v", err)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("get spec: status %d", resp.StatusCode)
				return
			}
			bodies[i], _ = io.ReadAll(resp.Body)
		}(i)
	}
	wg.Wait()

	for i, b := range bodies {
		if !json.Valid(b) {
			t.Fatalf("response %d is not valid JSON", i)
		}
		if !bytes.Equal(b, bodies[0]) {
			t.Fatalf("response %d differs from the first", i)
		}
	}
}
