package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"deskline/internal/config"
	"deskline/internal/db"
	"deskline/internal/domain"
	"deskline/internal/engine"
	"deskline/internal/engine/auth"
	"deskline/internal/migrate"
	"deskline/internal/repo"
	"deskline/internal/storage"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Author auth.Identity
	Admin  auth.Identity
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, func(cfg *config.Config) {})
}

func newTestEnvWithConfig(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(dir)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AdminPassword = "admin-password"
	mutate(cfg)
	store, err := storage.Open(cfg, conn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	eng := engine.New(conn, cfg, store)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	u, err := eng.Register(ctx, "Author", "author@example.com", "password123")
	if err != nil {
		t.Fatalf("register author: %v", err)
	}
	return &testEnv{
		Engine: eng,
		Ctx:    ctx,
		Author: auth.UserIdentity(u.ID),
		Admin:  auth.AdminIdentity(),
	}
}

func (env *testEnv) createSubmission(t *testing.T) domain.Submission {
	t.Helper()
	s, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		Title:   "Quarterly report",
		Type:    "UPDATE",
		Content: "All milestones on track.",
	}, env.Author)
	if err != nil {
		t.Fatalf("create submission: %v", err)
	}
	return s
}

func TestCreateSubmissionValidation(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		Type: "UPDATE", Content: "no title",
	}, env.Author); err == nil {
		t.Fatal("expected error for missing title")
	}
	if _, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		Title: "t", Type: "BOGUS", Content: "x",
	}, env.Author); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if _, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		Title: "t", Type: "TODO_LIST",
	}, env.Author); err == nil {
		t.Fatal("expected error for TODO_LIST without items")
	}
	if _, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		Title: "t", Type: "UPDATE",
	}, env.Author); err == nil {
		t.Fatal("expected error for UPDATE without content")
	}
	if _, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		Title: "t", Type: "DOCUMENT",
	}, env.Author); err == nil {
		t.Fatal("expected error for DOCUMENT without file")
	}

	s := env.createSubmission(t)
	if s.Status != string(domain.StatusPending) {
		t.Fatalf("new submission status = %s, want PENDING", s.Status)
	}
	if s.ThreadClosed {
		t.Fatal("new submission thread should be open")
	}
}

func TestSubmissionBelongsToUser(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		Title: "t", Type: "UPDATE", Content: "x",
	}, env.Admin); err == nil {
		t.Fatal("admin should not be able to create submissions")
	}
}

func TestSetStatusEnumRejected(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSubmission(t)

	if _, err := env.Engine.SetStatus(env.Ctx, s.ID, "DONE", env.Admin); err == nil {
		t.Fatal("expected error for non-enum status")
	}
	if _, err := env.Engine.SetStatus(env.Ctx, s.ID, "pending", env.Admin); err == nil {
		t.Fatal("status values are case sensitive")
	}

	// Any valid value is reachable from any other.
	for _, status := range []string{"REVIEWED", "ACKNOWLEDGED", "PENDING", "ACKNOWLEDGED"} {
		updated, err := env.Engine.SetStatus(env.Ctx, s.ID, status, env.Admin)
		if err != nil {
			t.Fatalf("set status %s: %v", status, err)
		}
		if updated.Status != status {
			t.Fatalf("status = %s, want %s", updated.Status, status)
		}
	}
}

func TestSetStatusAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSubmission(t)

	_, err := env.Engine.SetStatus(env.Ctx, s.ID, "REVIEWED", env.Author)
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("author setStatus: got %v, want ForbiddenError", err)
	}
	if _, err := env.Engine.SetStatus(env.Ctx, s.ID, "REVIEWED", auth.Identity{}); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("anonymous setStatus: got %v, want ErrUnauthorized", err)
	}
}

func TestAutoRevertOnAuthorMessage(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSubmission(t)

	if _, err := env.Engine.SetStatus(env.Ctx, s.ID, "ACKNOWLEDGED", env.Admin); err != nil {
		t.Fatalf("set status: %v", err)
	}
	m, err := env.Engine.PostMessage(env.Ctx, s.ID, "hi", env.Author)
	if err != nil {
		t.Fatalf("post message: %v", err)
	}
	if m.IsAdmin {
		t.Fatal("author message flagged as admin")
	}
	got, err := env.Engine.GetSubmission(env.Ctx, s.ID, env.Admin)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if got.Status != string(domain.StatusPending) {
		t.Fatalf("status after author reply = %s, want PENDING", got.Status)
	}
	msgs, err := env.Engine.ListMessages(env.Ctx, s.ID, env.Admin)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Fatalf("messages = %+v, want the posted message", msgs)
	}
}

func TestNoRevertOnAdminMessage(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSubmission(t)

	if _, err := env.Engine.SetStatus(env.Ctx, s.ID, "REVIEWED", env.Admin); err != nil {
		t.Fatalf("set status: %v", err)
	}
	m, err := env.Engine.PostMessage(env.Ctx, s.ID, "please clarify", env.Admin)
	if err != nil {
		t.Fatalf("admin post message: %v", err)
	}
	if !m.IsAdmin {
		t.Fatal("admin message not flagged as admin")
	}
	got, _ := env.Engine.GetSubmission(env.Ctx, s.ID, env.Admin)
	if got.Status != string(domain.StatusReviewed) {
		t.Fatalf("status after admin message = %s, want REVIEWED", got.Status)
	}
}

func TestPostMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSubmission(t)

	if _, err := env.Engine.PostMessage(env.Ctx, s.ID, "", env.Author); err == nil {
		t.Fatal("expected error for empty content")
	}
	if _, err := env.Engine.PostMessage(env.Ctx, s.ID, "   ", env.Author); err == nil {
		t.Fatal("expected error for blank content")
	}
}

func TestClosedThreadRejectsBothSides(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSubmission(t)

	if _, err := env.Engine.SetThreadClosed(env.Ctx, s.ID, true, env.Admin); err != nil {
		t.Fatalf("close thread: %v", err)
	}
	var fe auth.ForbiddenError
	if _, err := env.Engine.PostMessage(env.Ctx, s.ID, "hello", env.Author); !errors.As(err, &fe) {
		t.Fatalf("author post on closed thread: got %v, want ForbiddenError", err)
	}
	if _, err := env.Engine.PostMessage(env.Ctx, s.ID, "hello", env.Admin); !errors.As(err, &fe) {
		t.Fatalf("admin post on closed thread: got %v, want ForbiddenError", err)
	}
}

func TestThreadReopenPolicy(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSubmission(t)

	if _, err := env.Engine.SetThreadClosed(env.Ctx, s.ID, true, env.Admin); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, err := env.Engine.SetThreadClosed(env.Ctx, s.ID, false, env.Admin)
	if err != nil {
		t.Fatalf("reopen under allow policy: %v", err)
	}
	if got.ThreadClosed {
		t.Fatal("thread still closed after reopen")
	}

	strict := newTestEnvWithConfig(t, func(cfg *config.Config) {
		cfg.Workflow.ThreadReopen = config.ReopenForbid
	})
	s2 := strict.createSubmission(t)
	if _, err := strict.Engine.SetThreadClosed(strict.Ctx, s2.ID, true, strict.Admin); err != nil {
		t.Fatalf("close: %v", err)
	}
	var fe auth.ForbiddenError
	if _, err := strict.Engine.SetThreadClosed(strict.Ctx, s2.ID, false, strict.Admin); !errors.As(err, &fe) {
		t.Fatalf("reopen under forbid policy: got %v, want ForbiddenError", err)
	}
}

func TestTodoOrderAndOwnership(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSubmission(t)

	var fe auth.ForbiddenError

	// Only the admin defines the checklist.
	if _, err := env.Engine.AddTodoItem(env.Ctx, s.ID, "sneak one in", env.Author); !errors.As(err, &fe) {
		t.Fatalf("author addTodo: got %v, want ForbiddenError", err)
	}

	for _, text := range []string{"first", "second", "third"} {
		if _, err := env.Engine.AddTodoItem(env.Ctx, s.ID, text, env.Admin); err != nil {
			t.Fatalf("add todo %q: %v", text, err)
		}
	}
	items, err := env.Engine.ListTodoItems(env.Ctx, s.ID, env.Author)
	if err != nil {
		t.Fatalf("list todos: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("todo count = %d, want 3", len(items))
	}
	for i, item := range items {
		if item.Order != i {
			t.Fatalf("item %q order = %d, want %d", item.Text, item.Order, i)
		}
		if item.Completed {
			t.Fatalf("item %q starts completed", item.Text)
		}
	}

	// Only the author works through it.
	if _, err := env.Engine.ToggleTodoItem(env.Ctx, s.ID, items[0].ID, true, env.Admin); !errors.As(err, &fe) {
		t.Fatalf("admin toggle: got %v, want ForbiddenError", err)
	}
	toggled, err := env.Engine.ToggleTodoItem(env.Ctx, s.ID, items[0].ID, true, env.Author)
	if err != nil {
		t.Fatalf("author toggle: %v", err)
	}
	if !toggled.Completed {
		t.Fatal("completion was not set")
	}
	toggled, err = env.Engine.ToggleTodoItem(env.Ctx, s.ID, items[0].ID, false, env.Author)
	if err != nil {
		t.Fatalf("author untoggle: %v", err)
	}
	if toggled.Completed {
		t.Fatal("completion was not cleared")
	}
}

func TestTodoCompletionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSubmission(t)

	item, err := env.Engine.AddTodoItem(env.Ctx, s.ID, "ship it", env.Admin)
	if err != nil {
		t.Fatalf("add todo: %v", err)
	}
	// The caller names the target state, so repeating a request cannot flip
	// the item back.
	for i := 0; i < 2; i++ {
		got, err := env.Engine.ToggleTodoItem(env.Ctx, s.ID, item.ID, true, env.Author)
		if err != nil {
			t.Fatalf("set completed (attempt %d): %v", i+1, err)
		}
		if !got.Completed {
			t.Fatalf("attempt %d: item not completed", i+1)
		}
	}
	items, err := env.Engine.ListTodoItems(env.Ctx, s.ID, env.Author)
	if err != nil {
		t.Fatalf("list todos: %v", err)
	}
	if !items[0].Completed {
		t.Fatal("stored item lost its completion")
	}
}

func TestEnumerationResistance(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSubmission(t)

	other, err := env.Engine.Register(env.Ctx, "Other", "other@example.com", "password123")
	if err != nil {
		t.Fatalf("register other: %v", err)
	}
	stranger := auth.UserIdentity(other.ID)

	// A foreign id and a missing id are indistinguishable.
	if _, err := env.Engine.GetSubmission(env.Ctx, s.ID, stranger); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("stranger get: got %v, want ErrNotFound", err)
	}
	if _, err := env.Engine.GetSubmission(env.Ctx, "no-such-id", stranger); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing get: got %v, want ErrNotFound", err)
	}
	if _, err := env.Engine.PostMessage(env.Ctx, s.ID, "hi", stranger); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("stranger post: got %v, want ErrNotFound", err)
	}
	if _, err := env.Engine.ListMessages(env.Ctx, s.ID, stranger); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("stranger list messages: got %v, want ErrNotFound", err)
	}
	if _, err := env.Engine.ListTodoItems(env.Ctx, s.ID, stranger); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("stranger list todos: got %v, want ErrNotFound", err)
	}

	// The author and admin still see it.
	if _, err := env.Engine.GetSubmission(env.Ctx, s.ID, env.Author); err != nil {
		t.Fatalf("author get: %v", err)
	}
	if _, err := env.Engine.GetSubmission(env.Ctx, s.ID, env.Admin); err != nil {
		t.Fatalf("admin get: %v", err)
	}
}

func TestListSubmissionsScoping(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSubmission(t)

	other, err := env.Engine.Register(env.Ctx, "Other", "other@example.com", "password123")
	if err != nil {
		t.Fatalf("register other: %v", err)
	}
	stranger := auth.UserIdentity(other.ID)

	mine, err := env.Engine.ListSubmissions(env.Ctx, repo.SubmissionFilters{}, env.Author)
	if err != nil {
		t.Fatalf("author list: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != s.ID {
		t.Fatalf("author list = %+v, want own submission", mine)
	}
	theirs, err := env.Engine.ListSubmissions(env.Ctx, repo.SubmissionFilters{}, stranger)
	if err != nil {
		t.Fatalf("stranger list: %v", err)
	}
	if len(theirs) != 0 {
		t.Fatalf("stranger sees %d submissions, want 0", len(theirs))
	}
	// A user cannot widen their view with the author filter.
	sneaky, err := env.Engine.ListSubmissions(env.Ctx, repo.SubmissionFilters{AuthorID: env.Author.UserID}, stranger)
	if err != nil {
		t.Fatalf("sneaky list: %v", err)
	}
	if len(sneaky) != 0 {
		t.Fatalf("author filter leaked %d submissions to a stranger", len(sneaky))
	}
	all, err := env.Engine.ListSubmissions(env.Ctx, repo.SubmissionFilters{}, env.Admin)
	if err != nil {
		t.Fatalf("admin list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("admin list = %d items, want 1", len(all))
	}
	if _, err := env.Engine.ListSubmissions(env.Ctx, repo.SubmissionFilters{Status: "WRONG"}, env.Admin); err == nil {
		t.Fatal("expected error for non-enum status filter")
	}
}

func TestMessageOrderingIsStable(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSubmission(t)

	// The clock is frozen, so every message shares one timestamp and only
	// the insertion sequence can order them.
	for _, content := range []string{"A", "B", "C"} {
		if _, err := env.Engine.PostMessage(env.Ctx, s.ID, content, env.Author); err != nil {
			t.Fatalf("post %q: %v", content, err)
		}
	}
	msgs, err := env.Engine.ListMessages(env.Ctx, s.ID, env.Author)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("message count = %d, want 3", len(msgs))
	}
	for i, want := range []string{"A", "B", "C"} {
		if msgs[i].Content != want {
			t.Fatalf("message[%d] = %q, want %q", i, msgs[i].Content, want)
		}
	}
}

func TestPostMessageNotIdempotent(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSubmission(t)

	for i := 0; i < 2; i++ {
		if _, err := env.Engine.PostMessage(env.Ctx, s.ID, "same text", env.Author); err != nil {
			t.Fatalf("post %d: %v", i, err)
		}
	}
	msgs, _ := env.Engine.ListMessages(env.Ctx, s.ID, env.Author)
	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2 distinct messages", len(msgs))
	}
	if msgs[0].ID == msgs[1].ID {
		t.Fatal("repeated posts share an id")
	}
}

func TestAdminReply(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSubmission(t)

	if _, err := env.Engine.SetAdminReply(env.Ctx, s.ID, "", env.Admin); err == nil {
		t.Fatal("expected error for empty reply")
	}
	got, err := env.Engine.SetAdminReply(env.Ctx, s.ID, "Looks good.", env.Admin)
	if err != nil {
		t.Fatalf("set reply: %v", err)
	}
	if got.AdminReply == nil || *got.AdminReply != "Looks good." {
		t.Fatalf("reply = %v", got.AdminReply)
	}
	var fe auth.ForbiddenError
	if _, err := env.Engine.SetAdminReply(env.Ctx, s.ID, "no", env.Author); !errors.As(err, &fe) {
		t.Fatalf("author reply: got %v, want ForbiddenError", err)
	}
}

func TestAttachmentRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	data := []byte("%PDF-1.4 fake report")
	s, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		Title:    "Signed contract",
		Type:     "DOCUMENT",
		FileName: "contract.pdf",
		MimeType: "application/pdf",
		FileData: data,
	}, env.Author)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	att, err := env.Engine.DownloadAttachment(env.Ctx, s.ID, env.Author)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if att.FileName != "contract.pdf" || string(att.Data) != string(data) {
		t.Fatalf("attachment = %q %q", att.FileName, att.Data)
	}

	plain := env.createSubmission(t)
	if _, err := env.Engine.DownloadAttachment(env.Ctx, plain.ID, env.Author); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("download without file: got %v, want ErrNotFound", err)
	}
}

func TestCleanupExpired(t *testing.T) {
	env := newTestEnvWithConfig(t, func(cfg *config.Config) {
		cfg.Workflow.RetentionDays = 7
	})
	s, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		Title:    "Old document",
		Type:     "DOCUMENT",
		FileName: "old.txt",
		FileData: []byte("stale"),
	}, env.Author)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.ExpiresAt == nil {
		t.Fatal("retention configured but no expiry set")
	}
	if _, err := env.Engine.PostMessage(env.Ctx, s.ID, "note", env.Author); err != nil {
		t.Fatalf("post: %v", err)
	}

	// Not yet expired.
	res, err := env.Engine.CleanupExpired(env.Ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if res.Deleted != 0 {
		t.Fatalf("deleted %d before expiry", res.Deleted)
	}

	env.Engine.Now = func() time.Time { return time.Date(2025, 6, 9, 12, 0, 0, 0, time.UTC) }
	res, err = env.Engine.CleanupExpired(env.Ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if res.Deleted != 1 {
		t.Fatalf("deleted = %d, want 1", res.Deleted)
	}
	if _, err := env.Engine.GetSubmission(env.Ctx, s.ID, env.Admin); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expired submission still readable: %v", err)
	}
	if _, err := env.Engine.Store.Get(env.Ctx, *s.AttachmentRef); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expired blob still stored: %v", err)
	}
}

func TestTodoListSeedsItems(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		Title: "Onboarding",
		Type:  "TODO_LIST",
		Items: []string{"sign NDA", "send ID"},
	}, env.Author)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	items, err := env.Engine.ListTodoItems(env.Ctx, s.ID, env.Author)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].Text != "sign NDA" || items[1].Order != 1 {
		t.Fatalf("seeded items = %+v", items)
	}
}

// recordingStore wraps a real store to observe blob lifecycle.
type recordingStore struct {
	storage.Store
	putRefs    []string
	deleteRefs []string
}

func (r *recordingStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	ref, err := r.Store.Put(ctx, name, data)
	if err == nil {
		r.putRefs = append(r.putRefs, ref)
	}
	return ref, err
}

func (r *recordingStore) Delete(ctx context.Context, ref string) error {
	r.deleteRefs = append(r.deleteRefs, ref)
	return r.Store.Delete(ctx, ref)
}

func TestCreateSubmissionCleansUpBlobOnFailure(t *testing.T) {
	env := newTestEnv(t)
	rec := &recordingStore{Store: env.Engine.Store}
	env.Engine.Store = rec

	// An identity whose user row does not exist makes the insert fail after
	// the blob is already stored.
	ghost := auth.UserIdentity("no-such-user")
	_, err := env.Engine.CreateSubmission(env.Ctx, engine.SubmissionCreateOptions{
		Title:    "Contract",
		Type:     "DOCUMENT",
		FileName: "contract.pdf",
		FileData: []byte("%PDF-1.4 contract"),
	}, ghost)
	if err == nil {
		t.Fatal("expected create to fail for an unknown author")
	}
	if len(rec.putRefs) != 1 {
		t.Fatalf("puts = %d, want 1", len(rec.putRefs))
	}
	if len(rec.deleteRefs) != 1 || rec.deleteRefs[0] != rec.putRefs[0] {
		t.Fatalf("stored blob %q not removed after failed create (deletes: %v)", rec.putRefs[0], rec.deleteRefs)
	}
	if _, err := env.Engine.Store.Get(env.Ctx, rec.putRefs[0]); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("orphaned blob still readable: %v", err)
	}
}

func TestPostOwnershipAndRoles(t *testing.T) {
	env := newTestEnv(t)

	// The shared admin token is not a user account and cannot author posts.
	var fe auth.ForbiddenError
	_, err := env.Engine.CreatePost(env.Ctx, engine.PostCreateOptions{
		Title: "Back Office News", Body: "nope",
	}, env.Admin)
	if !errors.As(err, &fe) {
		t.Fatalf("admin-token create: got %v, want ForbiddenError", err)
	}

	p, err := env.Engine.CreatePost(env.Ctx, engine.PostCreateOptions{
		Title: "Hello World", Body: "# Hi", Published: true,
	}, env.Author)
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if p.AuthorID != env.Author.UserID {
		t.Fatalf("post author = %q, want %q", p.AuthorID, env.Author.UserID)
	}

	other, err := env.Engine.Register(env.Ctx, "Other", "other@example.com", "password123")
	if err != nil {
		t.Fatalf("register other: %v", err)
	}
	stranger := auth.UserIdentity(other.ID)

	newTitle := "Hijacked"
	if _, err := env.Engine.UpdatePost(env.Ctx, p.ID, engine.PostUpdateOptions{Title: &newTitle}, stranger); !errors.As(err, &fe) {
		t.Fatalf("stranger update: got %v, want ForbiddenError", err)
	}
	if err := env.Engine.DeletePost(env.Ctx, p.ID, stranger); !errors.As(err, &fe) {
		t.Fatalf("stranger delete: got %v, want ForbiddenError", err)
	}

	// Role changes go through the back-office token only.
	if _, err := env.Engine.SetUserRole(env.Ctx, other.ID, domain.RoleAdmin, stranger); !errors.As(err, &fe) {
		t.Fatalf("user-set role: got %v, want ForbiddenError", err)
	}
	if _, err := env.Engine.SetUserRole(env.Ctx, other.ID, "ROOT", env.Admin); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if _, err := env.Engine.SetUserRole(env.Ctx, other.ID, domain.RoleAdmin, env.Admin); err != nil {
		t.Fatalf("promote: %v", err)
	}

	// An ADMIN-role user may edit and delete any post.
	newTitle = "Hello Again"
	updated, err := env.Engine.UpdatePost(env.Ctx, p.ID, engine.PostUpdateOptions{Title: &newTitle}, stranger)
	if err != nil {
		t.Fatalf("admin-role update: %v", err)
	}
	if updated.Title != "Hello Again" {
		t.Fatalf("title = %q", updated.Title)
	}
	// Posts can be addressed by slug as well as id.
	if err := env.Engine.DeletePost(env.Ctx, updated.Slug, stranger); err != nil {
		t.Fatalf("admin-role delete by slug: %v", err)
	}
	if _, err := env.Engine.PublishedPost(env.Ctx, updated.Slug); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted post still published: %v", err)
	}
}
