// Package engine implements the submission workflow: status transitions,
// thread messaging with auto-revert, todo checklists and attachment handling.
// Every mutating operation re-resolves authorization against the store and
// runs as a single transaction.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"deskline/internal/config"
	"deskline/internal/domain"
	"deskline/internal/engine/auth"
	"deskline/internal/events"
	"deskline/internal/repo"
	"deskline/internal/storage"
)

// ErrStorageUnavailable wraps attachment store failures so callers can map
// them to a retryable error class instead of a caller fault.
var ErrStorageUnavailable = errors.New("attachment storage unavailable")

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Store  storage.Store
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, store storage.Store) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Store:  store,
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

func actorID(id auth.Identity) string {
	if id.Admin {
		return "admin"
	}
	return id.UserID
}

// resolveSubmission is the authorization gate: the admin sees every
// submission, a user only their own. A user probing someone else's id gets
// the same ErrNotFound as a missing id, so ids cannot be enumerated.
func (e Engine) resolveSubmission(ctx context.Context, id string, ident auth.Identity) (domain.Submission, error) {
	if !ident.Valid() {
		return domain.Submission{}, auth.ErrUnauthorized
	}
	if ident.Admin {
		return e.Repo.GetSubmission(ctx, id)
	}
	return e.Repo.GetSubmissionForAuthor(ctx, id, ident.UserID)
}

func (e Engine) resolveSubmissionTx(ctx context.Context, tx *sql.Tx, id string, ident auth.Identity) (domain.Submission, error) {
	if !ident.Valid() {
		return domain.Submission{}, auth.ErrUnauthorized
	}
	if ident.Admin {
		return e.Repo.GetSubmissionTx(ctx, tx, id)
	}
	return e.Repo.GetSubmissionForAuthorTx(ctx, tx, id, ident.UserID)
}

func requireAdmin(ident auth.Identity) error {
	if !ident.Valid() {
		return auth.ErrUnauthorized
	}
	if !ident.Admin {
		return auth.ForbiddenError{Reason: "admin access required"}
	}
	return nil
}

// SubmissionCreateOptions are parameters for creating a submission.
type SubmissionCreateOptions struct {
	Title    string
	Type     string
	Content  string
	Items    []string
	FileName string
	FileData []byte
	MimeType string
}

func (e Engine) CreateSubmission(ctx context.Context, opts SubmissionCreateOptions, ident auth.Identity) (domain.Submission, error) {
	if e.Config == nil {
		return domain.Submission{}, errors.New("config not loaded")
	}
	if !ident.Valid() || ident.Admin {
		// Submissions always belong to a user account.
		return domain.Submission{}, auth.ErrUnauthorized
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Submission{}, errors.New("title is required")
	}
	subType, err := domain.ParseSubmissionType(opts.Type)
	if err != nil {
		return domain.Submission{}, err
	}
	switch subType {
	case domain.TypeDocument:
		if len(opts.FileData) == 0 {
			return domain.Submission{}, errors.New("file is required for DOCUMENT submissions")
		}
		if opts.Content == "" {
			opts.Content = opts.FileName
		}
	case domain.TypeTodoList:
		if len(opts.Items) == 0 {
			return domain.Submission{}, errors.New("items are required for TODO_LIST submissions")
		}
		if opts.Content == "" {
			opts.Content = strings.Join(opts.Items, "\n")
		}
	default:
		if strings.TrimSpace(opts.Content) == "" {
			return domain.Submission{}, errors.New("content is required")
		}
	}

	now := e.now().UTC()
	s := domain.Submission{
		ID:        uuid.NewString(),
		Title:     opts.Title,
		Type:      string(subType),
		Content:   opts.Content,
		Status:    string(domain.StatusPending),
		AuthorID:  ident.UserID,
		CreatedAt: now.Format(time.RFC3339),
	}
	if days := e.Config.Workflow.RetentionDays; days > 0 {
		exp := now.AddDate(0, 0, days).Format(time.RFC3339)
		s.ExpiresAt = &exp
	}

	var ref string
	committed := false
	if subType == domain.TypeDocument {
		ref, err = e.Store.Put(ctx, opts.FileName, opts.FileData)
		if err != nil {
			return domain.Submission{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		s.AttachmentRef = &ref
		// A blob whose row never commits would be unreachable forever.
		defer func() {
			if !committed {
				_ = e.Store.Delete(ctx, ref)
			}
		}()
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertSubmission(ctx, tx, s); err != nil {
		return domain.Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	if subType == domain.TypeDocument {
		att := domain.FileAttachment{
			SubmissionID: s.ID,
			FileName:     opts.FileName,
			MimeType:     opts.MimeType,
			Size:         int64(len(opts.FileData)),
			StorageRef:   ref,
			CreatedAt:    s.CreatedAt,
		}
		if err := e.Repo.UpsertAttachment(ctx, tx, att); err != nil {
			return domain.Submission{}, fmt.Errorf("insert attachment: %w", err)
		}
	}
	for i, text := range opts.Items {
		item := domain.TodoItem{
			ID:           uuid.NewString(),
			SubmissionID: s.ID,
			Text:         text,
			Order:        i,
			CreatedAt:    s.CreatedAt,
		}
		if err := e.Repo.InsertTodoItem(ctx, tx, item); err != nil {
			return domain.Submission{}, fmt.Errorf("insert todo item: %w", err)
		}
	}
	if err := e.Events.Append(ctx, tx, "submission.create", "submission", s.ID, ident.UserID, events.EventPayload{
		"type": s.Type, "status": s.Status,
	}); err != nil {
		return domain.Submission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Submission{}, err
	}
	committed = true
	return s, nil
}

func (e Engine) GetSubmission(ctx context.Context, id string, ident auth.Identity) (domain.Submission, error) {
	return e.resolveSubmission(ctx, id, ident)
}

// ListSubmissions returns the caller's view: the admin's list honors the
// filters, a user's list is always scoped to their own submissions.
func (e Engine) ListSubmissions(ctx context.Context, f repo.SubmissionFilters, ident auth.Identity) ([]domain.Submission, error) {
	if !ident.Valid() {
		return nil, auth.ErrUnauthorized
	}
	if !ident.Admin {
		f.AuthorID = ident.UserID
	}
	if f.Status != "" {
		if _, err := domain.ParseStatus(f.Status); err != nil {
			return nil, err
		}
	}
	return e.Repo.ListSubmissions(ctx, f)
}

// SetStatus sets a submission's review status. Any valid status value may be
// set from any other; only the enum is enforced.
func (e Engine) SetStatus(ctx context.Context, id, status string, ident auth.Identity) (domain.Submission, error) {
	if err := requireAdmin(ident); err != nil {
		return domain.Submission{}, err
	}
	parsed, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Submission{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSubmissionTx(ctx, tx, id)
	if err != nil {
		return domain.Submission{}, err
	}
	oldStatus := s.Status
	if err := e.Repo.UpdateSubmissionStatus(ctx, tx, id, parsed); err != nil {
		return domain.Submission{}, err
	}
	if err := e.Events.Append(ctx, tx, "submission.status", "submission", id, actorID(ident), events.EventPayload{
		"from": oldStatus, "to": string(parsed),
	}); err != nil {
		return domain.Submission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Submission{}, err
	}
	s.Status = string(parsed)
	return s, nil
}

// SetThreadClosed closes or reopens a submission's message thread. Reopening
// is refused under the forbid policy.
func (e Engine) SetThreadClosed(ctx context.Context, id string, closed bool, ident auth.Identity) (domain.Submission, error) {
	if err := requireAdmin(ident); err != nil {
		return domain.Submission{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSubmissionTx(ctx, tx, id)
	if err != nil {
		return domain.Submission{}, err
	}
	if s.ThreadClosed && !closed && !e.Config.ReopenAllowed() {
		return domain.Submission{}, auth.ForbiddenError{Reason: "thread reopening is disabled"}
	}
	if err := e.Repo.SetThreadClosed(ctx, tx, id, closed); err != nil {
		return domain.Submission{}, err
	}
	if err := e.Events.Append(ctx, tx, "submission.thread", "submission", id, actorID(ident), events.EventPayload{
		"closed": closed,
	}); err != nil {
		return domain.Submission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Submission{}, err
	}
	s.ThreadClosed = closed
	return s, nil
}

func (e Engine) SetAdminReply(ctx context.Context, id, reply string, ident auth.Identity) (domain.Submission, error) {
	if err := requireAdmin(ident); err != nil {
		return domain.Submission{}, err
	}
	if strings.TrimSpace(reply) == "" {
		return domain.Submission{}, errors.New("reply is required")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Submission{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSubmissionTx(ctx, tx, id)
	if err != nil {
		return domain.Submission{}, err
	}
	if err := e.Repo.SetAdminReply(ctx, tx, id, reply); err != nil {
		return domain.Submission{}, err
	}
	if err := e.Events.Append(ctx, tx, "submission.reply", "submission", id, actorID(ident), nil); err != nil {
		return domain.Submission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Submission{}, err
	}
	s.AdminReply = &reply
	return s, nil
}

// PostMessage appends a message to a submission's thread. When the author
// posts while the status is REVIEWED or ACKNOWLEDGED the status reverts to
// PENDING in the same transaction, so the message and the revert are never
// visible separately.
func (e Engine) PostMessage(ctx context.Context, submissionID, content string, ident auth.Identity) (domain.SubmissionMessage, error) {
	if !ident.Valid() {
		return domain.SubmissionMessage{}, auth.ErrUnauthorized
	}
	if strings.TrimSpace(content) == "" {
		return domain.SubmissionMessage{}, errors.New("message content is required")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SubmissionMessage{}, err
	}
	defer tx.Rollback()

	s, err := e.resolveSubmissionTx(ctx, tx, submissionID, ident)
	if err != nil {
		return domain.SubmissionMessage{}, err
	}
	if s.ThreadClosed {
		return domain.SubmissionMessage{}, auth.ForbiddenError{Reason: "thread is closed"}
	}

	m := domain.SubmissionMessage{
		ID:           uuid.NewString(),
		SubmissionID: s.ID,
		Content:      content,
		IsAdmin:      ident.Admin,
		CreatedAt:    e.nowRFC3339(),
	}
	if err := e.Repo.InsertMessage(ctx, tx, &m); err != nil {
		return domain.SubmissionMessage{}, fmt.Errorf("insert message: %w", err)
	}
	reverted := false
	if !ident.Admin && domain.Status(s.Status) != domain.StatusPending {
		if err := e.Repo.UpdateSubmissionStatus(ctx, tx, s.ID, domain.StatusPending); err != nil {
			return domain.SubmissionMessage{}, err
		}
		reverted = true
	}
	if err := e.Events.Append(ctx, tx, "submission.message", "submission", s.ID, actorID(ident), events.EventPayload{
		"is_admin": m.IsAdmin, "reverted": reverted,
	}); err != nil {
		return domain.SubmissionMessage{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SubmissionMessage{}, err
	}
	return m, nil
}

func (e Engine) ListMessages(ctx context.Context, submissionID string, ident auth.Identity) ([]domain.SubmissionMessage, error) {
	if _, err := e.resolveSubmission(ctx, submissionID, ident); err != nil {
		return nil, err
	}
	return e.Repo.ListMessages(ctx, submissionID)
}

// AddTodoItem appends a checklist item. Only the admin defines the checklist;
// the author works through it with ToggleTodoItem.
func (e Engine) AddTodoItem(ctx context.Context, submissionID, text string, ident auth.Identity) (domain.TodoItem, error) {
	if err := requireAdmin(ident); err != nil {
		return domain.TodoItem{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.TodoItem{}, errors.New("text is required")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TodoItem{}, err
	}
	defer tx.Rollback()

	s, err := e.Repo.GetSubmissionTx(ctx, tx, submissionID)
	if err != nil {
		return domain.TodoItem{}, err
	}
	count, err := e.Repo.CountTodoItems(ctx, tx, s.ID)
	if err != nil {
		return domain.TodoItem{}, err
	}
	item := domain.TodoItem{
		ID:           uuid.NewString(),
		SubmissionID: s.ID,
		Text:         text,
		Order:        count,
		CreatedAt:    e.nowRFC3339(),
	}
	if err := e.Repo.InsertTodoItem(ctx, tx, item); err != nil {
		return domain.TodoItem{}, fmt.Errorf("insert todo item: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "todo.add", "submission", s.ID, actorID(ident), events.EventPayload{
		"todo_id": item.ID, "order": item.Order,
	}); err != nil {
		return domain.TodoItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TodoItem{}, err
	}
	return item, nil
}

// ToggleTodoItem sets a checklist item's completion to the requested state,
// so repeating a call is harmless. Only the submission's author may do this;
// the admin observes progress but cannot complete items on the author's
// behalf.
func (e Engine) ToggleTodoItem(ctx context.Context, submissionID, todoID string, completed bool, ident auth.Identity) (domain.TodoItem, error) {
	if !ident.Valid() {
		return domain.TodoItem{}, auth.ErrUnauthorized
	}
	if ident.Admin {
		return domain.TodoItem{}, auth.ForbiddenError{Reason: "only the author may toggle todo items"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.TodoItem{}, err
	}
	defer tx.Rollback()

	s, err := e.resolveSubmissionTx(ctx, tx, submissionID, ident)
	if err != nil {
		return domain.TodoItem{}, err
	}
	item, err := e.Repo.GetTodoItemTx(ctx, tx, s.ID, todoID)
	if err != nil {
		return domain.TodoItem{}, err
	}
	item.Completed = completed
	if err := e.Repo.SetTodoCompleted(ctx, tx, s.ID, item.ID, item.Completed); err != nil {
		return domain.TodoItem{}, err
	}
	if err := e.Events.Append(ctx, tx, "todo.toggle", "submission", s.ID, ident.UserID, events.EventPayload{
		"todo_id": item.ID, "completed": item.Completed,
	}); err != nil {
		return domain.TodoItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.TodoItem{}, err
	}
	return item, nil
}

func (e Engine) ListTodoItems(ctx context.Context, submissionID string, ident auth.Identity) ([]domain.TodoItem, error) {
	if _, err := e.resolveSubmission(ctx, submissionID, ident); err != nil {
		return nil, err
	}
	return e.Repo.ListTodoItems(ctx, submissionID)
}

// SaveAttachment stores a file for an existing submission, replacing any
// earlier one.
func (e Engine) SaveAttachment(ctx context.Context, submissionID, fileName, mimeType string, data []byte, ident auth.Identity) (domain.FileAttachment, error) {
	if len(data) == 0 {
		return domain.FileAttachment{}, errors.New("file data is required")
	}
	s, err := e.resolveSubmission(ctx, submissionID, ident)
	if err != nil {
		return domain.FileAttachment{}, err
	}

	ref, err := e.Store.Put(ctx, fileName, data)
	if err != nil {
		return domain.FileAttachment{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	oldRef := s.AttachmentRef

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.FileAttachment{}, err
	}
	defer tx.Rollback()

	att := domain.FileAttachment{
		SubmissionID: s.ID,
		FileName:     fileName,
		MimeType:     mimeType,
		Size:         int64(len(data)),
		StorageRef:   ref,
		CreatedAt:    e.nowRFC3339(),
	}
	if err := e.Repo.UpsertAttachment(ctx, tx, att); err != nil {
		return domain.FileAttachment{}, err
	}
	if err := e.Repo.SetAttachmentRef(ctx, tx, s.ID, ref); err != nil {
		return domain.FileAttachment{}, err
	}
	if err := e.Events.Append(ctx, tx, "submission.attach", "submission", s.ID, actorID(ident), events.EventPayload{
		"file_name": fileName, "size": att.Size,
	}); err != nil {
		return domain.FileAttachment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.FileAttachment{}, err
	}
	if oldRef != nil && *oldRef != ref {
		// Old blob is unreachable after commit; removal failure only leaks it.
		_ = e.Store.Delete(ctx, *oldRef)
	}
	return att, nil
}

// DownloadAttachment returns the attachment metadata with Data populated
// from the backing store.
func (e Engine) DownloadAttachment(ctx context.Context, submissionID string, ident auth.Identity) (domain.FileAttachment, error) {
	s, err := e.resolveSubmission(ctx, submissionID, ident)
	if err != nil {
		return domain.FileAttachment{}, err
	}
	if s.AttachmentRef == nil {
		return domain.FileAttachment{}, repo.ErrNotFound
	}
	att, err := e.Repo.GetAttachment(ctx, s.ID)
	if err != nil {
		return domain.FileAttachment{}, err
	}
	data, err := e.Store.Get(ctx, att.StorageRef)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.FileAttachment{}, repo.ErrNotFound
		}
		return domain.FileAttachment{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	att.Data = data
	return att, nil
}
