package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"deskline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const submissionColumns = `id,title,type,content,status,thread_closed,author_id,admin_reply,attachment_ref,created_at,expires_at`

func scanSubmission(scan func(dest ...any) error) (domain.Submission, error) {
	var s domain.Submission
	var adminReply, attachmentRef, expiresAt sql.NullString
	var closed int
	err := scan(&s.ID, &s.Title, &s.Type, &s.Content, &s.Status, &closed, &s.AuthorID, &adminReply, &attachmentRef, &s.CreatedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.ThreadClosed = closed != 0
	if adminReply.Valid {
		s.AdminReply = &adminReply.String
	}
	if attachmentRef.Valid {
		s.AttachmentRef = &attachmentRef.String
	}
	if expiresAt.Valid {
		s.ExpiresAt = &expiresAt.String
	}
	return s, nil
}

func (r Repo) InsertSubmission(ctx context.Context, tx *sql.Tx, s domain.Submission) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO submissions(`+submissionColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.Title, s.Type, s.Content, s.Status, boolToInt(s.ThreadClosed), s.AuthorID,
		nullableStringPtr(s.AdminReply), nullableStringPtr(s.AttachmentRef), s.CreatedAt, nullableStringPtr(s.ExpiresAt))
	return err
}

func (r Repo) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=?`, id)
	return scanSubmission(row.Scan)
}

func (r Repo) GetSubmissionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Submission, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=?`, id)
	return scanSubmission(row.Scan)
}

// GetSubmissionForAuthor scopes the lookup by owner so a non-owner cannot
// distinguish someone else's submission from a missing one.
func (r Repo) GetSubmissionForAuthor(ctx context.Context, id, authorID string) (domain.Submission, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=? AND author_id=?`, id, authorID)
	return scanSubmission(row.Scan)
}

func (r Repo) GetSubmissionForAuthorTx(ctx context.Context, tx *sql.Tx, id, authorID string) (domain.Submission, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=? AND author_id=?`, id, authorID)
	return scanSubmission(row.Scan)
}

type SubmissionFilters struct {
	Status   string
	AuthorID string
}

func (r Repo) ListSubmissions(ctx context.Context, f SubmissionFilters) ([]domain.Submission, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.AuthorID != "" {
		clauses = append(clauses, "author_id=?")
		args = append(args, f.AuthorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + submissionColumns + ` FROM submissions ` + where + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) UpdateSubmissionStatus(ctx context.Context, tx *sql.Tx, id string, status domain.Status) error {
	res, err := tx.ExecContext(ctx, `UPDATE submissions SET status=? WHERE id=?`, status.String(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetThreadClosed(ctx context.Context, tx *sql.Tx, id string, closed bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE submissions SET thread_closed=? WHERE id=?`, boolToInt(closed), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetAdminReply(ctx context.Context, tx *sql.Tx, id, reply string) error {
	res, err := tx.ExecContext(ctx, `UPDATE submissions SET admin_reply=? WHERE id=?`, nullable(reply), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetAttachmentRef(ctx context.Context, tx *sql.Tx, id, ref string) error {
	res, err := tx.ExecContext(ctx, `UPDATE submissions SET attachment_ref=? WHERE id=?`, nullable(ref), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpiredSubmissions returns submissions whose retention horizon has
// passed. nowRFC3339 comparisons work lexically because all timestamps are
// stored in RFC 3339 UTC.
func (r Repo) ListExpiredSubmissions(ctx context.Context, nowRFC3339 string) ([]domain.Submission, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE expires_at IS NOT NULL AND expires_at <= ?`, nowRFC3339)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) DeleteSubmission(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- messages ---

// InsertMessage persists a thread message and fills in its sequence number.
func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m *domain.SubmissionMessage) error {
	res, err := tx.ExecContext(ctx, `INSERT INTO submission_messages(id,submission_id,content,is_admin,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.SubmissionID, m.Content, boolToInt(m.IsAdmin), m.CreatedAt)
	if err != nil {
		return err
	}
	m.Seq, err = res.LastInsertId()
	return err
}

func (r Repo) ListMessages(ctx context.Context, submissionID string) ([]domain.SubmissionMessage, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,submission_id,seq,content,is_admin,created_at FROM submission_messages WHERE submission_id=? ORDER BY created_at ASC, seq ASC`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SubmissionMessage
	for rows.Next() {
		var m domain.SubmissionMessage
		var isAdmin int
		if err := rows.Scan(&m.ID, &m.SubmissionID, &m.Seq, &m.Content, &isAdmin, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.IsAdmin = isAdmin != 0
		res = append(res, m)
	}
	return res, rows.Err()
}

// --- todo items ---

func (r Repo) InsertTodoItem(ctx context.Context, tx *sql.Tx, item domain.TodoItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO todo_items(id,submission_id,text,completed,item_order,created_at) VALUES (?,?,?,?,?,?)`,
		item.ID, item.SubmissionID, item.Text, boolToInt(item.Completed), item.Order, item.CreatedAt)
	return err
}

func (r Repo) CountTodoItems(ctx context.Context, tx *sql.Tx, submissionID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM todo_items WHERE submission_id=?`, submissionID).Scan(&n)
	return n, err
}

func scanTodo(scan func(dest ...any) error) (domain.TodoItem, error) {
	var item domain.TodoItem
	var completed int
	err := scan(&item.ID, &item.SubmissionID, &item.Text, &completed, &item.Order, &item.CreatedAt)
	if err == sql.ErrNoRows {
		return item, ErrNotFound
	}
	if err != nil {
		return item, err
	}
	item.Completed = completed != 0
	return item, nil
}

// GetTodoItemTx keys by both submission and item so an id from another
// submission reads as missing.
func (r Repo) GetTodoItemTx(ctx context.Context, tx *sql.Tx, submissionID, todoID string) (domain.TodoItem, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,submission_id,text,completed,item_order,created_at FROM todo_items WHERE id=? AND submission_id=?`, todoID, submissionID)
	return scanTodo(row.Scan)
}

func (r Repo) SetTodoCompleted(ctx context.Context, tx *sql.Tx, submissionID, todoID string, completed bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE todo_items SET completed=? WHERE id=? AND submission_id=?`, boolToInt(completed), todoID, submissionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListTodoItems(ctx context.Context, submissionID string) ([]domain.TodoItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,submission_id,text,completed,item_order,created_at FROM todo_items WHERE submission_id=? ORDER BY item_order ASC`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TodoItem
	for rows.Next() {
		item, err := scanTodo(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, item)
	}
	return res, rows.Err()
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
