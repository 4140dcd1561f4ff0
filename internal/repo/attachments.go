package repo

import (
	"context"
	"database/sql"

	"deskline/internal/domain"
)

func (r Repo) UpsertAttachment(ctx context.Context, tx *sql.Tx, att domain.FileAttachment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO attachments(submission_id,file_name,mime_type,size,storage_ref,created_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(submission_id) DO UPDATE SET file_name=excluded.file_name, mime_type=excluded.mime_type, size=excluded.size, storage_ref=excluded.storage_ref`,
		att.SubmissionID, att.FileName, att.MimeType, att.Size, att.StorageRef, att.CreatedAt)
	return err
}

func (r Repo) GetAttachment(ctx context.Context, submissionID string) (domain.FileAttachment, error) {
	var att domain.FileAttachment
	err := r.DB.QueryRowContext(ctx, `SELECT submission_id,file_name,mime_type,size,storage_ref,created_at FROM attachments WHERE submission_id=?`, submissionID).
		Scan(&att.SubmissionID, &att.FileName, &att.MimeType, &att.Size, &att.StorageRef, &att.CreatedAt)
	if err == sql.ErrNoRows {
		return att, ErrNotFound
	}
	return att, err
}
