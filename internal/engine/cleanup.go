package engine

import (
	"context"

	"deskline/internal/events"
)

// CleanupResult reports what an expiry sweep removed.
type CleanupResult struct {
	Deleted  int      `json:"deleted"`
	Orphaned []string `json:"orphaned_blobs,omitempty"`
}

// CleanupExpired removes submissions whose expiry horizon has passed.
// Messages, todo items and attachment metadata go with them via foreign key
// cascade; stored blobs are deleted after each commit. A blob whose removal
// fails is reported as orphaned rather than failing the sweep.
func (e Engine) CleanupExpired(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	expired, err := e.Repo.ListExpiredSubmissions(ctx, e.nowRFC3339())
	if err != nil {
		return res, err
	}
	for _, s := range expired {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return res, err
		}
		if err := e.Repo.DeleteSubmission(ctx, tx, s.ID); err != nil {
			tx.Rollback()
			return res, err
		}
		if err := e.Events.Append(ctx, tx, "submission.expire", "submission", s.ID, "cron", events.EventPayload{
			"created_at": s.CreatedAt,
		}); err != nil {
			tx.Rollback()
			return res, err
		}
		if err := tx.Commit(); err != nil {
			return res, err
		}
		res.Deleted++
		if s.AttachmentRef != nil {
			if err := e.Store.Delete(ctx, *s.AttachmentRef); err != nil {
				res.Orphaned = append(res.Orphaned, *s.AttachmentRef)
			}
		}
	}
	return res, nil
}
