package repo

import (
	"context"
	"database/sql"

	"deskline/internal/domain"
)

func (r Repo) InsertLead(ctx context.Context, tx *sql.Tx, l domain.Lead) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO leads(id,name,email,message,status,created_at) VALUES (?,?,?,?,?,?)`,
		l.ID, l.Name, l.Email, l.Message, l.Status, l.CreatedAt)
	return err
}

func (r Repo) GetLead(ctx context.Context, id string) (domain.Lead, error) {
	var l domain.Lead
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,email,message,status,created_at FROM leads WHERE id=?`, id).
		Scan(&l.ID, &l.Name, &l.Email, &l.Message, &l.Status, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	return l, err
}

func (r Repo) ListLeads(ctx context.Context, status string) ([]domain.Lead, error) {
	query := `SELECT id,name,email,message,status,created_at FROM leads`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Lead
	for rows.Next() {
		var l domain.Lead
		if err := rows.Scan(&l.ID, &l.Name, &l.Email, &l.Message, &l.Status, &l.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) UpdateLeadStatus(ctx context.Context, tx *sql.Tx, id string, status domain.LeadStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE leads SET status=? WHERE id=?`, status.String(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteLead(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM leads WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
