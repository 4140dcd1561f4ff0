package repo

import (
	"context"
	"database/sql"

	"deskline/internal/domain"
)

const postColumns = `id,author_id,slug,title,body,published,created_at,updated_at`

func scanPost(scan func(dest ...any) error) (domain.Post, error) {
	var p domain.Post
	var published int
	err := scan(&p.ID, &p.AuthorID, &p.Slug, &p.Title, &p.Body, &published, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Published = published != 0
	return p, nil
}

func (r Repo) InsertPost(ctx context.Context, tx *sql.Tx, p domain.Post) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO posts(`+postColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.AuthorID, p.Slug, p.Title, p.Body, boolToInt(p.Published), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetPost(ctx context.Context, id string) (domain.Post, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id=?`, id)
	return scanPost(row.Scan)
}

func (r Repo) GetPostBySlug(ctx context.Context, slug string) (domain.Post, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE slug=?`, slug)
	return scanPost(row.Scan)
}

func (r Repo) ListPublishedPosts(ctx context.Context) ([]domain.Post, error) {
	return r.listPosts(ctx, `WHERE published=1`)
}

func (r Repo) ListAllPosts(ctx context.Context) ([]domain.Post, error) {
	return r.listPosts(ctx, ``)
}

func (r Repo) listPosts(ctx context.Context, where string, args ...any) ([]domain.Post, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+postColumns+` FROM posts `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Post
	for rows.Next() {
		p, err := scanPost(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdatePost(ctx context.Context, tx *sql.Tx, p domain.Post) error {
	res, err := tx.ExecContext(ctx, `UPDATE posts SET slug=?, title=?, body=?, published=?, updated_at=? WHERE id=?`,
		p.Slug, p.Title, p.Body, boolToInt(p.Published), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeletePost(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
