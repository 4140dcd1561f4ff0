package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"deskline/internal/domain"
	"deskline/internal/engine/auth"
	"deskline/internal/events"
	"deskline/internal/repo"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderPostBody converts a post's markdown body to HTML.
func RenderPostBody(body string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL slug from a title.
func Slugify(title string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(s, "-")
}

type PostCreateOptions struct {
	Title     string
	Slug      string
	Body      string
	Published bool
}

// postAuthor resolves the caller to a user account. Posts are authored by
// users, never by the shared admin credential; the back-office role column
// (RoleAdmin) is what grants cross-author edit rights here.
func (e Engine) postAuthor(ctx context.Context, ident auth.Identity) (domain.User, error) {
	if !ident.Valid() {
		return domain.User{}, auth.ErrUnauthorized
	}
	if ident.Admin {
		return domain.User{}, auth.ForbiddenError{Reason: "posts belong to user accounts"}
	}
	u, err := e.Repo.GetUser(ctx, ident.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, auth.ErrUnauthorized
		}
		return domain.User{}, err
	}
	return u, nil
}

func canEditPost(u domain.User, p domain.Post) error {
	if u.ID == p.AuthorID || u.Role == domain.RoleAdmin {
		return nil
	}
	return auth.ForbiddenError{Reason: "only the author or an admin user may modify this post"}
}

func (e Engine) CreatePost(ctx context.Context, opts PostCreateOptions, ident auth.Identity) (domain.Post, error) {
	author, err := e.postAuthor(ctx, ident)
	if err != nil {
		return domain.Post{}, err
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Post{}, errors.New("title is required")
	}
	if opts.Slug == "" {
		opts.Slug = Slugify(opts.Title)
	}
	if opts.Slug == "" {
		return domain.Post{}, errors.New("slug is required")
	}
	if _, err := e.Repo.GetPostBySlug(ctx, opts.Slug); err == nil {
		return domain.Post{}, fmt.Errorf("slug %q is already in use", opts.Slug)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Post{}, err
	}

	now := e.nowRFC3339()
	p := domain.Post{
		ID:        uuid.NewString(),
		AuthorID:  author.ID,
		Slug:      opts.Slug,
		Title:     opts.Title,
		Body:      opts.Body,
		Published: opts.Published,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Post{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertPost(ctx, tx, p); err != nil {
		return domain.Post{}, fmt.Errorf("insert post: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "post.create", "post", p.ID, author.ID, events.EventPayload{
		"slug": p.Slug, "published": p.Published,
	}); err != nil {
		return domain.Post{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Post{}, err
	}
	return p, nil
}

type PostUpdateOptions struct {
	Title     *string
	Slug      *string
	Body      *string
	Published *bool
}

// getPostByRef accepts either a post id or its slug, so the HTTP surface can
// address posts by slug while the CLI keeps using ids.
func (e Engine) getPostByRef(ctx context.Context, ref string) (domain.Post, error) {
	p, err := e.Repo.GetPost(ctx, ref)
	if errors.Is(err, repo.ErrNotFound) {
		return e.Repo.GetPostBySlug(ctx, ref)
	}
	return p, err
}

func (e Engine) UpdatePost(ctx context.Context, ref string, opts PostUpdateOptions, ident auth.Identity) (domain.Post, error) {
	caller, err := e.postAuthor(ctx, ident)
	if err != nil {
		return domain.Post{}, err
	}
	p, err := e.getPostByRef(ctx, ref)
	if err != nil {
		return domain.Post{}, err
	}
	if err := canEditPost(caller, p); err != nil {
		return domain.Post{}, err
	}
	if opts.Title != nil {
		p.Title = *opts.Title
	}
	if opts.Slug != nil {
		p.Slug = *opts.Slug
	}
	if opts.Body != nil {
		p.Body = *opts.Body
	}
	if opts.Published != nil {
		p.Published = *opts.Published
	}
	if strings.TrimSpace(p.Title) == "" || p.Slug == "" {
		return domain.Post{}, errors.New("title and slug are required")
	}
	p.UpdatedAt = e.nowRFC3339()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Post{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdatePost(ctx, tx, p); err != nil {
		return domain.Post{}, err
	}
	if err := e.Events.Append(ctx, tx, "post.update", "post", p.ID, caller.ID, events.EventPayload{
		"slug": p.Slug, "published": p.Published,
	}); err != nil {
		return domain.Post{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Post{}, err
	}
	return p, nil
}

func (e Engine) DeletePost(ctx context.Context, ref string, ident auth.Identity) error {
	caller, err := e.postAuthor(ctx, ident)
	if err != nil {
		return err
	}
	p, err := e.getPostByRef(ctx, ref)
	if err != nil {
		return err
	}
	if err := canEditPost(caller, p); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeletePost(ctx, tx, p.ID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "post.delete", "post", p.ID, caller.ID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// PublishedPost returns a published post by slug with its body rendered to
// HTML. Unpublished posts are invisible on this surface.
type RenderedPost struct {
	domain.Post
	HTML string `json:"html"`
}

func (e Engine) PublishedPost(ctx context.Context, slug string) (RenderedPost, error) {
	p, err := e.Repo.GetPostBySlug(ctx, slug)
	if err != nil {
		return RenderedPost{}, err
	}
	if !p.Published {
		return RenderedPost{}, repo.ErrNotFound
	}
	html, err := RenderPostBody(p.Body)
	if err != nil {
		return RenderedPost{}, err
	}
	return RenderedPost{Post: p, HTML: html}, nil
}

func (e Engine) ListPublishedPosts(ctx context.Context) ([]domain.Post, error) {
	return e.Repo.ListPublishedPosts(ctx)
}

func (e Engine) ListAllPosts(ctx context.Context, ident auth.Identity) ([]domain.Post, error) {
	if err := requireAdmin(ident); err != nil {
		return nil, err
	}
	return e.Repo.ListAllPosts(ctx)
}
