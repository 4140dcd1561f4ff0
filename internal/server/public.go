package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"deskline/internal/engine"
)

func registerAuth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Register account",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		u, err := e.Register(ctx, input.Body.Name, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Log in",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		u, token, err := e.Login(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: SessionResponse{Token: token, User: userResponse(u)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current account",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		id := identityFromContext(ctx)
		if !id.Valid() || id.Admin {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "user session required", nil)
		}
		u, err := e.GetUser(ctx, id.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})
}

func registerPosts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-posts",
		Method:      http.MethodGet,
		Path:        "/posts",
		Summary:     "List published posts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []PostResponse `json:"body"`
	}, error) {
		items, err := e.ListPublishedPosts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]PostResponse, 0, len(items))
		for _, p := range items {
			out = append(out, postResponse(p))
		}
		return &struct {
			Body []PostResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-post",
		Method:      http.MethodGet,
		Path:        "/posts/{slug}",
		Summary:     "Get published post",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Slug string `path:"slug"`
	}) (*struct {
		Body PostResponse `json:"body"`
	}, error) {
		p, err := e.PublishedPost(ctx, input.Slug)
		if err != nil {
			return nil, handleError(err)
		}
		out := postResponse(p.Post)
		out.HTML = p.HTML
		return &struct {
			Body PostResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-post",
		Method:        http.MethodPost,
		Path:          "/posts",
		Summary:       "Create post",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreatePostRequest `json:"body"`
	}) (*struct {
		Body PostResponse `json:"body"`
	}, error) {
		opts := engine.PostCreateOptions{
			Title:     input.Body.Title,
			Body:      input.Body.Body,
			Published: input.Body.Published,
		}
		if input.Body.Slug != nil {
			opts.Slug = *input.Body.Slug
		}
		p, err := e.CreatePost(ctx, opts, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PostResponse `json:"body"`
		}{Body: postResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-list-posts",
		Method:      http.MethodGet,
		Path:        "/admin/posts",
		Summary:     "List all posts",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []PostResponse `json:"body"`
	}, error) {
		items, err := e.ListAllPosts(ctx, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]PostResponse, 0, len(items))
		for _, p := range items {
			out = append(out, postResponse(p))
		}
		return &struct {
			Body []PostResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-post",
		Method:      http.MethodPut,
		Path:        "/posts/{slug}",
		Summary:     "Update post",
		Description: "Updates a post addressed by slug or id. Allowed for the post's author or a user with the ADMIN role.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Slug string            `path:"slug"`
		Body UpdatePostRequest `json:"body"`
	}) (*struct {
		Body PostResponse `json:"body"`
	}, error) {
		p, err := e.UpdatePost(ctx, input.Slug, engine.PostUpdateOptions{
			Title:     input.Body.Title,
			Slug:      input.Body.Slug,
			Body:      input.Body.Body,
			Published: input.Body.Published,
		}, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PostResponse `json:"body"`
		}{Body: postResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-post",
		Method:        http.MethodDelete,
		Path:          "/posts/{slug}",
		Summary:       "Delete post",
		Description:   "Deletes a post addressed by slug or id. Allowed for the post's author or a user with the ADMIN role.",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Slug string `path:"slug"`
	}) (*struct{}, error) {
		if err := e.DeletePost(ctx, input.Slug, identityFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
