package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"deskline/internal/engine"
	"deskline/internal/repo"
)

func registerAdmin(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "admin-list-submissions",
		Method:      http.MethodGet,
		Path:        "/admin/submissions",
		Summary:     "List all submissions",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		AuthorID string `query:"author_id"`
	}) (*struct {
		Body []SubmissionResponse `json:"body"`
	}, error) {
		if err := requireAdminIdentity(ctx); err != nil {
			return nil, err
		}
		items, err := e.ListSubmissions(ctx, repo.SubmissionFilters{
			Status:   input.Status,
			AuthorID: input.AuthorID,
		}, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []SubmissionResponse `json:"body"`
		}{Body: submissionResponses(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-set-status",
		Method:      http.MethodPut,
		Path:        "/admin/submissions/{submission_id}/status",
		Summary:     "Set submission status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		SubmissionID string           `path:"submission_id"`
		Body         SetStatusRequest `json:"body"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		s, err := e.SetStatus(ctx, input.SubmissionID, input.Body.Status, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-set-thread-closed",
		Method:      http.MethodPut,
		Path:        "/admin/submissions/{submission_id}/thread",
		Summary:     "Close or reopen thread",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		SubmissionID string                 `path:"submission_id"`
		Body         SetThreadClosedRequest `json:"body"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		s, err := e.SetThreadClosed(ctx, input.SubmissionID, input.Body.Closed, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-reply",
		Method:      http.MethodPut,
		Path:        "/admin/submissions/{submission_id}/reply",
		Summary:     "Set admin reply",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		SubmissionID string            `path:"submission_id"`
		Body         AdminReplyRequest `json:"body"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		s, err := e.SetAdminReply(ctx, input.SubmissionID, input.Body.Reply, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "admin-add-todo",
		Method:        http.MethodPost,
		Path:          "/admin/submissions/{submission_id}/todos",
		Summary:       "Add todo item",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		SubmissionID string         `path:"submission_id"`
		Body         AddTodoRequest `json:"body"`
	}) (*struct {
		Body TodoResponse `json:"body"`
	}, error) {
		t, err := e.AddTodoItem(ctx, input.SubmissionID, input.Body.Text, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TodoResponse `json:"body"`
		}{Body: todoResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-list-users",
		Method:      http.MethodGet,
		Path:        "/admin/users",
		Summary:     "List users",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []UserResponse `json:"body"`
	}, error) {
		items, err := e.ListUsers(ctx, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]UserResponse, 0, len(items))
		for _, u := range items {
			out = append(out, userResponse(u))
		}
		return &struct {
			Body []UserResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-set-user-role",
		Method:      http.MethodPut,
		Path:        "/admin/users/{user_id}/role",
		Summary:     "Set user role",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		UserID string             `path:"user_id"`
		Body   SetUserRoleRequest `json:"body"`
	}) (*struct {
		Body UserResponse `json:"body"`
	}, error) {
		u, err := e.SetUserRole(ctx, input.UserID, input.Body.Role, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserResponse `json:"body"`
		}{Body: userResponse(u)}, nil
	})
}

func registerLeads(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-lead",
		Method:        http.MethodPost,
		Path:          "/leads",
		Summary:       "Submit contact form",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateLeadRequest `json:"body"`
	}) (*struct {
		Body LeadResponse `json:"body"`
	}, error) {
		l, err := e.CreateLead(ctx, input.Body.Name, input.Body.Email, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LeadResponse `json:"body"`
		}{Body: leadResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-list-leads",
		Method:      http.MethodGet,
		Path:        "/admin/leads",
		Summary:     "List leads",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
	}) (*struct {
		Body []LeadResponse `json:"body"`
	}, error) {
		items, err := e.ListLeads(ctx, input.Status, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]LeadResponse, 0, len(items))
		for _, l := range items {
			out = append(out, leadResponse(l))
		}
		return &struct {
			Body []LeadResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "admin-set-lead-status",
		Method:      http.MethodPut,
		Path:        "/admin/leads/{lead_id}/status",
		Summary:     "Set lead status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		LeadID string               `path:"lead_id"`
		Body   SetLeadStatusRequest `json:"body"`
	}) (*struct {
		Body LeadResponse `json:"body"`
	}, error) {
		l, err := e.SetLeadStatus(ctx, input.LeadID, input.Body.Status, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LeadResponse `json:"body"`
		}{Body: leadResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "admin-delete-lead",
		Method:        http.MethodDelete,
		Path:          "/admin/leads/{lead_id}",
		Summary:       "Delete lead",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		LeadID string `path:"lead_id"`
	}) (*struct{}, error) {
		if err := e.DeleteLead(ctx, input.LeadID, identityFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerCron(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "cron-cleanup",
		Method:      http.MethodPost,
		Path:        "/cron/cleanup",
		Summary:     "Expire old submissions",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.CleanupResult `json:"body"`
	}, error) {
		// The admin may also trigger the sweep by hand.
		if !cronAuthorized(ctx) && !identityFromContext(ctx).Admin {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "cron secret required", nil)
		}
		res, err := e.CleanupExpired(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.CleanupResult `json:"body"`
		}{Body: res}, nil
	})
}
