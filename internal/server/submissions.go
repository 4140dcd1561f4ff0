package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"deskline/internal/engine"
	"deskline/internal/repo"
)

type submissionPath struct {
	SubmissionID string `path:"submission_id"`
}

func registerSubmissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-submission",
		Method:        http.MethodPost,
		Path:          "/submissions",
		Summary:       "Create submission",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateSubmissionRequest `json:"body"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		opts := engine.SubmissionCreateOptions{
			Title: input.Body.Title,
			Type:  input.Body.Type,
			Items: input.Body.Items,
		}
		if input.Body.Content != nil {
			opts.Content = *input.Body.Content
		}
		if input.Body.FileName != nil {
			opts.FileName = *input.Body.FileName
		}
		if input.Body.MimeType != nil {
			opts.MimeType = *input.Body.MimeType
		}
		opts.FileData = input.Body.FileData
		s, err := e.CreateSubmission(ctx, opts, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-submissions",
		Method:      http.MethodGet,
		Path:        "/submissions",
		Summary:     "List own submissions",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
	}) (*struct {
		Body []SubmissionResponse `json:"body"`
	}, error) {
		items, err := e.ListSubmissions(ctx, repo.SubmissionFilters{Status: input.Status}, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []SubmissionResponse `json:"body"`
		}{Body: submissionResponses(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-submission",
		Method:      http.MethodGet,
		Path:        "/submissions/{submission_id}",
		Summary:     "Get submission",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *submissionPath) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		s, err := e.GetSubmission(ctx, input.SubmissionID, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: submissionResponse(s)}, nil
	})
}

func registerMessages(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "post-message",
		Method:        http.MethodPost,
		Path:          "/submissions/{submission_id}/messages",
		Summary:       "Post thread message",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		SubmissionID string             `path:"submission_id"`
		Body         PostMessageRequest `json:"body"`
	}) (*struct {
		Body MessageResponse `json:"body"`
	}, error) {
		m, err := e.PostMessage(ctx, input.SubmissionID, input.Body.Content, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MessageResponse `json:"body"`
		}{Body: messageResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/submissions/{submission_id}/messages",
		Summary:     "List thread messages",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *submissionPath) (*struct {
		Body []MessageResponse `json:"body"`
	}, error) {
		items, err := e.ListMessages(ctx, input.SubmissionID, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]MessageResponse, 0, len(items))
		for _, m := range items {
			out = append(out, messageResponse(m))
		}
		return &struct {
			Body []MessageResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerTodos(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-todos",
		Method:      http.MethodGet,
		Path:        "/submissions/{submission_id}/todos",
		Summary:     "List todo items",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *submissionPath) (*struct {
		Body []TodoResponse `json:"body"`
	}, error) {
		items, err := e.ListTodoItems(ctx, input.SubmissionID, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]TodoResponse, 0, len(items))
		for _, t := range items {
			out = append(out, todoResponse(t))
		}
		return &struct {
			Body []TodoResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-todo-completion",
		Method:      http.MethodPatch,
		Path:        "/submissions/{submission_id}/todos/{todo_id}",
		Summary:     "Set todo completion",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		SubmissionID string                   `path:"submission_id"`
		TodoID       string                   `path:"todo_id"`
		Body         SetTodoCompletionRequest `json:"body"`
	}) (*struct {
		Body TodoResponse `json:"body"`
	}, error) {
		t, err := e.ToggleTodoItem(ctx, input.SubmissionID, input.TodoID, input.Body.Completed, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TodoResponse `json:"body"`
		}{Body: todoResponse(t)}, nil
	})
}

func registerAttachments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "upload-attachment",
		Method:      http.MethodPut,
		Path:        "/submissions/{submission_id}/file",
		Summary:     "Upload submission file",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		SubmissionID string `path:"submission_id"`
		FileName     string `query:"filename" required:"true" doc:"Name to store the file under"`
		ContentType  string `header:"Content-Type"`
		RawBody      []byte
	}) (*struct {
		Body AttachmentResponse `json:"body"`
	}, error) {
		att, err := e.SaveAttachment(ctx, input.SubmissionID, input.FileName, input.ContentType, input.RawBody, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AttachmentResponse `json:"body"`
		}{Body: attachmentResponse(att)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "download-attachment",
		Method:      http.MethodGet,
		Path:        "/submissions/{submission_id}/file",
		Summary:     "Download submission file",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *submissionPath) (*huma.StreamResponse, error) {
		att, err := e.DownloadAttachment(ctx, input.SubmissionID, identityFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &huma.StreamResponse{Body: func(hctx huma.Context) {
			mime := att.MimeType
			if mime == "" {
				mime = "application/octet-stream"
			}
			hctx.SetHeader("Content-Type", mime)
			hctx.SetHeader("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.FileName))
			hctx.BodyWriter().Write(att.Data)
		}}, nil
	})
}
