package server

import (
	"encoding/json"

	"deskline/internal/domain"
)

// Request payloads

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"8"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type CreateSubmissionRequest struct {
	Title    string   `json:"title"`
	Type     string   `json:"type" enum:"DOCUMENT,TODO_LIST,UPDATE,MESSAGE"`
	Content  *string  `json:"content,omitempty"`
	Items    []string `json:"items,omitempty"`
	FileName *string  `json:"file_name,omitempty"`
	FileData []byte   `json:"file_data,omitempty"`
	MimeType *string  `json:"mime_type,omitempty"`
}

type SetStatusRequest struct {
	Status string `json:"status" enum:"PENDING,REVIEWED,ACKNOWLEDGED"`
}

type SetThreadClosedRequest struct {
	Closed bool `json:"closed"`
}

type AdminReplyRequest struct {
	Reply string `json:"reply"`
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

type AddTodoRequest struct {
	Text string `json:"text"`
}

type SetTodoCompletionRequest struct {
	Completed bool `json:"completed"`
}

type SetUserRoleRequest struct {
	Role string `json:"role" enum:"USER,ADMIN"`
}

type CreateLeadRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email" format:"email"`
	Message string `json:"message,omitempty"`
}

type SetLeadStatusRequest struct {
	Status string `json:"status" enum:"NEW,CONTACTED,CLOSED"`
}

type CreatePostRequest struct {
	Title     string  `json:"title"`
	Slug      *string `json:"slug,omitempty"`
	Body      string  `json:"body"`
	Published bool    `json:"published,omitempty"`
}

type UpdatePostRequest struct {
	Title     *string `json:"title,omitempty"`
	Slug      *string `json:"slug,omitempty"`
	Body      *string `json:"body,omitempty"`
	Published *bool   `json:"published,omitempty"`
}

// Response payloads

type UserResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}

type SessionResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type SubmissionResponse struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Type         string  `json:"type"`
	Content      string  `json:"content"`
	Status       string  `json:"status"`
	ThreadClosed bool    `json:"thread_closed"`
	AuthorID     string  `json:"author_id"`
	AdminReply   *string `json:"admin_reply,omitempty"`
	HasFile      bool    `json:"has_file"`
	CreatedAt    string  `json:"created_at"`
	ExpiresAt    *string `json:"expires_at,omitempty"`
}

func submissionResponse(s domain.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:           s.ID,
		Title:        s.Title,
		Type:         s.Type,
		Content:      s.Content,
		Status:       s.Status,
		ThreadClosed: s.ThreadClosed,
		AuthorID:     s.AuthorID,
		AdminReply:   s.AdminReply,
		HasFile:      s.AttachmentRef != nil,
		CreatedAt:    s.CreatedAt,
		ExpiresAt:    s.ExpiresAt,
	}
}

func submissionResponses(items []domain.Submission) []SubmissionResponse {
	out := make([]SubmissionResponse, 0, len(items))
	for _, s := range items {
		out = append(out, submissionResponse(s))
	}
	return out
}

type AttachmentResponse struct {
	SubmissionID string `json:"submission_id"`
	FileName     string `json:"file_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	CreatedAt    string `json:"created_at"`
}

func attachmentResponse(att domain.FileAttachment) AttachmentResponse {
	return AttachmentResponse{
		SubmissionID: att.SubmissionID,
		FileName:     att.FileName,
		MimeType:     att.MimeType,
		Size:         att.Size,
		CreatedAt:    att.CreatedAt,
	}
}

type MessageResponse struct {
	ID           string `json:"id"`
	SubmissionID string `json:"submission_id"`
	Content      string `json:"content"`
	IsAdmin      bool   `json:"is_admin"`
	CreatedAt    string `json:"created_at"`
}

func messageResponse(m domain.SubmissionMessage) MessageResponse {
	return MessageResponse{
		ID:           m.ID,
		SubmissionID: m.SubmissionID,
		Content:      m.Content,
		IsAdmin:      m.IsAdmin,
		CreatedAt:    m.CreatedAt,
	}
}

type TodoResponse struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	Order     int    `json:"order"`
	CreatedAt string `json:"created_at"`
}

func todoResponse(t domain.TodoItem) TodoResponse {
	return TodoResponse{ID: t.ID, Text: t.Text, Completed: t.Completed, Order: t.Order, CreatedAt: t.CreatedAt}
}

type LeadResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Message   string `json:"message"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func leadResponse(l domain.Lead) LeadResponse {
	return LeadResponse{ID: l.ID, Name: l.Name, Email: l.Email, Message: l.Message, Status: l.Status, CreatedAt: l.CreatedAt}
}

type PostResponse struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	HTML      string `json:"html,omitempty"`
	Published bool   `json:"published"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func postResponse(p domain.Post) PostResponse {
	return PostResponse{
		ID:        p.ID,
		Slug:      p.Slug,
		Title:     p.Title,
		Body:      p.Body,
		Published: p.Published,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func eventResponse(evt domain.Event) EventResponse {
	var payload json.RawMessage
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    payload,
	}
}
