package desklinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Deskline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	AdminToken  string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Submission represents the API submission model.
type Submission struct {
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

// Message represents a thread message.
type Message struct {
	ID           string `json:"id"`
	SubmissionID string `json:"submission_id"`
	Content      string `json:"content"`
	IsAdmin      bool   `json:"is_admin"`
	CreatedAt    string `json:"created_at"`
}

// Todo represents a checklist item.
type Todo struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
	Order     int    `json:"order"`
	CreatedAt string `json:"created_at"`
}

// User represents an account.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// Session is returned by Login.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, name, email, password string) (User, error) {
	body := map[string]any{"name": name, "email": email, "password": password}
	var resp User
	err := c.do(ctx, http.MethodPost, "v0/auth/register", body, &resp)
	return resp, err
}

// Login authenticates and stores the session token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	body := map[string]any{"email": email, "password": password}
	var resp Session
	if err := c.do(ctx, http.MethodPost, "v0/auth/login", body, &resp); err != nil {
		return resp, err
	}
	c.BearerToken = resp.Token
	return resp, nil
}

// CreateSubmission files a new submission.
func (c *Client) CreateSubmission(ctx context.Context, title, subType, content string, items []string) (Submission, error) {
	body := map[string]any{
		"title": title,
		"type":  subType,
	}
	if content != "" {
		body["content"] = content
	}
	if len(items) > 0 {
		body["items"] = items
	}
	var resp Submission
	err := c.do(ctx, http.MethodPost, "v0/submissions", body, &resp)
	return resp, err
}

// ListSubmissions returns the caller's submissions.
func (c *Client) ListSubmissions(ctx context.Context, status string) ([]Submission, error) {
	endpoint := "v0/submissions"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Submission
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetSubmission fetches one submission.
func (c *Client) GetSubmission(ctx context.Context, id string) (Submission, error) {
	var resp Submission
	err := c.do(ctx, http.MethodGet, "v0/submissions/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// PostMessage appends a thread message.
func (c *Client) PostMessage(ctx context.Context, submissionID, content string) (Message, error) {
	body := map[string]any{"content": content}
	var resp Message
	endpoint := fmt.Sprintf("v0/submissions/%s/messages", url.PathEscape(submissionID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ListMessages returns a submission's thread.
func (c *Client) ListMessages(ctx context.Context, submissionID string) ([]Message, error) {
	var resp []Message
	endpoint := fmt.Sprintf("v0/submissions/%s/messages", url.PathEscape(submissionID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ListTodos returns a submission's checklist.
func (c *Client) ListTodos(ctx context.Context, submissionID string) ([]Todo, error) {
	var resp []Todo
	endpoint := fmt.Sprintf("v0/submissions/%s/todos", url.PathEscape(submissionID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ToggleTodo sets a checklist item's completion (author only).
func (c *Client) ToggleTodo(ctx context.Context, submissionID, todoID string, completed bool) (Todo, error) {
	body := map[string]any{"completed": completed}
	var resp Todo
	endpoint := fmt.Sprintf("v0/submissions/%s/todos/%s", url.PathEscape(submissionID), url.PathEscape(todoID))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// SetStatus sets a submission's status (admin only).
func (c *Client) SetStatus(ctx context.Context, submissionID, status string) (Submission, error) {
	body := map[string]any{"status": status}
	var resp Submission
	endpoint := fmt.Sprintf("v0/admin/submissions/%s/status", url.PathEscape(submissionID))
	err := c.do(ctx, http.MethodPut, endpoint, body, &resp)
	return resp, err
}

// SetThreadClosed closes or reopens a thread (admin only).
func (c *Client) SetThreadClosed(ctx context.Context, submissionID string, closed bool) (Submission, error) {
	body := map[string]any{"closed": closed}
	var resp Submission
	endpoint := fmt.Sprintf("v0/admin/submissions/%s/thread", url.PathEscape(submissionID))
	err := c.do(ctx, http.MethodPut, endpoint, body, &resp)
	return resp, err
}

// AddTodo appends a checklist item (admin only).
func (c *Client) AddTodo(ctx context.Context, submissionID, text string) (Todo, error) {
	body := map[string]any{"text": text}
	var resp Todo
	endpoint := fmt.Sprintf("v0/admin/submissions/%s/todos", url.PathEscape(submissionID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.AdminToken != "":
		req.Header.Set("X-Admin-Token", c.AdminToken)
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
