package domain

type Submission struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Type          string  `json:"type" enum:"DOCUMENT,TODO_LIST,UPDATE,MESSAGE"`
	Content       string  `json:"content"`
	Status        string  `json:"status" enum:"PENDING,REVIEWED,ACKNOWLEDGED"`
	ThreadClosed  bool    `json:"thread_closed"`
	AuthorID      string  `json:"author_id"`
	AdminReply    *string `json:"admin_reply,omitempty"`
	AttachmentRef *string `json:"attachment_ref,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	ExpiresAt     *string `json:"expires_at,omitempty" format:"date-time"`
}

type SubmissionMessage struct {
	ID           string `json:"id"`
	SubmissionID string `json:"submission_id"`
	Seq          int64  `json:"seq"`
	Content      string `json:"content"`
	IsAdmin      bool   `json:"is_admin"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type TodoItem struct {
	ID           string `json:"id"`
	SubmissionID string `json:"submission_id"`
	Text         string `json:"text"`
	Completed    bool   `json:"completed"`
	Order        int    `json:"order"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         string `json:"role" enum:"USER,ADMIN"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Lead struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Message   string `json:"message"`
	Status    string `json:"status" enum:"NEW,CONTACTED,CLOSED"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Post struct {
	ID        string `json:"id"`
	AuthorID  string `json:"author_id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Published bool   `json:"published"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// FileAttachment carries attachment metadata. Data is only populated when the
// backing store keeps bytes inline; file-backed stores leave it nil and
// StorageRef points at the stored object.
type FileAttachment struct {
	SubmissionID string `json:"submission_id"`
	FileName     string `json:"file_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	StorageRef   string `json:"storage_ref"`
	Data         []byte `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
