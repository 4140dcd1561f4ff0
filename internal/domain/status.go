package domain

import "fmt"

// Status is the admin review state of a submission. It is a closed set;
// anything else is rejected at the boundary by ParseStatus.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusReviewed     Status = "REVIEWED"
	StatusAcknowledged Status = "ACKNOWLEDGED"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusReviewed, StatusAcknowledged:
		return Status(s), nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

func (s Status) String() string { return string(s) }

// SubmissionType determines how a submission's content is interpreted:
// a stored file name for DOCUMENT, newline-joined items for TODO_LIST,
// free text otherwise.
type SubmissionType string

const (
	TypeDocument SubmissionType = "DOCUMENT"
	TypeTodoList SubmissionType = "TODO_LIST"
	TypeUpdate   SubmissionType = "UPDATE"
	TypeMessage  SubmissionType = "MESSAGE"
)

func ParseSubmissionType(s string) (SubmissionType, error) {
	switch SubmissionType(s) {
	case TypeDocument, TypeTodoList, TypeUpdate, TypeMessage:
		return SubmissionType(s), nil
	}
	return "", fmt.Errorf("invalid submission type %q", s)
}

func (t SubmissionType) String() string { return string(t) }

type LeadStatus string

const (
	LeadNew       LeadStatus = "NEW"
	LeadContacted LeadStatus = "CONTACTED"
	LeadClosed    LeadStatus = "CLOSED"
)

func ParseLeadStatus(s string) (LeadStatus, error) {
	switch LeadStatus(s) {
	case LeadNew, LeadContacted, LeadClosed:
		return LeadStatus(s), nil
	}
	return "", fmt.Errorf("invalid lead status %q", s)
}

func (s LeadStatus) String() string { return string(s) }

// User roles for the post surface. The submissions admin surface is gated by
// the shared admin token instead and never consults these.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)
