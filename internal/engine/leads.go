package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"deskline/internal/domain"
	"deskline/internal/engine/auth"
	"deskline/internal/events"
)

// CreateLead records a contact-form entry. Leads arrive unauthenticated.
func (e Engine) CreateLead(ctx context.Context, name, email, message string) (domain.Lead, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Lead{}, errors.New("a valid email is required")
	}
	if strings.TrimSpace(name) == "" {
		return domain.Lead{}, errors.New("name is required")
	}
	l := domain.Lead{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Message:   message,
		Status:    string(domain.LeadNew),
		CreatedAt: e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Lead{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertLead(ctx, tx, l); err != nil {
		return domain.Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "lead.create", "lead", l.ID, "anonymous", events.EventPayload{"email": l.Email}); err != nil {
		return domain.Lead{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Lead{}, err
	}
	return l, nil
}

func (e Engine) ListLeads(ctx context.Context, status string, ident auth.Identity) ([]domain.Lead, error) {
	if err := requireAdmin(ident); err != nil {
		return nil, err
	}
	if status != "" {
		if _, err := domain.ParseLeadStatus(status); err != nil {
			return nil, err
		}
	}
	return e.Repo.ListLeads(ctx, status)
}

func (e Engine) SetLeadStatus(ctx context.Context, id, status string, ident auth.Identity) (domain.Lead, error) {
	if err := requireAdmin(ident); err != nil {
		return domain.Lead{}, err
	}
	parsed, err := domain.ParseLeadStatus(status)
	if err != nil {
		return domain.Lead{}, err
	}
	l, err := e.Repo.GetLead(ctx, id)
	if err != nil {
		return domain.Lead{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Lead{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateLeadStatus(ctx, tx, id, parsed); err != nil {
		return domain.Lead{}, err
	}
	if err := e.Events.Append(ctx, tx, "lead.status", "lead", id, actorID(ident), events.EventPayload{
		"from": l.Status, "to": string(parsed),
	}); err != nil {
		return domain.Lead{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Lead{}, err
	}
	l.Status = string(parsed)
	return l, nil
}

func (e Engine) DeleteLead(ctx context.Context, id string, ident auth.Identity) error {
	if err := requireAdmin(ident); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteLead(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "lead.delete", "lead", id, actorID(ident), nil); err != nil {
		return err
	}
	return tx.Commit()
}
