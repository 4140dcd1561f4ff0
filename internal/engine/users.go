package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"deskline/internal/domain"
	"deskline/internal/engine/auth"
	"deskline/internal/events"
	"deskline/internal/repo"
)

// ErrInvalidCredentials covers both a missing account and a wrong password,
// so login failures do not reveal which emails exist.
var ErrInvalidCredentials = errors.New("invalid email or password")

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (e Engine) Register(ctx context.Context, name, email, password string) (domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, errors.New("a valid email is required")
	}
	if strings.TrimSpace(name) == "" {
		return domain.User{}, errors.New("name is required")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}
	if _, err := e.Repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, errors.New("email is already registered")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}

	u := domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		CreatedAt:    e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "user.register", "user", u.ID, u.ID, nil); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Login verifies credentials and mints a session token for the user.
func (e Engine) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	u, err := e.Repo.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, "", ErrInvalidCredentials
		}
		return domain.User{}, "", err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	ttl := time.Duration(e.Config.Auth.SessionTTLHours) * time.Hour
	token, err := auth.MintSession(e.Config.Auth.JWTSecret, u.ID, ttl, e.now())
	if err != nil {
		return domain.User{}, "", err
	}
	return u, token, nil
}

// AdminToken derives the shared admin credential from configuration.
func (e Engine) AdminToken() (string, error) {
	return auth.ComputeAdminToken(e.Config.Auth.AdminPassword)
}

func (e Engine) GetUser(ctx context.Context, id string) (domain.User, error) {
	return e.Repo.GetUser(ctx, id)
}

func (e Engine) ListUsers(ctx context.Context, ident auth.Identity) ([]domain.User, error) {
	if err := requireAdmin(ident); err != nil {
		return nil, err
	}
	return e.Repo.ListUsers(ctx)
}

// SetUserRole grants or revokes the ADMIN role on an account. Only the
// back-office admin token may change roles; the role itself only matters on
// the post surface.
func (e Engine) SetUserRole(ctx context.Context, userID, role string, ident auth.Identity) (domain.User, error) {
	if err := requireAdmin(ident); err != nil {
		return domain.User{}, err
	}
	if role != domain.RoleUser && role != domain.RoleAdmin {
		return domain.User{}, fmt.Errorf("invalid role %q", role)
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUserRole(ctx, tx, u.ID, role); err != nil {
		return domain.User{}, err
	}
	if err := e.Events.Append(ctx, tx, "user.role", "user", u.ID, actorID(ident), events.EventPayload{
		"role": role,
	}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	u.Role = role
	return u, nil
}
