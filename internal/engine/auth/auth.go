// Package auth holds the two credential schemes and the identity model for
// the workflow engine.
//
// Admins are not user accounts: possession of the shared-secret HMAC token
// grants admin rights over every submission. Users authenticate with
// per-account JWT sessions and may only act on their own submissions. The
// two must never be conflated; the post surface separately consults the
// USER/ADMIN role column on user rows.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized indicates no valid identity was presented.
var ErrUnauthorized = errors.New("authentication required")

// ForbiddenError indicates a valid identity with insufficient rights.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string { return e.Reason }

// Identity is the resolved caller of an engine operation.
type Identity struct {
	Admin  bool
	UserID string
}

// AdminIdentity is the shared admin principal.
func AdminIdentity() Identity { return Identity{Admin: true} }

// UserIdentity is a per-account principal.
func UserIdentity(userID string) Identity { return Identity{UserID: userID} }

func (id Identity) Valid() bool { return id.Admin || id.UserID != "" }

const adminTokenPayload = "admin:authenticated"

// ComputeAdminToken derives the admin credential from the shared secret.
func ComputeAdminToken(secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("admin password not configured")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(adminTokenPayload))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyAdminToken compares a presented token in constant time.
func VerifyAdminToken(secret, token string) bool {
	expected, err := ComputeAdminToken(secret)
	if err != nil || token == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(token))
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// MintSession issues a signed session token for a user.
func MintSession(secret, userID string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if userID == "" {
		return "", errors.New("user id required")
	}
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifySession validates a session token and returns the user id.
func VerifySession(secret, token string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &sessionClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("subject claim required")
	}
	return claims.Subject, nil
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
